package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"
)

// TrickController lets the web UI ask the control loop to start or stop a
// trick. Requests are queued; the control loop applies them on its next tick.
// Implementations must be safe to call concurrently.
type TrickController interface {
	RequestStart() error
	RequestStop() error
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Handler(status *Status, settings SettingsStore, logs *LogBuffer, ticks *TickBroadcaster, ctl TrickController) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC()))
	})

	trickAction := func(do func(TrickController) error) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !allowMethod(w, r, http.MethodPost) {
				return
			}
			if ctl == nil {
				http.Error(w, "trick control unavailable", http.StatusNotFound)
				return
			}
			if err := do(ctl); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
		}
	}
	mux.HandleFunc("/api/trick/start", trickAction(TrickController.RequestStart))
	mux.HandleFunc("/api/trick/stop", trickAction(TrickController.RequestStop))
	mux.Handle("/api/trick/ws", TickStream{Ticks: ticks})

	mux.Handle("/api/settings", settings.Handler())

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		last := snap.Last
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>trickctl</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>trickctl</h1>")
		_, _ = fmt.Fprintf(w, "<p>JSON: <a href=\"/api/status\">/api/status</a>, <a href=\"/api/settings\">/api/settings</a>, <a href=\"/api/logs?format=text\">/api/logs</a>. Live ticks: ws /api/trick/ws.</p>")
		_, _ = fmt.Fprintf(w, "<pre>source=%s\nticks_total=%d\nmode=%s\ntrick=%s\nstate=%s\nactive=%v\noutcome=%s</pre>",
			html.EscapeString(snap.Source), snap.TicksTotal,
			html.EscapeString(last.Mode), html.EscapeString(last.Trick), html.EscapeString(last.State),
			last.Active, html.EscapeString(last.Outcome),
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
