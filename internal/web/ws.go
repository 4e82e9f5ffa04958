package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 32
	wsWriteWait       = 2 * time.Second
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

// TickStream serves /api/trick/ws: every published tick is pushed to the
// client as a JSON TickView. Clients never send anything meaningful; the
// read loop only exists to notice the close.
type TickStream struct {
	Ticks *TickBroadcaster
}

func (s TickStream) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if s.Ticks == nil {
		http.Error(w, "tick stream unavailable", http.StatusNotFound)
		return
	}
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	id, ch := s.Ticks.Subscribe(messageBufferSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		writeTicks(socket, ch)
	}()
	readUntilClosed(socket)
	s.Ticks.Unsubscribe(id)
	<-done
	_ = socket.Close()
}

func writeTicks(socket *websocket.Conn, ch <-chan TickView) {
	for tv := range ch {
		_ = socket.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := socket.WriteJSON(tv); err != nil {
			// Drain so Unsubscribe can close the channel.
			for range ch {
			}
			return
		}
	}
	_ = socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
}

func readUntilClosed(socket *websocket.Conn) {
	socket.SetReadLimit(512)
	for {
		if _, _, err := socket.ReadMessage(); err != nil {
			return
		}
	}
}
