package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"trickctl/internal/config"
)

// SettingsPayload is the trick tunable set as exposed over HTTP. Keys match
// the YAML trick section.
type SettingsPayload struct {
	ID           int     `json:"id"`
	Trick        string  `json:"trick"`
	RotRate      float64 `json:"rot_rate"`
	ThrInc       float64 `json:"thr_inc"`
	ThrDec       float64 `json:"thr_dec"`
	RecAngle     float64 `json:"rec_angle"`
	FallThr      float64 `json:"fall_thr"`
	FallMs       int     `json:"fall_ms"`
	ShakeAng     int     `json:"shake_ang"`
	ShakePrd     int     `json:"shake_prd"`
	ShakeDur     int     `json:"shake_dur"`
	ThrottleFilt float64 `json:"throttle_filt"`
}

// SettingsPayloadIn is the strict POST schema. Every key is required; there
// are no partial updates.
type SettingsPayloadIn struct {
	ID           *int     `json:"id"`
	RotRate      *float64 `json:"rot_rate"`
	ThrInc       *float64 `json:"thr_inc"`
	ThrDec       *float64 `json:"thr_dec"`
	RecAngle     *float64 `json:"rec_angle"`
	FallThr      *float64 `json:"fall_thr"`
	FallMs       *int     `json:"fall_ms"`
	ShakeAng     *int     `json:"shake_ang"`
	ShakePrd     *int     `json:"shake_prd"`
	ShakeDur     *int     `json:"shake_dur"`
	ThrottleFilt *float64 `json:"throttle_filt"`
}

var settingsPostKeys = []string{
	"id",
	"rot_rate",
	"thr_inc",
	"thr_dec",
	"rec_angle",
	"fall_thr",
	"fall_ms",
	"shake_ang",
	"shake_prd",
	"shake_dur",
	"throttle_filt",
}

func decodeSettingsPayloadInStrict(body []byte) (SettingsPayloadIn, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	allowed := make(map[string]struct{}, len(settingsPostKeys))
	for _, k := range settingsPostKeys {
		allowed[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(settingsPostKeys))

	// Token pass: object shape, unknown and duplicate keys, nulls.
	tok, err := dec.Token()
	if err != nil {
		return SettingsPayloadIn{}, errors.Wrap(err, "invalid json")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return SettingsPayloadIn{}, errors.New("invalid json: expected object")
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return SettingsPayloadIn{}, errors.Wrap(err, "invalid json")
		}
		key, ok := kt.(string)
		if !ok {
			return SettingsPayloadIn{}, errors.New("invalid json: expected string key")
		}
		if _, ok := allowed[key]; !ok {
			return SettingsPayloadIn{}, errors.Errorf("invalid json: unknown key %q", key)
		}
		if _, dup := seen[key]; dup {
			return SettingsPayloadIn{}, errors.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return SettingsPayloadIn{}, errors.Wrap(err, "invalid json")
		}
		if strings.TrimSpace(string(raw)) == "null" {
			return SettingsPayloadIn{}, errors.Errorf("invalid json: %q cannot be null", key)
		}
	}
	end, err := dec.Token()
	if err != nil {
		return SettingsPayloadIn{}, errors.Wrap(err, "invalid json")
	}
	if delim, ok := end.(json.Delim); !ok || delim != '}' {
		return SettingsPayloadIn{}, errors.New("invalid json: expected end of object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return SettingsPayloadIn{}, errors.New("invalid json: trailing data")
	}
	for _, k := range settingsPostKeys {
		if _, ok := seen[k]; !ok {
			return SettingsPayloadIn{}, errors.Errorf("invalid json: missing required key %q", k)
		}
	}

	var out SettingsPayloadIn
	dec2 := json.NewDecoder(bytes.NewReader(body))
	dec2.DisallowUnknownFields()
	if err := dec2.Decode(&out); err != nil {
		return SettingsPayloadIn{}, errors.Wrap(err, "invalid json")
	}
	return out, nil
}

func configToSettingsPayload(cfg config.Config) SettingsPayload {
	t := cfg.Trick
	return SettingsPayload{
		ID:           t.ID,
		Trick:        cfg.TrickParams().ID.String(),
		RotRate:      t.RotRate,
		ThrInc:       t.ThrInc,
		ThrDec:       t.ThrDec,
		RecAngle:     t.RecAngle,
		FallThr:      t.FallThr,
		FallMs:       t.FallMs,
		ShakeAng:     t.ShakeAng,
		ShakePrd:     t.ShakePrd,
		ShakeDur:     t.ShakeDur,
		ThrottleFilt: t.ThrottleFilt,
	}
}

// applySettingsPayload copies the payload into cfg. Range checks are left to
// config.DefaultAndValidate so HTTP and YAML agree on what is valid.
func applySettingsPayload(cfg *config.Config, p SettingsPayloadIn) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	t := &cfg.Trick
	t.ID = *p.ID
	t.RotRate = *p.RotRate
	t.ThrInc = *p.ThrInc
	t.ThrDec = *p.ThrDec
	t.RecAngle = *p.RecAngle
	t.FallThr = *p.FallThr
	t.FallMs = *p.FallMs
	t.ShakeAng = *p.ShakeAng
	t.ShakePrd = *p.ShakePrd
	t.ShakeDur = *p.ShakeDur
	t.ThrottleFilt = *p.ThrottleFilt
	return nil
}

type SettingsStore struct {
	ConfigPath string
	// Apply, when set, is called after validation and before saving.
	// If Apply returns an error, the config is not saved.
	Apply func(cfg config.Config) error
}

func (s SettingsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.ConfigPath) == "" {
			http.Error(w, "settings not available (no config path)", http.StatusNotImplemented)
			return
		}

		switch r.Method {
		case http.MethodGet:
			cfg, err := config.Load(s.ConfigPath)
			if err != nil {
				http.Error(w, "load failed: "+err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, configToSettingsPayload(cfg))

		case http.MethodPost:
			if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
				http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "read failed: "+err.Error(), http.StatusBadRequest)
				return
			}
			p, err := decodeSettingsPayloadInStrict(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			oldCfg, err := config.Load(s.ConfigPath)
			if err != nil {
				http.Error(w, "load failed: "+err.Error(), http.StatusInternalServerError)
				return
			}
			cfg := oldCfg
			if err := applySettingsPayload(&cfg, p); err != nil {
				http.Error(w, "invalid settings: "+err.Error(), http.StatusBadRequest)
				return
			}
			if err := config.DefaultAndValidate(&cfg); err != nil {
				http.Error(w, "invalid config: "+err.Error(), http.StatusBadRequest)
				return
			}
			if s.Apply != nil {
				if err := s.Apply(cfg); err != nil {
					http.Error(w, "apply failed: "+err.Error(), http.StatusBadRequest)
					return
				}
			}
			if err := config.Save(s.ConfigPath, cfg); err != nil {
				if s.Apply != nil {
					_ = s.Apply(oldCfg)
				}
				http.Error(w, "save failed: "+err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, configToSettingsPayload(cfg))

		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
