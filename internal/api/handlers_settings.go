package api

import (
	"encoding/json"
	"net/http"

	"github.com/micro-nova/laserguard/internal/state"
)

type validator interface {
	Validate() error
}

func getSettings[C any](s *state.Shared[C]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, s.State())
	}
}

// putSettings decodes the body over the current value, so omitted fields
// keep their setting, validates the result and persists it.
func putSettings[C validator](s *state.Shared[C]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Decode into a copy: slices in the current value share storage
		// with the manager.
		var next C
		cur, err := json.Marshal(s.State())
		if err == nil {
			err = json.Unmarshal(cur, &next)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if err := decodeBody(r, &next); err != nil {
			writeError(w, err)
			return
		}
		if err := next.Validate(); err != nil {
			writeError(w, err)
			return
		}
		if err := s.Set(next); err != nil {
			writeError(w, err)
			return
		}
		writeData(w, next)
	}
}
