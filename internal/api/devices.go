package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/blktag/internal/blkid"
)

// handleListDevices returns every cached device in attach order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one cached device. It never probes.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := "/" + chi.URLParam(r, "*")
	if name == "/" {
		writeBadRequest(w, "device name is required")
		return
	}

	d, err := s.registry.Device(name)
	if err != nil {
		if errors.Is(err, blkid.ErrNotFound) {
			writeNotFound(w, "device not cached: "+name)
			return
		}
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}
