package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/blktag/internal/blkid"
)

// handleListTypes returns the tag names known to the cache index.
func (s *Server) handleListTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": s.registry.Types()})
}

// handleTagsOfType lists every device carrying a tag of the given name.
func (s *Server) handleTagsOfType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	matches := s.registry.TagsOfType(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"type":    name,
		"devices": matches,
		"count":   len(matches),
	})
}

// handleLookup resolves a tag to a device, probing once if needed.
//
// The tag is given either as ?tag=NAME=value (quotes allowed) or as
// ?name=NAME&value=value.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		dev blkid.DeviceSnapshot
		err error
	)
	switch {
	case q.Has("tag"):
		dev, err = s.registry.LookupString(r.Context(), q.Get("tag"))
	case q.Has("name"):
		dev, err = s.registry.Lookup(r.Context(), q.Get("name"), q.Get("value"))
	default:
		writeBadRequest(w, "tag or name query parameter is required")
		return
	}

	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, blkid.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, blkid.ErrInvalidParam), errors.Is(err, blkid.ErrInvalidTagString):
		writeBadRequest(w, err.Error())
	case errors.Is(err, blkid.ErrResourceExhausted):
		writeError(w, http.StatusInsufficientStorage, ErrCodeLimitExceeded, err.Error())
	default:
		s.logger.Error("tag lookup failed",
			"error", err,
			"query", r.URL.RawQuery,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "lookup failed")
	}
}
