package server

import (
	"io"
	"net/http"
	"strconv"
)

func (s *Server) handlePicture(w http.ResponseWriter, r *http.Request) {
	obj, err := s.app.OpenPicture(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer obj.Body.Close()
	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, obj.Body)
}

func (s *Server) handleLinkPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.app.LinkPreview(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": preview})
}
