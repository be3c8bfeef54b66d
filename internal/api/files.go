package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/library"
)

func (s *Server) listFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := s.deps.Library.Scan()
	if err != nil {
		s.logger.Error("scan output directory failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to scan existing files", err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, files)
}

func (s *Server) serveLibraryFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	preferAudio := r.URL.Query().Get("format") != "midi"

	file, err := s.deps.Library.Open(fileID, preferAudio)
	switch {
	case errors.Is(err, library.ErrInvalidFileID):
		writeError(w, http.StatusBadRequest, "Invalid file ID format", err.Error())
		return
	case errors.Is(err, conductio.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found", "No generated file with ID: "+fileID)
		return
	case err != nil:
		s.logger.Error("resolve library file failed", zap.String("file_id", fileID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to serve file", err.Error())
		return
	}
	if err := s.streamFile(w, r, file); err != nil {
		s.logger.Error("serve library file failed", zap.String("file_id", fileID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to serve file", err.Error())
	}
}
