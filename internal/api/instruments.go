package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/engine"
)

func (s *Server) instruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.deps.Catalog.Instruments(r.Context())
	if err != nil {
		s.logger.Error("list instruments failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list instruments", err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, instruments)
}

func (s *Server) instrumentCategories(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.deps.Catalog.Instruments(r.Context())
	if err != nil {
		s.logger.Error("list instrument categories failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list instrument categories", err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, engine.Categorize(instruments))
}
