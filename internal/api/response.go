package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/JakeFAU/conductio-api/internal/output"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// encodeFailure is sent when a payload cannot be marshaled.
var encodeFailure = []byte(`{"success":false,"error":"Internal server error","message":"Response encoding failed"}` + "\n")

// writeJSON sends payload with status. Write errors are recorded by the
// logging middleware's response writer and reported with the access log.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status, body = http.StatusInternalServerError, encodeFailure
	} else {
		body = append(body, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, title, message string) {
	writeJSON(w, status, envelope{Success: false, Error: title, Message: message})
}

func panicMessage(rec any, development bool) string {
	if !development {
		return "Something went wrong"
	}
	return fmt.Sprint(rec)
}

// streamFile sends file as an attachment. It returns an error, with nothing
// written, when the file cannot be opened.
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request, file output.File) error {
	f, err := s.deps.Fs.Open(file.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", file.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("open %s: %w", file.Path, os.ErrNotExist)
	}

	w.Header().Set("Content-Type", file.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	http.ServeContent(w, r, file.FileName, info.ModTime(), f)
	return nil
}
