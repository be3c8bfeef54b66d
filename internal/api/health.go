package api

import (
	"net/http"
	"time"
)

type healthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Uptime    int64          `json:"uptime"`
	Version   string         `json:"version"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	ConductioService string `json:"conductioService"`
	Python           string `json:"python"`
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

// health probes the engine; a failed probe degrades the service but the
// envelope still reports success.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	now := s.deps.Clock.Now()
	available := s.deps.Prober.Available(r.Context())

	status := healthStatus{
		Status:    "healthy",
		Timestamp: now,
		Uptime:    int64(now.Sub(s.started).Seconds()),
		Version:   Version,
		Services: healthServices{
			ConductioService: availability(available),
			Python:           availability(available),
		},
	}
	code := http.StatusOK
	if !available {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeSuccess(w, code, status)
}

type apiInfo struct {
	Name        string                       `json:"name"`
	Version     string                       `json:"version"`
	Description string                       `json:"description"`
	Endpoints   map[string]map[string]string `json:"endpoints"`
	Examples    map[string]apiExample        `json:"examples"`
}

type apiExample struct {
	URL         string         `json:"url"`
	Description string         `json:"description"`
	Body        map[string]any `json:"body"`
	Response    string         `json:"response"`
}

var serviceInfo = apiInfo{
	Name:        "Conductio API",
	Version:     Version,
	Description: "REST API for AI Music Generation",
	Endpoints: map[string]map[string]string{
		"health": {
			"GET /api/health":      "Health check and service status",
			"GET /api/health/info": "API information and documentation",
		},
		"generation": {
			"POST /api/generate":                   "Generate and stream music file directly (MIDI/WAV)",
			"POST /api/generate/async":             "Start async generation (returns job ID)",
			"GET /api/generate/status/:id":         "Get async generation status",
			"GET /api/generate/download/:id/:type": "Download async generated files",
		},
		"instruments": {
			"GET /api/instruments":            "List all available instruments",
			"GET /api/instruments/categories": "List instruments by category",
		},
		"files": {
			"GET /api/files":              "List previously generated files",
			"GET /api/files/file/:fileId": "Stream a previously generated file (?format=midi for MIDI)",
		},
		"metrics": {
			"GET /metrics": "Prometheus metrics",
		},
	},
	Examples: map[string]apiExample{
		"generateAndStreamAudio": {
			URL:         "POST /api/generate",
			Description: "Generate and immediately stream audio file",
			Body: map[string]any{
				"layer": "melody", "key": "F major", "bpm": 120, "bars": 8,
				"instrument": "acoustic_grand_piano", "genre": "jazz", "renderAudio": true,
			},
			Response: "Streams WAV audio file directly",
		},
		"generateAndStreamMIDI": {
			URL:         "POST /api/generate",
			Description: "Generate and immediately stream MIDI file",
			Body: map[string]any{
				"layer": "bass", "key": "E minor", "bpm": 140, "bars": 4,
				"instrument": "electric_bass_finger", "genre": "rock", "renderAudio": false,
			},
			Response: "Streams MIDI file directly",
		},
	},
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, serviceInfo)
}
