package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/metrics"
	"github.com/JakeFAU/conductio-api/internal/output"
)

const maxRequestBody = 64 << 10

var errQueueUnavailable = errors.New("generation queue unavailable")

// generationInfo is the X-Generation-Info header of the sync route.
type generationInfo struct {
	Layer      conductio.Layer `json:"layer"`
	Genre      string          `json:"genre"`
	Key        string          `json:"key"`
	BPM        int             `json:"bpm"`
	Bars       int             `json:"bars"`
	Instrument string          `json:"instrument"`
	FileType   string          `json:"fileType"`
	CreatedAt  string          `json:"createdAt"`
}

// jobSummary is returned when an async job is accepted. outputPath and
// midiFile stay empty until the job completes.
type jobSummary struct {
	ID         string              `json:"id"`
	Status     conductio.JobStatus `json:"status"`
	Layer      conductio.Layer     `json:"layer"`
	Genre      string              `json:"genre"`
	Key        string              `json:"key"`
	BPM        int                 `json:"bpm"`
	Bars       int                 `json:"bars"`
	Instrument string              `json:"instrument"`
	OutputPath string              `json:"outputPath"`
	MIDIFile   string              `json:"midiFile"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// decodeRequest parses and validates a generation request, writing a 400 on
// failure. An empty body is treated as a request without a layer.
func decodeRequest(w http.ResponseWriter, r *http.Request) (conductio.GenerationRequest, bool) {
	var raw conductio.RawGenerationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return conductio.GenerationRequest{}, false
	}
	req, err := raw.Normalize()
	switch {
	case errors.Is(err, conductio.ErrInvalidLayer):
		writeError(w, http.StatusBadRequest, "Invalid layer", "Layer must be one of: "+conductio.LayerNames())
		return conductio.GenerationRequest{}, false
	case err != nil:
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return conductio.GenerationRequest{}, false
	}
	return req, true
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	logger := s.logger.With(zap.String("layer", string(req.Layer)), zap.String("request_id", RequestID(r.Context())))
	logger.Info("starting synchronous generation")

	// Waiting for a slot follows the request. Once the engine starts, a
	// client disconnect must not kill it; only the engine timeout bounds the run.
	slot, err := s.deps.Generator.Reserve(r.Context())
	if err != nil {
		logger.Warn("no generation slot before request ended", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Generation busy", err.Error())
		return
	}
	defer slot.Release()
	dir, err := slot.Generate(context.WithoutCancel(r.Context()), req)
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Generation failed", err.Error())
		return
	}
	file, err := s.deps.Resolver.Resolve(dir, req.Layer, req.RenderAudio)
	if err != nil {
		logger.Error("generated file missing", zap.String("dir", dir), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Generation failed", err.Error())
		return
	}

	info, err := json.Marshal(generationInfo{
		Layer:      req.Layer,
		Genre:      req.Genre,
		Key:        req.Key,
		BPM:        req.BPM,
		Bars:       req.Bars,
		Instrument: req.Instrument,
		FileType:   file.Extension,
		CreatedAt:  s.deps.Clock.Now().Format(time.RFC3339),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Generation failed", err.Error())
		return
	}
	w.Header().Set("X-Generation-Info", string(info))

	logger.Info("streaming generated file", zap.String("path", file.Path), zap.String("type", file.Extension))
	if err := s.streamFile(w, r, file); err != nil {
		w.Header().Del("X-Generation-Info")
		logger.Error("stream generated file failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Generation failed", err.Error())
	}
}

func (s *Server) generateAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	job, err := s.enqueueJob(r.Context(), req)
	if err != nil {
		s.logger.Error("enqueue generation failed", zap.String("layer", string(req.Layer)), zap.Error(err))
		if errors.Is(err, errQueueUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "Generation queue full", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Generation failed", err.Error())
		return
	}
	writeSuccess(w, http.StatusAccepted, jobSummary{
		ID:         job.ID,
		Status:     job.Status,
		Layer:      req.Layer,
		Genre:      req.Genre,
		Key:        req.Key,
		BPM:        req.BPM,
		Bars:       req.Bars,
		Instrument: req.Instrument,
		CreatedAt:  job.CreatedAt,
	})
}

func (s *Server) enqueueJob(ctx context.Context, req conductio.GenerationRequest) (conductio.Job, error) {
	jobID, err := s.deps.IDGen.NewID()
	if err != nil {
		return conductio.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := conductio.Job{
		ID:        jobID,
		Status:    conductio.JobStatusProcessing,
		Request:   req,
		CreatedAt: s.deps.Clock.Now(),
	}
	if err := s.deps.JobStore.CreateJob(ctx, job); err != nil {
		return conductio.Job{}, fmt.Errorf("create job: %w", err)
	}
	metrics.ObserveJob(string(conductio.JobStatusProcessing))

	queueCtx, cancel := context.WithTimeout(ctx, s.cfg.EnqueueTimeout())
	defer cancel()
	item := conductio.QueueItem{JobID: jobID, Request: req, Submitted: job.CreatedAt.UnixNano()}
	if err := s.deps.Dispatcher.Enqueue(queueCtx, item); err != nil {
		errText := fmt.Sprintf("%s: %v", errQueueUnavailable, err)
		if finishErr := s.deps.JobStore.FinishJob(context.WithoutCancel(ctx), jobID, conductio.JobStatusFailed, nil, errText); finishErr != nil {
			s.logger.Error("fail unqueued job", zap.String("job_id", jobID), zap.Error(finishErr))
		}
		metrics.ObserveJob(string(conductio.JobStatusFailed))
		return conductio.Job{}, fmt.Errorf("%w: %w", errQueueUnavailable, err)
	}
	s.logger.Info("generation job accepted", zap.String("job_id", jobID), zap.String("layer", string(req.Layer)))
	return job, nil
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := s.deps.JobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found", "No generation job found with ID: "+jobID)
		return
	}
	writeSuccess(w, http.StatusOK, job)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := s.deps.JobStore.GetJob(r.Context(), jobID)
	if err != nil || job.Status != conductio.JobStatusCompleted || job.Result == nil {
		writeError(w, http.StatusNotFound, "File not found", "Job not found, not completed, or no files available")
		return
	}

	var file output.File
	switch chi.URLParam(r, "type") {
	case "midi":
		file = output.File{Path: job.Result.MIDIFile, MIMEType: output.MIMEMIDI, Extension: output.ExtMIDI}
	case "audio":
		if !job.Result.HasAudio() {
			writeError(w, http.StatusBadRequest, "Audio not available", "The job completed without rendering an audio file")
			return
		}
		file = output.File{Path: *job.Result.AudioFile, MIMEType: output.MIMEAudio, Extension: output.ExtAudio}
	default:
		writeError(w, http.StatusBadRequest, "Invalid file type", `Type must be "midi" or "audio"`)
		return
	}
	file.FileName = output.DownloadName(job.Result.OutputPath, file.Extension)

	if err := s.streamFile(w, r, file); err != nil {
		s.logger.Error("download failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Download failed", "Could not access or send file")
	}
}
