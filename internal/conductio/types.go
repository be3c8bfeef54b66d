package conductio

import (
	"fmt"
	"strings"
	"time"
)

// Layer is one of the musical parts the engine generates independently.
type Layer string

// Supported layers.
const (
	LayerMelody Layer = "melody"
	LayerBass   Layer = "bass"
	LayerDrums  Layer = "drums"
	LayerChords Layer = "chords"
)

// Layers lists every supported layer in display order.
var Layers = []Layer{LayerMelody, LayerBass, LayerDrums, LayerChords}

// Valid reports whether l is a supported layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerMelody, LayerBass, LayerDrums, LayerChords:
		return true
	default:
		return false
	}
}

// LayerNames returns the supported layers joined for error messages.
func LayerNames() string {
	names := make([]string, len(Layers))
	for i, l := range Layers {
		names[i] = string(l)
	}
	return strings.Join(names, ", ")
}

// Request defaults applied when a field is omitted.
const (
	DefaultKey        = "C minor"
	DefaultBPM        = 120
	DefaultBars       = 8
	DefaultInstrument = "auto"
	DefaultGenre      = "general"
)

// GenerationRequest is a validated request for a single layer.
type GenerationRequest struct {
	Layer       Layer  `json:"layer"`
	Key         string `json:"key"`
	BPM         int    `json:"bpm"`
	Bars        int    `json:"bars"`
	Instrument  string `json:"instrument"`
	Genre       string `json:"genre"`
	RenderAudio bool   `json:"renderAudio"`
}

// RawGenerationRequest is the wire form of a generation request, where every
// field except the layer is optional.
type RawGenerationRequest struct {
	Layer       string  `json:"layer"`
	Key         *string `json:"key"`
	BPM         *int    `json:"bpm"`
	Bars        *int    `json:"bars"`
	Instrument  *string `json:"instrument"`
	Genre       *string `json:"genre"`
	RenderAudio *bool   `json:"renderAudio"`
}

// Normalize validates the raw request and fills in defaults.
func (r RawGenerationRequest) Normalize() (GenerationRequest, error) {
	layer := Layer(r.Layer)
	if !layer.Valid() {
		return GenerationRequest{}, fmt.Errorf("%w: layer must be one of: %s", ErrInvalidLayer, LayerNames())
	}
	req := GenerationRequest{
		Layer:       layer,
		Key:         stringOrDefault(r.Key, DefaultKey),
		BPM:         valueOrDefault(r.BPM, DefaultBPM),
		Bars:        valueOrDefault(r.Bars, DefaultBars),
		Instrument:  stringOrDefault(r.Instrument, DefaultInstrument),
		Genre:       stringOrDefault(r.Genre, DefaultGenre),
		RenderAudio: valueOrDefault(r.RenderAudio, true),
	}
	if req.BPM <= 0 {
		return GenerationRequest{}, fmt.Errorf("%w: bpm must be a positive integer", ErrInvalidRequest)
	}
	if req.Bars <= 0 {
		return GenerationRequest{}, fmt.Errorf("%w: bars must be a positive integer", ErrInvalidRequest)
	}
	return req, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func stringOrDefault(ptr *string, def string) string {
	if ptr == nil || strings.TrimSpace(*ptr) == "" {
		return def
	}
	return *ptr
}

// JobStatus represents the lifecycle state of an async generation job.
type JobStatus string

// Job status values.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the tracked lifecycle record of an async generation.
type Job struct {
	ID         string            `json:"id"`
	Status     JobStatus         `json:"status"`
	Request    GenerationRequest `json:"request"`
	Result     *Result           `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// Result describes the files an async job produced.
type Result struct {
	OutputPath string        `json:"outputPath"`
	MIDIFile   string        `json:"midiFile"`
	AudioFile  *string       `json:"audioFile"`
	Layer      Layer         `json:"layer"`
	Genre      string        `json:"genre"`
	Key        string        `json:"key"`
	BPM        int           `json:"bpm"`
	Bars       int           `json:"bars"`
	Instrument string        `json:"instrument"`
	Archive    *ArchiveLinks `json:"archive,omitempty"`
}

// HasAudio reports whether the job rendered an audio file.
func (r *Result) HasAudio() bool {
	return r != nil && r.AudioFile != nil && *r.AudioFile != ""
}

// ArchiveLinks holds the blob URIs of archived artifacts.
type ArchiveLinks struct {
	MIDI  string `json:"midi,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// Instrument is an entry of the engine's static instrument catalog.
type Instrument struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Category    string `json:"category"`
}

// InstrumentCategory groups catalog entries by category.
type InstrumentCategory struct {
	Name        string       `json:"name"`
	Instruments []Instrument `json:"instruments"`
}

// QueueItem wraps an accepted job ready to run.
type QueueItem struct {
	JobID     string
	Request   GenerationRequest
	Submitted int64
}
