package conductio

import "errors"

// Sentinel errors shared by the engine adapter, stores and the HTTP layer.
var (
	ErrInvalidLayer    = errors.New("invalid layer")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrToolUnavailable = errors.New("generation engine unavailable")
	ErrToolTimeout     = errors.New("generation engine timed out")
	ErrBufferOverflow  = errors.New("generation engine output exceeded buffer")
	ErrOutputParse     = errors.New("could not parse output path from engine response")
	ErrFileNotFound    = errors.New("file not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrJobExists       = errors.New("job already exists")
	ErrJobFinalized    = errors.New("job already finalized")
	ErrQueueClosed     = errors.New("queue closed")
)
