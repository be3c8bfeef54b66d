package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

const (
	probeOutputLimit = 64 * 1024
	logExcerptLimit  = 2048
)

// Config controls how the engine is located and invoked.
type Config struct {
	// Dir is the engine's working directory; package paths are relative to it.
	Dir string
	// Command is the executable, resolved relative to Dir when it contains a slash.
	Command string
	// Script is passed as the first argument when non-empty (e.g. main.py).
	Script         string
	Timeout        time.Duration
	MaxOutputBytes int
	ProbeTimeout   time.Duration
	// ProbeMarker must appear in the version probe output; empty means any
	// successful exit counts as available.
	ProbeMarker    string
	CatalogTimeout time.Duration
}

// Invoker runs the external engine. It implements conductio.Generator,
// conductio.Prober and conductio.Catalog.
type Invoker struct {
	cfg    Config
	runner Runner
	parser OutputParser
	logger *zap.Logger
}

// NewInvoker constructs an Invoker. A nil runner uses ExecRunner and a nil
// parser uses the default MarkerParser.
func NewInvoker(cfg Config, runner Runner, parser OutputParser, logger *zap.Logger) *Invoker {
	if runner == nil {
		runner = ExecRunner{}
	}
	if parser == nil {
		parser, _ = NewMarkerParser(DefaultOutputPattern) //nolint:errcheck // default pattern compiles.
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{cfg: cfg, runner: runner, parser: parser, logger: logger}
}

// BuildArgs returns the engine flags for req. The instrument is normalized.
func BuildArgs(req conductio.GenerationRequest) []string {
	args := []string{
		"--layer", string(req.Layer),
		"--key", req.Key,
		"--bpm", strconv.Itoa(req.BPM),
		"--bars", strconv.Itoa(req.Bars),
		"--instrument", NormalizeInstrument(req.Instrument),
		"--genre", req.Genre,
	}
	if !req.RenderAudio {
		args = append(args, "--no-audio")
	}
	return args
}

// Generate runs the engine for req and returns the absolute package directory.
func (i *Invoker) Generate(ctx context.Context, req conductio.GenerationRequest) (string, error) {
	args := i.withScript(BuildArgs(req)...)
	i.logger.Info("invoking engine",
		zap.String("layer", string(req.Layer)),
		zap.String("command", i.cfg.Command),
		zap.Strings("args", args),
	)

	out, err := i.runner.Run(ctx, Command{
		Dir:       i.cfg.Dir,
		Name:      i.cfg.Command,
		Args:      args,
		Timeout:   i.cfg.Timeout,
		MaxOutput: i.cfg.MaxOutputBytes,
	})
	if len(out.Stderr) > 0 {
		i.logger.Warn("engine stderr", zap.ByteString("stderr", tail(out.Stderr)))
	}
	if err != nil {
		i.logger.Error("engine invocation failed", zap.String("layer", string(req.Layer)), zap.Error(err))
		return "", fmt.Errorf("generate %s: %w", req.Layer, err)
	}
	i.logger.Debug("engine output", zap.ByteString("stdout", tail(out.Stdout)))

	rel, err := i.parser.Parse(out.Stdout)
	if err != nil {
		i.logger.Error("engine output did not contain the success marker; output format may have changed",
			zap.String("layer", string(req.Layer)),
			zap.ByteString("stdout", tail(out.Stdout)),
		)
		return "", fmt.Errorf("generate %s: %w", req.Layer, err)
	}
	return filepath.Join(i.cfg.Dir, rel), nil
}

// Probe checks that the engine directory exists and a version probe succeeds.
func (i *Invoker) Probe(ctx context.Context) error {
	info, err := os.Stat(i.cfg.Dir)
	if err != nil {
		return fmt.Errorf("%w: %w", conductio.ErrToolUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", conductio.ErrToolUnavailable, i.cfg.Dir)
	}
	out, err := i.runner.Run(ctx, Command{
		Dir:       i.cfg.Dir,
		Name:      i.cfg.Command,
		Args:      []string{"--version"},
		Timeout:   i.cfg.ProbeTimeout,
		MaxOutput: probeOutputLimit,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", conductio.ErrToolUnavailable, err)
	}
	if i.cfg.ProbeMarker == "" {
		return nil
	}
	marker := []byte(i.cfg.ProbeMarker)
	if !bytes.Contains(out.Stdout, marker) && !bytes.Contains(out.Stderr, marker) {
		return fmt.Errorf("%w: version output missing %q", conductio.ErrToolUnavailable, i.cfg.ProbeMarker)
	}
	return nil
}

// Available reports whether Probe succeeds.
func (i *Invoker) Available(ctx context.Context) bool {
	if err := i.Probe(ctx); err != nil {
		i.logger.Warn("engine availability check failed", zap.Error(err))
		return false
	}
	return true
}

// Instruments runs the inline catalog script and decodes its JSON output.
func (i *Invoker) Instruments(ctx context.Context) ([]conductio.Instrument, error) {
	out, err := i.runner.Run(ctx, Command{
		Dir:       i.cfg.Dir,
		Name:      i.cfg.Command,
		Args:      []string{"-c", catalogScript},
		Timeout:   i.cfg.CatalogTimeout,
		MaxOutput: i.cfg.MaxOutputBytes,
	})
	if len(out.Stderr) > 0 {
		i.logger.Warn("instrument catalog stderr", zap.ByteString("stderr", tail(out.Stderr)))
	}
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	var instruments []conductio.Instrument
	if err := json.Unmarshal(bytes.TrimSpace(out.Stdout), &instruments); err != nil {
		return nil, fmt.Errorf("decode instrument catalog: %w", err)
	}
	return instruments, nil
}

func (i *Invoker) withScript(args ...string) []string {
	if i.cfg.Script == "" {
		return args
	}
	return append([]string{i.cfg.Script}, args...)
}

func tail(b []byte) []byte {
	if len(b) <= logExcerptLimit {
		return b
	}
	return b[len(b)-logExcerptLimit:]
}
