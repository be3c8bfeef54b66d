package engine

import (
	"fmt"
	"regexp"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

// DefaultOutputPattern matches the engine's success line, for example
// "✅ Saved melody MIDI to output/wild_canyon_melody.mcpkg/melody.mid".
// The first capture group is the package directory relative to the engine.
const DefaultOutputPattern = `✅ Saved \w+ MIDI to (output/[^/\s]+\.mcpkg)`

// OutputParser extracts the package directory from engine stdout.
type OutputParser interface {
	Parse(stdout []byte) (string, error)
}

// MarkerParser finds the package directory with a regular expression.
type MarkerParser struct {
	pattern *regexp.Regexp
}

// NewMarkerParser compiles pattern, falling back to DefaultOutputPattern.
func NewMarkerParser(pattern string) (*MarkerParser, error) {
	if pattern == "" {
		pattern = DefaultOutputPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile output pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("output pattern %q needs a capture group for the package path", pattern)
	}
	return &MarkerParser{pattern: re}, nil
}

// Parse returns the relative package directory announced on stdout.
func (p *MarkerParser) Parse(stdout []byte) (string, error) {
	match := p.pattern.FindSubmatch(stdout)
	if match == nil || len(match[1]) == 0 {
		return "", conductio.ErrOutputParse
	}
	return string(match[1]), nil
}
