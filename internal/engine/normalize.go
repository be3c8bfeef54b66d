package engine

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

var (
	separatorRun = regexp.MustCompile(`[- ]+`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_]`)
)

// instrumentCorrections maps common aliases and misspellings to the engine's
// canonical General MIDI tokens. No value may also appear as a key.
var instrumentCorrections = map[string]string{
	"honkey_tonk_piano": "honky_tonk_piano",
	"honky_tonk":        "honky_tonk_piano",
	"piano":             "acoustic_grand_piano",
	"guitar":            "acoustic_guitar_steel",
	"bass":              "electric_bass_finger",
	"violin_1":          "violin",
	"strings":           "violin",
}

// NormalizeInstrument converts a user supplied instrument name into the token
// the engine expects. "auto" passes through unchanged.
func NormalizeInstrument(name string) string {
	if name == conductio.DefaultInstrument {
		return name
	}
	normalized := strings.ToLower(name)
	normalized = separatorRun.ReplaceAllString(normalized, "_")
	normalized = invalidChars.ReplaceAllString(normalized, "")
	if corrected, ok := instrumentCorrections[normalized]; ok {
		return corrected
	}
	return normalized
}
