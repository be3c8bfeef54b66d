// Package output locates the MIDI and WAV renditions inside an engine package
// directory.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

// PackageSuffix is the directory suffix of engine packages.
const PackageSuffix = ".mcpkg"

// File extensions and MIME types of the two renditions.
const (
	ExtMIDI  = "mid"
	ExtAudio = "wav"

	MIMEMIDI  = "audio/midi"
	MIMEAudio = "audio/wav"
)

// File is a single rendition selected for download.
type File struct {
	Path      string
	MIMEType  string
	Extension string
	// FileName is the download name: the package name plus the extension.
	FileName string
}

// Rendition lists the files a package holds for one layer. AudioPath is
// empty when no audio was rendered.
type Rendition struct {
	MIDIPath  string
	AudioPath string
}

// Resolver inspects package directories on a filesystem.
type Resolver struct {
	fs afero.Fs
}

// NewResolver returns a Resolver over fs. A nil fs uses the OS filesystem.
func NewResolver(fs afero.Fs) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Resolver{fs: fs}
}

// Resolve picks the file to stream. With preferAudio the WAV wins when
// present; the MIDI is required in every case.
func (r *Resolver) Resolve(dir string, layer conductio.Layer, preferAudio bool) (File, error) {
	rendition, err := r.Locate(dir, layer)
	if err != nil {
		return File{}, err
	}
	if preferAudio && rendition.AudioPath != "" {
		return newFile(dir, rendition.AudioPath, ExtAudio, MIMEAudio), nil
	}
	return newFile(dir, rendition.MIDIPath, ExtMIDI, MIMEMIDI), nil
}

// Locate reports which renditions exist for layer in dir.
func (r *Resolver) Locate(dir string, layer conductio.Layer) (Rendition, error) {
	midi := filepath.Join(dir, string(layer)+"."+ExtMIDI)
	ok, err := r.isFile(midi)
	if err != nil {
		return Rendition{}, err
	}
	if !ok {
		return Rendition{}, fmt.Errorf("%w: %s", conductio.ErrFileNotFound, midi)
	}
	rendition := Rendition{MIDIPath: midi}

	audio := filepath.Join(dir, string(layer)+"."+ExtAudio)
	if ok, err := r.isFile(audio); err != nil {
		return Rendition{}, err
	} else if ok {
		rendition.AudioPath = audio
	}
	return rendition, nil
}

// DownloadName returns the attachment name for a file of dir.
func DownloadName(dir, ext string) string {
	return strings.TrimSuffix(filepath.Base(dir), PackageSuffix) + "." + ext
}

func (r *Resolver) isFile(path string) (bool, error) {
	info, err := r.fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

func newFile(dir, path, ext, mime string) File {
	return File{
		Path:      path,
		MIMEType:  mime,
		Extension: ext,
		FileName:  DownloadName(dir, ext),
	}
}

// MIMEFor returns the MIME type of a rendition path by extension.
func MIMEFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), "."+ExtAudio) {
		return MIMEAudio
	}
	return MIMEMIDI
}
