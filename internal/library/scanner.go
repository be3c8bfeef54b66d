// Package library lists the packages the engine has already written to its
// output directory and serves their files.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/output"
)

// ErrInvalidFileID is returned when a file id cannot name a package layer.
var ErrInvalidFileID = errors.New("invalid file id")

// idSeparator joins the package directory and the layer in a file id.
const idSeparator = output.PackageSuffix + "_"

// Metadata is the best-effort description of a stored package. The package
// format does not record request parameters, so fixed placeholders are used.
type Metadata struct {
	Genre      string `json:"genre"`
	Key        string `json:"key"`
	BPM        int    `json:"bpm"`
	Bars       int    `json:"bars"`
	Instrument string `json:"instrument"`
}

// PackageFile is one layer of a stored package.
type PackageFile struct {
	ID        string          `json:"id"`
	FileName  string          `json:"fileName"`
	Layer     conductio.Layer `json:"layer"`
	FilePath  string          `json:"filePath"`
	AudioPath string          `json:"audioPath,omitempty"`
	MIDIPath  string          `json:"midiPath"`
	CreatedAt time.Time       `json:"createdAt"`
	Metadata  Metadata        `json:"metadata"`
}

// Scanner reads an engine output directory.
type Scanner struct {
	fs       afero.Fs
	dir      string
	resolver *output.Resolver
	logger   *zap.Logger
}

// NewScanner returns a Scanner for dir on fs.
func NewScanner(fs afero.Fs, dir string, logger *zap.Logger) *Scanner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{fs: fs, dir: dir, resolver: output.NewResolver(fs), logger: logger}
}

// Scan lists every layer file found in the output directory, newest first.
// A missing output directory yields an empty list. Unreadable packages are
// logged and skipped.
func (s *Scanner) Scan() ([]PackageFile, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []PackageFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	files := make([]PackageFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), output.PackageSuffix) {
			continue
		}
		pkg, err := s.scanPackage(entry.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable package", zap.String("package", entry.Name()), zap.Error(err))
			continue
		}
		files = append(files, pkg...)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (s *Scanner) scanPackage(name string) ([]PackageFile, error) {
	dir := filepath.Join(s.dir, name)
	var files []PackageFile
	for _, layer := range conductio.Layers {
		rendition, err := s.resolver.Locate(dir, layer)
		if errors.Is(err, conductio.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		info, err := s.fs.Stat(rendition.MIDIPath)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", rendition.MIDIPath, err)
		}

		file := PackageFile{
			ID:        name + "_" + string(layer),
			FileName:  output.DownloadName(dir, output.ExtMIDI),
			Layer:     layer,
			FilePath:  rendition.MIDIPath,
			AudioPath: rendition.AudioPath,
			MIDIPath:  rendition.MIDIPath,
			CreatedAt: info.ModTime().UTC(),
			Metadata: Metadata{
				Genre:      "unknown",
				Key:        conductio.DefaultKey,
				BPM:        conductio.DefaultBPM,
				Bars:       conductio.DefaultBars,
				Instrument: conductio.DefaultInstrument,
			},
		}
		if rendition.AudioPath != "" {
			file.FileName = output.DownloadName(dir, output.ExtAudio)
			file.FilePath = rendition.AudioPath
		}
		files = append(files, file)
	}
	return files, nil
}

// Open resolves a file id to the rendition to stream.
func (s *Scanner) Open(fileID string, preferAudio bool) (output.File, error) {
	pkg, layer, err := ParseFileID(fileID)
	if err != nil {
		return output.File{}, err
	}
	return s.resolver.Resolve(filepath.Join(s.dir, pkg), layer, preferAudio)
}

// ParseFileID splits "<name>.mcpkg_<layer>" into the package directory name
// and the layer.
func ParseFileID(fileID string) (string, conductio.Layer, error) {
	idx := strings.LastIndex(fileID, idSeparator)
	if idx <= 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidFileID, fileID)
	}
	pkg := fileID[:idx+len(output.PackageSuffix)]
	layer := conductio.Layer(fileID[idx+len(idSeparator):])
	if !layer.Valid() {
		return "", "", fmt.Errorf("%w: unknown layer %q", ErrInvalidFileID, layer)
	}
	if pkg != filepath.Base(pkg) || strings.HasPrefix(pkg, ".") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidFileID, fileID)
	}
	return pkg, layer, nil
}
