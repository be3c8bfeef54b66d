package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/config"
	memorypublisher "github.com/JakeFAU/conductio-api/internal/publisher/memory"
	localstorage "github.com/JakeFAU/conductio-api/internal/storage/local"
	memoryStorage "github.com/JakeFAU/conductio-api/internal/storage/memory"
)

// engineScript mimics the engine: it writes a MIDI file into a package
// directory and announces it on stdout. $2 is the layer.
const engineScript = `#!/bin/sh
mkdir -p output/e2e_$2.mcpkg
printf 'MThd' > output/e2e_$2.mcpkg/$2.mid
echo "✅ Saved $2 MIDI to output/e2e_$2.mcpkg/$2.mid"
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.sh"), []byte(engineScript), 0o600))
	cfg.Server.Port = 0
	cfg.Engine.Dir = dir
	cfg.Engine.Command = "sh"
	cfg.Engine.Script = "engine.sh"
	cfg.Engine.TimeoutSeconds = 10
	cfg.Jobs.Workers = 1
	cfg.Storage.Provider = config.StorageMemory
	return cfg
}

func TestBuildServesAsyncJobsEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.dispatch.Run(ctx)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate/async",
		bytes.NewBufferString(`{"layer":"bass","renderAudio":false}`))
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.Data.ID)

	var status struct {
		Data struct {
			Status string `json:"status"`
			Result struct {
				MIDIFile string `json:"midiFile"`
				Archive  struct {
					MIDI string `json:"midi"`
				} `json:"archive"`
			} `json:"result"`
		} `json:"data"`
	}
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generate/status/"+accepted.Data.ID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Data.Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, filepath.Join(cfg.Engine.Dir, "output/e2e_bass.mcpkg/bass.mid"), status.Data.Result.MIDIFile)
	require.Equal(t, "memory://generations/"+accepted.Data.ID+"/bass.mid", status.Data.Result.Archive.MIDI)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generate/download/"+accepted.Data.ID+"/midi", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MThd", rec.Body.String())
	require.Equal(t, `attachment; filename="e2e_bass.mid"`, rec.Header().Get("Content-Disposition"))

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "e2e_bass.mcpkg_bass")
}

func TestBuildServesSyncGeneration(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t), nil, zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{"layer":"drums"}`))
	app.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "audio/midi", rec.Header().Get("Content-Type"))
	require.Equal(t, "MThd", rec.Body.String())
}

func TestBuildRejectsBadOutputPattern(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.OutputPattern = "no capture group"

	_, err := Build(context.Background(), cfg, nil, zap.NewNop())
	require.ErrorContains(t, err, "capture group")
}

func TestSetupStorage(t *testing.T) {
	cfg := testConfig(t)
	app := &App{cfg: cfg, logger: zap.NewNop(), fs: afero.NewMemMapFs()}

	app.cfg.Storage.Provider = config.StorageNone
	store, err := setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.Nil(t, store)

	app.cfg.Storage.Provider = config.StorageMemory
	store, err = setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &memoryStorage.BlobStore{}, store)

	app.cfg.Storage.Provider = config.StorageLocal
	app.cfg.Storage.BaseDir = "/archive"
	store, err = setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &localstorage.BlobStore{}, store)

	app.fs = afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err = setupStorage(context.Background(), app)
	require.ErrorContains(t, err, "local blob store init failed")
}

func TestSetupPublisherFallsBackToMemory(t *testing.T) {
	app := &App{cfg: testConfig(t), logger: zap.NewNop()}
	publisher, err := setupPublisher(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &memorypublisher.Publisher{}, publisher)
	require.Nil(t, app.pubsubClient)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t), afero.NewMemMapFs(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.Equal(t, 0, app.dispatch.Size())
}
