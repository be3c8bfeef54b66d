// Package cmd defines the CLI commands of the conductio-api executable.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, generation, instrument and file library routes under /api plus
//     Prometheus metrics at /metrics. Requests are validated and normalized into conductio.GenerationRequest values.
//   - Engine: internal/engine runs the external generator as a subprocess with a timeout and an output cap, parses the
//     package directory from stdout and bounds concurrent runs with a semaphore shared by every caller.
//   - Async jobs: accepted jobs are recorded in the JobStore, pass through a bounded in-memory queue and are executed
//     by a fixed worker pool sized by jobs.workers. Finished jobs may be archived to a BlobStore (memory/local/GCS)
//     and announced on Pub/Sub.
//   - Configuration & plumbing: Viper populates config from defaults, an optional file and CONDUCTIO_* env vars (a
//     .env file is loaded first); zap provides structured logging.
//
// Operational notes:
//   - The sync route keeps the engine running when the client disconnects; only engine.timeout_seconds stops it.
//   - Shutdown on SIGINT/SIGTERM stops the HTTP server, closes the queue and lets workers drain for up to 10s.
//   - Run locally: go run . serve --config config.yaml (or rely solely on env overrides).
package cmd
