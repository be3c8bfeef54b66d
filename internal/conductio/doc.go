// Package conductio defines the core types shared across the generation
// gateway: requests, jobs, results and the interfaces the API, worker and
// engine adapters are wired through.
package conductio
