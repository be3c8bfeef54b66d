// Package engine adapts the external music-generation tool. It builds the
// command line for a request, runs the tool as a bounded subprocess, and
// extracts the created package directory from its standard output. The
// stdout contract is isolated behind OutputParser so a structured manifest
// could replace it without touching callers.
package engine
