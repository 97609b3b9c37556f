// Package main is the entry point for the audioident CLI.
//
// Usage:
//
//	audioident [flags] <command> [args]
//
// Commands:
//
//	serve      - Run the HTTP identification service
//	ingest     - Batch-ingest audio files or directories
//	tracks     - List cataloged tracks
//	remove     - Remove a track from every store
//	reindex    - Rebuild a track's fingerprints and embeddings
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/MacPhobos/audio-ident-sub000/cmd/audioident/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
