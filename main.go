// Package main is the entry point for the yt-web-downloader service.
package main

import (
	"fmt"
	"os"

	"github.com/ytget/yt-web-downloader/cmd"
)

// Build information injected via ldflags, e.g. -X main.version=X.Y.Z
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
