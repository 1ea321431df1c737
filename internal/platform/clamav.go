package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ClamAV constants
const (
	ClamScanCommand   = "clamscan"
	ClamNoSummaryFlag = "--no-summary"
	ClamCleanMarker   = "OK"
	ClamInfectedCode  = 1
)

// ClamScanner checks files with the clamscan command line tool
type ClamScanner struct {
	executable string
}

// NewClamScanner creates a scanner; an empty path uses clamscan from PATH
func NewClamScanner(executable string) *ClamScanner {
	if executable == "" {
		executable = ClamScanCommand
	}
	return &ClamScanner{executable: executable}
}

// Scan returns true when the file is clean. Any failure to reach a verdict
// is returned as an error.
func (c *ClamScanner) Scan(ctx context.Context, path string) (bool, error) {
	cmd := exec.CommandContext(ctx, c.executable, ClamNoSummaryFlag, path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return false, fmt.Errorf("failed to run %s: %w", c.executable, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return scanVerdict(exitCode, stdout.String(), stderr.String())
}

// scanVerdict interprets clamscan's exit code and output
func scanVerdict(exitCode int, stdout, stderr string) (bool, error) {
	switch exitCode {
	case 0:
		if !strings.Contains(stdout, ClamCleanMarker) {
			return false, fmt.Errorf("unexpected scanner output: %q", strings.TrimSpace(stdout))
		}
		return true, nil
	case ClamInfectedCode:
		return false, nil
	default:
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = strings.TrimSpace(stdout)
		}
		return false, fmt.Errorf("scanner exited with code %d: %s", exitCode, msg)
	}
}

// AllowAllScanner accepts every file. Used when scanning is disabled.
type AllowAllScanner struct{}

// Scan always reports the file as clean
func (AllowAllScanner) Scan(context.Context, string) (bool, error) {
	return true, nil
}
