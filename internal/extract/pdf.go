package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"docqa/internal/domain"
)

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils (apt install poppler-utils, brew install poppler)")

const pdfTool = "pdftotext"

// CommandRunner runs an external program with stdin and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, stdin []byte, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name. A missing binary is reported as exec.ErrNotFound.
func (ExecRunner) Run(ctx context.Context, name string, stdin []byte, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// PDF extracts text with pdftotext.
type PDF struct {
	runner CommandRunner
}

// NewPDF creates a PDF extractor.
func NewPDF(r CommandRunner) *PDF {
	if r == nil {
		r = ExecRunner{}
	}
	return &PDF{runner: r}
}

// Extract pipes data through pdftotext in layout mode.
func (p *PDF) Extract(ctx context.Context, filename, _ string, data []byte) (string, error) {
	out, err := p.runner.Run(ctx, pdfTool, data, "-layout", "-enc", "UTF-8", "-", "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrPDFToolNotFound
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrDecode, filename, err)
	}
	return string(out), nil
}
