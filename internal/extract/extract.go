// Package extract turns uploaded files into plain text.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"docqa/internal/domain"
	"docqa/internal/logger"
)

// Supported MIME types.
const (
	MIMEPlain    = "text/plain"
	MIMEMarkdown = "text/markdown"
	MIMEDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEPDF      = "application/pdf"
)

var extensionTypes = map[string]string{
	".txt":      MIMEPlain,
	".text":     MIMEPlain,
	".md":       MIMEMarkdown,
	".markdown": MIMEMarkdown,
	".docx":     MIMEDocx,
	".pdf":      MIMEPDF,
}

// Registry selects an extractor by MIME type.
type Registry struct {
	byMIME map[string]domain.Extractor
	ocr    domain.Extractor
}

// Option configures a Registry.
type Option func(*Registry)

// WithPDFRunner replaces the command runner used for PDF extraction.
func WithPDFRunner(r CommandRunner) Option {
	return func(reg *Registry) {
		reg.byMIME[MIMEPDF] = NewPDF(r)
	}
}

// WithOCR routes PDF input through a remote analyzer instead of pdftotext.
func WithOCR(ocr domain.Extractor) Option {
	return func(reg *Registry) { reg.ocr = ocr }
}

// NewRegistry creates a registry with the plain text, DOCX and PDF extractors.
func NewRegistry(opts ...Option) *Registry {
	plain := Plaintext{}
	r := &Registry{byMIME: map[string]domain.Extractor{
		MIMEPlain:    plain,
		MIMEMarkdown: plain,
		MIMEDocx:     Docx{},
		MIMEPDF:      NewPDF(ExecRunner{}),
	}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the extractor for mimeType.
func (r *Registry) Register(mimeType string, e domain.Extractor) {
	r.byMIME[baseType(mimeType)] = e
}

// Supported reports whether mimeType has an extractor.
func (r *Registry) Supported(mimeType string) bool {
	_, ok := r.byMIME[baseType(mimeType)]
	return ok
}

// Extract returns the plain text of data. An empty or generic MIME type is
// resolved from the content, then from the filename extension.
func (r *Registry) Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error) {
	mt := baseType(mimeType)
	if mt == "" || mt == "application/octet-stream" {
		mt = r.Detect(filename, data)
		logger.Debug("detected %s as %s", filename, mt)
	}
	if mt == MIMEPDF && r.ocr != nil {
		return r.ocr.Extract(ctx, filename, mt, data)
	}
	e, ok := r.byMIME[mt]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, mt)
	}
	return e.Extract(ctx, filename, mt, data)
}

// Detect guesses the MIME type of a file, preferring a supported type.
func (r *Registry) Detect(filename string, data []byte) string {
	sniffed := baseType(mimetype.Detect(data).String())
	if _, ok := r.byMIME[sniffed]; ok {
		return sniffed
	}
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return sniffed
}

func baseType(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// ExtractorFunc adapts a function to domain.Extractor.
type ExtractorFunc func(ctx context.Context, filename, mimeType string, data []byte) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error) {
	return f(ctx, filename, mimeType, data)
}
