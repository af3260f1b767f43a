package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"docqa/internal/domain"
)

// Docx extracts paragraph text from word/document.xml.
type Docx struct{}

// Extract returns one line per paragraph.
func (Docx) Extract(_ context.Context, filename, _ string, data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a DOCX archive: %v", domain.ErrDecode, filename, err)
	}
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open document.xml: %v", domain.ErrDecode, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: read document.xml: %v", domain.ErrDecode, err)
		}
		return parseDocumentXML(content)
	}
	return "", fmt.Errorf("%w: %s has no word/document.xml", domain.ErrDecode, filename)
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs       []run `xml:"r"`
	Hyperlinks []struct {
		Runs []run `xml:"r"`
	} `xml:"hyperlink"`
}

type run struct {
	Text []struct {
		Content string `xml:",chardata"`
	} `xml:"t"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("%w: document.xml: %v", domain.ErrDecode, err)
	}
	var b strings.Builder
	for _, para := range doc.Body.Paragraphs {
		writeRuns(&b, para.Runs)
		for _, h := range para.Hyperlinks {
			writeRuns(&b, h.Runs)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func writeRuns(b *strings.Builder, runs []run) {
	for _, r := range runs {
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
	}
}
