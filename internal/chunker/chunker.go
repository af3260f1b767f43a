// Package chunker splits document text into bounded, overlapping segments.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultSize is the target chunk length, in characters, used for retrieval.
	DefaultSize = 500
	// DefaultOverlap is the number of characters repeated between consecutive retrieval chunks.
	DefaultOverlap = 50
	// SummarySize is the target chunk length used by map-reduce summarization.
	SummarySize = 2000
)

var (
	paragraphBreakRe = regexp.MustCompile(`\n[ \t]*\n\s*`)
	sentenceBreakRe  = regexp.MustCompile(`[.!?][ \t]+|\n\s*`)
)

// Chunker greedily packs paragraphs, then sentences, into chunks of at most size characters.
// A single sentence longer than size becomes its own oversized chunk; nothing is truncated.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Overlap is clamped to [0, size).
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the target chunk length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered chunks of text. Blank input yields no chunks.
func (c *Chunker) Split(text string) []string {
	var (
		chunks  []string
		current string
		filled  bool // current holds at least one unit beyond carried overlap
	)
	for _, u := range c.units(text) {
		if filled && runeLen(strings.TrimSpace(current+u)) > c.size {
			emitted := strings.TrimSpace(current)
			chunks = append(chunks, emitted)
			current = c.carry(emitted, trailingSpace(current), u)
			filled = false
		}
		current += u
		filled = true
	}
	if filled {
		if last := strings.TrimSpace(current); last != "" {
			chunks = append(chunks, last)
		}
	}
	return chunks
}

// units cuts text into paragraphs, and paragraphs longer than size into sentences.
// Every unit keeps its trailing whitespace so the units concatenate back to text.
func (c *Chunker) units(text string) []string {
	var out []string
	for _, p := range cutAfter(text, paragraphBreakRe) {
		if runeLen(strings.TrimSpace(p)) <= c.size {
			out = appendUnit(out, p)
			continue
		}
		for _, s := range cutAfter(p, sentenceBreakRe) {
			out = appendUnit(out, s)
		}
	}
	return out
}

// carry returns the start of the next chunk: up to overlap characters from the tail of
// the emitted chunk, shortened so that it plus the next unit still fits.
func (c *Chunker) carry(emitted, sep, next string) string {
	n := c.overlap
	if room := c.size - runeLen(sep) - runeLen(strings.TrimSpace(next)); room < n {
		n = room
	}
	if n <= 0 {
		return ""
	}
	tail := strings.TrimLeftFunc(lastRunes(emitted, n), unicode.IsSpace)
	if tail == "" {
		return ""
	}
	return tail + sep
}

func cutAfter(s string, re *regexp.Regexp) []string {
	var out []string
	start := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		out = append(out, s[start:loc[1]])
		start = loc[1]
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// appendUnit folds whitespace-only pieces into the previous unit.
func appendUnit(units []string, u string) []string {
	if strings.TrimSpace(u) == "" {
		if len(units) > 0 {
			units[len(units)-1] += u
		}
		return units
	}
	return append(units, u)
}

func trailingSpace(s string) string {
	return s[len(strings.TrimRightFunc(s, unicode.IsSpace)):]
}

func lastRunes(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
