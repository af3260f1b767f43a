package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// sentences builds n sentences of exactly width characters including the trailing space.
func sentences(n, width int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(strings.Repeat("x", width-2))
		b.WriteString(". ")
	}
	return b.String()
}

func TestNew_Defaults(t *testing.T) {
	c := New(0, -1)
	assert.Equal(t, DefaultSize, c.Size())
	assert.Equal(t, 0, c.Overlap())

	c = New(100, 100)
	assert.Equal(t, 10, c.Overlap())
}

func TestSplit_Empty(t *testing.T) {
	c := New(SummarySize, 0)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("  \n\n \t"))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	c := New(SummarySize, 0)
	assert.Equal(t, []string{"A. B. C."}, c.Split("A. B. C."))
}

func TestSplit_ParagraphsPackedGreedily(t *testing.T) {
	c := New(30, 0)
	text := "first paragraph\n\nsecond one\n\nthird paragraph here"
	got := c.Split(text)
	require.Len(t, got, 2)
	assert.Equal(t, "first paragraph\n\nsecond one", got[0])
	assert.Equal(t, "third paragraph here", got[1])
}

func TestSplit_LongParagraphWithOverlap(t *testing.T) {
	text := sentences(30, 100)
	require.Equal(t, 3000, len(text))

	c := New(SummarySize, DefaultOverlap)
	got := c.Split(text)
	require.Len(t, got, 2)
	for _, ch := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), SummarySize)
	}

	tail := got[0][len(got[0])-DefaultOverlap:]
	assert.True(t, strings.HasPrefix(got[1], tail), "second chunk should start with the tail of the first")
}

func TestSplit_NoOverlapPreservesContent(t *testing.T) {
	inputs := []string{
		sentences(45, 37),
		"Intro line.\n\n" + sentences(20, 61) + "\n\nClosing words! Really? Yes.",
		"Zeile eins. Zweite Zeile mit Umlauten äöü.\nDritte Zeile.\n\n\n\nNach vielen Leerzeilen.",
	}
	for i, text := range inputs {
		t.Run(fmt.Sprintf("input-%d", i), func(t *testing.T) {
			c := New(120, 0)
			got := c.Split(text)
			require.NotEmpty(t, got)
			for _, ch := range got {
				assert.NotEmpty(t, ch)
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), 120)
			}
			assert.Equal(t, stripSpace(text), stripSpace(strings.Join(got, "")))
		})
	}
}

func TestSplit_OversizedSentenceKeptWhole(t *testing.T) {
	long := strings.Repeat("y", 80)
	text := "short one. " + long + " and more. tail."
	c := New(40, 5)
	got := c.Split(text)

	var found bool
	for _, ch := range got {
		if strings.Contains(ch, long) {
			found = true
		}
	}
	assert.True(t, found, "oversized sentence must survive intact")
	assert.Contains(t, strings.Join(got, " "), "tail.")
}

func TestSplit_OverlapNeverPushesChunkOverSize(t *testing.T) {
	c := New(DefaultSize, DefaultOverlap)
	text := sentences(40, 490)
	for _, ch := range c.Split(text) {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), DefaultSize)
	}
}
