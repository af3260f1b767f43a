package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrequency_Summarize(t *testing.T) {
	text := "Solar panels convert sunlight into electricity. " +
		"The weather was nice. " +
		"Solar electricity from panels reduces electricity bills. " +
		"Cats enjoy naps. " +
		"Panels need sunlight to produce solar electricity."

	got := NewFrequency().Summarize(text, 2)
	assert.Equal(t, "Solar panels convert sunlight into electricity. Solar electricity from panels reduces electricity bills.", got)
}

func TestFrequency_ShortTextReturnedWhole(t *testing.T) {
	got := NewFrequency().Summarize("One sentence.\n\nAnother   one!", 5)
	assert.Equal(t, "One sentence. Another one!", got)
}

func TestFrequency_TrailingSentenceWithoutPunctuation(t *testing.T) {
	got := NewFrequency().Summarize("First point. Second point", 0)
	assert.Equal(t, "First point. Second point", got)
}

func TestFrequency_EmptyText(t *testing.T) {
	assert.Empty(t, NewFrequency().Summarize("  \n ", 3))
}

func TestFrequency_BoundsLength(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma. ", 20)
	got := NewFrequency().Summarize(text, 3)
	assert.Equal(t, 3, strings.Count(got, "."))
}
