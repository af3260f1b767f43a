// Package tokens approximates how many model tokens a text will consume.
package tokens

import (
	"regexp"
	"strings"
)

var (
	punctuationRe = regexp.MustCompile(`[.,!?;:"]`)
	symbolRe      = regexp.MustCompile("[@#$%^&*()<>{}\\[\\]~`_\\-+=|\\\\]")
	digitRunRe    = regexp.MustCompile(`\d+`)
)

// Estimate returns words + punctuation marks + symbol characters + digit runs.
// It is a deterministic heuristic, not a tokenizer.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text)) +
		len(punctuationRe.FindAllStringIndex(text, -1)) +
		len(symbolRe.FindAllStringIndex(text, -1)) +
		len(digitRunRe.FindAllStringIndex(text, -1))
}
