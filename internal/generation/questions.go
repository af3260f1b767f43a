package generation

import (
	"context"
	"regexp"
	"strings"

	"docqa/internal/logger"
)

// QuestionCount is the number of suggested questions always returned.
const QuestionCount = 3

// GenericQuestions fill in when the model yields too few questions or fails.
var GenericQuestions = [QuestionCount]string{
	"What is the main topic of this document?",
	"What are the key points or findings presented?",
	"What conclusions or recommendations does the document make?",
}

// Questions is the result of GenerateQuestions.
type Questions struct {
	Items []string
	Model string
	// Degraded is set when the model could not be used and Items are generic.
	Degraded bool
}

var listMarkerRe = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s+`)

// GenerateQuestions proposes exactly three questions about a document summary.
// It never fails: exhausted retries yield generic questions with Degraded set.
func (c *Client) GenerateQuestions(ctx context.Context, summary, model string) Questions {
	if strings.TrimSpace(summary) == "" {
		return Questions{Items: GenericQuestions[:], Degraded: true}
	}
	raw, used, err := c.complete(ctx, model, questionsPrompt(summary))
	if err != nil {
		logger.Warn("question generation failed, using generic questions: %v", err)
		return Questions{Items: GenericQuestions[:], Model: used, Degraded: true}
	}
	return Questions{Items: ParseQuestions(raw), Model: used}
}

// ParseQuestions keeps non-empty lines ending in "?" and forces exactly three
// entries, padding with generic questions.
func ParseQuestions(raw string) []string {
	out := make([]string, 0, QuestionCount)
	seen := map[string]bool{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasSuffix(line, "?") {
			continue
		}
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		if line == "?" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
		if len(out) == QuestionCount {
			return out
		}
	}
	for _, g := range GenericQuestions {
		if len(out) == QuestionCount {
			break
		}
		if !seen[g] {
			out = append(out, g)
		}
	}
	return out
}
