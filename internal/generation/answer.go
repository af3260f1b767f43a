package generation

import (
	"context"

	"docqa/internal/domain"
)

// AnswerFailureMessage is shown to users when no model could produce an answer.
const AnswerFailureMessage = "I'm having technical difficulties generating an answer right now. Please try again in a moment."

// Answer streams an answer to question grounded in chunks, which must be ordered
// nearest first. The first unit carries chunks as provenance. Failures never escape
// as errors: the stream ends with a single unit flagged as an error and carrying a
// user-safe message. Consumers must drain the channel or cancel ctx.
func (c *Client) Answer(ctx context.Context, question string, chunks []string, model string) <-chan domain.StreamUnit {
	out := make(chan domain.StreamUnit, 16)
	sources := append([]string(nil), chunks...)
	go func() {
		defer close(out)
		s := &streamer{ctx: ctx, out: out, sources: sources}
		_, err := c.stream(ctx, model, answerPrompt(question, sources), s)
		s.finish(err, AnswerFailureMessage)
	}()
	return out
}
