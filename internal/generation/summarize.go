package generation

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/tokens"
)

// Summarize streams a summary of text. Texts estimated at or below the token
// threshold are summarized in one call; longer texts are summarized chunk by chunk
// and the partial summaries merged by a final streamed call.
// Failures end the stream with an error unit carrying the underlying error.
// Consumers must drain the channel or cancel ctx.
func (c *Client) Summarize(ctx context.Context, text, model string) <-chan domain.StreamUnit {
	out := make(chan domain.StreamUnit, 16)
	go func() {
		defer close(out)
		s := &streamer{ctx: ctx, out: out}
		err := c.summarize(ctx, text, model, s)
		if err != nil {
			s.finish(err, fmt.Sprintf("Error generating summary: %v", err))
			return
		}
		s.finish(nil, "")
	}()
	return out
}

func (c *Client) summarize(ctx context.Context, text, model string, s *streamer) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: nothing to summarize", domain.ErrInvalidInput)
	}
	estimate := tokens.Estimate(text)
	if estimate <= c.cfg.TokenThreshold {
		logger.Debug("summarizing directly (%d estimated tokens)", estimate)
		_, err := c.stream(ctx, model, directSummaryPrompt(text), s)
		return err
	}

	pieces := c.splitter.Split(text)
	logger.Debug("summarizing %d chunks (%d estimated tokens)", len(pieces), estimate)
	partials := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		summary, used, err := c.complete(ctx, model, mapSummaryPrompt(piece))
		if err != nil {
			return fmt.Errorf("summarize part %d of %d: %w", i+1, len(pieces), err)
		}
		model = used
		partials = append(partials, strings.TrimSpace(summary))
	}
	_, err := c.stream(ctx, model, reduceSummaryPrompt(strings.Join(partials, "\n\n")), s)
	return err
}
