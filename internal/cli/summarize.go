package cli

import (
	"github.com/spf13/cobra"

	"docqa/internal/logger"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize FILE",
	Short: "Stream a summary of a document",
	Long: `Extracts and indexes FILE, then streams a summary. Long documents are
summarized section by section and the partial summaries are combined.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	s, err := a.openDocument(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeSession(s)
	logger.Info("document is about %d tokens", s.EstimateTokens())

	ch, err := s.Summarize(ctx)
	if err != nil {
		return err
	}
	return printStream(cmd, ch, false)
}
