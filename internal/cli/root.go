// Package cli implements the docqa command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"docqa/internal/logger"
)

var (
	cfgPath   string
	verbose   bool
	modelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Summarize and ask questions about a document with a local model",
	Long: `docqa extracts the text of a PDF, DOCX or plain text file, indexes it for
retrieval, and answers questions about it using only the retrieved passages.

Generation and embeddings run on Ollama by default; OpenAI-compatible
endpoints and a Qdrant vector store can be configured instead.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./docqa.yaml or ~/.config/docqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "generation model (default: first available preferred model)")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
