package cli

import (
	"github.com/spf13/cobra"
)

var (
	askTopK    int
	askSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask FILE QUESTION",
	Short: "Answer a question using passages from a document",
	Long: `Retrieves the passages of FILE most similar to QUESTION and streams an
answer grounded only in them.`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "print the passages the answer is based on")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	k := askTopK
	if k <= 0 {
		k = a.cfg.Retrieval.TopK
	}
	ch, err := s.Ask(ctx, args[1], k)
	if err != nil {
		return err
	}
	return printStream(cmd, ch, askSources)
}
