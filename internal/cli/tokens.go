package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docqa/internal/tokens"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens FILE",
	Short: "Estimate the token count of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}

func runTokens(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	text, err := newExtractor(cfg).Extract(cmd.Context(), filepath.Base(args[0]), "", data)
	if err != nil {
		return err
	}
	n := tokens.Estimate(text)
	cmd.Printf("%d tokens\n", n)
	if n > cfg.Generator.TokenThreshold {
		cmd.Printf("above the %d token threshold: summaries use map-reduce\n", cfg.Generator.TokenThreshold)
	}
	return nil
}
