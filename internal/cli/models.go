package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List generation models available on the backend",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	names, err := a.gen.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	heading(cmd, "Models")
	if len(names) == 0 {
		cmd.Println("  (none)")
	}
	for _, n := range names {
		cmd.Printf("  %s\n", n)
	}
	if resolved, err := a.gen.ResolveModel(ctx, a.cfg.Generator.Model); err == nil {
		cmd.Printf("\nDefault: %s\n", resolved)
	}
	return nil
}
