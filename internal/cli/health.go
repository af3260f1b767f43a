package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the model backend and vector index respond",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	s := a.newSession()
	defer closeSession(s)

	var failed bool
	if models, err := a.gen.Refresh(ctx); err != nil {
		cmd.Printf("generator: FAIL (%v)\n", err)
		failed = true
	} else {
		cmd.Printf("generator: ok (%d models)\n", len(models))
	}
	if err := s.Health(ctx); err != nil {
		cmd.Printf("retrieval: FAIL (%v)\n", err)
		failed = true
	} else {
		cmd.Println("retrieval: ok")
	}
	if failed {
		return errors.New("unhealthy")
	}
	return nil
}
