package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/logger"
)

var questionsJSON bool

var questionsCmd = &cobra.Command{
	Use:   "questions FILE",
	Short: "Suggest three questions about a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestions,
}

func init() {
	questionsCmd.Flags().BoolVar(&questionsJSON, "json", false, "output questions as JSON")
	rootCmd.AddCommand(questionsCmd)
}

func runQuestions(cmd *cobra.Command, args []string) error {
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

	q, err := s.SuggestQuestions(ctx)
	if err != nil {
		return err
	}
	if q.Degraded {
		logger.Warn("no model produced questions; showing generic ones")
	}
	if questionsJSON {
		data, err := json.MarshalIndent(q.Items, "", "  ")
		if err != nil {
			return fmt.Errorf("encode questions: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	for i, item := range q.Items {
		cmd.Printf("%d. %s\n", i+1, item)
	}
	return nil
}
