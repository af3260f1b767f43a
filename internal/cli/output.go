package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docqa/internal/domain"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// heading prints a section title, styled only when writing to a terminal.
func heading(cmd *cobra.Command, title string) {
	if isTerminal(cmd.OutOrStdout()) {
		cmd.Println(headingStyle.Render(title))
		return
	}
	cmd.Println(title)
}

// printStream copies a generation stream to the command output. A failed
// stream prints its user-facing message and returns the underlying error.
func printStream(cmd *cobra.Command, ch <-chan domain.StreamUnit, showSources bool) error {
	var (
		sources []string
		failure error
	)
	for u := range ch {
		if len(u.Sources) > 0 {
			sources = u.Sources
		}
		if u.IsError() {
			failure = u.Err
			if u.ErrorMessage != "" {
				cmd.Print(u.ErrorMessage)
			}
			continue
		}
		cmd.Print(u.Content)
	}
	cmd.Println()
	if showSources && len(sources) > 0 {
		cmd.Println()
		heading(cmd, "Sources")
		for i, s := range sources {
			cmd.Printf("[%d] %s\n", i+1, s)
		}
	}
	if failure != nil {
		return fmt.Errorf("generation failed: %w", failure)
	}
	return nil
}

var errNotInteractive = errors.New("chat needs an interactive terminal; use summarize, questions or ask instead")
