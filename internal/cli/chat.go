package cli

import (
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docqa/internal/logger"
	"docqa/internal/tui"
)

var chatWatch bool

var chatCmd = &cobra.Command{
	Use:   "chat FILE",
	Short: "Open an interactive session about a document",
	Long: `Indexes FILE, streams a summary, suggests three questions and then
answers questions in a terminal UI. With --watch the document is re-indexed
whenever the file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVarP(&chatWatch, "watch", "w", false, "reload the document when the file changes")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !isTerminal(cmd.OutOrStdout()) {
		return errNotInteractive
	}
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	path := args[0]
	s, err := a.openDocument(ctx, path)
	if err != nil {
		return err
	}
	defer closeSession(s)

	p := tea.NewProgram(tui.New(ctx, s, a.cfg.Retrieval.TopK), tea.WithAltScreen(), tea.WithContext(ctx))
	if chatWatch {
		err := watchFile(ctx, path, watchDebounce, func() {
			data, err := os.ReadFile(path)
			if err != nil {
				p.Send(tui.ReloadedMsg{Err: err})
				return
			}
			st, err := s.Load(ctx, filepath.Base(path), "", data)
			p.Send(tui.ReloadedMsg{Status: st, Err: err})
		})
		if err != nil {
			logger.Warn("file watching disabled: %v", err)
		}
	}
	_, err = p.Run()
	return err
}
