// Package tui is the interactive chat view over a document session.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
	"docqa/internal/generation"
	"docqa/internal/service"
)

// Session is the TUI-facing subset of the document session.
type Session interface {
	Summarize(ctx context.Context) (<-chan domain.StreamUnit, error)
	SuggestQuestions(ctx context.Context) (generation.Questions, error)
	Ask(ctx context.Context, question string, k int) (<-chan domain.StreamUnit, error)
	Status() service.Status
}

type streamKind int

const (
	streamSummary streamKind = iota
	streamAnswer
)

type entry struct {
	label    string
	text     string
	sources  []string
	question string
	failed   bool
}

// Messages driving the model.
type (
	streamStartedMsg struct {
		kind streamKind
		ch   <-chan domain.StreamUnit
	}
	unitMsg struct {
		unit domain.StreamUnit
		ok   bool
	}
	questionsMsg generation.Questions
	errMsg       struct{ err error }
)

// ReloadedMsg tells the model that the document was loaded again, e.g. after
// the file changed on disk.
type ReloadedMsg struct {
	Status service.Status
	Err    error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx     context.Context
	session Session
	topK    int

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	entries     []entry
	questions   []string
	stream      <-chan domain.StreamUnit
	kind        streamKind
	busy        bool
	showSources bool
	status      string
	ready       bool
}

// New creates a chat model for session. topK <= 0 uses the session default.
func New(ctx context.Context, session Session, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or 1-3 for a suggestion"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:         ctx,
		session:     session,
		topK:        topK,
		input:       ti,
		viewport:    viewport.New(0, 0),
		spinner:     sp,
		showSources: true,
		status:      "Summarizing...",
		busy:        true,
	}
}

// Init starts the summary stream.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.summarize())
}

func (m Model) summarize() tea.Cmd {
	return func() tea.Msg {
		ch, err := m.session.Summarize(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		return streamStartedMsg{kind: streamSummary, ch: ch}
	}
}

func (m Model) suggest() tea.Cmd {
	return func() tea.Msg {
		q, err := m.session.SuggestQuestions(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		return questionsMsg(q)
	}
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		ch, err := m.session.Ask(m.ctx, question, m.topK)
		if err != nil {
			return errMsg{err}
		}
		return streamStartedMsg{kind: streamAnswer, ch: ch}
	}
}

func waitForUnit(ch <-chan domain.StreamUnit) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		return unitMsg{unit: u, ok: ok}
	}
}

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + 1 + ih + 1 // header, questions, status, input line, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case streamStartedMsg:
		m.stream, m.kind = msg.ch, msg.kind
		if msg.kind == streamSummary {
			m.entries = append(m.entries, entry{label: "Summary"})
		}
		return m, waitForUnit(msg.ch)

	case unitMsg:
		return m.handleUnit(msg)

	case questionsMsg:
		m.questions = msg.Items
		m.busy = false
		m.status = "Ready."
		if msg.Degraded {
			m.status = "Ready. Suggested questions are generic: no model could generate them."
		}
		return m, nil

	case errMsg:
		m.busy = false
		m.status = "Error: " + msg.err.Error()
		return m, nil

	case ReloadedMsg:
		if msg.Err != nil {
			m.status = "Reload failed: " + msg.Err.Error()
			return m, nil
		}
		m.entries = nil
		m.questions = nil
		m.busy = true
		m.status = fmt.Sprintf("Reloaded %s (%d chunks). Summarizing...", msg.Status.Source, msg.Status.Chunks)
		m.refresh()
		return m, m.summarize()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.busy {
		return m, nil
	}
	if n, err := strconv.Atoi(q); err == nil && n >= 1 && n <= len(m.questions) {
		q = m.questions[n-1]
	}
	m.input.SetValue("")
	m.entries = append(m.entries, entry{label: "You", text: q}, entry{label: "Assistant", question: q})
	m.busy = true
	m.status = "Thinking..."
	m.refresh()
	return m, m.ask(q)
}

func (m Model) handleUnit(msg unitMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		m.stream = nil
		if m.kind == streamSummary {
			m.status = "Suggesting questions..."
			return m, m.suggest()
		}
		m.busy = false
		if !strings.HasPrefix(m.status, "Error") {
			m.status = "Ready."
		}
		return m, nil
	}
	u := msg.unit
	if n := len(m.entries); n > 0 {
		last := &m.entries[n-1]
		last.text += u.Content
		if u.Sources != nil {
			last.sources = u.Sources
		}
		if u.IsError() {
			last.failed = true
			last.text = strings.TrimSpace(last.text + "\n" + u.ErrorMessage)
			m.status = "Error: " + u.Err.Error()
		}
	}
	m.refresh()
	return m, waitForUnit(m.stream)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	st := m.session.Status()
	header := headerStyle.Render(fmt.Sprintf("docqa  %s  [%s, %d chunks]", st.Source, st.State, st.Chunks))
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		m.renderQuestions() + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderQuestions() string {
	if len(m.questions) == 0 {
		return dimStyle.Render("No suggested questions yet.")
	}
	parts := make([]string, len(m.questions))
	for i, q := range m.questions {
		parts[i] = fmt.Sprintf("%d) %s", i+1, q)
	}
	return dimStyle.Render(strings.Join(parts, "   "))
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return "Nothing yet."
	}
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(labelStyle.Render(e.label + ":"))
		b.WriteString(" ")
		if e.failed {
			b.WriteString(errorStyle.Render(e.text))
		} else {
			b.WriteString(e.text)
		}
		if m.showSources && len(e.sources) > 0 {
			for j, src := range e.sources {
				fmt.Fprintf(&b, "\n%s %s", dimStyle.Render(fmt.Sprintf("[Context %d]", j+1)), highlightBestSentence(src, e.question))
			}
		}
	}
	return b.String()
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	labelStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

// highlightBestSentence emphasizes the sentence of text sharing the most words with query.
func highlightBestSentence(text, query string) string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	qTokens := toTokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	out := make([]string, 0, len(sentences))
	for i, s := range sentences {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		if i == bestIdx {
			s = highlightStyle.Render(s)
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
