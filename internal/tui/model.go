package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xxxsen/docfinder/internal/ai"
	"github.com/xxxsen/docfinder/internal/model"
)

// Asker is the part of the RAG service the chat loop needs.
type Asker interface {
	Query(ctx context.Context, text string, override ai.Override) (*model.PromptContext, string, error)
}

type turn struct {
	query  string
	pc     *model.PromptContext
	answer string
	err    error
}

type answerMsg turn

// Model is a chat loop: each submitted line is answered from the index and appended to the transcript.
type Model struct {
	ctx      context.Context
	asker    Asker
	override ai.Override
	title    string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	turns    []turn
	status   string
	busy     bool
	ready    bool
}

// override is applied to every question of the session.
func New(ctx context.Context, asker Asker, title string, override ai.Override) Model {
	ti := textinput.New()
	ti.Prompt = "Enter your query: "
	ti.Placeholder = "type a question, or exit"
	ti.CharLimit = 0
	ti.Focus()
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return Model{
		ctx:      ctx,
		asker:    asker,
		override: override,
		title:    title,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(query string) tea.Cmd {
	return func() tea.Msg {
		pc, answer, err := m.asker.Query(m.ctx, query, m.override)
		return answerMsg{query: query, pc: pc, answer: answer, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, frame := boxStyle.GetFrameSize()
		// title, input line, status
		height := msg.Height - 3 - frame
		if height < 3 {
			height = 3
		}
		m.viewport.Width = msg.Width
		if m.viewport.Width < 20 {
			m.viewport.Width = 20
		}
		m.viewport.Height = height
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			switch {
			case q == "" || m.busy:
				return m, nil
			case q == "exit" || q == "quit":
				return m, tea.Quit
			}
			m.input.Reset()
			m.busy = true
			m.status = "Thinking about " + q
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		}
		if msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown || msg.Type == tea.KeyUp || msg.Type == tea.KeyDown {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	case answerMsg:
		m.busy = false
		m.turns = append(m.turns, turn(msg))
		if msg.err != nil {
			m.status = "Failed."
		} else {
			m.status = "Ready."
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	parts := make([]string, 0, len(m.turns))
	for _, t := range m.turns {
		if t.err != nil {
			parts = append(parts, queryStyle.Render("Query: "+t.query)+"\n"+renderError(t.err))
			continue
		}
		parts = append(parts, RenderAnswer(t.query, t.pc, t.answer))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return titleStyle.Render(m.title) + "\n" +
		boxStyle.Render(m.viewport.View()) + "\n" +
		m.input.View() + "\n" +
		statusStyle.Render(status)
}
