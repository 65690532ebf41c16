// Package tui provides the interactive confirmation shown before rooms are upgraded.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

type keyMap struct {
	Yes    key.Binding
	No     key.Binding
	Up     key.Binding
	Down   key.Binding
	Cancel key.Binding
}

var keys = keyMap{
	Yes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "upgrade"),
	),
	No: key.NewBinding(
		key.WithKeys("n", "N", "q"),
		key.WithHelp("n", "abort"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "scroll down"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
	),
}

// ConfirmModel asks a yes/no question below a scrollable body.
type ConfirmModel struct {
	title     string
	body      string
	viewport  viewport.Model
	ready     bool
	confirmed bool
	done      bool
}

// NewConfirmModel creates the model; body is usually the rendered plan.
func NewConfirmModel(title, body string) ConfirmModel {
	return ConfirmModel{title: title, body: body}
}

// Confirmed reports whether the user accepted.
func (m ConfirmModel) Confirmed() bool {
	return m.confirmed
}

func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Yes):
			m.confirmed = true
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, keys.No), key.Matches(msg, keys.Cancel):
			m.confirmed = false
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.viewport.LineUp(1)
		case key.Matches(msg, keys.Down):
			m.viewport.LineDown(1)
		}
	case tea.WindowSizeMsg:
		height := msg.Height - 4
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.body)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(m.body)
	}
	b.WriteString("\n")
	b.WriteString(warnStyle.Render("Proceed? Old rooms will be tombstoned."))
	b.WriteString(" ")
	b.WriteString(helpStyle.Render(fmt.Sprintf("%s • %s • %s",
		helpLine(keys.Yes), helpLine(keys.No), helpLine(keys.Down))))
	return b.String()
}

func helpLine(b key.Binding) string {
	h := b.Help()
	return h.Key + " " + h.Desc
}

// Confirm runs the prompt on in/out and returns the user's answer.
func Confirm(ctx context.Context, title, body string, in io.Reader, out io.Writer) (bool, error) {
	p := tea.NewProgram(NewConfirmModel(title, body),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	m, ok := final.(ConfirmModel)
	if !ok {
		return false, fmt.Errorf("unexpected model type %T", final)
	}
	return m.Confirmed(), nil
}
