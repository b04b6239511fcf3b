package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/amx-runtime/amx"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	statStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const outputLines = 8

// syncBuffer collects script output; workers may print concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := strings.Split(strings.TrimRight(b.buf.String(), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

type modelState int

const (
	stateSelectPublic modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	s        *session
	out      *syncBuffer
	filename string
	result   string
	publics  []string
	input    textinput.Model
	selected int
	ticks    int
	state    modelState
}

type tickMsg time.Time

type callResult struct {
	err    error
	public string
	ret    amx.Cell
}

func newInteractiveModel(s *session, out *syncBuffer, filename string) *interactiveModel {
	var publics []string
	for i := 0; i < s.m.NumPublics(); i++ {
		if name, ok := s.m.PublicName(i); ok {
			publics = append(publics, name)
		}
	}
	return &interactiveModel{
		s:        s,
		out:      out,
		filename: filename,
		publics:  publics,
		state:    stateSelectPublic,
	}
}

func (m *interactiveModel) tick() tea.Cmd {
	return tea.Tick(m.s.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.tick()
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectPublic && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectPublic && m.selected < len(m.publics)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectPublic:
				if len(m.publics) == 0 {
					return m, nil
				}
				m.input = textinput.New()
				m.input.Placeholder = "1, 2, 3"
				m.input.Prompt = "args: "
				m.input.Width = 40
				m.input.Focus()
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				m.show(m.callPublic())
				return m, nil

			case stateShowResult:
				m.state = stateSelectPublic
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs, stateShowResult:
				m.state = stateSelectPublic
				m.result = ""
				m.err = nil
			}
		}

	case tickMsg:
		// The engine belongs to the UI goroutine; ticks run here.
		m.s.eng.ProcessTick()
		m.ticks++
		return m, m.tick()
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// callPublic runs inside Update: commands run on their own goroutines and
// the engine must stay on the one that ticks it.
func (m *interactiveModel) callPublic() callResult {
	public := m.publics[m.selected]
	args, err := parseArgs(m.input.Value())
	if err != nil {
		return callResult{err: err, public: public}
	}
	ret, err := m.s.call(public, args)
	return callResult{err: err, public: public, ret: ret}
}

func (m *interactiveModel) show(r callResult) {
	m.err = r.err
	m.result = fmt.Sprintf("%s returned %d", r.public, r.ret)
	m.state = stateShowResult
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("AMX Runner"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n")
	b.WriteString(statStyle.Render(fmt.Sprintf("tick %d  tasks %d  timers %d  workers %d  parked %d",
		m.ticks,
		m.s.eng.Pool().Len(),
		m.s.eng.Timers().Len(),
		m.s.eng.Bridge().Len(),
		m.s.eng.Parked(m.s.m))))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectPublic:
		if len(m.publics) == 0 {
			b.WriteString("The script has no publics.\n")
			break
		}
		b.WriteString("Select a public to call:\n\n")
		for i, name := range m.publics {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + name))
			} else {
				b.WriteString("  " + funcStyle.Render(name))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(m.publics[m.selected])))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	if lines := m.out.tail(outputLines); len(lines) > 0 {
		b.WriteString("\n\n--- output ---\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

func runInteractive(ctx context.Context, o options) error {
	out := &syncBuffer{}
	s, err := openSession(ctx, o, out)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	p := tea.NewProgram(newInteractiveModel(s, out, o.script), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
