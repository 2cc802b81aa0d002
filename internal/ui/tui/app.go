package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

type stageRow struct {
	name   string
	status domain.StageStatus
	event  domain.StageEvent
}

type model struct {
	theme Theme
	deps  Deps

	ctx    context.Context
	cancel context.CancelFunc
	runCh  chan tea.Msg

	spin   spinner.Model
	stages []stageRow
	width  int

	done   bool
	result runnerDoneMsg
	toast  string
}

// Run shows live stage progress while deps.Start executes and returns its outcome.
// The final frame stays on screen after the program exits.
func Run(deps Deps) (domain.RunResult, string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newModel(ctx, cancel, deps)
	final, err := tea.NewProgram(wrapSafe(m, deps.Logger)).Run()
	if err != nil {
		return domain.RunResult{}, "", err
	}

	sm, ok := final.(safeModel)
	if !ok || !sm.m.done {
		return domain.RunResult{}, "", context.Canceled
	}
	return sm.m.result.run, sm.m.result.id, sm.m.result.err
}

func newModel(ctx context.Context, cancel context.CancelFunc, deps Deps) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	t := DefaultTheme()
	sp.Style = t.Active

	rows := make([]stageRow, 0, len(deps.Stages))
	for _, name := range deps.Stages {
		rows = append(rows, stageRow{name: name})
	}

	return model{
		theme:  t,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		spin:   sp,
		stages: rows,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.start())
}

// start is split from Init so the channel lands on the model through a message.
func (m model) start() tea.Cmd {
	return func() tea.Msg {
		ch, listen := startRunAsync(m.ctx, m.deps)
		return runStartedMsg{ch: ch, listen: listen}
	}
}

type runStartedMsg struct {
	ch     chan tea.Msg
	listen tea.Cmd
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.done {
				return m, tea.Quit
			}
			if m.cancel != nil {
				m.cancel()
			}
			m.toast = "Cancelling…"
			return m, nil
		}
		return m, nil

	case runStartedMsg:
		m.runCh = msg.ch
		return m, msg.listen

	case stageEventMsg:
		m.applyEvent(domain.StageEvent(msg))
		return m, listenRunner(m.runCh)

	case runnerDoneMsg:
		m.done = true
		m.result = msg
		m.toast = ""
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) applyEvent(ev domain.StageEvent) {
	i := ev.Index
	if i < 0 || i >= len(m.stages) || m.stages[i].name != ev.Name {
		i = -1
		for j := range m.stages {
			if m.stages[j].name == ev.Name {
				i = j
				break
			}
		}
	}
	if i < 0 {
		m.stages = append(m.stages, stageRow{name: ev.Name})
		i = len(m.stages) - 1
	}
	m.stages[i].status = ev.Status
	m.stages[i].event = ev
}

// abortRunning fails the stage in flight with err.
func (m *model) abortRunning(err error) {
	for i := range m.stages {
		if m.stages[i].status == domain.StageRunning {
			m.stages[i].status = domain.StageFailed
			m.stages[i].event.Status = domain.StageFailed
			m.stages[i].event.Err = err
		}
	}
}

func (m model) View() string {
	wrap := lipgloss.NewStyle().Padding(1, 2)

	title := "bathymesh"
	if m.deps.Pipeline != "" {
		title += " · " + m.deps.Pipeline
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render(title))
	b.WriteString("\n\n")

	nameWidth := 0
	for _, s := range m.stages {
		if n := len(s.name); n > nameWidth {
			nameWidth = n
		}
	}

	for _, s := range m.stages {
		b.WriteString(m.renderRow(s, nameWidth))
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString("\n")
		b.WriteString(m.renderCard())
		b.WriteString("\n")
	} else {
		if m.toast != "" {
			b.WriteString("\n")
			b.WriteString(m.theme.Subtitle.Render(m.toast))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.theme.Help.Render("q cancel"))
	}

	return wrap.Render(b.String())
}

func (m model) renderRow(s stageRow, width int) string {
	name := fmt.Sprintf("%-*s", width, s.name)

	switch s.status {
	case domain.StageRunning:
		return m.spin.View() + " " + m.theme.Active.Render(name)
	case domain.StageDone:
		return m.theme.OK.Render("✓") + " " + name + "  " + m.theme.Subtitle.Render(formatDuration(s.event.Duration))
	case domain.StageFailed:
		line := m.theme.Fail.Render("✗") + " " + name + "  " + m.theme.Subtitle.Render(formatDuration(s.event.Duration))
		if s.event.Err != nil {
			limit := 80
			if m.width > width+20 {
				limit = m.width - width - 20
			}
			line += "\n    " + m.theme.Fail.Render(clampString(s.event.Err.Error(), limit))
		}
		return line
	default:
		return m.theme.Pending.Render("· " + name)
	}
}

func (m model) renderCard() string {
	r := m.result
	if r.err != nil {
		body := m.theme.Fail.Render(userMessage(r.err))
		if r.run.PipelineName != "" {
			body += "\n\n" + renderSummary(r.run, r.id)
		}
		return m.theme.FailCard.Render(body)
	}
	return m.theme.Card.Render(m.theme.OK.Render("Mesh written") + "\n\n" + renderSummary(r.run, r.id))
}
