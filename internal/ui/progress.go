// Package ui renders live progress of generator runs in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"winapigen/internal/gen"
)

type progressModel struct {
	title   string
	events  <-chan gen.Event
	spinner spinner.Model
	prog    progress.Model
	items   []unitItem
	index   map[string]int
	width   int
	done    bool
}

type unitItem struct {
	unit     string
	status   string
	finished int // stages completed
	failed   bool
}

type eventMsg gen.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that follows the events of the
// given units until the channel closes.
func NewProgressModel(title string, units []string, events <-chan gen.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]unitItem, 0, len(units))
	index := make(map[string]int, len(units))
	for i, unit := range units {
		items = append(items, unitItem{unit: unit, status: string(gen.StatusQueued)})
		index[unit] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(gen.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	const statusWidth = 12
	nameWidth := max(m.width-statusWidth-4, 20)
	for _, item := range m.items {
		status := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		fmt.Fprintf(&b, "  %s %s\n", status, truncate(item.unit, nameWidth))
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev gen.Event) tea.Cmd {
	idx, ok := m.index[ev.Unit]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	if item.failed {
		return nil
	}
	switch ev.Status {
	case gen.StatusWorking:
		item.status = stageLabel(ev.Stage)
	case gen.StatusDone:
		item.finished++
		if ev.Stage == gen.StageWrite {
			item.status = string(gen.StatusDone)
		}
	case gen.StatusError:
		item.failed = true
		item.status = string(gen.StatusError)
	}
	return m.prog.SetPercent(m.percent())
}

// percent counts finished stages; a failed unit counts as complete.
func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range m.items {
		if item.failed {
			total += 1
			continue
		}
		total += float64(item.finished) / float64(len(gen.Stages))
	}
	return total / float64(len(m.items))
}

func stageLabel(stage gen.Stage) string {
	switch stage {
	case gen.StageResolve:
		return "resolving"
	case gen.StageLayout:
		return "layout"
	case gen.StageMarshal:
		return "planning"
	case gen.StageEmit:
		return "emitting"
	case gen.StageWrite:
		return "writing"
	default:
		return string(stage)
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case string(gen.StatusDone):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case string(gen.StatusError):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case string(gen.StatusQueued):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	// the tail counts toward the width
	return runewidth.Truncate(value, width, "...")
}
