package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"cargoscan/internal/buildpipeline"
	"cargoscan/internal/diag"
)

// maxVisibleUnits bounds the unit list; older finished units scroll away.
const maxVisibleUnits = 12

type progressModel struct {
	title      string
	events     <-chan buildpipeline.Event
	spinner    spinner.Model
	prog       progress.Model
	items      []unitItem
	index      map[string]int
	stageLabel string
	errors     int
	warnings   int
	failed     bool
	width      int
	done       bool
}

type unitItem struct {
	name   string
	status string
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders the progress of a
// cargo step. Units are discovered from cargo's status lines as they appear;
// the model quits when events is closed.
func NewProgressModel(title string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		index:   make(map[string]int),
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(buildpipeline.Event(msg))
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
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	switch {
	case m.done && m.failed:
		header = fmt.Sprintf("failed: %s", header)
	case m.done:
		header = fmt.Sprintf("done: %s", header)
	default:
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := max(m.width-statusWidth-4, 20)

	visible := m.items
	if len(visible) > maxVisibleUnits {
		visible = visible[len(visible)-maxVisibleUnits:]
	}
	for _, item := range visible {
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		fmt.Fprintf(&b, "  %s %s\n", statusStyled, truncate(item.name, nameWidth))
	}
	if len(visible) > 0 {
		b.WriteString("\n")
	}

	if m.errors > 0 || m.warnings > 0 {
		counts := fmt.Sprintf("%d error(s), %d warning(s)", m.errors, m.warnings)
		style := styleStatus("warning")
		if m.errors > 0 {
			style = styleStatus("error")
		}
		b.WriteString("  " + style.Render(counts) + "\n\n")
	}

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

func (m *progressModel) applyEvent(ev buildpipeline.Event) tea.Cmd {
	if d := ev.Diagnostic; d != nil {
		switch d.Severity {
		case diag.SevError:
			m.errors++
		case diag.SevWarning:
			m.warnings++
		}
		return nil
	}

	if ev.Unit == "" {
		if ev.Line != "" && ev.Stage == buildpipeline.StageBuild {
			return nil
		}
		if label := stageLabel(ev.Stage, ev.Status); label != "" {
			m.stageLabel = label
		}
		switch {
		case ev.Stage == buildpipeline.StageFinish:
			m.finishUnits("built")
		case ev.Stage == buildpipeline.StageBuild && ev.Status == buildpipeline.StatusError:
			m.failed = true
			m.finishUnits("aborted")
		case ev.Stage == buildpipeline.StageBuild && ev.Status == buildpipeline.StatusDone:
			m.finishUnits("built")
		}
		return m.prog.SetPercent(m.percent())
	}

	status := unitStatus(ev.Status)
	if idx, ok := m.index[ev.Unit]; ok {
		m.items[idx].status = status
	} else {
		m.index[ev.Unit] = len(m.items)
		m.items = append(m.items, unitItem{name: ev.Unit, status: status})
	}
	if ev.Status == buildpipeline.StatusWorking {
		m.stageLabel = "compiling"
	}
	return m.prog.SetPercent(m.percent())
}

// finishUnits marks every unit still compiling with status. cargo prints no
// per-crate completion line, so units are settled at the end of the step.
func (m *progressModel) finishUnits(status string) {
	for i := range m.items {
		if m.items[i].status == "compiling" {
			m.items[i].status = status
		}
	}
}

// percent counts settled units fully and compiling ones by half. The total
// is unknown up front, so the bar only reaches 1.0 once the step finishes.
func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range m.items {
		switch item.status {
		case "compiling":
			total += 0.5
		case "queued":
		default:
			total++
		}
	}
	return total / float64(len(m.items)+1)
}

func unitStatus(status buildpipeline.Status) string {
	switch status {
	case buildpipeline.StatusQueued:
		return "queued"
	case buildpipeline.StatusDone:
		return "fresh"
	case buildpipeline.StatusError:
		return "error"
	default:
		return "compiling"
	}
}

func stageLabel(stage buildpipeline.Stage, status buildpipeline.Status) string {
	switch stage {
	case buildpipeline.StageResolve:
		return "resolving"
	case buildpipeline.StageCompile:
		return "compiling"
	case buildpipeline.StageFinish:
		return "finished"
	case buildpipeline.StageClean:
		return "cleaning"
	case buildpipeline.StageBuild:
		if status == buildpipeline.StatusError {
			return "failed"
		}
		if status == buildpipeline.StatusWorking {
			return "starting"
		}
	}
	return ""
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "built", "fresh":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error", "aborted":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "warning":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	case "compiling":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
