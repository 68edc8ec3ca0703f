package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/clawctl/pkg/calibration"
	"github.com/gwillem/clawctl/pkg/input"
)

type DiagnoseCommand struct {
	Input InputOptions `group:"Input"`
}

func (c *DiagnoseCommand) Execute(args []string) error {
	logger, closeLog, err := newLogger(true)
	if err != nil {
		return err
	}
	defer closeLog()

	// names are only shown when a usable profile exists
	profile, _, err := calibration.LoadOrDefault(opts.Profile)
	if err != nil {
		logger.Warn("profile not usable, showing raw indices only", "err", err)
		profile = nil
	}

	src, kb, err := openSource(c.Input, false, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	p := tea.NewProgram(diagnoseModel{src: src, kb: kb, profile: profile})
	_, err = p.Run()
	return err
}

const diagnoseInterval = 50 * time.Millisecond

type tickMsg time.Time

type diagnoseModel struct {
	src     input.Source
	kb      *input.Keyboard
	profile *calibration.Profile
	edges   input.EdgeTracker

	sample   input.Sample
	lastEdge string
	err      error
	quitting bool
}

func diagnoseTick() tea.Cmd {
	return tea.Tick(diagnoseInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m diagnoseModel) Init() tea.Cmd {
	return diagnoseTick()
}

func (m diagnoseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch {
		case key == "ctrl+c", key == "q":
			m.quitting = true
			return m, tea.Quit
		case m.kb != nil && m.kb.Handles(key):
			m.kb.Tap(key)
		}

	case tickMsg:
		s, err := m.src.Poll()
		m.err = err
		m.edges.Annotate(&s)
		for i := range s.Pressed {
			m.lastEdge = fmt.Sprintf("button %d pressed", i)
		}
		m.sample = s
		return m, diagnoseTick()
	}
	return m, nil
}

func (m diagnoseModel) axisName(i int) string {
	if m.profile == nil {
		return ""
	}
	name, _ := m.profile.AxisAt(i)
	if a, ok := m.profile.Axis(name); ok && a.Invert {
		return string(name) + " (inverted)"
	}
	return string(name)
}

func (m diagnoseModel) buttonName(i int) string {
	if m.profile == nil {
		return ""
	}
	action, _ := m.profile.ButtonAt(i)
	return string(action)
}

// bar renders v in [-1, 1] as a centered gauge.
func bar(v float64, half int) string {
	n := int(v*float64(half) + 0.5*sign(v))
	left := strings.Repeat(" ", half)
	right := strings.Repeat(" ", half)
	if n < 0 {
		left = strings.Repeat(" ", half+n) + strings.Repeat("█", -n)
	} else if n > 0 {
		right = strings.Repeat("█", n) + strings.Repeat(" ", half-n)
	}
	return left + "│" + right
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (m diagnoseModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("clawctl diagnose"))
	sb.WriteString(" - " + m.src.Name())
	sb.WriteString("\n\n")

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableIndexStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableActiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)

	var rows [][]string
	var active []bool
	for _, i := range sortedKeys(m.sample.Axes) {
		v := m.sample.Axes[i]
		rows = append(rows, []string{
			"axis",
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%+.2f", v),
			bar(v, 10),
			m.axisName(i),
		})
		active = append(active, v > 0.1 || v < -0.1)
	}
	for _, i := range sortedKeys(m.sample.Buttons) {
		down := m.sample.Buttons[i]
		state := "up"
		if down {
			state = "down"
		}
		rows = append(rows, []string{
			"button",
			fmt.Sprintf("%d", i),
			state,
			"",
			m.buttonName(i),
		})
		active = append(active, down)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Kind", "Index", "Value", "", "Mapped to").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch {
			case col == 1:
				return tableIndexStyle
			case row >= 0 && row < len(active) && active[row]:
				return tableActiveStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	if m.lastEdge != "" {
		sb.WriteString(m.lastEdge)
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("Press q or ctrl+c to quit"))
	return sb.String()
}
