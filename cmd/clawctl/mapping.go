package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"

	"github.com/gwillem/clawctl/pkg/calibration"
	"github.com/gwillem/clawctl/pkg/input"
)

type MapCommand struct {
	Input  InputOptions  `group:"Input"`
	Tuning TuningOptions `group:"Tuning"`
	Force  bool          `short:"f" long:"force" description:"Overwrite an existing profile without asking"`
}

func (c *MapCommand) Execute(args []string) error {
	logger, closeLog, err := newLogger(true)
	if err != nil {
		return err
	}
	defer closeLog()

	fmt.Println(headerStyle.Render("clawctl map"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	// Tuning carries over from the profile being replaced.
	base := calibration.Default()
	if calibration.Exists(opts.Profile) {
		if !c.Force && !confirm(fmt.Sprintf("%s exists. Replace its mappings?", opts.Profile), "Replace", "Cancel") {
			fmt.Println("Nothing changed.")
			return nil
		}
		if old, err := calibration.Load(opts.Profile); err == nil {
			base = old
		} else {
			logger.Warn("existing profile not usable, starting from defaults", "err", err)
		}
	}
	if err := c.Tuning.Tuning().Apply(base); err != nil {
		return err
	}

	src, kb, err := openSource(c.Input, false, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	p := tea.NewProgram(mapModel{mapper: calibration.NewMapper(), src: src, kb: kb})
	final, err := p.Run()
	if err != nil {
		return errors.Wrap(err, "mapping screen")
	}
	mm := final.(mapModel)
	if mm.aborted {
		fmt.Println("Mapping aborted, nothing saved.")
		return nil
	}

	profile := mm.mapper.Profile(base)
	if err := profile.Validate(); err != nil {
		return err
	}

	fmt.Println(renderProfile(profile))
	fmt.Println()
	if !confirm("Save to "+opts.Profile+"?", "Save", "Discard") {
		fmt.Println("Discarded.")
		return nil
	}
	if err := profile.SaveTo(opts.Profile); err != nil {
		return errors.Wrap(err, "save profile")
	}

	fmt.Println(successStyle.Render("Mapping complete!"))
	fmt.Printf("Profile saved to %s\n", opts.Profile)
	fmt.Println()
	fmt.Println("Start driving with: " + headerStyle.Render("clawctl run"))
	return nil
}

// confirm asks a yes/no question. An aborted form counts as no.
func confirm(title, yes, no string) bool {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative(yes).
				Negative(no).
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		return false
	}
	return ok
}

func renderProfile(p *calibration.Profile) string {
	var rows [][]string
	for _, name := range calibration.AllAxes() {
		idx, note := "-", "unbound"
		if a, ok := p.Axis(name); ok {
			idx, note = fmt.Sprintf("axis %d", a.Index), ""
			if a.Invert {
				note = "inverted"
			}
		}
		rows = append(rows, []string{string(name), idx, note})
	}
	for _, action := range calibration.AllActions() {
		idx, note := "-", "unbound"
		if b, ok := p.Button(action); ok {
			idx, note = fmt.Sprintf("button %d", b.Index), ""
		}
		rows = append(rows, []string{string(action), idx, note})
	}

	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Control", "Input", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			if col == 0 {
				return nameStyle
			}
			return cellStyle
		}).
		Render()
}

const mapInterval = 20 * time.Millisecond

type mapModel struct {
	mapper *calibration.Mapper
	src    input.Source
	kb     *input.Keyboard

	bound   []string
	warning string
	err     error
	aborted bool
}

func mapTick() tea.Cmd {
	return tea.Tick(mapInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m mapModel) Init() tea.Cmd {
	return mapTick()
}

func (m mapModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch {
		case key == "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		case key == "tab":
			if step, ok := m.mapper.Current(); ok {
				m.bound = append(m.bound, fmt.Sprintf("%s: skipped", step.Name()))
			}
			m.mapper.Skip()
			m.warning = ""
		case m.kb != nil && m.kb.Handles(key):
			m.kb.Tap(key)
		}

	case tickMsg:
		s, err := m.src.Poll()
		m.err = err
		if err == nil {
			step, _ := m.mapper.Current()
			ok, ferr := m.mapper.Feed(s)
			switch {
			case errors.Is(ferr, calibration.ErrAmbiguous):
				m.warning = ferr.Error() + ", use another control"
			case ok:
				m.warning = ""
				m.bound = append(m.bound, fmt.Sprintf("%s: bound", step.Name()))
			}
		}
	}

	if m.mapper.Done() {
		return m, tea.Quit
	}
	if _, ok := msg.(tickMsg); ok {
		return m, mapTick()
	}
	return m, nil
}

func (m mapModel) View() string {
	if m.mapper.Done() || m.aborted {
		return ""
	}

	var sb strings.Builder
	done, total := m.mapper.Progress()
	sb.WriteString(subHeaderStyle.Render(fmt.Sprintf("Step %d/%d", done+1, total)))
	sb.WriteString(dimStyle.Render("  " + m.src.Name()))
	sb.WriteString("\n\n")

	for _, b := range m.bound {
		sb.WriteString(successStyle.Render("✓ " + b))
		sb.WriteString("\n")
	}

	step, _ := m.mapper.Current()
	if m.mapper.WaitingForRest() {
		sb.WriteString(dimStyle.Render("Release all controls..."))
	} else {
		sb.WriteString(headerStyle.Render(step.Prompt()))
	}
	sb.WriteString("\n\n")

	if m.warning != "" {
		sb.WriteString(warnStyle.Render(m.warning))
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("tab: skip  ctrl+c: abort"))
	return sb.String()
}
