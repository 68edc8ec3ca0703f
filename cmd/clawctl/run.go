package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/clawctl/pkg/calibration"
	"github.com/gwillem/clawctl/pkg/command"
	"github.com/gwillem/clawctl/pkg/input"
	"github.com/gwillem/clawctl/pkg/link"
	"github.com/gwillem/clawctl/pkg/teleop"
)

type RunCommand struct {
	Input    InputOptions  `group:"Input"`
	Link     LinkOptions   `group:"Link"`
	Tuning   TuningOptions `group:"Tuning"`
	Headless bool          `long:"headless" env:"CLAWCTL_HEADLESS" description:"No screen: log to stderr, stop on SIGINT/SIGTERM"`
}

func (c *RunCommand) Execute(args []string) error {
	logger, closeLog, err := newLogger(!c.Headless)
	if err != nil {
		return err
	}
	defer closeLog()

	profile, err := loadRunProfile(opts.Profile, c.Tuning.Tuning(), logger)
	if err != nil {
		return err
	}

	if c.Headless && c.Input.Input == "keyboard" {
		return errors.Wrap(calibration.ErrFatalConfig, "keyboard input needs the screen, drop --headless")
	}

	transport, err := link.Open(c.Link.Link, link.Options{WriteTimeout: c.Link.WriteTimeout})
	if err != nil {
		return errors.Wrap(calibration.ErrFatalConfig, err.Error())
	}
	manager := link.NewManager(link.Config{
		Transport:        transport,
		ConnectTimeout:   c.Link.ConnectTimeout,
		WriteTimeout:     c.Link.WriteTimeout,
		Heartbeat:        c.Link.Heartbeat,
		HeartbeatTimeout: c.Link.HeartbeatTimeout,
		MaxBackoff:       c.Link.MaxBackoff,
		Logger:           logger,
	})
	defer manager.Close()

	src, kb, err := openSource(c.Input, !c.Headless, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	ctrl, err := teleop.NewController(teleop.Config{
		Source:  src,
		Profile: profile,
		Link:    manager,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if c.Headless {
		return runHeadless(ctrl, manager)
	}
	return runScreen(ctrl, manager, kb, profile)
}

// loadRunProfile falls back to the built-in profile only when no file
// exists; a broken or ambiguous file is an error.
func loadRunProfile(path string, t calibration.Tuning, logger *log.Logger) (*calibration.Profile, error) {
	p, usedDefault, err := calibration.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if usedDefault {
		logger.Warn("no profile found, using built-in defaults", "path", path)
	} else {
		logger.Info("loaded profile", "path", path)
	}
	if err := t.Apply(p); err != nil {
		return nil, err
	}
	return p, p.Validate()
}

func runHeadless(ctrl *teleop.Controller, manager *link.Manager) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return ctrl.Start(gctx)
	})
	return g.Wait()
}

func runScreen(ctrl *teleop.Controller, manager *link.Manager, kb *input.Keyboard, profile *calibration.Profile) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(newRunModel(ctrl, manager, kb, profile), tea.WithAltScreen())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error {
		defer p.Quit()
		return ctrl.Start(gctx)
	})

	_, tuiErr := p.Run()
	cancel()
	err := g.Wait()
	if tuiErr != nil {
		return errors.Wrap(tuiErr, "run screen")
	}
	if err == nil {
		fmt.Println("Stopped.")
	}
	return err
}

const (
	headerHeight = 4 // title, link, command + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

var wheelColors = map[string]string{
	"left":  "51",  // cyan
	"right": "201", // magenta
}

var (
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type runModel struct {
	ctrl     *teleop.Controller
	manager  *link.Manager
	kb       *input.Keyboard
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	state    teleop.State
	last     command.Command
	quitting bool
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 8)
	return width, height
}

func newRunModel(ctrl *teleop.Controller, manager *link.Manager, kb *input.Keyboard, profile *calibration.Profile) runModel {
	limit := float64(profile.MaxSpeed)
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(-limit, limit),
	)
	for name, color := range wheelColors {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return runModel{
		ctrl:    ctrl,
		manager: manager,
		kb:      kb,
		chart:   &chart,
		last:    command.Stop(),
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.kb != nil && m.kb.Handles(key) {
			m.kb.Tap(key)
			return m, nil
		}
		if key == "q" {
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		m.state = teleop.State(msg)
		// freeze the chart while the command does not change
		if m.state.Command != m.last {
			m.chart.PushDataSet("left", float64(m.state.Command.Left))
			m.chart.PushDataSet("right", float64(m.state.Command.Right))
			m.chart.DrawAll()
			m.last = m.state.Command
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func linkStyle(s link.State) lipgloss.Style {
	switch s {
	case link.Connected:
		return successStyle
	case link.Failed:
		return errorStyle
	}
	return warnStyle
}

func (m runModel) View() string {
	if m.quitting {
		return "Stopping...\n"
	}

	var sb strings.Builder

	sb.WriteString(headerStyle.Render("clawctl run"))
	sb.WriteString(fmt.Sprintf(" - %.0f Hz", m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")

	state := m.manager.State()
	sb.WriteString(fmt.Sprintf("Link %s: %s", m.manager.Transport(), linkStyle(state).Render(state.String())))
	if m.state.Suspended {
		sb.WriteString(warnStyle.Render("  (holding commands)"))
	}
	sb.WriteString("\n")

	cmd := m.state.Command
	sb.WriteString(fmt.Sprintf("L %4d  R %4d  claw %-10s", cmd.Left, cmd.Right, cmd.Claw))
	if cmd.Perpetual {
		sb.WriteString(subHeaderStyle.Render("  PERPETUAL"))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		help := "Press 'q' to quit"
		if m.kb != nil {
			help = "WASD/arrows drive, IJKL slow, Z/X claw, N/M slow claw, R stop claw, P perpetual, Esc quit"
		}
		logLines = statusStyle.Render(help)
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range []string{"left", "right"} {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(wheelColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	return strings.Join(items, "  ")
}
