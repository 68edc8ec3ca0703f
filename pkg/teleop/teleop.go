// Package teleop runs the control loop that turns operator input into hub
// commands at a fixed rate.
package teleop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gwillem/clawctl/pkg/calibration"
	"github.com/gwillem/clawctl/pkg/command"
	"github.com/gwillem/clawctl/pkg/input"
	"github.com/gwillem/clawctl/pkg/link"
	"github.com/pkg/errors"
)

// Link is the part of link.Manager the loop needs.
type Link interface {
	Send(cmd command.Command) error
	State() link.State
	Generation() uint64
}

// State represents the loop after one tick.
type State struct {
	Command   command.Command
	Link      link.State
	Suspended bool
	Sent      bool
	Timestamp time.Time
	Error     error
}

// Controller manages the control loop.
type Controller struct {
	source     input.Source
	profile    *calibration.Profile
	link       Link
	translator *command.Translator
	edges      input.EdgeTracker
	logger     *log.Logger

	mu        sync.RWMutex
	running   bool
	suspended bool
	sentGen   uint64
	inputDown bool
	stateCh   chan State
	logCh     chan string
}

// Config holds configuration for the controller.
type Config struct {
	Source  input.Source
	Profile *calibration.Profile
	Link    Link
	Logger  *log.Logger
}

// NewController creates a new control loop. The profile must not change
// while the loop runs.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Source == nil || cfg.Link == nil || cfg.Profile == nil {
		return nil, errors.New("teleop: source, link and profile are required")
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Controller{
		source:     cfg.Source,
		profile:    cfg.Profile,
		link:       cfg.Link,
		translator: command.NewTranslator(cfg.Profile),
		logger:     logger.WithPrefix("teleop"),
		stateCh:    make(chan State, 1),
		logCh:      make(chan string, 10),
	}, nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() float64 {
	return c.profile.SampleRateHz
}

func (c *Controller) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Info(text)
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the loop until ctx is done or the quit button is pressed.
// STOP is sent on every way out, including a panic in the input source,
// which is returned as an error.
func (c *Controller) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("already running")
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("control loop fault: %v", r)
			c.log("Fault: %v", r)
		}
		c.shutdown()
	}()

	c.log("Control loop started at %.0f Hz with %s", c.profile.SampleRateHz, c.source.Name())

	ticker := time.NewTicker(c.profile.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if c.step() {
				c.log("Quit requested")
				return nil
			}
		}
	}
}

// step runs one tick and reports whether quit was pressed.
func (c *Controller) step() bool {
	var cmd command.Command
	var changed bool

	s, err := c.source.Poll()
	if err != nil {
		// No input: drop every latch and hold STOP.
		if !c.inputDown {
			c.log("Input unavailable, stopping: %v", err)
			c.inputDown = true
		}
		cmd, changed = c.translator.Reset()
	} else {
		if c.inputDown {
			c.log("Input %s is back", c.source.Name())
			c.inputDown = false
		}
		c.edges.Annotate(&s)
		if b, ok := c.profile.Button(calibration.Quit); ok && s.JustPressed(b.Index) {
			return true
		}
		cmd, changed = c.translator.Next(s)
	}

	gen := c.link.Generation()
	state := c.link.State()

	// Every new connection starts with STOP from the manager, so the
	// latest command has to be repeated on it.
	if !c.suspended {
		switch {
		case state != link.Connected:
			c.suspended = true
			c.log("Link %s, holding commands", state)
		case gen != c.sentGen:
			c.suspended = true
		}
	}

	var sent bool
	var sendErr error
	switch {
	case c.suspended:
		if state != link.Connected {
			break
		}
		if cmd.IsStop() && gen != c.sentGen {
			c.suspended = false
			c.sentGen = gen
			break
		}
		if sendErr = c.link.Send(cmd); sendErr == nil {
			c.suspended = false
			c.sentGen = gen
			sent = true
			c.log("Link up, resumed with %s", cmd)
		}
	case changed:
		if sendErr = c.link.Send(cmd); sendErr != nil {
			c.suspended = true
			c.log("Send failed, holding commands: %v", sendErr)
		} else {
			c.sentGen = gen
			sent = true
			c.logger.Debug("sent", "cmd", cmd)
		}
	}

	c.sendState(State{
		Command:   cmd,
		Link:      state,
		Suspended: c.suspended,
		Sent:      sent,
		Timestamp: time.Now(),
		Error:     sendErr,
	})
	return false
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if err := c.link.Send(command.Stop()); err != nil {
		c.log("Warning: final stop not delivered: %v", err)
	} else {
		c.log("Sent stop")
	}
	c.log("Control loop stopped")
}
