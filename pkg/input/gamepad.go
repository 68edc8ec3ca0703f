package input

import (
	"fmt"
	"time"

	"github.com/0xcafed00d/joystick"
	"github.com/pkg/errors"
)

// Gamepad polls a system joystick device. A gamepad that disappears is
// reopened on later polls, at most once per RetryInterval.
type Gamepad struct {
	index int
	js    joystick.Joystick
	name  string

	RetryInterval time.Duration
	lastTry       time.Time
}

// NewGamepad opens joystick number index. The returned gamepad is usable even
// if the device is missing; check Connected or the error from Poll.
func NewGamepad(index int) (*Gamepad, error) {
	g := &Gamepad{
		index:         index,
		RetryInterval: time.Second,
	}
	err := g.open()
	return g, err
}

func (g *Gamepad) open() error {
	g.lastTry = time.Now()
	js, err := joystick.Open(g.index)
	if err != nil {
		return errors.Wrapf(ErrUnavailable, "gamepad %d: %v", g.index, err)
	}
	g.js = js
	g.name = js.Name()
	return nil
}

// Connected reports whether a device is currently open.
func (g *Gamepad) Connected() bool {
	return g.js != nil
}

// Poll reads the current axes and buttons.
func (g *Gamepad) Poll() (Sample, error) {
	if g.js == nil {
		if time.Since(g.lastTry) < g.RetryInterval {
			return NewSample(), errors.Wrapf(ErrUnavailable, "gamepad %d", g.index)
		}
		if err := g.open(); err != nil {
			return NewSample(), err
		}
	}

	st, err := g.js.Read()
	if err != nil {
		g.js.Close()
		g.js = nil
		return NewSample(), errors.Wrapf(ErrUnavailable, "gamepad %d: %v", g.index, err)
	}

	s := NewSample()
	for i, raw := range st.AxisData {
		s.Axes[i] = NormalizeAxis(raw)
	}
	for i := 0; i < g.js.ButtonCount() && i < 32; i++ {
		s.Buttons[i] = st.Buttons&(1<<uint(i)) != 0
	}
	return s, nil
}

// Name returns the device name reported by the driver.
func (g *Gamepad) Name() string {
	if g.name == "" {
		return fmt.Sprintf("gamepad %d", g.index)
	}
	return g.name
}

// Close releases the device.
func (g *Gamepad) Close() error {
	if g.js != nil {
		g.js.Close()
		g.js = nil
	}
	return nil
}

// NormalizeAxis converts a raw driver value (-32768..32767) to [-1, 1].
func NormalizeAxis(raw int) float64 {
	return clampUnit(float64(raw) / 32767)
}
