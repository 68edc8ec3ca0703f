// Package input abstracts keyboards and gamepads behind a single polled
// snapshot of axes and buttons.
package input

import (
	"github.com/pkg/errors"
)

// ErrUnavailable is returned when the device is disconnected or was never found.
// Callers treat it as recoverable: the source keeps trying to reopen.
var ErrUnavailable = errors.New("input unavailable")

// Source is anything that can report the current state of its controls.
// Poll must not block for longer than a small fraction of a control tick.
type Source interface {
	Poll() (Sample, error)
	Name() string
	Close() error
}

// Sample is one polling tick of raw input, keyed by physical index.
//
// Pressed and Released are left empty by sources and filled in by an
// EdgeTracker owned by whoever drives the tick.
type Sample struct {
	Axes     map[int]float64
	Buttons  map[int]bool
	Pressed  map[int]bool
	Released map[int]bool
}

// NewSample returns a neutral sample: no axis deflection, no buttons held.
func NewSample() Sample {
	return Sample{
		Axes:     make(map[int]float64),
		Buttons:  make(map[int]bool),
		Pressed:  make(map[int]bool),
		Released: make(map[int]bool),
	}
}

// WithAxis sets an axis value, clamped to [-1, 1].
func (s Sample) WithAxis(index int, value float64) Sample {
	s.Axes[index] = clampUnit(value)
	return s
}

// WithButton sets a button state.
func (s Sample) WithButton(index int, down bool) Sample {
	s.Buttons[index] = down
	return s
}

// Axis returns the value of a physical axis, 0 if the device has no such axis.
func (s Sample) Axis(index int) float64 {
	return s.Axes[index]
}

// Button reports whether a physical button is held.
func (s Sample) Button(index int) bool {
	return s.Buttons[index]
}

// JustPressed reports a false->true transition on this tick.
func (s Sample) JustPressed(index int) bool {
	return s.Pressed[index]
}

// JustReleased reports a true->false transition on this tick.
func (s Sample) JustReleased(index int) bool {
	return s.Released[index]
}

// Clone returns a deep copy so a sample can be replayed without sharing maps.
func (s Sample) Clone() Sample {
	c := NewSample()
	for i, v := range s.Axes {
		c.Axes[i] = v
	}
	for i, v := range s.Buttons {
		c.Buttons[i] = v
	}
	for i, v := range s.Pressed {
		c.Pressed[i] = v
	}
	for i, v := range s.Released {
		c.Released[i] = v
	}
	return c
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
