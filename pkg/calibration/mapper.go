package calibration

import (
	"fmt"
	"math"
	"sort"

	"github.com/gwillem/clawctl/pkg/input"
	"github.com/pkg/errors"
)

const (
	// AxisThreshold is the deflection from rest that binds an axis.
	AxisThreshold = 0.6
	// RestTolerance is how close to rest every axis must return between steps.
	RestTolerance = 0.2
)

// StepKind tells whether a mapping step expects an axis or a button.
type StepKind int

const (
	StepAxis StepKind = iota
	StepButton
)

// Step is one prompt of the interactive mapping.
type Step struct {
	Kind   StepKind
	Axis   AxisName
	Action Action
}

// Prompt is the instruction shown to the operator.
func (s Step) Prompt() string {
	if s.Kind == StepButton {
		return fmt.Sprintf("Press the button for %s", s.Action)
	}
	switch s.Axis {
	case Throttle:
		return "Push the throttle stick forward"
	case Turn:
		return "Push the turn stick right"
	}
	return fmt.Sprintf("Move the axis for %s", s.Axis)
}

// Name returns the logical name being mapped.
func (s Step) Name() string {
	if s.Kind == StepButton {
		return string(s.Action)
	}
	return string(s.Axis)
}

// Mapper binds physical indices to logical names one step at a time from a
// stream of samples. The first sample fed is taken as the rest position.
type Mapper struct {
	steps []Step
	pos   int

	rest     map[int]float64
	waitRest bool
	edges    input.EdgeTracker

	axes    []AxisMapping
	buttons []ButtonMapping
}

// NewMapper creates a mapper over every axis followed by every action.
func NewMapper() *Mapper {
	m := &Mapper{}
	for _, a := range AllAxes() {
		m.steps = append(m.steps, Step{Kind: StepAxis, Axis: a})
	}
	for _, a := range AllActions() {
		m.steps = append(m.steps, Step{Kind: StepButton, Action: a})
	}
	return m
}

// Current returns the step awaiting input.
func (m *Mapper) Current() (Step, bool) {
	if m.Done() {
		return Step{}, false
	}
	return m.steps[m.pos], true
}

// Progress returns the number of finished steps and the total.
func (m *Mapper) Progress() (int, int) {
	return m.pos, len(m.steps)
}

// Done reports whether every step was bound or skipped.
func (m *Mapper) Done() bool {
	return m.pos >= len(m.steps)
}

// WaitingForRest reports whether the mapper ignores input until the
// controls are released.
func (m *Mapper) WaitingForRest() bool {
	return m.waitRest
}

// Skip leaves the current step unbound.
func (m *Mapper) Skip() {
	if m.Done() {
		return
	}
	m.pos++
	m.waitRest = true
}

// Feed offers one sample to the current step. It returns true when the step
// was bound. ErrAmbiguous means the detected index already belongs to
// another name; the step stays current and must be answered again.
func (m *Mapper) Feed(s input.Sample) (bool, error) {
	s = s.Clone()
	m.edges.Annotate(&s)

	if m.rest == nil {
		m.rest = make(map[int]float64, len(s.Axes))
		for i, v := range s.Axes {
			m.rest[i] = v
		}
		return false, nil
	}
	if m.Done() {
		return false, nil
	}
	if m.waitRest {
		if m.atRest(s) {
			m.waitRest = false
		}
		return false, nil
	}

	step := m.steps[m.pos]
	if step.Kind == StepAxis {
		return m.feedAxis(step, s)
	}
	return m.feedButton(step, s)
}

func (m *Mapper) feedAxis(step Step, s input.Sample) (bool, error) {
	idx, delta, ok := m.deflected(s)
	if !ok {
		return false, nil
	}
	m.waitRest = true
	for _, b := range m.axes {
		if b.Index == idx {
			return false, errors.Wrapf(ErrAmbiguous, "axis %d is already %s", idx, b.Name)
		}
	}
	m.axes = append(m.axes, AxisMapping{Name: step.Axis, Index: idx, Invert: delta < 0})
	m.pos++
	return true, nil
}

func (m *Mapper) feedButton(step Step, s input.Sample) (bool, error) {
	pressed := make([]int, 0, len(s.Pressed))
	for i := range s.Pressed {
		pressed = append(pressed, i)
	}
	if len(pressed) == 0 {
		return false, nil
	}
	sort.Ints(pressed)
	idx := pressed[0]

	m.waitRest = true
	for _, b := range m.buttons {
		if b.Index == idx {
			return false, errors.Wrapf(ErrAmbiguous, "button %d is already %s", idx, b.Action)
		}
	}
	m.buttons = append(m.buttons, ButtonMapping{Action: step.Action, Index: idx})
	m.pos++
	return true, nil
}

// deflected returns the axis furthest from rest, if past AxisThreshold.
func (m *Mapper) deflected(s input.Sample) (int, float64, bool) {
	best, bestDelta := -1, 0.0
	for i, v := range s.Axes {
		d := v - m.rest[i]
		if math.Abs(d) < AxisThreshold {
			continue
		}
		if best < 0 || math.Abs(d) > math.Abs(bestDelta) || (math.Abs(d) == math.Abs(bestDelta) && i < best) {
			best, bestDelta = i, d
		}
	}
	return best, bestDelta, best >= 0
}

func (m *Mapper) atRest(s input.Sample) bool {
	for i, v := range s.Axes {
		if math.Abs(v-m.rest[i]) > RestTolerance {
			return false
		}
	}
	for _, down := range s.Buttons {
		if down {
			return false
		}
	}
	return true
}

// Profile returns base with its mappings replaced by what was bound so far.
// Tuning values come from base.
func (m *Mapper) Profile(base *Profile) *Profile {
	p := base.Clone()
	p.Axes = append([]AxisMapping(nil), m.axes...)
	p.Buttons = append([]ButtonMapping(nil), m.buttons...)
	p.canonicalize()
	return p
}
