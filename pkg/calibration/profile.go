package calibration

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInvalid marks a missing, corrupt or inconsistent profile.
	ErrInvalid = errors.New("calibration invalid")
	// ErrAmbiguous marks one physical index claimed by two logical names.
	ErrAmbiguous = errors.Wrap(ErrInvalid, "ambiguous binding")
	// ErrFatalConfig marks tuning parameters that cannot be used at all.
	ErrFatalConfig = errors.New("fatal configuration error")
)

// MaxSampleRateHz bounds the control loop rate.
const MaxSampleRateHz = 1000

// OverridePolicy decides which input cancels perpetual motion.
type OverridePolicy string

const (
	// OverrideAny cancels perpetual motion on any axis input past the deadzone.
	OverrideAny OverridePolicy = "any"
	// OverrideOpposing cancels it only on input against the latched direction.
	OverrideOpposing OverridePolicy = "opposing"
)

// AxisMapping binds a logical axis to a physical axis index.
type AxisMapping struct {
	Name   AxisName `json:"name" yaml:"name"`
	Index  int      `json:"index" yaml:"index"`
	Invert bool     `json:"invert" yaml:"invert"`
}

// ButtonMapping binds a logical action to a physical button index.
type ButtonMapping struct {
	Action Action `json:"action" yaml:"action"`
	Index  int    `json:"index" yaml:"index"`
}

// Profile holds mappings and tuning. It is read-only once a control loop
// has started with it.
type Profile struct {
	Axes    []AxisMapping   `json:"axes" yaml:"axes"`
	Buttons []ButtonMapping `json:"buttons" yaml:"buttons"`

	Deadzone     float64 `json:"deadzone" yaml:"deadzone"`
	TurnScale    float64 `json:"turn_scale" yaml:"turn_scale"`
	MaxSpeed     int     `json:"max_speed" yaml:"max_speed"`
	SampleRateHz float64 `json:"sample_rate_hz" yaml:"sample_rate_hz"`

	// SpeedSteps snaps each axis to the nearest 1/SpeedSteps. 0 disables it.
	SpeedSteps int `json:"speed_steps" yaml:"speed_steps"`
	// PerpetualSpeed is used when perpetual motion engages on neutral input.
	// 0 means half of MaxSpeed; values above MaxSpeed are capped.
	PerpetualSpeed    int            `json:"perpetual_speed" yaml:"perpetual_speed"`
	PerpetualOverride OverridePolicy `json:"perpetual_override" yaml:"perpetual_override"`
}

// Default returns the built-in profile used when no file exists. Its indices
// match a PS4-style pad under SDL/Linux and the keyboard source layout.
func Default() *Profile {
	return &Profile{
		Axes: []AxisMapping{
			{Name: Throttle, Index: 1, Invert: true},
			{Name: Turn, Index: 0},
		},
		Buttons: []ButtonMapping{
			{Action: OpenClaw, Index: 1},
			{Action: CloseClaw, Index: 2},
			{Action: OpenSlow, Index: 5},
			{Action: CloseSlow, Index: 4},
			{Action: StopClaw, Index: 3},
			{Action: PerpetualToggle, Index: 9},
			{Action: Quit, Index: 8},
		},
		Deadzone:          0.1,
		TurnScale:         1.0,
		MaxSpeed:          400,
		SampleRateHz:      20,
		PerpetualOverride: OverrideOpposing,
	}
}

// Axis returns the mapping for a logical axis.
func (p *Profile) Axis(name AxisName) (AxisMapping, bool) {
	for _, m := range p.Axes {
		if m.Name == name {
			return m, true
		}
	}
	return AxisMapping{}, false
}

// Button returns the mapping for a logical action.
func (p *Profile) Button(action Action) (ButtonMapping, bool) {
	for _, m := range p.Buttons {
		if m.Action == action {
			return m, true
		}
	}
	return ButtonMapping{}, false
}

// AxisAt returns the logical axis bound to a physical index.
func (p *Profile) AxisAt(index int) (AxisName, bool) {
	for _, m := range p.Axes {
		if m.Index == index {
			return m.Name, true
		}
	}
	return "", false
}

// ButtonAt returns the logical action bound to a physical index.
func (p *Profile) ButtonAt(index int) (Action, bool) {
	for _, m := range p.Buttons {
		if m.Index == index {
			return m.Action, true
		}
	}
	return "", false
}

// TickInterval is the control loop period.
func (p *Profile) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / p.SampleRateHz)
}

// EffectivePerpetualSpeed resolves the 0 default and caps at MaxSpeed. The
// result is never 0 for a valid profile.
func (p *Profile) EffectivePerpetualSpeed() int {
	if p.PerpetualSpeed == 0 {
		return max(1, p.MaxSpeed/2)
	}
	return min(p.PerpetualSpeed, p.MaxSpeed)
}

// EffectiveOverride resolves the empty default.
func (p *Profile) EffectiveOverride() OverridePolicy {
	if p.PerpetualOverride == "" {
		return OverrideOpposing
	}
	return p.PerpetualOverride
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Axes = append([]AxisMapping(nil), p.Axes...)
	c.Buttons = append([]ButtonMapping(nil), p.Buttons...)
	return &c
}

// Validate checks mappings and tuning. Every failure wraps ErrInvalid;
// duplicate physical indices wrap ErrAmbiguous.
func (p *Profile) Validate() error {
	if err := validateTuning(p); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}

	names := make(map[AxisName]bool)
	axisIdx := make(map[int]AxisName)
	for _, m := range p.Axes {
		if axisOrder(m.Name) < 0 {
			return errors.Wrapf(ErrInvalid, "unknown axis %q", m.Name)
		}
		if names[m.Name] {
			return errors.Wrapf(ErrInvalid, "axis %q mapped twice", m.Name)
		}
		if m.Index < 0 {
			return errors.Wrapf(ErrInvalid, "axis %q has negative index %d", m.Name, m.Index)
		}
		if other, ok := axisIdx[m.Index]; ok {
			return errors.Wrapf(ErrAmbiguous, "axis %d claimed by %q and %q", m.Index, other, m.Name)
		}
		names[m.Name] = true
		axisIdx[m.Index] = m.Name
	}

	actions := make(map[Action]bool)
	buttonIdx := make(map[int]Action)
	for _, m := range p.Buttons {
		if actionOrder(m.Action) < 0 {
			return errors.Wrapf(ErrInvalid, "unknown action %q", m.Action)
		}
		if actions[m.Action] {
			return errors.Wrapf(ErrInvalid, "action %q mapped twice", m.Action)
		}
		if m.Index < 0 {
			return errors.Wrapf(ErrInvalid, "action %q has negative index %d", m.Action, m.Index)
		}
		if other, ok := buttonIdx[m.Index]; ok {
			return errors.Wrapf(ErrAmbiguous, "button %d claimed by %q and %q", m.Index, other, m.Action)
		}
		actions[m.Action] = true
		buttonIdx[m.Index] = m.Action
	}
	return nil
}

func validateTuning(p *Profile) error {
	switch {
	case math.IsNaN(p.Deadzone) || p.Deadzone < 0 || p.Deadzone >= 1:
		return errors.Errorf("deadzone %v not in [0,1)", p.Deadzone)
	case math.IsNaN(p.TurnScale) || math.IsInf(p.TurnScale, 0) || p.TurnScale <= 0:
		return errors.Errorf("turn_scale %v must be > 0", p.TurnScale)
	case p.MaxSpeed <= 0:
		return errors.Errorf("max_speed %d must be > 0", p.MaxSpeed)
	case math.IsNaN(p.SampleRateHz) || p.SampleRateHz <= 0 || p.SampleRateHz > MaxSampleRateHz:
		return errors.Errorf("sample_rate_hz %v not in (0,%d]", p.SampleRateHz, MaxSampleRateHz)
	case p.SpeedSteps < 0:
		return errors.Errorf("speed_steps %d must be >= 0", p.SpeedSteps)
	case p.PerpetualSpeed < 0:
		return errors.Errorf("perpetual_speed %d must be >= 0", p.PerpetualSpeed)
	}
	switch p.PerpetualOverride {
	case "", OverrideAny, OverrideOpposing:
	default:
		return errors.Errorf("perpetual_override %q must be %q or %q", p.PerpetualOverride, OverrideAny, OverrideOpposing)
	}
	return nil
}

// canonicalize sorts mappings into logical order so saved documents are stable.
func (p *Profile) canonicalize() {
	sort.SliceStable(p.Axes, func(i, j int) bool {
		return axisOrder(p.Axes[i].Name) < axisOrder(p.Axes[j].Name)
	})
	sort.SliceStable(p.Buttons, func(i, j int) bool {
		return actionOrder(p.Buttons[i].Action) < actionOrder(p.Buttons[j].Action)
	})
}
