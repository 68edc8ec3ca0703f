package command

import (
	"math"

	"github.com/gwillem/clawctl/pkg/calibration"
	"github.com/gwillem/clawctl/pkg/input"
)

// Translate computes the command for one sample. It is pure: the result
// depends only on its arguments. The bool is false when the result equals
// prev and nothing needs to be sent.
//
// s must carry press/release edges (see input.EdgeTracker).
func Translate(s input.Sample, p *calibration.Profile, prev Command) (Command, bool) {
	throttle := axisValue(s, p, calibration.Throttle)
	turn := axisValue(s, p, calibration.Turn)

	next := Command{
		Left:  scale(throttle+turn*p.TurnScale, p.MaxSpeed),
		Right: scale(throttle-turn*p.TurnScale, p.MaxSpeed),
	}
	perpetual(s, p, prev, &next)

	// In perpetual mode the claw keeps its last action after release.
	next.Claw = clawAction(s, p, prev.Claw, next.Perpetual)
	if prev.Perpetual && !next.Perpetual && runs(next.Claw) && heldClaw(s, p) == ClawNone {
		next.Claw = ClawStop
	}

	return next, next != prev
}

// axisValue reads a logical axis with inversion, deadzone and quantization
// applied. Unmapped axes read as 0.
func axisValue(s input.Sample, p *calibration.Profile, name calibration.AxisName) float64 {
	m, ok := p.Axis(name)
	if !ok {
		return 0
	}
	v := s.Axis(m.Index)
	if m.Invert {
		v = -v
	}
	if math.Abs(v) < p.Deadzone {
		return 0
	}
	if p.SpeedSteps > 0 {
		n := float64(p.SpeedSteps)
		v = math.Round(v*n) / n
	}
	return v
}

// scale clamps v to [-1, 1] and maps it onto [-max, max], rounding half away
// from zero.
func scale(v float64, maxSpeed int) int {
	v = math.Max(-1, math.Min(1, v))
	return int(math.Round(v * float64(maxSpeed)))
}

var clawFor = map[calibration.Action]ClawAction{
	calibration.OpenClaw:  ClawOpen,
	calibration.CloseClaw: ClawClose,
	calibration.OpenSlow:  ClawOpenSlow,
	calibration.CloseSlow: ClawCloseSlow,
}

// clawAction latches the claw state. Presses start an action, releasing a
// claw button falls back to another held claw button or to STOP, and
// otherwise the previous state is kept so that holding yields one emission.
// A sticky claw keeps its action after release; only STOP_CLAW or another
// press changes it.
func clawAction(s input.Sample, p *calibration.Profile, prev ClawAction, sticky bool) ClawAction {
	if b, ok := p.Button(calibration.StopClaw); ok && s.JustPressed(b.Index) {
		return ClawStop
	}

	released := false
	for _, a := range calibration.ClawActions() {
		b, ok := p.Button(a)
		if !ok {
			continue
		}
		if s.JustPressed(b.Index) {
			return clawFor[a]
		}
		if s.JustReleased(b.Index) {
			released = true
		}
	}
	if !released {
		return prev
	}

	if held := heldClaw(s, p); held != ClawNone {
		return held
	}
	if sticky {
		return prev
	}
	return ClawStop
}

// heldClaw returns the action of the first held claw button, or ClawNone.
func heldClaw(s input.Sample, p *calibration.Profile) ClawAction {
	for _, a := range calibration.ClawActions() {
		if b, ok := p.Button(a); ok && s.Button(b.Index) {
			return clawFor[a]
		}
	}
	return ClawNone
}

func runs(a ClawAction) bool {
	return a != ClawNone && a != ClawStop
}

// perpetual applies the sticky perpetual-motion mode to next.
func perpetual(s input.Sample, p *calibration.Profile, prev Command, next *Command) {
	toggled := false
	if b, ok := p.Button(calibration.PerpetualToggle); ok && s.JustPressed(b.Index) {
		toggled = true
	}

	switch {
	case toggled && !prev.Perpetual:
		next.Perpetual = true
		if next.Left == 0 && next.Right == 0 {
			speed := p.EffectivePerpetualSpeed()
			next.Left, next.Right = speed, speed
		}
	case toggled && prev.Perpetual:
		next.Perpetual = false
	case prev.Perpetual:
		if overrides(p.EffectiveOverride(), prev, *next) {
			next.Perpetual = false
			return
		}
		next.Perpetual = true
		next.Left, next.Right = prev.Left, prev.Right
	}
}

// overrides decides whether live input cancels the latched motion.
func overrides(policy calibration.OverridePolicy, latched, live Command) bool {
	if live.Left == 0 && live.Right == 0 {
		return false
	}
	if policy == calibration.OverrideAny {
		return true
	}
	return live.Left*latched.Left+live.Right*latched.Right < 0
}

// Translator holds the last computed command between ticks.
type Translator struct {
	profile *calibration.Profile
	last    Command
}

// NewTranslator starts from a STOP command, which is what the hub is told
// on connect.
func NewTranslator(p *calibration.Profile) *Translator {
	return &Translator{profile: p, last: Stop()}
}

// Next translates s against the last command and remembers the result.
func (t *Translator) Next(s input.Sample) (Command, bool) {
	cmd, changed := Translate(s, t.profile, t.last)
	t.last = cmd
	return cmd, changed
}

// Reset drops every latch and returns STOP. The bool reports whether STOP
// differs from the last command.
func (t *Translator) Reset() (Command, bool) {
	stop := Stop()
	changed := t.last != stop
	t.last = stop
	return stop, changed
}

// Last returns the most recent command.
func (t *Translator) Last() Command {
	return t.last
}
