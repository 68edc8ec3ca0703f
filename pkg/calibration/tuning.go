package calibration

import "github.com/pkg/errors"

// Tuning carries operator overrides for profile tuning. Nil fields leave the
// profile value alone.
type Tuning struct {
	Deadzone          *float64
	TurnScale         *float64
	MaxSpeed          *int
	SampleRateHz      *float64
	SpeedSteps        *int
	PerpetualSpeed    *int
	PerpetualOverride *string
}

// Apply writes the set overrides into p and validates the result.
// Unusable values are reported as ErrFatalConfig.
func (t Tuning) Apply(p *Profile) error {
	if t.Deadzone != nil {
		p.Deadzone = *t.Deadzone
	}
	if t.TurnScale != nil {
		p.TurnScale = *t.TurnScale
	}
	if t.MaxSpeed != nil {
		p.MaxSpeed = *t.MaxSpeed
	}
	if t.SampleRateHz != nil {
		p.SampleRateHz = *t.SampleRateHz
	}
	if t.SpeedSteps != nil {
		p.SpeedSteps = *t.SpeedSteps
	}
	if t.PerpetualSpeed != nil {
		p.PerpetualSpeed = *t.PerpetualSpeed
	}
	if t.PerpetualOverride != nil {
		p.PerpetualOverride = OverridePolicy(*t.PerpetualOverride)
	}
	if err := validateTuning(p); err != nil {
		return errors.Wrap(ErrFatalConfig, err.Error())
	}
	return nil
}
