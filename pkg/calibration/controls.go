// Package calibration maps physical input indices to logical controls and
// holds the tuning that shapes the command stream.
package calibration

// AxisName identifies a logical control axis.
type AxisName string

// Logical axes of the differential drive.
const (
	Throttle AxisName = "throttle"
	Turn     AxisName = "turn"
)

// AllAxes returns all logical axes in mapping order.
func AllAxes() []AxisName {
	return []AxisName{
		Throttle,
		Turn,
	}
}

// Action identifies a logical button action.
type Action string

// Button actions.
const (
	OpenClaw        Action = "open_claw"
	CloseClaw       Action = "close_claw"
	OpenSlow        Action = "open_slow"
	CloseSlow       Action = "close_slow"
	StopClaw        Action = "stop_claw"
	PerpetualToggle Action = "perpetual_toggle"
	Quit            Action = "quit"
)

// AllActions returns all button actions in mapping order.
func AllActions() []Action {
	return []Action{
		OpenClaw,
		CloseClaw,
		OpenSlow,
		CloseSlow,
		StopClaw,
		PerpetualToggle,
		Quit,
	}
}

// ClawActions returns the actions that keep the claw motor running while held.
// Earlier entries win when several are pressed on the same tick.
func ClawActions() []Action {
	return []Action{
		CloseClaw,
		OpenClaw,
		CloseSlow,
		OpenSlow,
	}
}

// IsClaw reports whether a drives the claw motor while held.
func (a Action) IsClaw() bool {
	switch a {
	case OpenClaw, CloseClaw, OpenSlow, CloseSlow:
		return true
	}
	return false
}

func axisOrder(name AxisName) int {
	for i, n := range AllAxes() {
		if n == name {
			return i
		}
	}
	return -1
}

func actionOrder(a Action) int {
	for i, n := range AllActions() {
		if n == a {
			return i
		}
	}
	return -1
}
