package main

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/gwillem/clawctl/pkg/calibration"
	"github.com/gwillem/clawctl/pkg/input"
)

type InputOptions struct {
	Input        string        `short:"i" long:"input" env:"CLAWCTL_INPUT" choice:"gamepad" choice:"keyboard" default:"gamepad" description:"Input device"`
	GamepadIndex int           `long:"gamepad-index" env:"CLAWCTL_GAMEPAD_INDEX" default:"0" description:"Joystick number to open"`
	KeyHold      time.Duration `long:"key-hold" env:"CLAWCTL_KEY_HOLD" default:"500ms" description:"How long a key counts as held after its last repeat"`
}

// Nil fields keep the profile value.
type TuningOptions struct {
	Deadzone          *float64 `long:"deadzone" env:"CLAWCTL_DEADZONE" description:"Axis magnitude treated as neutral, in [0,1)"`
	TurnScale         *float64 `long:"turn-scale" env:"CLAWCTL_TURN_SCALE" description:"Turn axis multiplier"`
	MaxSpeed          *int     `long:"max-speed" env:"CLAWCTL_MAX_SPEED" description:"Motor speed at full deflection"`
	SampleRate        *float64 `long:"sample-rate" env:"CLAWCTL_SAMPLE_RATE" description:"Control loop rate in Hz"`
	SpeedSteps        *int     `long:"speed-steps" env:"CLAWCTL_SPEED_STEPS" description:"Snap axes to this many steps per direction (0 = off)"`
	PerpetualSpeed    *int     `long:"perpetual-speed" env:"CLAWCTL_PERPETUAL_SPEED" description:"Speed used when perpetual mode engages on neutral input"`
	PerpetualOverride *string  `long:"perpetual-override" env:"CLAWCTL_PERPETUAL_OVERRIDE" choice:"any" choice:"opposing" description:"Input that cancels perpetual mode"`
}

func (o TuningOptions) Tuning() calibration.Tuning {
	return calibration.Tuning{
		Deadzone:          o.Deadzone,
		TurnScale:         o.TurnScale,
		MaxSpeed:          o.MaxSpeed,
		SampleRateHz:      o.SampleRate,
		SpeedSteps:        o.SpeedSteps,
		PerpetualSpeed:    o.PerpetualSpeed,
		PerpetualOverride: o.PerpetualOverride,
	}
}

type LinkOptions struct {
	Link             string        `short:"l" long:"link" env:"CLAWCTL_LINK" default:"serial://auto" description:"Hub link URL: serial://auto, serial:///dev/ttyACM0?baud=115200, tcp://host:port, mqtt://broker:1883/prefix, ws://host:port/path"`
	ConnectTimeout   time.Duration `long:"connect-timeout" env:"CLAWCTL_CONNECT_TIMEOUT" default:"5s" description:"Give up a connection attempt after this long"`
	WriteTimeout     time.Duration `long:"write-timeout" env:"CLAWCTL_WRITE_TIMEOUT" default:"200ms" description:"Drop the link when a command takes longer to write"`
	Heartbeat        time.Duration `long:"heartbeat" env:"CLAWCTL_HEARTBEAT" default:"1s" description:"Ping interval (0 = off)"`
	HeartbeatTimeout time.Duration `long:"heartbeat-timeout" env:"CLAWCTL_HEARTBEAT_TIMEOUT" default:"0s" description:"Drop a link silent for this long (0 = never, for hubs that do not answer)"`
	MaxBackoff       time.Duration `long:"max-backoff" env:"CLAWCTL_MAX_BACKOFF" default:"10s" description:"Longest wait between reconnect attempts"`
}

// openSource opens the configured input. The keyboard is returned separately
// because the screen has to feed it key events. With fallback set, a missing
// gamepad is replaced by the keyboard.
func openSource(o InputOptions, fallback bool, logger *log.Logger) (input.Source, *input.Keyboard, error) {
	if o.Input == "keyboard" {
		kb := input.NewKeyboard(o.KeyHold)
		return kb, kb, nil
	}

	g, err := input.NewGamepad(o.GamepadIndex)
	if err == nil {
		logger.Info("gamepad opened", "name", g.Name())
		return g, nil, nil
	}
	if fallback {
		logger.Warn("no gamepad, using keyboard", "err", err)
		kb := input.NewKeyboard(o.KeyHold)
		return kb, kb, nil
	}
	if errors.Is(err, input.ErrUnavailable) {
		// keeps retrying on Poll
		logger.Warn("gamepad not found yet", "err", err)
		return g, nil, nil
	}
	return nil, nil, err
}
