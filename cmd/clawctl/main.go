package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/gwillem/clawctl/pkg/calibration"
	"github.com/gwillem/clawctl/pkg/input"
)

type Options struct {
	Profile string `short:"p" long:"profile" env:"CLAWCTL_PROFILE" default:"clawctl.json" description:"Calibration profile (.json, .yaml or .yml)"`
	LogFile string `long:"log-file" env:"CLAWCTL_LOG_FILE" description:"Write logs to this file while a screen is shown"`
	Verbose bool   `short:"v" long:"verbose" env:"CLAWCTL_VERBOSE" description:"Log debug messages"`

	Diagnose DiagnoseCommand `command:"diagnose" description:"Show live axis and button values with their physical indices"`
	Map      MapCommand      `command:"map" alias:"interactive-map" description:"Bind controls step by step and save a calibration profile"`
	Run      RunCommand      `command:"run" description:"Drive the robot"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "clawctl - drive a hub-controlled claw robot from a keyboard or gamepad"

	_, err := parser.Parse()
	if err == nil {
		return
	}
	// go-flags has already printed err
	if flagsErr, ok := err.(*flags.Error); ok {
		switch flagsErr.Type {
		case flags.ErrHelp:
			os.Exit(0)
		case flags.ErrMarshal:
			os.Exit(2)
		}
		os.Exit(1)
	}
	if hint := remediation(err); hint != "" {
		fmt.Fprintln(os.Stderr, dimStyle.Render("hint: "+hint))
	}
	if errors.Is(err, calibration.ErrFatalConfig) {
		os.Exit(2)
	}
	os.Exit(1)
}

func remediation(err error) string {
	switch {
	case errors.Is(err, calibration.ErrAmbiguous):
		return "two controls share one input; run 'clawctl map' again"
	case errors.Is(err, calibration.ErrInvalid):
		return "fix or remove " + opts.Profile + ", or run 'clawctl map'"
	case errors.Is(err, calibration.ErrFatalConfig):
		return "check the tuning and link flags, see 'clawctl run --help'"
	case errors.Is(err, input.ErrUnavailable):
		return "connect a gamepad or use --input keyboard"
	}
	return ""
}
