// Package command turns input samples into hub commands and serializes them
// as single text lines.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ClawAction is what the claw motor should do.
type ClawAction uint8

const (
	ClawNone ClawAction = iota
	ClawOpen
	ClawClose
	ClawOpenSlow
	ClawCloseSlow
	ClawStop
)

var clawNames = [...]string{
	ClawNone:      "none",
	ClawOpen:      "open",
	ClawClose:     "close",
	ClawOpenSlow:  "open_slow",
	ClawCloseSlow: "close_slow",
	ClawStop:      "stop",
}

func (a ClawAction) String() string {
	if int(a) < len(clawNames) {
		return clawNames[a]
	}
	return fmt.Sprintf("claw(%d)", a)
}

// ParseClawAction is the inverse of ClawAction.String.
func ParseClawAction(s string) (ClawAction, error) {
	for i, n := range clawNames {
		if n == s {
			return ClawAction(i), nil
		}
	}
	return ClawNone, errors.Errorf("unknown claw action %q", s)
}

// Command is one logical instruction for the hub. Commands are compared by
// value for de-duplication.
type Command struct {
	Left      int
	Right     int
	Claw      ClawAction
	Perpetual bool
}

// Stop halts every actuator.
func Stop() Command {
	return Command{Claw: ClawStop}
}

// IsStop reports whether c leaves every actuator halted.
func (c Command) IsStop() bool {
	return c == Stop()
}

// Moving reports whether any actuator would run.
func (c Command) Moving() bool {
	switch c.Claw {
	case ClawNone, ClawStop:
		return c.Left != 0 || c.Right != 0
	}
	return true
}

// Line renders the command as one hub interpreter line, newline included.
func (c Command) Line() string {
	if c.IsStop() {
		return "stop\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "drive %d %d claw %s", c.Left, c.Right, c.Claw)
	if c.Perpetual {
		b.WriteString(" perpetual")
	}
	b.WriteByte('\n')
	return b.String()
}

func (c Command) String() string {
	return strings.TrimSuffix(c.Line(), "\n")
}

// ParseLine parses a line produced by Line. The trailing newline is optional.
func ParseLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 1 && fields[0] == "stop" {
		return Stop(), nil
	}
	if len(fields) < 5 || len(fields) > 6 || fields[0] != "drive" || fields[3] != "claw" {
		return Command{}, errors.Errorf("malformed command %q", strings.TrimSpace(line))
	}

	left, err := strconv.Atoi(fields[1])
	if err != nil {
		return Command{}, errors.Wrap(err, "left speed")
	}
	right, err := strconv.Atoi(fields[2])
	if err != nil {
		return Command{}, errors.Wrap(err, "right speed")
	}
	claw, err := ParseClawAction(fields[4])
	if err != nil {
		return Command{}, err
	}
	c := Command{Left: left, Right: right, Claw: claw}
	if len(fields) == 6 {
		if fields[5] != "perpetual" {
			return Command{}, errors.Errorf("unknown flag %q", fields[5])
		}
		c.Perpetual = true
	}
	return c, nil
}
