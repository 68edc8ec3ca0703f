// Package clawctl drives a hub-controlled claw robot from a keyboard or
// gamepad.
//
// Operator input is sampled at a fixed rate, turned into differential drive
// and claw commands, and sent to the hub as one text line per command over
// serial, TCP, MQTT or a websocket bridge. The link reconnects on its own
// and the hub is always told to stop on connect and on exit.
//
// # Installation
//
//	go install github.com/gwillem/clawctl/cmd/clawctl@latest
//
// # Usage
//
// Check which physical axes and buttons your controller reports:
//
//	clawctl diagnose
//
// Bind them to logical controls and save a profile:
//
//	clawctl map
//
// Then drive:
//
//	clawctl run --link serial://auto
//
// Without a profile, run uses a built-in mapping for common gamepads.
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/clawctl: CLI with diagnose, map and run commands
//   - pkg/input: keyboard and gamepad sources, edge tracking
//   - pkg/calibration: profiles, persistence and the interactive mapper
//   - pkg/command: command translation and the hub line format
//   - pkg/link: hub connection manager and transports
//   - pkg/teleop: the control loop
package clawctl
