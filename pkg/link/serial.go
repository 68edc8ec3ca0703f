package link

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// AutoPort asks SerialTransport to pick the first plausible port.
const AutoPort = "auto"

// DefaultBaudRate matches the hub's USB/Bluetooth serial console.
const DefaultBaudRate = 115200

// SerialTransport talks to the hub over a serial port.
type SerialTransport struct {
	Port         string
	BaudRate     int
	WriteTimeout time.Duration
}

func (t *SerialTransport) String() string {
	return fmt.Sprintf("serial://%s?baud=%d", t.Port, t.BaudRate)
}

func (t *SerialTransport) Dial(ctx context.Context) (Conn, error) {
	port := t.Port
	if port == AutoPort {
		var err error
		if port, err = DiscoverPort(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := serial.Open(port, &serial.Mode{BaudRate: t.BaudRate})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", port)
	}
	// serial ports have no write deadline; the Manager times the write out
	return newStreamConn(p, nil, t.WriteTimeout), nil
}

// DiscoverPort returns the first serial port that is not a Bluetooth
// pseudo-port.
func DiscoverPort() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", errors.Wrap(err, "list serial ports")
	}
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		return port, nil
	}
	return "", errors.New("no serial port found")
}
