package link

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// TCPTransport reaches the hub through a serial-to-TCP bridge.
type TCPTransport struct {
	Addr         string
	WriteTimeout time.Duration
}

func (t *TCPTransport) String() string { return "tcp://" + t.Addr }

func (t *TCPTransport) Dial(ctx context.Context) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", t.Addr)
	}
	return newStreamConn(c, c.SetWriteDeadline, t.WriteTimeout), nil
}
