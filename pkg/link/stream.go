package link

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"
)

// streamConn frames a byte stream (serial port, TCP socket) into lines.
type streamConn struct {
	rw       io.ReadWriteCloser
	r        *bufio.Reader
	deadline func(time.Time) error
	timeout  time.Duration
	once     sync.Once
}

func newStreamConn(rw io.ReadWriteCloser, deadline func(time.Time) error, timeout time.Duration) *streamConn {
	return &streamConn{
		rw:       rw,
		r:        bufio.NewReader(rw),
		deadline: deadline,
		timeout:  timeout,
	}
}

func (c *streamConn) WriteLine(line string) error {
	if c.deadline != nil && c.timeout > 0 {
		if err := c.deadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.rw, line)
	return err
}

func (c *streamConn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *streamConn) Close() error {
	var err error
	c.once.Do(func() { err = c.rw.Close() })
	return err
}
