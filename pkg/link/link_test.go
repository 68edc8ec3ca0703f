package link

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gwillem/clawctl/pkg/command"
	"github.com/pkg/errors"
)

type fakeConn struct {
	mu         sync.Mutex
	lines      []string
	failWrites bool
	in         chan string
	closed     chan struct{}
	once       sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan string, 8), closed: make(chan struct{})}
}

func (c *fakeConn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	if c.failWrites {
		return errors.New("broken pipe")
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case l := <-c.in:
		return l, nil
	case <-c.closed:
		return "", io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *fakeConn) setFailWrites(v bool) {
	c.mu.Lock()
	c.failWrites = v
	c.mu.Unlock()
}

type fakeTransport struct {
	mu        sync.Mutex
	failDials int
	block     bool
	conns     []*fakeConn
}

func (t *fakeTransport) String() string { return "fake" }

func (t *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	t.mu.Lock()
	if t.block {
		t.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer t.mu.Unlock()
	if t.failDials > 0 {
		t.failDials--
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) dials() []*fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeConn(nil), t.conns...)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestManager_ConnectSendsStopFirst(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(Config{Transport: tr, Logger: quietLogger()})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.State() != Connected {
		t.Fatalf("state = %v, want connected", m.State())
	}
	if err := m.Send(command.Command{Left: 10, Right: 10}); err != nil {
		t.Fatal(err)
	}

	got := tr.dials()[0].written()
	want := []string{"stop\n", "drive 10 10 claw none\n"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestManager_SendNotConnected(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(Config{Transport: tr, Logger: quietLogger()})

	if err := m.Send(command.Stop()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if n := len(tr.dials()); n != 0 {
		t.Errorf("send dialed %d times", n)
	}
}

func TestManager_WriteFailureDrops(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(Config{Transport: tr, Logger: quietLogger()})
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	tr.dials()[0].setFailWrites(true)
	if err := m.Send(command.Stop()); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("err = %v, want ErrWriteFailed", err)
	}
	if m.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}
	if err := m.Send(command.Stop()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected after drop", err)
	}
}

func TestManager_ConnectTimeout(t *testing.T) {
	tr := &fakeTransport{block: true}
	m := NewManager(Config{Transport: tr, ConnectTimeout: 20 * time.Millisecond, Logger: quietLogger()})

	err := m.Connect(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if m.State() != Failed {
		t.Errorf("state = %v, want failed", m.State())
	}
}

func TestManager_RunReconnects(t *testing.T) {
	tr := &fakeTransport{failDials: 2}
	m := NewManager(Config{
		Transport:  tr,
		MinBackoff: time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
		Logger:     quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, "first connect", func() bool { return m.State() == Connected })

	// hub goes away
	tr.dials()[0].Close()

	waitFor(t, "reconnect", func() bool {
		return len(tr.dials()) == 2 && m.State() == Connected
	})
	if got := tr.dials()[1].written(); len(got) == 0 || got[0] != "stop\n" {
		t.Errorf("reconnect wrote %q, want stop first", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManager_HeartbeatTimeout(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(Config{
		Transport:        tr,
		Heartbeat:        5 * time.Millisecond,
		HeartbeatTimeout: 30 * time.Millisecond,
		MinBackoff:       time.Millisecond,
		Logger:           quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitFor(t, "silent link dropped", func() bool { return len(tr.dials()) >= 2 })

	pinged := false
	for _, l := range tr.dials()[0].written() {
		if l == PingLine {
			pinged = true
		}
	}
	if !pinged {
		t.Error("no heartbeat ping written")
	}
}

func TestManager_CloseSendsStop(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(Config{Transport: tr, Logger: quietLogger()})
	m.Connect(context.Background())
	m.Send(command.Command{Left: 50, Right: 50})

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	got := tr.dials()[0].written()
	if got[len(got)-1] != "stop\n" {
		t.Errorf("last line = %q, want stop", got[len(got)-1])
	}
	if m.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"serial:///dev/ttyACM0", "serial:///dev/ttyACM0?baud=115200"},
		{"serial://auto?baud=9600", "serial://auto?baud=9600"},
		{"tcp://192.168.4.1:2323", "tcp://192.168.4.1:2323"},
		{"mqtt://broker/robot", "mqtt tcp://broker:1883/robot"},
		{"mqtts://broker:9000", "mqtt ssl://broker:9000/clawctl"},
		{"ws://host:8080/hub", "ws://host:8080/hub"},
	}
	for _, tt := range tests {
		tr, err := Open(tt.url, Options{})
		if err != nil {
			t.Errorf("Open(%q): %v", tt.url, err)
			continue
		}
		if got := tr.String(); got != tt.want {
			t.Errorf("Open(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}

	for _, bad := range []string{"serial://", "serial://auto?baud=fast", "tcp://host", "mqtt:///x", "ftp://host"} {
		if _, err := Open(bad, Options{}); err == nil {
			t.Errorf("Open(%q) should fail", bad)
		}
	}
}
