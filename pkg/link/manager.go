package link

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/gwillem/clawctl/pkg/command"
	"github.com/pkg/errors"
)

// Config for a Manager. Zero durations take the defaults below.
type Config struct {
	Transport Transport

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// Heartbeat is the ping interval. 0 disables pings.
	Heartbeat time.Duration
	// HeartbeatTimeout drops a link that has been silent this long. 0 never
	// drops on silence, for hubs that do not answer.
	HeartbeatTimeout time.Duration

	MinBackoff time.Duration
	MaxBackoff time.Duration

	Logger *log.Logger
}

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 200 * time.Millisecond
	DefaultMinBackoff     = 250 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
)

// Manager owns one hub connection at a time. Send is safe to call from the
// control loop while Run keeps the link alive in the background.
type Manager struct {
	cfg Config
	log *log.Logger

	mu       sync.Mutex
	state    State
	conn     Conn
	gen      uint64
	lastSeen time.Time
	lastErr  error

	writeMu sync.Mutex
	lost    chan struct{}
}

// NewManager creates a disconnected manager.
func NewManager(cfg Config) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(DefaultMaxBackoff, cfg.MinBackoff)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:  cfg,
		log:  logger.WithPrefix("link"),
		lost: make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation counts successful connects. Each new connection starts with a
// STOP, so a caller whose last send went out under an older generation has
// to repeat it.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Err returns the error that caused the last failure or drop.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Transport returns the configured transport.
func (m *Manager) Transport() Transport {
	return m.cfg.Transport
}

// Connect makes one bounded connection attempt. On success STOP has already
// been written, so the hub does not keep running a command from before.
func (m *Manager) Connect(ctx context.Context) error {
	m.setState(Connecting, nil)

	conn, err := m.dial(ctx)
	if err != nil {
		m.setState(Failed, err)
		return err
	}

	m.writeMu.Lock()
	err = m.write(conn, command.Stop().Line())
	m.writeMu.Unlock()
	if err != nil {
		conn.Close()
		err = errors.WithMessage(err, "initial stop")
		m.setState(Failed, err)
		return err
	}

	select {
	case <-m.lost:
	default:
	}
	m.mu.Lock()
	m.conn = conn
	m.gen++
	m.state = Connected
	m.lastSeen = time.Now()
	m.lastErr = nil
	m.mu.Unlock()

	go m.readLoop(conn)
	return nil
}

// dial runs Transport.Dial under ConnectTimeout. A dial that ignores its
// context is abandoned and its late connection closed.
func (m *Manager) dial(ctx context.Context) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	type result struct {
		conn Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := m.cfg.Transport.Dial(ctx)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			return r.conn, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "connect %s: %v", m.cfg.Transport, r.err)
		}
		return nil, errors.Wrapf(r.err, "connect %s", m.cfg.Transport)
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "connect %s after %s", m.cfg.Transport, m.cfg.ConnectTimeout)
		}
		return nil, ctx.Err()
	}
}

// Send writes one command. It never blocks longer than WriteTimeout and
// fails fast with ErrNotConnected when the link is down. A failed write
// drops the connection so Run starts a fresh retry cycle.
func (m *Manager) Send(cmd command.Command) error {
	return m.writeLine(cmd.Line())
}

func (m *Manager) writeLine(line string) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	err := m.write(conn, line)
	m.writeMu.Unlock()
	if err != nil {
		m.drop(conn, err)
		return err
	}
	return nil
}

// write must be called with writeMu held.
func (m *Manager) write(conn Conn, line string) error {
	done := make(chan error, 1)
	go func() { done <- conn.WriteLine(line) }()

	timer := time.NewTimer(m.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return err
			}
			return errors.Wrapf(ErrWriteFailed, "%v", err)
		}
		return nil
	case <-timer.C:
		// closing unblocks the stuck writer
		conn.Close()
		return errors.Wrapf(ErrTimeout, "write after %s", m.cfg.WriteTimeout)
	}
}

// drop tears conn down if it is still the current connection.
func (m *Manager) drop(conn Conn, err error) {
	m.mu.Lock()
	current := m.conn == conn
	if current {
		m.conn = nil
		m.state = Disconnected
		m.lastErr = err
	}
	m.mu.Unlock()

	conn.Close()
	if !current {
		return
	}
	m.log.Warn("link lost", "err", err)
	select {
	case m.lost <- struct{}{}:
	default:
	}
}

func (m *Manager) readLoop(conn Conn) {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			m.drop(conn, errors.Wrap(err, "read"))
			return
		}
		m.mu.Lock()
		if m.conn == conn {
			m.lastSeen = time.Now()
		}
		m.mu.Unlock()
		if line != "" {
			m.log.Debug("hub", "line", line)
		}
	}
}

func (m *Manager) setState(s State, err error) {
	m.mu.Lock()
	m.state = s
	if err != nil {
		m.lastErr = err
	}
	m.mu.Unlock()
}

func (m *Manager) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.MinBackoff
	b.MaxInterval = m.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run connects and keeps reconnecting until ctx is done. Failed attempts
// back off exponentially up to MaxBackoff; a successful connect resets it.
func (m *Manager) Run(ctx context.Context) error {
	b := m.newBackOff()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := b.NextBackOff()
			m.log.Warn("connect failed", "transport", m.cfg.Transport, "err", err, "retry", wait.Round(time.Millisecond))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		b.Reset()
		m.log.Info("connected", "transport", m.cfg.Transport)
		m.supervise(ctx)
	}
}

// supervise returns when the current connection is lost or ctx is done.
func (m *Manager) supervise(ctx context.Context) {
	var tick <-chan time.Time
	if m.cfg.Heartbeat > 0 {
		t := time.NewTicker(m.cfg.Heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.lost:
			return
		case <-tick:
			m.mu.Lock()
			conn, silent := m.conn, time.Since(m.lastSeen)
			m.mu.Unlock()
			if conn == nil {
				return
			}
			if m.cfg.HeartbeatTimeout > 0 && silent > m.cfg.HeartbeatTimeout {
				m.drop(conn, errors.Wrapf(ErrTimeout, "no heartbeat for %s", silent.Round(time.Millisecond)))
				return
			}
			if err := m.writeLine(PingLine); err != nil {
				return
			}
		}
	}
}

// Close sends a best-effort STOP and closes the connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	m.mu.Unlock()
	if conn == nil {
		return nil
	}

	m.writeMu.Lock()
	err := m.write(conn, command.Stop().Line())
	m.writeMu.Unlock()
	conn.Close()
	return err
}
