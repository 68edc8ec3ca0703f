package link

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// DefaultTopicPrefix is used when an mqtt:// URL has no path.
const DefaultTopicPrefix = "clawctl"

// MQTTTransport publishes command lines to <prefix>/cmd and reads status
// lines from <prefix>/status, for hubs bridged onto a broker.
type MQTTTransport struct {
	Broker       string // tcp://host:1883 or ssl://host:8883
	Prefix       string
	ClientID     string
	WriteTimeout time.Duration
}

func (t *MQTTTransport) String() string {
	return fmt.Sprintf("mqtt %s/%s", t.Broker, t.Prefix)
}

func (t *MQTTTransport) CommandTopic() string { return t.Prefix + "/cmd" }
func (t *MQTTTransport) StatusTopic() string  { return t.Prefix + "/status" }

func (t *MQTTTransport) Dial(ctx context.Context) (Conn, error) {
	conn := &mqttConn{
		topic:   t.CommandTopic(),
		timeout: t.WriteTimeout,
		lines:   make(chan string, 16),
		done:    make(chan struct{}),
	}

	// The Manager owns reconnects, so paho must not retry on its own.
	opts := mqtt.NewClientOptions().
		AddBroker(t.Broker).
		SetClientID(t.ClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			conn.fail(errors.Wrap(err, "mqtt connection lost"))
		})
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetConnectTimeout(time.Until(deadline))
	}

	client := mqtt.NewClient(opts)
	conn.client = client

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connect %s", t.Broker)
	}

	sub := client.Subscribe(t.StatusTopic(), 0, func(_ mqtt.Client, msg mqtt.Message) {
		conn.deliver(strings.TrimRight(string(msg.Payload()), "\r\n"))
	})
	select {
	case <-sub.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := sub.Error(); err != nil {
		client.Disconnect(0)
		return nil, errors.Wrapf(err, "subscribe %s", t.StatusTopic())
	}
	return conn, nil
}

type mqttConn struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	lines   chan string

	mu   sync.Mutex
	err  error
	done chan struct{}
}

func (c *mqttConn) WriteLine(line string) error {
	token := c.client.Publish(c.topic, 1, false, line)
	if c.timeout > 0 && !token.WaitTimeout(c.timeout) {
		return errors.Wrapf(ErrTimeout, "publish %s", c.topic)
	}
	if c.timeout <= 0 {
		token.Wait()
	}
	return token.Error()
}

func (c *mqttConn) ReadLine() (string, error) {
	select {
	case line := <-c.lines:
		return line, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return "", c.err
	}
}

// deliver drops status lines nobody is reading.
func (c *mqttConn) deliver(line string) {
	select {
	case c.lines <- line:
	default:
	}
}

func (c *mqttConn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	close(c.done)
}

func (c *mqttConn) Close() error {
	c.fail(errors.New("mqtt connection closed"))
	c.client.Disconnect(250)
	return nil
}
