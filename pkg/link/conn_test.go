package link

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

func TestStreamConn_ReadLine(t *testing.T) {
	client, hub := net.Pipe()
	c := newStreamConn(client, client.SetWriteDeadline, time.Second)
	defer c.Close()

	go func() {
		io.WriteString(hub, "ok\r\nhello\n\npartial")
		hub.Close()
	}()

	for _, want := range []string{"ok", "hello", "", "partial"} {
		got, err := c.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine() error %v, want %q", err, want)
		}
		if got != want {
			t.Errorf("ReadLine() = %q, want %q", got, want)
		}
	}
	if _, err := c.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadLine() after close = %v, want EOF", err)
	}
}

func TestStreamConn_WriteLine(t *testing.T) {
	client, hub := net.Pipe()
	c := newStreamConn(client, client.SetWriteDeadline, time.Second)
	defer c.Close()
	defer hub.Close()

	got := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(hub).ReadString('\n')
		got <- line
	}()

	if err := c.WriteLine("drive 10 -10 claw none\n"); err != nil {
		t.Fatal(err)
	}
	if line := <-got; line != "drive 10 -10 claw none\n" {
		t.Errorf("hub read %q", line)
	}
}

func TestStreamConn_WriteDeadline(t *testing.T) {
	client, hub := net.Pipe()
	defer hub.Close()
	c := newStreamConn(client, client.SetWriteDeadline, 20*time.Millisecond)
	defer c.Close()

	start := time.Now()
	if err := c.WriteLine("stop\n"); err == nil {
		t.Fatal("write to a hub that never reads succeeded")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("write blocked for %s", elapsed)
	}
}

func TestStreamConn_CloseTwice(t *testing.T) {
	client, hub := net.Pipe()
	defer hub.Close()
	c := newStreamConn(client, nil, 0)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestTCPTransport_Dial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		io.WriteString(conn, "ack\r\n")
		got <- line
		r.ReadString('\n')
	}()

	tr := &TCPTransport{Addr: ln.Addr().String(), WriteTimeout: time.Second}
	c, err := tr.Dial(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.WriteLine("stop\n"); err != nil {
		t.Fatal(err)
	}
	if line, err := c.ReadLine(); err != nil || line != "ack" {
		t.Errorf("ReadLine() = %q, %v; want ack", line, err)
	}
	if line := <-got; line != "stop\n" {
		t.Errorf("bridge read %q, want stop", line)
	}
}

// wsHub answers each text message with "ok" and reports what it received.
func wsHub(t *testing.T, received chan<- string, closed chan<- int) *httptest.Server {
	t.Helper()
	var upgrader websocket.Upgrader
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				code := -1
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					code = ce.Code
				}
				closed <- code
				return
			}
			received <- string(data)
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ok\r\n")); err != nil {
				return
			}
		}
	}))
}

func TestWebSocketTransport(t *testing.T) {
	received := make(chan string, 4)
	closed := make(chan int, 1)
	srv := wsHub(t, received, closed)
	defer srv.Close()

	tr := &WebSocketTransport{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), WriteTimeout: time.Second}
	c, err := tr.Dial(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if err := c.WriteLine("drive 5 5 claw open\n"); err != nil {
		t.Fatal(err)
	}
	if msg := <-received; msg != "drive 5 5 claw open\n" {
		t.Errorf("hub received %q", msg)
	}
	if line, err := c.ReadLine(); err != nil || line != "ok" {
		t.Errorf("ReadLine() = %q, %v; want ok", line, err)
	}

	c.Close()
	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Errorf("close code = %d, want %d", code, websocket.CloseNormalClosure)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub never saw the close")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestWebSocketTransport_DialRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	tr := &WebSocketTransport{URL: url}
	if _, err := tr.Dial(context.Background()); err == nil {
		t.Error("dial to a closed server succeeded")
	}
}

func TestMQTTConn_StatusLines(t *testing.T) {
	c := &mqttConn{lines: make(chan string, 1), done: make(chan struct{})}
	c.deliver("ready")
	c.deliver("dropped")

	if line, err := c.ReadLine(); err != nil || line != "ready" {
		t.Errorf("ReadLine() = %q, %v; want ready", line, err)
	}

	lost := errors.New("broker went away")
	c.fail(lost)
	c.fail(errors.New("second failure"))
	if _, err := c.ReadLine(); err != lost {
		t.Errorf("ReadLine() after fail = %v, want %v", err, lost)
	}
}

func TestMQTTTransport_DialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr := &MQTTTransport{Broker: "tcp://" + addr, Prefix: "test", ClientID: "clawctl-test"}
	if _, err := tr.Dial(ctx); err == nil {
		t.Error("dial to a closed broker port succeeded")
	}
	if tr.CommandTopic() != "test/cmd" || tr.StatusTopic() != "test/status" {
		t.Errorf("topics = %s, %s", tr.CommandTopic(), tr.StatusTopic())
	}
}
