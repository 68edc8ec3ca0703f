package link

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebSocketTransport sends each command line as one text message to a
// websocket bridge.
type WebSocketTransport struct {
	URL          string
	WriteTimeout time.Duration
}

func (t *WebSocketTransport) String() string { return t.URL }

func (t *WebSocketTransport) Dial(ctx context.Context) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, t.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", t.URL)
	}
	return &wsConn{c: c, timeout: t.WriteTimeout}, nil
}

type wsConn struct {
	c       *websocket.Conn
	timeout time.Duration
	once    sync.Once
}

func (w *wsConn) WriteLine(line string) error {
	if w.timeout > 0 {
		w.c.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.c.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w *wsConn) ReadLine() (string, error) {
	_, data, err := w.c.ReadMessage()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = w.c.Close()
	})
	return err
}
