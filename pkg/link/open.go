package link

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Options shared by all transports built from a URL.
type Options struct {
	WriteTimeout time.Duration
	ClientID     string
}

// Open builds a transport from a link URL:
//
//	serial:///dev/ttyACM0?baud=115200
//	serial://auto
//	tcp://192.168.4.1:2323
//	mqtt://broker:1883/robot   (mqtts:// for TLS)
//	ws://host:8080/hub         (wss:// for TLS)
func Open(rawURL string, opts Options) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "link url %q", rawURL)
	}

	switch u.Scheme {
	case "serial":
		port := u.Host + u.Path
		if port == "" {
			return nil, errors.Errorf("link url %q: missing port", rawURL)
		}
		baud := DefaultBaudRate
		if v := u.Query().Get("baud"); v != "" {
			if baud, err = strconv.Atoi(v); err != nil || baud <= 0 {
				return nil, errors.Errorf("link url %q: bad baud rate %q", rawURL, v)
			}
		}
		return &SerialTransport{Port: port, BaudRate: baud, WriteTimeout: opts.WriteTimeout}, nil

	case "tcp":
		if u.Port() == "" {
			return nil, errors.Errorf("link url %q: missing port", rawURL)
		}
		return &TCPTransport{Addr: u.Host, WriteTimeout: opts.WriteTimeout}, nil

	case "mqtt", "mqtts":
		if u.Host == "" {
			return nil, errors.Errorf("link url %q: missing broker", rawURL)
		}
		scheme, port := "tcp", "1883"
		if u.Scheme == "mqtts" {
			scheme, port = "ssl", "8883"
		}
		host := u.Host
		if u.Port() == "" {
			host += ":" + port
		}
		prefix := strings.Trim(u.Path, "/")
		if prefix == "" {
			prefix = DefaultTopicPrefix
		}
		id := opts.ClientID
		if id == "" {
			id = fmt.Sprintf("clawctl-%d", os.Getpid())
		}
		return &MQTTTransport{
			Broker:       scheme + "://" + host,
			Prefix:       prefix,
			ClientID:     id,
			WriteTimeout: opts.WriteTimeout,
		}, nil

	case "ws", "wss":
		return &WebSocketTransport{URL: u.String(), WriteTimeout: opts.WriteTimeout}, nil
	}
	return nil, errors.Errorf("link url %q: unsupported scheme %q", rawURL, u.Scheme)
}
