// Package push implements the client side of the backend's push channel, a
// WebSocket carrying {type, payload} JSON envelopes.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cpuview/cpuview/pkg/logflags"
	"github.com/cpuview/cpuview/service/api"
)

// Path is the push channel endpoint, relative to the backend's host.
const Path = "/ws"

// Handler receives decoded events. It is called from the reader goroutine,
// one event at a time.
type Handler func(api.Event)

// Client reads the push channel and reconnects when the connection drops.
type Client struct {
	url    string
	dialer *websocket.Dialer
	log    logflags.Logger

	// MinBackoff and MaxBackoff bound the delay between reconnection
	// attempts. The delay doubles after every failed attempt.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnConnect, if set, is called after every successful connection.
	OnConnect func()
	// OnDisconnect, if set, is called when an established connection is lost.
	OnDisconnect func(err error)
}

// NewClient returns a client for the push channel at wsURL.
func NewClient(wsURL string) *Client {
	return &Client{
		url:        wsURL,
		dialer:     websocket.DefaultDialer,
		log:        logflags.PushLogger(),
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
	}
}

// URLFromBase derives the push channel URL from the REST base URL: the
// scheme becomes ws or wss and the path is replaced with Path.
func URLFromBase(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in %s", u.Scheme, base)
	}
	u.Path = Path
	u.RawQuery = ""
	return u.String(), nil
}

// Run delivers events to h until ctx is done. Connection failures are
// retried with backoff; Run only returns ctx's error.
func (c *Client) Run(ctx context.Context, h Handler) error {
	backoff := c.MinBackoff
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warnf("connecting to %s: %v, retrying in %v", c.url, err, backoff)
		} else {
			backoff = c.MinBackoff
			if c.OnConnect != nil {
				c.OnConnect()
			}
			err = c.read(ctx, conn, h)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warnf("push channel lost: %v", err)
			if c.OnDisconnect != nil {
				c.OnDisconnect(err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
}

func (c *Client) read(ctx context.Context, conn *websocket.Conn, h Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if logflags.Push() {
			c.log.Debugf("<- %s", data)
		}
		var ev api.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			c.log.Warnf("skipping undecodable frame: %q", data)
			continue
		}
		h(ev)
	}
}
