package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cpuview/cpuview/service/api"
)

var upgrader = websocket.Upgrader{}

func TestURLFromBase(t *testing.T) {
	tests := []struct{ base, want string }{
		{"http://127.0.0.1:8000/api", "ws://127.0.0.1:8000/ws"},
		{"https://debug.example.com/api/", "wss://debug.example.com/ws"},
	}
	for _, tc := range tests {
		got, err := URLFromBase(tc.base)
		if err != nil || got != tc.want {
			t.Errorf("URLFromBase(%q) = %q, %v; want %q", tc.base, got, err, tc.want)
		}
	}
	if _, err := URLFromBase("ftp://x"); err == nil {
		t.Error("ftp scheme accepted")
	}
}

func TestClientDeliversAndReconnects(t *testing.T) {
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := atomic.AddInt32(&conns, 1)
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status","payload":"PAUSED"}`))
		if n == 1 {
			// drop the first connection, the client must come back
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"system_log","payload":"second"}`))
		conn.ReadMessage()
	}))
	defer srv.Close()

	c := NewClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	c.MinBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan api.Event, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- c.Run(ctx, func(ev api.Event) { events <- ev })
	}()

	var got []string
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev.Type+" "+string(ev.Payload))
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", got)
		}
	}
	want := []string{`status "PAUSED"`, `status "PAUSED"`, `system_log "second"`}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}

	cancel()
	if err := <-errc; err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}
}
