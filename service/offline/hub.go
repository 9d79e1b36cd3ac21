package offline

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cpuview/cpuview/pkg/logflags"
	"github.com/cpuview/cpuview/service/api"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 256
)

var upgrader = websocket.Upgrader{
	// the backend only listens locally; any origin may connect
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub fans push events out to every connected client.
type hub struct {
	log logflags.Logger

	mu    sync.Mutex
	conns map[*wsConn]bool
}

type wsConn struct {
	conn *websocket.Conn
	send chan api.Event
	once sync.Once
}

func newHub(log logflags.Logger) *hub {
	return &hub{log: log, conns: make(map[*wsConn]bool)}
}

// serve upgrades the request and sends hello before any broadcast event.
func (h *hub) serve(w http.ResponseWriter, r *http.Request, hello []api.Event) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade: %v", err)
		return
	}
	c := &wsConn{conn: conn, send: make(chan api.Event, sendBacklog+len(hello))}
	for _, ev := range hello {
		c.send <- ev
	}
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
	if logflags.Offline() {
		h.log.Debugf("push client connected from %s", r.RemoteAddr)
	}

	go h.writeLoop(c)
	// reads only detect the client going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

func (h *hub) writeLoop(c *wsConn) {
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *hub) drop(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.once.Do(func() {
		close(c.send)
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.conn.Close()
	})
}

// broadcast queues ev for every client. Clients that cannot keep up are
// disconnected.
func (h *hub) broadcast(ev api.Event) {
	h.mu.Lock()
	var slow []*wsConn
	for c := range h.conns {
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.log.Warnf("dropping slow push client %s", c.conn.RemoteAddr())
		h.drop(c)
	}
}

// close disconnects every client.
func (h *hub) close() {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.drop(c)
	}
}
