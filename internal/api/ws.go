package api

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader is permissive on CheckOrigin, since this feed is purely
// observational and never accepts writes back.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// event is one rumor pushed to connected dashboards. It is never
// gossiped; it only describes a cycle action after the fact.
type event struct {
	Kind    string `json:"kind"`
	Peer    string `json:"peer,omitempty"`
	Round   int64  `json:"round,omitempty"`
	Sent    int    `json:"sent,omitempty"`
	Dropped int    `json:"filtered,omitempty"`
}

const connBufferSize = 32

type conn struct {
	out     chan event
	dropped int64
}

// hub fans a stream of events out to every connected WebSocket client,
// dropping events for slow readers instead of blocking the request
// handler that produces them.
type hub struct {
	mu    sync.Mutex
	conns map[*conn]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[*conn]struct{})}
}

func (h *hub) add() *conn {
	c := &conn{out: make(chan event, connBufferSize)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	close(c.out)
}

func (h *hub) broadcast(e event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.out <- e:
		default:
			atomic.AddInt64(&c.dropped, 1)
		}
	}
}

// WebSocketHandler implements GET /ws.
func (h *Handler) WebSocketHandler(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("ws upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	cn := h.hub.add()
	defer h.hub.remove(cn)

	for e := range cn.out {
		if err := ws.WriteJSON(e); err != nil {
			return
		}
	}
}
