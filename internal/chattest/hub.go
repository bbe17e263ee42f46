package chattest

import (
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// subscriber is one realtime connection opened for a handle.
type subscriber struct {
	id       string
	handle   string
	conn     net.Conn
	outgoing chan []byte

	wmu sync.Mutex
}

func (s *subscriber) write(op ws.OpCode, data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return wsutil.WriteServerMessage(s.conn, op, data)
}

// hub tracks the realtime subscribers of every handle.
type hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]bool
}

func newHub() *hub {
	return &hub{subscribers: make(map[*subscriber]bool)}
}

func (h *hub) register(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[s] = true
}

// unregister removes s and closes its outgoing queue. It is safe to call
// more than once.
func (h *hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[s] {
		delete(h.subscribers, s)
		close(s.outgoing)
	}
}

// count returns the number of subscribers of handle.
func (h *hub) count(handle string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for s := range h.subscribers {
		if s.handle == handle {
			n++
		}
	}
	return n
}

// notify queues data for every subscriber of handle and returns how many
// accepted it. Subscribers with a full queue are skipped.
func (h *hub) notify(handle string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for s := range h.subscribers {
		if s.handle != handle {
			continue
		}
		select {
		case s.outgoing <- data:
			n++
		default:
		}
	}
	return n
}

// drop closes the connections of handle, or of every handle when handle is
// empty, as a server going away would.
func (h *hub) drop(handle string) {
	h.mu.RLock()
	var subs []*subscriber
	for s := range h.subscribers {
		if handle == "" || s.handle == handle {
			subs = append(subs, s)
		}
	}
	h.mu.RUnlock()

	body := ws.NewCloseFrameBody(ws.StatusGoingAway, "server going away")
	for _, s := range subs {
		_ = s.write(ws.OpClose, body)
		_ = s.conn.Close()
	}
}
