// Package hub owns the live connection per session and performs targeted
// send and ride-scoped fan-out. It is self-healing: a connection that fails
// a write is evicted on the spot and the peer is treated as disconnected.
package hub

import (
	"log/slog"
	"sync"

	"github.com/sahasuman343/Track-n-Ride/internal/observability"
)

// Conn is the minimal write surface the hub needs. *websocket.Conn
// satisfies it; tests use in-memory fakes.
type Conn interface {
	WriteJSON(v interface{}) error
}

// MemberLister resolves the recipient set for a ride at broadcast time.
// Membership lives in the session registry, never in the hub itself.
type MemberLister interface {
	IDsByRide(rideID string) []string
}

// peer serializes writes to one connection. gorilla/websocket allows only
// one concurrent writer per conn.
type peer struct {
	conn Conn
	mu   sync.Mutex
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(v)
}

type Hub struct {
	mu      sync.RWMutex
	peers   map[string]*peer
	members MemberLister
	log     *slog.Logger
}

func New(members MemberLister, log *slog.Logger) *Hub {
	return &Hub{
		peers:   make(map[string]*peer),
		members: members,
		log:     log,
	}
}

// Attach registers the connection for a session, replacing any previous one.
// Closing a replaced connection is the caller's responsibility.
func (h *Hub) Attach(sessionID string, c Conn) {
	h.mu.Lock()
	_, replaced := h.peers[sessionID]
	h.peers[sessionID] = &peer{conn: c}
	h.mu.Unlock()
	if !replaced {
		observability.ConnectionsActive.Inc()
	}
}

// Detach removes the session's connection. Idempotent.
func (h *Hub) Detach(sessionID string) {
	h.mu.Lock()
	_, ok := h.peers[sessionID]
	if ok {
		delete(h.peers, sessionID)
	}
	h.mu.Unlock()
	if ok {
		observability.ConnectionsActive.Dec()
	}
}

// DetachIf removes the session's entry only if it still holds c, and
// reports whether it did. A handler tearing down an old connection must not
// evict the replacement a reconnect installed.
func (h *Hub) DetachIf(sessionID string, c Conn) bool {
	h.mu.Lock()
	p, ok := h.peers[sessionID]
	if ok && p.conn == c {
		delete(h.peers, sessionID)
	} else {
		ok = false
	}
	h.mu.Unlock()
	if ok {
		observability.ConnectionsActive.Dec()
	}
	return ok
}

// Attached reports whether the session currently has a live connection.
func (h *Hub) Attached(sessionID string) bool {
	h.mu.RLock()
	_, ok := h.peers[sessionID]
	h.mu.RUnlock()
	return ok
}

// Send delivers one message to one session. A write failure evicts the
// connection and is not reported to the caller; the peer is simply gone.
func (h *Hub) Send(sessionID string, msg any) {
	h.mu.RLock()
	p, ok := h.peers[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := p.send(msg); err != nil {
		h.log.Warn("send failed, evicting connection", "session_id", sessionID, "error", err)
		observability.DeliveryFailures.Inc()
		h.Detach(sessionID)
	}
}

// Broadcast fans msg out to every member of the ride, excluding the given
// session id if non-empty. The recipient set is fixed from the session
// registry before the first write, so joins and leaves during the fan-out
// are not observed mid-loop. Failed peers are collected and pruned after
// the loop completes; a recipient with no attached connection is an
// ordinary miss, not a failure.
func (h *Hub) Broadcast(rideID, exclude string, msg any) {
	recipients := h.members.IDsByRide(rideID)
	observability.BroadcastsTotal.Inc()

	var failed []string
	for _, id := range recipients {
		if id == exclude {
			continue
		}
		h.mu.RLock()
		p, ok := h.peers[id]
		h.mu.RUnlock()
		if !ok {
			continue
		}
		if err := p.send(msg); err != nil {
			h.log.Warn("broadcast send failed", "session_id", id, "ride_id", rideID, "error", err)
			failed = append(failed, id)
		}
	}

	for _, id := range failed {
		observability.DeliveryFailures.Inc()
		h.Detach(id)
	}
}
