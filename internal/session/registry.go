package session

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sahasuman343/Track-n-Ride/internal/models"
)

// ErrNotFound is returned for operations against a session id that is not
// (or no longer) registered.
var ErrNotFound = errors.New("session not found")

// Registry owns the session-id -> session mapping. It is the single source
// of truth for who is logged in and which ride they belong to; the websocket
// layer never keeps its own member lists.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]models.Session)}
}

// NewID returns a fresh opaque session identifier. Login generates the id
// before creating the ride so the ride's admin can be fixed at creation.
func NewID() string {
	return uuid.NewString()
}

// Create registers a session under a pre-generated id. Username validation
// happens at the HTTP layer before this is called.
func (r *Registry) Create(id, username, rideID string) {
	r.mu.Lock()
	r.sessions[id] = models.Session{
		ID:       id,
		Username: username,
		RideID:   rideID,
		JoinedAt: time.Now(),
	}
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (models.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return s, nil
}

// SetLocation records the latest location for a live session. The payload
// is opaque; no shape validation happens here.
func (r *Registry) SetLocation(id string, loc json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Location = loc
	r.sessions[id] = s
	return nil
}

// Remove deletes the session and reports whether it was present, so callers
// can make logout idempotent without a prior Get.
func (r *Registry) Remove(id string) (models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// ListByRide returns a point-in-time copy of every session in the ride,
// unordered. Mutations after the call are not reflected in the result.
func (r *Registry) ListByRide(rideID string) []models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Session, 0)
	for _, s := range r.sessions {
		if s.RideID == rideID {
			out = append(out, s)
		}
	}
	return out
}

// IDsByRide is the snapshot the hub uses to fix a broadcast's recipient set
// before any send begins.
func (r *Registry) IDsByRide(rideID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0)
	for id, s := range r.sessions {
		if s.RideID == rideID {
			out = append(out, id)
		}
	}
	return out
}
