package ride

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sahasuman343/Track-n-Ride/internal/models"
)

// ErrNotFound is returned when a ride id does not resolve.
var ErrNotFound = errors.New("ride not found")

const (
	idLength   = 6
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// Collisions on 6-char ids are unlikely but not impossible once the
	// process has been up for a while; retry instead of clobbering.
	idAttempts = 5
)

// Registry owns the ride-id -> ride mapping. Rides are never deleted; an
// empty ride simply has no sessions pointing at it.
type Registry struct {
	mu    sync.RWMutex
	rides map[string]models.Ride
}

func NewRegistry() *Registry {
	return &Registry{rides: make(map[string]models.Ride)}
}

// Create registers a new ride owned by adminSessionID and returns its short
// identifier. The admin is fixed for the ride's lifetime.
func (r *Registry) Create(name, adminSessionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := newRideID()
	for i := 0; i < idAttempts; i++ {
		if _, exists := r.rides[id]; !exists {
			break
		}
		id = newRideID()
	}
	r.rides[id] = models.Ride{
		ID:             id,
		Name:           name,
		AdminSessionID: adminSessionID,
		CreatedAt:      time.Now(),
	}
	return id
}

func (r *Registry) Get(id string) (models.Ride, error) {
	r.mu.RLock()
	rd, ok := r.rides[id]
	r.mu.RUnlock()
	if !ok {
		return models.Ride{}, ErrNotFound
	}
	return rd, nil
}

// SetDestination applies the destination only when the requester is the
// ride's admin and reports whether it did. A false return is an
// authorization outcome, not an error; state is untouched.
func (r *Registry) SetDestination(id, requesterSessionID string, dest json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.rides[id]
	if !ok || rd.AdminSessionID != requesterSessionID {
		return false
	}
	rd.Destination = dest
	r.rides[id] = rd
	return true
}

func newRideID() string {
	b := make([]byte, idLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b)
}
