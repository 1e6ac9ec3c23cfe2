package storage

import (
	"encoding/json"
	"sync"

	"github.com/sahasuman343/Track-n-Ride/internal/models"
)

// RideArchive records ride creations and destination changes. It is a
// write-behind mirror for ops queries; the in-memory registries remain the
// source of truth and never read it back.
type RideArchive interface {
	SaveRide(r *models.Ride) error
	UpdateDestination(rideID string, dest json.RawMessage) error
}

type MemoryArchive struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{rides: make(map[string]*models.Ride)}
}

func (m *MemoryArchive) SaveRide(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryArchive) UpdateDestination(rideID string, dest json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rides[rideID]; ok {
		r.Destination = dest
	}
	return nil
}

func (m *MemoryArchive) Get(id string) (*models.Ride, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	return r, ok
}
