package ride

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry()
	id := r.Create("morning loop", "admin1")
	if len(id) != idLength {
		t.Fatalf("expected %d-char id, got %q", idLength, id)
	}
	rd, err := r.Get(id)
	if err != nil {
		t.Fatalf("expected ride, got err=%v", err)
	}
	if rd.Name != "morning loop" || rd.AdminSessionID != "admin1" {
		t.Fatalf("unexpected ride: %+v", rd)
	}
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetDestinationAdminOnly(t *testing.T) {
	r := NewRegistry()
	id := r.Create("loop", "admin1")
	dest := json.RawMessage(`{"lat":3,"lng":4}`)

	if r.SetDestination(id, "intruder", dest) {
		t.Fatal("non-admin mutation must not be applied")
	}
	rd, _ := r.Get(id)
	if rd.Destination != nil {
		t.Fatalf("destination changed by non-admin: %s", rd.Destination)
	}

	if !r.SetDestination(id, "admin1", dest) {
		t.Fatal("admin mutation must be applied")
	}
	rd, _ = r.Get(id)
	if string(rd.Destination) != string(dest) {
		t.Fatalf("destination not stored: %s", rd.Destination)
	}
}

func TestSetDestinationUnknownRide(t *testing.T) {
	r := NewRegistry()
	if r.SetDestination("nope", "admin1", json.RawMessage(`{}`)) {
		t.Fatal("mutation of unknown ride must not be applied")
	}
}

func TestAdminIsImmutable(t *testing.T) {
	r := NewRegistry()
	id := r.Create("loop", "admin1")
	r.SetDestination(id, "admin1", json.RawMessage(`{"lat":1}`))
	rd, _ := r.Get(id)
	if rd.AdminSessionID != "admin1" {
		t.Fatalf("admin changed: %s", rd.AdminSessionID)
	}
}

func TestIDAlphabet(t *testing.T) {
	r := NewRegistry()
	id := r.Create("loop", "admin1")
	for _, c := range id {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			t.Fatalf("id %q contains %q outside the alphabet", id, c)
		}
	}
}
