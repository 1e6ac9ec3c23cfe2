// Package presence mirrors rider positions into Redis so external tooling
// can query who is where without touching the tracker process. It is
// best-effort: the core never reads it back.
package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sahasuman343/Track-n-Ride/internal/models"
)

// Commands is the subset of redis operations the mirror needs; tests swap
// in fakes.
type Commands interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type RedisPresence struct {
	cmds Commands
}

func NewRedisPresence(addr, password string) *RedisPresence {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisPresence{cmds: &clientAdapter{c: c}}
}

// NewWithCommands builds a mirror over an existing command surface.
func NewWithCommands(cmds Commands) *RedisPresence {
	return &RedisPresence{cmds: cmds}
}

// Update writes the event's position into the ride's geo set plus a meta
// hash for the rider. Location payloads are opaque on the wire; payloads
// without usable lat/lng coordinates are skipped, not errors.
func (p *RedisPresence) Update(ctx context.Context, ev models.LocationEvent) error {
	var coord struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.Unmarshal(ev.Location, &coord); err != nil || coord.Lat == nil || coord.Lng == nil {
		return nil
	}
	loc := &redis.GeoLocation{Longitude: *coord.Lng, Latitude: *coord.Lat, Name: ev.SessionID}
	if err := p.cmds.GeoAdd(ctx, geoKey(ev.RideID), loc); err != nil {
		return err
	}
	return p.cmds.HSet(ctx, metaKey(ev.SessionID), map[string]interface{}{
		"username": ev.Username,
		"ride_id":  ev.RideID,
		"updated":  ev.At.Format(time.RFC3339),
	})
}

type clientAdapter struct{ c *redis.Client }

func (a *clientAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	_, err := a.c.GeoAdd(ctx, key, loc).Result()
	return err
}

func (a *clientAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := a.c.HSet(ctx, key, values).Result()
	return err
}

func geoKey(rideID string) string { return "ride_geo:" + rideID }
func metaKey(id string) string    { return "rider:meta:" + id }
