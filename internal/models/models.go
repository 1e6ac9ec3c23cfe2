package models

import (
	"encoding/json"
	"time"
)

// Session is one logged-in rider: identity, owning ride and last reported
// location. Location payloads are opaque to the server; clients agree on
// the shape among themselves.
type Session struct {
	ID       string          `json:"session_id"`
	Username string          `json:"username"`
	RideID   string          `json:"ride_id"`
	Location json.RawMessage `json:"location"`
	JoinedAt time.Time       `json:"joined_at"`
}

// Ride is a named group with a fixed admin (the creator's session) and an
// optional shared destination only the admin may set.
type Ride struct {
	ID             string          `json:"ride_id"`
	Name           string          `json:"name"`
	AdminSessionID string          `json:"admin_session_id"`
	Destination    json.RawMessage `json:"destination"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Frame type tags on the websocket wire.
const (
	FrameInitialState      = "initial_state"
	FrameUserJoined        = "user_joined"
	FrameUserLeft          = "user_left"
	FrameLocationUpdate    = "location_update"
	FrameSetDestination    = "set_destination"
	FrameDestinationUpdate = "destination_update"
)

// InboundFrame is the envelope for client-to-server messages. Only the
// fields matching the tag are populated; the rest stay nil.
type InboundFrame struct {
	Type        string          `json:"type"`
	Location    json.RawMessage `json:"location,omitempty"`
	Destination json.RawMessage `json:"destination,omitempty"`
}

// UserInfo is the per-member shape embedded in initial_state and the
// /api/rides/{id}/users listing.
type UserInfo struct {
	SessionID string          `json:"session_id"`
	Username  string          `json:"username"`
	Location  json.RawMessage `json:"location"`
}

type InitialStateFrame struct {
	Type        string          `json:"type"`
	Users       []UserInfo      `json:"users"`
	RideID      string          `json:"ride_id"`
	Destination json.RawMessage `json:"destination"`
	IsAdmin     bool            `json:"is_admin"`
}

type UserJoinedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
}

type UserLeftFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
}

type LocationUpdateFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Username  string          `json:"username"`
	Location  json.RawMessage `json:"location"`
}

type DestinationUpdateFrame struct {
	Type        string          `json:"type"`
	Destination json.RawMessage `json:"destination"`
}

// LocationEvent is the record published to Kafka for every accepted
// location_update, consumed by cmd/archiver.
type LocationEvent struct {
	SessionID string          `json:"session_id"`
	RideID    string          `json:"ride_id"`
	Username  string          `json:"username"`
	Location  json.RawMessage `json:"location"`
	At        time.Time       `json:"at"`
}
