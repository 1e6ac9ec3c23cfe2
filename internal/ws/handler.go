// Package ws drives one websocket connection per session through its
// lifecycle: validate, snapshot, loop on inbound frames, clean up.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sahasuman343/Track-n-Ride/internal/hub"
	"github.com/sahasuman343/Track-n-Ride/internal/models"
	"github.com/sahasuman343/Track-n-Ride/internal/observability"
	"github.com/sahasuman343/Track-n-Ride/internal/ride"
	"github.com/sahasuman343/Track-n-Ride/internal/session"
)

// Publisher pushes accepted location events onto the ingest stream.
type Publisher interface {
	PublishLocation(ev models.LocationEvent) error
}

// Presence mirrors the latest location into an external presence index.
type Presence interface {
	Update(ctx context.Context, ev models.LocationEvent) error
}

// Archive records destination changes for rides.
type Archive interface {
	UpdateDestination(rideID string, dest json.RawMessage) error
}

var upgrader = websocket.Upgrader{
	// The API is open cross-origin, same as the rest of /api.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	Sessions *session.Registry
	Rides    *ride.Registry
	Hub      *hub.Hub
	Log      *slog.Logger

	// Optional sinks; nil when not configured.
	Producer Publisher
	Presence Presence
	Archive  Archive
}

// HandleConnection upgrades the request and runs the connection to
// completion. An unknown session id is fatal to this connection only: it is
// closed with a policy-violation code before ever being attached.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	s, err := h.Sessions.Get(sessionID)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid session")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		h.Log.Warn("rejected connection for unknown session", "session_id", sessionID)
		return
	}

	h.Hub.Attach(sessionID, conn)
	h.Hub.Send(sessionID, h.initialState(s))
	h.Hub.Broadcast(s.RideID, sessionID, models.UserJoinedFrame{
		Type:      models.FrameUserJoined,
		SessionID: s.ID,
		Username:  s.Username,
	})
	h.Log.Info("session connected", "session_id", s.ID, "ride_id", s.RideID, "username", s.Username)

	h.readLoop(conn, s)
	h.teardown(s, conn)
}

// initialState builds the snapshot sent to a freshly attached connection:
// everyone currently in the ride, the shared destination, and whether this
// session is the ride's admin.
func (h *Handler) initialState(s models.Session) models.InitialStateFrame {
	members := h.Sessions.ListByRide(s.RideID)
	users := make([]models.UserInfo, 0, len(members))
	for _, m := range members {
		users = append(users, models.UserInfo{SessionID: m.ID, Username: m.Username, Location: m.Location})
	}
	frame := models.InitialStateFrame{
		Type:   models.FrameInitialState,
		Users:  users,
		RideID: s.RideID,
	}
	if rd, err := h.Rides.Get(s.RideID); err == nil {
		frame.Destination = rd.Destination
		frame.IsAdmin = rd.AdminSessionID == s.ID
	}
	return frame
}

// readLoop processes inbound frames strictly one at a time until the
// connection closes or the session disappears from under it.
func (h *Handler) readLoop(conn *websocket.Conn, s models.Session) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.Log.Warn("read error", "session_id", s.ID, "error", err)
			}
			return
		}
		if !h.handleFrame(s, data) {
			return
		}
	}
}

// handleFrame dispatches one inbound frame. It returns false when the
// connection should stop reading (the session was logged out mid-stream).
// Malformed and unknown frames are logged and skipped, never fatal.
func (h *Handler) handleFrame(s models.Session, data []byte) bool {
	var frame models.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.Log.Warn("malformed frame", "session_id", s.ID, "error", err)
		return true
	}
	observability.FramesIn.WithLabelValues(frame.Type).Inc()

	switch frame.Type {
	case models.FrameLocationUpdate:
		return h.handleLocationUpdate(s, frame.Location)
	case models.FrameSetDestination:
		h.handleSetDestination(s, frame.Destination)
		return true
	default:
		h.Log.Info("ignoring unknown frame type", "session_id", s.ID, "type", frame.Type)
		return true
	}
}

func (h *Handler) handleLocationUpdate(s models.Session, loc json.RawMessage) bool {
	if err := h.Sessions.SetLocation(s.ID, loc); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Logged out while connected; the session stays gone.
			return false
		}
		h.Log.Error("set location", "session_id", s.ID, "error", err)
		return true
	}
	h.Hub.Broadcast(s.RideID, s.ID, models.LocationUpdateFrame{
		Type:      models.FrameLocationUpdate,
		SessionID: s.ID,
		Username:  s.Username,
		Location:  loc,
	})

	ev := models.LocationEvent{SessionID: s.ID, RideID: s.RideID, Username: s.Username, Location: loc, At: time.Now()}
	if h.Producer != nil {
		if err := h.Producer.PublishLocation(ev); err != nil {
			h.Log.Warn("publish location event", "session_id", s.ID, "error", err)
		}
	}
	if h.Presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.Presence.Update(ctx, ev); err != nil {
			h.Log.Warn("presence update", "session_id", s.ID, "error", err)
		}
		cancel()
	}
	return true
}

func (h *Handler) handleSetDestination(s models.Session, dest json.RawMessage) {
	if !h.Rides.SetDestination(s.RideID, s.ID, dest) {
		// Non-admin request: dropped without a response on purpose.
		h.Log.Info("destination change denied", "session_id", s.ID, "ride_id", s.RideID)
		return
	}
	// The sender is included so the admin's client converges with the rest.
	h.Hub.Broadcast(s.RideID, "", models.DestinationUpdateFrame{
		Type:        models.FrameDestinationUpdate,
		Destination: dest,
	})
	if h.Archive != nil {
		if err := h.Archive.UpdateDestination(s.RideID, dest); err != nil {
			h.Log.Warn("archive destination", "ride_id", s.RideID, "error", err)
		}
	}
}

// teardown runs exactly once per connection. It detaches only its own
// connection (a reconnect may have replaced it), then announces the
// departure only if the session is still registered: logout already removed
// it and broadcast its own user_left.
func (h *Handler) teardown(s models.Session, conn hub.Conn) {
	if !h.Hub.DetachIf(s.ID, conn) {
		return
	}
	if _, err := h.Sessions.Get(s.ID); err != nil {
		return
	}
	h.Hub.Broadcast(s.RideID, s.ID, models.UserLeftFrame{
		Type:      models.FrameUserLeft,
		SessionID: s.ID,
		Username:  s.Username,
	})
	h.Log.Info("session disconnected", "session_id", s.ID, "ride_id", s.RideID)
}
