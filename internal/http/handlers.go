package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sahasuman343/Track-n-Ride/internal/config"
	"github.com/sahasuman343/Track-n-Ride/internal/hub"
	"github.com/sahasuman343/Track-n-Ride/internal/ingest"
	"github.com/sahasuman343/Track-n-Ride/internal/logging"
	"github.com/sahasuman343/Track-n-Ride/internal/models"
	"github.com/sahasuman343/Track-n-Ride/internal/observability"
	"github.com/sahasuman343/Track-n-Ride/internal/presence"
	"github.com/sahasuman343/Track-n-Ride/internal/ride"
	"github.com/sahasuman343/Track-n-Ride/internal/session"
	"github.com/sahasuman343/Track-n-Ride/internal/storage"
	"github.com/sahasuman343/Track-n-Ride/internal/ws"
)

const maxUsernameLen = 50

type Server struct {
	Sessions *session.Registry
	Rides    *ride.Registry
	Hub      *hub.Hub
	WS       *ws.Handler
	Archive  storage.RideArchive

	cfg    config.ServerConfig
	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires the registries, hub and optional sinks from config.
// Redis, Kafka and Postgres are all opt-in; without them the tracker runs
// fully in memory.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	sessions := session.NewRegistry()
	rides := ride.NewRegistry()
	h := hub.New(sessions, logging.ForComponent(logger, "hub"))

	var archive storage.RideArchive
	if cfg.PGDSN != "" {
		if pa, err := storage.NewPostgresArchive(cfg.PGDSN); err == nil {
			archive = pa
		} else {
			logger.Warn("postgres archive unavailable, using memory", "error", err)
		}
	}
	if archive == nil {
		archive = storage.NewMemoryArchive()
	}

	wsh := &ws.Handler{
		Sessions: sessions,
		Rides:    rides,
		Hub:      h,
		Log:      logging.ForComponent(logger, "ws"),
		Archive:  archive,
	}
	if len(cfg.KafkaBrokers) > 0 {
		wsh.Producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if cfg.RedisAddr != "" {
		wsh.Presence = presence.NewRedisPresence(cfg.RedisAddr, cfg.RedisPassword)
	}

	s := &Server{
		Sessions: sessions,
		Rides:    rides,
		Hub:      h,
		WS:       wsh,
		Archive:  archive,
		cfg:      cfg,
		logger:   logging.ForComponent(logger, "http"),
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/login", s.handleLogin).Methods("POST")
	s.mux.HandleFunc("/api/logout", s.handleLogout).Methods("POST")
	s.mux.HandleFunc("/api/rides/{ride_id}/users", s.handleListUsers).Methods("GET")
	s.mux.HandleFunc("/api/config", s.handleConfig).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{session_id}", s.handleWS)
	s.mux.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.StaticDir)))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// handleLogin creates a session and, for action=create, a new ride with the
// caller as its admin. The session id is generated first so the ride's
// admin identity can be fixed at creation and never reassigned.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form")
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	if err := validateUsername(username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := session.NewID()
	var (
		rideID   string
		rideName string
		isAdmin  bool
	)
	switch r.FormValue("action") {
	case "create":
		rideName = strings.TrimSpace(r.FormValue("ride_name"))
		if rideName == "" {
			rideName = username + "'s ride"
		}
		rideID = s.Rides.Create(rideName, sessionID)
		isAdmin = true
		observability.RidesCreated.Inc()
		if rd, err := s.Rides.Get(rideID); err == nil {
			if aerr := s.Archive.SaveRide(&rd); aerr != nil {
				s.logger.Warn("archive ride", "ride_id", rideID, "error", aerr)
			}
		}
	case "join":
		rideID = strings.TrimSpace(r.FormValue("ride_id"))
		rd, err := s.Rides.Get(rideID)
		if err != nil {
			writeError(w, http.StatusNotFound, "ride not found")
			return
		}
		rideName = rd.Name
	default:
		writeError(w, http.StatusBadRequest, "action must be create or join")
		return
	}

	s.Sessions.Create(sessionID, username, rideID)
	observability.SessionsActive.Inc()
	s.logger.Info("login", "session_id", sessionID, "ride_id", rideID, "username", username, "admin", isAdmin)

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"username":   username,
		"ride_id":    rideID,
		"ride_name":  rideName,
		"is_admin":   isAdmin,
		"message":    "Login successful",
	})
}

// handleLogout removes the session and tells the rest of the ride. It is
// idempotent: an already-absent session is still a success and produces no
// second user_left broadcast.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form")
		return
	}
	sessionID := r.FormValue("session_id")
	if sess, ok := s.Sessions.Remove(sessionID); ok {
		observability.SessionsActive.Dec()
		s.Hub.Detach(sessionID)
		s.Hub.Broadcast(sess.RideID, sessionID, models.UserLeftFrame{
			Type:      models.FrameUserLeft,
			SessionID: sessionID,
			Username:  sess.Username,
		})
		s.logger.Info("logout", "session_id", sessionID, "ride_id", sess.RideID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logout successful"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	if _, err := s.Rides.Get(rideID); err != nil {
		writeError(w, http.StatusNotFound, "ride not found")
		return
	}
	members := s.Sessions.ListByRide(rideID)
	users := make([]models.UserInfo, 0, len(members))
	for _, m := range members {
		users = append(users, models.UserInfo{SessionID: m.ID, Username: m.Username, Location: m.Location})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride_id": rideID, "users": users})
}

// handleConfig exposes the maps key the static frontend needs at runtime.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"maps_api_key": s.cfg.MapsAPIKey})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.WS.HandleConnection(w, r, mux.Vars(r)["session_id"])
}

func validateUsername(username string) error {
	if username == "" {
		return errUsernameRequired
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return errUsernameTooLong
	}
	for _, r := range username {
		if !unicode.IsPrint(r) {
			return errUsernameInvalid
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
