package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/sahasuman343/Track-n-Ride/internal/config"
	"github.com/sahasuman343/Track-n-Ride/internal/models"
	"github.com/sahasuman343/Track-n-Ride/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{StaticDir: t.TempDir(), MapsAPIKey: "test-key"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger)
}

func postForm(t *testing.T, srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad response body %q: %v", rr.Body.String(), err)
	}
	return out
}

func login(t *testing.T, srv *Server, form url.Values) map[string]any {
	t.Helper()
	rr := postForm(t, srv, "/api/login", form)
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	return decode(t, rr)
}

func TestLoginCreateRide(t *testing.T) {
	srv := newTestServer(t)
	resp := login(t, srv, url.Values{"username": {"Alice"}, "action": {"create"}, "ride_name": {"morning loop"}})

	if resp["is_admin"] != true {
		t.Fatal("creator must be the ride admin")
	}
	rideID, _ := resp["ride_id"].(string)
	if len(rideID) != 6 {
		t.Fatalf("expected short ride id, got %q", rideID)
	}
	if resp["session_id"] == "" {
		t.Fatal("expected a session id")
	}
	if resp["ride_name"] != "morning loop" {
		t.Fatalf("wrong ride name %v", resp["ride_name"])
	}

	// the new ride lands in the archive
	if mem, ok := srv.Archive.(*storage.MemoryArchive); ok {
		if _, found := mem.Get(rideID); !found {
			t.Fatal("ride not archived")
		}
	} else {
		t.Fatal("test server should use the memory archive")
	}
}

func TestLoginJoin(t *testing.T) {
	srv := newTestServer(t)
	created := login(t, srv, url.Values{"username": {"Alice"}, "action": {"create"}})
	rideID := created["ride_id"].(string)

	joined := login(t, srv, url.Values{"username": {"Bob"}, "action": {"join"}, "ride_id": {rideID}})
	if joined["is_admin"] != false {
		t.Fatal("joiner must not be admin")
	}
	if joined["ride_id"] != rideID {
		t.Fatalf("joined wrong ride: %v", joined["ride_id"])
	}
}

func TestLoginJoinUnknownRide(t *testing.T) {
	srv := newTestServer(t)
	rr := postForm(t, srv, "/api/login", url.Values{"username": {"Bob"}, "action": {"join"}, "ride_id": {"nope99"}})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	srv := newTestServer(t)
	cases := map[string]url.Values{
		"empty username": {"username": {"   "}, "action": {"create"}},
		"too long":       {"username": {strings.Repeat("x", 51)}, "action": {"create"}},
		"unprintable":    {"username": {"bad\x00name"}, "action": {"create"}},
		"missing action": {"username": {"Alice"}},
		"bogus action":   {"username": {"Alice"}, "action": {"fly"}},
	}
	for name, form := range cases {
		rr := postForm(t, srv, "/api/login", form)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestLoginTrimsUsername(t *testing.T) {
	srv := newTestServer(t)
	resp := login(t, srv, url.Values{"username": {"  Alice  "}, "action": {"create"}})
	if resp["username"] != "Alice" {
		t.Fatalf("username not trimmed: %q", resp["username"])
	}
}

func TestListUsers(t *testing.T) {
	srv := newTestServer(t)
	created := login(t, srv, url.Values{"username": {"Alice"}, "action": {"create"}})
	rideID := created["ride_id"].(string)
	login(t, srv, url.Values{"username": {"Bob"}, "action": {"join"}, "ride_id": {rideID}})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/rides/"+rideID+"/users", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out struct {
		RideID string            `json:"ride_id"`
		Users  []models.UserInfo `json:"users"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(out.Users))
	}
}

func TestListUsersUnknownRide(t *testing.T) {
	srv := newTestServer(t)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/rides/zzzzzz/users", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

type countingConn struct {
	mu     sync.Mutex
	frames []any
}

func (c *countingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v)
	return nil
}

func (c *countingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestLogoutIdempotent(t *testing.T) {
	srv := newTestServer(t)
	created := login(t, srv, url.Values{"username": {"Alice"}, "action": {"create"}})
	rideID := created["ride_id"].(string)
	aliceSID := created["session_id"].(string)
	joined := login(t, srv, url.Values{"username": {"Bob"}, "action": {"join"}, "ride_id": {rideID}})
	bobSID := joined["session_id"].(string)

	// watch what alice receives
	aliceConn := &countingConn{}
	srv.Hub.Attach(aliceSID, aliceConn)

	rr := postForm(t, srv, "/api/logout", url.Values{"session_id": {bobSID}})
	if rr.Code != http.StatusOK {
		t.Fatalf("first logout: %d", rr.Code)
	}
	if aliceConn.count() != 1 {
		t.Fatalf("expected one user_left broadcast, got %d", aliceConn.count())
	}
	if _, ok := aliceConn.frames[0].(models.UserLeftFrame); !ok {
		t.Fatalf("expected user_left, got %T", aliceConn.frames[0])
	}

	rr = postForm(t, srv, "/api/logout", url.Values{"session_id": {bobSID}})
	if rr.Code != http.StatusOK {
		t.Fatalf("second logout must still succeed: %d", rr.Code)
	}
	if aliceConn.count() != 1 {
		t.Fatal("second logout must not broadcast again")
	}
}

func TestConfigEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if decode(t, rr)["maps_api_key"] != "test-key" {
		t.Fatal("maps key not exposed")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
