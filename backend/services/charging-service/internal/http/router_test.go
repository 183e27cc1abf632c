package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/effects"
	"chargeway/backend/services/charging-service/internal/http/handlers"
	"chargeway/backend/services/charging-service/internal/http/middleware"
	"chargeway/backend/services/charging-service/internal/inventory"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/password"
	"chargeway/backend/services/charging-service/internal/ratelimit"
	"chargeway/backend/services/charging-service/internal/realtime"
	"chargeway/backend/services/charging-service/internal/repository/memstore"
	"chargeway/backend/services/charging-service/internal/service"
	"chargeway/backend/services/charging-service/internal/session"
)

type testEnv struct {
	t         *testing.T
	srv       *httptest.Server
	client    *http.Client
	store     *memstore.Store
	clock     *offsetClock
	stationID models.ID
}

// offsetClock runs on wall time shifted by a skew tests can move forward.
type offsetClock struct {
	mu   sync.Mutex
	skew time.Duration
}

func (c *offsetClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.skew)
}

func (c *offsetClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.skew += d
	c.mu.Unlock()
}

func newTestEnv(t *testing.T, rateMax int) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := memstore.New()
	ctx := context.Background()

	station := &models.Station{
		Name:    "Central Plaza Fast Charge",
		Address: "Jl. MH Thamrin, Jakarta",
		Status:  models.AvailabilityAvailable,
		Connectors: []models.Connector{
			{Type: models.ConnectorCCS2, PowerKW: 100, Ports: 4, AvailablePorts: 2},
		},
	}
	_, err := store.InsertStation(ctx, station)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := realtime.NewHub(time.Hour, nil, logger)
	runner := effects.NewRunner(effects.Options{Workers: 1}, nil, logger)
	t.Cleanup(func() {
		_ = hub.Shutdown(context.Background())
		_ = runner.Close(context.Background())
	})

	clock := &offsetClock{}
	policy := battery.DefaultPolicy()
	charging := service.NewChargingService(service.ChargingConfig{
		PerPercentInterval: 30 * time.Second,
		Battery:            policy,
	}, service.ChargingDeps{
		Stations:  store,
		Vehicles:  store,
		Tickets:   store,
		Inventory: inventory.New(store, nil, logger),
		Hub:       hub,
		Effects:   runner,
		Logger:    logger,
		Now:       clock.Now,
	})
	auth := service.NewAuthService(store, password.NewBcryptHasher(bcrypt.MinCost), logger)
	sessions := session.NewManager(session.NewStore(rdb, time.Hour), session.NewCodec("test-secret", time.Hour), session.CookieOptions{})
	limiter := ratelimit.New(rdb, ratelimit.Options{Window: time.Minute, Max: rateMax}, nil, logger)

	users := service.NewUserService(store, password.NewBcryptHasher(bcrypt.MinCost), logger)

	router := NewRouter(RouterDeps{
		Auth:         handlers.NewAuthHandlers(auth, sessions, logger),
		Stations:     handlers.NewStationsHandlers(service.NewStationService(store, logger), logger),
		Charging:     handlers.NewChargingHandlers(charging, logger),
		Vehicles:     handlers.NewVehiclesHandlers(service.NewVehicleService(store, policy, runner, logger, nil), logger),
		History:      handlers.NewHistoryHandlers(service.NewHistoryService(store, logger, nil), logger),
		Profile:      handlers.NewProfileHandlers(users, logger),
		Admin:        handlers.NewAdminHandlers(users, logger),
		Progress:     handlers.NewProgressHandler(hub, charging, nil, realtime.ConnOptions{}, logger),
		Health:       handlers.NewHealthHandler(),
		RequireUser:  middleware.RequireUser(sessions, logger),
		RequireAdmin: middleware.RequireAdmin(auth, logger),
		RateLimit:    limiter.Middleware(middleware.RateLimitClient),
		CORSOrigins:  []string{"http://localhost:5173"},
		Logger:       logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{
		t:         t,
		srv:       srv,
		client:    &http.Client{Jar: jar, Timeout: 5 * time.Second},
		store:     store,
		clock:     clock,
		stationID: station.ID,
	}
}

func (e *testEnv) do(method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) signup() string {
	e.t.Helper()
	resp, body := e.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Rider", "email": "rider@example.com", "password": "secret1",
	})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode, body)
	return body["user"].(map[string]interface{})["id"].(string)
}

func (e *testEnv) addVehicle(percent int) string {
	e.t.Helper()
	resp, body := e.do(http.MethodPost, "/api/vehicles", map[string]interface{}{
		"name": "Ioniq 5", "connector_type": []string{"CCS2"}, "batteryPercent": percent,
	})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode, body)
	return body["vehicle"].(map[string]interface{})["id"].(string)
}

func (e *testEnv) dialProgress() *websocket.Conn {
	e.t.Helper()
	base, err := url.Parse(e.srv.URL)
	require.NoError(e.t, err)
	header := http.Header{}
	for _, c := range e.client.Jar.Cookies(base) {
		header.Add("Cookie", c.String())
	}
	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/charging-progress?stationId=" + e.stationID.String()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestHealthAndPublicStations(t *testing.T) {
	env := newTestEnv(t, 60)

	resp, body := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = env.do(http.MethodGet, "/api/stations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["stations"], 1)

	resp, _ = env.do(http.MethodGet, "/api/stations/"+env.stationID.String(), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(http.MethodGet, "/api/stations/not-an-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, 60)

	for _, path := range []string{"/api/vehicles", "/api/history", "/api/auth/me", "/ws/charging-progress?stationId=" + env.stationID.String()} {
		resp, body := env.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "Unauthorized", body["message"], path)
	}
}

func TestChargingLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, 60)
	env.signup()
	vehicleID := env.addVehicle(40)

	resp, body := env.do(http.MethodGet, "/api/stations/"+env.stationID.String()+"/active-ticket", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["ticket"])

	resp, body = env.do(http.MethodPost, "/api/stations/request-ticket", map[string]string{
		"stationId": env.stationID.String(), "connectorType": "CCS2", "vehicleId": vehicleID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	ticket := body["ticket"].(map[string]interface{})
	assert.Equal(t, "REQUESTED", ticket["status"])
	assert.Equal(t, "NOT_STARTED", ticket["chargingStatus"])
	assert.NotNil(t, ticket["stationInfo"])
	assert.NotNil(t, ticket["vehicleInfo"])

	resp, body = env.do(http.MethodPost, "/api/stations/start-charging", map[string]string{"stationId": env.stationID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	ticket = body["ticket"].(map[string]interface{})
	assert.Equal(t, "IN_PROGRESS", ticket["chargingStatus"])
	assert.EqualValues(t, 1800000, ticket["chargingDurationMs"])

	station, err := env.store.GetStation(context.Background(), env.stationID)
	require.NoError(t, err)
	assert.Equal(t, 1, station.Connectors[0].AvailablePorts)

	resp, body = env.do(http.MethodPost, "/api/stations/update-progress", map[string]string{"stationId": env.stationID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.NotNil(t, body["ticket"])

	resp, body = env.do(http.MethodPost, "/api/stations/complete-charging", map[string]string{"stationId": env.stationID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Charging completed.", body["message"])
	completed := body["completedTicket"].(map[string]interface{})
	assert.Equal(t, "COMPLETED", completed["chargingStatus"])

	station, err = env.store.GetStation(context.Background(), env.stationID)
	require.NoError(t, err)
	assert.Equal(t, 2, station.Connectors[0].AvailablePorts)

	resp, body = env.do(http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["history"], 1)

	resp, _ = env.do(http.MethodPost, "/api/stations/complete-charging", map[string]string{"stationId": env.stationID.String()})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelBeforeStart(t *testing.T) {
	env := newTestEnv(t, 60)
	env.signup()
	env.addVehicle(70)

	resp, _ := env.do(http.MethodPost, "/api/stations/request-ticket", map[string]string{
		"stationId": env.stationID.String(), "connectorType": "CCS2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(http.MethodPost, "/api/stations/complete-charging", map[string]interface{}{
		"stationId": env.stationID.String(), "cancel": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Charging cancelled.", body["message"])
	assert.NotNil(t, body["cancelledTicket"])
	assert.Nil(t, body["completedTicket"])
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t, 60)
	env.signup()

	resp, body := env.do(http.MethodPost, "/api/stations/request-ticket", map[string]string{"stationId": "nope", "connectorType": "CCS2"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "A valid stationId is required.", body["message"])

	resp, _ = env.do(http.MethodPost, "/api/stations/request-ticket", map[string]string{"stationId": env.stationID.String(), "connectorType": "Tesla"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = env.do(http.MethodPost, "/api/stations/start-charging", map[string]string{"stationId": env.stationID.String()})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(http.MethodGet, "/api/history?days=abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestLoginLogout(t *testing.T) {
	env := newTestEnv(t, 60)
	env.signup()

	resp, _ := env.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "rider@example.com", "password": "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "rider@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := env.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rider@example.com", body["user"].(map[string]interface{})["email"])
}

func TestProfileEndpoints(t *testing.T) {
	env := newTestEnv(t, 60)
	env.signup()

	resp, body := env.do(http.MethodPatch, "/api/profile/update-profile", map[string]string{"region": "Bandung"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Profile updated successfully!", body["message"])

	resp, body = env.do(http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "Bandung", user["region"])
	assert.NotContains(t, user, "passwordHash")

	resp, body = env.do(http.MethodPatch, "/api/profile/update-password", map[string]string{
		"currentPassword": "wrong1", "newPassword": "secret2",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Current password is incorrect.", body["message"])

	resp, _ = env.do(http.MethodPatch, "/api/profile/update-password", map[string]string{
		"currentPassword": "secret1", "newPassword": "secret2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "rider@example.com", "password": "secret2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t, 60)
	riderID := env.signup()
	id, ok := models.ParseID(riderID)
	require.True(t, ok)

	resp, _ := env.do(http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// the session keeps the role it was created with until the next login
	require.NoError(t, env.store.SetRole(context.Background(), id, models.RoleAdmin))
	resp, _ = env.do(http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "rider@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := env.do(http.MethodGet, "/api/admin/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["users"], 1)

	resp, body = env.do(http.MethodPatch, "/api/admin/users/"+riderID, map[string]string{"role": "superuser"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
	resp, _ = env.do(http.MethodPatch, "/api/admin/users/"+models.NewID().String(), map[string]string{"name": "Ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(http.MethodPatch, "/api/admin/users/"+riderID, map[string]string{"name": "Rider Two", "role": "user"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "User updated successfully!", body["message"])
	assert.Equal(t, "Rider Two", body["user"].(map[string]interface{})["name"])

	// a demotion applies to live sessions immediately
	resp, _ = env.do(http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimitOnProtectedRoutes(t *testing.T) {
	env := newTestEnv(t, 2)
	env.signup()

	var resp *http.Response
	var body map[string]interface{}
	for i := 0; i < 3; i++ {
		resp, body = env.do(http.MethodGet, "/api/vehicles", nil)
	}
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "Too many requests, please try again later.", body["message"])

	resp, _ = env.do(http.MethodGet, "/api/stations", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProgressSocketStreamsFrames(t *testing.T) {
	env := newTestEnv(t, 60)
	env.signup()
	env.addVehicle(40)

	resp, _ := env.do(http.MethodPost, "/api/stations/request-ticket", map[string]string{
		"stationId": env.stationID.String(), "connectorType": "CCS2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ws := env.dialProgress()

	initial := readFrame(t, ws)
	assert.Equal(t, "initial", initial["type"])
	require.NotNil(t, initial["ticket"])
	assert.Equal(t, "NOT_STARTED", initial["ticket"].(map[string]interface{})["chargingStatus"])

	resp, _ = env.do(http.MethodPost, "/api/stations/start-charging", map[string]string{"stationId": env.stationID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	seen := map[string]bool{}
	for !seen["started"] {
		frame := readFrame(t, ws)
		seen[frame["type"].(string)] = true
	}

	resp, _ = env.do(http.MethodPost, "/api/stations/complete-charging", map[string]string{"stationId": env.stationID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for {
		frame := readFrame(t, ws)
		if frame["type"] == "completed" {
			assert.Nil(t, frame["ticket"])
			assert.NotNil(t, frame["completedTicket"])
			break
		}
	}
}

func TestProgressSocketSeesCompletionTriggeredByConnect(t *testing.T) {
	env := newTestEnv(t, 60)
	env.signup()
	env.addVehicle(40)

	resp, _ := env.do(http.MethodPost, "/api/stations/request-ticket", map[string]string{
		"stationId": env.stationID.String(), "connectorType": "CCS2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	watcher := env.dialProgress()
	assert.Equal(t, "initial", readFrame(t, watcher)["type"])
	resp, _ = env.do(http.MethodPost, "/api/stations/start-charging", map[string]string{"stationId": env.stationID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for {
		if readFrame(t, watcher)["type"] == "progress" {
			break
		}
	}
	require.NoError(t, watcher.Close())

	// the session is due; the lookup made on connect completes it
	env.clock.Advance(2 * time.Hour)
	ws := env.dialProgress()

	completed := readFrame(t, ws)
	assert.Equal(t, "completed", completed["type"])
	assert.Nil(t, completed["ticket"])
	require.NotNil(t, completed["completedTicket"])
	assert.EqualValues(t, 100, completed["completedTicket"].(map[string]interface{})["progressPercent"])

	initial := readFrame(t, ws)
	assert.Equal(t, "initial", initial["type"])
	assert.Nil(t, initial["ticket"])

	resp, body := env.do(http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["history"], 1)
}
