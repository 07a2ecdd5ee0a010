package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dronectl/internal/pkg/vehiclesim"
	"dronectl/pkg/auth"
	"dronectl/pkg/config"
	"dronectl/pkg/journal"
	"dronectl/pkg/telemetry"
	"dronectl/pkg/vehicle"
	"dronectl/pkg/zones"
)

type testEnv struct {
	*Environment
	sim     *vehiclesim.Simulator
	vehicle *vehicle.Vehicle
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg, err := config.Parse("")
	require.NoError(t, err)
	cfg.TakeoffSettleSeconds = 1
	if mutate != nil {
		mutate(cfg)
	}

	v, err := vehicle.NewVehicle(vehicle.VehicleDTO{
		SerialNumber: randomdata.Alphanumeric(20),
		Model:        vehicle.ModelQuadcopter,
		BatteryLevel: cfg.Vehicle.BatteryLevel,
		Latitude:     cfg.Vehicle.Latitude,
		Longitude:    cfg.Vehicle.Longitude,
		PayloadLimit: cfg.Vehicle.PayloadLimit,
	})
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	opts := vehiclesim.DefaultOptions()
	opts.Tick = 5 * time.Millisecond
	opts.TimeScale = 20
	sim := vehiclesim.New(v, opts, log)

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	env := New(cfg, sim, j, zones.NewSet(nil), log)
	env.Probe = func(ctx context.Context, addr string, timeout time.Duration) (bool, error) {
		return addr == "autopilot:50051", nil
	}
	env.StreamInterval = 10 * time.Millisecond
	env.Cargo = v

	return &testEnv{Environment: env, sim: sim, vehicle: v}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)

	result := map[string]interface{}{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &result)
	}
	return w.Code, result
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, "GET", "/health", "")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "webkurier-web", body["service"])
	assert.Equal(t, "autopilot:50051", body["autopilot_grpc"])
	assert.Equal(t, true, body["autopilot_reachable"])
	assert.Equal(t, vehicle.StateDisarmed, body["vehicle"])
}

func TestArmAndLand(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, "POST", "/api/arm", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "armed", body["status"])

	code, body = e.do(t, "POST", "/api/arm", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "cannot arm while ARMED")

	code, body = e.do(t, "POST", "/api/land", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "landing", body["status"])

	code, body = e.do(t, "POST", "/api/land", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, body["error"])
}

func TestArm_LowBattery(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.Config) { cfg.Vehicle.BatteryLevel = 10 })

	code, body := e.do(t, "POST", "/api/arm", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "battery")
}

func TestTakeoff_Climbing(t *testing.T) {
	e := newTestEnv(t, nil)

	// the simulation loop is not running, the vehicle never gets there
	code, body := e.do(t, "POST", "/api/takeoff", `{"alt": 15}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "climbing", body["status"])
	assert.Equal(t, 15.0, body["target_alt"])
	assert.Equal(t, vehicle.StateTakingOff, e.sim.Vehicle().State)
}

func TestTakeoff_Airborne(t *testing.T) {
	e := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.sim.Run(ctx) }()

	code, body := e.do(t, "POST", "/api/takeoff", `{"alt": 2}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "airborne", body["status"])
	assert.Equal(t, 2.0, body["target_alt"])
}

func TestTakeoff_DefaultAltitude(t *testing.T) {
	e := newTestEnv(t, nil)

	for _, payload := range []string{"", `{}`, `{"alt": null}`} {
		fresh := newTestEnv(t, nil)
		code, body := fresh.do(t, "POST", "/api/takeoff", payload)
		require.Equal(t, http.StatusOK, code, payload)
		assert.Equal(t, 10.0, body["target_alt"], payload)
	}

	code, _ := e.do(t, "POST", "/api/takeoff", `{"alt": "high"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTakeoff_InvalidAltitude(t *testing.T) {
	e := newTestEnv(t, nil)

	for _, payload := range []string{`{"alt": 0}`, `{"alt": -3}`, `{"alt": 500}`} {
		code, body := e.do(t, "POST", "/api/takeoff", payload)
		assert.Equal(t, http.StatusBadRequest, code, payload)
		assert.Contains(t, body["error"], "invalid altitude", payload)
	}
	assert.Equal(t, vehicle.StateDisarmed, e.sim.Vehicle().State)
}

func TestTakeoff_RestrictedZone(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.Config) {
		cfg.Vehicle.Latitude = 5
		cfg.Vehicle.Longitude = 5
	})

	airport := geojson.NewFeature(orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}})
	airport.Properties["zone"] = "airport"
	airport.Properties["max_altitude_m"] = 30.0
	e.Zones = zones.NewSet(geojson.NewFeatureCollection().Append(airport))

	code, body := e.do(t, "POST", "/api/takeoff", `{"alt": 50}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, body["error"], "airport")
	assert.NotEmpty(t, body["zones"])
	assert.Equal(t, vehicle.StateDisarmed, e.sim.Vehicle().State)

	code, _ = e.do(t, "POST", "/api/takeoff", `{"alt": 20}`)
	assert.Equal(t, http.StatusOK, code)
}

func TestCommandsJournal(t *testing.T) {
	e := newTestEnv(t, nil)

	e.do(t, "POST", "/api/arm", "")
	e.do(t, "POST", "/api/arm", "")
	e.do(t, "POST", "/api/takeoff", `{"alt": 400}`)

	req := httptest.NewRequest("GET", "/api/commands?limit=10", nil)
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []journal.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 3)

	assert.Equal(t, "takeoff", entries[0].Command)
	assert.Equal(t, journal.StatusRejected, entries[0].Status)
	assert.Equal(t, 400.0, entries[0].Params["alt"])
	assert.Equal(t, journal.StatusRejected, entries[1].Status)
	assert.Equal(t, journal.StatusOK, entries[2].Status)

	code, _ := e.do(t, "GET", "/api/commands?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCommands_JournalDisabled(t *testing.T) {
	e := newTestEnv(t, nil)
	e.Journal = nil

	code, _ := e.do(t, "POST", "/api/arm", "")
	assert.Equal(t, http.StatusOK, code)

	code, body := e.do(t, "GET", "/api/commands", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotEmpty(t, body["error"])
}

func TestAuth(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.Config) { cfg.JWTSecret = "secret" })

	code, _ := e.do(t, "POST", "/api/arm", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	// read-only routes stay open
	code, _ = e.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, code)

	token, err := auth.Issue("secret", "pilot", time.Hour)
	require.NoError(t, err)

	code, body := e.do(t, "POST", "/api/arm", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "armed", body["status"])

	entries, err := e.Journal.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pilot", entries[0].Params["operator"])
}

func TestTelemetry(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.Config) {
		cfg.Vehicle.Latitude = 52.1
		cfg.Vehicle.Longitude = 13.4
	})

	req := httptest.NewRequest("GET", "/api/telemetry", nil)
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var sample telemetry.Sample
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sample))
	assert.Equal(t, 52.1, sample.Latitude)
	assert.Equal(t, 13.4, sample.Longitude)
	assert.Equal(t, 100.0, sample.Battery)
	assert.Equal(t, vehicle.StateDisarmed, sample.State)
}

func TestHeartbeats(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, "POST", "/api/telemetry/heartbeat", `{"service":"webkurier-telemetry","status":"ok","details":{"fps":30}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = e.do(t, "POST", "/api/telemetry/heartbeat", `{"status":"ok"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, "POST", "/api/telemetry/heartbeat", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	req := httptest.NewRequest("GET", "/api/telemetry/heartbeats", nil)
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var list []telemetry.HeartbeatEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "webkurier-telemetry", list[0].Service)
	assert.False(t, list[0].Stale)
}

type touchCounter struct {
	*vehiclesim.Simulator
	touches int
}

func (c *touchCounter) Touch() {
	c.touches++
	c.Simulator.Touch()
}

func TestHeartbeat_RestartsLinkTimer(t *testing.T) {
	e := newTestEnv(t, nil)
	link := &touchCounter{Simulator: e.sim}
	e.Link = link

	code, _ := e.do(t, "POST", "/api/telemetry/heartbeat", `{"service":"dronepanel","status":"ok"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, link.touches)

	code, _ = e.do(t, "POST", "/api/telemetry/heartbeat", `{"status":"ok"}`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 1, link.touches, "rejected heartbeats are not contact")
}

func TestTelemetryStream(t *testing.T) {
	e := newTestEnv(t, nil)

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/telemetry/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		var sample telemetry.Sample
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&sample))
		assert.Equal(t, vehicle.StateDisarmed, sample.State)
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t, nil)

	req := httptest.NewRequest("OPTIONS", "/api/arm", nil)
	req.Header.Set("Origin", "http://panel.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStaticPanelAndMetrics(t *testing.T) {
	e := newTestEnv(t, nil)
	e.do(t, "GET", "/health", "")

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/takeoff")
	assert.Contains(t, w.Body.String(), `id="token"`)
	assert.Contains(t, w.Body.String(), `"Bearer " + token`)

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dronectl_http_requests_total")
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t, nil)

	code, _ := e.do(t, "GET", "/api/arm", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestCargo_LoadListUnload(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.Config) { cfg.Vehicle.PayloadLimit = 1000 })
	code := "MED_" + randomdata.StringNumber(2, "")

	status, body := e.do(t, "POST", "/api/cargo", `{"name":"insulin","weight":700,"code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "loaded", body["status"])
	assert.Equal(t, float64(700), body["weight"])
	assert.Equal(t, float64(1000), body["payload_limit"])

	status, body = e.do(t, "POST", "/api/cargo", `{"name":"brick","weight":400,"code":"B1"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "payload limit exceeded")

	status, body = e.do(t, "GET", "/api/cargo", "")
	require.Equal(t, http.StatusOK, status)
	parcels, ok := body["parcels"].([]interface{})
	require.True(t, ok)
	require.Len(t, parcels, 1)
	assert.Equal(t, code, parcels[0].(map[string]interface{})["code"])

	status, body = e.do(t, "DELETE", "/api/cargo", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "unloaded", body["status"])
	assert.Len(t, body["parcels"], 1)
	assert.Zero(t, e.vehicle.CurrentWeight())

	entries, err := e.Journal.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "unload", entries[0].Command)
	assert.Equal(t, journal.StatusRejected, entries[1].Status)
	assert.Equal(t, "load", entries[2].Command)
}

func TestCargo_InvalidParcel(t *testing.T) {
	e := newTestEnv(t, nil)

	status, _ := e.do(t, "POST", "/api/cargo", `{"name":"no spaces allowed","weight":100,"code":"OK"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, "POST", "/api/cargo", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCargo_NotWhileFlying(t *testing.T) {
	e := newTestEnv(t, nil)

	status, _ := e.do(t, "POST", "/api/arm", "")
	require.Equal(t, http.StatusOK, status)

	status, body := e.do(t, "POST", "/api/cargo", `{"name":"box","weight":100,"code":"BOX"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "cannot load cargo while ARMED")
}

func TestCargo_NoHold(t *testing.T) {
	e := newTestEnv(t, nil)
	e.Cargo = nil

	status, _ := e.do(t, "GET", "/api/cargo", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
