package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("API_PORT", "")
	t.Setenv("AUTOPILOT_GRPC", "")

	cfg, err := Parse("")
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.ApiPort)
	assert.Equal(t, "autopilot:50051", cfg.AutopilotGRPC)
	assert.Equal(t, "webkurier-web", cfg.ServiceName)
	assert.Equal(t, 10.0, cfg.DefaultTakeoffAltitude)
	assert.Equal(t, uint16(5), cfg.TakeoffSettleSeconds)
	assert.Equal(t, uint8(100), cfg.Vehicle.BatteryLevel)
	assert.Equal(t, uint16(2000), cfg.Vehicle.PayloadLimit)
	assert.Equal(t, 0.0, cfg.Vehicle.LinkTimeoutSeconds)
	assert.Equal(t, 500.0, cfg.Vehicle.KeepInRadius)
	assert.Equal(t, 5.0, cfg.Vehicle.ReturnSpeed)
	assert.Equal(t, "http://localhost:5000", cfg.URL())
}

func TestParse_JSON(t *testing.T) {
	t.Setenv("API_PORT", "")
	path := writeFile(t, "config.json", `{"api_port":"8081","zone_paths":["zones"],"vehicle":{"model":"VTOL"}}`)

	cfg, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.ApiPort)
	assert.Equal(t, []string{"zones"}, cfg.ZonePaths)
	assert.Equal(t, "VTOL", cfg.Vehicle.Model)
}

func TestParse_YAML(t *testing.T) {
	t.Setenv("API_PORT", "")
	path := writeFile(t, "config.yaml", "api_port: \"9000\"\ndefault_takeoff_altitude: 25\nvehicle:\n  battery_level: 60\n  link_timeout_seconds: 30\n  keep_in_radius: -1\n")

	cfg, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.ApiPort)
	assert.Equal(t, 25.0, cfg.DefaultTakeoffAltitude)
	assert.Equal(t, uint8(60), cfg.Vehicle.BatteryLevel)
	assert.Equal(t, 30.0, cfg.Vehicle.LinkTimeoutSeconds)
	assert.Equal(t, -1.0, cfg.Vehicle.KeepInRadius)
}

func TestParse_EnvOverrides(t *testing.T) {
	path := writeFile(t, "config.json", `{"api_port":"8081","autopilot_grpc":"file:1"}`)
	t.Setenv("API_PORT", "7000")
	t.Setenv("AUTOPILOT_GRPC", "127.0.0.1:50051")

	cfg, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.ApiPort)
	assert.Equal(t, "127.0.0.1:50051", cfg.AutopilotGRPC)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeFile(t, "broken.json", `{"api_port":`)
	_, err = Parse(path)
	assert.Error(t, err)
}
