// implements the config object.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// represents the configuration for the control backend
type Config struct {
	ApiPort                 string   `json:"api_port" yaml:"api_port"`
	LocalURL                string   `json:"local_url" yaml:"local_url"`
	ServiceName             string   `json:"service_name" yaml:"service_name"`
	AutopilotGRPC           string   `json:"autopilot_grpc" yaml:"autopilot_grpc"`
	ProbeTimeoutSeconds     uint16   `json:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
	DatabasePath            string   `json:"database_path" yaml:"database_path"`
	ZonePaths               []string `json:"zone_paths" yaml:"zone_paths"`
	JWTSecret               string   `json:"jwt_secret" yaml:"jwt_secret"`
	AllowedOrigins          []string `json:"allowed_origins" yaml:"allowed_origins"`
	DefaultTakeoffAltitude  float64  `json:"default_takeoff_altitude" yaml:"default_takeoff_altitude"`
	TakeoffSettleSeconds    uint16   `json:"takeoff_settle_seconds" yaml:"takeoff_settle_seconds"`
	HeartbeatTimeoutSeconds uint16   `json:"heartbeat_timeout_seconds" yaml:"heartbeat_timeout_seconds"`
	LogLevel                string   `json:"log_level" yaml:"log_level"`
	Vehicle                 Vehicle  `json:"vehicle" yaml:"vehicle"`
}

// describes the simulated vehicle the backend drives
type Vehicle struct {
	SerialNumber   string  `json:"serial_number" yaml:"serial_number"`
	Model          string  `json:"model" yaml:"model"`
	BatteryLevel   uint8   `json:"battery_level" yaml:"battery_level"`
	Latitude       float64 `json:"latitude" yaml:"latitude"`
	Longitude      float64 `json:"longitude" yaml:"longitude"`
	TickMillis     uint16  `json:"tick_millis" yaml:"tick_millis"`
	DrainPerMinute float64 `json:"drain_per_minute" yaml:"drain_per_minute"`
	PayloadLimit   uint16  `json:"payload_limit" yaml:"payload_limit"` // grams

	// failsafes, all around the position above which doubles as home
	LinkTimeoutSeconds float64 `json:"link_timeout_seconds" yaml:"link_timeout_seconds"` // 0 disables
	KeepInRadius       float64 `json:"keep_in_radius" yaml:"keep_in_radius"`             // metres, negative disables
	ReturnSpeed        float64 `json:"return_speed" yaml:"return_speed"`                 // m/s
	WindNorth          float64 `json:"wind_north" yaml:"wind_north"`                     // m/s
	WindEast           float64 `json:"wind_east" yaml:"wind_east"`                       // m/s
}

// returns a parsed configuration. Files ending in .yaml or .yml are read as
// YAML, anything else as JSON. An empty path yields the defaults.
// Environment variables (optionally from a .env file) override file values.
func Parse(path string) (*Config, error) {
	config := Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "could not read config file")
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &config)
		default:
			err = json.Unmarshal(data, &config)
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal config file")
		}
	}

	// a missing .env file is fine, the process environment still applies
	_ = godotenv.Load()
	applyEnv(&config)

	setDefaults(&config)

	return &config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv("API_PORT"); v != "" {
		config.ApiPort = v
	}
	if v := os.Getenv("AUTOPILOT_GRPC"); v != "" {
		config.AutopilotGRPC = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		config.DatabasePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
}

func setDefaults(config *Config) {

	//setting a default value for api port if empty
	if config.ApiPort == "" {
		config.ApiPort = "5000"
	}

	//setting a default value for local url if empty
	if config.LocalURL == "" {
		config.LocalURL = "http://localhost"
	}

	if config.ServiceName == "" {
		config.ServiceName = "webkurier-web"
	}

	if config.AutopilotGRPC == "" {
		config.AutopilotGRPC = "autopilot:50051"
	}

	if config.ProbeTimeoutSeconds == 0 {
		config.ProbeTimeoutSeconds = 2
	}

	if config.DatabasePath == "" {
		config.DatabasePath = "dronectl.db"
	}

	if config.DefaultTakeoffAltitude == 0 {
		config.DefaultTakeoffAltitude = 10
	}

	if config.TakeoffSettleSeconds == 0 {
		config.TakeoffSettleSeconds = 5
	}

	if config.HeartbeatTimeoutSeconds == 0 {
		config.HeartbeatTimeoutSeconds = 45
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if config.Vehicle.SerialNumber == "" {
		config.Vehicle.SerialNumber = "SIM-0001"
	}

	if config.Vehicle.Model == "" {
		config.Vehicle.Model = "Quadcopter"
	}

	if config.Vehicle.BatteryLevel == 0 {
		config.Vehicle.BatteryLevel = 100
	}

	if config.Vehicle.TickMillis == 0 {
		config.Vehicle.TickMillis = 100
	}

	if config.Vehicle.DrainPerMinute == 0 {
		config.Vehicle.DrainPerMinute = 2
	}

	if config.Vehicle.PayloadLimit == 0 {
		config.Vehicle.PayloadLimit = 2000
	}

	if config.Vehicle.KeepInRadius == 0 {
		config.Vehicle.KeepInRadius = 500
	}

	if config.Vehicle.ReturnSpeed == 0 {
		config.Vehicle.ReturnSpeed = 5
	}
}

// URL returns the address the API is reachable on from this host.
func (c *Config) URL() string {
	return strings.TrimRight(c.LocalURL, "/") + ":" + c.ApiPort
}
