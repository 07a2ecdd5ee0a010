package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dronectl_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dronectl_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// vehicle commands
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dronectl_commands_total",
			Help: "Vehicle commands by outcome",
		},
		[]string{"command", "status"}, // ok, rejected, failed
	)

	VehicleAltitude = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dronectl_vehicle_altitude_meters",
			Help: "Last reported vehicle altitude",
		},
	)

	VehicleBattery = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dronectl_vehicle_battery_percent",
			Help: "Last reported vehicle battery level",
		},
	)

	TelemetrySubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dronectl_telemetry_subscribers",
			Help: "Number of open telemetry websocket streams",
		},
	)
)

func UpdateVehicleMetrics(altitude, battery float64) {
	VehicleAltitude.Set(altitude)
	VehicleBattery.Set(battery)
}
