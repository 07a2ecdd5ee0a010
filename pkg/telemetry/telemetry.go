// Package telemetry holds vehicle telemetry samples, the raw radio frame
// codec and the service heartbeat registry.
package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Sample is one telemetry reading of the vehicle.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Battery   float64   `json:"battery"`
	State     string    `json:"state,omitempty"`
}

// FormatRaw renders a sample as a radio frame: GPS:<lat>,<lon>;ALT:<m>;BAT:<n>%
func FormatRaw(s Sample) string {
	frame := fmt.Sprintf("GPS:%.6f,%.6f;ALT:%.2f;BAT:%.0f%%", s.Latitude, s.Longitude, s.Altitude, s.Battery)
	if s.State != "" {
		frame += ";STATE:" + s.State
	}
	return frame
}

// ParseRaw decodes a radio frame of KEY:VALUE pairs separated by ';'.
// Keys are case-insensitive; unknown keys are ignored.
func ParseRaw(raw string) (Sample, error) {
	s := Sample{Timestamp: time.Now().UTC()}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s, errors.New("empty telemetry frame")
	}

	for _, part := range strings.Split(raw, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return s, errors.Errorf("malformed telemetry pair %q", part)
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])

		var err error
		switch key {
		case "gps":
			coords := strings.Split(value, ",")
			if len(coords) != 2 {
				return s, errors.Errorf("malformed gps value %q", value)
			}
			if s.Latitude, err = strconv.ParseFloat(strings.TrimSpace(coords[0]), 64); err != nil {
				return s, errors.Wrap(err, "latitude")
			}
			if s.Longitude, err = strconv.ParseFloat(strings.TrimSpace(coords[1]), 64); err != nil {
				return s, errors.Wrap(err, "longitude")
			}
		case "alt":
			if s.Altitude, err = strconv.ParseFloat(value, 64); err != nil {
				return s, errors.Wrap(err, "altitude")
			}
		case "bat":
			if s.Battery, err = strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err != nil {
				return s, errors.Wrap(err, "battery")
			}
		case "state":
			s.State = strings.ToUpper(value)
		}
	}

	return s, nil
}
