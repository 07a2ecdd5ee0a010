package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"dronectl/pkg/journal"
	"dronectl/pkg/metrics"
	"dronectl/pkg/telemetry"
	"dronectl/pkg/vehicle"
	"dronectl/pkg/zones"
)

type takeoffRequest struct {
	Alt *float64 `json:"alt"`
}

func (env *Environment) Health(w http.ResponseWriter, r *http.Request) {

	timeout := time.Duration(env.Config.ProbeTimeoutSeconds) * time.Second
	reachable, err := env.Probe(r.Context(), env.Config.AutopilotGRPC, timeout)
	if err != nil {
		env.Log.Warnw("autopilot probe failed", "addr", env.Config.AutopilotGRPC, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                  true,
		"service":             env.Config.ServiceName,
		"autopilot_grpc":      env.Config.AutopilotGRPC,
		"autopilot_reachable": reachable,
		"vehicle":             env.Link.Vehicle().State,
	})
}

func (env *Environment) Arm(w http.ResponseWriter, r *http.Request) {

	ctx := r.Context()
	err := env.Link.Connect(ctx)
	if err == nil {
		err = env.Link.Arm(ctx)
	}

	env.record(ctx, r, "arm", nil, err)
	if err != nil {
		env.writeCommandError(w, "arm", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "armed"})
}

func (env *Environment) Takeoff(w http.ResponseWriter, r *http.Request) {

	req := takeoffRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		env.Log.Infow("could not decode takeoff request", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid takeoff request: " + err.Error()})
		return
	}

	alt := env.Config.DefaultTakeoffAltitude
	if req.Alt != nil {
		alt = *req.Alt
	}
	params := map[string]interface{}{"alt": alt}
	ctx := r.Context()

	err := env.takeoff(ctx, alt)
	env.record(ctx, r, "takeoff", params, err)
	if err != nil {
		env.writeCommandError(w, "takeoff", err)
		return
	}

	settle := time.Duration(env.Config.TakeoffSettleSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()

	status := "airborne"
	if err := env.Link.WaitState(waitCtx, vehicle.StateAirborne); err != nil {
		status = "climbing"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "target_alt": alt})
}

// takeoff arms the vehicle when needed and commands the climb, after
// checking the altitude and the geozones around the home position.
func (env *Environment) takeoff(ctx context.Context, alt float64) error {

	if !vehicle.ValidTakeoffAltitude(alt) {
		return errors.Wrapf(vehicle.ErrInvalidAltitude, "%g m must be above 0 and at most %.0f m", alt, vehicle.MaxAltitude)
	}

	v := env.Link.Vehicle()
	if err := env.Zones.Verify(v.Longitude, v.Latitude, alt); err != nil {
		return err
	}

	if err := env.Link.Connect(ctx); err != nil {
		return err
	}

	if v.State == vehicle.StateDisarmed {
		if err := env.Link.Arm(ctx); err != nil {
			return errors.Wrap(err, "arming before takeoff")
		}
	}

	return env.Link.Takeoff(ctx, alt)
}

func (env *Environment) Land(w http.ResponseWriter, r *http.Request) {

	ctx := r.Context()
	err := env.Link.Connect(ctx)
	if err == nil {
		err = env.Link.Land(ctx)
	}

	env.record(ctx, r, "land", nil, err)
	if err != nil {
		env.writeCommandError(w, "land", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "landing"})
}

func (env *Environment) Telemetry(w http.ResponseWriter, r *http.Request) {

	sample, err := env.Link.Telemetry()
	if err != nil {
		env.Log.Errorw("could not read telemetry", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}

	metrics.UpdateVehicleMetrics(sample.Altitude, sample.Battery)
	writeJSON(w, http.StatusOK, sample)
}

// contactRecorder is a link that runs a link-loss failsafe and needs to hear
// about ground station heartbeats.
type contactRecorder interface {
	Touch()
}

func (env *Environment) RecordHeartbeat(w http.ResponseWriter, r *http.Request) {

	hb := telemetry.Heartbeat{}
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid heartbeat: " + err.Error()})
		return
	}

	if err := env.Heartbeats.Record(hb); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	if link, ok := env.Link.(contactRecorder); ok {
		link.Touch()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (env *Environment) ListHeartbeats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, env.Heartbeats.List())
}

func (env *Environment) ListCommands(w http.ResponseWriter, r *http.Request) {

	if env.Journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "command journal is disabled"})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	entries, err := env.Journal.List(r.Context(), limit)
	if err != nil {
		env.Log.Errorw("could not list commands", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// record journals a command outcome and counts it.
func (env *Environment) record(ctx context.Context, r *http.Request, command string, params map[string]interface{}, err error) {

	status := commandStatus(err)
	metrics.CommandsTotal.WithLabelValues(command, status).Inc()

	if env.Journal == nil {
		return
	}

	entry := journal.Entry{Command: command, Params: params, Status: status}
	if err != nil {
		entry.Error = err.Error()
	}
	if operator := r.Header.Get("X-Operator"); operator != "" {
		if entry.Params == nil {
			entry.Params = map[string]interface{}{}
		}
		entry.Params["operator"] = operator
	}

	// a cancelled request must still be journaled
	if _, jerr := env.Journal.Record(context.WithoutCancel(ctx), entry); jerr != nil {
		env.Log.Errorw("could not journal command", "command", command, "error", jerr)
	}
}

func commandStatus(err error) string {
	if err == nil {
		return journal.StatusOK
	}
	if statusFor(err) == http.StatusInternalServerError {
		return journal.StatusFailed
	}
	return journal.StatusRejected
}

func statusFor(err error) int {
	var hit *zones.ZoneHitError
	switch {
	case errors.As(err, &hit):
		return http.StatusForbidden
	case errors.Is(err, vehicle.ErrInvalidAltitude):
		return http.StatusBadRequest
	case errors.Is(err, vehicle.ErrInvalidTransition), errors.Is(err, vehicle.ErrLowBattery),
		errors.Is(err, vehicle.ErrOverweight):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (env *Environment) writeCommandError(w http.ResponseWriter, command string, err error) {

	code := statusFor(err)
	body := map[string]interface{}{"error": err.Error()}

	var hit *zones.ZoneHitError
	if errors.As(err, &hit) {
		body["zones"] = hit.Hits
	}

	if code == http.StatusInternalServerError {
		env.Log.Errorw("command failed", "command", command, "error", err)
	} else {
		env.Log.Infow("command rejected", "command", command, "error", err)
	}

	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
