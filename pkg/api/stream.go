package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"dronectl/pkg/metrics"
)

const writeWait = 5 * time.Second

// TelemetryStream pushes a telemetry sample every StreamInterval until the
// client goes away.
func (env *Environment) TelemetryStream(w http.ResponseWriter, r *http.Request) {

	conn, err := env.upgrader.Upgrade(w, r, nil)
	if err != nil {
		env.Log.Infow("telemetry stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.TelemetrySubscribers.Inc()
	defer metrics.TelemetrySubscribers.Dec()

	// the read side only exists to notice the peer closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(env.StreamInterval)
	defer ticker.Stop()

	for {
		sample, err := env.Link.Telemetry()
		if err != nil {
			env.Log.Errorw("could not read telemetry", "error", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "telemetry unavailable"),
				time.Now().Add(writeWait))
			return
		}
		metrics.UpdateVehicleMetrics(sample.Altitude, sample.Battery)

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(sample); err != nil {
			env.Log.Debugw("telemetry stream closed", "error", err)
			return
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
