// Package api implements the drone control backend: the command routes the
// control panels call, telemetry, heartbeats and the embedded browser panel.
package api

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"dronectl/pkg/auth"
	"dronectl/pkg/autopilot"
	"dronectl/pkg/config"
	"dronectl/pkg/journal"
	"dronectl/pkg/metrics"
	"dronectl/pkg/telemetry"
	"dronectl/pkg/zones"
)

//go:embed static
var staticFiles embed.FS

type ProbeFunc func(ctx context.Context, addr string, timeout time.Duration) (bool, error)

type (
	Environment struct {
		HttpServer *http.Server
		Router     *mux.Router
		Config     *config.Config
		Link       autopilot.Link
		Journal    *journal.Journal // optional
		Zones      *zones.Set
		Heartbeats *telemetry.Registry
		Cargo      CargoHold // optional
		Log        *zap.SugaredLogger

		// Probe checks the autopilot gRPC endpoint for /health.
		Probe          ProbeFunc
		StreamInterval time.Duration
		upgrader       websocket.Upgrader
	}
)

func New(cfg *config.Config, link autopilot.Link, j *journal.Journal, z *zones.Set, log *zap.SugaredLogger) *Environment {

	env := &Environment{
		Config:         cfg,
		Link:           link,
		Journal:        j,
		Zones:          z,
		Heartbeats:     telemetry.NewRegistry(time.Duration(cfg.HeartbeatTimeoutSeconds) * time.Second),
		Log:            log,
		Probe:          autopilot.Probe,
		StreamInterval: time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	env.Router = mux.NewRouter()
	env.Router.Use(env.observe)

	env.Router.HandleFunc("/health", env.Health).Methods("GET")

	commands := env.Router.NewRoute().Subrouter()
	if cfg.JWTSecret != "" {
		commands.Use(auth.Middleware(cfg.JWTSecret))
	}
	commands.HandleFunc("/api/arm", env.Arm).Methods("POST")
	commands.HandleFunc("/api/takeoff", env.Takeoff).Methods("POST")
	commands.HandleFunc("/api/land", env.Land).Methods("POST")
	commands.HandleFunc("/api/cargo", env.LoadCargo).Methods("POST")
	commands.HandleFunc("/api/cargo", env.UnloadCargo).Methods("DELETE")

	env.Router.HandleFunc("/api/telemetry", env.Telemetry).Methods("GET")
	env.Router.HandleFunc("/api/telemetry/ws", env.TelemetryStream).Methods("GET")
	env.Router.HandleFunc("/api/telemetry/heartbeat", env.RecordHeartbeat).Methods("POST")
	env.Router.HandleFunc("/api/telemetry/heartbeats", env.ListHeartbeats).Methods("GET")
	env.Router.HandleFunc("/api/commands", env.ListCommands).Methods("GET")
	env.Router.HandleFunc("/api/cargo", env.ListCargo).Methods("GET")
	env.Router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	static, _ := fs.Sub(staticFiles, "static")
	env.Router.Handle("/", http.FileServer(http.FS(static))).Methods("GET")

	return env
}

// Handler returns the router wrapped with CORS handling.
func (env *Environment) Handler() http.Handler {
	origins := env.Config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(env.Router)
}

// Serve listens on the configured port until ctx is cancelled.
func (env *Environment) Serve(ctx context.Context) error {

	env.HttpServer = &http.Server{
		Handler:           env.Handler(),
		Addr:              fmt.Sprintf(":%s", env.Config.ApiPort),
		WriteTimeout:      60 * time.Second,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		env.Log.Infow("listening", "addr", env.HttpServer.Addr)
		errCh <- env.HttpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := env.HttpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "could not shut down http server")
	}
	return nil
}

// observe logs every request and feeds the HTTP metrics.
func (env *Environment) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		duration := time.Since(start)
		metrics.HttpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HttpRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		env.Log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", duration,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the telemetry stream upgrade through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
