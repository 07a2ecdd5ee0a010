// Package client talks to the drone control backend.
//
// Call never fails with a Go error: network and decoding failures come back
// as a Result carrying an "error" field, the same shape the backend uses for
// its own application errors, so callers render both the same way.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dronectl/pkg/cargo"
	"dronectl/pkg/telemetry"
)

// ErrNotObject is reported when the backend answers with JSON that is not an
// object, such as a bare null.
var ErrNotObject = errors.New("response is not a JSON object")

// Result is a decoded JSON object returned by the backend.
type Result map[string]interface{}

// Err returns the error text carried by the result, if any.
func (r Result) Err() string {
	v, ok := r["error"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func (r Result) Failed() bool {
	return r.Err() != ""
}

func errorResult(err error) Result {
	return Result{"error": err.Error()}
}

type Client struct {
	base       string
	httpClient *http.Client
	dialer     *websocket.Dialer
	token      string
	log        *zap.SugaredLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends the bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for the backend at base, e.g. http://localhost:5000.
// An empty base means same-origin relative paths and is only useful with a
// custom transport. Requests have no timeout unless the caller's context or
// http.Client sets one.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Base() string {
	return c.base
}

// Call sends one request and decodes the JSON object in the response. data,
// when non-nil, is sent as the JSON body.
func (c *Client) Call(ctx context.Context, endpoint, method string, data interface{}) Result {
	body, err := c.do(ctx, endpoint, method, data)
	if err != nil {
		c.log.Errorw("API error", "endpoint", endpoint, "error", err)
		return errorResult(err)
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		err = errors.Wrap(err, "could not decode response")
		c.log.Errorw("API error", "endpoint", endpoint, "error", err)
		return errorResult(err)
	}

	object, ok := decoded.(map[string]interface{})
	if !ok {
		c.log.Errorw("API error", "endpoint", endpoint, "error", ErrNotObject)
		return errorResult(ErrNotObject)
	}
	return Result(object)
}

func (c *Client) callInto(ctx context.Context, endpoint, method string, data, out interface{}) error {
	body, err := c.do(ctx, endpoint, method, data)
	if err != nil {
		return err
	}

	var failure Result
	if json.Unmarshal(body, &failure) == nil && failure.Failed() {
		return errors.New(failure.Err())
	}

	return errors.Wrap(json.Unmarshal(body, out), "could not decode response")
}

func (c *Client) do(ctx context.Context, endpoint, method string, data interface{}) ([]byte, error) {
	var reader io.Reader
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrap(err, "could not encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "could not build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read response")
	}
	return body, nil
}

func (c *Client) Health(ctx context.Context) Result {
	return c.Call(ctx, "/health", http.MethodGet, nil)
}

func (c *Client) Arm(ctx context.Context) Result {
	return c.Call(ctx, "/api/arm", http.MethodPost, nil)
}

// Takeoff asks for a climb to alt metres; nil lets the backend pick its
// default altitude.
func (c *Client) Takeoff(ctx context.Context, alt *float64) Result {
	return c.Call(ctx, "/api/takeoff", http.MethodPost, map[string]interface{}{"alt": alt})
}

func (c *Client) Land(ctx context.Context) Result {
	return c.Call(ctx, "/api/land", http.MethodPost, nil)
}

func (c *Client) Cargo(ctx context.Context) Result {
	return c.Call(ctx, "/api/cargo", http.MethodGet, nil)
}

func (c *Client) LoadParcel(ctx context.Context, parcel cargo.ParcelDTO) Result {
	return c.Call(ctx, "/api/cargo", http.MethodPost, parcel)
}

func (c *Client) UnloadCargo(ctx context.Context) Result {
	return c.Call(ctx, "/api/cargo", http.MethodDelete, nil)
}

func (c *Client) Heartbeat(ctx context.Context, hb telemetry.Heartbeat) Result {
	return c.Call(ctx, "/api/telemetry/heartbeat", http.MethodPost, hb)
}

func (c *Client) Telemetry(ctx context.Context) (telemetry.Sample, error) {
	var sample telemetry.Sample
	err := c.callInto(ctx, "/api/telemetry", http.MethodGet, nil, &sample)
	return sample, err
}

func (c *Client) Heartbeats(ctx context.Context) ([]telemetry.HeartbeatEntry, error) {
	var list []telemetry.HeartbeatEntry
	err := c.callInto(ctx, "/api/telemetry/heartbeats", http.MethodGet, nil, &list)
	return list, err
}

// BeatLoop posts a heartbeat right away and then every interval until ctx
// is cancelled. Failed posts are logged and the loop carries on.
func (c *Client) BeatLoop(ctx context.Context, interval time.Duration, beat func() telemetry.Heartbeat) error {
	if interval <= 0 {
		return errors.Errorf("heartbeat interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		hb := beat()
		if res := c.Heartbeat(ctx, hb); res.Failed() && ctx.Err() == nil {
			c.log.Warnw("heartbeat failed", "service", hb.Service, "error", res.Err())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Watch streams telemetry samples to fn until ctx is cancelled or the
// stream breaks.
func (c *Client) Watch(ctx context.Context, fn func(telemetry.Sample)) error {
	url := c.base + "/api/telemetry/ws"
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		return errors.Wrap(err, "could not open telemetry stream")
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var sample telemetry.Sample
		if err := conn.ReadJSON(&sample); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return errors.Wrap(err, "telemetry stream broken")
		}
		fn(sample)
	}
}
