package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Heartbeat is posted periodically by companion services.
type Heartbeat struct {
	Service string                 `json:"service"`
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HeartbeatEntry is the last heartbeat seen from a service.
type HeartbeatEntry struct {
	Heartbeat
	LastSeen time.Time `json:"last_seen"`
	Stale    bool      `json:"stale"`
}

// Registry keeps the latest heartbeat per service.
type Registry struct {
	timeout time.Duration
	now     func() time.Time
	entries map[string]HeartbeatEntry
	mu      sync.RWMutex
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		timeout: timeout,
		now:     time.Now,
		entries: make(map[string]HeartbeatEntry),
	}
}

func (r *Registry) Record(hb Heartbeat) error {
	if hb.Service == "" {
		return errors.New("heartbeat without service name")
	}
	if hb.Status == "" {
		hb.Status = "ok"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[hb.Service] = HeartbeatEntry{Heartbeat: hb, LastSeen: r.now().UTC()}
	return nil
}

// List returns all services sorted by name, flagging those not heard from
// within the timeout.
func (r *Registry) List() []HeartbeatEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	list := make([]HeartbeatEntry, 0, len(r.entries))
	for _, e := range r.entries {
		e.Stale = r.timeout > 0 && now.Sub(e.LastSeen) > r.timeout
		list = append(list, e)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Service < list[j].Service })
	return list
}
