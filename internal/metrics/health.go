package metrics

import (
	"context"
	"sync"
	"time"
)

// Pinger is a dependency that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	notificationsConfigured bool
	redisEnabled            bool
	storeOK                 bool
	redisConnected          bool
	lastCycleAt             time.Time
	lastCycleSignals        int
	lastCheckAt             time.Time
	startedAt               time.Time
	now                     func() time.Time
}

// HealthReport is a point-in-time copy of HealthStatus.
type HealthReport struct {
	Status                  string     `json:"status"`
	Timestamp               time.Time  `json:"timestamp"`
	Uptime                  string     `json:"uptime"`
	NotificationsConfigured bool       `json:"notifications_configured"`
	StoreOK                 bool       `json:"store_ok"`
	RedisEnabled            bool       `json:"redis_enabled"`
	RedisConnected          bool       `json:"redis_connected"`
	LastCycleAt             *time.Time `json:"last_cycle_at,omitempty"`
	LastCycleSignals        int        `json:"last_cycle_signals"`
}

// NewHealthStatus returns a health status with the store assumed healthy
// until the first probe.
func NewHealthStatus(notificationsConfigured, redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		notificationsConfigured: notificationsConfigured,
		redisEnabled:            redisEnabled,
		storeOK:                 true,
		redisConnected:          redisEnabled,
		startedAt:               time.Now(),
		now:                     time.Now,
	}
}

// NotificationsConfigured reports whether a chat sink is configured.
func (h *HealthStatus) NotificationsConfigured() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.notificationsConfigured
}

// StoreOK reports the last store probe result.
func (h *HealthStatus) StoreOK() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.storeOK
}

// RecordCycle stores the completion time and signal count of a cycle.
func (h *HealthStatus) RecordCycle(at time.Time, signals int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.lastCycleAt = at
	h.lastCycleSignals = signals
	h.mu.Unlock()
}

// Check probes the store and, when enabled, Redis.
func (h *HealthStatus) Check(ctx context.Context, store, redis Pinger) {
	storeOK := store == nil || store.Ping(ctx) == nil
	redisOK := false
	if redis != nil {
		redisOK = redis.Ping(ctx) == nil
	}

	h.mu.Lock()
	h.storeOK = storeOK
	h.redisConnected = redisOK
	h.lastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs Check every interval until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, store, redis Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.Check(probeCtx, store, redis)
				cancel()
			}
		}
	}()
}

// Report returns a snapshot. Status is "healthy" when the store is
// reachable and, if enabled, Redis is connected; otherwise "degraded".
func (h *HealthStatus) Report() HealthReport {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.storeOK || (h.redisEnabled && !h.redisConnected) {
		status = "degraded"
	}

	now := h.now()
	r := HealthReport{
		Status:                  status,
		Timestamp:               now,
		Uptime:                  now.Sub(h.startedAt).Round(time.Second).String(),
		NotificationsConfigured: h.notificationsConfigured,
		StoreOK:                 h.storeOK,
		RedisEnabled:            h.redisEnabled,
		RedisConnected:          h.redisConnected,
		LastCycleSignals:        h.lastCycleSignals,
	}
	if !h.lastCycleAt.IsZero() {
		at := h.lastCycleAt
		r.LastCycleAt = &at
	}
	return r
}
