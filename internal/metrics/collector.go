package metrics

import (
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Collector aggregates relay metrics. All methods are safe for concurrent use.
type Collector struct {
	messages   atomic.Int64
	errors     atomic.Int64
	reconnects atomic.Int64

	latencies *Ring[float64]
	events    *Ring[Event]

	startedAt time.Time
	now       func() time.Time
}

// NewCollector creates a collector whose uptime starts now.
func NewCollector(cfg Config) *Collector {
	return newCollector(cfg, time.Now)
}

func newCollector(cfg Config, now func() time.Time) *Collector {
	def := DefaultConfig()
	if cfg.LatencyWindow < 1 {
		cfg.LatencyWindow = def.LatencyWindow
	}
	if cfg.EventLogSize < 1 {
		cfg.EventLogSize = def.EventLogSize
	}
	return &Collector{
		latencies: NewRing[float64](cfg.LatencyWindow),
		events:    NewRing[Event](cfg.EventLogSize),
		startedAt: now(),
		now:       now,
	}
}

// RecordMessage counts one handled message. Positive latencies enter the
// percentile window.
func (c *Collector) RecordMessage(latencyMs float64) {
	c.messages.Add(1)
	if latencyMs > 0 {
		c.latencies.Push(latencyMs)
	}
}

// RecordError counts one protocol or transport error.
func (c *Collector) RecordError() {
	c.errors.Add(1)
}

// RecordReconnect counts a client id reused while its previous connection was live.
func (c *Collector) RecordReconnect() {
	c.reconnects.Add(1)
}

// AddEvent appends a timestamped entry to the event log.
func (c *Collector) AddEvent(eventType, roomID, userID, details string) {
	c.events.Push(Event{
		ID:        uuid.NewString(),
		Timestamp: c.now().UTC(),
		Type:      eventType,
		RoomID:    roomID,
		UserID:    userID,
		Details:   details,
	})
}

// Events returns up to limit of the newest events, oldest-first.
// A non-positive limit returns the whole log.
func (c *Collector) Events(limit int) []Event {
	return c.events.Last(limit)
}

// Snapshot computes the current statistics.
func (c *Collector) Snapshot() Snapshot {
	samples := c.latencies.Snapshot()
	sort.Float64s(samples)

	uptime := c.now().Sub(c.startedAt).Seconds()
	messages := c.messages.Load()

	var rate float64
	if uptime > 0 {
		rate = float64(messages) / uptime
	}

	return Snapshot{
		MessageCount:   messages,
		ErrorCount:     c.errors.Load(),
		ReconnectCount: c.reconnects.Load(),
		MessagesPerSec: round2(rate),
		P50LatencyMs:   round2(Percentile(samples, 0.50)),
		P95LatencyMs:   round2(Percentile(samples, 0.95)),
		LatencySamples: len(samples),
		EventCount:     c.events.Len(),
		StartedAt:      c.startedAt,
		UptimeSeconds:  math.Round(uptime),
	}
}

// Percentile picks sorted[floor(n*p)], clamped to the last element.
// sorted must be ascending. Returns 0 for no samples.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(float64(n) * p))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
