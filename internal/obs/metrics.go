package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight counters and upstream latency stats for the
// API gateway.
type Metrics struct {
	cacheHits      uint64
	cacheMisses    uint64
	coalescedWaits uint64
	upstreamCalls  uint64
	failovers      uint64
	notFound       uint64
	fetchFailures  uint64
	queueDrops     uint64
	queueClosed    uint64

	fetchLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	CacheHits      uint64
	CacheMisses    uint64
	CoalescedWaits uint64
	UpstreamCalls  uint64
	Failovers      uint64
	NotFound       uint64
	FetchFailures  uint64
	QueueDrops     uint64
	QueueClosed    uint64
	FetchLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncCacheHit records a fresh cache read.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.cacheHits, 1)
}

// IncCacheMiss records a stale or empty cache read.
func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.cacheMisses, 1)
}

// IncCoalescedWait records a caller that joined another caller's fetch.
func (m *Metrics) IncCoalescedWait() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.coalescedWaits, 1)
}

// IncUpstreamCall records one outbound request attempt.
func (m *Metrics) IncUpstreamCall() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.upstreamCalls, 1)
}

// IncFailover records a fetch served by a non-primary credential.
func (m *Metrics) IncFailover() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.failovers, 1)
}

// IncNotFound records a confirmed-absent upstream response.
func (m *Metrics) IncNotFound() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.notFound, 1)
}

// IncFetchFailure records a fetch that surfaced as a miss to trackers.
func (m *Metrics) IncFetchFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fetchFailures, 1)
}

// IncQueueDrop records an event queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// ObserveFetch measures one settled upstream fetch.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		CacheHits:      atomic.LoadUint64(&m.cacheHits),
		CacheMisses:    atomic.LoadUint64(&m.cacheMisses),
		CoalescedWaits: atomic.LoadUint64(&m.coalescedWaits),
		UpstreamCalls:  atomic.LoadUint64(&m.upstreamCalls),
		Failovers:      atomic.LoadUint64(&m.failovers),
		NotFound:       atomic.LoadUint64(&m.notFound),
		FetchFailures:  atomic.LoadUint64(&m.fetchFailures),
		QueueDrops:     atomic.LoadUint64(&m.queueDrops),
		QueueClosed:    atomic.LoadUint64(&m.queueClosed),
		FetchLatency:   m.fetchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (s *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	ns := uint64(d)
	atomic.AddUint64(&s.count, 1)
	atomic.AddUint64(&s.sum, ns)
	for {
		cur := atomic.LoadUint64(&s.min)
		if cur != 0 && ns >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&s.min, cur, ns) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&s.max)
		if ns <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&s.max, cur, ns) {
			break
		}
	}
}

// Snapshot returns a point-in-time view of the stats.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&s.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&s.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&s.min)),
		Max:   time.Duration(atomic.LoadUint64(&s.max)),
		Avg:   time.Duration(sum / count),
	}
}
