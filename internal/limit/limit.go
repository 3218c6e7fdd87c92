// Package limit guards the upstream budget: requests in flight, per-client
// request rate and a daily request cap.
package limit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Verdict int

const (
	Allowed Verdict = iota
	RateLimited
	DailyLimitReached
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case RateLimited:
		return "rate_limited"
	case DailyLimitReached:
		return "daily_limit_reached"
	default:
		return "unknown"
	}
}

// Limiter decides whether a request may reach the upstream. An Allowed
// verdict holds a concurrency slot that must be given back with Release.
type Limiter interface {
	CheckAndConsume(ctx context.Context, key string) (Verdict, error)
	Release(key string)
}

// DailyCounter is the single source of truth for the daily budget.
// Consume must be atomic: it reports false once limit units were taken for day.
type DailyCounter interface {
	ConsumeDaily(ctx context.Context, day string, limit int) (bool, error)
}

type Options struct {
	MaxConcurrent     int           // 0 disables the in-flight cap
	RequestsPerMinute int           // per key, 0 disables
	Burst             int           // defaults to RequestsPerMinute
	DailyLimit        int           // 0 disables
	IdleTTL           time.Duration // how long an idle per-key bucket is kept
	Daily             DailyCounter  // defaults to an in-memory counter
	Now               func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Memory keeps concurrency and rate state in process. The daily budget goes
// through Options.Daily so it can live in shared storage.
type Memory struct {
	opts Options

	mu        sync.Mutex
	inFlight  int
	buckets   map[string]*bucket
	lastSweep time.Time
}

func NewMemory(opts Options) *Memory {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Daily == nil {
		opts.Daily = NewMemoryDaily()
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.RequestsPerMinute
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = time.Hour
	}
	return &Memory{opts: opts, buckets: make(map[string]*bucket)}
}

func (m *Memory) CheckAndConsume(ctx context.Context, key string) (Verdict, error) {
	now := m.opts.Now()

	m.mu.Lock()
	if m.opts.MaxConcurrent > 0 && m.inFlight >= m.opts.MaxConcurrent {
		m.mu.Unlock()
		return RateLimited, nil
	}
	if m.opts.RequestsPerMinute > 0 && !m.bucketFor(key, now).AllowN(now, 1) {
		m.mu.Unlock()
		return RateLimited, nil
	}
	// Hold the slot while the daily counter is consulted so two requests
	// cannot both pass the in-flight check and then exceed it.
	m.inFlight++
	m.mu.Unlock()

	if m.opts.DailyLimit > 0 {
		ok, err := m.opts.Daily.ConsumeDaily(ctx, Day(now), m.opts.DailyLimit)
		if err != nil || !ok {
			m.Release(key)
			if err != nil {
				return RateLimited, err
			}
			return DailyLimitReached, nil
		}
	}
	return Allowed, nil
}

func (m *Memory) Release(string) {
	m.mu.Lock()
	if m.inFlight > 0 {
		m.inFlight--
	}
	m.mu.Unlock()
}

// InFlight reports the number of held slots.
func (m *Memory) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// bucketFor must be called with m.mu held.
func (m *Memory) bucketFor(key string, now time.Time) *rate.Limiter {
	if now.Sub(m.lastSweep) > m.opts.IdleTTL {
		for k, b := range m.buckets {
			if now.Sub(b.lastSeen) > m.opts.IdleTTL {
				delete(m.buckets, k)
			}
		}
		m.lastSweep = now
	}
	b, ok := m.buckets[key]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(m.opts.RequestsPerMinute))
		b = &bucket{limiter: rate.NewLimiter(every, m.opts.Burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Day is the budget period key: the UTC calendar day.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MemoryDaily is a process-local DailyCounter.
type MemoryDaily struct {
	mu     sync.Mutex
	day    string
	counts int
}

func NewMemoryDaily() *MemoryDaily {
	return &MemoryDaily{}
}

func (d *MemoryDaily) ConsumeDaily(_ context.Context, day string, limit int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.day != day {
		d.day = day
		d.counts = 0
	}
	if d.counts >= limit {
		return false, nil
	}
	d.counts++
	return true, nil
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) CheckAndConsume(context.Context, string) (Verdict, error) { return Allowed, nil }
func (Unlimited) Release(string)                                          {}
