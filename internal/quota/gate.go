// Package quota implements the fingerprint-keyed anonymous-use gate.
//
// Each client fingerprint gets a bounded allowance of chargeable evaluations
// inside a rolling window; once the allowance is spent, callers must fall
// back to authenticated access. Records live in an injected Store so
// multi-instance deployments can swap the process-local map for a shared
// backing store.
package quota

import (
	"log/slog"
	"sync"
	"time"
)

// Default gate tuning. The sweep interval is amortized: expired records are
// removed inline during Evaluate calls, never by a dedicated timer.
const (
	DefaultLimit  = 50
	DefaultWindow = 24 * time.Hour

	sweepInterval = time.Hour
)

// Record tracks the chargeable-use count for one fingerprint.
// A record past its expiry is treated as absent.
type Record struct {
	Count     int
	ExpiresAt time.Time
}

// Store is the persistence boundary for quota records. Implementations must
// be safe for concurrent use.
type Store interface {
	Get(fingerprint string) (Record, bool)
	Put(fingerprint string, rec Record)
	// Sweep removes records whose expiry is before now.
	Sweep(now time.Time)
}

// Gate enforces the anonymous-use allowance.
type Gate struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	lastSweep time.Time

	now func() time.Time // injectable clock for tests
}

// NewGate creates a gate over the given store. A limit or window of zero
// selects the default. A nil store selects an in-memory map store.
func NewGate(store Store, limit int, window time.Duration, logger *slog.Logger) *Gate {
	if store == nil {
		store = NewMemoryStore()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Evaluate reports whether the client behind fingerprint may proceed without
// logging in.
//
// The first sighting of a fingerprint is always allowed and creates a record
// with count 1. Later sightings inside the window are allowed until the
// allowance is spent. A chargeable evaluation consumes one unit of the
// allowance; non-chargeable evaluations (UI pre-flight probes) never change
// the count.
func (g *Gate) Evaluate(fingerprint string, chargeable bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	// Amortized cleanup of expired records, at most once per sweepInterval.
	if now.Sub(g.lastSweep) > sweepInterval {
		g.store.Sweep(now)
		g.lastSweep = now
	}

	rec, ok := g.store.Get(fingerprint)
	if !ok || rec.ExpiresAt.Before(now) {
		g.store.Put(fingerprint, Record{Count: 1, ExpiresAt: now.Add(g.window)})
		return true
	}

	if rec.Count >= g.limit {
		g.logger.Debug("quota exhausted", "count", rec.Count, "limit", g.limit)
		return false
	}

	if chargeable {
		rec.Count++
		g.store.Put(fingerprint, rec)
	}
	return true
}

// MemoryStore is a process-local Store backed by a map. It is guarded by a
// mutex; deployments with multiple process instances need a shared store
// instead, since each instance would otherwise grant a separate allowance.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get returns the record for fingerprint, if present.
func (s *MemoryStore) Get(fingerprint string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fingerprint]
	return rec, ok
}

// Put stores the record for fingerprint.
func (s *MemoryStore) Put(fingerprint string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[fingerprint] = rec
}

// Sweep removes expired records.
func (s *MemoryStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fp, rec := range s.records {
		if rec.ExpiresAt.Before(now) {
			delete(s.records, fp)
		}
	}
}
