package cache

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"go-palm-insight/internal/config"
)

// Tier names reported to access hooks
const (
	TierL1   = "l1"
	TierL2   = "l2"
	TierMiss = "miss"
)

// AccessHook observes every read. It must not block.
type AccessHook func(key string, tier string, duration time.Duration)

type entry struct {
	data      []byte
	createdAt time.Time
	expiresAt time.Time
	hits      atomic.Int64
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Entries   int   `json:"entries"`
	L1Hits    int64 `json:"l1_hits"`
	L2Hits    int64 `json:"l2_hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	L2Enabled bool  `json:"l2_enabled"`
}

// Manager is a two-tier cache: a bounded in-process map in front of an
// optional KVStore. Errors from the store are logged and reported as misses.
type Manager struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	store      KVStore
	prefix     string
	maxEntries int
	ttl        config.CacheTTL
	interval   time.Duration
	now        func() time.Time
	hook       AccessHook
	log        logrus.FieldLogger

	t         tomb.Tomb
	started   bool
	closeOnce sync.Once

	l1Hits    atomic.Int64
	l2Hits    atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option customizes a Manager
type Option func(*Manager)

// WithStore enables the distributed tier
func WithStore(store KVStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithAccessHook registers a read observer
func WithAccessHook(hook AccessHook) Option {
	return func(m *Manager) { m.hook = hook }
}

// NewManager creates a cache manager and starts its sweep loop when the
// configured interval is positive.
func NewManager(cfg config.CacheConfig, log logrus.FieldLogger, opts ...Option) *Manager {
	m := &Manager{
		entries:    make(map[string]*entry),
		prefix:     cfg.KeyPrefix,
		maxEntries: cfg.L1MaxEntries,
		ttl:        cfg.TTL,
		interval:   cfg.SweepInterval,
		now:        time.Now,
		log:        log.WithField("component", "cache_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxEntries <= 0 {
		m.maxEntries = 1000
	}
	if m.interval > 0 {
		m.started = true
		m.t.Go(m.sweepLoop)
	}
	return m
}

// Get decodes the cached value for key into a T. A decode failure is a miss.
func Get[T any](ctx context.Context, m *Manager, key string) (T, bool) {
	var zero T
	data, ok := m.GetBytes(ctx, key)
	if !ok {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		m.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Dropping undecodable cache entry")
		m.Delete(ctx, key)
		return zero, false
	}
	return value, true
}

// Set stores value under key. A non-positive ttl selects the default for the key's type.
func Set[T any](ctx context.Context, m *Manager, key string, value T, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		m.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Failed to encode cache value")
		return
	}
	m.SetBytes(ctx, key, data, ttl)
}

// GetBytes reads L1 first, then L2. An L2 hit is written back into L1.
func (m *Manager) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	start := m.now()

	if data, ok := m.getLocal(key); ok {
		m.l1Hits.Add(1)
		m.observe(key, TierL1, start)
		return data, true
	}

	if m.store != nil {
		raw, err := m.store.Get(ctx, m.prefix+key)
		if err != nil {
			m.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("L2 cache read failed")
		} else if raw != nil {
			if data, ttl, ok := m.fromStore(key, raw, start); ok {
				m.setLocal(key, data, ttl)
				m.l2Hits.Add(1)
				m.observe(key, TierL2, start)
				return data, true
			}
		}
	}

	m.misses.Add(1)
	m.observe(key, TierMiss, start)
	return nil, false
}

// SetBytes writes to both tiers
func (m *Manager) SetBytes(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlFor(key, m.ttl)
	}
	m.setLocal(key, data, ttl)

	if m.store != nil {
		sealed := sealEnvelope(m.now().Add(ttl), data)
		if err := m.store.Set(ctx, m.prefix+key, sealed, ttl); err != nil {
			m.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("L2 cache write failed")
		}
	}
}

// Delete removes key from both tiers
func (m *Manager) Delete(ctx context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, m.prefix+key); err != nil {
			m.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("L2 cache delete failed")
		}
	}
}

// Clear empties L1 and removes every prefixed key from L2
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	keys, err := m.store.Keys(ctx, m.prefix+"*")
	if err != nil {
		m.log.WithField("error", err.Error()).Warn("L2 cache scan failed")
		return
	}
	for _, key := range keys {
		if err := m.store.Delete(ctx, key); err != nil {
			m.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("L2 cache delete failed")
		}
	}
}

// GenerateKey is a convenience wrapper over the package function
func (m *Manager) GenerateKey(entryType string, params map[string]any) string {
	return GenerateKey(entryType, params)
}

// Ping reports L2 reachability. A cache without L2 is always healthy.
func (m *Manager) Ping(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	return m.store.Ping(ctx)
}

// Stats returns current counters
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	n := len(m.entries)
	m.mu.RUnlock()
	return Stats{
		Entries:   n,
		L1Hits:    m.l1Hits.Load(),
		L2Hits:    m.l2Hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		L2Enabled: m.store != nil,
	}
}

// Close stops the sweep loop and closes the store
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.started {
			m.t.Kill(nil)
			_ = m.t.Wait()
		}
		if m.store != nil {
			err = m.store.Close()
		}
	})
	return err
}

func (m *Manager) getLocal(key string) ([]byte, bool) {
	now := m.now()

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	e.hits.Add(1)
	return e.data, true
}

// fromStore unwraps an L2 payload and returns the lifetime it has left,
// capped by the key's default TTL. Expired or foreign payloads are misses.
func (m *Manager) fromStore(key string, raw []byte, now time.Time) ([]byte, time.Duration, bool) {
	expiresAt, data, ok := openEnvelope(raw)
	if !ok {
		m.log.WithField("key", key).Warn("Ignoring malformed L2 cache entry")
		return nil, 0, false
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return nil, 0, false
	}
	return data, min(remaining, ttlFor(key, m.ttl)), true
}

func (m *Manager) setLocal(key string, data []byte, ttl time.Duration) {
	now := m.now()
	e := &entry{data: data, createdAt: now, expiresAt: now.Add(ttl)}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	if len(m.entries) > m.maxEntries {
		m.evictLocked(key)
	}
}

// evictLocked drops the quarter of the budget with the fewest hits, oldest
// first on ties. The entry just written is never a candidate.
func (m *Manager) evictLocked(keep string) {
	type candidate struct {
		key       string
		hits      int64
		createdAt time.Time
	}
	candidates := make([]candidate, 0, len(m.entries))
	for k, e := range m.entries {
		if k == keep {
			continue
		}
		candidates = append(candidates, candidate{k, e.hits.Load(), e.createdAt})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		if a.hits != b.hits {
			if a.hits < b.hits {
				return -1
			}
			return 1
		}
		return a.createdAt.Compare(b.createdAt)
	})

	n := m.maxEntries / 4
	if n < 1 {
		n = 1
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	for _, c := range candidates[:n] {
		delete(m.entries, c.key)
	}
	m.evictions.Add(int64(n))
	m.log.WithFields(logrus.Fields{"evicted": n, "remaining": len(m.entries)}).Debug("L1 cache evicted entries")
}

// sweep drops every expired L1 entry
func (m *Manager) sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

func (m *Manager) sweepLoop() error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := m.sweep(); removed > 0 {
				m.log.WithField("removed", removed).Debug("L1 cache sweep")
			}
		case <-m.t.Dying():
			return nil
		}
	}
}

func (m *Manager) observe(key, tier string, start time.Time) {
	if m.hook == nil {
		return
	}
	m.hook(key, tier, m.now().Sub(start))
}
