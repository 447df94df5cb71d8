// Package cache implements the response cache (C2): a namespaced,
// content-addressed key/value store with mandatory TTL, group tags,
// one level of transitive dependency invalidation, and optional
// transparent compression. The cache is advisory — callers must not
// depend on it for correctness, and every operation degrades to a
// miss (reads) or a silent failure (writes) rather than raising.
package cache

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// compressedMarker prefixes a value's bytes when it has been
// transparently compressed above the configured threshold.
const compressedMarker = byte(0x1f)

// Store is the pluggable backing store. A nil Store makes the cache
// in-process only.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisStore adapts a *redis.Client to the Store interface.
type RedisStore struct {
	Client *redis.Client
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}

// entry is the in-process record backing Engine's metadata: groups,
// dependencies, and expiry, kept independent of the backing Store so
// invalidation bookkeeping works even when Store is nil.
type entry struct {
	namespace string
	key       string
	value     []byte
	expiresAt time.Time
	groups    map[string]struct{}
	deps      map[string]struct{}
}

func (e *entry) expired(now time.Time) bool { return now.After(e.expiresAt) }

// Stats are monotonically non-decreasing within a process lifetime.
type Stats struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Evictions  int64   `json:"evictions"`
	Failures   int64   `json:"write_failures"`
	AvgLatency float64 `json:"avg_latency_ms"`
}

// Engine is the response cache.
type Engine struct {
	logger     zerolog.Logger
	store      Store
	defaultTTL time.Duration
	compressAt int

	mu sync.RWMutex
	// namespace:key -> entry metadata
	entries map[string]*entry
	// group -> set of namespace:key
	byGroup map[string]map[string]struct{}
	// namespace:key -> set of namespace:key that depend on it
	dependents map[string]map[string]struct{}

	hits      int64
	misses    int64
	evictions int64
	failures  int64
	latSum    int64 // nanoseconds
	latCount  int64
}

// NewEngine creates a response cache. store may be nil to run purely
// in-process (still correct, just not durable across restarts).
func NewEngine(logger zerolog.Logger, store Store, defaultTTL time.Duration, compressAt int) *Engine {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if compressAt <= 0 {
		compressAt = 1024
	}
	return &Engine{
		logger:     logger.With().Str("component", "response_cache").Logger(),
		store:      store,
		defaultTTL: defaultTTL,
		compressAt: compressAt,
		entries:    make(map[string]*entry),
		byGroup:    make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
}

func effectiveKey(namespace, key string) string {
	if namespace == "" {
		namespace = "default"
	}
	return namespace + ":" + key
}

// Get fetches the value stored for (namespace, key). Returns
// (nil, false) on miss, including when the backing store is
// unreachable or the entry expired.
func (e *Engine) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	start := time.Now()
	defer e.recordLatency(start)

	ek := effectiveKey(namespace, key)

	e.mu.RLock()
	ent, ok := e.entries[ek]
	e.mu.RUnlock()
	if ok {
		if ent.expired(time.Now()) {
			e.removeKey(ek)
			atomic.AddInt64(&e.misses, 1)
			return nil, false
		}
		atomic.AddInt64(&e.hits, 1)
		return ent.value, true
	}

	// Not held locally (e.g. after a restart) — fall back to the
	// backing store if one is configured. Any failure degrades to a
	// miss; the cache never raises to its caller.
	if e.store == nil {
		atomic.AddInt64(&e.misses, 1)
		return nil, false
	}

	raw, err := e.store.Get(ctx, ek)
	if err != nil || raw == nil {
		atomic.AddInt64(&e.misses, 1)
		return nil, false
	}

	val, err := decode(raw)
	if err != nil {
		atomic.AddInt64(&e.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&e.hits, 1)
	return val, true
}

// SetOptions configures a Set call.
type SetOptions struct {
	TTL          time.Duration
	Groups       []string
	Dependencies []string
}

// Set stores value under (namespace, key). TTL defaults to the
// engine's configured default when zero. Never raises — write
// failures are recorded in Stats and swallowed.
func (e *Engine) Set(ctx context.Context, namespace, key string, value []byte, opts SetOptions) {
	start := time.Now()
	defer e.recordLatency(start)

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = e.defaultTTL
	}
	ek := effectiveKey(namespace, key)

	ent := &entry{
		namespace: namespace,
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
		groups:    toSet(opts.Groups),
		deps:      toSet(opts.Dependencies),
	}

	e.mu.Lock()
	e.entries[ek] = ent
	for g := range ent.groups {
		if e.byGroup[g] == nil {
			e.byGroup[g] = make(map[string]struct{})
		}
		e.byGroup[g][ek] = struct{}{}
	}
	for dep := range ent.deps {
		depKey := effectiveKey(namespace, dep)
		if e.dependents[depKey] == nil {
			e.dependents[depKey] = make(map[string]struct{})
		}
		e.dependents[depKey][ek] = struct{}{}
	}
	e.mu.Unlock()

	if e.store == nil {
		return
	}

	payload := encode(value, e.compressAt)
	if err := e.store.Set(ctx, ek, payload, ttl); err != nil {
		atomic.AddInt64(&e.failures, 1)
		e.logger.Debug().Err(err).Str("key", ek).Msg("cache write failed")
	}
}

// Delete removes a single entry.
func (e *Engine) Delete(ctx context.Context, namespace, key string) {
	e.removeKey(effectiveKey(namespace, key))
	if e.store != nil {
		_ = e.store.Del(ctx, effectiveKey(namespace, key))
	}
}

// InvalidateGroup removes every entry tagged with group, plus every
// entry that depends on one of those removed entries (one level of
// transitive invalidation). Returns the number of entries removed.
// Idempotent: a second call on an already-invalidated group returns 0.
func (e *Engine) InvalidateGroup(ctx context.Context, group string) int {
	e.mu.Lock()
	members := e.byGroup[group]
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	delete(e.byGroup, group)

	// one level of transitive invalidation via dependents
	extra := make(map[string]struct{})
	for _, k := range keys {
		for dep := range e.dependents[k] {
			extra[dep] = struct{}{}
		}
	}
	for k := range extra {
		keys = append(keys, k)
	}
	e.mu.Unlock()

	count := 0
	for _, k := range keys {
		if e.removeKey(k) {
			count++
		}
		if e.store != nil {
			_ = e.store.Del(ctx, k)
		}
	}
	return count
}

// MGet fetches several keys in one call.
func (e *Engine) MGet(ctx context.Context, namespace string, keys []string) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := e.Get(ctx, namespace, k); ok {
			out[k] = v
		}
	}
	return out
}

// MSet stores several key/value pairs with shared options.
func (e *Engine) MSet(ctx context.Context, namespace string, values map[string][]byte, opts SetOptions) {
	for k, v := range values {
		e.Set(ctx, namespace, k, v, opts)
	}
}

// Stats returns current metrics.
func (e *Engine) Stats() Stats {
	latCount := atomic.LoadInt64(&e.latCount)
	var avg float64
	if latCount > 0 {
		avg = float64(atomic.LoadInt64(&e.latSum)) / float64(latCount) / 1e6
	}
	return Stats{
		Hits:       atomic.LoadInt64(&e.hits),
		Misses:     atomic.LoadInt64(&e.misses),
		Evictions:  atomic.LoadInt64(&e.evictions),
		Failures:   atomic.LoadInt64(&e.failures),
		AvgLatency: avg,
	}
}

func (e *Engine) removeKey(ek string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[ek]
	if !ok {
		return false
	}
	delete(e.entries, ek)
	for g := range ent.groups {
		delete(e.byGroup[g], ek)
	}
	delete(e.dependents, ek)
	atomic.AddInt64(&e.evictions, 1)
	return true
}

func (e *Engine) recordLatency(start time.Time) {
	atomic.AddInt64(&e.latSum, int64(time.Since(start)))
	atomic.AddInt64(&e.latCount, 1)
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, i := range items {
		s[i] = struct{}{}
	}
	return s
}

// encode compresses value when it exceeds the threshold, prefixing a
// marker byte so decode can tell compressed payloads from raw ones.
func encode(value []byte, threshold int) []byte {
	if len(value) <= threshold {
		out := make([]byte, len(value)+1)
		out[0] = 0x00
		copy(out[1:], value)
		return out
	}

	var buf bytes.Buffer
	buf.WriteByte(compressedMarker)
	gw := gzip.NewWriter(&buf)
	_, _ = gw.Write(value)
	_ = gw.Close()
	return buf.Bytes()
}

func decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	marker, body := raw[0], raw[1:]
	if marker != compressedMarker {
		return body, nil
	}
	gr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
