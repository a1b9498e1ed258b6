// Package dlog implements a discrete-log table inverting g^m -> m for m in
// [0, ceiling], under a configurable soft memory cap and cache eviction.
//
// Tally message spaces are dominated by repeated small exponents, so
// rather than an O(sqrt(max)) baby-step-giant-step search, the table is
// persistent and incrementally extended: a monotonic cursor that only
// ever steps forward by one more multiplication by g, backed by a bounded
// reverse-lookup cache.
//
// The cache is backed by hashicorp/golang-lru/v2. Because entries are
// inserted in ascending-m order and re-reads of a hit value are the
// exception rather than the rule, an LRU eviction policy closely
// approximates a "retain the highest-m entries" pruning rule: the
// earliest-inserted (lowest-m) entries are evicted first. The one
// exception, m=0 (the identity), is never evicted — it does not go
// through the cache at all; Solve special-cases it.
package dlog

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/amarvote/guardian-engine/config"
	"github.com/amarvote/guardian-engine/group"
	"github.com/amarvote/guardian-engine/internal/log"
)

// ErrExponentTooLarge is returned when the target is not found by the time
// the table's ceiling is reached.
var ErrExponentTooLarge = fmt.Errorf("dlog: exponent exceeds configured ceiling")

// ErrCancelled is returned when the host's cancellation predicate fires
// mid-extension.
var ErrCancelled = fmt.Errorf("dlog: operation cancelled")

// CancelFunc is polled at batch boundaries during extension; returning
// true aborts the in-progress Solve with ErrCancelled.
type CancelFunc func() bool

// Table is an owned, explicit discrete-log table: a host constructs one
// per election and passes it to the decryption API, rather than relying
// on any process-wide singleton.
type Table struct {
	params    group.Params
	ceiling   int
	batchSize int

	g       group.Element // the generator, cached to avoid re-deriving it per step

	mu      sync.Mutex
	cache   *lru.Cache[string, uint64]
	cursorM uint64
	cursor  group.Element // g^cursorM

	cancel CancelFunc
}

// New builds a Table for the given group and configuration, pre-seeded
// with {identity -> 0}. cfg.DlogCeiling and cfg.DlogCacheSize must
// already have passed config.Config.Validate.
func New(p group.Params, cfg config.Config) (*Table, error) {
	if cfg.DlogCeiling <= 0 || cfg.DlogCeiling > config.HardMaxDlogCeiling {
		return nil, fmt.Errorf("dlog: invalid ceiling %d", cfg.DlogCeiling)
	}
	cache, err := lru.New[string, uint64](cfg.DlogCacheSize)
	if err != nil {
		return nil, fmt.Errorf("dlog: failed to create cache: %w", err)
	}
	return &Table{
		params:    p,
		ceiling:   cfg.DlogCeiling,
		batchSize: cfg.DlogBatchSize,
		g:         group.GPow(p, group.OneScalar()),
		cache:     cache,
		cursorM:   0,
		cursor:    group.Identity(),
	}, nil
}

// SetCancelFunc installs a cooperative cancellation predicate, polled at
// batch boundaries.
func (t *Table) SetCancelFunc(fn CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = fn
}

// SetBatchSizeHint lets a host adjust the extension batch size at
// runtime, e.g. in response to observed memory pressure.
func (t *Table) SetBatchSizeHint(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batchSize = n
}

func key(e group.Element) string { return e.Int().String() }

// Solve implements elgamal.DiscreteLogSolver: it returns the cached m, or
// extends the table forward in batches of t.batchSize until h is found or
// the ceiling is reached.
func (t *Table) Solve(p group.Params, h group.Element) (uint64, error) {
	if h.Equal(group.Identity()) {
		return 0, nil
	}
	if m, ok := t.cache.Get(key(h)); ok {
		return m, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check under the lock: another goroutine may have extended past h
	// while we waited.
	if m, ok := t.cache.Get(key(h)); ok {
		return m, nil
	}

	// Entries below the cursor may have been evicted from the bounded
	// cache; recompute that stretch before extending past it.
	if t.cache.Len() < int(t.cursorM) {
		e := group.Identity()
		for m := uint64(1); m <= t.cursorM; m++ {
			e = group.MulP(p, e, t.g)
			if e.Equal(h) {
				t.cache.Add(key(e), m)
				return m, nil
			}
		}
	}

	for {
		if int(t.cursorM) >= t.ceiling {
			return 0, ErrExponentTooLarge
		}
		batchEnd := t.cursorM + uint64(t.batchSize)
		if batchEnd > uint64(t.ceiling) {
			batchEnd = uint64(t.ceiling)
		}
		for t.cursorM < batchEnd {
			t.cursor = group.MulP(p, t.cursor, t.g)
			t.cursorM++
			t.cache.Add(key(t.cursor), t.cursorM)
			if t.cursor.Equal(h) {
				return t.cursorM, nil
			}
		}
		if t.cancel != nil && t.cancel() {
			return 0, ErrCancelled
		}
		if t.cursorM >= uint64(t.ceiling) {
			return 0, ErrExponentTooLarge
		}
		log.Debugw("dlog: extended batch", "cursor_m", t.cursorM, "cache_len", t.cache.Len())
	}
}

// Len returns the current number of cached reverse-lookup entries
// (excluding the identity special case).
func (t *Table) Len() int {
	return t.cache.Len()
}

// MaxComputed returns the highest exponent the table has extended to.
func (t *Table) MaxComputed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursorM
}
