package ranking

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/record"
)

const (
	leaderboardKey = "leaderboard"

	// DefaultTTL bounds how long a leaderboard is served without an invalidating event.
	DefaultTTL = 10 * time.Minute
)

// Loader returns the current record set the leaderboard is computed from.
type Loader func(ctx context.Context) ([]record.Record, error)

// Engine caches the leaderboard and recomputes it after ranking relevant events.
type Engine struct {
	cache *cache.Cache
	log   logger.Logger

	// computeMu serializes recomputation so concurrent misses load once.
	computeMu  sync.Mutex
	// generation changes on every invalidation; results loaded under an older one are not cached.
	generation atomic.Uint64

	dirtyMu sync.Mutex
	dirty   map[string]struct{}
}

// NewEngine creates an engine. A non-positive ttl selects DefaultTTL.
func NewEngine(ttl time.Duration, log logger.Logger) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.Global().Module("ranking")
	}
	return &Engine{
		// Get checks expiry itself; a single entry needs no janitor goroutine.
		cache: cache.New(ttl, 0),
		log:   log,
		dirty: make(map[string]struct{}),
	}
}

// HandleEvent is an approval.EventHandler.
func (e *Engine) HandleEvent(ev approval.Event) {
	if !ev.AffectsRanking() {
		return
	}
	e.dirtyMu.Lock()
	e.dirty[ev.OwnerID] = struct{}{}
	e.dirtyMu.Unlock()

	e.Invalidate()
	e.log.Debug("leaderboard invalidated",
		logger.String("user_id", ev.OwnerID),
		logger.String("record", ev.Key()),
		logger.String("new_status", string(ev.NewStatus)))
}

// Invalidate drops the cached leaderboard.
func (e *Engine) Invalidate() {
	e.generation.Add(1)
	e.cache.Delete(leaderboardKey)
}

// dirtyUsers lists owners whose points changed since the last cached recomputation.
func (e *Engine) dirtyUsers() []string {
	e.dirtyMu.Lock()
	defer e.dirtyMu.Unlock()
	users := make([]string, 0, len(e.dirty))
	for u := range e.dirty {
		users = append(users, u)
	}
	slices.Sort(users)
	return users
}

func (e *Engine) cached() ([]Entry, bool) {
	v, ok := e.cache.Get(leaderboardKey)
	if !ok {
		return nil, false
	}
	entries, ok := v.([]Entry)
	return entries, ok
}

// Leaderboard returns the cached leaderboard or recomputes it from load.
// The returned slice is a copy.
func (e *Engine) Leaderboard(ctx context.Context, load Loader) ([]Entry, error) {
	if entries, ok := e.cached(); ok {
		return slices.Clone(entries), nil
	}

	e.computeMu.Lock()
	defer e.computeMu.Unlock()
	if entries, ok := e.cached(); ok {
		return slices.Clone(entries), nil
	}

	start := time.Now()
	gen := e.generation.Load()
	records, err := load(ctx)
	if err != nil {
		return nil, err
	}
	entries := ComputeRanking(records)

	// An event during the load leaves the result uncached and its owner dirty.
	changed := e.dirtyUsers()
	stale := e.generation.Load() != gen
	if !stale {
		e.cache.Set(leaderboardKey, entries, cache.DefaultExpiration)
		e.dirtyMu.Lock()
		for _, u := range changed {
			delete(e.dirty, u)
		}
		e.dirtyMu.Unlock()
	}
	e.log.Debug("leaderboard recomputed",
		logger.Int("records", len(records)),
		logger.Int("users", len(entries)),
		logger.Any("changed_users", changed),
		logger.Bool("stale", stale),
		logger.Duration("elapsed", time.Since(start)))
	return slices.Clone(entries), nil
}

// Entry returns the leaderboard row of userID. Users without approved records
// have no row and yield a not-found error.
func (e *Engine) Entry(ctx context.Context, load Loader, userID string) (Entry, error) {
	entries, err := e.Leaderboard(ctx, load)
	if err != nil {
		return Entry{}, err
	}
	if entry, ok := Find(entries, userID); ok {
		return entry, nil
	}
	return Entry{}, record.NewNotFoundError("ranking:" + userID)
}
