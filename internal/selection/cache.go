// Package selection keeps each user's latest search page in memory so a
// later "pick item N" can be resolved without searching again.
package selection

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/maneesh/tagdrop/internal/common"
	"github.com/maneesh/tagdrop/internal/metrics"
	"github.com/maneesh/tagdrop/internal/models"
)

var (
	// ErrExpired means the user has no live selection entry.
	ErrExpired = fmt.Errorf("%w: selection expired", common.ErrNotFound)
	// ErrIndexOutOfRange means the entry exists but has no item at the index.
	ErrIndexOutOfRange = fmt.Errorf("%w: selection index out of range", common.ErrNotFound)
)

// entry is immutable once stored; Put swaps whole entries
type entry struct {
	results   []models.FileRecord
	createdAt time.Time
}

// Cache maps a user to the result page of their most recent search
type Cache struct {
	lru *expirable.LRU[int64, *entry]
	ttl time.Duration
	now func() time.Time
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the clock used for the expiry check
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a cache whose entries live for ttl after they were
// stored. Size is unbounded: an entry leaves only by expiring or by the
// same user's next Put.
func NewCache(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		lru: expirable.NewLRU[int64, *entry](0, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put replaces the user's entry with results
func (c *Cache) Put(userID int64, results []models.FileRecord) {
	e := &entry{
		results:   append([]models.FileRecord(nil), results...),
		createdAt: c.now(),
	}
	c.lru.Add(userID, e)
}

// Get returns the index-th result of the user's live entry
func (c *Cache) Get(userID int64, index int) (models.FileRecord, error) {
	e, ok := c.lru.Get(userID)
	if !ok || !c.now().Before(e.createdAt.Add(c.ttl)) {
		metrics.SelectionLookups.WithLabelValues("expired").Inc()
		return models.FileRecord{}, ErrExpired
	}

	if index < 0 || index >= len(e.results) {
		metrics.SelectionLookups.WithLabelValues("out_of_range").Inc()
		return models.FileRecord{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(e.results))
	}

	metrics.SelectionLookups.WithLabelValues("hit").Inc()
	return e.results[index], nil
}

// Len returns the number of cached entries, including ones not yet swept
func (c *Cache) Len() int {
	return c.lru.Len()
}
