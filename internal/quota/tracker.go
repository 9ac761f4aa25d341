// Package quota tracks per-user, per-day delivery counts.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/maneesh/tagdrop/internal/metrics"
)

// DayLayout is the calendar-date format of counter keys
const DayLayout = "2006-01-02"

// Counter is a durable store of (user, day) counters. IncrementQuota must be
// a single atomic create-or-increment that returns the new value.
type Counter interface {
	GetQuota(ctx context.Context, userID int64, day string) (int, error)
	IncrementQuota(ctx context.Context, userID int64, day string) (int, error)
}

// Tracker resolves "today" in a fixed timezone and delegates to a Counter
type Tracker struct {
	counter Counter
	loc     *time.Location
	now     func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker whose calendar days are computed in loc
func NewTracker(counter Counter, loc *time.Location, opts ...Option) *Tracker {
	t := &Tracker{
		counter: counter,
		loc:     loc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Today returns the current calendar date in the tracker's timezone
func (t *Tracker) Today() string {
	return t.now().In(t.loc).Format(DayLayout)
}

// Peek returns today's count for userID, 0 if nothing was delivered yet
func (t *Tracker) Peek(ctx context.Context, userID int64) (int, error) {
	count, err := t.counter.GetQuota(ctx, userID, t.Today())
	if err != nil {
		return 0, fmt.Errorf("failed to read quota for user %d: %w", userID, err)
	}
	return count, nil
}

// IncrementAndGet charges one delivery to userID for today and returns the
// post-increment count
func (t *Tracker) IncrementAndGet(ctx context.Context, userID int64) (int, error) {
	count, err := t.counter.IncrementQuota(ctx, userID, t.Today())
	if err != nil {
		return 0, fmt.Errorf("failed to increment quota for user %d: %w", userID, err)
	}
	metrics.QuotaIncrements.Inc()
	return count, nil
}
