// Package stats computes windowed rating aggregates on top of the repository.
package stats

import (
	"context"
	"time"

	"github.com/Clark-Hu/universal-rate/internal/domain"
	"github.com/Clark-Hu/universal-rate/internal/repository"
)

// MaxLimit caps list sizes for Recent and Leaderboard.
const MaxLimit = 100

// Store is the subset of the ratings repository the aggregator reads.
type Store interface {
	Stats(ctx context.Context, filter repository.StatsFilter) (domain.Stats, error)
	Recent(ctx context.Context, filter repository.StatsFilter, limit int) ([]domain.Rating, error)
	Leaderboard(ctx context.Context, params repository.LeaderboardParams) ([]domain.LeaderboardEntry, error)
}

// Aggregator answers stats queries. Nothing is cached.
type Aggregator struct {
	store Store
	now   func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func New(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WindowedStats aggregates ratings where subject plays role, optionally
// restricted to one category.
func (a *Aggregator) WindowedStats(ctx context.Context, subject int64, role domain.Role, category *domain.Category, window domain.Window) (domain.Stats, error) {
	return a.store.Stats(ctx, repository.StatsFilter{
		SubjectID: subject,
		Role:      role,
		Category:  category,
		Since:     window.Since(a.now()),
	})
}

// Recent lists the newest ratings for subject in role, across categories.
// limit is clamped to [1, MaxLimit].
func (a *Aggregator) Recent(ctx context.Context, subject int64, role domain.Role, window domain.Window, limit int) ([]domain.Rating, error) {
	return a.store.Recent(ctx, repository.StatsFilter{
		SubjectID: subject,
		Role:      role,
		Since:     window.Since(a.now()),
	}, clamp(limit, 1, MaxLimit))
}

// Leaderboard ranks rated subjects in category. minCount below 1 is treated
// as 1 and limit is clamped to [1, MaxLimit].
func (a *Aggregator) Leaderboard(ctx context.Context, category domain.Category, window domain.Window, minCount, limit int) ([]domain.LeaderboardEntry, error) {
	if minCount < 1 {
		minCount = 1
	}
	return a.store.Leaderboard(ctx, repository.LeaderboardParams{
		Category: category,
		Since:    window.Since(a.now()),
		MinCount: minCount,
		Limit:    clamp(limit, 1, MaxLimit),
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
