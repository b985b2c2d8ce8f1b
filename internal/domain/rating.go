package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxCommentLength bounds the stored comment, counted in runes.
const MaxCommentLength = 280

// Score bounds.
const (
	MinScore = 1
	MaxScore = 10
)

// Category classifies what aspect of a user is being rated.
type Category string

const (
	CategoryBuilder Category = "Builder"
	CategoryProject Category = "Project"
	CategoryCustom  Category = "Custom"
)

// Categories lists every accepted category in display order.
var Categories = []Category{CategoryBuilder, CategoryProject, CategoryCustom}

// ParseCategory accepts only the exact enum spelling.
func ParseCategory(raw string) (Category, error) {
	for _, c := range Categories {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category %q, allowed: %s", raw, CategoryList())
}

// CategoryList renders the allowed categories for error messages.
func CategoryList() string {
	names := make([]string, 0, len(Categories))
	for _, c := range Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

// Role selects which side of a rating a subject is on.
type Role string

const (
	RoleRated Role = "rated"
	RoleRater Role = "rater"
)

// Window restricts aggregate queries to a recency range.
type Window string

const (
	Window7d  Window = "7d"
	Window30d Window = "30d"
	WindowAll Window = "all"
)

// ParseWindow is case-insensitive. An empty value yields fallback.
func ParseWindow(raw string, fallback Window) (Window, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return fallback, nil
	}
	switch Window(raw) {
	case Window7d, Window30d, WindowAll:
		return Window(raw), nil
	}
	return "", fmt.Errorf("invalid window %q, allowed: 7d, 30d, all", raw)
}

// Since returns the inclusive lower bound on created_at, or nil for all-time.
func (w Window) Since(now time.Time) *time.Time {
	var d time.Duration
	switch w {
	case Window7d:
		d = 7 * 24 * time.Hour
	case Window30d:
		d = 30 * 24 * time.Hour
	default:
		return nil
	}
	since := now.Add(-d).UTC()
	return &since
}

// Rating is a single immutable score given by one FID to another.
type Rating struct {
	ID        string
	RaterID   int64
	RatedID   int64
	Category  Category
	Score     int
	Comment   *string
	CastURL   *string
	CreatedAt time.Time
}

// Stats is a derived aggregate. Average is nil when Count is zero.
type Stats struct {
	Average *float64
	Count   int64
}

// LeaderboardEntry is one ranked row of the leaderboard procedure.
type LeaderboardEntry struct {
	SubjectID    int64
	AverageScore float64
	RatingsCount int64
	LatestAt     time.Time
}

// TruncateComment trims whitespace and cuts to MaxCommentLength runes.
// Blank comments become nil.
func TruncateComment(comment string) *string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil
	}
	runes := []rune(comment)
	if len(runes) > MaxCommentLength {
		comment = string(runes[:MaxCommentLength])
	}
	return &comment
}
