package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/universal-rate/internal/domain"
)

// RatingsRepository persists ratings. Rows are never updated or deleted.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

const ratingColumns = `id, rater_id, rated_id, category, score, comment, cast_url, created_at`

// RatingCreateParams bundles the fields of a new rating. IDs must already be canonical FIDs.
type RatingCreateParams struct {
	RaterID  int64
	RatedID  int64
	Category domain.Category
	Score    int
	Comment  *string
	CastURL  *string
}

// StatsFilter selects the ratings aggregated by Stats and listed by Recent.
type StatsFilter struct {
	SubjectID int64
	Role      domain.Role
	Category  *domain.Category
	Since     *time.Time
}

// LeaderboardParams are passed straight to the leaderboard SQL function.
type LeaderboardParams struct {
	Category domain.Category
	Since    *time.Time
	MinCount int
	Limit    int
}

// Create inserts a rating and returns the stored row.
func (r *RatingsRepository) Create(ctx context.Context, params RatingCreateParams) (domain.Rating, error) {
	query := fmt.Sprintf(`
        INSERT INTO ratings (id, rater_id, rated_id, category, score, comment, cast_url)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING %s
    `, ratingColumns)

	row := r.pool.QueryRow(ctx, query,
		uuid.New(),
		params.RaterID,
		params.RatedID,
		string(params.Category),
		params.Score,
		params.Comment,
		params.CastURL,
	)
	rating, err := scanRating(row)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("insert rating: %w", err)
	}
	return rating, nil
}

// GetByID fetches a rating by its identifier.
func (r *RatingsRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE id = $1`, ratingColumns)
	rating, err := scanRating(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// Stats returns the average and count of the matching ratings.
func (r *RatingsRepository) Stats(ctx context.Context, filter StatsFilter) (domain.Stats, error) {
	where, args, err := filter.where()
	if err != nil {
		return domain.Stats{}, err
	}
	query := `
        SELECT ROUND(AVG(score)::numeric, 2)::float8 AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE ` + where

	var stats domain.Stats
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&stats.Average, &stats.Count); err != nil {
		return domain.Stats{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return stats, nil
}

// Recent lists the newest matching ratings first.
func (r *RatingsRepository) Recent(ctx context.Context, filter StatsFilter, limit int) ([]domain.Rating, error) {
	where, args, err := filter.where()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d`, ratingColumns, where, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent ratings: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Rating, 0, limit)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Leaderboard calls the leaderboard function and returns its ranked rows.
func (r *RatingsRepository) Leaderboard(ctx context.Context, params LeaderboardParams) ([]domain.LeaderboardEntry, error) {
	const query = `
        SELECT subject_id, avg_score, ratings_count, latest_at
        FROM leaderboard($1, $2, $3, $4)
    `
	rows, err := r.pool.Query(ctx, query, string(params.Category), params.Since, params.MinCount, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.SubjectID, &e.AverageScore, &e.RatingsCount, &e.LatestAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (f StatsFilter) where() (string, []interface{}, error) {
	var column string
	switch f.Role {
	case domain.RoleRated:
		column = "rated_id"
	case domain.RoleRater:
		column = "rater_id"
	default:
		return "", nil, fmt.Errorf("unknown role %q", f.Role)
	}

	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, fmt.Sprintf("%s = %s", column, arg(f.SubjectID)))
	if f.Category != nil {
		where = append(where, fmt.Sprintf("category = %s", arg(string(*f.Category))))
	}
	if f.Since != nil {
		where = append(where, fmt.Sprintf("created_at >= %s", arg(*f.Since)))
	}
	return strings.Join(where, " AND "), args, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var (
		rating   domain.Rating
		id       uuid.UUID
		category string
		score    int16
	)
	err := row.Scan(
		&id,
		&rating.RaterID,
		&rating.RatedID,
		&category,
		&score,
		&rating.Comment,
		&rating.CastURL,
		&rating.CreatedAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	rating.ID = id.String()
	rating.Category = domain.Category(category)
	rating.Score = int(score)
	return rating, nil
}
