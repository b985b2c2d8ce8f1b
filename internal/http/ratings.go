package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Clark-Hu/universal-rate/internal/domain"
	"github.com/Clark-Hu/universal-rate/internal/identity"
	"github.com/Clark-Hu/universal-rate/internal/metrics"
	"github.com/Clark-Hu/universal-rate/internal/repository"
	"github.com/Clark-Hu/universal-rate/internal/validation"
)

type rateRequest struct {
	RatedFID flexibleID `json:"ratedFid"`
	Handle   string     `json:"handle"`
	CastURL  string     `json:"castUrl" validate:"omitempty,max=2048"`
	Category string     `json:"category" validate:"required,category"`
	Score    *float64   `json:"score" validate:"required,gte=1,lte=10"`
	Comment  *string    `json:"comment"`
	RaterFID flexibleID `json:"raterFid"`
}

type ratingResponse struct {
	ID        string    `json:"id"`
	RaterFID  int64     `json:"rater_fid"`
	RatedFID  int64     `json:"rated_fid"`
	Category  string    `json:"category"`
	Score     int       `json:"score"`
	Comment   *string   `json:"comment"`
	CastURL   *string   `json:"cast_url"`
	CreatedAt time.Time `json:"created_at"`
}

type statsResponse struct {
	Average *float64 `json:"average"`
	Count   int64    `json:"count"`
	Window  string   `json:"window,omitempty"`
}

type rateResponse struct {
	Rating     ratingResponse `json:"rating"`
	Stats      *statsResponse `json:"stats,omitempty"`
	StatsError string         `json:"statsError,omitempty"`
	RatedEth   *string        `json:"ratedEth"`
}

type ratingStatsResponse struct {
	Average  *float64 `json:"average"`
	Count    int64    `json:"count"`
	Window   string   `json:"window"`
	RatedFID int64    `json:"ratedFid"`
	Category string   `json:"category"`
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	raterFID, ok := s.raterFID(r, req)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing rater fid. Include the '"+s.cfg.RaterHeader+"' header.")
		return
	}

	if err := validation.Struct(req); err != nil {
		s.respondValidation(w, err)
		return
	}
	if *req.Score != math.Trunc(*req.Score) {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "score must be an integer between 1 and 10")
		return
	}
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	ratedFID, err := s.resolver.Resolve(r.Context(), identity.Target{
		ID:      string(req.RatedFID),
		Handle:  req.Handle,
		CastURL: req.CastURL,
	})
	if err != nil {
		s.respondIdentityError(w, err)
		return
	}

	var castURL *string
	if trimmed := strings.TrimSpace(req.CastURL); trimmed != "" {
		castURL = &trimmed
	}
	var comment *string
	if req.Comment != nil {
		comment = domain.TruncateComment(*req.Comment)
	}

	rating, err := s.repo.Ratings.Create(r.Context(), repository.RatingCreateParams{
		RaterID:  raterFID,
		RatedID:  ratedFID,
		Category: category,
		Score:    int(*req.Score),
		Comment:  comment,
		CastURL:  castURL,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("rated_fid", ratedFID).Msg("insert rating failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	metrics.RatingsCreated.WithLabelValues(string(category)).Inc()

	resp := rateResponse{Rating: toRatingResponse(rating)}

	agg, err := s.stats.WindowedStats(r.Context(), ratedFID, domain.RoleRated, &category, domain.Window7d)
	if err != nil {
		s.logger.Warn().Err(err).Str("rating_id", rating.ID).Msg("post-insert stats failed")
		resp.StatsError = err.Error()
	} else {
		resp.Stats = &statsResponse{Average: agg.Average, Count: agg.Count, Window: string(domain.Window7d)}
	}

	if s.directory != nil {
		addr, err := s.directory.PayableAddress(r.Context(), ratedFID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("fid", ratedFID).Msg("payable address lookup failed")
		}
		resp.RatedEth = addr
	}

	s.respondJSON(w, http.StatusCreated, resp)
}

// raterFID reads the trusted rater header. The body raterFid is only
// honoured when explicitly enabled, and every use is logged.
func (s *Server) raterFID(r *http.Request, req rateRequest) (int64, bool) {
	if raw := strings.TrimSpace(r.Header.Get(s.cfg.RaterHeader)); raw != "" {
		return identity.ParseFID(raw)
	}
	if !s.cfg.AllowBodyRaterFallback || req.RaterFID == "" {
		return 0, false
	}
	fid, ok := identity.ParseFID(string(req.RaterFID))
	if ok {
		s.logger.Warn().Int64("rater_fid", fid).Str("remote", r.RemoteAddr).Msg("rater taken from untrusted request body")
	}
	return fid, ok
}

func (s *Server) handleGetRatingStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ratedFID, ok := identity.ParseFID(query.Get("ratedFid"))
	if !ok {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "ratedFid is required and must be a positive integer")
		return
	}
	rawCategory := query.Get("category")
	if rawCategory == "" {
		rawCategory = string(domain.CategoryBuilder)
	}
	category, err := domain.ParseCategory(rawCategory)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	window, err := domain.ParseWindow(query.Get("window"), domain.Window7d)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	agg, err := s.stats.WindowedStats(r.Context(), ratedFID, domain.RoleRated, &category, window)
	if err != nil {
		s.logger.Error().Err(err).Msg("rating stats failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, ratingStatsResponse{
		Average:  agg.Average,
		Count:    agg.Count,
		Window:   string(window),
		RatedFID: ratedFID,
		Category: string(category),
	})
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid rating id")
		return
	}

	rating, err := s.repo.Ratings.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Rating not found")
			return
		}
		s.logger.Error().Err(err).Str("rating_id", id.String()).Msg("fetch rating failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

func toRatingResponse(rating domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        rating.ID,
		RaterFID:  rating.RaterID,
		RatedFID:  rating.RatedID,
		Category:  string(rating.Category),
		Score:     rating.Score,
		Comment:   rating.Comment,
		CastURL:   rating.CastURL,
		CreatedAt: rating.CreatedAt,
	}
}
