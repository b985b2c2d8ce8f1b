package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/universal-rate/internal/domain"
	"github.com/Clark-Hu/universal-rate/internal/identity"
	"github.com/Clark-Hu/universal-rate/internal/stats"
	"github.com/Clark-Hu/universal-rate/internal/validation"
)

const (
	profileRecentLimit      = 5
	defaultLeaderboardMin   = 10
	defaultLeaderboardLimit = 50
)

type profileResponse struct {
	FID      int64            `json:"fid"`
	Window   string           `json:"window"`
	Received statsResponse    `json:"received"`
	Given    statsResponse    `json:"given"`
	Recent   []ratingResponse `json:"recent"`
}

type leaderboardQuery struct {
	Category string `query:"category" validate:"category"`
	Window   string `query:"window" validate:"window"`
	MinCount int    `query:"minCount" validate:"gte=1"`
	Limit    int    `query:"limit" validate:"gte=1"`
}

type leaderboardItem struct {
	RatedFID     int64           `json:"rated_fid"`
	AvgScore     float64         `json:"avg_score"`
	RatingsCount int64           `json:"ratings_count"`
	LatestAt     time.Time       `json:"latest_at"`
	Profile      *domain.Profile `json:"profile,omitempty"`
}

type leaderboardResponse struct {
	Category string            `json:"category"`
	Window   string            `json:"window"`
	MinCount int               `json:"minCount"`
	Limit    int               `json:"limit"`
	Items    []leaderboardItem `json:"items"`
}

type addressResponse struct {
	Eth *string `json:"eth"`
}

type debugIdentityResponse struct {
	Resolved *int64                 `json:"resolved"`
	Error    string                 `json:"error,omitempty"`
	Probes   []identity.ProbeResult `json:"probes"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	fid, err := fidParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	window, err := domain.ParseWindow(r.URL.Query().Get("window"), domain.Window30d)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	ctx := r.Context()
	received, err := s.stats.WindowedStats(ctx, fid, domain.RoleRated, nil, window)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Received aggregate failed: "+err.Error())
		return
	}
	given, err := s.stats.WindowedStats(ctx, fid, domain.RoleRater, nil, window)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Given aggregate failed: "+err.Error())
		return
	}
	recent, err := s.stats.Recent(ctx, fid, domain.RoleRated, window, profileRecentLimit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Recent ratings failed: "+err.Error())
		return
	}

	items := make([]ratingResponse, 0, len(recent))
	for _, rating := range recent {
		items = append(items, toRatingResponse(rating))
	}
	s.respondJSON(w, http.StatusOK, profileResponse{
		FID:      fid,
		Window:   string(window),
		Received: statsResponse{Average: received.Average, Count: received.Count},
		Given:    statsResponse{Average: given.Average, Count: given.Count},
		Recent:   items,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := leaderboardQuery{
		Category: firstNonEmpty(query.Get("category"), string(domain.CategoryBuilder)),
		Window:   firstNonEmpty(query.Get("window"), string(domain.Window7d)),
		MinCount: defaultLeaderboardMin,
		Limit:    defaultLeaderboardLimit,
	}
	var err error
	if q.MinCount, err = intParam(query.Get("minCount"), q.MinCount); err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "minCount must be an integer")
		return
	}
	if q.Limit, err = intParam(query.Get("limit"), q.Limit); err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer")
		return
	}
	if err := validation.Struct(q); err != nil {
		s.respondValidation(w, err)
		return
	}
	if q.Limit > stats.MaxLimit {
		q.Limit = stats.MaxLimit
	}
	category, _ := domain.ParseCategory(q.Category)
	window, _ := domain.ParseWindow(q.Window, domain.Window7d)

	entries, err := s.stats.Leaderboard(r.Context(), category, window, q.MinCount, q.Limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("leaderboard failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	items := make([]leaderboardItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, leaderboardItem{
			RatedFID:     e.SubjectID,
			AvgScore:     e.AverageScore,
			RatingsCount: e.RatingsCount,
			LatestAt:     e.LatestAt,
		})
	}
	if wantsResolve(query.Get("resolve")) && s.directory != nil && len(items) > 0 {
		fids := make([]int64, len(items))
		for i, it := range items {
			fids[i] = it.RatedFID
		}
		for i, profile := range s.directory.EnrichMany(r.Context(), fids) {
			items[i].Profile = profile
		}
	}

	s.respondJSON(w, http.StatusOK, leaderboardResponse{
		Category: string(category),
		Window:   string(window),
		MinCount: q.MinCount,
		Limit:    q.Limit,
		Items:    items,
	})
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	fid, err := fidParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	addr, err := s.directory.PayableAddress(r.Context(), fid)
	if err != nil {
		s.logger.Warn().Err(err).Int64("fid", fid).Msg("address lookup failed")
		s.respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, addressResponse{Eth: addr})
}

// handleDebugIdentity reports what each provider answers for the given
// inputs, plus what the resolver would pick. Errors are returned verbatim.
func (s *Server) handleDebugIdentity(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	handle := strings.TrimSpace(query.Get("handle"))
	castURL := strings.TrimSpace(query.Get("castUrl"))
	fid, _ := identity.ParseFID(query.Get("fid"))
	if handle == "" && castURL == "" && fid == 0 {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "provide at least one of handle, castUrl or fid")
		return
	}

	resp := debugIdentityResponse{
		Probes: identity.Probe(r.Context(), s.providers, handle, castURL, fid),
	}
	target := identity.Target{Handle: handle, CastURL: castURL}
	if fid > 0 {
		target.ID = strconv.FormatInt(fid, 10)
	}
	if resolved, err := s.resolver.Resolve(r.Context(), target); err != nil {
		resp.Error = err.Error()
	} else {
		resp.Resolved = &resolved
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func wantsResolve(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
