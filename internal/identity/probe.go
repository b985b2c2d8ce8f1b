package identity

import (
	"context"
	"strconv"

	"github.com/Clark-Hu/universal-rate/internal/domain"
)

// ProbeResult is one provider's answer to one lookup, errors kept verbatim.
type ProbeResult struct {
	Provider  string          `json:"provider"`
	Operation string          `json:"operation"`
	Input     string          `json:"input"`
	FID       *int64          `json:"fid,omitempty"`
	Profile   *domain.Profile `json:"profile,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Probe runs every requested lookup against every provider without fallback.
// It backs the debug route.
func Probe(ctx context.Context, providers []Provider, handle, castURL string, fid int64) []ProbeResult {
	var results []ProbeResult
	for _, p := range providers {
		if handle != "" {
			id, err := p.UsernameToID(ctx, handle)
			results = append(results, fidResult(p.Name(), "username", handle, id, err))
		}
		if castURL != "" {
			id, err := p.CastURLToAuthorID(ctx, castURL)
			results = append(results, fidResult(p.Name(), "cast", castURL, id, err))
		}
		if fid > 0 {
			res := ProbeResult{Provider: p.Name(), Operation: "profile", Input: strconv.FormatInt(fid, 10)}
			profile, err := p.ProfileByID(ctx, fid)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Profile = &profile
			}
			results = append(results, res)
		}
	}
	return results
}

func fidResult(provider, operation, input string, fid int64, err error) ProbeResult {
	res := ProbeResult{Provider: provider, Operation: operation, Input: input}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.FID = &fid
	return res
}
