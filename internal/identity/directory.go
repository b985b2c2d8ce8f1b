package identity

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/universal-rate/internal/domain"
)

const enrichConcurrency = 8

// Directory reads profiles from providers in preference order.
type Directory struct {
	providers []Provider
	logger    zerolog.Logger
}

func NewDirectory(providers []Provider, logger zerolog.Logger) *Directory {
	return &Directory{
		providers: providers,
		logger:    logger.With().Str("component", "directory").Logger(),
	}
}

// LookupProfile returns the first provider's profile. When every provider
// fails it returns ErrNotFound if any reported a miss, else the last error.
func (d *Directory) LookupProfile(ctx context.Context, fid int64) (domain.Profile, error) {
	var o outcome
	for _, p := range d.providers {
		profile, err := p.ProfileByID(ctx, fid)
		if err == nil {
			return profile, nil
		}
		o.record(err)
	}
	if o.lastErr != nil && !o.missed {
		return domain.Profile{}, o.lastErr
	}
	return domain.Profile{}, ErrNotFound
}

// Enrich is LookupProfile for decoration: failures are logged and yield nil.
func (d *Directory) Enrich(ctx context.Context, fid int64) *domain.Profile {
	profile, err := d.LookupProfile(ctx, fid)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			d.logger.Warn().Err(err).Int64("fid", fid).Msg("profile enrichment failed")
		}
		return nil
	}
	return &profile
}

// EnrichMany enriches fids concurrently. The result is index-aligned with
// fids; one failure leaves only its own slot nil.
func (d *Directory) EnrichMany(ctx context.Context, fids []int64) []*domain.Profile {
	out := make([]*domain.Profile, len(fids))
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i, fid := range fids {
		i, fid := i, fid
		g.Go(func() error {
			out[i] = d.Enrich(ctx, fid)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// PayableAddress returns the tip address for fid, or nil when the profile is
// unknown or has no address. Upstream failures are returned.
func (d *Directory) PayableAddress(ctx context.Context, fid int64) (*string, error) {
	profile, err := d.LookupProfile(ctx, fid)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	addr, ok := profile.PayableAddress()
	if !ok {
		return nil, nil
	}
	return &addr, nil
}
