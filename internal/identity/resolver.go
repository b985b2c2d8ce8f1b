package identity

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Target is a loosely specified user reference. The first usable field wins:
// ID, then CastURL, then Handle.
type Target struct {
	ID      string
	Handle  string
	CastURL string
}

// ResolverOptions wires a Resolver.
type ResolverOptions struct {
	// HandleProviders are tried in order for username lookups.
	HandleProviders []Provider
	// CastProviders are tried in order for cast URLs that need an API lookup.
	CastProviders []Provider
	AllowCastURL  bool
	Logger        zerolog.Logger
}

// Resolver turns a Target into a canonical FID.
type Resolver struct {
	handleProviders []Provider
	castProviders   []Provider
	allowCastURL    bool
	logger          zerolog.Logger
}

func NewResolver(opts ResolverOptions) *Resolver {
	return &Resolver{
		handleProviders: opts.HandleProviders,
		castProviders:   opts.CastProviders,
		allowCastURL:    opts.AllowCastURL,
		logger:          opts.Logger.With().Str("component", "resolver").Logger(),
	}
}

// CastURLEnabled reports whether cast URLs are resolved at all.
func (r *Resolver) CastURLEnabled() bool { return r.allowCastURL }

// Resolve returns the FID for t. It returns ErrUnresolved when nothing
// matched, ErrCastURLDisabled when a cast URL was the only input and cast
// resolution is off, and the last upstream error when every lookup failed
// without any provider reporting a definite miss.
func (r *Resolver) Resolve(ctx context.Context, t Target) (int64, error) {
	if fid, ok := ParseFID(t.ID); ok {
		return fid, nil
	}

	handle := strings.TrimSpace(t.Handle)
	castURL := strings.TrimSpace(t.CastURL)
	var o outcome

	if castURL != "" {
		if !r.allowCastURL {
			if handle == "" {
				return 0, ErrCastURLDisabled
			}
		} else if fid, err := r.resolveCastURL(ctx, castURL, &o); err == nil {
			return fid, nil
		}
	}

	if handle != "" {
		if fid, err := r.resolveHandle(ctx, handle, &o); err == nil {
			return fid, nil
		}
	}

	return 0, o.err()
}

func (r *Resolver) resolveCastURL(ctx context.Context, raw string, o *outcome) (int64, error) {
	ref, ok := parseCastURL(raw)
	if !ok {
		o.miss()
		return 0, ErrNotFound
	}
	if ref.fid > 0 {
		return ref.fid, nil
	}
	if ref.username != "" {
		if fid, err := r.resolveHandle(ctx, ref.username, o); err == nil {
			return fid, nil
		}
	}
	for _, p := range r.castProviders {
		fid, err := p.CastURLToAuthorID(ctx, raw)
		if err == nil {
			return fid, nil
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		o.record(err)
		r.logger.Debug().Err(err).Str("provider", p.Name()).Msg("cast url lookup failed")
	}
	return 0, ErrNotFound
}

func (r *Resolver) resolveHandle(ctx context.Context, handle string, o *outcome) (int64, error) {
	for _, p := range r.handleProviders {
		fid, err := p.UsernameToID(ctx, handle)
		if err == nil {
			return fid, nil
		}
		o.record(err)
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn().Err(err).Str("provider", p.Name()).Msg("handle lookup failed, trying next provider")
		}
	}
	return 0, ErrNotFound
}

// outcome accumulates lookup failures across providers.
type outcome struct {
	lastErr error
	missed  bool
}

func (o *outcome) record(err error) {
	if errors.Is(err, ErrNotFound) {
		o.missed = true
		return
	}
	o.lastErr = err
}

func (o *outcome) miss() { o.missed = true }

func (o *outcome) err() error {
	if o.lastErr != nil && !o.missed {
		return o.lastErr
	}
	return ErrUnresolved
}

// ParseFID accepts a positive decimal FID.
func ParseFID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	fid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || fid <= 0 {
		return 0, false
	}
	return fid, true
}

type castRef struct {
	fid      int64
	username string
}

var clientHosts = map[string]struct{}{
	"warpcast.com":  {},
	"farcaster.xyz": {},
}

// parseCastURL recognises http(s) URLs. For the Farcaster client hosts it
// extracts a profile FID (/~/profiles/{fid}) or a username
// (/{username} or /{username}/{hash}); other URLs yield an empty ref.
func parseCastURL(raw string) (castRef, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return castRef{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if _, ok := clientHosts[host]; !ok {
		return castRef{}, true
	}

	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	switch {
	case len(segs) >= 3 && segs[0] == "~" && segs[1] == "profiles":
		if fid, ok := ParseFID(segs[2]); ok {
			return castRef{fid: fid}, true
		}
	case len(segs) >= 1 && len(segs) <= 2 && segs[0] != "~":
		if name := normalizeUsername(segs[0]); name != "" {
			return castRef{username: name}, true
		}
	}
	return castRef{}, true
}
