package identity

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/Clark-Hu/universal-rate/internal/domain"
)

const (
	warpcastName = "warpcast"

	warpcastFIDTTL           = 12 * time.Hour
	warpcastProfileTTL       = 6 * time.Hour
	warpcastVerificationsTTL = 2 * time.Hour
)

// Warpcast adapts the public Warpcast client API. It needs no credentials and
// cannot look up casts.
type Warpcast struct {
	up *upstream
}

func NewWarpcast(opts Options) (*Warpcast, error) {
	up, err := newUpstream(warpcastName, opts)
	if err != nil {
		return nil, err
	}
	return &Warpcast{up: up}, nil
}

func (w *Warpcast) Name() string { return warpcastName }

func (w *Warpcast) UsernameToID(ctx context.Context, handle string) (int64, error) {
	username := normalizeUsername(handle)
	if username == "" {
		return 0, ErrNotFound
	}
	key := "warpcast:fid:username:" + username
	var fid int64
	if w.up.cached(ctx, key, &fid) && fid > 0 {
		return fid, nil
	}

	res, err := w.up.getJSON(ctx, "username", "/user-by-username", url.Values{"username": {username}})
	if err != nil {
		return 0, err
	}
	fid = res.Get("result.user.fid").Int()
	if fid <= 0 {
		return 0, ErrNotFound
	}
	w.up.store(ctx, key, fid, warpcastFIDTTL)
	return fid, nil
}

func (w *Warpcast) CastURLToAuthorID(context.Context, string) (int64, error) {
	return 0, ErrUnsupported
}

// ProfileByID combines the user record and its verifications. Both lookups
// must succeed; a missing verifications record counts as none.
func (w *Warpcast) ProfileByID(ctx context.Context, fid int64) (domain.Profile, error) {
	if fid <= 0 {
		return domain.Profile{}, ErrNotFound
	}
	profile, err := w.user(ctx, fid)
	if err != nil {
		return domain.Profile{}, err
	}
	verifications, err := w.verifications(ctx, fid)
	if err != nil {
		return domain.Profile{}, err
	}
	profile.Verifications = verifications
	return profile, nil
}

func (w *Warpcast) user(ctx context.Context, fid int64) (domain.Profile, error) {
	id := strconv.FormatInt(fid, 10)
	key := "warpcast:profile:fid:" + id
	var profile domain.Profile
	if w.up.cached(ctx, key, &profile) && profile.FID > 0 {
		return profile, nil
	}

	res, err := w.up.getJSON(ctx, "profile", "/user", url.Values{"fid": {id}})
	if err != nil {
		return domain.Profile{}, err
	}
	user := res.Get("result.user")
	if !user.Exists() || user.Get("fid").Int() <= 0 {
		return domain.Profile{}, ErrNotFound
	}
	profile = domain.Profile{
		FID:            user.Get("fid").Int(),
		Username:       user.Get("username").String(),
		DisplayName:    user.Get("displayName").String(),
		PfpURL:         user.Get("pfp.url").String(),
		CustodyAddress: res.Get("result.extras.custodyAddress").String(),
	}
	w.up.store(ctx, key, profile, warpcastProfileTTL)
	return profile, nil
}

func (w *Warpcast) verifications(ctx context.Context, fid int64) ([]domain.Verification, error) {
	id := strconv.FormatInt(fid, 10)
	key := "warpcast:verifications:fid:" + id
	var out []domain.Verification
	if w.up.cached(ctx, key, &out) {
		return out, nil
	}

	res, err := w.up.getJSON(ctx, "verifications", "/verifications", url.Values{"fid": {id}})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out = []domain.Verification{}
	for _, v := range res.Get("result.verifications").Array() {
		addr := v.Get("address").String()
		if addr == "" {
			continue
		}
		out = append(out, domain.Verification{
			Address:  addr,
			Protocol: v.Get("protocol").String(),
			Primary:  v.Get("isPrimary").Bool(),
		})
	}
	w.up.store(ctx, key, out, warpcastVerificationsTTL)
	return out, nil
}

var _ Provider = (*Warpcast)(nil)
