package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Clark-Hu/universal-rate/internal/domain"
)

const (
	neynarName = "neynar"

	neynarFIDTTL     = 12 * time.Hour
	neynarProfileTTL = 6 * time.Hour
)

// Neynar adapts the Neynar social graph API.
type Neynar struct {
	up *upstream
}

// NewNeynar builds a Neynar adapter. The API key is sent both as a header and
// as the api_key query parameter because deployments have accepted either.
func NewNeynar(opts Options) (*Neynar, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("neynar: api key is required")
	}
	up, err := newUpstream(neynarName, opts)
	if err != nil {
		return nil, err
	}
	key := opts.APIKey
	up.decorate = func(req *http.Request) {
		req.Header.Set("x-api-key", key)
		q := req.URL.Query()
		q.Set("api_key", key)
		req.URL.RawQuery = q.Encode()
	}
	return &Neynar{up: up}, nil
}

func (n *Neynar) Name() string { return neynarName }

func (n *Neynar) UsernameToID(ctx context.Context, handle string) (int64, error) {
	username := normalizeUsername(handle)
	if username == "" {
		return 0, ErrNotFound
	}
	key := "neynar:fid:username:" + username
	var fid int64
	if n.up.cached(ctx, key, &fid) && fid > 0 {
		return fid, nil
	}

	res, err := n.up.getJSON(ctx, "username", "/user/by-username", url.Values{"username": {username}})
	if err != nil {
		return 0, err
	}
	fid = res.Get("user.fid").Int()
	if fid <= 0 {
		return 0, ErrNotFound
	}
	n.up.store(ctx, key, fid, neynarFIDTTL)
	return fid, nil
}

// CastURLToAuthorID looks up the author of a cast. Plans without access to
// the endpoint answer 402, which is reported as ErrNotFound.
func (n *Neynar) CastURLToAuthorID(ctx context.Context, castURL string) (int64, error) {
	castURL = strings.TrimSpace(castURL)
	if castURL == "" {
		return 0, ErrNotFound
	}
	key := "neynar:fid:casturl:" + castURL
	var fid int64
	if n.up.cached(ctx, key, &fid) && fid > 0 {
		return fid, nil
	}

	res, err := n.up.getJSON(ctx, "cast", "/cast", url.Values{"identifier": {castURL}, "type": {"url"}})
	if isStatus(err, http.StatusPaymentRequired) {
		n.up.logger.Info().Msg("cast lookup not available on current plan")
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	fid = res.Get("cast.author.fid").Int()
	if fid <= 0 {
		return 0, ErrNotFound
	}
	n.up.store(ctx, key, fid, neynarFIDTTL)
	return fid, nil
}

func (n *Neynar) ProfileByID(ctx context.Context, fid int64) (domain.Profile, error) {
	if fid <= 0 {
		return domain.Profile{}, ErrNotFound
	}
	key := "neynar:profile:fid:" + strconv.FormatInt(fid, 10)
	var profile domain.Profile
	if n.up.cached(ctx, key, &profile) && profile.FID > 0 {
		return profile, nil
	}

	res, err := n.up.getJSON(ctx, "profile", "/user/bulk", url.Values{"fids": {strconv.FormatInt(fid, 10)}})
	if err != nil {
		return domain.Profile{}, err
	}
	user := res.Get("users.0")
	if !user.Exists() {
		user = res.Get("user")
	}
	if !user.Exists() || user.Get("fid").Int() <= 0 {
		return domain.Profile{}, ErrNotFound
	}
	profile = parseNeynarUser(user)
	n.up.store(ctx, key, profile, neynarProfileTTL)
	return profile, nil
}

func parseNeynarUser(user gjson.Result) domain.Profile {
	profile := domain.Profile{
		FID:            user.Get("fid").Int(),
		Username:       user.Get("username").String(),
		DisplayName:    user.Get("display_name").String(),
		PfpURL:         user.Get("pfp_url").String(),
		CustodyAddress: user.Get("custody_address").String(),
	}

	verified := user.Get("verified_addresses")
	primaryEth := verified.Get("primary.eth_address").String()
	primarySol := verified.Get("primary.sol_address").String()
	for _, addr := range verified.Get("eth_addresses").Array() {
		a := addr.String()
		if a == "" {
			continue
		}
		profile.Verifications = append(profile.Verifications, domain.Verification{
			Address:  a,
			Protocol: domain.ProtocolEthereum,
			Primary:  primaryEth != "" && strings.EqualFold(a, primaryEth),
		})
	}
	for _, addr := range verified.Get("sol_addresses").Array() {
		a := addr.String()
		if a == "" {
			continue
		}
		profile.Verifications = append(profile.Verifications, domain.Verification{
			Address:  a,
			Protocol: "solana",
			Primary:  primarySol != "" && a == primarySol,
		})
	}
	return profile
}

var _ Provider = (*Neynar)(nil)
