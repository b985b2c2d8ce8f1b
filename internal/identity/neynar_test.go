package identity

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/universal-rate/internal/domain"
)

func newTestNeynar(t *testing.T, srv *upstreamServer, c *memCache) *Neynar {
	t.Helper()
	n, err := NewNeynar(testOptions(srv.URL+"/v2/farcaster", c))
	require.NoError(t, err)
	return n
}

func TestNewNeynarRequiresKey(t *testing.T) {
	_, err := NewNeynar(Options{BaseURL: "https://api.neynar.com/v2/farcaster"})
	assert.Error(t, err)
}

func TestNeynarUsernameToIDSendsKeyAndCaches(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/farcaster/user/by-username": writeJSON(`{"user":{"fid":3,"username":"dwr"}}`),
	})
	c := newMemCache()
	n := newTestNeynar(t, srv, c)

	fid, err := n.UsernameToID(context.Background(), "  @DWR ")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fid)

	req := srv.last()
	require.NotNil(t, req)
	assert.Equal(t, "dwr", req.URL.Query().Get("username"))
	assert.Equal(t, "test-key", req.URL.Query().Get("api_key"))
	assert.Equal(t, "test-key", req.Header.Get("x-api-key"))
	assert.Equal(t, neynarFIDTTL, c.ttls["neynar:fid:username:dwr"])

	fid, err = n.UsernameToID(context.Background(), "dwr")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fid)
	assert.Equal(t, int64(1), srv.hits.Load(), "second lookup must be served from cache")
}

func TestNeynarEmptyHandleMakesNoCall(t *testing.T) {
	srv := newUpstreamServer(t, nil)
	n := newTestNeynar(t, srv, newMemCache())

	_, err := n.UsernameToID(context.Background(), " @ ")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, srv.hits.Load())
}

func TestNeynarStatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name:    "not found",
			handler: writeStatus(http.StatusNotFound, `{"message":"no user"}`),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name:    "missing fid",
			handler: writeJSON(`{"user":{}}`),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name:    "server error",
			handler: writeStatus(http.StatusInternalServerError, `boom`),
			check: func(t *testing.T, err error) {
				var upErr *UpstreamError
				require.True(t, errors.As(err, &upErr))
				assert.Equal(t, "neynar", upErr.Provider)
				assert.Equal(t, http.StatusInternalServerError, upErr.Status)
				assert.Equal(t, "boom", upErr.Body)
			},
		},
		{
			name:    "invalid json",
			handler: writeJSON(`{not json`),
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrNotFound)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newUpstreamServer(t, map[string]http.HandlerFunc{
				"/v2/farcaster/user/by-username": tc.handler,
			})
			c := newMemCache()
			n := newTestNeynar(t, srv, c)
			_, err := n.UsernameToID(context.Background(), "someone")
			tc.check(t, err)
			assert.Empty(t, c.data, "failures are not cached")
		})
	}
}

func TestNeynarCastURL(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/farcaster/cast": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("type") != "url" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			writeJSON(`{"cast":{"author":{"fid":99}}}`)(w, r)
		},
	})
	c := newMemCache()
	n := newTestNeynar(t, srv, c)

	fid, err := n.CastURLToAuthorID(context.Background(), "https://example.com/cast/0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(99), fid)
	assert.Equal(t, "https://example.com/cast/0xabc", srv.last().URL.Query().Get("identifier"))
	assert.Equal(t, neynarFIDTTL, c.ttls["neynar:fid:casturl:https://example.com/cast/0xabc"])
}

func TestNeynarCastURLPaymentRequired(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/farcaster/cast": writeStatus(http.StatusPaymentRequired, `{"code":"PaymentRequired"}`),
	})
	n := newTestNeynar(t, srv, newMemCache())

	_, err := n.CastURLToAuthorID(context.Background(), "https://example.com/cast/0xabc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNeynarProfileByID(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/farcaster/user/bulk": writeJSON(`{"users":[{
			"fid":5650,"username":"vitalik.eth","display_name":"Vitalik","pfp_url":"https://img/v.png",
			"custody_address":"0xcustody",
			"verified_addresses":{
				"eth_addresses":["0xaaa","0xBBB"],
				"sol_addresses":["So1"],
				"primary":{"eth_address":"0xbbb","sol_address":"So1"}
			}
		}]}`),
	})
	c := newMemCache()
	n := newTestNeynar(t, srv, c)

	profile, err := n.ProfileByID(context.Background(), 5650)
	require.NoError(t, err)
	assert.Equal(t, "5650", srv.last().URL.Query().Get("fids"))
	assert.Equal(t, domain.Profile{
		FID:            5650,
		Username:       "vitalik.eth",
		DisplayName:    "Vitalik",
		PfpURL:         "https://img/v.png",
		CustodyAddress: "0xcustody",
		Verifications: []domain.Verification{
			{Address: "0xaaa", Protocol: "ethereum"},
			{Address: "0xBBB", Protocol: "ethereum", Primary: true},
			{Address: "So1", Protocol: "solana", Primary: true},
		},
	}, profile)
	assert.Equal(t, neynarProfileTTL, c.ttls["neynar:profile:fid:5650"])

	addr, ok := profile.PayableAddress()
	require.True(t, ok)
	assert.Equal(t, "0xBBB", addr)

	_, err = n.ProfileByID(context.Background(), 5650)
	require.NoError(t, err)
	assert.Equal(t, int64(1), srv.hits.Load())
}

func TestNeynarProfileFallsBackToUserEnvelope(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/farcaster/user/bulk": writeJSON(`{"user":{"fid":7,"username":"seven"}}`),
	})
	n := newTestNeynar(t, srv, newMemCache())

	profile, err := n.ProfileByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), profile.FID)
	assert.Equal(t, "seven", profile.Username)
}

func TestNeynarProfileEmptyUsers(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/farcaster/user/bulk": writeJSON(`{"users":[]}`),
	})
	n := newTestNeynar(t, srv, newMemCache())

	_, err := n.ProfileByID(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNeynarCacheFailureFallsThroughToUpstream(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/farcaster/user/by-username": writeJSON(`{"user":{"fid":3}}`),
	})
	c := newMemCache()
	c.fail = true
	n := newTestNeynar(t, srv, c)

	fid, err := n.UsernameToID(context.Background(), "dwr")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fid)
}
