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

const warpcastUserBody = `{"result":{
	"user":{"fid":3,"username":"dwr","displayName":"Dan","pfp":{"url":"https://img/d.png"}},
	"extras":{"custodyAddress":"0xcustody"}
}}`

func TestWarpcastUsernameToID(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/user-by-username": writeJSON(`{"result":{"user":{"fid":3}}}`),
	})
	c := newMemCache()
	w, err := NewWarpcast(testOptions(srv.URL+"/v2", c))
	require.NoError(t, err)

	fid, err := w.UsernameToID(context.Background(), "@dwr")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fid)
	assert.Empty(t, srv.last().Header.Get("x-api-key"), "warpcast requests carry no credentials")
	assert.Equal(t, warpcastFIDTTL, c.ttls["warpcast:fid:username:dwr"])
}

func TestWarpcastCastURLUnsupported(t *testing.T) {
	srv := newUpstreamServer(t, nil)
	w, err := NewWarpcast(testOptions(srv.URL, newMemCache()))
	require.NoError(t, err)

	_, err = w.CastURLToAuthorID(context.Background(), "https://warpcast.com/dwr/0xabc")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Zero(t, srv.hits.Load())
}

func TestWarpcastProfileCombinesVerifications(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/user": writeJSON(warpcastUserBody),
		"/v2/verifications": writeJSON(`{"result":{"verifications":[
			{"address":"0xsecond","protocol":"ethereum","isPrimary":false},
			{"address":"0xprimary","protocol":"ethereum","isPrimary":true},
			{"address":"So1","protocol":"solana","isPrimary":true}
		]}}`),
	})
	c := newMemCache()
	w, err := NewWarpcast(testOptions(srv.URL+"/v2", c))
	require.NoError(t, err)

	profile, err := w.ProfileByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.Profile{
		FID:            3,
		Username:       "dwr",
		DisplayName:    "Dan",
		PfpURL:         "https://img/d.png",
		CustodyAddress: "0xcustody",
		Verifications: []domain.Verification{
			{Address: "0xsecond", Protocol: "ethereum"},
			{Address: "0xprimary", Protocol: "ethereum", Primary: true},
			{Address: "So1", Protocol: "solana", Primary: true},
		},
	}, profile)

	addr, ok := profile.PayableAddress()
	require.True(t, ok)
	assert.Equal(t, "0xprimary", addr)

	assert.Equal(t, warpcastProfileTTL, c.ttls["warpcast:profile:fid:3"])
	assert.Equal(t, warpcastVerificationsTTL, c.ttls["warpcast:verifications:fid:3"])

	_, err = w.ProfileByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), srv.hits.Load(), "cached profile and verifications")
}

func TestWarpcastProfileVerificationsFailure(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/user":          writeJSON(warpcastUserBody),
		"/v2/verifications": writeStatus(http.StatusBadGateway, "bad gateway"),
	})
	w, err := NewWarpcast(testOptions(srv.URL+"/v2", newMemCache()))
	require.NoError(t, err)

	_, err = w.ProfileByID(context.Background(), 3)
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, "warpcast", upErr.Provider)
	assert.Equal(t, http.StatusBadGateway, upErr.Status)
}

func TestWarpcastProfileWithoutVerificationsRecord(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/user": writeJSON(warpcastUserBody),
	})
	w, err := NewWarpcast(testOptions(srv.URL+"/v2", newMemCache()))
	require.NoError(t, err)

	profile, err := w.ProfileByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, profile.Verifications)

	addr, ok := profile.PayableAddress()
	require.True(t, ok)
	assert.Equal(t, "0xcustody", addr)
}

func TestWarpcastUnknownUser(t *testing.T) {
	srv := newUpstreamServer(t, map[string]http.HandlerFunc{
		"/v2/user": writeJSON(`{"result":{}}`),
	})
	w, err := NewWarpcast(testOptions(srv.URL+"/v2", newMemCache()))
	require.NoError(t, err)

	_, err = w.ProfileByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewWarpcastRejectsRelativeURL(t *testing.T) {
	_, err := NewWarpcast(Options{BaseURL: "api.warpcast.com"})
	assert.Error(t, err)
}
