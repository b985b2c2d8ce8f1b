package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

type fixtureVerification struct {
	Address  string `json:"address"`
	Protocol string `json:"protocol"`
	Primary  bool   `json:"primary"`
}

type fixtureUser struct {
	FID            int64                 `json:"fid"`
	Username       string                `json:"username"`
	DisplayName    string                `json:"displayName"`
	PfpURL         string                `json:"pfpUrl"`
	CustodyAddress string                `json:"custodyAddress"`
	Verifications  []fixtureVerification `json:"verifications"`
}

// fixtures is the on-disk mock data: users plus a cast URL to author map.
type fixtures struct {
	Users []fixtureUser    `json:"users"`
	Casts map[string]int64 `json:"casts"`

	byFID      map[int64]fixtureUser
	byUsername map[string]fixtureUser
}

func loadFixtures(path string) (*fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return parseFixtures(raw)
}

func parseFixtures(raw []byte) (*fixtures, error) {
	var fx fixtures
	if err := json.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	fx.byFID = make(map[int64]fixtureUser, len(fx.Users))
	fx.byUsername = make(map[string]fixtureUser, len(fx.Users))
	for _, u := range fx.Users {
		if u.FID <= 0 {
			return nil, fmt.Errorf("fixture user %q has no fid", u.Username)
		}
		fx.byFID[u.FID] = u
		if u.Username != "" {
			fx.byUsername[strings.ToLower(u.Username)] = u
		}
	}
	return &fx, nil
}

func (f *fixtures) user(fid int64) (fixtureUser, bool) {
	u, ok := f.byFID[fid]
	return u, ok
}

func (f *fixtures) username(name string) (fixtureUser, bool) {
	u, ok := f.byUsername[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))]
	return u, ok
}

func (f *fixtures) castAuthor(url string) (int64, bool) {
	fid, ok := f.Casts[strings.TrimSpace(url)]
	return fid, ok
}

// neynarUser renders u in the Neynar v2 user shape.
func neynarUser(u fixtureUser) map[string]any {
	eth := []string{}
	sol := []string{}
	primary := map[string]any{}
	for _, v := range u.Verifications {
		switch v.Protocol {
		case "ethereum":
			eth = append(eth, v.Address)
			if v.Primary {
				primary["eth_address"] = v.Address
			}
		case "solana":
			sol = append(sol, v.Address)
			if v.Primary {
				primary["sol_address"] = v.Address
			}
		}
	}
	return map[string]any{
		"fid":             u.FID,
		"username":        u.Username,
		"display_name":    u.DisplayName,
		"pfp_url":         u.PfpURL,
		"custody_address": u.CustodyAddress,
		"verified_addresses": map[string]any{
			"eth_addresses": eth,
			"sol_addresses": sol,
			"primary":       primary,
		},
	}
}

// warpcastUser renders u in the Warpcast /user result shape.
func warpcastUser(u fixtureUser) map[string]any {
	return map[string]any{
		"result": map[string]any{
			"user": map[string]any{
				"fid":         u.FID,
				"username":    u.Username,
				"displayName": u.DisplayName,
				"pfp":         map[string]any{"url": u.PfpURL},
			},
			"extras": map[string]any{"custodyAddress": u.CustodyAddress},
		},
	}
}

func warpcastVerifications(u fixtureUser) map[string]any {
	items := make([]map[string]any, 0, len(u.Verifications))
	for _, v := range u.Verifications {
		items = append(items, map[string]any{
			"fid":       u.FID,
			"address":   v.Address,
			"protocol":  v.Protocol,
			"isPrimary": v.Primary,
		})
	}
	return map[string]any{"result": map[string]any{"verifications": items}}
}
