package domain

import "strings"

// ProtocolEthereum is the verification protocol payable addresses are chosen from.
const ProtocolEthereum = "ethereum"

// Verification is an upstream-attested wallet address.
type Verification struct {
	Address  string `json:"address"`
	Protocol string `json:"protocol"`
	Primary  bool   `json:"primary"`
}

// Profile is the normalized identity record shared by every provider.
type Profile struct {
	FID            int64          `json:"fid"`
	Username       string         `json:"username,omitempty"`
	DisplayName    string         `json:"display_name,omitempty"`
	PfpURL         string         `json:"pfp_url,omitempty"`
	CustodyAddress string         `json:"custody_address,omitempty"`
	Verifications  []Verification `json:"verifications,omitempty"`
}

// PayableAddress picks the address to tip: primary ethereum verification,
// then any ethereum verification, then the custody address.
func (p Profile) PayableAddress() (string, bool) {
	var anyEth string
	for _, v := range p.Verifications {
		if !strings.EqualFold(v.Protocol, ProtocolEthereum) || v.Address == "" {
			continue
		}
		if v.Primary {
			return v.Address, true
		}
		if anyEth == "" {
			anyEth = v.Address
		}
	}
	if anyEth != "" {
		return anyEth, true
	}
	if p.CustodyAddress != "" {
		return p.CustodyAddress, true
	}
	return "", false
}
