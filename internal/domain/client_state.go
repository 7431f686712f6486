package domain

import "github.com/shopspring/decimal"

// ClientState is the final, read-only balance of a client.
// Total is always derived, never stored.
type ClientState struct {
	Client    ClientID        `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Locked    bool            `json:"locked"`
}

// Total returns available + held.
func (s ClientState) Total() decimal.Decimal {
	return s.Available.Add(s.Held)
}
