// Package protocol holds the $402 wire-level types shared by discovery,
// evaluation and acquisition.
package protocol

import (
	"math"

	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/pricing"
)

// Name and Version identify the protocol this engine speaks.
const (
	Name    = "$402"
	Version = "1.0.0"
)

// RevenueModel splits each sale between the issuer and the serving network.
type RevenueModel struct {
	Model       string  `json:"model,omitempty"`
	IssuerShare float64 `json:"issuerShare"`
}

// NetworkShare is the fraction distributed across active servers.
func (r RevenueModel) NetworkShare() float64 { return 1 - r.IssuerShare }

// Validate checks IssuerShare is a fraction in [0,1].
func (r RevenueModel) Validate() error {
	if math.IsNaN(r.IssuerShare) || r.IssuerShare < 0 || r.IssuerShare > 1 {
		return domain.Errorf(domain.KindInvalidParameter, "protocol.RevenueModel", "issuer share %v outside [0,1]", r.IssuerShare)
	}
	return nil
}

// Terms is the network's authoritative state for an address at the moment
// of a discovery call. It is never cached across calls.
type Terms struct {
	Address         string        `json:"dollarAddress"`
	ProtocolVersion string        `json:"version,omitempty"`
	CurrentPrice    int64         `json:"currentPrice"`
	CurrentSupply   int64         `json:"currentSupply"`
	Pricing         pricing.Model `json:"pricing"`
	Revenue         RevenueModel  `json:"revenue"`
	PaymentAddress  string        `json:"paymentAddress,omitempty"`
	Children        []string      `json:"children"`
	ContentPreview  *string       `json:"contentPreview,omitempty"`
	ContentType     string        `json:"contentType,omitempty"`
	Accepts         []string      `json:"accepts,omitempty"`
}

// Validate rejects terms no component can act on.
func (t Terms) Validate() error {
	if t.Address == "" {
		return domain.Errorf(domain.KindInvalidParameter, "protocol.Terms", "address is required")
	}
	if t.CurrentPrice <= 0 {
		return domain.Errorf(domain.KindInvalidParameter, "protocol.Terms", "current price must be positive, got %d", t.CurrentPrice).WithAddress(t.Address)
	}
	if t.CurrentSupply < 0 {
		return domain.Errorf(domain.KindInvalidSupply, "protocol.Terms", "current supply %d is negative", t.CurrentSupply).WithAddress(t.Address)
	}
	if c := t.Pricing.Capacity; c != nil && t.CurrentSupply > *c {
		return domain.Errorf(domain.KindInvalidSupply, "protocol.Terms", "current supply %d exceeds max supply %d", t.CurrentSupply, *c).WithAddress(t.Address)
	}
	return t.Revenue.Validate()
}

// HasCapacity reports whether the address has a bounded supply.
func (t Terms) HasCapacity() bool { return t.Pricing.Capacity != nil }

// SoldOut reports whether every token of a bounded supply has been issued.
func (t Terms) SoldOut() bool {
	return t.Pricing.Capacity != nil && t.CurrentSupply >= *t.Pricing.Capacity
}

// Remaining is the unsold supply, or -1 when unbounded.
func (t Terms) Remaining() int64 {
	if t.Pricing.Capacity == nil {
		return -1
	}
	return *t.Pricing.Capacity - t.CurrentSupply
}
