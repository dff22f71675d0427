// Package commission splits an order total between seller, platform and
// franchise according to the seller's tier.
package commission

import (
	"strings"

	"github.com/shopspring/decimal"

	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
)

type Tier string

const (
	TierBasic  Tier = "basic"
	TierNormal Tier = "normal"
	TierHigh   Tier = "high"
	TierVIP    Tier = "vip"
)

// MinorUnitPlaces is the number of decimal places every component is rounded to.
const MinorUnitPlaces = 2

// Rates are fractions of the order total. Each row sums to exactly one.
type Rates struct {
	Seller    decimal.Decimal `json:"seller"`
	Platform  decimal.Decimal `json:"platform"`
	Franchise decimal.Decimal `json:"franchise"`
}

var rateTable = map[Tier]Rates{
	TierBasic:  newRates("0.85", "0.10", "0.05"),
	TierNormal: newRates("0.80", "0.12", "0.08"),
	TierHigh:   newRates("0.75", "0.15", "0.10"),
	TierVIP:    newRates("0.70", "0.18", "0.12"),
}

func newRates(seller, platform, franchise string) Rates {
	return Rates{
		Seller:    decimal.RequireFromString(seller),
		Platform:  decimal.RequireFromString(platform),
		Franchise: decimal.RequireFromString(franchise),
	}
}

// ParseTier normalizes case and whitespace. Unknown values map to normal.
func ParseTier(raw string) Tier {
	tier := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := rateTable[tier]; ok {
		return tier
	}
	return TierNormal
}

// RatesFor returns the rate row for tier, falling back to normal.
func RatesFor(tier Tier) Rates {
	return rateTable[ParseTier(string(tier))]
}

type Breakdown struct {
	Tier                Tier            `json:"tier"`
	SellerAmount        decimal.Decimal `json:"seller_amount"`
	PlatformFee         decimal.Decimal `json:"platform_fee"`
	FranchiseCommission decimal.Decimal `json:"franchise_commission"`
	Percentages         Rates           `json:"percentages"`
}

func (b Breakdown) Sum() decimal.Decimal {
	return b.SellerAmount.Add(b.PlatformFee).Add(b.FranchiseCommission)
}

// Verify fails when the components do not add up to total.
func (b Breakdown) Verify(total decimal.Decimal) error {
	if !b.Sum().Equal(total) {
		return domainerrors.ErrCommissionMismatch
	}
	return nil
}

// Calculate rounds platform and franchise half away from zero to the minor
// unit and assigns the remainder to the seller, so the parts always sum to
// the total rounded to the same unit.
func Calculate(total decimal.Decimal, tier Tier) (Breakdown, error) {
	if total.IsNegative() {
		return Breakdown{}, domainerrors.ErrInvalidAmount
	}
	tier = ParseTier(string(tier))
	rates := rateTable[tier]
	total = total.Round(MinorUnitPlaces)

	platform := total.Mul(rates.Platform).Round(MinorUnitPlaces)
	franchise := total.Mul(rates.Franchise).Round(MinorUnitPlaces)
	seller := total.Mul(rates.Seller).Round(MinorUnitPlaces)
	residual := total.Sub(seller.Add(platform).Add(franchise))
	seller = seller.Add(residual)

	breakdown := Breakdown{
		Tier:                tier,
		SellerAmount:        seller,
		PlatformFee:         platform,
		FranchiseCommission: franchise,
		Percentages:         rates,
	}
	if err := breakdown.Verify(total); err != nil {
		return Breakdown{}, err
	}
	return breakdown, nil
}
