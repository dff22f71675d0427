package commission

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
)

func dec(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return d
}

func TestCalculateVIPScenario(t *testing.T) {
	got, err := Calculate(dec(t, "1000"), TierVIP)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	want := map[string]string{"seller": "700", "platform": "180", "franchise": "120"}
	have := map[string]string{
		"seller":    got.SellerAmount.String(),
		"platform":  got.PlatformFee.String(),
		"franchise": got.FranchiseCommission.String(),
	}
	if diff := cmp.Diff(want, have); diff != "" {
		t.Fatalf("vip breakdown mismatch (-want +got):\n%s", diff)
	}
}

func TestCalculateComponentsSumToTotal(t *testing.T) {
	totals := []string{"0", "0.01", "0.03", "1", "9.99", "33.33", "100.005", "1234.56", "99999.99"}
	for _, tier := range []Tier{TierBasic, TierNormal, TierHigh, TierVIP, "platinum"} {
		for _, raw := range totals {
			total := dec(t, raw)
			got, err := Calculate(total, tier)
			if err != nil {
				t.Fatalf("calculate %s/%s: %v", tier, raw, err)
			}
			if !got.Sum().Equal(total.Round(MinorUnitPlaces)) {
				t.Fatalf("%s/%s: components sum to %s", tier, raw, got.Sum())
			}
			for _, part := range []decimal.Decimal{got.SellerAmount, got.PlatformFee, got.FranchiseCommission} {
				if part.IsNegative() || part.Exponent() < -MinorUnitPlaces {
					t.Fatalf("%s/%s: component %s not a non-negative minor-unit amount", tier, raw, part)
				}
			}
		}
	}
}

func TestCalculateRoundsHalfAwayFromZero(t *testing.T) {
	// 0.05 * 0.12 = 0.006 and 0.05 * 0.08 = 0.004.
	got, err := Calculate(dec(t, "0.05"), TierNormal)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.PlatformFee.String() != "0.01" || got.FranchiseCommission.String() != "0" || got.SellerAmount.String() != "0.04" {
		t.Fatalf("unexpected rounding: %+v", got)
	}
}

func TestCalculateRejectsNegativeTotal(t *testing.T) {
	if _, err := Calculate(dec(t, "-1"), TierBasic); !errors.Is(err, domainerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{
		" VIP ":   TierVIP,
		"High":    TierHigh,
		"basic":   TierBasic,
		"":        TierNormal,
		"diamond": TierNormal,
	}
	for raw, want := range cases {
		if got := ParseTier(raw); got != want {
			t.Fatalf("ParseTier(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestRateRowsSumToOne(t *testing.T) {
	one := decimal.NewFromInt(1)
	for tier, rates := range rateTable {
		if !rates.Seller.Add(rates.Platform).Add(rates.Franchise).Equal(one) {
			t.Fatalf("tier %s rates do not sum to one", tier)
		}
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	b := Breakdown{SellerAmount: dec(t, "10"), PlatformFee: dec(t, "1"), FranchiseCommission: dec(t, "1")}
	if err := b.Verify(dec(t, "13")); !errors.Is(err, domainerrors.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}
