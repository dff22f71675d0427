package entities

import (
	"strings"

	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/domain/commission"
	domainerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
)

// Product is the catalog snapshot settlement reads and adjusts. The catalog
// itself is owned elsewhere.
type Product struct {
	ProductID string
	SellerID  string
	Name      string
	Price     decimal.Decimal
	Currency  string
	Stock     int
	InStock   bool
	Version   int64
}

// Reserve takes quantity units out of stock. Stock never goes below zero.
func (p *Product) Reserve(quantity int) error {
	if quantity <= 0 {
		return domainerrors.ErrInvalidOrderInput
	}
	if p.Stock < quantity {
		return domainerrors.ErrInsufficientStock
	}
	p.Stock -= quantity
	p.InStock = p.Stock > 0
	return nil
}

func (p *Product) Restore(quantity int) {
	if quantity <= 0 {
		return
	}
	p.Stock += quantity
	p.InStock = p.Stock > 0
}

type Seller struct {
	SellerID      string
	Name          string
	Tier          commission.Tier
	WalletAddress string
	Active        bool
}

func NormalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "USD"
	}
	return currency
}
