package application

import (
	"github.com/shopspring/decimal"

	"marketdao/contexts/commerce/order-settlement/domain/entities"
)

const bulkQuantityThreshold = 50

// screenOrder runs the checkout fraud rules. A self purchase fails outright;
// high value or bulk orders are flagged for review but may still be paid.
func screenOrder(buyerID string, sellerID string, quantity int, total decimal.Decimal, reviewThreshold decimal.Decimal) entities.FraudCheck {
	check := entities.FraudCheck{Status: entities.FraudPassed, Flags: []string{}}
	if buyerID == sellerID {
		check.Flags = append(check.Flags, "self_purchase")
		check.RiskScore = 1
		check.Status = entities.FraudFailed
		return check
	}
	if reviewThreshold.IsPositive() && total.GreaterThan(reviewThreshold) {
		check.Flags = append(check.Flags, "high_value")
		check.RiskScore += 0.4
	}
	if quantity > bulkQuantityThreshold {
		check.Flags = append(check.Flags, "bulk_quantity")
		check.RiskScore += 0.3
	}
	if check.RiskScore >= 0.4 {
		check.Status = entities.FraudReview
	}
	return check
}
