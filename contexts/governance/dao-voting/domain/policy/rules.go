// Package policy holds the pure decision logic for automated voting.
package policy

import "marketdao/contexts/governance/dao-voting/domain/entities"

// MatchRule returns the first active rule whose filters and condition hold for
// the proposal. Rule order is user-controlled and significant.
func MatchRule(rules []entities.CustomRule, proposal entities.Proposal) (entities.CustomRule, bool) {
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if rule.Category != "" && rule.Category != proposal.Category {
			continue
		}
		if EvaluateCondition(rule, proposal) {
			return rule, true
		}
	}
	return entities.CustomRule{}, false
}

// EvaluateCondition evaluates a single rule condition. Unknown kinds fail closed.
func EvaluateCondition(rule entities.CustomRule, proposal entities.Proposal) bool {
	switch rule.Condition {
	case entities.ConditionAlways:
		return true
	case entities.ConditionIfCostBelow:
		return proposal.Impact.Cost <= rule.Threshold
	case entities.ConditionIfRiskLow:
		return proposal.Impact.Risk == entities.RiskLow
	case entities.ConditionIfTrustedProposer:
		if rule.Proposer == "" {
			return false
		}
		return entities.NormalizeWallet(proposal.Proposer.WalletAddress) == entities.NormalizeWallet(rule.Proposer)
	default:
		return false
	}
}
