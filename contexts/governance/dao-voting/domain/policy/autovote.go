package policy

import (
	"fmt"

	"marketdao/contexts/governance/dao-voting/domain/entities"
)

type DecisionSource string

const (
	SourceNone            DecisionSource = "none"
	SourceNotifyOnly      DecisionSource = "notify_only"
	SourceCustomRule      DecisionSource = "custom_rule"
	SourceTrustedProposer DecisionSource = "trusted_proposer"
	SourceCategory        DecisionSource = "category_preference"
	SourceGlobalDefault   DecisionSource = "global_default"
)

type Decision struct {
	ShouldVote bool
	Choice     entities.VoteChoice
	Reasoning  string
	Source     DecisionSource
}

// DecideAutoVote applies the auto-vote policy. Branches are evaluated from the
// most specific to the most general and the first applicable one wins:
// notify-only, custom rules, trusted proposers, category defaults, global default.
func DecideAutoVote(prefs entities.VotingPreferences, proposal entities.Proposal) Decision {
	if !prefs.AutoVote.Enabled || prefs.AutoVote.Mode == entities.AutoVoteModeNotifyOnly {
		return Decision{
			Reasoning: "auto-vote is set to notify only",
			Source:    SourceNotifyOnly,
		}
	}

	if rule, ok := MatchRule(prefs.CustomRules, proposal); ok {
		if rule.Action == entities.RuleActionNotify {
			return Decision{
				Reasoning: fmt.Sprintf("custom rule %q requests notification only", rule.Name),
				Source:    SourceCustomRule,
			}
		}
		return Decision{
			ShouldVote: true,
			Choice:     entities.VoteChoice(rule.Action),
			Reasoning:  fmt.Sprintf("custom rule %q", rule.Name),
			Source:     SourceCustomRule,
		}
	}

	proposer := entities.NormalizeWallet(proposal.Proposer.WalletAddress)
	for _, trusted := range prefs.TrustedProposers {
		if entities.NormalizeWallet(trusted.WalletAddress) != proposer || !trusted.AutoVote {
			continue
		}
		name := trusted.Name
		if name == "" {
			name = trusted.WalletAddress
		}
		return Decision{
			ShouldVote: true,
			Choice:     entities.VoteChoiceYes,
			Reasoning:  fmt.Sprintf("trusted proposer %s", name),
			Source:     SourceTrustedProposer,
		}
	}

	for _, pref := range prefs.CategoryPreferences {
		if pref.Category != proposal.Category || !pref.AutoVote {
			continue
		}
		return Decision{
			ShouldVote: true,
			Choice:     defaultChoice(pref.DefaultChoice),
			Reasoning:  fmt.Sprintf("category preference for %s", proposal.Category),
			Source:     SourceCategory,
		}
	}

	if prefs.AutoVote.Mode == entities.AutoVoteModeAutoVote {
		return Decision{
			ShouldVote: true,
			Choice:     defaultChoice(prefs.AutoVote.DefaultChoice),
			Reasoning:  "global auto-vote default",
			Source:     SourceGlobalDefault,
		}
	}

	return Decision{
		Reasoning: "no auto-vote policy applies",
		Source:    SourceNone,
	}
}

func defaultChoice(choice entities.VoteChoice) entities.VoteChoice {
	if choice.Valid() {
		return choice
	}
	return entities.VoteChoiceAbstain
}
