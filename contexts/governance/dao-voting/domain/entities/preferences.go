package entities

import (
	"sort"
	"time"
)

type AutoVoteMode string

const (
	AutoVoteModeNotifyOnly  AutoVoteMode = "notify_only"
	AutoVoteModeAutoVote    AutoVoteMode = "auto_vote"
	AutoVoteModeCustomRules AutoVoteMode = "custom_rules"
)

func (m AutoVoteMode) Valid() bool {
	return m == AutoVoteModeNotifyOnly || m == AutoVoteModeAutoVote || m == AutoVoteModeCustomRules
}

type RuleCondition string

const (
	ConditionAlways            RuleCondition = "always"
	ConditionIfCostBelow       RuleCondition = "if_cost_below"
	ConditionIfRiskLow         RuleCondition = "if_risk_low"
	ConditionIfTrustedProposer RuleCondition = "if_trusted_proposer"
)

type RuleAction string

const (
	RuleActionYes     RuleAction = "yes"
	RuleActionNo      RuleAction = "no"
	RuleActionAbstain RuleAction = "abstain"
	RuleActionNotify  RuleAction = "notify"
)

func (a RuleAction) Valid() bool {
	return a == RuleActionYes || a == RuleActionNo || a == RuleActionAbstain || a == RuleActionNotify
}

type CustomRule struct {
	Name      string
	Category  Category
	Proposer  string
	Condition RuleCondition
	Threshold float64
	Action    RuleAction
	IsActive  bool
}

type TrustedProposer struct {
	WalletAddress string
	Name          string
	AutoVote      bool
	AddedAt       time.Time
}

type CategoryPreference struct {
	Category      Category
	AutoVote      bool
	DefaultChoice VoteChoice
}

type AutoVoteSettings struct {
	Enabled       bool
	Mode          AutoVoteMode
	DefaultChoice VoteChoice
}

type Delegation struct {
	DelegatedTo  string
	ReceivedFrom []string
	UpdatedAt    time.Time
}

type VotingStats struct {
	TotalVotes   int
	ManualVotes  int
	AutoVotes    int
	YesVotes     int
	NoVotes      int
	AbstainVotes int
	LastVotedAt  time.Time
}

const (
	BadgeFirstVote         = "first_vote"
	BadgeActiveVoter       = "active_voter"
	BadgeGovernanceVeteran = "governance_veteran"
	BadgeAutomationPioneer = "automation_pioneer"
	BadgeDelegate          = "trusted_delegate"
)

type VotingPreferences struct {
	UserID              string
	WalletAddress       string
	AutoVote            AutoVoteSettings
	CustomRules         []CustomRule
	TrustedProposers    []TrustedProposer
	CategoryPreferences []CategoryPreference
	Delegation          Delegation
	Stats               VotingStats
	ReputationScore     float64
	Badges              []string
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewVotingPreferences returns notify-only defaults for an account.
func NewVotingPreferences(userID string, wallet string, now time.Time) VotingPreferences {
	return VotingPreferences{
		UserID:        userID,
		WalletAddress: wallet,
		AutoVote: AutoVoteSettings{
			Enabled:       false,
			Mode:          AutoVoteModeNotifyOnly,
			DefaultChoice: VoteChoiceAbstain,
		},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// RecordVote applies a cast to the running counters. A replacing cast moves
// the choice counter instead of adding a new vote.
func (p *VotingPreferences) RecordVote(vote Vote, replaced *Vote) {
	if replaced != nil {
		p.adjustChoice(replaced.Choice, -1)
		p.adjustChoice(vote.Choice, 1)
	} else {
		p.Stats.TotalVotes++
		if vote.IsAutoVote {
			p.Stats.AutoVotes++
			p.ReputationScore += 0.5
		} else {
			p.Stats.ManualVotes++
			p.ReputationScore += 1
		}
		p.adjustChoice(vote.Choice, 1)
	}
	p.Stats.LastVotedAt = vote.CastAt.UTC()
	p.RecomputeBadges()
}

func (p *VotingPreferences) adjustChoice(choice VoteChoice, delta int) {
	switch choice {
	case VoteChoiceYes:
		p.Stats.YesVotes = max(0, p.Stats.YesVotes+delta)
	case VoteChoiceNo:
		p.Stats.NoVotes = max(0, p.Stats.NoVotes+delta)
	case VoteChoiceAbstain:
		p.Stats.AbstainVotes = max(0, p.Stats.AbstainVotes+delta)
	}
}

// RecomputeBadges derives badges from counters. Calling it twice is a no-op.
func (p *VotingPreferences) RecomputeBadges() {
	badges := make([]string, 0, 5)
	if p.Stats.TotalVotes >= 1 {
		badges = append(badges, BadgeFirstVote)
	}
	if p.Stats.TotalVotes >= 10 {
		badges = append(badges, BadgeActiveVoter)
	}
	if p.Stats.TotalVotes >= 50 {
		badges = append(badges, BadgeGovernanceVeteran)
	}
	if p.Stats.AutoVotes >= 5 {
		badges = append(badges, BadgeAutomationPioneer)
	}
	if len(p.Delegation.ReceivedFrom) >= 3 {
		badges = append(badges, BadgeDelegate)
	}
	sort.Strings(badges)
	p.Badges = badges
}

// HasDelegatedTo reports whether this account delegated its vote to wallet.
func (p VotingPreferences) HasDelegatedTo(wallet string) bool {
	return p.Delegation.DelegatedTo != "" && NormalizeWallet(p.Delegation.DelegatedTo) == NormalizeWallet(wallet)
}

// AddDelegator records that wallet delegates to this account.
func (p *VotingPreferences) AddDelegator(wallet string) {
	for _, existing := range p.Delegation.ReceivedFrom {
		if NormalizeWallet(existing) == NormalizeWallet(wallet) {
			return
		}
	}
	p.Delegation.ReceivedFrom = append(p.Delegation.ReceivedFrom, wallet)
	p.RecomputeBadges()
}

// RemoveDelegator drops wallet from the received delegations.
func (p *VotingPreferences) RemoveDelegator(wallet string) {
	kept := p.Delegation.ReceivedFrom[:0]
	for _, existing := range p.Delegation.ReceivedFrom {
		if NormalizeWallet(existing) != NormalizeWallet(wallet) {
			kept = append(kept, existing)
		}
	}
	p.Delegation.ReceivedFrom = kept
	p.RecomputeBadges()
}
