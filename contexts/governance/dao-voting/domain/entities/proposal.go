package entities

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryUpgrade    Category = "upgrade"
	CategoryGovernance Category = "governance"
	CategoryReward     Category = "reward"
	CategorySecurity   Category = "security"
	CategoryFeature    Category = "feature"
	CategoryEmergency  Category = "emergency"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryUpgrade, CategoryGovernance, CategoryReward, CategorySecurity, CategoryFeature, CategoryEmergency:
		return true
	default:
		return false
	}
}

type ProposalStatus string

const (
	ProposalStatusDraft    ProposalStatus = "draft"
	ProposalStatusActive   ProposalStatus = "active"
	ProposalStatusVoting   ProposalStatus = "voting"
	ProposalStatusPassed   ProposalStatus = "passed"
	ProposalStatusRejected ProposalStatus = "rejected"
	ProposalStatusExpired  ProposalStatus = "expired"
	ProposalStatusExecuted ProposalStatus = "executed"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

type Account struct {
	UserID        string
	WalletAddress string
}

type VotingPeriod struct {
	StartDate time.Time
	EndDate   time.Time
}

type Impact struct {
	Cost          float64
	Risk          RiskLevel
	AffectedUsers int
}

type ImplementationStatus string

const (
	ImplementationPending   ImplementationStatus = "pending"
	ImplementationCompleted ImplementationStatus = "completed"
	ImplementationFailed    ImplementationStatus = "failed"
)

type Execution struct {
	ExecutedBy           string
	ExternalReference    string
	ExecutedAt           time.Time
	ImplementationStatus ImplementationStatus
}

// ProposalEvent is one append-only audit entry on a proposal.
type ProposalEvent struct {
	From  ProposalStatus
	To    ProposalStatus
	Actor string
	Note  string
	At    time.Time
}

type Proposal struct {
	ProposalID       string
	Title            string
	Description      string
	Category         Category
	Status           ProposalStatus
	Proposer         Account
	VotingPeriod     VotingPeriod
	Quorum           float64
	Threshold        float64
	Impact           Impact
	Votes            []Vote
	Execution        *Execution
	Timeline         []ProposalEvent
	// AutoVoteFanoutAt is when auto-vote accounts were last evaluated in
	// the open window. Zero until the first fan-out completes.
	AutoVoteFanoutAt time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Stats folds the current vote list. It is never cached on the proposal.
func (p Proposal) Stats() VoteStats {
	return AggregateVoteStats(p.Votes)
}

func (p Proposal) YesPercentage() float64 {
	return p.Stats().YesPercentage()
}

func (p Proposal) QuorumMet() bool {
	return p.Stats().TotalPower >= p.Quorum
}

// CheckPassed reports whether the current tally would pass. It never mutates
// the proposal, so pollers can call it for dry-run status.
func (p Proposal) CheckPassed() bool {
	stats := p.Stats()
	if stats.TotalPower < p.Quorum {
		return false
	}
	return stats.YesPercentage() >= p.Threshold
}

// VotingNotStarted reports whether an opened proposal is still waiting for
// its scheduled start.
func (p Proposal) VotingNotStarted(now time.Time) bool {
	return p.Status.acceptsVotes() && !p.VotingPeriod.StartDate.IsZero() && now.Before(p.VotingPeriod.StartDate)
}

// AutoVoteFanoutDue reports whether the window is open and auto-vote
// accounts have not been evaluated yet.
func (p Proposal) AutoVoteFanoutDue(now time.Time) bool {
	return p.AutoVoteFanoutAt.IsZero() && p.IsVotingOpen(now)
}

// MarkAutoVoteFanout records a completed fan-out. It returns false when one
// was already recorded.
func (p *Proposal) MarkAutoVoteFanout(now time.Time) bool {
	if !p.AutoVoteFanoutAt.IsZero() {
		return false
	}
	p.AutoVoteFanoutAt = now.UTC()
	p.UpdatedAt = now.UTC()
	return true
}

// IsVotingOpen reports whether votes may be cast at now.
func (p Proposal) IsVotingOpen(now time.Time) bool {
	if !p.Status.acceptsVotes() {
		return false
	}
	if !p.VotingPeriod.StartDate.IsZero() && now.Before(p.VotingPeriod.StartDate) {
		return false
	}
	if !p.VotingPeriod.EndDate.IsZero() && !now.Before(p.VotingPeriod.EndDate) {
		return false
	}
	return true
}

// VoteIndex returns the position of the vote owned by wallet, or -1.
func (p Proposal) VoteIndex(wallet string) int {
	wallet = NormalizeWallet(wallet)
	for i, vote := range p.Votes {
		if NormalizeWallet(vote.OwnerWallet()) == wallet {
			return i
		}
	}
	return -1
}

// UpsertVote replaces the voter's existing vote in place or appends a new one.
// It returns the replaced vote when one existed.
func (p *Proposal) UpsertVote(vote Vote) (Vote, bool) {
	idx := p.VoteIndex(vote.OwnerWallet())
	if idx >= 0 {
		previous := p.Votes[idx]
		p.Votes[idx] = vote
		return previous, true
	}
	p.Votes = append(p.Votes, vote)
	return Vote{}, false
}

// HasDuplicateOwners reports whether two votes share an owner wallet.
func (p Proposal) HasDuplicateOwners() bool {
	seen := make(map[string]struct{}, len(p.Votes))
	for _, vote := range p.Votes {
		owner := NormalizeWallet(vote.OwnerWallet())
		if _, ok := seen[owner]; ok {
			return true
		}
		seen[owner] = struct{}{}
	}
	return false
}

func (p *Proposal) appendEvent(from ProposalStatus, to ProposalStatus, actor string, note string, at time.Time) {
	p.Timeline = append(p.Timeline, ProposalEvent{
		From:  from,
		To:    to,
		Actor: strings.TrimSpace(actor),
		Note:  note,
		At:    at.UTC(),
	})
}

func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
