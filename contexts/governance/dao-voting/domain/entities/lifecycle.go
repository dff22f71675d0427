package entities

import (
	"strings"
	"time"

	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
)

func (s ProposalStatus) acceptsVotes() bool {
	return s == ProposalStatusActive || s == ProposalStatusVoting
}

// IsTerminal reports statuses that never change again.
func (s ProposalStatus) IsTerminal() bool {
	return s == ProposalStatusRejected || s == ProposalStatusExpired || s == ProposalStatusExecuted
}

// Open moves a draft into voting with the given window.
func (p *Proposal) Open(start time.Time, end time.Time, actor string, now time.Time) error {
	if p.Status != ProposalStatusDraft {
		return domainerrors.ErrInvalidTransition
	}
	if start.IsZero() {
		start = now
	}
	if !end.After(start) {
		return domainerrors.ErrInvalidVotingWindow
	}
	p.VotingPeriod = VotingPeriod{StartDate: start.UTC(), EndDate: end.UTC()}
	p.appendEvent(p.Status, ProposalStatusVoting, actor, "voting opened", now)
	p.Status = ProposalStatusVoting
	p.UpdatedAt = now.UTC()
	return nil
}

// Outcome is the status Finalize would produce at now. It does not mutate.
func (p Proposal) Outcome(now time.Time) (ProposalStatus, error) {
	if !p.Status.acceptsVotes() {
		return "", domainerrors.ErrInvalidTransition
	}
	if now.Before(p.VotingPeriod.EndDate) {
		return "", domainerrors.ErrVotingStillOpen
	}
	stats := p.Stats()
	switch {
	case stats.TotalVotes == 0:
		return ProposalStatusExpired, nil
	case p.CheckPassed():
		return ProposalStatusPassed, nil
	default:
		return ProposalStatusRejected, nil
	}
}

// Finalize closes the voting window and records the outcome.
func (p *Proposal) Finalize(actor string, now time.Time) (ProposalStatus, error) {
	outcome, err := p.Outcome(now)
	if err != nil {
		return "", err
	}
	stats := p.Stats()
	var note strings.Builder
	note.WriteString("voting closed")
	if !p.QuorumMet() {
		note.WriteString("; quorum not met")
	} else if stats.YesPercentage() < p.Threshold {
		note.WriteString("; threshold not reached")
	}
	p.appendEvent(p.Status, outcome, actor, note.String(), now)
	p.Status = outcome
	p.UpdatedAt = now.UTC()
	return outcome, nil
}

// Execute records the implementation of a passed proposal.
func (p *Proposal) Execute(executor string, reference string, now time.Time) error {
	if p.Status != ProposalStatusPassed {
		return domainerrors.ErrInvalidTransition
	}
	if strings.TrimSpace(executor) == "" {
		return domainerrors.ErrInvalidProposalInput
	}
	p.Execution = &Execution{
		ExecutedBy:           strings.TrimSpace(executor),
		ExternalReference:    strings.TrimSpace(reference),
		ExecutedAt:           now.UTC(),
		ImplementationStatus: ImplementationPending,
	}
	p.appendEvent(p.Status, ProposalStatusExecuted, executor, "proposal executed", now)
	p.Status = ProposalStatusExecuted
	p.UpdatedAt = now.UTC()
	return nil
}
