package queries

import (
	"context"
	"strings"
	"time"

	"marketdao/contexts/governance/dao-voting/domain/entities"
	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/contexts/governance/dao-voting/ports"
)

// ProposalResults is the read model for a proposal's current tally.
// ProjectedOutcome is empty while voting is still open.
type ProposalResults struct {
	Proposal         entities.Proposal
	Stats            entities.VoteStats
	YesPercentage    float64
	QuorumMet        bool
	CheckPassed      bool
	VotingOpen       bool
	ProjectedOutcome entities.ProposalStatus
}

type ResultsQuery struct {
	Proposals ports.ProposalReader
	Clock     ports.Clock
}

func (q ResultsQuery) GetResults(ctx context.Context, proposalID string) (ProposalResults, error) {
	proposal, err := q.GetProposal(ctx, proposalID)
	if err != nil {
		return ProposalResults{}, err
	}
	now := q.now()
	stats := proposal.Stats()
	results := ProposalResults{
		Proposal:      proposal,
		Stats:         stats,
		YesPercentage: stats.YesPercentageRounded(),
		QuorumMet:     proposal.QuorumMet(),
		CheckPassed:   proposal.CheckPassed(),
		VotingOpen:    proposal.IsVotingOpen(now),
	}
	if outcome, err := proposal.Outcome(now); err == nil {
		results.ProjectedOutcome = outcome
	}
	return results, nil
}

func (q ResultsQuery) GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error) {
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return entities.Proposal{}, domainerrors.ErrInvalidProposalInput
	}
	return q.Proposals.GetProposal(ctx, proposalID)
}

func (q ResultsQuery) now() time.Time {
	if q.Clock == nil {
		return time.Now().UTC()
	}
	return q.Clock.Now().UTC()
}

type PreferencesQuery struct {
	Preferences ports.PreferencesReader
}

func (q PreferencesQuery) GetPreferences(ctx context.Context, userID string) (entities.VotingPreferences, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entities.VotingPreferences{}, domainerrors.ErrInvalidPreferences
	}
	prefs, found, err := q.Preferences.GetPreferences(ctx, userID)
	if err != nil {
		return entities.VotingPreferences{}, err
	}
	if !found {
		return entities.VotingPreferences{}, domainerrors.ErrPreferencesNotFound
	}
	return prefs, nil
}
