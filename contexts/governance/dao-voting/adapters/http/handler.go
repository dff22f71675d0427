package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"marketdao/contexts/governance/dao-voting/application/commands"
	"marketdao/contexts/governance/dao-voting/application/queries"
	"marketdao/contexts/governance/dao-voting/domain/entities"
	httptransport "marketdao/contexts/governance/dao-voting/transport/http"
)

type Handler struct {
	Votes       commands.VoteUseCase
	Proposals   commands.ProposalUseCase
	Preferences commands.PreferencesUseCase
	Results     queries.ResultsQuery
	Settings    queries.PreferencesQuery
	Logger      *slog.Logger
}

func (h Handler) CastVoteHandler(ctx context.Context, req httptransport.CastVoteRequest) (httptransport.CastVoteResponse, error) {
	result, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		ProposalID:    req.ProposalID,
		UserID:        req.UserID,
		WalletAddress: req.WalletAddress,
		Choice:        entities.VoteChoice(req.Choice),
		Reasoning:     req.Reasoning,
		DelegatedFrom: req.DelegatedFrom,
	})
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	resp := httptransport.CastVoteResponse{
		Vote:     mapVote(result.Vote),
		Replaced: result.Replaced,
		Stats:    mapStats(result.Stats),
	}
	if result.Previous != nil {
		resp.PreviousChoice = string(result.Previous.Choice)
	}
	return resp, nil
}

func (h Handler) AutoVoteHandler(ctx context.Context, req httptransport.AutoVoteRequest) (httptransport.AutoVoteResponse, error) {
	result, err := h.Votes.AutoVote(ctx, commands.AutoVoteCommand{
		ProposalID:    req.ProposalID,
		UserID:        req.UserID,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		return httptransport.AutoVoteResponse{}, err
	}
	resp := httptransport.AutoVoteResponse{
		ShouldVote: result.Decision.ShouldVote,
		Choice:     string(result.Decision.Choice),
		Reasoning:  result.Decision.Reasoning,
		Source:     string(result.Decision.Source),
		Skipped:    result.Skipped,
	}
	if result.Vote != nil {
		vote := mapVote(*result.Vote)
		resp.Vote = &vote
	}
	return resp, nil
}

func (h Handler) AutoVoteAllHandler(ctx context.Context, proposalID string) (httptransport.AutoVoteFanoutResponse, error) {
	result, err := h.Votes.AutoVoteAll(ctx, proposalID)
	if err != nil {
		return httptransport.AutoVoteFanoutResponse{}, err
	}
	return httptransport.AutoVoteFanoutResponse{
		ProposalID: result.ProposalID,
		Evaluated:  result.Evaluated,
		Voted:      result.Voted,
		Failed:     result.Failed,
		AlreadyRan: result.AlreadyRan,
	}, nil
}

func (h Handler) ResultsHandler(ctx context.Context, proposalID string) (httptransport.ResultsResponse, error) {
	results, err := h.Results.GetResults(ctx, proposalID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	return httptransport.ResultsResponse{
		ProposalID:       results.Proposal.ProposalID,
		Status:           string(results.Proposal.Status),
		Quorum:           results.Proposal.Quorum,
		Threshold:        results.Proposal.Threshold,
		Stats:            mapStats(results.Stats),
		QuorumMet:        results.QuorumMet,
		CheckPassed:      results.CheckPassed,
		VotingOpen:       results.VotingOpen,
		ProjectedOutcome: string(results.ProjectedOutcome),
	}, nil
}

func (h Handler) CreateProposalHandler(
	ctx context.Context,
	idempotencyKey string,
	req httptransport.CreateProposalRequest,
) (httptransport.ProposalResponse, error) {
	result, err := h.Proposals.CreateProposal(ctx, commands.CreateProposalCommand{
		IdempotencyKey: idempotencyKey,
		Title:          req.Title,
		Description:    req.Description,
		Category:       entities.Category(req.Category),
		ProposerUserID: req.ProposerUserID,
		ProposerWallet: req.ProposerWallet,
		Quorum:         req.Quorum,
		Threshold:      req.Threshold,
		Impact: entities.Impact{
			Cost:          req.Impact.Cost,
			Risk:          entities.RiskLevel(req.Impact.Risk),
			AffectedUsers: req.Impact.AffectedUsers,
		},
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	resp := mapProposal(result.Proposal)
	resp.Replayed = result.Replayed
	return resp, nil
}

func (h Handler) OpenVotingHandler(ctx context.Context, proposalID string, req httptransport.OpenVotingRequest) (httptransport.ProposalResponse, error) {
	proposal, err := h.Proposals.OpenVoting(ctx, commands.OpenVotingCommand{
		ProposalID: proposalID,
		ActorID:    req.ActorID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Duration:   time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(proposal), nil
}

func (h Handler) FinalizeProposalHandler(ctx context.Context, proposalID string, req httptransport.FinalizeProposalRequest) (httptransport.ProposalResponse, error) {
	proposal, err := h.Proposals.FinalizeProposal(ctx, commands.FinalizeProposalCommand{
		ProposalID: proposalID,
		ActorID:    req.ActorID,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(proposal), nil
}

func (h Handler) ExecuteProposalHandler(ctx context.Context, proposalID string, req httptransport.ExecuteProposalRequest) (httptransport.ProposalResponse, error) {
	proposal, err := h.Proposals.ExecuteProposal(ctx, commands.ExecuteProposalCommand{
		ProposalID:        proposalID,
		ExecutorID:        req.ExecutorID,
		ExternalReference: req.ExternalReference,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(proposal), nil
}

func (h Handler) GetProposalHandler(ctx context.Context, proposalID string) (httptransport.ProposalResponse, error) {
	proposal, err := h.Results.GetProposal(ctx, proposalID)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(proposal), nil
}

func (h Handler) GetPreferencesHandler(ctx context.Context, userID string) (httptransport.PreferencesResponse, error) {
	prefs, err := h.Settings.GetPreferences(ctx, userID)
	if err != nil {
		return httptransport.PreferencesResponse{}, err
	}
	return mapPreferences(prefs), nil
}

func (h Handler) UpdatePreferencesHandler(ctx context.Context, userID string, req httptransport.UpdatePreferencesRequest) (httptransport.PreferencesResponse, error) {
	cmd := commands.UpdatePreferencesCommand{
		UserID:        userID,
		WalletAddress: req.WalletAddress,
	}
	if req.AutoVote != nil {
		cmd.AutoVote = &entities.AutoVoteSettings{
			Enabled:       req.AutoVote.Enabled,
			Mode:          entities.AutoVoteMode(req.AutoVote.Mode),
			DefaultChoice: entities.VoteChoice(req.AutoVote.DefaultChoice),
		}
	}
	if req.CustomRules != nil {
		rules := make([]entities.CustomRule, 0, len(*req.CustomRules))
		for _, rule := range *req.CustomRules {
			rules = append(rules, entities.CustomRule{
				Name:      rule.Name,
				Category:  entities.Category(rule.Category),
				Proposer:  rule.Proposer,
				Condition: entities.RuleCondition(rule.Condition),
				Threshold: rule.Threshold,
				Action:    entities.RuleAction(rule.Action),
				IsActive:  rule.IsActive,
			})
		}
		cmd.CustomRules = &rules
	}
	if req.TrustedProposers != nil {
		trusted := make([]entities.TrustedProposer, 0, len(*req.TrustedProposers))
		for _, proposer := range *req.TrustedProposers {
			trusted = append(trusted, entities.TrustedProposer{
				WalletAddress: proposer.WalletAddress,
				Name:          proposer.Name,
				AutoVote:      proposer.AutoVote,
				AddedAt:       proposer.AddedAt,
			})
		}
		cmd.TrustedProposers = &trusted
	}
	if req.CategoryPreferences != nil {
		categories := make([]entities.CategoryPreference, 0, len(*req.CategoryPreferences))
		for _, pref := range *req.CategoryPreferences {
			categories = append(categories, entities.CategoryPreference{
				Category:      entities.Category(pref.Category),
				AutoVote:      pref.AutoVote,
				DefaultChoice: entities.VoteChoice(pref.DefaultChoice),
			})
		}
		cmd.CategoryPreferences = &categories
	}
	prefs, err := h.Preferences.UpdatePreferences(ctx, cmd)
	if err != nil {
		return httptransport.PreferencesResponse{}, err
	}
	return mapPreferences(prefs), nil
}

func (h Handler) SetDelegationHandler(ctx context.Context, userID string, req httptransport.SetDelegationRequest) (httptransport.PreferencesResponse, error) {
	prefs, err := h.Preferences.SetDelegation(ctx, commands.SetDelegationCommand{
		UserID:     userID,
		DelegateTo: req.DelegateTo,
	})
	if err != nil {
		return httptransport.PreferencesResponse{}, err
	}
	return mapPreferences(prefs), nil
}

func mapVote(vote entities.Vote) httptransport.VoteDTO {
	return httptransport.VoteDTO{
		UserID:        vote.Voter.UserID,
		WalletAddress: vote.Voter.WalletAddress,
		Choice:        string(vote.Choice),
		Power:         vote.Power,
		CastAt:        vote.CastAt,
		IsAutoVote:    vote.IsAutoVote,
		DelegatedFrom: vote.DelegatedFrom,
		Reasoning:     vote.Reasoning,
	}
}

func mapStats(stats entities.VoteStats) httptransport.VoteStatsDTO {
	return httptransport.VoteStatsDTO{
		TotalVotes:    stats.TotalVotes,
		YesVotes:      stats.YesVotes,
		NoVotes:       stats.NoVotes,
		AbstainVotes:  stats.AbstainVotes,
		TotalPower:    stats.TotalPower,
		YesPower:      stats.YesPower,
		NoPower:       stats.NoPower,
		AbstainPower:  stats.AbstainPower,
		YesPercentage: stats.YesPercentageRounded(),
	}
}

func mapProposal(proposal entities.Proposal) httptransport.ProposalResponse {
	votes := make([]httptransport.VoteDTO, 0, len(proposal.Votes))
	for _, vote := range proposal.Votes {
		votes = append(votes, mapVote(vote))
	}
	timeline := make([]httptransport.ProposalEventDTO, 0, len(proposal.Timeline))
	for _, event := range proposal.Timeline {
		timeline = append(timeline, httptransport.ProposalEventDTO{
			From:  string(event.From),
			To:    string(event.To),
			Actor: event.Actor,
			Note:  event.Note,
			At:    event.At,
		})
	}
	resp := httptransport.ProposalResponse{
		ProposalID:     proposal.ProposalID,
		Title:          proposal.Title,
		Description:    proposal.Description,
		Category:       string(proposal.Category),
		Status:         string(proposal.Status),
		ProposerUserID: proposal.Proposer.UserID,
		ProposerWallet: proposal.Proposer.WalletAddress,
		StartDate:      optionalTime(proposal.VotingPeriod.StartDate),
		EndDate:        optionalTime(proposal.VotingPeriod.EndDate),
		Quorum:         proposal.Quorum,
		Threshold:      proposal.Threshold,
		Impact: httptransport.ImpactDTO{
			Cost:          proposal.Impact.Cost,
			Risk:          string(proposal.Impact.Risk),
			AffectedUsers: proposal.Impact.AffectedUsers,
		},
		Votes:            votes,
		Stats:            mapStats(proposal.Stats()),
		Timeline:         timeline,
		AutoVoteFanoutAt: optionalTime(proposal.AutoVoteFanoutAt),
		Version:          proposal.Version,
	}
	if proposal.Execution != nil {
		resp.Execution = &httptransport.ExecutionDTO{
			ExecutedBy:           proposal.Execution.ExecutedBy,
			ExternalReference:    proposal.Execution.ExternalReference,
			ExecutedAt:           proposal.Execution.ExecutedAt,
			ImplementationStatus: string(proposal.Execution.ImplementationStatus),
		}
	}
	return resp
}

func mapPreferences(prefs entities.VotingPreferences) httptransport.PreferencesResponse {
	rules := make([]httptransport.CustomRuleDTO, 0, len(prefs.CustomRules))
	for _, rule := range prefs.CustomRules {
		rules = append(rules, httptransport.CustomRuleDTO{
			Name:      rule.Name,
			Category:  string(rule.Category),
			Proposer:  rule.Proposer,
			Condition: string(rule.Condition),
			Threshold: rule.Threshold,
			Action:    string(rule.Action),
			IsActive:  rule.IsActive,
		})
	}
	trusted := make([]httptransport.TrustedProposerDTO, 0, len(prefs.TrustedProposers))
	for _, proposer := range prefs.TrustedProposers {
		trusted = append(trusted, httptransport.TrustedProposerDTO{
			WalletAddress: proposer.WalletAddress,
			Name:          proposer.Name,
			AutoVote:      proposer.AutoVote,
			AddedAt:       proposer.AddedAt,
		})
	}
	categories := make([]httptransport.CategoryPreferenceDTO, 0, len(prefs.CategoryPreferences))
	for _, pref := range prefs.CategoryPreferences {
		categories = append(categories, httptransport.CategoryPreferenceDTO{
			Category:      string(pref.Category),
			AutoVote:      pref.AutoVote,
			DefaultChoice: string(pref.DefaultChoice),
		})
	}
	return httptransport.PreferencesResponse{
		UserID:        prefs.UserID,
		WalletAddress: prefs.WalletAddress,
		AutoVote: httptransport.AutoVoteSettingsDTO{
			Enabled:       prefs.AutoVote.Enabled,
			Mode:          string(prefs.AutoVote.Mode),
			DefaultChoice: string(prefs.AutoVote.DefaultChoice),
		},
		CustomRules:         rules,
		TrustedProposers:    trusted,
		CategoryPreferences: categories,
		Delegation: httptransport.DelegationDTO{
			DelegatedTo:  prefs.Delegation.DelegatedTo,
			ReceivedFrom: append([]string{}, prefs.Delegation.ReceivedFrom...),
		},
		Stats: httptransport.VotingStatsDTO{
			TotalVotes:   prefs.Stats.TotalVotes,
			ManualVotes:  prefs.Stats.ManualVotes,
			AutoVotes:    prefs.Stats.AutoVotes,
			YesVotes:     prefs.Stats.YesVotes,
			NoVotes:      prefs.Stats.NoVotes,
			AbstainVotes: prefs.Stats.AbstainVotes,
			LastVotedAt:  optionalTime(prefs.Stats.LastVotedAt),
		},
		ReputationScore: prefs.ReputationScore,
		Badges:          append([]string{}, prefs.Badges...),
		Version:         prefs.Version,
	}
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	v := value.UTC()
	return &v
}
