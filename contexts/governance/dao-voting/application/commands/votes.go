package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	application "marketdao/contexts/governance/dao-voting/application"
	"marketdao/contexts/governance/dao-voting/domain/entities"
	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/contexts/governance/dao-voting/domain/policy"
	"marketdao/contexts/governance/dao-voting/ports"
)

const votingModule = "governance/dao-voting"

// DefaultVotingPower applies when the power source has no entry for a wallet.
const DefaultVotingPower = 1.0

// CastVoteCommand is a manual vote. DelegatedFrom names the delegator when a
// delegate casts on someone else's behalf.
type CastVoteCommand struct {
	ProposalID    string
	UserID        string
	WalletAddress string
	Choice        entities.VoteChoice
	Reasoning     string
	DelegatedFrom string
}

type CastVoteResult struct {
	Vote     entities.Vote
	Replaced bool
	Previous *entities.Vote
	Stats    entities.VoteStats
}

type AutoVoteCommand struct {
	ProposalID    string
	UserID        string
	WalletAddress string
}

// AutoVoteResult carries the decision whether or not a vote was cast.
// Skipped explains why a positive decision produced no vote.
type AutoVoteResult struct {
	Decision policy.Decision
	Vote     *entities.Vote
	Skipped  string
}

type FanoutResult struct {
	ProposalID string
	Evaluated  int
	Voted      int
	Failed     int
	// AlreadyRan is set when an earlier fan-out already covered the window.
	AlreadyRan bool
}

// VoteUseCase casts manual and automated votes. Power is resolved before the
// unit of work starts and conflicting writes are retried under Retry.
type VoteUseCase struct {
	UoW         ports.UnitOfWork
	Proposals   ports.ProposalReader
	Preferences ports.PreferencesReader
	Power       ports.VotingPowerSource
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Metrics     ports.Metrics
	Retry       application.RetryPolicy
	FanoutLimit int
	Logger      *slog.Logger
}

var errManualVoteExists = errors.New("manual vote already cast")

func (uc VoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	return uc.cast(ctx, cmd, false)
}

func (uc VoteUseCase) cast(ctx context.Context, cmd CastVoteCommand, auto bool) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	cmd.ProposalID = strings.TrimSpace(cmd.ProposalID)
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	cmd.WalletAddress = strings.TrimSpace(cmd.WalletAddress)
	cmd.DelegatedFrom = strings.TrimSpace(cmd.DelegatedFrom)
	if cmd.ProposalID == "" || cmd.UserID == "" || cmd.WalletAddress == "" || !cmd.Choice.Valid() {
		logger.Warn("vote cast validation failed",
			"event", "dao_vote_cast_validation_failed",
			"module", votingModule,
			"layer", "application",
			"proposal_id", cmd.ProposalID,
			"user_id", cmd.UserID,
		)
		return CastVoteResult{}, domainerrors.ErrInvalidVoteInput
	}
	if cmd.DelegatedFrom != "" && entities.NormalizeWallet(cmd.DelegatedFrom) == entities.NormalizeWallet(cmd.WalletAddress) {
		return CastVoteResult{}, domainerrors.ErrSelfDelegation
	}

	owner := cmd.WalletAddress
	if cmd.DelegatedFrom != "" {
		owner = cmd.DelegatedFrom
	}
	power, err := uc.resolvePower(ctx, owner)
	if err != nil {
		logger.Error("voting power lookup failed",
			"event", "dao_vote_power_lookup_failed",
			"module", votingModule,
			"layer", "application",
			"proposal_id", cmd.ProposalID,
			"wallet_address", owner,
			"error", err.Error(),
		)
		return CastVoteResult{}, err
	}

	var result CastVoteResult
	attempt := 0
	err = uc.Retry.OnConflict(ctx, func() error {
		attempt++
		if attempt > 1 {
			logger.Warn("vote cast retrying after version conflict",
				"event", "dao_vote_cast_conflict_retry",
				"module", votingModule,
				"layer", "application",
				"proposal_id", cmd.ProposalID,
				"attempt", attempt,
			)
		}
		var txErr error
		result, txErr = uc.castOnce(ctx, cmd, power, auto)
		return txErr
	})
	if err != nil {
		if !errors.Is(err, errManualVoteExists) {
			logger.Warn("vote cast failed",
				"event", "dao_vote_cast_failed",
				"module", votingModule,
				"layer", "application",
				"proposal_id", cmd.ProposalID,
				"user_id", cmd.UserID,
				"auto", auto,
				"error", err.Error(),
			)
		}
		return CastVoteResult{}, err
	}

	if uc.Metrics != nil {
		uc.Metrics.VoteCast(auto)
	}
	logger.Info("vote cast",
		"event", "dao_vote_cast",
		"module", votingModule,
		"layer", "application",
		"proposal_id", cmd.ProposalID,
		"user_id", result.Vote.Voter.UserID,
		"wallet_address", result.Vote.OwnerWallet(),
		"choice", string(result.Vote.Choice),
		"power", result.Vote.Power,
		"auto", auto,
		"replaced", result.Replaced,
	)
	return result, nil
}

func (uc VoteUseCase) castOnce(ctx context.Context, cmd CastVoteCommand, power float64, auto bool) (CastVoteResult, error) {
	var result CastVoteResult
	err := uc.UoW.WithinTx(ctx, func(tx ports.Tx) error {
		now := uc.now()
		proposal, err := tx.GetProposal(ctx, cmd.ProposalID)
		if err != nil {
			return err
		}
		if !proposal.IsVotingOpen(now) {
			return domainerrors.ErrVotingClosed
		}

		ownerUserID := cmd.UserID
		ownerWallet := cmd.WalletAddress
		if cmd.DelegatedFrom != "" {
			delegator, found, err := tx.GetPreferencesByWallet(ctx, cmd.DelegatedFrom)
			if err != nil {
				return err
			}
			if !found || !delegator.HasDelegatedTo(cmd.WalletAddress) {
				return domainerrors.ErrDelegationNotGranted
			}
			ownerUserID = delegator.UserID
			ownerWallet = delegator.WalletAddress
		}

		if auto {
			if idx := proposal.VoteIndex(ownerWallet); idx >= 0 && !proposal.Votes[idx].IsAutoVote {
				return errManualVoteExists
			}
		}

		vote := entities.Vote{
			Voter:         entities.Account{UserID: cmd.UserID, WalletAddress: cmd.WalletAddress},
			Choice:        cmd.Choice,
			Power:         power,
			CastAt:        now,
			IsAutoVote:    auto,
			DelegatedFrom: cmd.DelegatedFrom,
			Reasoning:     strings.TrimSpace(cmd.Reasoning),
		}
		if cmd.DelegatedFrom != "" {
			vote.DelegatedFrom = ownerWallet
		}
		expected := proposal.Version
		previous, replaced := proposal.UpsertVote(vote)
		if proposal.HasDuplicateOwners() {
			return domainerrors.ErrTallyMismatch
		}
		proposal.UpdatedAt = now
		if err := tx.SaveProposal(ctx, proposal, expected); err != nil {
			return err
		}

		prefs, found, err := tx.GetPreferences(ctx, ownerUserID)
		if err != nil {
			return err
		}
		if !found {
			prefs = entities.NewVotingPreferences(ownerUserID, ownerWallet, now)
		}
		prefsVersion := prefs.Version
		if replaced {
			prefs.RecordVote(vote, &previous)
		} else {
			prefs.RecordVote(vote, nil)
		}
		prefs.UpdatedAt = now
		if err := tx.SavePreferences(ctx, prefs, prefsVersion); err != nil {
			return err
		}

		if err := uc.appendVoteCast(ctx, tx, proposal, vote, previous, replaced, now); err != nil {
			return err
		}
		if replaced && previous.IsAutoVote && !vote.IsAutoVote && previous.Choice != vote.Choice {
			if err := uc.appendEvent(ctx, tx, "vote.conflict_detected", proposal.ProposalID, now, map[string]any{
				"proposal_id":      proposal.ProposalID,
				"wallet_address":   ownerWallet,
				"auto_choice":      string(previous.Choice),
				"manual_choice":    string(vote.Choice),
				"auto_reasoning":   previous.Reasoning,
				"manual_cast_at":   now.UTC().Format(time.RFC3339Nano),
				"previous_cast_at": previous.CastAt.UTC().Format(time.RFC3339Nano),
			}); err != nil {
				return err
			}
		}

		proposal.Version = expected + 1
		result = CastVoteResult{
			Vote:     vote,
			Replaced: replaced,
			Stats:    proposal.Stats(),
		}
		if replaced {
			prev := previous
			result.Previous = &prev
		}
		return nil
	})
	return result, err
}

func (uc VoteUseCase) appendVoteCast(
	ctx context.Context,
	tx ports.Tx,
	proposal entities.Proposal,
	vote entities.Vote,
	previous entities.Vote,
	replaced bool,
	now time.Time,
) error {
	stats := proposal.Stats()
	data := map[string]any{
		"proposal_id":    proposal.ProposalID,
		"user_id":        vote.Voter.UserID,
		"wallet_address": vote.OwnerWallet(),
		"choice":         string(vote.Choice),
		"power":          vote.Power,
		"is_auto_vote":   vote.IsAutoVote,
		"delegated_from": vote.DelegatedFrom,
		"replaced":       replaced,
		"total_power":    stats.TotalPower,
		"yes_percentage": stats.YesPercentageRounded(),
	}
	if replaced {
		data["previous_choice"] = string(previous.Choice)
	}
	return uc.appendEvent(ctx, tx, "vote.cast", proposal.ProposalID, now, data)
}

func (uc VoteUseCase) appendEvent(ctx context.Context, tx ports.Tx, eventType string, proposalID string, now time.Time, data map[string]any) error {
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newVotingEnvelope(eventID, eventType, proposalID, now, data)
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, envelope)
}

// AutoVote evaluates the account's preferences against the proposal and casts
// when the policy says so. A manual vote already on record is never replaced.
func (uc VoteUseCase) AutoVote(ctx context.Context, cmd AutoVoteCommand) (AutoVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	cmd.ProposalID = strings.TrimSpace(cmd.ProposalID)
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	if cmd.ProposalID == "" || cmd.UserID == "" {
		return AutoVoteResult{}, domainerrors.ErrInvalidVoteInput
	}

	proposal, err := uc.Proposals.GetProposal(ctx, cmd.ProposalID)
	if err != nil {
		return AutoVoteResult{}, err
	}
	prefs, found, err := uc.Preferences.GetPreferences(ctx, cmd.UserID)
	if err != nil {
		return AutoVoteResult{}, err
	}
	if !found {
		wallet := strings.TrimSpace(cmd.WalletAddress)
		if wallet == "" {
			return AutoVoteResult{}, domainerrors.ErrPreferencesNotFound
		}
		prefs = entities.NewVotingPreferences(cmd.UserID, wallet, uc.now())
	}
	wallet := prefs.WalletAddress
	if wallet == "" {
		wallet = strings.TrimSpace(cmd.WalletAddress)
	}

	decision := policy.DecideAutoVote(prefs, proposal)
	if uc.Metrics != nil {
		uc.Metrics.AutoVoteDecision(string(decision.Source), decision.ShouldVote)
	}
	logger.Info("auto-vote decision evaluated",
		"event", "dao_autovote_decision",
		"module", votingModule,
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"user_id", cmd.UserID,
		"source", string(decision.Source),
		"should_vote", decision.ShouldVote,
		"choice", string(decision.Choice),
	)

	if !decision.ShouldVote {
		if decision.Source == policy.SourceNotifyOnly || decision.Source == policy.SourceCustomRule {
			if err := uc.notify(ctx, proposal.ProposalID, cmd.UserID, wallet, decision); err != nil {
				return AutoVoteResult{}, err
			}
		}
		return AutoVoteResult{Decision: decision}, nil
	}
	if now := uc.now(); proposal.VotingNotStarted(now) {
		return AutoVoteResult{Decision: decision}, domainerrors.ErrVotingNotStarted
	} else if !proposal.IsVotingOpen(now) {
		return AutoVoteResult{Decision: decision}, domainerrors.ErrVotingClosed
	}

	cast, err := uc.cast(ctx, CastVoteCommand{
		ProposalID:    proposal.ProposalID,
		UserID:        cmd.UserID,
		WalletAddress: wallet,
		Choice:        decision.Choice,
		Reasoning:     decision.Reasoning,
	}, true)
	if errors.Is(err, errManualVoteExists) {
		return AutoVoteResult{Decision: decision, Skipped: errManualVoteExists.Error()}, nil
	}
	if err != nil {
		return AutoVoteResult{Decision: decision}, err
	}
	vote := cast.Vote
	return AutoVoteResult{Decision: decision, Vote: &vote}, nil
}

func (uc VoteUseCase) notify(ctx context.Context, proposalID string, userID string, wallet string, decision policy.Decision) error {
	return uc.UoW.WithinTx(ctx, func(tx ports.Tx) error {
		return uc.appendEvent(ctx, tx, "vote.auto_notify", proposalID, uc.now(), map[string]any{
			"proposal_id":    proposalID,
			"user_id":        userID,
			"wallet_address": wallet,
			"source":         string(decision.Source),
			"reasoning":      decision.Reasoning,
		})
	})
}

// AutoVoteAll evaluates every auto-vote enabled account for the proposal once
// its window is open. Each account is independent: a failure is logged and
// counted, never propagated to the others. A fan-out where every account
// succeeded is recorded on the proposal and later calls become no-ops.
func (uc VoteUseCase) AutoVoteAll(ctx context.Context, proposalID string) (FanoutResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return FanoutResult{}, domainerrors.ErrInvalidVoteInput
	}
	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return FanoutResult{}, err
	}
	now := uc.now()
	if proposal.VotingNotStarted(now) {
		return FanoutResult{ProposalID: proposalID}, domainerrors.ErrVotingNotStarted
	}
	if !proposal.IsVotingOpen(now) {
		return FanoutResult{ProposalID: proposalID}, domainerrors.ErrVotingClosed
	}
	if !proposal.AutoVoteFanoutAt.IsZero() {
		return FanoutResult{ProposalID: proposalID, AlreadyRan: true}, nil
	}
	accounts, err := uc.Preferences.ListAutoVoteAccounts(ctx)
	if err != nil {
		return FanoutResult{}, err
	}

	var voted, failed atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.fanoutLimit())
	for _, account := range accounts {
		account := account
		group.Go(func() error {
			result, err := uc.AutoVote(groupCtx, AutoVoteCommand{
				ProposalID:    proposalID,
				UserID:        account.UserID,
				WalletAddress: account.WalletAddress,
			})
			if err != nil {
				failed.Add(1)
				logger.Warn("auto-vote failed for account",
					"event", "dao_autovote_account_failed",
					"module", votingModule,
					"layer", "application",
					"proposal_id", proposalID,
					"user_id", account.UserID,
					"error", err.Error(),
				)
				return nil
			}
			if result.Vote != nil {
				voted.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return FanoutResult{}, err
	}

	result := FanoutResult{
		ProposalID: proposalID,
		Evaluated:  len(accounts),
		Voted:      int(voted.Load()),
		Failed:     int(failed.Load()),
	}
	logger.Info("auto-vote fan-out completed",
		"event", "dao_autovote_fanout_completed",
		"module", votingModule,
		"layer", "application",
		"proposal_id", proposalID,
		"evaluated", result.Evaluated,
		"voted", result.Voted,
		"failed", result.Failed,
	)
	if result.Failed > 0 {
		return result, nil
	}
	if err := uc.markFanout(ctx, result); err != nil {
		logger.Warn("auto-vote fan-out marker not saved",
			"event", "dao_autovote_fanout_mark_failed",
			"module", votingModule,
			"layer", "application",
			"proposal_id", proposalID,
			"error", err.Error(),
		)
	}
	return result, nil
}

func (uc VoteUseCase) markFanout(ctx context.Context, result FanoutResult) error {
	return uc.Retry.OnConflict(ctx, func() error {
		return uc.UoW.WithinTx(ctx, func(tx ports.Tx) error {
			now := uc.now()
			proposal, err := tx.GetProposal(ctx, result.ProposalID)
			if err != nil {
				return err
			}
			expected := proposal.Version
			if !proposal.MarkAutoVoteFanout(now) {
				return nil
			}
			if err := tx.SaveProposal(ctx, proposal, expected); err != nil {
				return err
			}
			return uc.appendEvent(ctx, tx, "proposal.autovote_completed", proposal.ProposalID, now, map[string]any{
				"proposal_id": proposal.ProposalID,
				"evaluated":   result.Evaluated,
				"voted":       result.Voted,
			})
		})
	})
}

func (uc VoteUseCase) resolvePower(ctx context.Context, wallet string) (float64, error) {
	if uc.Power == nil {
		return DefaultVotingPower, nil
	}
	power, found, err := uc.Power.GetVotingPower(ctx, wallet)
	if err != nil {
		return 0, errors.Join(domainerrors.ErrVotingPowerUnavailable, err)
	}
	if !found {
		return DefaultVotingPower, nil
	}
	if power < 0 {
		return 0, nil
	}
	return power, nil
}

func (uc VoteUseCase) fanoutLimit() int {
	if uc.FanoutLimit <= 0 {
		return 8
	}
	return uc.FanoutLimit
}

func (uc VoteUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
