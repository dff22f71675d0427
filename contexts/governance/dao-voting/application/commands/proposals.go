package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "marketdao/contexts/governance/dao-voting/application"
	"marketdao/contexts/governance/dao-voting/domain/entities"
	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/contexts/governance/dao-voting/ports"
)

type CreateProposalCommand struct {
	IdempotencyKey string
	Title          string
	Description    string
	Category       entities.Category
	ProposerUserID string
	ProposerWallet string
	Quorum         float64
	Threshold      float64
	Impact         entities.Impact
}

type CreateProposalResult struct {
	Proposal entities.Proposal
	Replayed bool
}

// OpenVotingCommand opens the window [StartDate, EndDate). A zero StartDate
// means now; Duration is used when EndDate is zero.
type OpenVotingCommand struct {
	ProposalID string
	ActorID    string
	StartDate  time.Time
	EndDate    time.Time
	Duration   time.Duration
}

type FinalizeProposalCommand struct {
	ProposalID string
	ActorID    string
}

type ExecuteProposalCommand struct {
	ProposalID        string
	ExecutorID        string
	ExternalReference string
}

// ProposalUseCase drives the proposal state machine. Every transition is a
// single unit of work that saves the proposal and its outbox event together.
type ProposalUseCase struct {
	UoW            ports.UnitOfWork
	Proposals      ports.ProposalReader
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Metrics        ports.Metrics
	Retry          application.RetryPolicy
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func (uc ProposalUseCase) CreateProposal(ctx context.Context, cmd CreateProposalCommand) (CreateProposalResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	cmd.Title = strings.TrimSpace(cmd.Title)
	cmd.ProposerUserID = strings.TrimSpace(cmd.ProposerUserID)
	cmd.ProposerWallet = strings.TrimSpace(cmd.ProposerWallet)
	cmd.Impact.Risk = entities.RiskLevel(strings.ToLower(strings.TrimSpace(string(cmd.Impact.Risk))))
	if cmd.Title == "" ||
		cmd.ProposerUserID == "" ||
		cmd.ProposerWallet == "" ||
		!cmd.Category.Valid() ||
		cmd.Quorum < 0 ||
		cmd.Threshold < 0 || cmd.Threshold > 100 ||
		cmd.Impact.Cost < 0 ||
		!cmd.Impact.Risk.Valid() {
		logger.Warn("proposal create validation failed",
			"event", "dao_proposal_create_validation_failed",
			"module", votingModule,
			"layer", "application",
			"proposer_user_id", cmd.ProposerUserID,
			"category", string(cmd.Category),
			"risk", string(cmd.Impact.Risk),
		)
		return CreateProposalResult{}, domainerrors.ErrInvalidProposalInput
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return CreateProposalResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	now := uc.now()
	requestHash := hashPayload(map[string]any{
		"title":       cmd.Title,
		"description": cmd.Description,
		"category":    cmd.Category,
		"proposer":    cmd.ProposerUserID,
		"wallet":      entities.NormalizeWallet(cmd.ProposerWallet),
		"quorum":      cmd.Quorum,
		"threshold":   cmd.Threshold,
		"impact":      cmd.Impact,
	})
	if record, found, err := uc.Idempotency.Get(ctx, cmd.IdempotencyKey, now); err != nil {
		return CreateProposalResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			logger.Warn("proposal create idempotency conflict",
				"event", "dao_proposal_create_idempotency_conflict",
				"module", votingModule,
				"layer", "application",
				"proposer_user_id", cmd.ProposerUserID,
			)
			return CreateProposalResult{}, domainerrors.ErrIdempotencyConflict
		}
		proposal, err := uc.Proposals.GetProposal(ctx, record.EntityID)
		if err != nil {
			return CreateProposalResult{}, err
		}
		return CreateProposalResult{Proposal: proposal, Replayed: true}, nil
	}

	proposalID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreateProposalResult{}, err
	}
	proposal := entities.Proposal{
		ProposalID:  proposalID,
		Title:       cmd.Title,
		Description: strings.TrimSpace(cmd.Description),
		Category:    cmd.Category,
		Status:      entities.ProposalStatusDraft,
		Proposer: entities.Account{
			UserID:        cmd.ProposerUserID,
			WalletAddress: cmd.ProposerWallet,
		},
		Quorum:    cmd.Quorum,
		Threshold: cmd.Threshold,
		Impact:    cmd.Impact,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.UoW.WithinTx(ctx, func(tx ports.Tx) error {
		if err := tx.CreateProposal(ctx, proposal); err != nil {
			return err
		}
		return tx.PutIdempotency(ctx, ports.IdempotencyRecord{
			Key:         cmd.IdempotencyKey,
			RequestHash: requestHash,
			EntityID:    proposal.ProposalID,
			ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
		})
	}); err != nil {
		return CreateProposalResult{}, err
	}

	logger.Info("proposal created",
		"event", "dao_proposal_created",
		"module", votingModule,
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"category", string(proposal.Category),
		"quorum", proposal.Quorum,
		"threshold", proposal.Threshold,
	)
	return CreateProposalResult{Proposal: proposal}, nil
}

func (uc ProposalUseCase) OpenVoting(ctx context.Context, cmd OpenVotingCommand) (entities.Proposal, error) {
	return uc.transition(ctx, cmd.ProposalID, "open", func(proposal *entities.Proposal, now time.Time) (string, map[string]any, error) {
		start, end := cmd.StartDate, cmd.EndDate
		if start.IsZero() {
			start = now
		}
		if end.IsZero() && cmd.Duration > 0 {
			end = start.Add(cmd.Duration)
		}
		if err := proposal.Open(start, end, cmd.ActorID, now); err != nil {
			return "", nil, err
		}
		return "proposal.opened", map[string]any{
			"proposal_id": proposal.ProposalID,
			"category":    string(proposal.Category),
			"start_date":  proposal.VotingPeriod.StartDate.Format(time.RFC3339Nano),
			"end_date":    proposal.VotingPeriod.EndDate.Format(time.RFC3339Nano),
			"quorum":      proposal.Quorum,
			"threshold":   proposal.Threshold,
		}, nil
	})
}

func (uc ProposalUseCase) FinalizeProposal(ctx context.Context, cmd FinalizeProposalCommand) (entities.Proposal, error) {
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		actor = "system"
	}
	proposal, err := uc.transition(ctx, cmd.ProposalID, "finalize", func(proposal *entities.Proposal, now time.Time) (string, map[string]any, error) {
		outcome, err := proposal.Finalize(actor, now)
		if err != nil {
			return "", nil, err
		}
		stats := proposal.Stats()
		return "proposal.finalized", map[string]any{
			"proposal_id":    proposal.ProposalID,
			"outcome":        string(outcome),
			"total_votes":    stats.TotalVotes,
			"total_power":    stats.TotalPower,
			"yes_percentage": stats.YesPercentageRounded(),
			"quorum_met":     proposal.QuorumMet(),
		}, nil
	})
	if err != nil {
		return entities.Proposal{}, err
	}
	if uc.Metrics != nil {
		uc.Metrics.ProposalFinalized(string(proposal.Status))
	}
	return proposal, nil
}

func (uc ProposalUseCase) ExecuteProposal(ctx context.Context, cmd ExecuteProposalCommand) (entities.Proposal, error) {
	return uc.transition(ctx, cmd.ProposalID, "execute", func(proposal *entities.Proposal, now time.Time) (string, map[string]any, error) {
		if err := proposal.Execute(cmd.ExecutorID, cmd.ExternalReference, now); err != nil {
			return "", nil, err
		}
		return "proposal.executed", map[string]any{
			"proposal_id":           proposal.ProposalID,
			"executed_by":           proposal.Execution.ExecutedBy,
			"external_reference":    proposal.Execution.ExternalReference,
			"implementation_status": string(proposal.Execution.ImplementationStatus),
		}, nil
	})
}

type transitionFunc func(proposal *entities.Proposal, now time.Time) (string, map[string]any, error)

func (uc ProposalUseCase) transition(ctx context.Context, proposalID string, step string, apply transitionFunc) (entities.Proposal, error) {
	logger := application.ResolveLogger(uc.Logger)
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return entities.Proposal{}, domainerrors.ErrInvalidProposalInput
	}

	var updated entities.Proposal
	err := uc.Retry.OnConflict(ctx, func() error {
		return uc.UoW.WithinTx(ctx, func(tx ports.Tx) error {
			now := uc.now()
			proposal, err := tx.GetProposal(ctx, proposalID)
			if err != nil {
				return err
			}
			from := proposal.Status
			expected := proposal.Version
			eventType, data, err := apply(&proposal, now)
			if err != nil {
				return err
			}
			if err := tx.SaveProposal(ctx, proposal, expected); err != nil {
				return err
			}
			data["from_status"] = string(from)
			data["to_status"] = string(proposal.Status)
			eventID, err := uc.IDGen.NewID(ctx)
			if err != nil {
				return err
			}
			envelope, err := newVotingEnvelope(eventID, eventType, proposal.ProposalID, now, data)
			if err != nil {
				return err
			}
			if err := tx.AppendOutbox(ctx, envelope); err != nil {
				return err
			}
			proposal.Version = expected + 1
			updated = proposal
			return nil
		})
	})
	if err != nil {
		logger.Warn("proposal transition failed",
			"event", "dao_proposal_transition_failed",
			"module", votingModule,
			"layer", "application",
			"proposal_id", proposalID,
			"step", step,
			"error", err.Error(),
		)
		return entities.Proposal{}, err
	}

	logger.Info("proposal transitioned",
		"event", "dao_proposal_transitioned",
		"module", votingModule,
		"layer", "application",
		"proposal_id", updated.ProposalID,
		"step", step,
		"status", string(updated.Status),
	)
	return updated, nil
}

func (uc ProposalUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func (uc ProposalUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
