package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "marketdao/contexts/governance/dao-voting/application"
	"marketdao/contexts/governance/dao-voting/application/commands"
	"marketdao/contexts/governance/dao-voting/domain/entities"
	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/contexts/governance/dao-voting/ports"
)

type ProposalFinalizer interface {
	FinalizeProposal(ctx context.Context, cmd commands.FinalizeProposalCommand) (entities.Proposal, error)
}

// FinalizeSweeper closes proposals whose voting window has ended.
type FinalizeSweeper struct {
	Proposals ports.ProposalReader
	Finalizer ProposalFinalizer
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce finalizes every due proposal in the batch. A failure on one proposal
// is logged and does not stop the sweep.
func (s FinalizeSweeper) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(s.Logger)
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}

	var due []entities.Proposal
	for _, status := range []entities.ProposalStatus{entities.ProposalStatusVoting, entities.ProposalStatusActive} {
		proposals, err := s.Proposals.ListProposalsByStatus(ctx, status, limit)
		if err != nil {
			logger.Error("finalize sweep list failed",
				"event", "dao_finalize_sweep_list_failed",
				"module", workerModule,
				"layer", "worker",
				"status", string(status),
				"error", err.Error(),
			)
			return 0, err
		}
		for _, proposal := range proposals {
			if !proposal.VotingPeriod.EndDate.IsZero() && !now.Before(proposal.VotingPeriod.EndDate) {
				due = append(due, proposal)
			}
		}
	}

	finalized := 0
	for _, proposal := range due {
		if err := ctx.Err(); err != nil {
			return finalized, err
		}
		_, err := s.Finalizer.FinalizeProposal(ctx, commands.FinalizeProposalCommand{
			ProposalID: proposal.ProposalID,
			ActorID:    "finalize-sweeper",
		})
		if err != nil {
			if errors.Is(err, domainerrors.ErrInvalidTransition) {
				continue
			}
			logger.Warn("finalize sweep proposal failed",
				"event", "dao_finalize_sweep_proposal_failed",
				"module", workerModule,
				"layer", "worker",
				"proposal_id", proposal.ProposalID,
				"error", err.Error(),
			)
			continue
		}
		finalized++
	}
	if finalized > 0 {
		logger.Info("finalize sweep completed",
			"event", "dao_finalize_sweep_completed",
			"module", workerModule,
			"layer", "worker",
			"finalized_count", finalized,
		)
	}
	return finalized, nil
}
