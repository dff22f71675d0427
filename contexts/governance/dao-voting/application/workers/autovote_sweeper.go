package workers

import (
	"context"
	"log/slog"
	"time"

	application "marketdao/contexts/governance/dao-voting/application"
	"marketdao/contexts/governance/dao-voting/domain/entities"
	"marketdao/contexts/governance/dao-voting/ports"
)

// AutoVoteSweeper runs the fan-out for voting proposals whose window has
// opened but whose auto-vote accounts were never evaluated. It covers
// scheduled windows and fan-outs that failed part way.
type AutoVoteSweeper struct {
	Proposals ports.ProposalReader
	Fanout    AutoVoteFanout
	Clock     ports.Clock
	BatchSize int
	Disabled  bool
	Logger    *slog.Logger
}

func (s AutoVoteSweeper) RunOnce(ctx context.Context) (int, error) {
	if s.Disabled {
		return 0, nil
	}
	logger := application.ResolveLogger(s.Logger)
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}

	proposals, err := s.Proposals.ListProposalsByStatus(ctx, entities.ProposalStatusVoting, limit)
	if err != nil {
		logger.Error("auto-vote sweep list failed",
			"event", "dao_autovote_sweep_list_failed",
			"module", workerModule,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	swept := 0
	for _, proposal := range proposals {
		if !proposal.AutoVoteFanoutDue(now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		result, err := s.Fanout.AutoVoteAll(ctx, proposal.ProposalID)
		if err != nil {
			logger.Warn("auto-vote sweep proposal failed",
				"event", "dao_autovote_sweep_proposal_failed",
				"module", workerModule,
				"layer", "worker",
				"proposal_id", proposal.ProposalID,
				"error", err.Error(),
			)
			continue
		}
		if !result.AlreadyRan {
			swept++
		}
	}
	if swept > 0 {
		logger.Info("auto-vote sweep completed",
			"event", "dao_autovote_sweep_completed",
			"module", workerModule,
			"layer", "worker",
			"swept_count", swept,
		)
	}
	return swept, nil
}
