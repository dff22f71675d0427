package ports

import (
	"context"
	"time"

	"marketdao/contexts/governance/dao-voting/domain/entities"
	contractsv1 "marketdao/contracts/gen/events/v1"
)

type ProposalReader interface {
	GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error)
	ListProposalsByStatus(ctx context.Context, status entities.ProposalStatus, limit int) ([]entities.Proposal, error)
}

type PreferencesReader interface {
	GetPreferences(ctx context.Context, userID string) (entities.VotingPreferences, bool, error)
	GetPreferencesByWallet(ctx context.Context, wallet string) (entities.VotingPreferences, bool, error)
	ListAutoVoteAccounts(ctx context.Context) ([]entities.VotingPreferences, error)
}

// Tx is the write surface available inside a unit of work. Save operations
// take the version the caller read and fail with a conflict when it moved.
type Tx interface {
	ProposalReader
	PreferencesReader
	CreateProposal(ctx context.Context, proposal entities.Proposal) error
	SaveProposal(ctx context.Context, proposal entities.Proposal, expectedVersion int64) error
	SavePreferences(ctx context.Context, prefs entities.VotingPreferences, expectedVersion int64) error
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
	PutIdempotency(ctx context.Context, record IdempotencyRecord) error
}

// UnitOfWork runs fn atomically. Returning an error rolls back every write
// made through tx.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// VotingPowerSource resolves a wallet's weighted power at vote time.
type VotingPowerSource interface {
	GetVotingPower(ctx context.Context, walletAddress string) (float64, bool, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	EntityID    string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// Metrics receives counters for vote operations. Implementations must be
// safe for concurrent use.
type Metrics interface {
	VoteCast(auto bool)
	AutoVoteDecision(source string, voted bool)
	ProposalFinalized(outcome string)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, EventEnvelope) error) error
}
