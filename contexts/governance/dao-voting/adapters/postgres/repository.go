package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"marketdao/contexts/governance/dao-voting/domain/entities"
	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/contexts/governance/dao-voting/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository persists governance state through gorm. Embedded lists (votes,
// timeline, rules) are stored as JSON columns next to the owning row.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AutoMigrate creates or updates the governance tables.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&proposalModel{},
		&preferencesModel{},
		&votingPowerModel{},
		&idempotencyModel{},
		&outboxModel{},
	); err != nil {
		return r.logError("dao_repo_automigrate_failed", err)
	}
	return nil
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, logger: r.logger})
	})
}

func (r *Repository) GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error) {
	var row proposalModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Proposal{}, domainerrors.ErrProposalNotFound
		}
		return entities.Proposal{}, r.logError("dao_repo_get_proposal_failed", err, "proposal_id", strings.TrimSpace(proposalID))
	}
	proposal, err := row.toEntity()
	if err != nil {
		return entities.Proposal{}, r.logError("dao_repo_decode_proposal_failed", err, "proposal_id", row.ID)
	}
	return proposal, nil
}

func (r *Repository) ListProposalsByStatus(ctx context.Context, status entities.ProposalStatus, limit int) ([]entities.Proposal, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Model(&proposalModel{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var rows []proposalModel
	if err := query.Order("created_at ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, r.logError("dao_repo_list_proposals_failed", err, "status", string(status))
	}
	items := make([]entities.Proposal, 0, len(rows))
	for _, row := range rows {
		proposal, err := row.toEntity()
		if err != nil {
			return nil, r.logError("dao_repo_decode_proposal_failed", err, "proposal_id", row.ID)
		}
		items = append(items, proposal)
	}
	return items, nil
}

func (r *Repository) CreateProposal(ctx context.Context, proposal entities.Proposal) error {
	proposal.Version = 1
	row, err := proposalModelFromEntity(proposal)
	if err != nil {
		return r.logError("dao_repo_encode_proposal_failed", err, "proposal_id", proposal.ProposalID)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrVersionConflict
		}
		return r.logError("dao_repo_create_proposal_failed", err, "proposal_id", row.ID)
	}
	return nil
}

// SaveProposal writes the proposal only if the stored version still equals
// expectedVersion, then bumps it.
func (r *Repository) SaveProposal(ctx context.Context, proposal entities.Proposal, expectedVersion int64) error {
	row, err := proposalModelFromEntity(proposal)
	if err != nil {
		return r.logError("dao_repo_encode_proposal_failed", err, "proposal_id", proposal.ProposalID)
	}
	result := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("id = ? AND version = ?", row.ID, expectedVersion).
		Updates(map[string]any{
			"title":               row.Title,
			"description":         row.Description,
			"category":            row.Category,
			"status":              row.Status,
			"start_date":          row.StartDate,
			"end_date":            row.EndDate,
			"quorum":              row.Quorum,
			"threshold":           row.Threshold,
			"impact_cost":         row.ImpactCost,
			"impact_risk":         row.ImpactRisk,
			"affected_users":      row.AffectedUsers,
			"votes":               row.Votes,
			"execution":           row.Execution,
			"timeline":            row.Timeline,
			"auto_vote_fanout_at": row.FanoutAt,
			"version":             expectedVersion + 1,
			"updated_at":          row.UpdatedAt,
		})
	if result.Error != nil {
		return r.logError("dao_repo_save_proposal_failed", result.Error,
			"proposal_id", row.ID,
			"expected_version", expectedVersion,
		)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetProposal(ctx, row.ID); err != nil {
			return err
		}
		return domainerrors.ErrVersionConflict
	}
	return nil
}

func (r *Repository) GetPreferences(ctx context.Context, userID string) (entities.VotingPreferences, bool, error) {
	return r.findPreferences(ctx, "user_id = ?", strings.TrimSpace(userID))
}

func (r *Repository) GetPreferencesByWallet(ctx context.Context, wallet string) (entities.VotingPreferences, bool, error) {
	return r.findPreferences(ctx, "wallet_key = ?", entities.NormalizeWallet(wallet))
}

func (r *Repository) findPreferences(ctx context.Context, where string, arg string) (entities.VotingPreferences, bool, error) {
	var row preferencesModel
	err := r.db.WithContext(ctx).Where(where, arg).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VotingPreferences{}, false, nil
		}
		return entities.VotingPreferences{}, false, r.logError("dao_repo_get_preferences_failed", err, "lookup", arg)
	}
	prefs, err := row.toEntity()
	if err != nil {
		return entities.VotingPreferences{}, false, r.logError("dao_repo_decode_preferences_failed", err, "user_id", row.UserID)
	}
	return prefs, true, nil
}

func (r *Repository) ListAutoVoteAccounts(ctx context.Context) ([]entities.VotingPreferences, error) {
	var rows []preferencesModel
	if err := r.db.WithContext(ctx).
		Where("auto_vote_enabled = ?", true).
		Order("user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("dao_repo_list_autovote_accounts_failed", err)
	}
	items := make([]entities.VotingPreferences, 0, len(rows))
	for _, row := range rows {
		prefs, err := row.toEntity()
		if err != nil {
			return nil, r.logError("dao_repo_decode_preferences_failed", err, "user_id", row.UserID)
		}
		items = append(items, prefs)
	}
	return items, nil
}

// SavePreferences inserts when expectedVersion is 0 and otherwise updates
// under the version check.
func (r *Repository) SavePreferences(ctx context.Context, prefs entities.VotingPreferences, expectedVersion int64) error {
	row, err := preferencesModelFromEntity(prefs)
	if err != nil {
		return r.logError("dao_repo_encode_preferences_failed", err, "user_id", prefs.UserID)
	}
	row.Version = expectedVersion + 1
	if expectedVersion == 0 {
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrVersionConflict
			}
			return r.logError("dao_repo_create_preferences_failed", err, "user_id", row.UserID)
		}
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&preferencesModel{}).
		Where("user_id = ? AND version = ?", row.UserID, expectedVersion).
		Updates(map[string]any{
			"wallet_address":       row.WalletAddress,
			"wallet_key":           row.WalletKey,
			"auto_vote_enabled":    row.AutoVoteEnabled,
			"auto_vote_mode":       row.AutoVoteMode,
			"default_choice":       row.DefaultChoice,
			"custom_rules":         row.CustomRules,
			"trusted_proposers":    row.TrustedProposers,
			"category_preferences": row.CategoryPreferences,
			"delegated_to":         row.DelegatedTo,
			"received_from":        row.ReceivedFrom,
			"delegation_updated":   row.DelegationUpdated,
			"stats":                row.Stats,
			"reputation_score":     row.ReputationScore,
			"badges":               row.Badges,
			"version":              row.Version,
			"updated_at":           row.UpdatedAt,
		})
	if result.Error != nil {
		return r.logError("dao_repo_save_preferences_failed", result.Error,
			"user_id", row.UserID,
			"expected_version", expectedVersion,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrVersionConflict
	}
	return nil
}

func (r *Repository) SetVotingPower(ctx context.Context, wallet string, power float64) error {
	row := votingPowerModel{WalletAddress: entities.NormalizeWallet(wallet), Power: power}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"power"}),
	}).Create(&row).Error; err != nil {
		return r.logError("dao_repo_set_voting_power_failed", err, "wallet_address", row.WalletAddress)
	}
	return nil
}

func (r *Repository) GetVotingPower(ctx context.Context, wallet string) (float64, bool, error) {
	var row votingPowerModel
	err := r.db.WithContext(ctx).
		Where("wallet_address = ?", entities.NormalizeWallet(wallet)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, r.logError("dao_repo_get_voting_power_failed", err, "wallet_address", entities.NormalizeWallet(wallet))
	}
	return row.Power, true, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("dao_repo_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", strings.TrimSpace(key)).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("dao_repo_idempotency_expire_delete_failed", err,
				"idempotency_key", strings.TrimSpace(key),
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		EntityID:    row.EntityID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) PutIdempotency(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		EntityID:    strings.TrimSpace(record.EntityID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("dao_repo_idempotency_put_failed", create.Error, "idempotency_key", row.Key)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", row.Key).
		First(&existing).Error; err != nil {
		return r.logError("dao_repo_idempotency_load_existing_failed", err, "idempotency_key", row.Key)
	}
	if existing.RequestHash != row.RequestHash || existing.EntityID != row.EntityID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("dao_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("dao_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("dao_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("dao_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("dao_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/dao-voting",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governance repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ ports.UnitOfWork = (*Repository)(nil)
var _ ports.Tx = (*Repository)(nil)
var _ ports.ProposalReader = (*Repository)(nil)
var _ ports.PreferencesReader = (*Repository)(nil)
var _ ports.VotingPowerSource = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
