package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"marketdao/contexts/governance/dao-voting/domain/entities"
	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/contexts/governance/dao-voting/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       int64
	published bool
}

// Store keeps proposals, preferences, idempotency keys and the outbox in
// memory. Writes go through WithinTx, which holds the store lock for the whole
// unit of work and applies staged writes only when fn succeeds.
type Store struct {
	mu sync.RWMutex

	proposals   map[string]entities.Proposal
	preferences map[string]entities.VotingPreferences
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
	outboxSeq   int64
	power       map[string]float64
}

func NewStore() *Store {
	return &Store{
		proposals:   make(map[string]entities.Proposal),
		preferences: make(map[string]entities.VotingPreferences),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
		power:       make(map[string]float64),
	}
}

// SetVotingPower seeds the in-memory power table used as VotingPowerSource.
func (s *Store) SetVotingPower(wallet string, power float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power[entities.NormalizeWallet(wallet)] = power
}

func (s *Store) GetVotingPower(_ context.Context, wallet string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	power, ok := s.power[entities.NormalizeWallet(wallet)]
	return power, ok, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{
		store:       s,
		proposals:   make(map[string]entities.Proposal),
		preferences: make(map[string]entities.VotingPreferences),
		outbox:      make(map[string]outboxRecord),
		idempotency: make(map[string]ports.IdempotencyRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, proposal := range tx.proposals {
		s.proposals[id] = proposal
	}
	for id, prefs := range tx.preferences {
		s.preferences[id] = prefs
	}
	for id, row := range tx.outbox {
		s.outbox[id] = row
	}
	for key, record := range tx.idempotency {
		s.idempotency[key] = record
	}
	return nil
}

func (s *Store) GetProposal(_ context.Context, proposalID string) (entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProposalLocked(proposalID)
}

func (s *Store) getProposalLocked(proposalID string) (entities.Proposal, error) {
	proposal, ok := s.proposals[strings.TrimSpace(proposalID)]
	if !ok {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	return cloneProposal(proposal), nil
}

func (s *Store) ListProposalsByStatus(_ context.Context, status entities.ProposalStatus, limit int) ([]entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProposals(s.proposals, nil, status, limit), nil
}

func (s *Store) GetPreferences(_ context.Context, userID string) (entities.VotingPreferences, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs, ok := s.preferences[strings.TrimSpace(userID)]
	if !ok {
		return entities.VotingPreferences{}, false, nil
	}
	return clonePreferences(prefs), true, nil
}

func (s *Store) GetPreferencesByWallet(_ context.Context, wallet string) (entities.VotingPreferences, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs, ok := findByWallet(s.preferences, nil, wallet)
	return prefs, ok, nil
}

func (s *Store) ListAutoVoteAccounts(_ context.Context) ([]entities.VotingPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VotingPreferences, 0)
	for _, prefs := range s.preferences {
		if prefs.AutoVote.Enabled {
			items = append(items, clonePreferences(prefs))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UserID < items[j].UserID
	})
	return items, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if !row.published {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrNotFound
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

// PendingEventTypes lists unpublished outbox event types in creation order.
func (s *Store) PendingEventTypes() []string {
	rows, _ := s.ListPendingOutbox(context.Background(), 1<<30)
	types := make([]string, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// storeTx reads through its staged writes to the committed maps. The store
// lock is held by WithinTx for the lifetime of a storeTx.
type storeTx struct {
	store       *Store
	proposals   map[string]entities.Proposal
	preferences map[string]entities.VotingPreferences
	outbox      map[string]outboxRecord
	idempotency map[string]ports.IdempotencyRecord
}

func (t *storeTx) GetProposal(_ context.Context, proposalID string) (entities.Proposal, error) {
	if proposal, ok := t.proposals[strings.TrimSpace(proposalID)]; ok {
		return cloneProposal(proposal), nil
	}
	return t.store.getProposalLocked(proposalID)
}

func (t *storeTx) ListProposalsByStatus(_ context.Context, status entities.ProposalStatus, limit int) ([]entities.Proposal, error) {
	return listProposals(t.store.proposals, t.proposals, status, limit), nil
}

func (t *storeTx) GetPreferences(_ context.Context, userID string) (entities.VotingPreferences, bool, error) {
	userID = strings.TrimSpace(userID)
	if prefs, ok := t.preferences[userID]; ok {
		return clonePreferences(prefs), true, nil
	}
	prefs, ok := t.store.preferences[userID]
	if !ok {
		return entities.VotingPreferences{}, false, nil
	}
	return clonePreferences(prefs), true, nil
}

func (t *storeTx) GetPreferencesByWallet(_ context.Context, wallet string) (entities.VotingPreferences, bool, error) {
	prefs, ok := findByWallet(t.store.preferences, t.preferences, wallet)
	return prefs, ok, nil
}

func (t *storeTx) ListAutoVoteAccounts(_ context.Context) ([]entities.VotingPreferences, error) {
	merged := make(map[string]entities.VotingPreferences, len(t.store.preferences))
	for id, prefs := range t.store.preferences {
		merged[id] = prefs
	}
	for id, prefs := range t.preferences {
		merged[id] = prefs
	}
	items := make([]entities.VotingPreferences, 0)
	for _, prefs := range merged {
		if prefs.AutoVote.Enabled {
			items = append(items, clonePreferences(prefs))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UserID < items[j].UserID
	})
	return items, nil
}

func (t *storeTx) CreateProposal(_ context.Context, proposal entities.Proposal) error {
	id := strings.TrimSpace(proposal.ProposalID)
	if id == "" {
		return domainerrors.ErrInvalidProposalInput
	}
	if _, ok := t.proposals[id]; ok {
		return domainerrors.ErrVersionConflict
	}
	if _, ok := t.store.proposals[id]; ok {
		return domainerrors.ErrVersionConflict
	}
	proposal.ProposalID = id
	proposal.Version = 1
	t.proposals[id] = cloneProposal(proposal)
	return nil
}

func (t *storeTx) SaveProposal(ctx context.Context, proposal entities.Proposal, expectedVersion int64) error {
	current, err := t.GetProposal(ctx, proposal.ProposalID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return domainerrors.ErrVersionConflict
	}
	proposal.Version = expectedVersion + 1
	t.proposals[current.ProposalID] = cloneProposal(proposal)
	return nil
}

func (t *storeTx) SavePreferences(ctx context.Context, prefs entities.VotingPreferences, expectedVersion int64) error {
	userID := strings.TrimSpace(prefs.UserID)
	if userID == "" {
		return domainerrors.ErrInvalidPreferences
	}
	current, found, err := t.GetPreferences(ctx, userID)
	if err != nil {
		return err
	}
	switch {
	case !found && expectedVersion != 0:
		return domainerrors.ErrVersionConflict
	case found && current.Version != expectedVersion:
		return domainerrors.ErrVersionConflict
	}
	if !found {
		if _, taken := findByWallet(t.store.preferences, t.preferences, prefs.WalletAddress); taken {
			return domainerrors.ErrVersionConflict
		}
	}
	prefs.UserID = userID
	prefs.Version = expectedVersion + 1
	t.preferences[userID] = clonePreferences(prefs)
	return nil
}

func (t *storeTx) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	for _, rows := range []map[string]outboxRecord{t.outbox, t.store.outbox} {
		if existing, ok := rows[outboxID]; ok {
			if !bytes.Equal(existing.message.Payload, payload) {
				return domainerrors.ErrConflict
			}
			return nil
		}
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	t.store.outboxSeq++
	t.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
		seq: t.store.outboxSeq,
	}
	return nil
}

func (t *storeTx) PutIdempotency(_ context.Context, record ports.IdempotencyRecord) error {
	key := strings.TrimSpace(record.Key)
	for _, records := range []map[string]ports.IdempotencyRecord{t.idempotency, t.store.idempotency} {
		if existing, exists := records[key]; exists {
			if existing.RequestHash != record.RequestHash || existing.EntityID != record.EntityID {
				return domainerrors.ErrIdempotencyConflict
			}
			return nil
		}
	}
	t.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		EntityID:    strings.TrimSpace(record.EntityID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	return nil
}

func listProposals(committed map[string]entities.Proposal, staged map[string]entities.Proposal, status entities.ProposalStatus, limit int) []entities.Proposal {
	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.Proposal, 0)
	for id, proposal := range committed {
		if override, ok := staged[id]; ok {
			proposal = override
		}
		if status == "" || proposal.Status == status {
			items = append(items, cloneProposal(proposal))
		}
	}
	for id, proposal := range staged {
		if _, ok := committed[id]; ok {
			continue
		}
		if status == "" || proposal.Status == status {
			items = append(items, cloneProposal(proposal))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func findByWallet(committed map[string]entities.VotingPreferences, staged map[string]entities.VotingPreferences, wallet string) (entities.VotingPreferences, bool) {
	wallet = entities.NormalizeWallet(wallet)
	if wallet == "" {
		return entities.VotingPreferences{}, false
	}
	for _, prefs := range staged {
		if entities.NormalizeWallet(prefs.WalletAddress) == wallet {
			return clonePreferences(prefs), true
		}
	}
	for id, prefs := range committed {
		if _, shadowed := staged[id]; shadowed {
			continue
		}
		if entities.NormalizeWallet(prefs.WalletAddress) == wallet {
			return clonePreferences(prefs), true
		}
	}
	return entities.VotingPreferences{}, false
}

func cloneProposal(p entities.Proposal) entities.Proposal {
	p.Votes = append([]entities.Vote(nil), p.Votes...)
	p.Timeline = append([]entities.ProposalEvent(nil), p.Timeline...)
	if p.Execution != nil {
		execution := *p.Execution
		p.Execution = &execution
	}
	return p
}

func clonePreferences(p entities.VotingPreferences) entities.VotingPreferences {
	p.CustomRules = append([]entities.CustomRule(nil), p.CustomRules...)
	p.TrustedProposers = append([]entities.TrustedProposer(nil), p.TrustedProposers...)
	p.CategoryPreferences = append([]entities.CategoryPreference(nil), p.CategoryPreferences...)
	p.Delegation.ReceivedFrom = append([]string(nil), p.Delegation.ReceivedFrom...)
	p.Badges = append([]string(nil), p.Badges...)
	return p
}
