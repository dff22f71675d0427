package postgresadapter

import (
	"encoding/json"
	"strings"
	"time"

	"marketdao/contexts/governance/dao-voting/domain/entities"
)

type proposalModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	Title          string     `gorm:"column:title"`
	Description    string     `gorm:"column:description"`
	Category       string     `gorm:"column:category"`
	Status         string     `gorm:"column:status;index"`
	ProposerUserID string     `gorm:"column:proposer_user_id"`
	ProposerWallet string     `gorm:"column:proposer_wallet"`
	StartDate      *time.Time `gorm:"column:start_date"`
	EndDate        *time.Time `gorm:"column:end_date"`
	Quorum         float64    `gorm:"column:quorum"`
	Threshold      float64    `gorm:"column:threshold"`
	ImpactCost     float64    `gorm:"column:impact_cost"`
	ImpactRisk     string     `gorm:"column:impact_risk"`
	AffectedUsers  int        `gorm:"column:affected_users"`
	Votes          []byte     `gorm:"column:votes"`
	Execution      []byte     `gorm:"column:execution"`
	Timeline       []byte     `gorm:"column:timeline"`
	FanoutAt       *time.Time `gorm:"column:auto_vote_fanout_at"`
	Version        int64      `gorm:"column:version"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (proposalModel) TableName() string {
	return "dao_proposals"
}

func proposalModelFromEntity(p entities.Proposal) (proposalModel, error) {
	votes, err := json.Marshal(p.Votes)
	if err != nil {
		return proposalModel{}, err
	}
	timeline, err := json.Marshal(p.Timeline)
	if err != nil {
		return proposalModel{}, err
	}
	var execution []byte
	if p.Execution != nil {
		if execution, err = json.Marshal(p.Execution); err != nil {
			return proposalModel{}, err
		}
	}
	return proposalModel{
		ID:             strings.TrimSpace(p.ProposalID),
		Title:          p.Title,
		Description:    p.Description,
		Category:       string(p.Category),
		Status:         string(p.Status),
		ProposerUserID: p.Proposer.UserID,
		ProposerWallet: p.Proposer.WalletAddress,
		StartDate:      optionalTime(p.VotingPeriod.StartDate),
		EndDate:        optionalTime(p.VotingPeriod.EndDate),
		Quorum:         p.Quorum,
		Threshold:      p.Threshold,
		ImpactCost:     p.Impact.Cost,
		ImpactRisk:     string(p.Impact.Risk),
		AffectedUsers:  p.Impact.AffectedUsers,
		Votes:          votes,
		Execution:      execution,
		Timeline:       timeline,
		FanoutAt:       optionalTime(p.AutoVoteFanoutAt),
		Version:        p.Version,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}, nil
}

func (m proposalModel) toEntity() (entities.Proposal, error) {
	proposal := entities.Proposal{
		ProposalID:  m.ID,
		Title:       m.Title,
		Description: m.Description,
		Category:    entities.Category(m.Category),
		Status:      entities.ProposalStatus(m.Status),
		Proposer: entities.Account{
			UserID:        m.ProposerUserID,
			WalletAddress: m.ProposerWallet,
		},
		VotingPeriod: entities.VotingPeriod{
			StartDate: derefTime(m.StartDate),
			EndDate:   derefTime(m.EndDate),
		},
		Quorum:    m.Quorum,
		Threshold: m.Threshold,
		Impact: entities.Impact{
			Cost:          m.ImpactCost,
			Risk:          entities.RiskLevel(m.ImpactRisk),
			AffectedUsers: m.AffectedUsers,
		},
		AutoVoteFanoutAt: derefTime(m.FanoutAt),
		Version:          m.Version,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if err := decodeJSON(m.Votes, &proposal.Votes); err != nil {
		return entities.Proposal{}, err
	}
	if err := decodeJSON(m.Timeline, &proposal.Timeline); err != nil {
		return entities.Proposal{}, err
	}
	if len(m.Execution) > 0 {
		var execution entities.Execution
		if err := json.Unmarshal(m.Execution, &execution); err != nil {
			return entities.Proposal{}, err
		}
		proposal.Execution = &execution
	}
	return proposal, nil
}

type preferencesModel struct {
	UserID              string     `gorm:"column:user_id;primaryKey"`
	WalletAddress       string     `gorm:"column:wallet_address"`
	WalletKey           string     `gorm:"column:wallet_key;uniqueIndex"`
	AutoVoteEnabled     bool       `gorm:"column:auto_vote_enabled;index"`
	AutoVoteMode        string     `gorm:"column:auto_vote_mode"`
	DefaultChoice       string     `gorm:"column:default_choice"`
	CustomRules         []byte     `gorm:"column:custom_rules"`
	TrustedProposers    []byte     `gorm:"column:trusted_proposers"`
	CategoryPreferences []byte     `gorm:"column:category_preferences"`
	DelegatedTo         string     `gorm:"column:delegated_to"`
	ReceivedFrom        []byte     `gorm:"column:received_from"`
	DelegationUpdated   *time.Time `gorm:"column:delegation_updated"`
	Stats               []byte     `gorm:"column:stats"`
	ReputationScore     float64    `gorm:"column:reputation_score"`
	Badges              []byte     `gorm:"column:badges"`
	Version             int64      `gorm:"column:version"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (preferencesModel) TableName() string {
	return "dao_voting_preferences"
}

func preferencesModelFromEntity(p entities.VotingPreferences) (preferencesModel, error) {
	row := preferencesModel{
		UserID:            strings.TrimSpace(p.UserID),
		WalletAddress:     strings.TrimSpace(p.WalletAddress),
		WalletKey:         entities.NormalizeWallet(p.WalletAddress),
		AutoVoteEnabled:   p.AutoVote.Enabled,
		AutoVoteMode:      string(p.AutoVote.Mode),
		DefaultChoice:     string(p.AutoVote.DefaultChoice),
		DelegatedTo:       p.Delegation.DelegatedTo,
		DelegationUpdated: optionalTime(p.Delegation.UpdatedAt),
		ReputationScore:   p.ReputationScore,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt.UTC(),
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
	fields := []struct {
		dst *[]byte
		src any
	}{
		{&row.CustomRules, p.CustomRules},
		{&row.TrustedProposers, p.TrustedProposers},
		{&row.CategoryPreferences, p.CategoryPreferences},
		{&row.ReceivedFrom, p.Delegation.ReceivedFrom},
		{&row.Stats, p.Stats},
		{&row.Badges, p.Badges},
	}
	for _, field := range fields {
		raw, err := json.Marshal(field.src)
		if err != nil {
			return preferencesModel{}, err
		}
		*field.dst = raw
	}
	return row, nil
}

func (m preferencesModel) toEntity() (entities.VotingPreferences, error) {
	prefs := entities.VotingPreferences{
		UserID:        m.UserID,
		WalletAddress: m.WalletAddress,
		AutoVote: entities.AutoVoteSettings{
			Enabled:       m.AutoVoteEnabled,
			Mode:          entities.AutoVoteMode(m.AutoVoteMode),
			DefaultChoice: entities.VoteChoice(m.DefaultChoice),
		},
		Delegation: entities.Delegation{
			DelegatedTo: m.DelegatedTo,
			UpdatedAt:   derefTime(m.DelegationUpdated),
		},
		ReputationScore: m.ReputationScore,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
	fields := []struct {
		src []byte
		dst any
	}{
		{m.CustomRules, &prefs.CustomRules},
		{m.TrustedProposers, &prefs.TrustedProposers},
		{m.CategoryPreferences, &prefs.CategoryPreferences},
		{m.ReceivedFrom, &prefs.Delegation.ReceivedFrom},
		{m.Stats, &prefs.Stats},
		{m.Badges, &prefs.Badges},
	}
	for _, field := range fields {
		if err := decodeJSON(field.src, field.dst); err != nil {
			return entities.VotingPreferences{}, err
		}
	}
	return prefs, nil
}

type votingPowerModel struct {
	WalletAddress string  `gorm:"column:wallet_address;primaryKey"`
	Power         float64 `gorm:"column:power"`
}

func (votingPowerModel) TableName() string {
	return "dao_voting_power"
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	EntityID    string    `gorm:"column:entity_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "dao_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "dao_outbox"
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func derefTime(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}
