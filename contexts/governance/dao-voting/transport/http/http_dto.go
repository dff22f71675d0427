package http

import "time"

type CastVoteRequest struct {
	ProposalID    string `json:"proposal_id"`
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	Choice        string `json:"choice"`
	Reasoning     string `json:"reasoning,omitempty"`
	DelegatedFrom string `json:"delegated_from,omitempty"`
}

type AutoVoteRequest struct {
	ProposalID    string `json:"proposal_id"`
	UserID        string `json:"user_id,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	All           bool   `json:"all,omitempty"`
}

type VoteDTO struct {
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	Choice        string    `json:"choice"`
	Power         float64   `json:"power"`
	CastAt        time.Time `json:"cast_at"`
	IsAutoVote    bool      `json:"is_auto_vote"`
	DelegatedFrom string    `json:"delegated_from,omitempty"`
	Reasoning     string    `json:"reasoning,omitempty"`
}

type VoteStatsDTO struct {
	TotalVotes    int     `json:"total_votes"`
	YesVotes      int     `json:"yes_votes"`
	NoVotes       int     `json:"no_votes"`
	AbstainVotes  int     `json:"abstain_votes"`
	TotalPower    float64 `json:"total_power"`
	YesPower      float64 `json:"yes_power"`
	NoPower       float64 `json:"no_power"`
	AbstainPower  float64 `json:"abstain_power"`
	YesPercentage float64 `json:"yes_percentage"`
}

type CastVoteResponse struct {
	Vote           VoteDTO      `json:"vote"`
	Replaced       bool         `json:"replaced"`
	PreviousChoice string       `json:"previous_choice,omitempty"`
	Stats          VoteStatsDTO `json:"stats"`
}

type AutoVoteResponse struct {
	ShouldVote bool     `json:"should_vote"`
	Choice     string   `json:"choice,omitempty"`
	Reasoning  string   `json:"reasoning"`
	Source     string   `json:"source"`
	Skipped    string   `json:"skipped,omitempty"`
	Vote       *VoteDTO `json:"vote,omitempty"`
}

type AutoVoteFanoutResponse struct {
	ProposalID string `json:"proposal_id"`
	Evaluated  int    `json:"evaluated"`
	Voted      int    `json:"voted"`
	Failed     int    `json:"failed"`
	AlreadyRan bool   `json:"already_ran,omitempty"`
}

type ResultsResponse struct {
	ProposalID       string       `json:"proposal_id"`
	Status           string       `json:"status"`
	Quorum           float64      `json:"quorum"`
	Threshold        float64      `json:"threshold"`
	Stats            VoteStatsDTO `json:"stats"`
	QuorumMet        bool         `json:"quorum_met"`
	CheckPassed      bool         `json:"check_passed"`
	VotingOpen       bool         `json:"voting_open"`
	ProjectedOutcome string       `json:"projected_outcome,omitempty"`
}

type ImpactDTO struct {
	Cost          float64 `json:"cost"`
	Risk          string  `json:"risk"`
	AffectedUsers int     `json:"affected_users"`
}

type CreateProposalRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	ProposerUserID string    `json:"proposer_user_id"`
	ProposerWallet string    `json:"proposer_wallet"`
	Quorum         float64   `json:"quorum"`
	Threshold      float64   `json:"threshold"`
	Impact         ImpactDTO `json:"impact"`
}

type OpenVotingRequest struct {
	ActorID         string    `json:"actor_id"`
	StartDate       time.Time `json:"start_date,omitempty"`
	EndDate         time.Time `json:"end_date,omitempty"`
	DurationSeconds int64     `json:"duration_seconds,omitempty"`
}

type FinalizeProposalRequest struct {
	ActorID string `json:"actor_id"`
}

type ExecuteProposalRequest struct {
	ExecutorID        string `json:"executor_id"`
	ExternalReference string `json:"external_reference"`
}

type ProposalEventDTO struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Actor string    `json:"actor"`
	Note  string    `json:"note"`
	At    time.Time `json:"at"`
}

type ExecutionDTO struct {
	ExecutedBy           string    `json:"executed_by"`
	ExternalReference    string    `json:"external_reference"`
	ExecutedAt           time.Time `json:"executed_at"`
	ImplementationStatus string    `json:"implementation_status"`
}

type ProposalResponse struct {
	ProposalID       string             `json:"proposal_id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Category         string             `json:"category"`
	Status           string             `json:"status"`
	ProposerUserID   string             `json:"proposer_user_id"`
	ProposerWallet   string             `json:"proposer_wallet"`
	StartDate        *time.Time         `json:"start_date,omitempty"`
	EndDate          *time.Time         `json:"end_date,omitempty"`
	Quorum           float64            `json:"quorum"`
	Threshold        float64            `json:"threshold"`
	Impact           ImpactDTO          `json:"impact"`
	Votes            []VoteDTO          `json:"votes"`
	Stats            VoteStatsDTO       `json:"stats"`
	Execution        *ExecutionDTO      `json:"execution,omitempty"`
	Timeline         []ProposalEventDTO `json:"timeline"`
	AutoVoteFanoutAt *time.Time         `json:"auto_vote_fanout_at,omitempty"`
	Version          int64              `json:"version"`
	Replayed         bool               `json:"replayed,omitempty"`
}

type AutoVoteSettingsDTO struct {
	Enabled       bool   `json:"enabled"`
	Mode          string `json:"mode"`
	DefaultChoice string `json:"default_choice"`
}

type CustomRuleDTO struct {
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	Proposer  string  `json:"proposer,omitempty"`
	Condition string  `json:"condition"`
	Threshold float64 `json:"threshold,omitempty"`
	Action    string  `json:"action"`
	IsActive  bool    `json:"is_active"`
}

type TrustedProposerDTO struct {
	WalletAddress string    `json:"wallet_address"`
	Name          string    `json:"name,omitempty"`
	AutoVote      bool      `json:"auto_vote"`
	AddedAt       time.Time `json:"added_at,omitempty"`
}

type CategoryPreferenceDTO struct {
	Category      string `json:"category"`
	AutoVote      bool   `json:"auto_vote"`
	DefaultChoice string `json:"default_choice"`
}

type UpdatePreferencesRequest struct {
	WalletAddress       string                   `json:"wallet_address,omitempty"`
	AutoVote            *AutoVoteSettingsDTO     `json:"auto_vote,omitempty"`
	CustomRules         *[]CustomRuleDTO         `json:"custom_rules,omitempty"`
	TrustedProposers    *[]TrustedProposerDTO    `json:"trusted_proposers,omitempty"`
	CategoryPreferences *[]CategoryPreferenceDTO `json:"category_preferences,omitempty"`
}

type SetDelegationRequest struct {
	DelegateTo string `json:"delegate_to"`
}

type VotingStatsDTO struct {
	TotalVotes   int        `json:"total_votes"`
	ManualVotes  int        `json:"manual_votes"`
	AutoVotes    int        `json:"auto_votes"`
	YesVotes     int        `json:"yes_votes"`
	NoVotes      int        `json:"no_votes"`
	AbstainVotes int        `json:"abstain_votes"`
	LastVotedAt  *time.Time `json:"last_voted_at,omitempty"`
}

type DelegationDTO struct {
	DelegatedTo  string   `json:"delegated_to,omitempty"`
	ReceivedFrom []string `json:"received_from"`
}

type PreferencesResponse struct {
	UserID              string                  `json:"user_id"`
	WalletAddress       string                  `json:"wallet_address"`
	AutoVote            AutoVoteSettingsDTO     `json:"auto_vote"`
	CustomRules         []CustomRuleDTO         `json:"custom_rules"`
	TrustedProposers    []TrustedProposerDTO    `json:"trusted_proposers"`
	CategoryPreferences []CategoryPreferenceDTO `json:"category_preferences"`
	Delegation          DelegationDTO           `json:"delegation"`
	Stats               VotingStatsDTO          `json:"stats"`
	ReputationScore     float64                 `json:"reputation_score"`
	Badges              []string                `json:"badges"`
	Version             int64                   `json:"version"`
}
