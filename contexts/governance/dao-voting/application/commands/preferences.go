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

// UpdatePreferencesCommand replaces the sections that are non-nil. Counters,
// reputation, badges and delegation are never written through here.
type UpdatePreferencesCommand struct {
	UserID              string
	WalletAddress       string
	AutoVote            *entities.AutoVoteSettings
	CustomRules         *[]entities.CustomRule
	TrustedProposers    *[]entities.TrustedProposer
	CategoryPreferences *[]entities.CategoryPreference
}

// SetDelegationCommand points the account's vote at DelegateTo. An empty
// DelegateTo revokes the current delegation.
type SetDelegationCommand struct {
	UserID     string
	DelegateTo string
}

type PreferencesUseCase struct {
	UoW    ports.UnitOfWork
	Clock  ports.Clock
	Retry  application.RetryPolicy
	Logger *slog.Logger
}

func (uc PreferencesUseCase) UpdatePreferences(ctx context.Context, cmd UpdatePreferencesCommand) (entities.VotingPreferences, error) {
	logger := application.ResolveLogger(uc.Logger)
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	cmd.WalletAddress = strings.TrimSpace(cmd.WalletAddress)
	if cmd.UserID == "" {
		return entities.VotingPreferences{}, domainerrors.ErrInvalidPreferences
	}
	if err := validatePreferences(cmd); err != nil {
		logger.Warn("preferences validation failed",
			"event", "dao_preferences_validation_failed",
			"module", votingModule,
			"layer", "application",
			"user_id", cmd.UserID,
			"error", err.Error(),
		)
		return entities.VotingPreferences{}, err
	}

	var updated entities.VotingPreferences
	err := uc.Retry.OnConflict(ctx, func() error {
		return uc.UoW.WithinTx(ctx, func(tx ports.Tx) error {
			now := uc.now()
			prefs, found, err := tx.GetPreferences(ctx, cmd.UserID)
			if err != nil {
				return err
			}
			if !found {
				if cmd.WalletAddress == "" {
					return domainerrors.ErrInvalidPreferences
				}
				prefs = entities.NewVotingPreferences(cmd.UserID, cmd.WalletAddress, now)
			}
			expected := prefs.Version
			if cmd.AutoVote != nil {
				settings := *cmd.AutoVote
				if !settings.DefaultChoice.Valid() {
					settings.DefaultChoice = entities.VoteChoiceAbstain
				}
				prefs.AutoVote = settings
			}
			if cmd.CustomRules != nil {
				prefs.CustomRules = append([]entities.CustomRule(nil), (*cmd.CustomRules)...)
			}
			if cmd.TrustedProposers != nil {
				trusted := make([]entities.TrustedProposer, 0, len(*cmd.TrustedProposers))
				for _, proposer := range *cmd.TrustedProposers {
					if proposer.AddedAt.IsZero() {
						proposer.AddedAt = now
					}
					trusted = append(trusted, proposer)
				}
				prefs.TrustedProposers = trusted
			}
			if cmd.CategoryPreferences != nil {
				prefs.CategoryPreferences = append([]entities.CategoryPreference(nil), (*cmd.CategoryPreferences)...)
			}
			prefs.UpdatedAt = now
			if err := tx.SavePreferences(ctx, prefs, expected); err != nil {
				return err
			}
			prefs.Version = expected + 1
			updated = prefs
			return nil
		})
	})
	if err != nil {
		return entities.VotingPreferences{}, err
	}

	logger.Info("preferences updated",
		"event", "dao_preferences_updated",
		"module", votingModule,
		"layer", "application",
		"user_id", updated.UserID,
		"auto_vote_enabled", updated.AutoVote.Enabled,
		"mode", string(updated.AutoVote.Mode),
		"custom_rules", len(updated.CustomRules),
	)
	return updated, nil
}

func validatePreferences(cmd UpdatePreferencesCommand) error {
	if cmd.AutoVote != nil {
		if !cmd.AutoVote.Mode.Valid() {
			return domainerrors.ErrInvalidPreferences
		}
		if cmd.AutoVote.DefaultChoice != "" && !cmd.AutoVote.DefaultChoice.Valid() {
			return domainerrors.ErrInvalidPreferences
		}
	}
	if cmd.CustomRules != nil {
		for _, rule := range *cmd.CustomRules {
			if strings.TrimSpace(rule.Name) == "" || !rule.Action.Valid() {
				return domainerrors.ErrInvalidPreferences
			}
			if rule.Category != "" && !rule.Category.Valid() {
				return domainerrors.ErrInvalidPreferences
			}
			switch rule.Condition {
			case entities.ConditionAlways, entities.ConditionIfRiskLow:
			case entities.ConditionIfCostBelow:
				if rule.Threshold < 0 {
					return domainerrors.ErrInvalidPreferences
				}
			case entities.ConditionIfTrustedProposer:
				if strings.TrimSpace(rule.Proposer) == "" {
					return domainerrors.ErrInvalidPreferences
				}
			default:
				return domainerrors.ErrInvalidPreferences
			}
		}
	}
	if cmd.TrustedProposers != nil {
		for _, proposer := range *cmd.TrustedProposers {
			if strings.TrimSpace(proposer.WalletAddress) == "" {
				return domainerrors.ErrInvalidPreferences
			}
		}
	}
	if cmd.CategoryPreferences != nil {
		for _, pref := range *cmd.CategoryPreferences {
			if !pref.Category.Valid() || (pref.DefaultChoice != "" && !pref.DefaultChoice.Valid()) {
				return domainerrors.ErrInvalidPreferences
			}
		}
	}
	return nil
}

// SetDelegation updates both sides of the delegation edge in one unit of work.
func (uc PreferencesUseCase) SetDelegation(ctx context.Context, cmd SetDelegationCommand) (entities.VotingPreferences, error) {
	logger := application.ResolveLogger(uc.Logger)
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	cmd.DelegateTo = strings.TrimSpace(cmd.DelegateTo)
	if cmd.UserID == "" {
		return entities.VotingPreferences{}, domainerrors.ErrInvalidPreferences
	}

	var updated entities.VotingPreferences
	err := uc.Retry.OnConflict(ctx, func() error {
		return uc.UoW.WithinTx(ctx, func(tx ports.Tx) error {
			now := uc.now()
			prefs, found, err := tx.GetPreferences(ctx, cmd.UserID)
			if err != nil {
				return err
			}
			if !found {
				return domainerrors.ErrPreferencesNotFound
			}
			if cmd.DelegateTo != "" && entities.NormalizeWallet(cmd.DelegateTo) == entities.NormalizeWallet(prefs.WalletAddress) {
				return domainerrors.ErrSelfDelegation
			}
			expected := prefs.Version
			current := prefs.Delegation.DelegatedTo

			if current != "" && entities.NormalizeWallet(current) != entities.NormalizeWallet(cmd.DelegateTo) {
				previous, found, err := tx.GetPreferencesByWallet(ctx, current)
				if err != nil {
					return err
				}
				if found {
					version := previous.Version
					previous.RemoveDelegator(prefs.WalletAddress)
					previous.UpdatedAt = now
					if err := tx.SavePreferences(ctx, previous, version); err != nil {
						return err
					}
				}
			}
			if cmd.DelegateTo != "" {
				delegate, found, err := tx.GetPreferencesByWallet(ctx, cmd.DelegateTo)
				if err != nil {
					return err
				}
				if !found {
					return domainerrors.ErrPreferencesNotFound
				}
				version := delegate.Version
				delegate.AddDelegator(prefs.WalletAddress)
				delegate.UpdatedAt = now
				if err := tx.SavePreferences(ctx, delegate, version); err != nil {
					return err
				}
				cmd.DelegateTo = delegate.WalletAddress
			}

			prefs.Delegation.DelegatedTo = cmd.DelegateTo
			prefs.Delegation.UpdatedAt = now
			prefs.UpdatedAt = now
			if err := tx.SavePreferences(ctx, prefs, expected); err != nil {
				return err
			}
			prefs.Version = expected + 1
			updated = prefs
			return nil
		})
	})
	if err != nil {
		logger.Warn("delegation update failed",
			"event", "dao_delegation_update_failed",
			"module", votingModule,
			"layer", "application",
			"user_id", cmd.UserID,
			"delegate_to", cmd.DelegateTo,
			"error", err.Error(),
		)
		return entities.VotingPreferences{}, err
	}

	logger.Info("delegation updated",
		"event", "dao_delegation_updated",
		"module", votingModule,
		"layer", "application",
		"user_id", updated.UserID,
		"delegate_to", updated.Delegation.DelegatedTo,
	)
	return updated, nil
}

func (uc PreferencesUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
