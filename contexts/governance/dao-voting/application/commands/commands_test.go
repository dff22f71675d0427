package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketdao/contexts/governance/dao-voting/adapters/memory"
	application "marketdao/contexts/governance/dao-voting/application"
	"marketdao/contexts/governance/dao-voting/domain/entities"
	domainerrors "marketdao/contexts/governance/dao-voting/domain/errors"
	"marketdao/contexts/governance/dao-voting/domain/policy"
	"marketdao/contexts/governance/dao-voting/ports"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingPower struct{}

func (failingPower) GetVotingPower(context.Context, string) (float64, bool, error) {
	return 0, false, errors.New("power rpc unavailable")
}

// flakyUoW fails the first n units of work with a version conflict.
type flakyUoW struct {
	inner    ports.UnitOfWork
	failures int
	calls    int
}

func (u *flakyUoW) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	u.calls++
	if u.calls <= u.failures {
		return domainerrors.ErrVersionConflict
	}
	return u.inner.WithinTx(ctx, fn)
}

// idempotencyFailTx rejects idempotency writes so the surrounding unit of
// work rolls back.
type idempotencyFailTx struct {
	ports.Tx
}

func (idempotencyFailTx) PutIdempotency(context.Context, ports.IdempotencyRecord) error {
	return errors.New("idempotency store unavailable")
}

type idempotencyFailUoW struct {
	inner ports.UnitOfWork
}

func (u idempotencyFailUoW) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	return u.inner.WithinTx(ctx, func(tx ports.Tx) error {
		return fn(idempotencyFailTx{Tx: tx})
	})
}

type fixture struct {
	store       *memory.Store
	clock       *testClock
	votes       VoteUseCase
	proposals   ProposalUseCase
	preferences PreferencesUseCase
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	retry := application.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
	return fixture{
		store: store,
		clock: clock,
		votes: VoteUseCase{
			UoW:         store,
			Proposals:   store,
			Preferences: store,
			Power:       store,
			Clock:       clock,
			IDGen:       store,
			Retry:       retry,
			FanoutLimit: 2,
		},
		proposals: ProposalUseCase{
			UoW:         store,
			Proposals:   store,
			Idempotency: store,
			Clock:       clock,
			IDGen:       store,
			Retry:       retry,
		},
		preferences: PreferencesUseCase{
			UoW:   store,
			Clock: clock,
			Retry: retry,
		},
	}
}

func (f fixture) openProposal(t *testing.T, quorum float64, threshold float64) string {
	t.Helper()
	ctx := context.Background()
	created, err := f.proposals.CreateProposal(ctx, CreateProposalCommand{
		IdempotencyKey: fmt.Sprintf("create-%v-%v", quorum, threshold),
		Title:          "Reduce platform fee",
		Category:       entities.CategoryFeature,
		ProposerUserID: "user-proposer",
		ProposerWallet: "0xPROPOSER",
		Quorum:         quorum,
		Threshold:      threshold,
		Impact:         entities.Impact{Cost: 40, Risk: entities.RiskLow},
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if _, err := f.proposals.OpenVoting(ctx, OpenVotingCommand{
		ProposalID: created.Proposal.ProposalID,
		ActorID:    "admin",
		Duration:   time.Hour,
	}); err != nil {
		t.Fatalf("open voting: %v", err)
	}
	return created.Proposal.ProposalID
}

func countEvents(types []string, eventType string) int {
	n := 0
	for _, t := range types {
		if t == eventType {
			n++
		}
	}
	return n
}

func TestCastVoteReplacesPriorVote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1, 50)

	first, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "user-1", WalletAddress: "0xAAA", Choice: entities.VoteChoiceYes,
	})
	if err != nil {
		t.Fatalf("first cast: %v", err)
	}
	if first.Replaced || first.Vote.Power != DefaultVotingPower {
		t.Fatalf("unexpected first cast result: %+v", first)
	}

	second, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "user-1", WalletAddress: "0xaaa", Choice: entities.VoteChoiceNo,
	})
	if err != nil {
		t.Fatalf("second cast: %v", err)
	}
	if !second.Replaced || second.Previous == nil || second.Previous.Choice != entities.VoteChoiceYes {
		t.Fatalf("expected replacement of yes vote, got %+v", second)
	}

	proposal, err := f.store.GetProposal(ctx, proposalID)
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if len(proposal.Votes) != 1 || proposal.Stats().NoVotes != 1 {
		t.Fatalf("expected a single no vote, got %+v", proposal.Votes)
	}

	prefs, found, err := f.store.GetPreferences(ctx, "user-1")
	if err != nil || !found {
		t.Fatalf("preferences missing: found=%v err=%v", found, err)
	}
	if prefs.Stats.TotalVotes != 1 || prefs.Stats.NoVotes != 1 || prefs.Stats.YesVotes != 0 {
		t.Fatalf("unexpected voter stats: %+v", prefs.Stats)
	}

	events := f.store.PendingEventTypes()
	if countEvents(events, "vote.cast") != 2 || countEvents(events, "proposal.opened") != 1 {
		t.Fatalf("unexpected outbox events: %v", events)
	}
}

func TestCastVoteValidationAndWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1, 50)

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "user-1", WalletAddress: "0x1", Choice: "maybe",
	}); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: "missing", UserID: "user-1", WalletAddress: "0x1", Choice: entities.VoteChoiceYes,
	}); !errors.Is(err, domainerrors.ErrProposalNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	f.clock.Advance(time.Hour)
	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "user-1", WalletAddress: "0x1", Choice: entities.VoteChoiceYes,
	}); !errors.Is(err, domainerrors.ErrVotingClosed) {
		t.Fatalf("expected voting closed at end date, got %v", err)
	}
}

func TestCastVotePowerSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1, 50)
	f.store.SetVotingPower("0xWHALE", 250)

	result, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "whale", WalletAddress: "0xwhale", Choice: entities.VoteChoiceYes,
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if result.Vote.Power != 250 || result.Stats.TotalPower != 250 {
		t.Fatalf("expected looked-up power 250, got %+v", result)
	}

	f.votes.Power = failingPower{}
	_, err = f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "user-2", WalletAddress: "0x2", Choice: entities.VoteChoiceNo,
	})
	if !errors.Is(err, domainerrors.ErrExternalDependency) {
		t.Fatalf("expected external dependency error, got %v", err)
	}
	proposal, _ := f.store.GetProposal(ctx, proposalID)
	if len(proposal.Votes) != 1 {
		t.Fatalf("failed power lookup must not record a vote, got %d votes", len(proposal.Votes))
	}
}

func TestCastVoteRetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1, 50)

	flaky := &flakyUoW{inner: f.store, failures: 2}
	f.votes.UoW = flaky
	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "user-1", WalletAddress: "0x1", Choice: entities.VoteChoiceYes,
	}); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.calls)
	}

	exhausted := &flakyUoW{inner: f.store, failures: 3}
	f.votes.UoW = exhausted
	_, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "user-2", WalletAddress: "0x2", Choice: entities.VoteChoiceYes,
	})
	if !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected conflict after exhausting retries, got %v", err)
	}
	if exhausted.calls != 3 {
		t.Fatalf("expected retry budget of 3, got %d", exhausted.calls)
	}
}

func TestDelegatedVote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1, 50)

	for _, account := range []struct{ user, wallet string }{{"alice", "0xA11CE"}, {"bob", "0xB0B"}} {
		if _, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
			UserID: account.user, WalletAddress: account.wallet,
		}); err != nil {
			t.Fatalf("seed preferences %s: %v", account.user, err)
		}
	}

	_, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "bob", WalletAddress: "0xB0B", Choice: entities.VoteChoiceYes, DelegatedFrom: "0xA11CE",
	})
	if !errors.Is(err, domainerrors.ErrDelegationNotGranted) {
		t.Fatalf("expected delegation not granted, got %v", err)
	}

	if _, err := f.preferences.SetDelegation(ctx, SetDelegationCommand{UserID: "alice", DelegateTo: "0xb0b"}); err != nil {
		t.Fatalf("set delegation: %v", err)
	}
	bob, _, _ := f.store.GetPreferences(ctx, "bob")
	if len(bob.Delegation.ReceivedFrom) != 1 {
		t.Fatalf("expected delegate to record the delegator, got %+v", bob.Delegation)
	}

	result, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "bob", WalletAddress: "0xB0B", Choice: entities.VoteChoiceYes, DelegatedFrom: "0xa11ce",
	})
	if err != nil {
		t.Fatalf("delegated cast: %v", err)
	}
	if result.Vote.OwnerWallet() != "0xA11CE" {
		t.Fatalf("expected vote owned by delegator, got %s", result.Vote.OwnerWallet())
	}

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "bob", WalletAddress: "0xB0B", Choice: entities.VoteChoiceNo,
	}); err != nil {
		t.Fatalf("own cast: %v", err)
	}
	proposal, _ := f.store.GetProposal(ctx, proposalID)
	if len(proposal.Votes) != 2 {
		t.Fatalf("delegated and own votes must coexist, got %d", len(proposal.Votes))
	}
	alice, _, _ := f.store.GetPreferences(ctx, "alice")
	if alice.Stats.TotalVotes != 1 {
		t.Fatalf("delegated vote must count for the delegator, got %+v", alice.Stats)
	}

	if _, err := f.preferences.SetDelegation(ctx, SetDelegationCommand{UserID: "alice", DelegateTo: "0xA11CE"}); !errors.Is(err, domainerrors.ErrSelfDelegation) {
		t.Fatalf("expected self delegation error, got %v", err)
	}
	if _, err := f.preferences.SetDelegation(ctx, SetDelegationCommand{UserID: "alice"}); err != nil {
		t.Fatalf("revoke delegation: %v", err)
	}
	bob, _, _ = f.store.GetPreferences(ctx, "bob")
	if len(bob.Delegation.ReceivedFrom) != 0 {
		t.Fatalf("revocation must clear the delegate side, got %+v", bob.Delegation)
	}
}

func TestAutoVoteRespectsManualVotesAndFlagsConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1, 50)

	if _, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
		UserID:        "user-1",
		WalletAddress: "0x1",
		AutoVote: &entities.AutoVoteSettings{
			Enabled: true, Mode: entities.AutoVoteModeAutoVote, DefaultChoice: entities.VoteChoiceYes,
		},
	}); err != nil {
		t.Fatalf("update preferences: %v", err)
	}

	auto, err := f.votes.AutoVote(ctx, AutoVoteCommand{ProposalID: proposalID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("auto vote: %v", err)
	}
	if auto.Vote == nil || !auto.Vote.IsAutoVote || auto.Decision.Source != policy.SourceGlobalDefault {
		t.Fatalf("expected auto vote from global default, got %+v", auto)
	}

	if _, err := f.votes.CastVote(ctx, CastVoteCommand{
		ProposalID: proposalID, UserID: "user-1", WalletAddress: "0x1", Choice: entities.VoteChoiceNo,
	}); err != nil {
		t.Fatalf("manual cast: %v", err)
	}
	if got := countEvents(f.store.PendingEventTypes(), "vote.conflict_detected"); got != 1 {
		t.Fatalf("expected one conflict event, got %d", got)
	}

	again, err := f.votes.AutoVote(ctx, AutoVoteCommand{ProposalID: proposalID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("second auto vote: %v", err)
	}
	if again.Vote != nil || again.Skipped == "" {
		t.Fatalf("auto vote must not override a manual vote, got %+v", again)
	}
	proposal, _ := f.store.GetProposal(ctx, proposalID)
	if proposal.Votes[0].Choice != entities.VoteChoiceNo || proposal.Votes[0].IsAutoVote {
		t.Fatalf("manual vote was replaced: %+v", proposal.Votes[0])
	}
	prefs, _, _ := f.store.GetPreferences(ctx, "user-1")
	if prefs.Stats.TotalVotes != 1 || prefs.Stats.AutoVotes != 1 {
		t.Fatalf("replacement must not add a vote: %+v", prefs.Stats)
	}
}

func TestAutoVoteNotifyOnlyEmitsNotification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1, 50)

	if _, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
		UserID:        "user-1",
		WalletAddress: "0x1",
		AutoVote:      &entities.AutoVoteSettings{Enabled: true, Mode: entities.AutoVoteModeNotifyOnly},
	}); err != nil {
		t.Fatalf("update preferences: %v", err)
	}
	result, err := f.votes.AutoVote(ctx, AutoVoteCommand{ProposalID: proposalID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("auto vote: %v", err)
	}
	if result.Decision.ShouldVote || result.Vote != nil {
		t.Fatalf("notify_only must not vote, got %+v", result)
	}
	if got := countEvents(f.store.PendingEventTypes(), "vote.auto_notify"); got != 1 {
		t.Fatalf("expected one notify event, got %d", got)
	}
}

func TestAutoVoteAllIsolatesAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1, 50)

	for i := 1; i <= 3; i++ {
		if _, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
			UserID:        fmt.Sprintf("auto-%d", i),
			WalletAddress: fmt.Sprintf("0xA%d", i),
			AutoVote: &entities.AutoVoteSettings{
				Enabled: true, Mode: entities.AutoVoteModeAutoVote, DefaultChoice: entities.VoteChoiceYes,
			},
		}); err != nil {
			t.Fatalf("seed auto account: %v", err)
		}
	}
	if _, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
		UserID:        "watcher",
		WalletAddress: "0xW",
		AutoVote:      &entities.AutoVoteSettings{Enabled: true, Mode: entities.AutoVoteModeNotifyOnly},
	}); err != nil {
		t.Fatalf("seed notify account: %v", err)
	}
	if _, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
		UserID:        "disabled",
		WalletAddress: "0xD",
	}); err != nil {
		t.Fatalf("seed disabled account: %v", err)
	}

	result, err := f.votes.AutoVoteAll(ctx, proposalID)
	if err != nil {
		t.Fatalf("fan-out: %v", err)
	}
	if result.Evaluated != 4 || result.Voted != 3 || result.Failed != 0 {
		t.Fatalf("unexpected fan-out result: %+v", result)
	}
	proposal, _ := f.store.GetProposal(ctx, proposalID)
	if proposal.Stats().YesVotes != 3 {
		t.Fatalf("expected 3 yes votes, got %+v", proposal.Stats())
	}
}

func TestAutoVoteAllWaitsForWindowAndRunsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.proposals.CreateProposal(ctx, CreateProposalCommand{
		IdempotencyKey: "scheduled",
		Title:          "Scheduled vote",
		Category:       entities.CategoryFeature,
		ProposerUserID: "user-proposer",
		ProposerWallet: "0xPROPOSER",
		Quorum:         1,
		Threshold:      50,
		Impact:         entities.Impact{Risk: entities.RiskLow},
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	proposalID := created.Proposal.ProposalID
	if _, err := f.proposals.OpenVoting(ctx, OpenVotingCommand{
		ProposalID: proposalID,
		ActorID:    "admin",
		StartDate:  f.clock.Now().Add(time.Hour),
		Duration:   time.Hour,
	}); err != nil {
		t.Fatalf("open voting: %v", err)
	}
	if _, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
		UserID:        "watcher",
		WalletAddress: "0xW",
		AutoVote:      &entities.AutoVoteSettings{Enabled: true, Mode: entities.AutoVoteModeNotifyOnly},
	}); err != nil {
		t.Fatalf("seed notify account: %v", err)
	}

	if _, err := f.votes.AutoVoteAll(ctx, proposalID); !errors.Is(err, domainerrors.ErrVotingNotStarted) {
		t.Fatalf("expected voting not started, got %v", err)
	}

	f.clock.Advance(time.Hour)
	first, err := f.votes.AutoVoteAll(ctx, proposalID)
	if err != nil || first.Evaluated != 1 || first.AlreadyRan {
		t.Fatalf("expected one evaluated account, got %+v (%v)", first, err)
	}
	second, err := f.votes.AutoVoteAll(ctx, proposalID)
	if err != nil || !second.AlreadyRan || second.Evaluated != 0 {
		t.Fatalf("expected a no-op rerun, got %+v (%v)", second, err)
	}
	events := f.store.PendingEventTypes()
	if countEvents(events, "vote.auto_notify") != 1 || countEvents(events, "proposal.autovote_completed") != 1 {
		t.Fatalf("expected one notification and one completion event, got %v", events)
	}
}

func TestProposalLifecycleOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposalID := f.openProposal(t, 1000, 51)
	f.store.SetVotingPower("0xY", 700)
	f.store.SetVotingPower("0xN", 500)

	for _, cast := range []CastVoteCommand{
		{ProposalID: proposalID, UserID: "yes-voter", WalletAddress: "0xY", Choice: entities.VoteChoiceYes},
		{ProposalID: proposalID, UserID: "no-voter", WalletAddress: "0xN", Choice: entities.VoteChoiceNo},
	} {
		if _, err := f.votes.CastVote(ctx, cast); err != nil {
			t.Fatalf("cast: %v", err)
		}
	}

	if _, err := f.proposals.FinalizeProposal(ctx, FinalizeProposalCommand{ProposalID: proposalID}); !errors.Is(err, domainerrors.ErrVotingStillOpen) {
		t.Fatalf("expected still open, got %v", err)
	}
	if _, err := f.proposals.ExecuteProposal(ctx, ExecuteProposalCommand{ProposalID: proposalID, ExecutorID: "ops"}); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("voting proposal must not execute, got %v", err)
	}

	f.clock.Advance(time.Hour)
	finalized, err := f.proposals.FinalizeProposal(ctx, FinalizeProposalCommand{ProposalID: proposalID})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.Status != entities.ProposalStatusPassed {
		t.Fatalf("expected passed at 58.33%% yes, got %s", finalized.Status)
	}

	executed, err := f.proposals.ExecuteProposal(ctx, ExecuteProposalCommand{
		ProposalID: proposalID, ExecutorID: "ops", ExternalReference: "0xdeadbeef",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed.Execution == nil || executed.Execution.ImplementationStatus != entities.ImplementationPending {
		t.Fatalf("unexpected execution: %+v", executed.Execution)
	}

	events := f.store.PendingEventTypes()
	for _, eventType := range []string{"proposal.opened", "proposal.finalized", "proposal.executed"} {
		if countEvents(events, eventType) != 1 {
			t.Fatalf("expected one %s event, got %v", eventType, events)
		}
	}
}

func TestCreateProposalIdempotency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cmd := CreateProposalCommand{
		IdempotencyKey: "idem-1",
		Title:          "Add category",
		Category:       entities.CategoryGovernance,
		ProposerUserID: "user-1",
		ProposerWallet: "0x1",
		Quorum:         10,
		Threshold:      60,
		Impact:         entities.Impact{Risk: entities.RiskMedium},
	}
	first, err := f.proposals.CreateProposal(ctx, cmd)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	replay, err := f.proposals.CreateProposal(ctx, cmd)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.Proposal.ProposalID != first.Proposal.ProposalID {
		t.Fatalf("expected replay of %s, got %+v", first.Proposal.ProposalID, replay)
	}

	cmd.Title = "Different"
	if _, err := f.proposals.CreateProposal(ctx, cmd); !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	cmd.IdempotencyKey = ""
	if _, err := f.proposals.CreateProposal(ctx, cmd); !errors.Is(err, domainerrors.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected key required, got %v", err)
	}
	cmd.IdempotencyKey = "idem-2"
	cmd.Threshold = 120
	if _, err := f.proposals.CreateProposal(ctx, cmd); !errors.Is(err, domainerrors.ErrInvalidProposalInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateProposalRollsBackWhenIdempotencyWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cmd := CreateProposalCommand{
		IdempotencyKey: "idem-rollback",
		Title:          "Lower listing fee",
		Category:       entities.CategoryFeature,
		ProposerUserID: "user-1",
		ProposerWallet: "0x1",
		Quorum:         10,
		Threshold:      60,
		Impact:         entities.Impact{Risk: entities.RiskLow},
	}
	failing := f.proposals
	failing.UoW = idempotencyFailUoW{inner: f.store}
	if _, err := failing.CreateProposal(ctx, cmd); err == nil {
		t.Fatalf("expected idempotency write failure")
	}
	drafts, err := f.store.ListProposalsByStatus(ctx, entities.ProposalStatusDraft, 10)
	if err != nil {
		t.Fatalf("list drafts: %v", err)
	}
	if len(drafts) != 0 {
		t.Fatalf("rolled back create must not persist a proposal, got %d", len(drafts))
	}

	created, err := f.proposals.CreateProposal(ctx, cmd)
	if err != nil {
		t.Fatalf("retry create: %v", err)
	}
	if created.Replayed {
		t.Fatalf("retry after rollback must create, not replay")
	}
	replay, err := f.proposals.CreateProposal(ctx, cmd)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.Proposal.ProposalID != created.Proposal.ProposalID {
		t.Fatalf("expected replay of %s, got %+v", created.Proposal.ProposalID, replay)
	}
}

func TestCreateProposalRequiresKnownRisk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i, risk := range []entities.RiskLevel{"", "  ", "catastrophic"} {
		_, err := f.proposals.CreateProposal(ctx, CreateProposalCommand{
			IdempotencyKey: fmt.Sprintf("risk-%d", i),
			Title:          "Unstated risk",
			Category:       entities.CategoryFeature,
			ProposerUserID: "user-1",
			ProposerWallet: "0x1",
			Quorum:         1,
			Threshold:      50,
			Impact:         entities.Impact{Risk: risk},
		})
		if !errors.Is(err, domainerrors.ErrInvalidProposalInput) {
			t.Fatalf("risk %q: expected invalid input, got %v", risk, err)
		}
	}
	if got := len(f.store.PendingEventTypes()); got != 0 {
		t.Fatalf("rejected proposals must not emit events, got %d", got)
	}

	created, err := f.proposals.CreateProposal(ctx, CreateProposalCommand{
		IdempotencyKey: "risk-ok",
		Title:          "Stated risk",
		Category:       entities.CategoryFeature,
		ProposerUserID: "user-1",
		ProposerWallet: "0x1",
		Quorum:         1,
		Threshold:      50,
		Impact:         entities.Impact{Risk: " HIGH "},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Proposal.Impact.Risk != entities.RiskHigh {
		t.Fatalf("expected normalized risk high, got %q", created.Proposal.Impact.Risk)
	}
}

func TestUpdatePreferencesValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	badRules := []entities.CustomRule{{Name: "r", Condition: "if_moon_full", Action: entities.RuleActionYes, IsActive: true}}
	if _, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
		UserID: "user-1", WalletAddress: "0x1", CustomRules: &badRules,
	}); !errors.Is(err, domainerrors.ErrInvalidPreferences) {
		t.Fatalf("expected invalid preferences, got %v", err)
	}

	rules := []entities.CustomRule{
		{Name: "cheap", Condition: entities.ConditionIfCostBelow, Threshold: 100, Action: entities.RuleActionYes, IsActive: true},
	}
	prefs, err := f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{
		UserID: "user-1", WalletAddress: "0x1", CustomRules: &rules,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if prefs.Version != 1 || prefs.AutoVote.Mode != entities.AutoVoteModeNotifyOnly {
		t.Fatalf("expected notify-only defaults at version 1, got %+v", prefs)
	}

	settings := entities.AutoVoteSettings{Enabled: true, Mode: entities.AutoVoteModeCustomRules}
	prefs, err = f.preferences.UpdatePreferences(ctx, UpdatePreferencesCommand{UserID: "user-1", AutoVote: &settings})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if prefs.Version != 2 || len(prefs.CustomRules) != 1 || prefs.AutoVote.DefaultChoice != entities.VoteChoiceAbstain {
		t.Fatalf("partial update must keep rules and default abstain, got %+v", prefs)
	}
}
