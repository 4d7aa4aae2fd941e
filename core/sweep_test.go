package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_RunSweepRevokesExpiredEntitlement(t *testing.T) {
	ctx := context.Background()
	clk := newMovableClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemoryEntitlementStore()
	events := newMemoryEventStore()
	revoker := &stubRevoker{}
	notifier := newRecordingNotifier()
	svc := newTestService(t, clk.Now,
		WithEntitlementStore(store),
		WithEventStore(events),
		WithInviteIssuer(&stubIssuer{}),
		WithMembershipRevoker(revoker),
		WithNotifier(notifier),
	)

	granted, err := svc.Grant(ctx, GrantRequest{
		ActorID: testOperatorID, UserID: 42, ChannelID: "-100777", Duration: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	// Still inside the window: nothing to do.
	clk.Advance(23 * time.Hour)
	report, err := svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep at T0+23h: %v", err)
	}
	if report.Scanned != 0 || revoker.callCount() != 0 {
		t.Fatalf("expected untouched entitlement before expiry, got %+v", report)
	}

	// Past the window: removed, deactivated, notified once.
	clk.Advance(2 * time.Hour)
	report, err = svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep at T0+25h: %v", err)
	}
	if report.Scanned != 1 || report.Revoked != 1 || report.Skipped != 0 || report.Transient != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	current, err := store.Get(ctx, 42, "-100777")
	if err != nil {
		t.Fatalf("load entitlement: %v", err)
	}
	if current.Active {
		t.Fatalf("expected entitlement deactivated")
	}
	if sent := notifier.sentTo(42); len(sent) != 2 {
		t.Fatalf("expected grant plus exactly one expiry notification, got %v", sent)
	}
	types := events.typesFor(granted.Entitlement.ID)
	if len(types) != 2 || types[1] != EntitlementEventRevoked {
		t.Fatalf("expected granted then revoked events, got %v", types)
	}

	// Sweep converges: a repeat cycle finds nothing.
	report, err = svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("repeat sweep: %v", err)
	}
	if report.Scanned != 0 || revoker.callCount() != 1 {
		t.Fatalf("expected no further removal attempts, got %+v after %d calls", report, revoker.callCount())
	}
}

func TestService_RunSweepTreatsMissingChannelAsTerminal(t *testing.T) {
	ctx := context.Background()
	clk := newMovableClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemoryEntitlementStore()
	events := newMemoryEventStore()
	revoker := &stubRevoker{}
	revoker.script(RemovalAlreadyGone, nil)
	notifier := newRecordingNotifier()
	svc := newTestService(t, clk.Now,
		WithEntitlementStore(store),
		WithEventStore(events),
		WithInviteIssuer(&stubIssuer{}),
		WithMembershipRevoker(revoker),
		WithNotifier(notifier),
	)

	granted, err := svc.Grant(ctx, GrantRequest{
		ActorID: testOperatorID, UserID: 42, ChannelID: "-100777", Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	clk.Advance(2 * time.Hour)
	report, err := svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Skipped != 1 || report.Revoked != 0 || report.Transient != 0 {
		t.Fatalf("expected terminal skip, got %+v", report)
	}
	current, err := store.Get(ctx, 42, "-100777")
	if err != nil {
		t.Fatalf("load entitlement: %v", err)
	}
	if current.Active {
		t.Fatalf("expected entitlement deactivated without retry")
	}
	if sent := notifier.sentTo(42); len(sent) != 1 {
		t.Fatalf("expected no expiry notification for a vanished channel, got %v", sent)
	}
	types := events.typesFor(granted.Entitlement.ID)
	if len(types) != 2 || types[1] != EntitlementEventRevokeSkipped {
		t.Fatalf("expected revoke_skipped event, got %v", types)
	}

	// Terminal means terminal: no second removal attempt.
	if report, err = svc.RunSweep(ctx); err != nil || report.Scanned != 0 {
		t.Fatalf("expected converged sweep, got %+v err=%v", report, err)
	}
}

func TestService_RunSweepRetriesTransientFailureNextCycle(t *testing.T) {
	ctx := context.Background()
	clk := newMovableClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemoryEntitlementStore()
	events := newMemoryEventStore()
	revoker := &stubRevoker{}
	revoker.script("", errors.New("telegram: 429 too many requests"))
	svc := newTestService(t, clk.Now,
		WithEntitlementStore(store),
		WithEventStore(events),
		WithInviteIssuer(&stubIssuer{}),
		WithMembershipRevoker(revoker),
		WithNotifier(newRecordingNotifier()),
	)

	granted, err := svc.Grant(ctx, GrantRequest{
		ActorID: testOperatorID, UserID: 42, ChannelID: "-100777", Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	clk.Advance(2 * time.Hour)
	report, err := svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep with transient failure: %v", err)
	}
	if report.Transient != 1 || report.Revoked != 0 {
		t.Fatalf("expected transient outcome, got %+v", report)
	}
	current, err := store.Get(ctx, 42, "-100777")
	if err != nil {
		t.Fatalf("load entitlement: %v", err)
	}
	if !current.Active {
		t.Fatalf("expected entitlement left active for retry")
	}

	// The next cycle re-derives the expired set and succeeds.
	report, err = svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	if report.Revoked != 1 || report.Transient != 0 {
		t.Fatalf("expected successful retry, got %+v", report)
	}
	if revoker.callCount() != 2 {
		t.Fatalf("expected one removal attempt per cycle, got %d", revoker.callCount())
	}
	types := events.typesFor(granted.Entitlement.ID)
	if len(types) != 3 || types[1] != EntitlementEventRevokeFailed || types[2] != EntitlementEventRevoked {
		t.Fatalf("expected granted, revoke_failed, revoked, got %v", types)
	}
}

// deactivateFailingStore fails a fixed number of Deactivate calls before
// delegating to the in-memory store.
type deactivateFailingStore struct {
	*memoryEntitlementStore
	failures int
}

func (s *deactivateFailingStore) Deactivate(ctx context.Context, key EntitlementKey) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("storage offline")
	}
	return s.memoryEntitlementStore.Deactivate(ctx, key)
}

func TestService_RunSweepRecordsDeactivateFailureAndRetries(t *testing.T) {
	ctx := context.Background()
	clk := newMovableClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := &deactivateFailingStore{memoryEntitlementStore: newMemoryEntitlementStore(), failures: 1}
	events := newMemoryEventStore()
	svc := newTestService(t, clk.Now,
		WithEntitlementStore(store),
		WithEventStore(events),
		WithInviteIssuer(&stubIssuer{}),
		WithMembershipRevoker(&stubRevoker{}),
		WithNotifier(newRecordingNotifier()),
	)

	granted, err := svc.Grant(ctx, GrantRequest{
		ActorID: testOperatorID, UserID: 42, ChannelID: "-100777", Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	clk.Advance(2 * time.Hour)
	report, err := svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep with deactivate failure: %v", err)
	}
	if report.Transient != 1 || report.Revoked != 0 {
		t.Fatalf("expected transient outcome, got %+v", report)
	}
	types := events.typesFor(granted.Entitlement.ID)
	if len(types) != 2 || types[1] != EntitlementEventRevokeFailed {
		t.Fatalf("expected a revoke_failed event for the failed deactivate, got %v", types)
	}

	report, err = svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	if report.Revoked != 1 {
		t.Fatalf("expected deactivate retry to succeed, got %+v", report)
	}
	types = events.typesFor(granted.Entitlement.ID)
	if len(types) != 3 || types[2] != EntitlementEventRevoked {
		t.Fatalf("expected granted, revoke_failed, revoked, got %v", types)
	}
}

// regrantingRevoker re-grants the entitlement while the sweep is mid-flight,
// after FindExpired has already returned the stale version.
type regrantingRevoker struct {
	svc   *Service
	calls int
}

func (r *regrantingRevoker) Remove(_ context.Context, channelID string, userID int64) (RemovalStatus, error) {
	r.calls++
	_, err := r.svc.Grant(context.Background(), GrantRequest{
		ActorID:   testOperatorID,
		UserID:    userID,
		ChannelID: channelID,
		Duration:  48 * time.Hour,
	})
	if err != nil {
		return "", err
	}
	return RemovalRemoved, nil
}

func TestService_RunSweepSkipsEntitlementRegrantedMidSweep(t *testing.T) {
	ctx := context.Background()
	clk := newMovableClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemoryEntitlementStore()
	notifier := newRecordingNotifier()
	revoker := &regrantingRevoker{}
	svc := newTestService(t, clk.Now,
		WithEntitlementStore(store),
		WithInviteIssuer(&stubIssuer{}),
		WithMembershipRevoker(revoker),
		WithNotifier(notifier),
	)
	revoker.svc = svc

	if _, err := svc.Grant(ctx, GrantRequest{
		ActorID: testOperatorID, UserID: 42, ChannelID: "-100777", Duration: time.Hour,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	clk.Advance(2 * time.Hour)
	report, err := svc.RunSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Skipped != 1 || report.Revoked != 0 {
		t.Fatalf("expected version-checked deactivate to no-op, got %+v", report)
	}
	current, err := store.Get(ctx, 42, "-100777")
	if err != nil {
		t.Fatalf("load entitlement: %v", err)
	}
	if !current.Active {
		t.Fatalf("expected re-granted entitlement to stay active")
	}
	// Only the fresh grant message; no expiry notification for the stale row.
	if sent := notifier.sentTo(42); len(sent) != 2 {
		t.Fatalf("expected two grant messages and no expiry notice, got %v", sent)
	}
}

// cancellingRevoker cancels the sweep context after its first removal.
type cancellingRevoker struct {
	cancel context.CancelFunc
	calls  int
}

func (r *cancellingRevoker) Remove(_ context.Context, _ string, _ int64) (RemovalStatus, error) {
	r.calls++
	r.cancel()
	return RemovalRemoved, nil
}

func TestService_RunSweepStopsBetweenEntriesOnCancellation(t *testing.T) {
	clk := newMovableClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemoryEntitlementStore()
	svc := newTestService(t, clk.Now,
		WithEntitlementStore(store),
		WithInviteIssuer(&stubIssuer{}),
		WithNotifier(newRecordingNotifier()),
	)

	for _, userID := range []int64{41, 42, 43} {
		if _, err := svc.Grant(context.Background(), GrantRequest{
			ActorID: testOperatorID, UserID: userID, ChannelID: "-100777", Duration: time.Hour,
		}); err != nil {
			t.Fatalf("grant %d: %v", userID, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	revoker := &cancellingRevoker{cancel: cancel}
	sweepSvc := newTestService(t, clk.Now,
		WithEntitlementStore(store),
		WithInviteIssuer(&stubIssuer{}),
		WithMembershipRevoker(revoker),
		WithNotifier(newRecordingNotifier()),
	)

	clk.Advance(2 * time.Hour)
	report, err := sweepSvc.RunSweep(ctx)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if revoker.calls != 1 {
		t.Fatalf("expected exactly one entry processed before the cancel took effect, got %d", revoker.calls)
	}
	if report.Revoked != 1 {
		t.Fatalf("expected the in-flight entry to finish, got %+v", report)
	}

	// The abandoned entries are still expired and picked up by the next cycle.
	remaining, err := store.FindExpired(context.Background(), clk.Now())
	if err != nil {
		t.Fatalf("find expired: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected two entries left for the next cycle, got %d", len(remaining))
	}
}

func TestService_RunSweepRequiresRevoker(t *testing.T) {
	clk := newMovableClock(time.Now().UTC())
	svc := newTestService(t, clk.Now,
		WithEntitlementStore(newMemoryEntitlementStore()),
		WithInviteIssuer(&stubIssuer{}),
	)
	if _, err := svc.RunSweep(context.Background()); err == nil {
		t.Fatalf("expected configuration error")
	}
}
