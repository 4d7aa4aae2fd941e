package core

import (
	"context"
	"fmt"
)

// RunSweep executes one expiry sweep cycle: derive the expired set, and for
// each entitlement attempt removal, deactivate, and notify. Entries are
// independent: one entry's failure never aborts the cycle, and cancellation
// is honored only between entries so every entry either fully completes or is
// abandoned before its removal starts.
//
// There is no retry queue. A transient removal failure leaves the row active,
// and the next scheduled cycle re-derives the expired set from the store; the
// periodic re-scan is the retry mechanism.
func (s *Service) RunSweep(ctx context.Context) (SweepReport, error) {
	if s == nil || s.entitlementStore == nil {
		return SweepReport{}, s.mapError(fmt.Errorf("core: entitlement store is required"))
	}
	if s.revoker == nil {
		return SweepReport{}, s.mapError(fmt.Errorf("core: membership revoker is required"))
	}

	startedAt := s.now()
	expired, err := s.entitlementStore.FindExpired(ctx, s.now())
	if err != nil {
		s.observeOperation(ctx, startedAt, "sweep", err, nil)
		return SweepReport{}, s.mapError(err)
	}

	report := SweepReport{Scanned: len(expired)}
	for _, entitlement := range expired {
		if ctx.Err() != nil {
			s.observeOperation(ctx, startedAt, "sweep", ctx.Err(), map[string]any{
				"scanned":   report.Scanned,
				"revoked":   report.Revoked,
				"skipped":   report.Skipped,
				"transient": report.Transient,
			})
			return report, s.mapError(ctx.Err())
		}
		s.sweepOne(ctx, entitlement, &report)
	}

	s.observeOperation(ctx, startedAt, "sweep", nil, map[string]any{
		"scanned":   report.Scanned,
		"revoked":   report.Revoked,
		"skipped":   report.Skipped,
		"transient": report.Transient,
	})
	return report, nil
}

func (s *Service) sweepOne(ctx context.Context, e Entitlement, report *SweepReport) {
	status, err := s.removeMember(ctx, e.ChannelID, e.UserID)
	if err != nil {
		// Transient: leave active, no backoff state; retried next cycle.
		report.Transient++
		s.logError(ctx, "membership removal failed, will retry next cycle", map[string]any{
			"entitlement_id": e.ID,
			"user_id":        e.UserID,
			"channel_id":     e.ChannelID,
			"error":          err.Error(),
		})
		s.appendEvent(ctx, AppendEntitlementEventInput{
			EntitlementID: e.ID,
			UserID:        e.UserID,
			ChannelID:     e.ChannelID,
			EventType:     EntitlementEventRevokeFailed,
			Actor:         "sweep",
			Metadata:      map[string]any{"error": err.Error()},
		})
		return
	}

	// Removed, already gone, or no rights: in every terminal case the
	// entitlement stops being tracked. Deactivation re-checks the version so
	// a row re-granted after FindExpired stays active.
	deactivated, err := s.entitlementStore.Deactivate(ctx, e.Key())
	if err != nil {
		report.Transient++
		s.logError(ctx, "entitlement deactivation failed, will retry next cycle", map[string]any{
			"entitlement_id": e.ID,
			"version":        e.Version,
			"error":          err.Error(),
		})
		s.appendEvent(ctx, AppendEntitlementEventInput{
			EntitlementID: e.ID,
			UserID:        e.UserID,
			ChannelID:     e.ChannelID,
			EventType:     EntitlementEventRevokeFailed,
			Actor:         "sweep",
			Metadata: map[string]any{
				"error": err.Error(),
				"stage": "deactivate",
			},
		})
		return
	}
	if !deactivated {
		// Re-granted between FindExpired and Deactivate; nothing to revoke.
		report.Skipped++
		s.logInfo(ctx, "entitlement re-granted during sweep, deactivate skipped", map[string]any{
			"entitlement_id": e.ID,
			"version":        e.Version,
		})
		return
	}

	switch status {
	case RemovalRemoved:
		report.Revoked++
		s.appendEvent(ctx, AppendEntitlementEventInput{
			EntitlementID: e.ID,
			UserID:        e.UserID,
			ChannelID:     e.ChannelID,
			EventType:     EntitlementEventRevoked,
			Actor:         "sweep",
			Metadata:      map[string]any{"version": e.Version},
		})
		if notifyErr := s.notifyUser(ctx, e.UserID, expiryMessage(e.ChannelID)); notifyErr != nil {
			s.logError(ctx, "expiry notification failed", map[string]any{
				"user_id":    e.UserID,
				"channel_id": e.ChannelID,
				"error":      notifyErr.Error(),
			})
		}
	default:
		report.Skipped++
		s.appendEvent(ctx, AppendEntitlementEventInput{
			EntitlementID: e.ID,
			UserID:        e.UserID,
			ChannelID:     e.ChannelID,
			EventType:     EntitlementEventRevokeSkipped,
			Actor:         "sweep",
			Metadata: map[string]any{
				"version": e.Version,
				"status":  string(status),
			},
		})
	}
}

func (s *Service) removeMember(ctx context.Context, channelID string, userID int64) (RemovalStatus, error) {
	callCtx, cancel := s.boundedCall(ctx)
	defer cancel()
	status, err := s.revoker.Remove(callCtx, channelID, userID)
	if err != nil {
		return "", err
	}
	if !status.Terminal() {
		return "", fmt.Errorf("core: revoker returned unknown status %q", status)
	}
	return status, nil
}

func expiryMessage(channelID string) string {
	return fmt.Sprintf(
		"Plan expired. Your subscription for channel %s has ended. Please renew to rejoin.",
		channelID,
	)
}
