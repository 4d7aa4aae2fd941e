package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const minGrantDuration = time.Minute

// Grant issues a single-use invite credential, persists the entitlement, and
// notifies the recipient. Ordering is deliberate: nothing is written to the
// store until issuance succeeded, so an IssuanceError leaves no partial
// state. Once the upsert commits the grant is durable; notification failures
// are reported in the result, never rolled back.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (GrantResult, error) {
	if s == nil || s.entitlementStore == nil {
		return GrantResult{}, s.mapError(fmt.Errorf("core: entitlement store is required"))
	}
	if s.issuer == nil {
		return GrantResult{}, s.mapError(fmt.Errorf("core: invite issuer is required"))
	}
	if err := s.authorizeOperator(req.ActorID); err != nil {
		return GrantResult{}, s.mapError(err)
	}
	if req.UserID == 0 {
		return GrantResult{}, s.mapError(fmt.Errorf("core: user id is required"))
	}
	channelID := strings.TrimSpace(req.ChannelID)
	if channelID == "" {
		return GrantResult{}, s.mapError(fmt.Errorf("core: channel id is required"))
	}
	if req.Duration < minGrantDuration {
		return GrantResult{}, s.mapError(fmt.Errorf("%w: %s", ErrInvalidGrantDuration, req.Duration))
	}

	startedAt := s.now()
	credential, err := s.issueCredential(ctx, channelID, req.UserID)
	if err != nil {
		issuanceErr := newGateError(
			fmt.Sprintf("core: issue invite for channel %s: %v", channelID, err),
			goerrors.CategoryOperation,
			GateErrorIssuanceFailed,
		)
		s.observeOperation(ctx, startedAt, "grant", issuanceErr, map[string]any{
			"user_id":    req.UserID,
			"channel_id": channelID,
		})
		return GrantResult{}, s.mapError(issuanceErr)
	}

	expiresAt := s.now().Add(req.Duration)
	entitlement, err := s.entitlementStore.Upsert(ctx, UpsertEntitlementInput{
		UserID:     req.UserID,
		ChannelID:  channelID,
		ExpiresAt:  expiresAt,
		InviteLink: credential.Link,
		Active:     true,
	})
	if err != nil {
		s.observeOperation(ctx, startedAt, "grant", err, map[string]any{
			"user_id":    req.UserID,
			"channel_id": channelID,
		})
		return GrantResult{}, s.mapError(err)
	}

	s.appendEvent(ctx, AppendEntitlementEventInput{
		EntitlementID: entitlement.ID,
		UserID:        entitlement.UserID,
		ChannelID:     entitlement.ChannelID,
		EventType:     EntitlementEventGranted,
		Actor:         fmt.Sprintf("operator:%d", req.ActorID),
		Metadata: map[string]any{
			"version":    entitlement.Version,
			"expires_at": entitlement.ExpiresAt.Format(time.RFC3339),
		},
	})

	result := GrantResult{
		Entitlement: entitlement,
		Credential:  credential,
	}

	// The entitlement is durable by now. Notification is best-effort and its
	// failure is an explicit outcome, not an error.
	if notifyErr := s.notifyUser(ctx, req.UserID, grantMessage(req.Duration, credential.Link)); notifyErr != nil {
		result.NotifyError = notifyErr.Error()
		s.logError(ctx, "grant notification failed", map[string]any{
			"user_id":    req.UserID,
			"channel_id": channelID,
			"error":      notifyErr.Error(),
		})
	} else {
		result.UserNotified = true
	}

	s.observeOperation(ctx, startedAt, "grant", nil, map[string]any{
		"user_id":       req.UserID,
		"channel_id":    channelID,
		"version":       entitlement.Version,
		"user_notified": result.UserNotified,
	})
	return result, nil
}

func (s *Service) issueCredential(ctx context.Context, channelID string, userID int64) (InviteCredential, error) {
	callCtx, cancel := s.boundedCall(ctx)
	defer cancel()
	return s.issuer.Issue(callCtx, channelID, userID)
}

func (s *Service) notifyUser(ctx context.Context, userID int64, message string) error {
	if s.notifier == nil {
		return fmt.Errorf("core: notifier is not configured")
	}
	callCtx, cancel := s.boundedCall(ctx)
	defer cancel()
	return s.notifier.Notify(callCtx, userID, message)
}

func grantMessage(duration time.Duration, link string) string {
	days := int(duration.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf(
			"Payment accepted! You have been granted access for %d day(s).\nThis link works only for you and one time only.\n%s",
			days, link,
		)
	}
	return fmt.Sprintf(
		"Payment accepted! You have been granted access for %s.\nThis link works only for you and one time only.\n%s",
		duration, link,
	)
}
