package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidEntitlementKey = errors.New("core: invalid entitlement key")
	ErrInvalidGrantDuration  = errors.New("core: invalid grant duration")
	ErrEntitlementNotFound   = errors.New("core: entitlement not found")
	ErrChannelNotFound       = errors.New("core: channel not found")
)

// Entitlement is one user's claim to one channel until an expiry. At most one
// row exists per (UserID, ChannelID); a new grant overwrites the prior row and
// bumps Version. Rows are never deleted; inactive rows remain for audit.
type Entitlement struct {
	ID         string
	UserID     int64
	ChannelID  string
	Version    int
	ExpiresAt  time.Time
	InviteLink string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the version-qualified storage key used for deactivation. The
// sweep deactivates by key, not by (user, channel), so a concurrent re-grant
// (which bumps Version) turns the deactivate into a no-op.
func (e Entitlement) Key() EntitlementKey {
	return EntitlementKey{ID: e.ID, Version: e.Version}
}

// Expired reports whether the entitlement should be revoked at the given time.
func (e Entitlement) Expired(now time.Time) bool {
	return e.Active && e.ExpiresAt.Before(now)
}

type EntitlementKey struct {
	ID      string
	Version int
}

func (k EntitlementKey) Validate() error {
	if strings.TrimSpace(k.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEntitlementKey)
	}
	if k.Version < 1 {
		return fmt.Errorf("%w: version %d", ErrInvalidEntitlementKey, k.Version)
	}
	return nil
}

// InviteCredential is a single-use join credential scoped to one channel and
// intended for exactly one recipient.
type InviteCredential struct {
	Link     string
	Name     string
	IssuedAt time.Time
}

// RemovalStatus classifies a completed membership removal attempt. Transient
// failures are reported as errors, not statuses: the next sweep cycle retries
// them by re-deriving the expired set.
type RemovalStatus string

const (
	// RemovalRemoved means the member was kicked from the channel.
	RemovalRemoved RemovalStatus = "removed"
	// RemovalAlreadyGone means the chat or membership no longer exists;
	// revocation is already satisfied.
	RemovalAlreadyGone RemovalStatus = "already_gone"
	// RemovalNoRights means the service account lacks the privilege to kick;
	// retrying changes nothing.
	RemovalNoRights RemovalStatus = "no_rights"
)

// Terminal reports whether the sweep should stop tracking the entitlement
// after this outcome.
func (s RemovalStatus) Terminal() bool {
	switch s {
	case RemovalRemoved, RemovalAlreadyGone, RemovalNoRights:
		return true
	}
	return false
}

// CatalogEntry describes a purchasable channel. The core reads it only to
// compose menu and notification text; it never validates or interprets the
// price or plan fields.
type CatalogEntry struct {
	ChannelID  string
	Name       string
	Price      string
	PlanType   string
	DemoLink   string
	Forwarding bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type EntitlementEventType string

const (
	EntitlementEventGranted       EntitlementEventType = "granted"
	EntitlementEventRevoked       EntitlementEventType = "revoked"
	EntitlementEventRevokeSkipped EntitlementEventType = "revoke_skipped"
	EntitlementEventRevokeFailed  EntitlementEventType = "revoke_failed"
)

// EntitlementEvent is an append-only audit record of a lifecycle transition.
type EntitlementEvent struct {
	ID            string
	EntitlementID string
	UserID        int64
	ChannelID     string
	EventType     EntitlementEventType
	Actor         string
	Metadata      map[string]any
	OccurredAt    time.Time
	CreatedAt     time.Time
}
