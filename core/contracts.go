package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// UpsertEntitlementInput creates or fully replaces the mutable fields of the
// (UserID, ChannelID) entitlement. The store bumps Version on every write.
type UpsertEntitlementInput struct {
	UserID     int64
	ChannelID  string
	ExpiresAt  time.Time
	InviteLink string
	Active     bool
}

// EntitlementStore is the durable mapping (user, channel) -> entitlement.
// Upsert must be atomic per key with last-writer-wins semantics. FindExpired
// must never return a non-expired entitlement; missing one that expired just
// before the call is acceptable and corrected on the next cycle.
type EntitlementStore interface {
	Upsert(ctx context.Context, in UpsertEntitlementInput) (Entitlement, error)
	Get(ctx context.Context, userID int64, channelID string) (Entitlement, error)
	FindExpired(ctx context.Context, now time.Time) ([]Entitlement, error)
	FindActiveByUser(ctx context.Context, userID int64) ([]Entitlement, error)
	// Deactivate sets active=false for exactly the row identified by key.
	// It returns false without error when the row was re-granted (version
	// bumped) or is already inactive.
	Deactivate(ctx context.Context, key EntitlementKey) (bool, error)
}

type UpsertChannelInput struct {
	ChannelID  string
	Name       string
	Price      string
	PlanType   string
	DemoLink   string
	Forwarding bool
}

type CatalogStore interface {
	Upsert(ctx context.Context, in UpsertChannelInput) (CatalogEntry, error)
	Get(ctx context.Context, channelID string) (CatalogEntry, error)
	SetDemoLink(ctx context.Context, channelID string, link string) error
	List(ctx context.Context) ([]CatalogEntry, error)
}

type AppendEntitlementEventInput struct {
	EntitlementID string
	UserID        int64
	ChannelID     string
	EventType     EntitlementEventType
	Actor         string
	Metadata      map[string]any
	OccurredAt    time.Time
}

type EventStore interface {
	AppendEvent(ctx context.Context, in AppendEntitlementEventInput) error
	ListByEntitlement(ctx context.Context, entitlementID string) ([]EntitlementEvent, error)
}

// StoreProvider exposes the stores a repository factory builds.
type StoreProvider interface {
	EntitlementStore() EntitlementStore
	CatalogStore() CatalogStore
	EventStore() EventStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// InviteIssuer produces a single-use join credential scoped to exactly one
// channel and one recipient. Issuance failures are fatal to the requesting
// grant: the caller must not persist any entitlement state.
type InviteIssuer interface {
	Issue(ctx context.Context, channelID string, userID int64) (InviteCredential, error)
}

// MembershipRevoker removes a user's membership from a channel at the
// platform level. A non-nil error means the attempt was transient and will be
// retried by a later sweep cycle; a RemovalStatus classifies completed
// attempts. Remove on an already-removed member must report AlreadyGone.
type MembershipRevoker interface {
	Remove(ctx context.Context, channelID string, userID int64) (RemovalStatus, error)
}

// Notifier delivers a human-readable message best-effort. Callers log
// failures and continue; a notification error never rolls anything back.
type Notifier interface {
	Notify(ctx context.Context, userID int64, message string) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Sweeper is the engine capability a scheduler drives. It is satisfied by
// *Service and by test doubles so the scheduler stays testable without a
// live bot or database.
type Sweeper interface {
	RunSweep(ctx context.Context) (SweepReport, error)
}

type GrantRequest struct {
	ActorID   int64
	UserID    int64
	ChannelID string
	Duration  time.Duration
}

// GrantResult reports the durable outcome of a grant plus the best-effort
// notification outcome. UserNotified=false with a non-empty NotifyError is a
// legitimate, fully-successful grant.
type GrantResult struct {
	Entitlement  Entitlement
	Credential   InviteCredential
	UserNotified bool
	NotifyError  string
}

// SweepReport summarizes one sweep cycle.
type SweepReport struct {
	Scanned   int
	Revoked   int
	Skipped   int
	Transient int
}
