package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type entitlementRecord struct {
	bun.BaseModel `bun:"table:channel_entitlements,alias:ce"`

	ID         string    `bun:"id,pk"`
	UserID     int64     `bun:"user_id,notnull"`
	ChannelID  string    `bun:"channel_id,notnull"`
	Version    int       `bun:"version,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	InviteLink string    `bun:"invite_link"`
	Active     bool      `bun:"active,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type catalogRecord struct {
	bun.BaseModel `bun:"table:channel_catalog,alias:cat"`

	ID         string    `bun:"id,pk"`
	ChannelID  string    `bun:"channel_id,notnull"`
	Name       string    `bun:"name,notnull"`
	Price      string    `bun:"price"`
	PlanType   string    `bun:"plan_type"`
	DemoLink   string    `bun:"demo_link"`
	Forwarding bool      `bun:"forwarding,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type entitlementEventRecord struct {
	bun.BaseModel `bun:"table:entitlement_events,alias:ee"`

	ID            string         `bun:"id,pk"`
	EntitlementID string         `bun:"entitlement_id,notnull"`
	UserID        int64          `bun:"user_id,notnull"`
	ChannelID     string         `bun:"channel_id,notnull"`
	EventType     string         `bun:"event_type,notnull"`
	Actor         string         `bun:"actor,notnull"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt    time.Time      `bun:"occurred_at,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
