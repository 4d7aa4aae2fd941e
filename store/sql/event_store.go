package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/channelgate/channelgate/core"
)

// EventStore appends lifecycle audit rows. Rows are never updated or
// deleted.
type EventStore struct {
	repo repository.Repository[*entitlementEventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*entitlementEventRecord](db, entitlementEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entitlement event repository wiring: %w", err)
		}
	}
	return &EventStore{repo: repo}, nil
}

func (s *EventStore) AppendEvent(ctx context.Context, in core.AppendEntitlementEventInput) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	if strings.TrimSpace(in.EntitlementID) == "" {
		return fmt.Errorf("sqlstore: entitlement id is required")
	}
	if strings.TrimSpace(string(in.EventType)) == "" {
		return fmt.Errorf("sqlstore: event type is required")
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	record := &entitlementEventRecord{
		EntitlementID: strings.TrimSpace(in.EntitlementID),
		UserID:        in.UserID,
		ChannelID:     strings.TrimSpace(in.ChannelID),
		EventType:     strings.TrimSpace(string(in.EventType)),
		Actor:         strings.TrimSpace(in.Actor),
		Metadata:      copyAnyMap(in.Metadata),
		OccurredAt:    occurredAt.UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *EventStore) ListByEntitlement(ctx context.Context, entitlementID string) ([]core.EntitlementEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("entitlement_id", "=", strings.TrimSpace(entitlementID)),
		repository.OrderBy("occurred_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.EntitlementEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
