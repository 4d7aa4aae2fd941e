package sqlstore

import (
	"time"

	"github.com/channelgate/channelgate/core"
)

func newEntitlementRecord(in core.UpsertEntitlementInput, now time.Time) *entitlementRecord {
	return &entitlementRecord{
		UserID:     in.UserID,
		ChannelID:  in.ChannelID,
		Version:    1,
		ExpiresAt:  in.ExpiresAt.UTC(),
		InviteLink: in.InviteLink,
		Active:     in.Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *entitlementRecord) toDomain() core.Entitlement {
	if r == nil {
		return core.Entitlement{}
	}
	return core.Entitlement{
		ID:         r.ID,
		UserID:     r.UserID,
		ChannelID:  r.ChannelID,
		Version:    r.Version,
		ExpiresAt:  r.ExpiresAt,
		InviteLink: r.InviteLink,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func newCatalogRecord(in core.UpsertChannelInput, now time.Time) *catalogRecord {
	return &catalogRecord{
		ChannelID:  in.ChannelID,
		Name:       in.Name,
		Price:      in.Price,
		PlanType:   in.PlanType,
		DemoLink:   in.DemoLink,
		Forwarding: in.Forwarding,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *catalogRecord) toDomain() core.CatalogEntry {
	if r == nil {
		return core.CatalogEntry{}
	}
	return core.CatalogEntry{
		ChannelID:  r.ChannelID,
		Name:       r.Name,
		Price:      r.Price,
		PlanType:   r.PlanType,
		DemoLink:   r.DemoLink,
		Forwarding: r.Forwarding,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (r *entitlementEventRecord) toDomain() core.EntitlementEvent {
	if r == nil {
		return core.EntitlementEvent{}
	}
	return core.EntitlementEvent{
		ID:            r.ID,
		EntitlementID: r.EntitlementID,
		UserID:        r.UserID,
		ChannelID:     r.ChannelID,
		EventType:     core.EntitlementEventType(r.EventType),
		Actor:         r.Actor,
		Metadata:      copyAnyMap(r.Metadata),
		OccurredAt:    r.OccurredAt,
		CreatedAt:     r.CreatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
