package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

const testOperatorID int64 = 9000

func newTestService(t *testing.T, clock func() time.Time, options ...Option) *Service {
	t.Helper()
	base := []Option{WithClock(clock)}
	svc, err := NewService(Config{OperatorID: testOperatorID}, append(base, options...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

type movableClock struct {
	mu sync.Mutex
	at time.Time
}

func newMovableClock(at time.Time) *movableClock {
	return &movableClock{at: at}
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type memoryEntitlementStore struct {
	mu   sync.Mutex
	next int
	rows map[string]Entitlement
}

func newMemoryEntitlementStore() *memoryEntitlementStore {
	return &memoryEntitlementStore{rows: map[string]Entitlement{}}
}

func pairKey(userID int64, channelID string) string {
	return fmt.Sprintf("%d|%s", userID, strings.TrimSpace(channelID))
}

func (s *memoryEntitlementStore) Upsert(_ context.Context, in UpsertEntitlementInput) (Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.UserID == 0 || strings.TrimSpace(in.ChannelID) == "" {
		return Entitlement{}, fmt.Errorf("user id and channel id are required")
	}
	key := pairKey(in.UserID, in.ChannelID)
	existing, ok := s.rows[key]
	if !ok {
		s.next++
		existing = Entitlement{
			ID:        fmt.Sprintf("ent_%d", s.next),
			UserID:    in.UserID,
			ChannelID: strings.TrimSpace(in.ChannelID),
		}
	}
	existing.Version++
	existing.ExpiresAt = in.ExpiresAt
	existing.InviteLink = in.InviteLink
	existing.Active = in.Active
	s.rows[key] = existing
	return existing, nil
}

func (s *memoryEntitlementStore) Get(_ context.Context, userID int64, channelID string) (Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[pairKey(userID, channelID)]
	if !ok {
		return Entitlement{}, ErrEntitlementNotFound
	}
	return row, nil
}

func (s *memoryEntitlementStore) FindExpired(_ context.Context, now time.Time) ([]Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entitlement, 0)
	for _, row := range s.rows {
		if row.Active && row.ExpiresAt.Before(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *memoryEntitlementStore) FindActiveByUser(_ context.Context, userID int64) ([]Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entitlement, 0)
	for _, row := range s.rows {
		if row.Active && row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *memoryEntitlementStore) Deactivate(_ context.Context, key EntitlementKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := key.Validate(); err != nil {
		return false, err
	}
	for pair, row := range s.rows {
		if row.ID != key.ID {
			continue
		}
		if !row.Active || row.Version != key.Version {
			return false, nil
		}
		row.Active = false
		s.rows[pair] = row
		return true, nil
	}
	return false, ErrEntitlementNotFound
}

func (s *memoryEntitlementStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memoryCatalogStore struct {
	mu      sync.Mutex
	entries map[string]CatalogEntry
}

func newMemoryCatalogStore() *memoryCatalogStore {
	return &memoryCatalogStore{entries: map[string]CatalogEntry{}}
}

func (s *memoryCatalogStore) Upsert(_ context.Context, in UpsertChannelInput) (CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := CatalogEntry{
		ChannelID:  strings.TrimSpace(in.ChannelID),
		Name:       strings.TrimSpace(in.Name),
		Price:      strings.TrimSpace(in.Price),
		PlanType:   strings.TrimSpace(in.PlanType),
		DemoLink:   strings.TrimSpace(in.DemoLink),
		Forwarding: in.Forwarding,
	}
	s.entries[entry.ChannelID] = entry
	return entry, nil
}

func (s *memoryCatalogStore) Get(_ context.Context, channelID string) (CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(channelID)]
	if !ok {
		return CatalogEntry{}, ErrChannelNotFound
	}
	return entry, nil
}

func (s *memoryCatalogStore) SetDemoLink(_ context.Context, channelID string, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(channelID)]
	if !ok {
		return ErrChannelNotFound
	}
	entry.DemoLink = strings.TrimSpace(link)
	s.entries[entry.ChannelID] = entry
	return nil
}

func (s *memoryCatalogStore) List(_ context.Context) ([]CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CatalogEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	return out, nil
}

type memoryEventStore struct {
	mu     sync.Mutex
	events []EntitlementEvent
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{}
}

func (s *memoryEventStore) AppendEvent(_ context.Context, in AppendEntitlementEventInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, EntitlementEvent{
		ID:            fmt.Sprintf("evt_%d", len(s.events)+1),
		EntitlementID: in.EntitlementID,
		UserID:        in.UserID,
		ChannelID:     in.ChannelID,
		EventType:     in.EventType,
		Actor:         in.Actor,
		Metadata:      copyAnyMap(in.Metadata),
		OccurredAt:    in.OccurredAt,
	})
	return nil
}

func (s *memoryEventStore) ListByEntitlement(_ context.Context, entitlementID string) ([]EntitlementEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntitlementEvent, 0)
	for _, event := range s.events {
		if event.EntitlementID == entitlementID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *memoryEventStore) typesFor(entitlementID string) []EntitlementEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntitlementEventType, 0)
	for _, event := range s.events {
		if event.EntitlementID == entitlementID {
			out = append(out, event.EventType)
		}
	}
	return out
}

type stubIssuer struct {
	mu     sync.Mutex
	calls  int
	err    error
	prefix string
}

func (i *stubIssuer) Issue(_ context.Context, channelID string, userID int64) (InviteCredential, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	if i.err != nil {
		return InviteCredential{}, i.err
	}
	prefix := i.prefix
	if prefix == "" {
		prefix = "https://t.me/+invite"
	}
	return InviteCredential{
		Link: fmt.Sprintf("%s_%s_%d_%d", prefix, strings.TrimPrefix(channelID, "-"), userID, i.calls),
		Name: fmt.Sprintf("User_%d_Plan", userID),
	}, nil
}

type stubRevoker struct {
	mu       sync.Mutex
	statuses []RemovalStatus
	errs     []error
	calls    int
}

// script queues per-call outcomes; a nil error with empty status falls back
// to RemovalRemoved.
func (r *stubRevoker) script(status RemovalStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.errs = append(r.errs, err)
}

func (r *stubRevoker) Remove(_ context.Context, _ string, _ int64) (RemovalStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.calls
	r.calls++
	if idx < len(r.errs) && r.errs[idx] != nil {
		return "", r.errs[idx]
	}
	if idx < len(r.statuses) && r.statuses[idx] != "" {
		return r.statuses[idx], nil
	}
	return RemovalRemoved, nil
}

func (r *stubRevoker) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[int64][]string
	err      error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{messages: map[int64][]string{}}
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages[userID] = append(n.messages[userID], message)
	return nil
}

func (n *recordingNotifier) sentTo(userID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages[userID]...)
}
