package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/channelgate/channelgate/core"
)

// EntitlementStore persists one row per (user, channel). Upsert resolves the
// key atomically in the database through the unique (user_id, channel_id)
// index, so concurrent writers serialize on the row and every write bumps
// Version exactly once; Deactivate is a conditional update keyed by
// (id, version) so a row re-granted after the caller read it is left
// untouched.
type EntitlementStore struct {
	db   *bun.DB
	repo repository.Repository[*entitlementRecord]
}

func NewEntitlementStore(db *bun.DB) (*EntitlementStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*entitlementRecord](db, entitlementHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entitlement repository wiring: %w", err)
		}
	}
	return &EntitlementStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *EntitlementStore) Upsert(ctx context.Context, in core.UpsertEntitlementInput) (core.Entitlement, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Entitlement{}, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	in.ChannelID = strings.TrimSpace(in.ChannelID)
	in.InviteLink = strings.TrimSpace(in.InviteLink)
	if in.UserID == 0 {
		return core.Entitlement{}, fmt.Errorf("sqlstore: user id is required")
	}
	if in.ChannelID == "" {
		return core.Entitlement{}, fmt.Errorf("sqlstore: channel id is required")
	}
	if in.ExpiresAt.IsZero() {
		return core.Entitlement{}, fmt.Errorf("sqlstore: expiry is required")
	}
	now := time.Now().UTC()

	record := newEntitlementRecord(in, now)
	record.ID = uuid.NewString()

	// ON CONFLICT keeps the insert-or-bump atomic: two first-time grants for
	// the same pair serialize on the unique index instead of racing a SELECT,
	// and two concurrent re-grants each bump the winner's version.
	var out core.Entitlement
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, execErr := tx.NewInsert().
			Model(record).
			On("CONFLICT (user_id, channel_id) DO UPDATE").
			Set("version = ?TableName.version + 1").
			Set("expires_at = EXCLUDED.expires_at").
			Set("invite_link = EXCLUDED.invite_link").
			Set("active = EXCLUDED.active").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); execErr != nil {
			return execErr
		}

		stored, readErr := s.findByPairTx(ctx, tx, in.UserID, in.ChannelID)
		if readErr != nil {
			return readErr
		}
		if stored == nil {
			return fmt.Errorf("sqlstore: entitlement row missing after upsert for user %d channel %s", in.UserID, in.ChannelID)
		}
		out = stored.toDomain()
		return nil
	})
	if err != nil {
		return core.Entitlement{}, err
	}

	return out, nil
}

func (s *EntitlementStore) Get(ctx context.Context, userID int64, channelID string) (core.Entitlement, error) {
	if s == nil || s.repo == nil {
		return core.Entitlement{}, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.user_id = ?", userID)
		}),
		repository.SelectBy("channel_id", "=", strings.TrimSpace(channelID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Entitlement{}, err
	}
	if len(records) == 0 {
		return core.Entitlement{}, core.ErrEntitlementNotFound
	}
	return records[0].toDomain(), nil
}

func (s *EntitlementStore) FindExpired(ctx context.Context, now time.Time) ([]core.Entitlement, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true)
		}),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.expires_at < ?", now.UTC())
		}),
		repository.OrderBy("expires_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Entitlement, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EntitlementStore) FindActiveByUser(ctx context.Context, userID int64) ([]core.Entitlement, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.user_id = ?", userID)
		}),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true)
		}),
		repository.OrderBy("expires_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Entitlement, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Deactivate clears the active flag only when the stored version still
// matches the caller's key. It returns false with no error when the row was
// re-granted or already deactivated in the meantime.
func (s *EntitlementStore) Deactivate(ctx context.Context, key core.EntitlementKey) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	if err := key.Validate(); err != nil {
		return false, err
	}
	res, err := s.db.NewUpdate().
		Model((*entitlementRecord)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", key.ID).
		Where("version = ?", key.Version).
		Where("active = ?", true).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *EntitlementStore) findByPairTx(
	ctx context.Context,
	tx bun.Tx,
	userID int64,
	channelID string,
) (*entitlementRecord, error) {
	record := &entitlementRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.channel_id = ?", channelID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}
