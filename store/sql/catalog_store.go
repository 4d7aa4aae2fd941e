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

type CatalogStore struct {
	db   *bun.DB
	repo repository.Repository[*catalogRecord]
}

func NewCatalogStore(db *bun.DB) (*CatalogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*catalogRecord](db, catalogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid catalog repository wiring: %w", err)
		}
	}
	return &CatalogStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *CatalogStore) Upsert(ctx context.Context, in core.UpsertChannelInput) (core.CatalogEntry, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.CatalogEntry{}, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	in.ChannelID = strings.TrimSpace(in.ChannelID)
	in.Name = strings.TrimSpace(in.Name)
	in.Price = strings.TrimSpace(in.Price)
	in.PlanType = strings.TrimSpace(in.PlanType)
	in.DemoLink = strings.TrimSpace(in.DemoLink)
	if in.ChannelID == "" {
		return core.CatalogEntry{}, fmt.Errorf("sqlstore: channel id is required")
	}
	if in.Name == "" {
		return core.CatalogEntry{}, fmt.Errorf("sqlstore: channel name is required")
	}
	now := time.Now().UTC()

	var out core.CatalogEntry
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.findByChannelTx(ctx, tx, in.ChannelID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := newCatalogRecord(in, now)
			record.ID = uuid.NewString()
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		existing.Name = in.Name
		existing.Price = in.Price
		existing.PlanType = in.PlanType
		existing.DemoLink = in.DemoLink
		existing.Forwarding = in.Forwarding
		existing.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.CatalogEntry{}, err
	}

	return out, nil
}

func (s *CatalogStore) Get(ctx context.Context, channelID string) (core.CatalogEntry, error) {
	if s == nil || s.repo == nil {
		return core.CatalogEntry{}, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("channel_id", "=", strings.TrimSpace(channelID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.CatalogEntry{}, err
	}
	if len(records) == 0 {
		return core.CatalogEntry{}, core.ErrChannelNotFound
	}
	return records[0].toDomain(), nil
}

func (s *CatalogStore) SetDemoLink(ctx context.Context, channelID string, link string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: catalog store is not configured")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("sqlstore: channel id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*catalogRecord)(nil)).
		Set("demo_link = ?", strings.TrimSpace(link)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("channel_id = ?", channelID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrChannelNotFound
	}
	return nil
}

func (s *CatalogStore) List(ctx context.Context) ([]core.CatalogEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: catalog store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.OrderBy("name ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.CatalogEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *CatalogStore) findByChannelTx(ctx context.Context, tx bun.Tx, channelID string) (*catalogRecord, error) {
	record := &catalogRecord{}
	err := tx.NewSelect().
		Model(record).
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
