package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/channelgate/channelgate/core"
)

const catalogCacheKeyPrefix = "channelgate::catalog::v1"

// CachedCatalogStore layers a read-through cache over a catalog store. The
// catalog is read on every plans menu render and buy callback but changes
// only on operator commands, so reads serve from cache and every write
// invalidates the touched entry plus the list key.
type CachedCatalogStore struct {
	base  core.CatalogStore
	cache repositorycache.CacheService
}

func NewCachedCatalogStore(
	base core.CatalogStore,
	cacheService repositorycache.CacheService,
) (*CachedCatalogStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base catalog store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: catalog cache service is required")
	}
	return &CachedCatalogStore{base: base, cache: cacheService}, nil
}

// CatalogEntryCacheKey returns the deterministic cache key contract for
// catalog entry reads: channelgate::catalog::v1::entry::<channel_id> with the
// channel id URL-path escaped.
func CatalogEntryCacheKey(channelID string) (string, error) {
	trimmed := strings.TrimSpace(channelID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: channel id is required")
	}
	return catalogCacheKeyPrefix + "::entry::" + url.PathEscape(trimmed), nil
}

func catalogListCacheKey() string {
	return catalogCacheKeyPrefix + "::list"
}

func (s *CachedCatalogStore) Get(ctx context.Context, channelID string) (core.CatalogEntry, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CatalogEntry{}, fmt.Errorf("sqlstore: cached catalog store is not configured")
	}
	cacheKey, err := CatalogEntryCacheKey(channelID)
	if err != nil {
		return core.CatalogEntry{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.CatalogEntry, error) {
		return s.base.Get(ctx, channelID)
	})
}

func (s *CachedCatalogStore) List(ctx context.Context) ([]core.CatalogEntry, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached catalog store is not configured")
	}
	entries, err := repositorycache.GetOrFetch(ctx, s.cache, catalogListCacheKey(), func(ctx context.Context) ([]core.CatalogEntry, error) {
		fetched, fetchErr := s.base.List(ctx)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return append([]core.CatalogEntry(nil), fetched...), nil
	})
	if err != nil {
		return nil, err
	}
	return append([]core.CatalogEntry(nil), entries...), nil
}

func (s *CachedCatalogStore) Upsert(ctx context.Context, in core.UpsertChannelInput) (core.CatalogEntry, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CatalogEntry{}, fmt.Errorf("sqlstore: cached catalog store is not configured")
	}
	entry, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.CatalogEntry{}, err
	}
	if err := s.invalidate(ctx, entry.ChannelID); err != nil {
		return core.CatalogEntry{}, err
	}
	return entry, nil
}

func (s *CachedCatalogStore) SetDemoLink(ctx context.Context, channelID string, link string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached catalog store is not configured")
	}
	if err := s.base.SetDemoLink(ctx, channelID, link); err != nil {
		return err
	}
	return s.invalidate(ctx, channelID)
}

func (s *CachedCatalogStore) invalidate(ctx context.Context, channelID string) error {
	cacheKey, err := CatalogEntryCacheKey(channelID)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, catalogListCacheKey()); err != nil {
		return err
	}
	return nil
}

var _ core.CatalogStore = (*CachedCatalogStore)(nil)
