package storage

import (
	"context"
	"errors"

	"luminatext/internal/transcription"
	"luminatext/pkg/cache"
	"luminatext/pkg/logger"
	"luminatext/pkg/model"

	"go.uber.org/zap"
)

// CachedStore serves history pages from a cache. Every successful write bumps
// a version counter so stale pages are never read again; they expire by TTL.
// Cache failures fall through to the wrapped store.
type CachedStore struct {
	store transcription.Store
	cache cache.Cache
}

// cachedPage is one history page and the total it was read with.
type cachedPage struct {
	Items []*model.Transcription `json:"items"`
	Total int64                  `json:"total"`
}

func NewCachedStore(store transcription.Store, c cache.Cache) *CachedStore {
	return &CachedStore{store: store, cache: c}
}

func (s *CachedStore) version(ctx context.Context) (int64, bool) {
	var v int64
	err := s.cache.Get(ctx, cache.HistoryVersionKey(), &v)
	if err == nil || errors.Is(err, cache.ErrCacheMiss) {
		return v, true
	}
	logger.Warn("Failed to read history cache version", zap.Error(err))
	return 0, false
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if _, err := s.cache.Increment(ctx, cache.HistoryVersionKey()); err != nil {
		logger.Warn("Failed to invalidate history cache", zap.Error(err))
	}
}

func (s *CachedStore) Insert(ctx context.Context, t *model.Transcription) (string, error) {
	id, err := s.store.Insert(ctx, t)
	if err != nil {
		return "", err
	}
	s.invalidate(ctx)
	return id, nil
}

// Page reads the version once, so the items and total of a cached entry
// always come from the same history.
func (s *CachedStore) Page(ctx context.Context, skip, limit int64) ([]*model.Transcription, int64, error) {
	version, ok := s.version(ctx)
	if !ok {
		return s.read(ctx, skip, limit)
	}

	key := cache.HistoryPageCacheKey(version, skip, limit)
	var page cachedPage
	err := s.cache.Get(ctx, key, &page)
	switch {
	case err == nil && page.Items != nil:
		logger.Debug("History page served from cache", zap.String("key", key))
		return page.Items, page.Total, nil
	case errors.Is(err, cache.ErrCorruptEntry):
		logger.Warn("Dropping unreadable history page", zap.String("key", key), zap.Error(err))
		if err := s.cache.Delete(ctx, key); err != nil {
			logger.Warn("Failed to drop history page", zap.String("key", key), zap.Error(err))
		}
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		logger.Warn("Failed to read history page from cache", zap.String("key", key), zap.Error(err))
	}

	items, total, err := s.read(ctx, skip, limit)
	if err != nil {
		return nil, 0, err
	}

	if err := s.cache.Set(ctx, key, cachedPage{Items: items, Total: total}); err != nil {
		logger.Warn("Failed to cache history page", zap.String("key", key), zap.Error(err))
	}
	return items, total, nil
}

func (s *CachedStore) read(ctx context.Context, skip, limit int64) ([]*model.Transcription, int64, error) {
	items, err := s.store.List(ctx, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// List and Count are not cached; history reads go through Page.
func (s *CachedStore) List(ctx context.Context, skip, limit int64) ([]*model.Transcription, error) {
	return s.store.List(ctx, skip, limit)
}

func (s *CachedStore) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

func (s *CachedStore) DeleteByID(ctx context.Context, id string) (int64, error) {
	deleted, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.invalidate(ctx)
	}
	return deleted, nil
}

func (s *CachedStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
