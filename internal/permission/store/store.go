package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/farmdesk/farmdesk/internal/permission"
)

// MatrixRepository is the durable side of the store.
type MatrixRepository interface {
	Load(ctx context.Context) (*permission.Snapshot, error)
	Save(ctx context.Context, snap *permission.Snapshot) error
	ListRevisions(ctx context.Context, limit int) ([]RevisionInfo, error)
}

// Store reads through the Redis cache to PostgreSQL and writes through both.
type Store struct {
	repo   MatrixRepository
	cache  *Cache
	logger *slog.Logger
}

// New constructs a Store. cache may be nil.
func New(repo MatrixRepository, cache *Cache, logger *slog.Logger) *Store {
	return &Store{repo: repo, cache: cache, logger: logger}
}

// Load returns the committed snapshot, or ErrNotFound when none was persisted.
// Snapshots are returned unvalidated.
func (s *Store) Load(ctx context.Context) (*permission.Snapshot, error) {
	snap, err := s.cache.Get(ctx)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.warn("permission cache read", err)
	}
	snap, err = s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, snap); err != nil {
		s.warn("permission cache fill", err)
	}
	return snap, nil
}

// Save persists snap. Cache failures are logged, since PostgreSQL stays authoritative.
func (s *Store) Save(ctx context.Context, snap *permission.Snapshot) error {
	if err := s.repo.Save(ctx, snap); err != nil {
		return fmt.Errorf("store: save %s: %w", snap.Revision, err)
	}
	if err := s.cache.Bump(ctx, snap.Revision); err != nil {
		s.warn("permission cache bump", err)
		return nil
	}
	if err := s.cache.Put(ctx, snap); err != nil {
		s.warn("permission cache fill", err)
	}
	return nil
}

// ListRevisions returns recent revisions, newest first.
func (s *Store) ListRevisions(ctx context.Context, limit int) ([]RevisionInfo, error) {
	return s.repo.ListRevisions(ctx, limit)
}

// Subscribe forwards revisions announced by other instances.
func (s *Store) Subscribe(ctx context.Context, fn func(revision uuid.UUID)) error {
	return s.cache.Subscribe(ctx, fn)
}

func (s *Store) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}
