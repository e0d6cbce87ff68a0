package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/farmdesk/farmdesk/internal/jobs"
	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/permission/store"
)

// HeadLoader reads the stored head revision; *store.Repository implements it.
type HeadLoader interface {
	Load(ctx context.Context) (*permission.Snapshot, error)
}

// SnapshotCache is the cache side of the check; *store.Cache implements it.
type SnapshotCache interface {
	Get(ctx context.Context) (*permission.Snapshot, error)
	Put(ctx context.Context, snap *permission.Snapshot) error
}

// VerifyHandler confirms that the stored head is a complete matrix and that the
// cached snapshot matches it. A stale or missing cache entry is rewritten.
type VerifyHandler struct {
	Head    HeadLoader
	Cache   SnapshotCache
	Modules []permission.Module
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// ProcessTask implements asynq.Handler.
func (h VerifyHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	tracker := h.Metrics.Track(TaskPermissionVerify)
	return tracker.End(h.Verify(ctx))
}

// Verify runs the check once.
func (h VerifyHandler) Verify(ctx context.Context) error {
	head, err := h.Head.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		h.log().Info("permission verify: nothing stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load stored matrix: %w", err)
	}
	modules := h.Modules
	if len(modules) == 0 {
		modules = permission.Modules()
	}
	if err := permission.Validate(head.Matrix, modules); err != nil {
		return fmt.Errorf("stored revision %s: %w", head.Revision, err)
	}
	if h.Cache == nil {
		return nil
	}

	cached, err := h.Cache.Get(ctx)
	switch {
	case errors.Is(err, store.ErrCacheMiss):
	case err != nil:
		return fmt.Errorf("read cached matrix: %w", err)
	case cached.Revision == head.Revision && cached.Fingerprint == head.Fingerprint:
		return nil
	default:
		h.Metrics.AddDrift()
		h.log().Warn("permission cache drift",
			slog.String("cached", cached.Revision.String()),
			slog.String("stored", head.Revision.String()),
		)
	}
	if err := h.Cache.Put(ctx, head); err != nil {
		return fmt.Errorf("refresh cached matrix: %w", err)
	}
	return nil
}

func (h VerifyHandler) log() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
