package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/farmdesk/farmdesk/internal/audit"
	jobmetrics "github.com/farmdesk/farmdesk/internal/jobs"
)

// AuditWriter persists audit entries; *audit.Recorder implements it.
type AuditWriter interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// AuditHandler processes TaskPermissionAudit tasks.
type AuditHandler struct {
	Writer  AuditWriter
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// ProcessTask implements asynq.Handler.
func (h AuditHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := h.Metrics.Track(TaskPermissionAudit)
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return tracker.End(fmt.Errorf("decode audit payload: %v: %w", err, asynq.SkipRetry))
	}
	if err := h.Writer.Record(ctx, entry); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("audit task failed", slog.String("entity_id", entry.EntityID), slog.Any("error", err))
		}
		return tracker.End(err)
	}
	return tracker.End(nil)
}

// AuditQueue enqueues audit entries for the worker; *Client implements it.
type AuditQueue interface {
	EnqueueAudit(ctx context.Context, entry audit.Entry) (*asynq.TaskInfo, error)
}

// FallbackAuditor hands entries to the worker queue and writes them inline when
// the queue is missing or rejects the task.
type FallbackAuditor struct {
	Queue  AuditQueue
	Inline AuditWriter
	Logger *slog.Logger
}

// Record implements authz.Auditor.
func (a FallbackAuditor) Record(ctx context.Context, entry audit.Entry) error {
	if a.Queue != nil {
		_, err := a.Queue.EnqueueAudit(ctx, entry)
		if err == nil {
			return nil
		}
		if a.Inline == nil {
			return err
		}
		if a.Logger != nil {
			a.Logger.Warn("enqueue audit failed, writing inline", slog.String("entity_id", entry.EntityID), slog.Any("error", err))
		}
	}
	if a.Inline == nil {
		return fmt.Errorf("audit: no writer configured")
	}
	return a.Inline.Record(ctx, entry)
}
