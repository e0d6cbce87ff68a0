package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/farmdesk/farmdesk/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionAudit writes a permission change into audit_logs.
	TaskPermissionAudit = "permissions:audit"
	// TaskPermissionVerify checks the stored matrix against the cache.
	TaskPermissionVerify = "permissions:verify"
)

// NewAuditTask wraps entry into an Asynq task.
func NewAuditTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionAudit, data, asynq.MaxRetry(10)), nil
}

// NewVerifyTask builds the periodic verification task.
func NewVerifyTask() *asynq.Task {
	return asynq.NewTask(TaskPermissionVerify, nil, asynq.MaxRetry(0))
}
