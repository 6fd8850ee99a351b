package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fredpottier/kbgraph/internal/domain"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/platform/redisdb"
)

// JobNotifier publishes job lifecycle events so operators and API consumers
// can follow long passes without polling job_run.
type JobNotifier interface {
	JobCreated(tenantID string, job *domain.JobRun)
	JobProgress(tenantID string, job *domain.JobRun, stage string, progress int, message string)
	JobFailed(tenantID string, job *domain.JobRun, stage string, errorMessage string)
	JobDone(tenantID string, job *domain.JobRun)
}

type jobNotifier struct {
	redis *redisdb.Client
	log   *logger.Logger
}

// NewJobNotifier publishes to the tenant's jobs channel on Redis pub/sub.
// Without Redis, events still land in the structured log.
func NewJobNotifier(redis *redisdb.Client, baseLog *logger.Logger) JobNotifier {
	return &jobNotifier{redis: redis, log: baseLog.With("service", "JobNotifier")}
}

func (n *jobNotifier) publish(tenantID, event string, data map[string]any) {
	data["event"] = event
	data["tenant_id"] = tenantID
	data["at"] = time.Now().UTC().Format(time.RFC3339)

	if n.redis == nil || n.redis.RDB == nil {
		n.log.Info("job event", "tenant", tenantID, "data", data)
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		n.log.Warn("job event marshal failed (continuing)", "tenant", tenantID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.redis.RDB.Publish(ctx, "jobs:"+tenantID, b).Err(); err != nil {
		n.log.Warn("job event publish failed (continuing)", "tenant", tenantID, "event", event, "error", err)
	}
}

func (n *jobNotifier) JobCreated(tenantID string, job *domain.JobRun) {
	n.publish(tenantID, "job_created", map[string]any{
		"job_id": job.ID.String(),
		"kind":   job.Kind,
	})
}

func (n *jobNotifier) JobProgress(tenantID string, job *domain.JobRun, stage string, progress int, message string) {
	n.publish(tenantID, "job_progress", map[string]any{
		"job_id":   job.ID.String(),
		"kind":     job.Kind,
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(tenantID string, job *domain.JobRun, stage string, errorMessage string) {
	n.publish(tenantID, "job_failed", map[string]any{
		"job_id": job.ID.String(),
		"kind":   job.Kind,
		"stage":  stage,
		"error":  errorMessage,
	})
}

func (n *jobNotifier) JobDone(tenantID string, job *domain.JobRun) {
	n.publish(tenantID, "job_done", map[string]any{
		"job_id": job.ID.String(),
		"kind":   job.Kind,
	})
}
