package jobs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	runtimejobs "github.com/fredpottier/kbgraph/internal/jobs/runtime"
	"github.com/fredpottier/kbgraph/internal/pkg/dbctx"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/services"
)

type WorkerConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	StaleRunning      time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:      1 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		MaxAttempts:       5,
		RetryDelay:        30 * time.Second,
		StaleRunning:      2 * time.Minute,
	}
}

// Worker polls for runnable job runs and dispatches them to registered
// handlers. Claims use FOR UPDATE SKIP LOCKED so several workers can share
// one queue; a heartbeat goroutine keeps the claim fresh while a handler
// runs so only genuinely dead runs get re-claimed.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	runs     repos.JobRunRepo
	events   repos.JobRunEventRepo
	registry *runtimejobs.Registry
	notify   services.JobNotifier
	cfg      WorkerConfig
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, runs repos.JobRunRepo, events repos.JobRunEventRepo, registry *runtimejobs.Registry, notify services.JobNotifier, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg = DefaultWorkerConfig()
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		runs:     runs,
		events:   events,
		registry: registry,
		notify:   notify,
		cfg:      cfg,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

func (w *Worker) poll(ctx context.Context) {
	job, err := w.runs.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		w.log.Warn("claim next runnable failed", "error", err)
		return
	}
	if job == nil {
		return
	}

	runCtx, span := otel.Tracer("kbgraph/jobs").Start(ctx, "job.run",
		trace.WithAttributes(
			attribute.String("job.kind", job.Kind),
			attribute.String("job.id", job.ID.String()),
			attribute.String("job.tenant_id", job.TenantID),
		))
	defer span.End()

	jc := runtimejobs.NewContext(runCtx, w.db, job, w.runs, w.events, w.notify)

	h, ok := w.registry.Get(job.Kind)
	if !ok {
		w.log.Warn("no handler registered", "kind", job.Kind, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for kind=%s", job.Kind))
		return
	}

	hbCtx, stopHB := context.WithCancel(ctx)
	go w.heartbeat(hbCtx, jc)
	defer stopHB()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panic", "job_id", job.ID, "kind", job.Kind, "panic", r)
			jc.Fail("panic", fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := h.Run(jc); err != nil {
		span.RecordError(err)
		w.log.Error("job dispatch error", "job_id", job.ID, "kind", job.Kind, "error", err)
	}
}

func (w *Worker) heartbeat(ctx context.Context, jc *runtimejobs.Context) {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if jc.Job == nil {
				return
			}
			if err := w.runs.Heartbeat(dbctx.Context{Ctx: ctx}, jc.Job.ID); err != nil {
				w.log.Warn("heartbeat failed (continuing)", "job_id", jc.Job.ID, "error", err)
			}
		}
	}
}
