package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	"github.com/fredpottier/kbgraph/internal/domain"
	jobtypes "github.com/fredpottier/kbgraph/internal/domain/jobs"
	"github.com/fredpottier/kbgraph/internal/pkg/dbctx"
	"github.com/fredpottier/kbgraph/internal/platform/ctxutil"
	"github.com/fredpottier/kbgraph/internal/services"
)

// Context is the execution handle for one claimed job run. Pipelines never
// touch the job_run row directly: Progress, Fail and Succeed are the only
// sanctioned transitions, and each one is guarded so a canceled run is never
// overwritten. Progress messages additionally land in job_run_event for
// after-the-fact forensics.
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *domain.JobRun
	Runs   repos.JobRunRepo
	Events repos.JobRunEventRepo
	Notify services.JobNotifier

	params map[string]any
}

// NewContext eagerly decodes the run's params JSON so handlers read inputs
// via Param helpers. A malformed params blob yields an empty map; handlers
// validate required fields themselves.
func NewContext(ctx context.Context, db *gorm.DB, job *domain.JobRun, runs repos.JobRunRepo, events repos.JobRunEventRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Runs:   runs,
		Events: events,
		Notify: notify,
	}
	c.decodeParams()
	c.applyTraceData()
	return c
}

func (c *Context) decodeParams() {
	c.params = map[string]any{}
	if c.Job == nil || len(c.Job.Params) == 0 {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Params, &m); err == nil {
		c.params = m
	}
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	traceID := strings.TrimSpace(paramString(c.params, "trace_id"))
	reqID := strings.TrimSpace(paramString(c.params, "request_id"))
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

func paramString(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Params never returns nil.
func (c *Context) Params() map[string]any {
	if c.params == nil {
		c.params = map[string]any{}
	}
	return c.params
}

func (c *Context) ParamString(key string) string {
	return paramString(c.Params(), key)
}

func (c *Context) ParamBool(key string) bool {
	v, ok := c.Params()[key]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}

func (c *Context) ParamFloat(key string, def float64) float64 {
	v, ok := c.Params()[key]
	if !ok || v == nil {
		return def
	}
	switch f := v.(type) {
	case float64:
		return f
	case json.Number:
		if x, err := f.Float64(); err == nil {
			return x
		}
	}
	return def
}

func (c *Context) ParamInt(key string, def int) int {
	v, ok := c.Params()[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		if x, err := n.Int64(); err == nil {
			return int(x)
		}
	}
	return def
}

func (c *Context) recordEvent(stage string, progress int, message string, detail map[string]any) {
	if c.Events == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	var d datatypes.JSON
	if len(detail) > 0 {
		if b, err := json.Marshal(detail); err == nil {
			d = datatypes.JSON(b)
		}
	}
	_ = c.Events.Create(dbctx.Context{Ctx: c.Ctx}, []*domain.JobRunEvent{{
		ID:       uuid.New(),
		RunID:    c.Job.ID,
		Stage:    stage,
		Progress: progress,
		Message:  message,
		Detail:   d,
	}})
}

// Progress persists a non-terminal stage/progress update, heartbeats the
// claim, appends an event row, and notifies subscribers. A canceled run
// swallows the update.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	if c.Runs != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Runs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{jobtypes.StatusCanceled}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	c.recordEvent(stage, pct, msg, nil)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job.TenantID, c.Job, stage, pct, msg)
	}
}

// Fail marks the run terminally failed, releases the claim, and notifies.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Runs != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Runs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{jobtypes.StatusCanceled}, map[string]interface{}{
			"status":        jobtypes.StatusFailed,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"finished_at":   now,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = jobtypes.StatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.FinishedAt = &now
		c.Job.UpdatedAt = now
	}

	c.recordEvent(stage, c.jobProgress(), msg, nil)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job.TenantID, c.Job, stage, msg)
	}
}

// Succeed marks the run terminally succeeded and stores the result payload.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}

	if c.Runs != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Runs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{jobtypes.StatusCanceled}, map[string]interface{}{
			"status":       jobtypes.StatusSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"finished_at":  now,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = jobtypes.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.FinishedAt = &now
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	c.recordEvent(finalStage, 100, "done", nil)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job.TenantID, c.Job)
	}
}

func (c *Context) jobProgress() int {
	if c.Job == nil {
		return 0
	}
	return c.Job.Progress
}
