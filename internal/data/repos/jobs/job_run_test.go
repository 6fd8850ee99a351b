package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fredpottier/kbgraph/internal/data/repos/testutil"
	"github.com/fredpottier/kbgraph/internal/domain"
	jobtypes "github.com/fredpottier/kbgraph/internal/domain/jobs"
	"github.com/fredpottier/kbgraph/internal/pkg/dbctx"
)

func ptrTime(t time.Time) *time.Time { return &t }

func TestJobRunRepoClaimOrderAndRecovery(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	tenant := "t-" + uuid.NewString()
	now := time.Now().UTC()

	queued := &domain.JobRun{
		ID:        uuid.New(),
		TenantID:  tenant,
		Kind:      jobtypes.KindRelationConsolidate,
		Status:    jobtypes.StatusQueued,
		Params:    datatypes.JSON([]byte(`{"mapping_version":"v1"}`)),
		CreatedAt: now.Add(-3 * time.Hour),
		UpdatedAt: now.Add(-3 * time.Hour),
	}
	retryableFailed := &domain.JobRun{
		ID:          uuid.New(),
		TenantID:    tenant,
		Kind:        jobtypes.KindChainDetect,
		Status:      jobtypes.StatusFailed,
		Attempts:    1,
		LastErrorAt: ptrTime(now.Add(-2 * time.Hour)),
		CreatedAt:   now.Add(-2 * time.Hour),
		UpdatedAt:   now.Add(-2 * time.Hour),
	}
	staleRunning := &domain.JobRun{
		ID:          uuid.New(),
		TenantID:    tenant,
		Kind:        jobtypes.KindRelationConsolidate,
		Status:      jobtypes.StatusRunning,
		HeartbeatAt: ptrTime(now.Add(-1 * time.Hour)),
		CreatedAt:   now.Add(-1 * time.Hour),
		UpdatedAt:   now.Add(-1 * time.Hour),
	}
	freshRunning := &domain.JobRun{
		ID:          uuid.New(),
		TenantID:    tenant,
		Kind:        jobtypes.KindChainDetect,
		Status:      jobtypes.StatusRunning,
		HeartbeatAt: ptrTime(now),
		CreatedAt:   now.Add(-30 * time.Minute),
		UpdatedAt:   now.Add(-30 * time.Minute),
	}

	if _, err := repo.Create(dbc, []*domain.JobRun{queued, retryableFailed, staleRunning, freshRunning}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Oldest runnable first: queued, then the retryable failure, then the
	// stale runner. The fresh runner is never reclaimed.
	wantOrder := []uuid.UUID{queued.ID, retryableFailed.ID, staleRunning.ID}
	for i, want := range wantOrder {
		got, err := repo.ClaimNextRunnable(dbc, 5, 30*time.Second, 2*time.Minute)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if got == nil || got.ID != want {
			t.Fatalf("claim %d: got %v, want %s", i, got, want)
		}
	}
	got, err := repo.ClaimNextRunnable(dbc, 5, 30*time.Second, 2*time.Minute)
	if err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if got != nil {
		t.Fatalf("fresh running job was reclaimed: %s", got.ID)
	}
}

func TestJobRunRepoCanceledGuard(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	run := &domain.JobRun{
		ID:       uuid.New(),
		TenantID: "t-" + uuid.NewString(),
		Kind:     jobtypes.KindRelationConsolidate,
		Status:   jobtypes.StatusCanceled,
	}
	if _, err := repo.Create(dbc, []*domain.JobRun{run}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, run.ID, []string{jobtypes.StatusCanceled}, map[string]interface{}{
		"status": jobtypes.StatusSucceeded,
	})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("canceled run was overwritten")
	}

	fetched, err := repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != jobtypes.StatusCanceled {
		t.Fatalf("status changed to %s", fetched.Status)
	}
}

func TestJobRunRepoHasRunnable(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	tenant := "t-" + uuid.NewString()
	ok, err := repo.HasRunnable(dbc, tenant, jobtypes.KindChainDetect)
	if err != nil {
		t.Fatalf("HasRunnable: %v", err)
	}
	if ok {
		t.Fatalf("empty tenant reported runnable work")
	}

	if _, err := repo.Create(dbc, []*domain.JobRun{{
		ID:       uuid.New(),
		TenantID: tenant,
		Kind:     jobtypes.KindChainDetect,
		Status:   jobtypes.StatusQueued,
	}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err = repo.HasRunnable(dbc, tenant, jobtypes.KindChainDetect)
	if err != nil {
		t.Fatalf("HasRunnable: %v", err)
	}
	if !ok {
		t.Fatalf("queued run not reported runnable")
	}
}
