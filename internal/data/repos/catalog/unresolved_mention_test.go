package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fredpottier/kbgraph/internal/data/repos/testutil"
	"github.com/fredpottier/kbgraph/internal/domain"
	domaincatalog "github.com/fredpottier/kbgraph/internal/domain/catalog"
)

func TestUnresolvedMentionRecordBumpsOccurrences(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewUnresolvedMentionRepo(tx, testutil.Logger(t))

	tenantID := "tenant-mention"
	first := &domain.UnresolvedMention{
		ID:          uuid.New(),
		TenantID:    tenantID,
		MentionNorm: "service mesh",
		Mention:     "Service Mesh",
		Context:     "traffic is routed through the service mesh",
		Occurrences: 1,
		Status:      domaincatalog.MentionStatusPending,
	}
	if err := repo.Record(ctx, tx, first); err != nil {
		t.Fatalf("first record: %v", err)
	}

	repeat := &domain.UnresolvedMention{
		ID:          uuid.New(),
		TenantID:    tenantID,
		MentionNorm: "service mesh",
		Mention:     "service mesh",
		Context:     "observed again in a later chunk",
		Occurrences: 1,
		Status:      domaincatalog.MentionStatusPending,
	}
	if err := repo.Record(ctx, tx, repeat); err != nil {
		t.Fatalf("repeat record: %v", err)
	}

	rows, err := repo.ListByTenant(ctx, tx, tenantID, domaincatalog.MentionStatusPending, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one deduped mention, got %d", len(rows))
	}
	if rows[0].Occurrences != 2 {
		t.Fatalf("expected 2 occurrences, got %d", rows[0].Occurrences)
	}
	if rows[0].Context != "observed again in a later chunk" {
		t.Fatalf("repeat sighting did not refresh context: %q", rows[0].Context)
	}
	if rows[0].ID != first.ID {
		t.Fatalf("repeat sighting replaced the original row")
	}
}

func TestUnresolvedMentionStatusTransition(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewUnresolvedMentionRepo(tx, testutil.Logger(t))

	tenantID := "tenant-mention-status"
	row := &domain.UnresolvedMention{
		ID:          uuid.New(),
		TenantID:    tenantID,
		MentionNorm: "edge gateway",
		Mention:     "Edge Gateway",
		Occurrences: 1,
		Status:      domaincatalog.MentionStatusPending,
	}
	if err := repo.Record(ctx, tx, row); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := repo.UpdateStatus(ctx, tx, row.ID, domaincatalog.MentionStatusPromoted); err != nil {
		t.Fatalf("update status: %v", err)
	}

	pending, err := repo.ListByTenant(ctx, tx, tenantID, domaincatalog.MentionStatusPending, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("promoted mention still listed as pending")
	}
	promoted, err := repo.ListByTenant(ctx, tx, tenantID, domaincatalog.MentionStatusPromoted, 10)
	if err != nil {
		t.Fatalf("list promoted: %v", err)
	}
	if len(promoted) != 1 || promoted[0].ID != row.ID {
		t.Fatalf("expected the promoted row, got %d rows", len(promoted))
	}
}
