package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Catalog (closed world)
		// =========================
		&domain.Concept{},
		&domain.UnresolvedMention{},

		// =========================
		// Assertions (append-only evidence)
		// =========================
		&domain.RawAssertion{},

		// =========================
		// Consolidated relations + derived chains
		// =========================
		&domain.CanonicalRelation{},
		&domain.RelationChain{},
		&domain.PredicateClusterLabel{},

		// =========================
		// Jobs / worker
		// =========================
		&domain.JobRun{},
		&domain.JobRunEvent{},
	)
}

func EnsureRelationIndexes(db *gorm.DB) error {
	// Keyset consolidation scans groups in (subject, object, predicate_norm)
	// order; the composite index makes each page an index range scan.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_raw_assertion_keyset
		ON raw_assertion (tenant_id, subject_concept_id, object_concept_id, predicate_norm, id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_raw_assertion_keyset: %w", err)
	}

	// Unlinked assertions are re-linked in micro-batches after consolidation.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_raw_assertion_unlinked
		ON raw_assertion (tenant_id, id)
		WHERE canonical_relation_id IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_raw_assertion_unlinked: %w", err)
	}

	// Chain detection walks validated relations by subject within a tenant.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_canonical_chain_walk
		ON canonical_relation (tenant_id, maturity, subject_concept_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_canonical_chain_walk: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureRelationIndexes(s.db); err != nil {
		s.log.Error("Relation index migration failed", "error", err)
		return err
	}
	return nil
}
