package repos

import (
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos/assertions"
	"github.com/fredpottier/kbgraph/internal/data/repos/catalog"
	"github.com/fredpottier/kbgraph/internal/data/repos/jobs"
	"github.com/fredpottier/kbgraph/internal/data/repos/relations"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type ConceptRepo = catalog.ConceptRepo
type UnresolvedMentionRepo = catalog.UnresolvedMentionRepo

type RawAssertionRepo = assertions.RawAssertionRepo

type CanonicalRelationRepo = relations.CanonicalRelationRepo
type RelationChainRepo = relations.RelationChainRepo
type ClusterLabelRepo = relations.ClusterLabelRepo

type JobRunRepo = jobs.JobRunRepo
type JobRunEventRepo = jobs.JobRunEventRepo

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return catalog.NewConceptRepo(db, baseLog)
}
func NewUnresolvedMentionRepo(db *gorm.DB, baseLog *logger.Logger) UnresolvedMentionRepo {
	return catalog.NewUnresolvedMentionRepo(db, baseLog)
}

func NewRawAssertionRepo(db *gorm.DB, baseLog *logger.Logger) RawAssertionRepo {
	return assertions.NewRawAssertionRepo(db, baseLog)
}

func NewCanonicalRelationRepo(db *gorm.DB, baseLog *logger.Logger) CanonicalRelationRepo {
	return relations.NewCanonicalRelationRepo(db, baseLog)
}
func NewRelationChainRepo(db *gorm.DB, baseLog *logger.Logger) RelationChainRepo {
	return relations.NewRelationChainRepo(db, baseLog)
}
func NewClusterLabelRepo(db *gorm.DB, baseLog *logger.Logger) ClusterLabelRepo {
	return relations.NewClusterLabelRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
func NewJobRunEventRepo(db *gorm.DB, baseLog *logger.Logger) JobRunEventRepo {
	return jobs.NewJobRunEventRepo(db, baseLog)
}
