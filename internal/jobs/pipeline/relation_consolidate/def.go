package relation_consolidate

import (
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	jobtypes "github.com/fredpottier/kbgraph/internal/domain/jobs"
	"github.com/fredpottier/kbgraph/internal/modules/consolidation/steps"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/platform/redisdb"
)

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	concepts   repos.ConceptRepo
	assertions repos.RawAssertionRepo
	relations  repos.CanonicalRelationRepo
	classifier *steps.PredicateTypeClassifier
	redis      *redisdb.Client

	workers int
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	concepts repos.ConceptRepo,
	assertions repos.RawAssertionRepo,
	relations repos.CanonicalRelationRepo,
	classifier *steps.PredicateTypeClassifier,
	redis *redisdb.Client,
	workers int,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", jobtypes.KindRelationConsolidate),
		concepts:   concepts,
		assertions: assertions,
		relations:  relations,
		classifier: classifier,
		redis:      redis,
		workers:    workers,
	}
}

func (p *Pipeline) Kind() string { return jobtypes.KindRelationConsolidate }
