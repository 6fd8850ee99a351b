package assertion_ingest

import (
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	jobtypes "github.com/fredpottier/kbgraph/internal/domain/jobs"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
)

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	concepts   repos.ConceptRepo
	mentions   repos.UnresolvedMentionRepo
	assertions repos.RawAssertionRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	concepts repos.ConceptRepo,
	mentions repos.UnresolvedMentionRepo,
	assertions repos.RawAssertionRepo,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", jobtypes.KindAssertionIngest),
		concepts:   concepts,
		mentions:   mentions,
		assertions: assertions,
	}
}

func (p *Pipeline) Kind() string { return jobtypes.KindAssertionIngest }
