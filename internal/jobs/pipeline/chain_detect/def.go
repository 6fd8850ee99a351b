package chain_detect

import (
	"gorm.io/gorm"

	"github.com/fredpottier/kbgraph/internal/data/repos"
	jobtypes "github.com/fredpottier/kbgraph/internal/domain/jobs"
	"github.com/fredpottier/kbgraph/internal/platform/logger"
	"github.com/fredpottier/kbgraph/internal/platform/neo4jdb"
)

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	concepts  repos.ConceptRepo
	relations repos.CanonicalRelationRepo
	chains    repos.RelationChainRepo
	graph     *neo4jdb.Client

	hubDegreeMax       int
	minInformativeness float64
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	concepts repos.ConceptRepo,
	relations repos.CanonicalRelationRepo,
	chains repos.RelationChainRepo,
	graph *neo4jdb.Client,
	hubDegreeMax int,
	minInformativeness float64,
) *Pipeline {
	return &Pipeline{
		db:                 db,
		log:                baseLog.With("job", jobtypes.KindChainDetect),
		concepts:           concepts,
		relations:          relations,
		chains:             chains,
		graph:              graph,
		hubDegreeMax:       hubDegreeMax,
		minInformativeness: minInformativeness,
	}
}

func (p *Pipeline) Kind() string { return jobtypes.KindChainDetect }
