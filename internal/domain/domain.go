// Package domain aggregates the persisted model types so data and module
// layers can import one package. The models themselves live in focused
// sub-packages by area.
package domain

import (
	"github.com/fredpottier/kbgraph/internal/domain/assertions"
	"github.com/fredpottier/kbgraph/internal/domain/catalog"
	"github.com/fredpottier/kbgraph/internal/domain/jobs"
	"github.com/fredpottier/kbgraph/internal/domain/relations"
)

type (
	Concept           = catalog.Concept
	UnresolvedMention = catalog.UnresolvedMention

	RawAssertion = assertions.RawAssertion

	CanonicalRelation     = relations.CanonicalRelation
	RelationChain         = relations.RelationChain
	PredicateClusterLabel = relations.PredicateClusterLabel

	JobRun      = jobs.JobRun
	JobRunEvent = jobs.JobRunEvent
)
