package steps

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func deterministicUUID(s string) uuid.UUID {
	h := sha256.Sum256([]byte(s))
	id, err := uuid.FromBytes(h[:16])
	if err != nil {
		return uuid.New()
	}
	return id
}

// CanonicalRelationID is the stable identity of one (tenant, subject,
// object, relation type) aggregate. Reprocessing the same inputs must
// reproduce the same id, so it is a hash, never a random uuid.
func CanonicalRelationID(tenantID string, subjectID, objectID uuid.UUID, relationType string) uuid.UUID {
	return deterministicUUID(fmt.Sprintf("canonical_relation|%s|%s|%s|%s",
		tenantID, subjectID.String(), objectID.String(), relationType))
}

// ChainID is content-addressed by the ordered relation sequence, the concept
// path and the chain type, so rerunning detection over unchanged relations
// reproduces identical rows. Relation ids are part of the identity: two
// distinct relation sequences can traverse the same concepts.
func ChainID(tenantID, chainType string, relationIDs, conceptPath []uuid.UUID) uuid.UUID {
	rels := make([]string, 0, len(relationIDs))
	for _, id := range relationIDs {
		rels = append(rels, id.String())
	}
	parts := make([]string, 0, len(conceptPath))
	for _, id := range conceptPath {
		parts = append(parts, id.String())
	}
	return deterministicUUID(fmt.Sprintf("chain|%s|%s|%s|%s",
		tenantID, chainType, strings.Join(rels, ">"), strings.Join(parts, ">")))
}

// AssertionFingerprint dedups evidence observations: the same extraction
// from the same span of the same chunk is one fact observation no matter how
// many times a batch is retried.
func AssertionFingerprint(tenantID, documentID, chunkID string, subjectID, objectID uuid.UUID, predicateNorm, evidenceText string) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		tenantID,
		documentID,
		chunkID,
		subjectID.String(),
		objectID.String(),
		predicateNorm,
		evidenceText,
	}, "|")))
	return hex.EncodeToString(h[:])
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp(v, floor, ceiling float64) float64 {
	if v < floor {
		return floor
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
