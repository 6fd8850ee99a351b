package steps

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// NormalizePredicate is the cheap, purely syntactic half of predicate
// handling: trim, lowercase, fold hyphen/underscore variants, collapse
// whitespace. Semantic typing happens at the cluster level, never here.
func NormalizePredicate(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// PredicateInContext is the unit of clustering: one distinct usage of a
// normalized predicate between two concept types. Classifier cost scales
// with distinct usages, not corpus size.
func PredicateInContext(predicateNorm, subjectType, objectType string) string {
	return fmt.Sprintf("%s [%s -> %s]", predicateNorm, subjectType, objectType)
}

// ClusterIDFor derives a stable cluster id from the lexicographically
// smallest member context, namespaced by mapping version so a version bump
// invalidates every cached label at once.
func ClusterIDFor(mappingVersion string, memberContexts []string) string {
	smallest := ""
	for _, c := range memberContexts {
		if smallest == "" || c < smallest {
			smallest = c
		}
	}
	h := sha256.Sum256([]byte(mappingVersion + "|" + smallest))
	return "pc_" + hex.EncodeToString(h[:8])
}

var genericPredicates = map[string]bool{
	"is":              true,
	"are":             true,
	"was":             true,
	"has":             true,
	"have":            true,
	"does":            true,
	"relates to":      true,
	"is related to":   true,
	"related to":      true,
	"involves":        true,
	"concerns":        true,
	"associated with": true,
	"refers":          true,
}

// GenericPredicate reports whether the normalized predicate carries too
// little signal to type on its own.
func GenericPredicate(predicateNorm string) bool {
	return genericPredicates[predicateNorm]
}

var genericTerms = map[string]bool{
	"system":      true,
	"process":     true,
	"solution":    true,
	"component":   true,
	"service":     true,
	"module":      true,
	"platform":    true,
	"application": true,
	"tool":        true,
	"data":        true,
	"information": true,
	"approach":    true,
	"method":      true,
	"feature":     true,
	"product":     true,
}

// GenericTerm reports whether a concept name is a generic catch-all word.
func GenericTerm(name string) bool {
	return genericTerms[strings.ToLower(strings.TrimSpace(name))]
}

var pronouns = map[string]bool{
	"it": true, "its": true, "they": true, "them": true, "their": true,
	"this": true, "that": true, "these": true, "those": true,
	"he": true, "she": true, "him": true, "her": true, "we": true, "us": true,
}

// PronounDominated reports whether pronouns make up more than 40% of the
// evidence tokens, a sign the span lost its referents when it was cut.
func PronounDominated(evidence string) bool {
	fields := strings.Fields(strings.ToLower(evidence))
	if len(fields) == 0 {
		return false
	}
	n := 0
	for _, f := range fields {
		if pronouns[strings.Trim(f, ".,;:!?\"'()")] {
			n++
		}
	}
	return float64(n)/float64(len(fields)) > 0.40
}

var definitionalCues = []string{
	"is defined as",
	"refers to",
	"is a type of",
	"is a kind of",
	"stands for",
	"consists of",
	"means that",
}

// HasDefinitionalCue reports whether the evidence reads like a definition,
// which lets a single high-confidence assertion validate on its own.
func HasDefinitionalCue(evidence string) bool {
	low := strings.ToLower(evidence)
	for _, cue := range definitionalCues {
		if strings.Contains(low, cue) {
			return true
		}
	}
	return false
}
