package relations

// Controlled relation vocabulary. Fourteen core types, two special types for
// weak or contradictory evidence, and UNKNOWN as the degradation target when
// classification is unavailable or unconvincing.
const (
	TypeRequires       = "REQUIRES"
	TypeUses           = "USES"
	TypeEnables        = "ENABLES"
	TypePartOf         = "PART_OF"
	TypeCauses         = "CAUSES"
	TypePrevents       = "PREVENTS"
	TypePrecedes       = "PRECEDES"
	TypeReplaces       = "REPLACES"
	TypeImplements     = "IMPLEMENTS"
	TypeExtends        = "EXTENDS"
	TypeIntegratesWith = "INTEGRATES_WITH"
	TypeProduces       = "PRODUCES"
	TypeConfigures     = "CONFIGURES"
	TypeMeasures       = "MEASURES"

	TypeAssociatedWith = "ASSOCIATED_WITH"
	TypeConflictsWith  = "CONFLICTS_WITH"

	TypeUnknown = "UNKNOWN"
)

var coreTypes = map[string]bool{
	TypeRequires:       true,
	TypeUses:           true,
	TypeEnables:        true,
	TypePartOf:         true,
	TypeCauses:         true,
	TypePrevents:       true,
	TypePrecedes:       true,
	TypeReplaces:       true,
	TypeImplements:     true,
	TypeExtends:        true,
	TypeIntegratesWith: true,
	TypeProduces:       true,
	TypeConfigures:     true,
	TypeMeasures:       true,
	TypeAssociatedWith: true,
	TypeConflictsWith:  true,
	TypeUnknown:        true,
}

// ValidType reports whether s is a member of the controlled vocabulary.
func ValidType(s string) bool { return coreTypes[s] }

// AllTypes returns the vocabulary for prompt construction (stable order).
func AllTypes() []string {
	return []string{
		TypeRequires, TypeUses, TypeEnables, TypePartOf, TypeCauses,
		TypePrevents, TypePrecedes, TypeReplaces, TypeImplements, TypeExtends,
		TypeIntegratesWith, TypeProduces, TypeConfigures, TypeMeasures,
		TypeAssociatedWith, TypeConflictsWith, TypeUnknown,
	}
}
