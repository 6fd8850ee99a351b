package prompts

func RegisterAll() {
	RegisterSpec(Spec{
		Name:       PromptPredicateClusterTypes,
		Version:    1,
		SchemaName: "predicate_cluster_types",
		Schema:     PredicateClusterTypesSchema,
		System: `
You classify clusters of normalized relation predicates from technical documentation
into a closed vocabulary of relation types.
Rules:
- Assign exactly one relation_type per cluster, chosen ONLY from the allowed list.
- Use ASSOCIATED_WITH when the predicates are real but fit no specific type.
- Use UNKNOWN when the predicates are too vague or contradictory to classify.
- confidence is your classification confidence in [0,1], not the truth of the facts.
Return JSON only.`,
		User: `
Allowed relation types:
{{.RelationTypesCSV}}

Vocabulary version: {{.VocabularyVersion}}

Predicate clusters (cluster_id with member predicates and counts):
{{.ClustersJSON}}

Classify every cluster. Do not skip any cluster_id and do not invent new ones.`,
		Validators: []Validator{
			RequireNonEmpty("ClustersJSON", func(in Input) string { return in.ClustersJSON }),
			RequireNonEmpty("RelationTypesCSV", func(in Input) string { return in.RelationTypesCSV }),
		},
	})
}

func PredicateClusterTypesSchema() map[string]any {
	assignment := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cluster_id":    map[string]any{"type": "string"},
			"relation_type": map[string]any{"type": "string"},
			"confidence":    map[string]any{"type": "number"},
		},
		"required":             []string{"cluster_id", "relation_type", "confidence"},
		"additionalProperties": false,
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"schema_version": map[string]any{"type": "integer"},
			"assignments":    map[string]any{"type": "array", "items": assignment},
		},
		"required":             []string{"schema_version", "assignments"},
		"additionalProperties": false,
	}
}
