package steps

import "testing"

func TestNormalizePredicate(t *testing.T) {
	cases := map[string]string{
		"  Depends-On ":       "depends on",
		"depends_on":          "depends on",
		"DEPENDS   ON":        "depends on",
		"is-a_type_of":        "is a type of",
		"requires":            "requires",
		"\tRuns  On\n":        "runs on",
		"integrates_with-the": "integrates with the",
	}
	for raw, want := range cases {
		if got := NormalizePredicate(raw); got != want {
			t.Fatalf("NormalizePredicate(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestClusterIDForStableAcrossMemberOrder(t *testing.T) {
	a := ClusterIDFor("v1", []string{"requires [tech -> tech]", "depends on [tech -> tech]"})
	b := ClusterIDFor("v1", []string{"depends on [tech -> tech]", "requires [tech -> tech]"})
	if a != b {
		t.Fatalf("cluster id changed with member order: %s vs %s", a, b)
	}
	if ClusterIDFor("v2", []string{"depends on [tech -> tech]"}) == a {
		t.Fatalf("cluster id must change with mapping version")
	}
}

func TestPronounDominated(t *testing.T) {
	if !PronounDominated("It does this because they want it.") {
		t.Fatalf("expected pronoun-dominated evidence to be flagged")
	}
	if PronounDominated("The gateway forwards authenticated requests to the billing service.") {
		t.Fatalf("plain evidence flagged as pronoun dominated")
	}
	if PronounDominated("") {
		t.Fatalf("empty evidence must not be flagged")
	}
	// The threshold sits at 40%: one pronoun in three tokens passes, two
	// in four do not.
	if PronounDominated("It routes requests.") {
		t.Fatalf("a third pronouns must stay under the threshold")
	}
	if !PronounDominated("They configure it correctly.") {
		t.Fatalf("half pronouns must be flagged")
	}
}

func TestGenericPredicateAndTerm(t *testing.T) {
	if !GenericPredicate("relates to") || !GenericPredicate("is") {
		t.Fatalf("expected generic predicates to be flagged")
	}
	if GenericPredicate("depends on") {
		t.Fatalf("depends on is not generic")
	}
	if !GenericTerm(" System ") || !GenericTerm("data") {
		t.Fatalf("expected generic terms to be flagged")
	}
	if GenericTerm("Kubernetes") {
		t.Fatalf("specific concept name flagged as generic")
	}
}

func TestHasDefinitionalCue(t *testing.T) {
	if !HasDefinitionalCue("OAuth is defined as an open authorization standard.") {
		t.Fatalf("definitional evidence not detected")
	}
	if HasDefinitionalCue("The cache invalidates entries after the lease expires.") {
		t.Fatalf("non-definitional evidence detected as definitional")
	}
}
