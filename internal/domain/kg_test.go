package domain

import "testing"

func TestTripleSerializeRoundTrip(t *testing.T) {
	in := Triple{Subject: `Company "A"`, Relation: "acquired", Object: "Company, B"}
	out, err := ParseTriple(in.Serialize())
	if err != nil {
		t.Fatalf("ParseTriple: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestParseTripleRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "not json", `["a","b"]`, `["a","b","c","d"]`, `{"subject":"a"}`} {
		if _, err := ParseTriple(s); err == nil {
			t.Fatalf("ParseTriple(%q) accepted malformed input", s)
		}
	}
}

func TestTripleValid(t *testing.T) {
	if (Triple{Subject: "a", Relation: "r", Object: "b"}).Valid() != true {
		t.Fatal("complete triple should be valid")
	}
	if (Triple{Subject: " ", Relation: "r", Object: "b"}).Valid() {
		t.Fatal("blank subject should be invalid")
	}
}

func TestNormalizeEntityType(t *testing.T) {
	cases := map[string]EntityType{
		"person":       EntityPerson,
		"Organisation": EntityOrganization,
		"ORG":          EntityOrganization,
		"place":        EntityLocation,
		"topic":        EntityConcept,
		"something":    EntityOther,
		"":             EntityOther,
	}
	for in, want := range cases {
		if got := NormalizeEntityType(in); got != want {
			t.Fatalf("NormalizeEntityType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseConflictResolution(t *testing.T) {
	if r, err := ParseConflictResolution(" Keep_Existing "); err != nil || r != ResolutionKeepExisting {
		t.Fatalf("got %q, %v", r, err)
	}
	if _, err := ParseConflictResolution("discard"); err == nil {
		t.Fatal("unknown value should be rejected")
	}
}
