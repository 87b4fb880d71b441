package graph

import (
	"errors"
	"testing"
)

func TestNormalizeRelationType(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"develops", "DEVELOPS"},
		{"is part of", "IS_PART_OF"},
		{"  acquired--by  ", "ACQUIRED_BY"},
		{"works @ company", "WORKS_COMPANY"},
		{"v2.0 release", "V2_0_RELEASE"},
		{"", "RELATED"},
		{"---", "RELATED"},
	}
	for _, tc := range cases {
		if got := NormalizeRelationType(tc.in); got != tc.want {
			t.Fatalf("NormalizeRelationType(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsMissingProcedure(t *testing.T) {
	if !isMissingProcedure(errors.New("Neo.ClientError.Procedure.ProcedureNotFound: apoc.merge.relationship")) {
		t.Fatal("procedure-not-found error should match")
	}
	if !isMissingProcedure(errors.New("There is no procedure with the name `apoc.merge.relationship`")) {
		t.Fatal("legacy missing-procedure phrasing should match")
	}
	if isMissingProcedure(nil) {
		t.Fatal("nil error must not match")
	}
	if isMissingProcedure(errors.New("connection refused")) {
		t.Fatal("transport error must not match")
	}
}
