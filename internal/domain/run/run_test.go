package run

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/crossret/internal/domain"
)

func TestTieBreak(t *testing.T) {
	hits := []Hit{
		{DocID: "c", Score: 1.0},
		{DocID: "b", Score: 2.0},
		{DocID: "a", Score: 1.0},
	}
	got := TieBreak(hits)
	want := []string{"b", "a", "c"}
	for i, h := range got {
		if h.DocID != want[i] {
			t.Fatalf("position %d: got %s, want %s (%v)", i, h.DocID, want[i], got)
		}
	}
	if hits[0].DocID != "c" {
		t.Error("input must not be reordered")
	}
}

func TestRank(t *testing.T) {
	hits := []Hit{{DocID: "x", Score: 0.5}, {DocID: "y", Score: 0.9}, {DocID: "z", Score: 0.1}}

	entries := Rank("q1", hits, 2, "tag")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].DocID != "y" || entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Errorf("unexpected entries: %+v", entries)
	}
	if got := entries[0].String(); got != "q1 Q0 y 1 0.900000 tag" {
		t.Errorf("String() = %q", got)
	}

	if all := Rank("q1", hits, 0, "tag"); len(all) != 3 {
		t.Errorf("maxHits 0 must keep all, got %d", len(all))
	}
}

func TestParse(t *testing.T) {
	e, err := Parse("q1 Q0 d7 3 -1.250000 run-tag")
	if err != nil {
		t.Fatal(err)
	}
	if e.QueryID != "q1" || e.DocID != "d7" || e.Rank != 3 || e.Score != -1.25 || e.Tag != "run-tag" {
		t.Errorf("unexpected entry: %+v", e)
	}

	for _, bad := range []string{"q1 Q0 d7 3 1.0", "q1 Q0 d7 x 1.0 t", "q1 Q0 d7 1 nan? t"} {
		if _, err := Parse(bad); !errors.Is(err, domain.ErrMalformedLine) {
			t.Errorf("Parse(%q): expected ErrMalformedLine, got %v", bad, err)
		}
	}
}
