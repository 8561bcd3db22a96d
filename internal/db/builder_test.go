package db

import (
	"strings"
	"testing"
)

func mustBuild(t *testing.T, b *IndexBuilder) *IndexDefinition {
	t.Helper()
	def, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return def
}

func TestIndexBuilder_Text(t *testing.T) {
	idx := mustBuild(t, NewIndex("atomic.text.flat.small.validation").
		Prefix("crossret:doc:atomic.text.flat.small.validation:").
		Language("english").
		Text("contents"))

	if err := idx.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idx.Fields) != 1 || idx.Fields[0].Type != IndexFieldText {
		t.Fatalf("expected one TEXT field, got %+v", idx.Fields)
	}
	if idx.Language != "english" {
		t.Errorf("language = %q, want english", idx.Language)
	}
}

func TestIndexBuilder_VectorFlat(t *testing.T) {
	idx := mustBuild(t, NewIndex("vec-idx").
		Prefix("emb:").
		VectorFlat("vector", 512, DistanceIP, 0).
		InitialCap(1000))

	f := idx.Fields[0]
	if f.VectorAlgo != VectorFlat {
		t.Errorf("algo = %q, want FLAT", f.VectorAlgo)
	}
	if f.VectorDim != 512 {
		t.Errorf("dim = %d, want 512", f.VectorDim)
	}
	if f.VectorDistance != DistanceIP {
		t.Errorf("distance = %q, want IP", f.VectorDistance)
	}
	if f.VectorInitialCap != 1000 {
		t.Errorf("initial cap = %d, want 1000", f.VectorInitialCap)
	}
}

func TestIndexBuilder_VectorHNSW(t *testing.T) {
	idx := mustBuild(t, NewIndex("hnsw-idx").
		VectorHNSW("vector", 768, DistanceIP, 32, 400))

	f := idx.Fields[0]
	if f.VectorAlgo != VectorHNSW || f.VectorM != 32 || f.VectorEFConstruct != 400 {
		t.Errorf("unexpected field %+v", f)
	}
}

func TestIndexBuilder_Errors(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
	}{
		{"empty name", NewIndex("").Text("contents")},
		{"invalid name", NewIndex("bad name").Text("contents")},
		{"no fields", NewIndex("idx")},
		{"duplicate field", NewIndex("idx").Text("contents").Text("contents")},
		{"zero dim", NewIndex("idx").VectorFlat("vector", 0, DistanceIP, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.b.Build(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx := mustBuild(t, NewIndex("idx").
		Prefix("p:").
		Language("english").
		Text("contents").
		VectorFlat("vector", 4, DistanceIP, 0))

	want := "FT.CREATE idx ON HASH PREFIX 1 p: LANGUAGE english SCHEMA contents TEXT vector VECTOR FLAT"
	if got := idx.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !strings.HasPrefix(idx.String(), "FT.CREATE") {
		t.Error("expected FT.CREATE prefix")
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := map[string]bool{
		"atomic.image.flat.large": true,
		"crossret:vec:x":          true,
		"a-b_c":                   true,
		"":                        false,
		"with space":              false,
		"slash/name":              false,
	}
	for s, want := range tests {
		if got := IsValidIdentifier(s); got != want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestParseVectorAlgorithm(t *testing.T) {
	if a, err := ParseVectorAlgorithm("hnsw"); err != nil || a != VectorHNSW {
		t.Errorf("hnsw: got %q, %v", a, err)
	}
	if a, err := ParseVectorAlgorithm("flat"); err != nil || a != VectorFlat {
		t.Errorf("flat: got %q, %v", a, err)
	}
	if _, err := ParseVectorAlgorithm("ivf"); err == nil {
		t.Error("expected error for ivf")
	}
}
