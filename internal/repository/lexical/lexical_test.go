package lexical

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/db"
	"github.com/kailas-cloud/crossret/internal/db/elastic"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"basic", "A red car, a RED boat!", 0, []string{"a", "red", "car", "boat"}},
		{"unicode", "Straße café 2024", 0, []string{"strasse", "café", "2024"}},
		{"capped", "one two three four", 2, []string{"one", "two"}},
		{"punctuation only", "-- ... !!", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Terms(tt.text, tt.max); !slices.Equal(got, tt.want) {
				t.Errorf("Terms(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func newTestRedis(opts ...RedisOption) (*RedisIndex, *mockRedis) {
	ms := &mockRedis{}
	return NewRedis(ms, "crossret:", zap.NewNop(), opts...), ms
}

func TestRedisIndex_Create(t *testing.T) {
	idx, ms := newTestRedis()
	if err := idx.Create(context.Background(), "atomic.text.flat.base"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !slices.Equal(ms.dropped, []string{"atomic.text.flat.base"}) {
		t.Errorf("expected earlier index to be dropped, got %v", ms.dropped)
	}
	def := ms.created
	if def == nil {
		t.Fatal("index not created")
	}
	if !slices.Equal(def.Prefixes, []string{"crossret:doc:atomic.text.flat.base:"}) {
		t.Errorf("prefixes = %v", def.Prefixes)
	}
	if def.Language != "english" || len(def.Fields) != 1 || def.Fields[0].Name != "contents" {
		t.Errorf("unexpected definition: %+v", def)
	}
}

func TestRedisIndex_Exists(t *testing.T) {
	idx, ms := newTestRedis()
	ctx := context.Background()
	if ok, err := idx.Exists(ctx, "atomic.text.flat.base"); err != nil || ok {
		t.Fatalf("before create: %v, %v", ok, err)
	}
	if err := idx.Create(ctx, "atomic.text.flat.base"); err != nil {
		t.Fatal(err)
	}
	if ok, err := idx.Exists(ctx, "atomic.text.flat.base"); err != nil || !ok {
		t.Errorf("after create: %v, %v", ok, err)
	}

	ms.existsErr = errors.New("conn refused")
	if _, err := idx.Exists(ctx, "atomic.text.flat.base"); !errors.Is(err, ms.existsErr) {
		t.Errorf("err = %v, want wrapped conn error", err)
	}
}

func TestRedisIndex_CreateIgnoresMissing(t *testing.T) {
	idx, ms := newTestRedis()
	ms.dropErr = db.ErrIndexNotFound
	if err := idx.Create(context.Background(), "idx"); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestRedisIndex_DropError(t *testing.T) {
	idx, ms := newTestRedis()
	ms.dropErr = errors.New("connection reset")
	if err := idx.Drop(context.Background(), "idx"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisIndex_AddBatches(t *testing.T) {
	idx, ms := newTestRedis(WithBatchSize(2))
	docs := []Doc{{"a", "red car"}, {"b", "blue boat"}, {"c", "tree"}}
	if err := idx.Add(context.Background(), "idx", docs); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ms.batches != 2 {
		t.Errorf("batches = %d, want 2", ms.batches)
	}
	if len(ms.items) != 3 {
		t.Fatalf("items = %d, want 3", len(ms.items))
	}
	first := ms.items[0]
	if first.Key != "crossret:doc:idx:a" {
		t.Errorf("key = %q", first.Key)
	}
	want := []db.FieldValue{{Name: "id", Value: "a"}, {Name: "contents", Value: "red car"}}
	if !slices.Equal(first.Fields, want) {
		t.Errorf("fields = %v", first.Fields)
	}

	n, err := idx.Count(context.Background(), "idx")
	if err != nil || n != 3 {
		t.Errorf("count = %d, %v", n, err)
	}
}

func TestRedisIndex_Search(t *testing.T) {
	idx, ms := newTestRedis(WithMaxTerms(3))
	var queries []*db.TextQuery
	ms.searchFn = func(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
		queries = append(queries, q)
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: "crossret:doc:idx:a", Score: 2.5, Fields: map[string]string{"id": "a"}},
			{Key: "crossret:doc:idx:b", Score: 1.0},
		}}, nil
	}

	res, err := idx.Search(context.Background(), "idx", []string{"Red red car on a road", "!!!"}, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 result lists, got %d", len(res))
	}
	if len(queries) != 1 {
		t.Fatalf("query without terms must be skipped, got %d calls", len(queries))
	}
	q := queries[0]
	if !slices.Equal(q.Terms, []string{"red", "car", "on"}) || q.TopK != 100 || q.IndexName != "idx" {
		t.Errorf("unexpected query: %+v", q)
	}
	if res[0][0].DocID != "a" || res[0][0].Score != 2.5 {
		t.Errorf("first hit = %+v", res[0][0])
	}
	if res[0][1].DocID != "b" {
		t.Errorf("docid must fall back to the key suffix, got %q", res[0][1].DocID)
	}
	if len(res[1]) != 0 {
		t.Errorf("expected no hits for empty query, got %v", res[1])
	}
}

func TestRedisIndex_SearchError(t *testing.T) {
	idx, ms := newTestRedis()
	ms.searchFn = func(context.Context, *db.TextQuery) (*db.SearchResult, error) {
		return nil, errors.New("boom")
	}
	if _, err := idx.Search(context.Background(), "idx", []string{"car"}, 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestElasticIndex_Lifecycle(t *testing.T) {
	es := &mockES{deleteErr: elastic.ErrIndexNotFound}
	idx := NewElastic(es, 0)
	ctx := context.Background()

	if idx.Backend() != BackendElasticsearch {
		t.Errorf("backend = %q", idx.Backend())
	}
	if err := idx.Create(ctx, "idx"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !slices.Equal(es.created, []string{"idx"}) {
		t.Errorf("created = %v", es.created)
	}
	if err := idx.Add(ctx, "idx", []Doc{{"a", "red car"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := idx.Commit(ctx, "idx"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !slices.Equal(es.refreshed, []string{"idx"}) {
		t.Errorf("refreshed = %v", es.refreshed)
	}
	if n, _ := idx.Count(ctx, "idx"); n != 1 {
		t.Errorf("count = %d", n)
	}
	if ok, err := idx.Exists(ctx, "idx"); err != nil || !ok {
		t.Errorf("exists(idx) = %v, %v", ok, err)
	}
	if ok, _ := idx.Exists(ctx, "other"); ok {
		t.Error("exists(other) = true")
	}
}

func TestElasticIndex_AddError(t *testing.T) {
	es := &mockES{bulkErr: errors.New("rejected")}
	if err := NewElastic(es, 0).Add(context.Background(), "idx", []Doc{{"a", "x"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestElasticIndex_Search(t *testing.T) {
	es := &mockES{hits: [][]elastic.Hit{{{ID: "a", Score: 3}}, nil}}
	idx := NewElastic(es, 2)

	res, err := idx.Search(context.Background(), "idx", []string{"A red red car", "x"}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !slices.Equal(es.texts, []string{"a red", "x"}) {
		t.Errorf("texts = %v", es.texts)
	}
	if len(res) != 2 || res[0][0].DocID != "a" || res[0][0].Score != 3 || len(res[1]) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}
