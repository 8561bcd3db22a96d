package vector

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/db"
)

type mockStore struct {
	items   []db.HashSetItem
	created *db.IndexDefinition
	dropErr error
	queries []*db.KNNQuery
	knnFn   func(qs []*db.KNNQuery) ([]*db.SearchResult, error)
}

func (m *mockStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	m.items = append(m.items, items...)
	return nil
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.created = def
	return nil
}

func (m *mockStore) DropIndex(context.Context, string, bool) error { return m.dropErr }

func (m *mockStore) IndexExists(_ context.Context, name string) (bool, error) {
	return m.created != nil && m.created.Name == name, nil
}

func (m *mockStore) IndexDocCount(context.Context, string) (int, error) { return len(m.items), nil }

func (m *mockStore) SearchKNNMulti(_ context.Context, qs []*db.KNNQuery) ([]*db.SearchResult, error) {
	m.queries = qs
	if m.knnFn != nil {
		return m.knnFn(qs)
	}
	out := make([]*db.SearchResult, len(qs))
	for i := range out {
		out[i] = &db.SearchResult{}
	}
	return out, nil
}

func newTestIndex() (*Index, *mockStore) {
	ms := &mockStore{dropErr: db.ErrIndexNotFound}
	return New(ms, "crossret:", 2, zap.NewNop()), ms
}

func TestCreate_Flat(t *testing.T) {
	x, ms := newTestIndex()
	err := x.Create(context.Background(), Spec{Name: "clip.flat", Dim: 4, Capacity: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f := ms.created.Fields[0]
	if f.VectorAlgo != db.VectorFlat || f.VectorDim != 4 || f.VectorDistance != db.DistanceIP || f.VectorInitialCap != 100 {
		t.Errorf("unexpected field: %+v", f)
	}
	if ms.created.Prefixes[0] != "crossret:vec:clip.flat:" {
		t.Errorf("prefix = %q", ms.created.Prefixes[0])
	}
}

func TestCreate_HNSW(t *testing.T) {
	x, ms := newTestIndex()
	err := x.Create(context.Background(), Spec{Name: "clip.hnsw", Dim: 8, Algorithm: db.VectorHNSW, M: 32, EFConstruct: 400})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f := ms.created.Fields[0]
	if f.VectorAlgo != db.VectorHNSW || f.VectorM != 32 || f.VectorEFConstruct != 400 {
		t.Errorf("unexpected field: %+v", f)
	}
}

func TestCreate_Errors(t *testing.T) {
	x, _ := newTestIndex()
	if err := x.Create(context.Background(), Spec{Name: "v", Dim: 4, Algorithm: "IVF"}); err == nil {
		t.Error("expected error for unknown algorithm")
	}
	if err := x.Create(context.Background(), Spec{Name: "v"}); err == nil {
		t.Error("expected error for zero dim")
	}

	ms := &mockStore{dropErr: errors.New("down")}
	if err := New(ms, "", 0, zap.NewNop()).Create(context.Background(), Spec{Name: "v", Dim: 2}); err == nil {
		t.Error("expected drop error to propagate")
	}
}

func TestAdd(t *testing.T) {
	x, ms := newTestIndex()
	ids := []string{"a", "b", "c"}
	vecs := [][]float32{{1, 0}, {0, 1}, {0.5, 0.5}}
	if err := x.Add(context.Background(), "v", 2, ids, vecs); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(ms.items) != 3 {
		t.Fatalf("items = %d", len(ms.items))
	}
	it := ms.items[1]
	if it.Key != "crossret:vec:v:b" || it.Fields[0].Value != "b" {
		t.Errorf("unexpected item %+v", it)
	}
	got, err := db.DecodeVector([]byte(it.Fields[1].Value))
	if err != nil || got[1] != 1 {
		t.Errorf("vector = %v, %v", got, err)
	}
}

func TestAdd_DimMismatch(t *testing.T) {
	x, _ := newTestIndex()
	err := x.Add(context.Background(), "v", 3, []string{"a"}, [][]float32{{1, 2}})
	if !errors.Is(err, ErrDimMismatch) {
		t.Fatalf("expected ErrDimMismatch, got %v", err)
	}
	if err := x.Add(context.Background(), "v", 2, []string{"a", "b"}, [][]float32{{1, 2}}); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestSearch(t *testing.T) {
	x, ms := newTestIndex()
	ms.knnFn = func(qs []*db.KNNQuery) ([]*db.SearchResult, error) {
		return []*db.SearchResult{
			{Total: 2, Entries: []db.SearchEntry{
				{Key: "crossret:vec:v:a", Score: 0.9, Fields: map[string]string{"id": "a"}},
				{Key: "crossret:vec:v:b", Score: 0.1},
			}},
			{},
		}, nil
	}

	res, err := x.Search(context.Background(), "v", [][]float32{{1, 0}, {0, 1}}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ms.queries) != 2 || ms.queries[0].K != 5 || ms.queries[0].Field != "vector" {
		t.Errorf("unexpected queries: %+v", ms.queries)
	}
	if len(res) != 2 || len(res[0]) != 2 || len(res[1]) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res[0][0].DocID != "a" || res[0][1].DocID != "b" {
		t.Errorf("hits = %+v", res[0])
	}
}

func TestSearch_Empty(t *testing.T) {
	x, ms := newTestIndex()
	res, err := x.Search(context.Background(), "v", nil, 5)
	if err != nil || res != nil || ms.queries != nil {
		t.Fatalf("expected no-op, got %v %v", res, err)
	}
}

func TestExists(t *testing.T) {
	idx, _ := newTestIndex()
	ctx := context.Background()
	if ok, _ := idx.Exists(ctx, "v"); ok {
		t.Fatal("exists before create")
	}
	if err := idx.Create(ctx, Spec{Name: "v", Dim: 2}); err != nil {
		t.Fatal(err)
	}
	if ok, err := idx.Exists(ctx, "v"); err != nil || !ok {
		t.Errorf("exists after create = %v, %v", ok, err)
	}
}
