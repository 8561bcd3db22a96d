package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeCluster is a minimal in-memory stand-in for the REST endpoints the client uses.
type fakeCluster struct {
	mu      sync.Mutex
	indices map[string]map[string]any // name -> create body
	docs    map[string]map[string]string
	queries []map[string]any
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		indices: make(map[string]map[string]any),
		docs:    make(map[string]map[string]string),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.Trim(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "":
		writeJSON(w, http.StatusOK, map[string]any{
			"version": map[string]any{"number": "8.19.0", "build_flavor": "default"},
			"tagline": "You Know, for Search",
		})

	case path == "_msearch":
		f.msearch(w, r)

	case len(parts) == 2 && parts[1] == "_bulk":
		f.bulk(w, r, parts[0])

	case len(parts) == 2 && parts[1] == "_count":
		if _, ok := f.indices[parts[0]]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"type": "index_not_found_exception"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(f.docs[parts[0]])})

	case len(parts) == 2 && parts[1] == "_refresh":
		writeJSON(w, http.StatusOK, map[string]any{"_shards": map[string]any{"successful": 1}})

	case len(parts) == 1:
		f.index(w, r, parts[0])

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCluster) index(w http.ResponseWriter, r *http.Request, name string) {
	_, exists := f.indices[name]
	switch r.Method {
	case http.MethodHead:
		if exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodPut:
		if exists {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  map[string]any{"type": "resource_already_exists_exception", "reason": "index [" + name + "] already exists"},
				"status": 400,
			})
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.indices[name] = body
		f.docs[name] = make(map[string]string)
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "index": name})
	case http.MethodDelete:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"type": "index_not_found_exception"}})
			return
		}
		delete(f.indices, name)
		delete(f.docs, name)
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCluster) bulk(w http.ResponseWriter, r *http.Request, name string) {
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	var items []map[string]any
	for sc.Scan() {
		var meta map[string]map[string]any
		if err := json.Unmarshal(sc.Bytes(), &meta); err != nil {
			continue
		}
		if !sc.Scan() {
			break
		}
		var src map[string]string
		_ = json.Unmarshal(sc.Bytes(), &src)
		id, _ := meta["index"]["_id"].(string)
		if id == "bad" {
			items = append(items, map[string]any{"index": map[string]any{
				"_id": id, "status": 400,
				"error": map[string]any{"type": "mapper_parsing_exception", "reason": "failed to parse"},
			}})
			continue
		}
		f.docs[name][id] = src["contents"]
		items = append(items, map[string]any{"index": map[string]any{"_id": id, "status": 201, "result": "created"}})
	}
	errs := false
	for _, it := range items {
		if it["index"].(map[string]any)["status"].(int) > 201 {
			errs = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"took": 1, "errors": errs, "items": items})
}

// hits returns every stored document with a fixed score.
func (f *fakeCluster) hits(name string) map[string]any {
	var out []map[string]any
	for id := range f.docs[name] {
		out = append(out, map[string]any{"_id": id, "_score": 1.5})
	}
	return map[string]any{"hits": map[string]any{"hits": out}}
}

func (f *fakeCluster) msearch(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var responses []map[string]any
	for i := 0; i+1 < len(lines); i += 2 {
		var header map[string]string
		_ = json.Unmarshal([]byte(lines[i]), &header)
		name := header["index"]
		var q map[string]any
		_ = json.Unmarshal([]byte(lines[i+1]), &q)
		f.queries = append(f.queries, q)
		if _, ok := f.indices[name]; !ok {
			responses = append(responses, map[string]any{
				"status": 404,
				"error":  map[string]any{"type": "index_not_found_exception", "reason": "no such index"},
			})
			continue
		}
		responses = append(responses, f.hits(name))
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func newTestClient(t *testing.T) (*Client, *fakeCluster) {
	t.Helper()
	fc := newFakeCluster()
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Addresses: []string{srv.URL}, K1: 1.2, B: 0.75})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, fc
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{Addresses: []string{"http://localhost:9200"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.k1 != 0.9 || c.b != 0.4 || c.analyzer != "english" || c.workers != 1 {
		t.Errorf("unexpected defaults: k1=%v b=%v analyzer=%q workers=%d", c.k1, c.b, c.analyzer, c.workers)
	}
}

func TestNewClient_NoAddresses(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestCreateIndex_Settings(t *testing.T) {
	c, fc := newTestClient(t)
	ctx := context.Background()

	if err := c.CreateIndex(ctx, "atomic.text.flat.base", "contents"); err != nil {
		t.Fatalf("create: %v", err)
	}

	body := fc.indices["atomic.text.flat.base"]
	sim := body["settings"].(map[string]any)["similarity"].(map[string]any)["default"].(map[string]any)
	if sim["type"] != "BM25" || sim["k1"] != 1.2 || sim["b"] != 0.75 {
		t.Errorf("unexpected similarity: %v", sim)
	}
	props := body["mappings"].(map[string]any)["properties"].(map[string]any)
	contents := props["contents"].(map[string]any)
	if contents["type"] != "text" || contents["analyzer"] != "english" {
		t.Errorf("unexpected contents mapping: %v", contents)
	}

	if err := c.CreateIndex(ctx, "atomic.text.flat.base", "contents"); !errors.Is(err, ErrIndexExists) {
		t.Errorf("second create: expected ErrIndexExists, got %v", err)
	}
}

func TestIndexExistsAndDelete(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := c.IndexExists(ctx, "idx")
	if err != nil || ok {
		t.Fatalf("before create: exists=%v err=%v", ok, err)
	}
	if err := c.CreateIndex(ctx, "idx", "contents"); err != nil {
		t.Fatal(err)
	}
	ok, err = c.IndexExists(ctx, "idx")
	if err != nil || !ok {
		t.Fatalf("after create: exists=%v err=%v", ok, err)
	}
	if err := c.DeleteIndex(ctx, "idx"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.DeleteIndex(ctx, "idx"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("second delete: expected ErrIndexNotFound, got %v", err)
	}
}

func TestBulkIndexAndCount(t *testing.T) {
	c, fc := newTestClient(t)
	ctx := context.Background()
	if err := c.CreateIndex(ctx, "idx", "contents"); err != nil {
		t.Fatal(err)
	}

	n, err := c.BulkIndex(ctx, "idx", "contents", []Doc{
		{ID: "a", Text: "red car"},
		{ID: "b", Text: "blue boat"},
		{ID: "c", Text: "green tree"},
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if n != 3 {
		t.Errorf("indexed = %d, want 3", n)
	}
	if fc.docs["idx"]["b"] != "blue boat" {
		t.Errorf("stored doc b = %q", fc.docs["idx"]["b"])
	}
	if err := c.Refresh(ctx, "idx"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	count, err := c.Count(ctx, "idx")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestBulkIndex_ItemFailure(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	if err := c.CreateIndex(ctx, "idx", "contents"); err != nil {
		t.Fatal(err)
	}

	_, err := c.BulkIndex(ctx, "idx", "contents", []Doc{{ID: "ok", Text: "x"}, {ID: "bad", Text: "y"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Errorf("error should carry the item failure: %v", err)
	}
}

func TestBulkIndex_Empty(t *testing.T) {
	c, _ := newTestClient(t)
	n, err := c.BulkIndex(context.Background(), "idx", "contents", nil)
	if err != nil || n != 0 {
		t.Fatalf("got %d, %v", n, err)
	}
}

func TestCount_MissingIndex(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.Count(context.Background(), "missing"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestMultiSearch_QueryEnvelope(t *testing.T) {
	c, fc := newTestClient(t)
	ctx := context.Background()
	if err := c.CreateIndex(ctx, "idx", "contents"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BulkIndex(ctx, "idx", "contents", []Doc{{ID: "a", Text: "red car"}}); err != nil {
		t.Fatal(err)
	}

	results, err := c.MultiSearch(ctx, "idx", "contents", []string{"red"}, 10)
	if err != nil {
		t.Fatalf("msearch: %v", err)
	}
	if len(results) != 1 || len(results[0]) != 1 || results[0][0].ID != "a" || results[0][0].Score != 1.5 {
		t.Errorf("unexpected hits: %+v", results)
	}

	q := fc.queries[0]
	if q["size"] != float64(10) || q["_source"] != false {
		t.Errorf("unexpected query envelope: %v", q)
	}
	match := q["query"].(map[string]any)["match"].(map[string]any)["contents"].(map[string]any)
	if match["query"] != "red" {
		t.Errorf("match query = %v", match)
	}
}

func TestMultiSearch_SizeValidation(t *testing.T) {
	c, _ := newTestClient(t)
	for _, size := range []int{0, MaxWindow + 1} {
		if _, err := c.MultiSearch(context.Background(), "idx", "contents", []string{"x"}, size); err == nil {
			t.Errorf("size %d: expected error", size)
		}
	}
}

func TestMultiSearch(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	if err := c.CreateIndex(ctx, "idx", "contents"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BulkIndex(ctx, "idx", "contents", []Doc{{ID: "a", Text: "red car"}}); err != nil {
		t.Fatal(err)
	}

	results, err := c.MultiSearch(ctx, "idx", "contents", []string{"red", "car"}, 5)
	if err != nil {
		t.Fatalf("msearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 result lists, got %d", len(results))
	}
	for i, hits := range results {
		if len(hits) != 1 || hits[0].ID != "a" {
			t.Errorf("result %d: %+v", i, hits)
		}
	}
}

func TestMultiSearch_ItemError(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.MultiSearch(context.Background(), "missing", "contents", []string{"x"}, 5)
	var esErr *ESError
	if !errors.As(err, &esErr) || esErr.Type != "index_not_found_exception" {
		t.Fatalf("expected ESError, got %v", err)
	}
}
