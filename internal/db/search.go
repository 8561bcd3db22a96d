package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Field        string // vector field, "vector" when empty
	Vector       []float32
	K            int
	ReturnFields []string
	RawScores    bool // keep the engine distance instead of 1-distance
}

// TextQuery is the input for BM25 text search. Terms are OR-ed.
type TextQuery struct {
	IndexName    string
	Field        string // text field, "contents" when empty
	Terms        []string
	TopK         int
	Scorer       string // BM25STD when empty
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
