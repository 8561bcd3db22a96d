package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// IDField is the keyword field holding the document id.
const IDField = "id"

// Doc is one document to bulk-index.
type Doc struct {
	ID   string
	Text string
}

// indexBody renders settings and mappings: a single shard, BM25 with the
// configured k1/b as the default similarity, and one analyzed text field.
func (c *Client) indexBody(field string) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"similarity": map[string]any{
				"default": map[string]any{
					"type": "BM25",
					"k1":   c.k1,
					"b":    c.b,
				},
			},
			"analysis": map[string]any{
				"analyzer": map[string]any{
					"default": map[string]any{"type": c.analyzer},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				IDField: map[string]any{"type": "keyword"},
				field: map[string]any{
					"type":     "text",
					"analyzer": c.analyzer,
				},
			},
		},
	}
}

// CreateIndex creates a BM25 index with field as its analyzed text field.
func (c *Client) CreateIndex(ctx context.Context, name, field string) error {
	body, err := encodeBody(c.indexBody(field))
	if err != nil {
		return err
	}
	res, err := c.es.Indices.Create(name,
		c.es.Indices.Create.WithBody(body),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer drain(res)
	if res.IsError() {
		esErr := responseError(res)
		var e *ESError
		if errors.As(esErr, &e) && e.Type == "resource_already_exists_exception" {
			return ErrIndexExists
		}
		return fmt.Errorf("create index %s: %w", name, esErr)
	}
	return nil
}

// DeleteIndex removes an index.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return ErrIndexNotFound
	}
	if res.IsError() {
		return fmt.Errorf("delete index %s: %w", name, responseError(res))
	}
	return nil
}

// IndexExists reports whether the index is present.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", name, err)
	}
	defer drain(res)
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("index exists %s: unexpected status %d", name, res.StatusCode)
	}
}

// Refresh makes recently indexed documents searchable.
func (c *Client) Refresh(ctx context.Context, name string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithIndex(name),
		c.es.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", name, err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("refresh %s: %w", name, responseError(res))
	}
	return nil
}

// BulkIndex streams docs into the index through esutil.BulkIndexer and
// returns the number of documents accepted. Any per-item failure fails the call.
func (c *Client) BulkIndex(ctx context.Context, name, field string, docs []Doc) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:     c.es,
		Index:      name,
		NumWorkers: c.workers,
	})
	if err != nil {
		return 0, fmt.Errorf("bulk indexer: %w", err)
	}

	var (
		mu       sync.Mutex
		failed   int
		firstErr error
	)
	onFailure := func(_ context.Context, item esutil.BulkIndexerItem, resp esutil.BulkIndexerResponseItem, err error) {
		if err == nil {
			err = fmt.Errorf("document %s: %s: %s", item.DocumentID, resp.Error.Type, resp.Error.Reason)
		}
		mu.Lock()
		defer mu.Unlock()
		failed++
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, d := range docs {
		src, err := json.Marshal(map[string]string{IDField: d.ID, field: d.Text})
		if err != nil {
			return 0, fmt.Errorf("encode document %s: %w", d.ID, err)
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: d.ID,
			Body:       bytes.NewReader(src),
			OnFailure:  onFailure,
		})
		if err != nil {
			_ = bi.Close(ctx)
			return 0, fmt.Errorf("bulk add: %w", err)
		}
	}
	if err := bi.Close(ctx); err != nil {
		return 0, fmt.Errorf("bulk close: %w", err)
	}

	stats := bi.Stats()
	if failed > 0 {
		return int(stats.NumIndexed), fmt.Errorf("bulk index %s: %d documents failed: %w", name, failed, firstErr)
	}
	return int(stats.NumIndexed), nil
}

// Count returns the number of documents in the index.
func (c *Client) Count(ctx context.Context, name string) (int, error) {
	res, err := c.es.Count(
		c.es.Count.WithIndex(name),
		c.es.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	defer drain(res)
	if res.StatusCode == http.StatusNotFound {
		return 0, ErrIndexNotFound
	}
	if res.IsError() {
		return 0, fmt.Errorf("count %s: %w", name, responseError(res))
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return body.Count, nil
}
