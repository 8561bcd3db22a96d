package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Hit is one scored document.
type Hit struct {
	ID    string
	Score float64
}

// MaxWindow is the default index.max_result_window.
const MaxWindow = 10000

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
	Status int `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (r *searchResponse) toHits() []Hit {
	hits := make([]Hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits
}

func matchQuery(field, text string, size int) map[string]any {
	return map[string]any{
		"_source": false,
		"size":    size,
		"query": map[string]any{
			"match": map[string]any{
				field: map[string]any{"query": text},
			},
		},
	}
}

func validateSize(size int) error {
	if size <= 0 {
		return errors.New("size must be positive")
	}
	if size > MaxWindow {
		return fmt.Errorf("size %d exceeds result window %d", size, MaxWindow)
	}
	return nil
}

// MultiSearch runs one match query per text in a single _msearch request.
// Results are in input order.
func (c *Client) MultiSearch(ctx context.Context, name, field string, texts []string, size int) ([][]Hit, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := validateSize(size); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, text := range texts {
		if err := enc.Encode(map[string]any{"index": name}); err != nil {
			return nil, fmt.Errorf("encode msearch header: %w", err)
		}
		if err := enc.Encode(matchQuery(field, text, size)); err != nil {
			return nil, fmt.Errorf("encode msearch body: %w", err)
		}
	}

	res, err := c.es.Msearch(&buf, c.es.Msearch.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("msearch %s: %w", name, err)
	}
	defer drain(res)
	if res.IsError() {
		return nil, fmt.Errorf("msearch %s: %w", name, responseError(res))
	}

	var r struct {
		Responses []searchResponse `json:"responses"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode msearch response: %w", err)
	}
	if len(r.Responses) != len(texts) {
		return nil, fmt.Errorf("msearch %s: got %d responses for %d queries", name, len(r.Responses), len(texts))
	}

	out := make([][]Hit, len(texts))
	for i := range r.Responses {
		resp := &r.Responses[i]
		if resp.Error != nil {
			return nil, fmt.Errorf("msearch %s: query %d: %w", name, i,
				&ESError{Status: resp.Status, Type: resp.Error.Type, Reason: resp.Error.Reason})
		}
		out[i] = resp.toHits()
	}
	return out, nil
}
