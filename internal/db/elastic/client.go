// Package elastic is the Elasticsearch lexical backend: BM25 indices over a
// single analyzed text field, bulk ingestion and match queries.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrIndexExists is returned by CreateIndex when the index is already present.
var ErrIndexExists = errors.New("elastic: index already exists")

// ErrIndexNotFound is returned when an operation targets a missing index.
var ErrIndexNotFound = errors.New("elastic: index not found")

// Config holds connection and similarity parameters.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	K1        float64
	B         float64
	Analyzer  string
	Workers   int

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Client wraps the official client with the operations the pipeline needs.
type Client struct {
	es       *elasticsearch.Client
	k1       float64
	b        float64
	analyzer string
	workers  int
}

// NewClient builds a client. It does not contact the cluster.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("addresses is required")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	c := &Client{es: es, k1: cfg.K1, b: cfg.B, analyzer: cfg.Analyzer, workers: cfg.Workers}
	if c.k1 <= 0 {
		c.k1 = 0.9
	}
	if c.b <= 0 {
		c.b = 0.4
	}
	if c.analyzer == "" {
		c.analyzer = "english"
	}
	if c.workers <= 0 {
		c.workers = 1
	}
	return c, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("ping: %w", responseError(res))
	}
	return nil
}

// WaitForReady polls Ping until the cluster responds or timeout expires.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.Ping(ctx); err == nil {
		return nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for elasticsearch: %w", ctx.Err())
		case <-ticker.C:
			if err := c.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// ESError is an error response returned by the cluster.
type ESError struct {
	Status int
	Type   string
	Reason string
}

func (e *ESError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

func responseError(res *esapi.Response) error {
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	e := &ESError{Status: res.StatusCode}
	if res.Body != nil {
		if err := json.NewDecoder(res.Body).Decode(&body); err == nil {
			e.Type = body.Error.Type
			e.Reason = body.Error.Reason
		}
	}
	return e
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

func encodeBody(v any) (*bytes.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}
