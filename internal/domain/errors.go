package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrNoSplits signals a dataset loaded without relevance judgments.
	ErrNoSplits = errors.New("dataset has no split information")
	// ErrInvalidSplit signals an unknown split name.
	ErrInvalidSplit = errors.New("invalid split")
	// ErrInvalidSetting signals an unknown index setting.
	ErrInvalidSetting = errors.New("invalid index setting")
	// ErrInvalidShard signals an out of range (shard_id, shard_num) pair.
	ErrInvalidShard = errors.New("invalid shard")
	// ErrShardMismatch signals an embedding shard whose id count differs from its matrix rows.
	ErrShardMismatch = errors.New("embedding shard id/row count mismatch")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrIndexNotFound signals a missing index handle.
	ErrIndexNotFound = errors.New("index not found")
	// ErrBackendMismatch signals an index handle written by another backend.
	ErrBackendMismatch = errors.New("index backend mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrMalformedLine signals an unparsable trec or JSONL line.
	ErrMalformedLine = errors.New("malformed line")
)

// LineError points at the offending line of a text artifact.
type LineError struct {
	Path string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
