package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	// ErrSearchUnavailable means the server has no query engine (FT.* commands).
	ErrSearchUnavailable = errors.New("db: search module not available")
)

// Op names the Redis command an Error came from.
const (
	OpCreateIndex = "FT.CREATE"
	OpDropIndex   = "FT.DROPINDEX"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpList        = "FT._LIST"
	OpHSet        = "HSET"
	OpGet         = "GET"
	OpMGet        = "MGET"
	OpSet         = "SET"
)

// Error wraps an underlying error with the operation name.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
