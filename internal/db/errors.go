package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound           = errors.New("db: key not found")
	ErrIndexNotFound         = errors.New("db: index not found")
	ErrIndexExists           = errors.New("db: index already exists")
	ErrTextSearchUnsupported = errors.New("db: text search not supported")
)

// Op names used for error context. Redis command names where one exists.
const (
	OpCreateIndex = "FT.CREATE"
	OpDropIndex   = "FT.DROPINDEX"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpHGetAll     = "HGETALL"
	OpHSet        = "HSET"
	OpExists      = "EXISTS"
	OpScan        = "SCAN"
	OpGet         = "GET"
	OpSet         = "SET"
	OpQuery       = "QUERY"
	OpExec        = "EXEC"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
