package records

import "errors"

var (
	// ErrNotFound indicates no record exists for the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate indicates a record with the same id already exists.
	ErrDuplicate = errors.New("record already exists")
	// ErrConflict indicates a compare-and-swap lost to a concurrent writer.
	ErrConflict = errors.New("record version conflict")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
