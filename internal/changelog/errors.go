package changelog

import "errors"

// ErrSchemaTracking wraps every failure to read or write the changelog table.
// The underlying driver error is wrapped alongside it.
var ErrSchemaTracking = errors.New("schema version tracking failed")

// ErrInvalidEntry indicates a changelog row that violates the entry invariants.
var ErrInvalidEntry = errors.New("invalid changelog entry")

// ErrTableCreation indicates the changelog table could not be created.
var ErrTableCreation = errors.New("creating changelog table")
