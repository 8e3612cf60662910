package changescript

import (
	"errors"
	"fmt"
)

// ErrNegativeID indicates a change script id below zero.
var ErrNegativeID = errors.New("change script id must not be negative")

// ErrEmptyDescription indicates a change script without a description.
var ErrEmptyDescription = errors.New("change script description must not be empty")

// ErrEmptyContent indicates a change script without forward content.
var ErrEmptyContent = errors.New("change script content must not be empty")

// ErrUnrecognisedFilename indicates a .sql file whose name does not start with a change number.
var ErrUnrecognisedFilename = errors.New("could not extract a change script number from filename")

// ErrUnknownEncoding indicates an encoding name that has no registered decoder.
var ErrUnknownEncoding = errors.New("unknown text encoding")

// ErrDuplicateID is matched by DuplicateChangeScriptError through errors.Is.
var ErrDuplicateID = errors.New("duplicate change script id")

// DuplicateChangeScriptError is returned when two change scripts share an id.
type DuplicateChangeScriptError struct {
	ID int64
}

func (e *DuplicateChangeScriptError) Error() string {
	return fmt.Sprintf("there is more than one change script with number %d", e.ID)
}

// Unwrap lets callers match the error with errors.Is(err, ErrDuplicateID).
func (e *DuplicateChangeScriptError) Unwrap() error {
	return ErrDuplicateID
}
