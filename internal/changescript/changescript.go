package changescript

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ChangeScript is one numbered unit of forward (and optional inverse) database change.
// It is immutable once constructed; the checksum is computed exactly once.
type ChangeScript struct {
	id          int64
	description string
	doContent   string
	undoContent string
	checksum    string
}

// New validates its arguments and returns a ChangeScript with its checksum computed.
// Ids must be zero or greater; the description and forward content must not be empty.
func New(id int64, description, doContent, undoContent string) (*ChangeScript, error) {
	if id < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeID, id)
	}

	if description == "" {
		return nil, fmt.Errorf("change script #%d: %w", id, ErrEmptyDescription)
	}

	if doContent == "" {
		return nil, fmt.Errorf("change script #%d: %w", id, ErrEmptyContent)
	}

	return &ChangeScript{
		id:          id,
		description: description,
		doContent:   doContent,
		undoContent: undoContent,
		checksum:    ComputeChecksum(doContent, undoContent),
	}, nil
}

// ID returns the change number.
func (c *ChangeScript) ID() int64 { return c.id }

// Description returns the human-readable description, usually the source filename.
func (c *ChangeScript) Description() string { return c.description }

// DoContent returns the forward SQL.
func (c *ChangeScript) DoContent() string { return c.doContent }

// UndoContent returns the inverse SQL, which may be empty.
func (c *ChangeScript) UndoContent() string { return c.undoContent }

// Checksum returns the SHA-256 hex digest of the forward and inverse content.
func (c *ChangeScript) Checksum() string { return c.checksum }

// Content satisfies the statement source used by appliers; it is the forward SQL.
func (c *ChangeScript) Content() string { return c.doContent }

// String renders the script as "#<id>: <description>".
func (c *ChangeScript) String() string {
	return "#" + strconv.FormatInt(c.id, 10) + ": " + c.description
}

// Compare orders change scripts by id.
func Compare(a, b *ChangeScript) int {
	switch {
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	default:
		return 0
	}
}

// ComputeChecksum returns the SHA-256 hex digest of doContent followed by undoContent.
func ComputeChecksum(doContent, undoContent string) string {
	h := sha256.New()
	h.Write([]byte(doContent))
	h.Write([]byte(undoContent))

	return hex.EncodeToString(h.Sum(nil))
}

// Script is a plain SQL script that is executed but never recorded in the
// changelog, such as the pre- and post-script wrapped around each change script.
type Script struct {
	description string
	content     string
}

// NewScript returns a Script with the given description and content.
func NewScript(description, content string) Script {
	return Script{description: description, content: content}
}

// Description returns the script's description.
func (s Script) Description() string { return s.description }

// Content returns the script's SQL.
func (s Script) Content() string { return s.content }

func (s Script) String() string { return "script: " + s.description }
