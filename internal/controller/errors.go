package controller

import (
	"errors"
	"strings"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
)

// ErrChecksumMismatch is matched by ChecksumMismatchError through errors.Is.
var ErrChecksumMismatch = errors.New("change script checksum mismatch")

// ChecksumMismatchError lists every applied change script whose content no
// longer matches the checksum recorded in the changelog.
type ChecksumMismatchError struct {
	Scripts []*changescript.ChangeScript
}

func (e *ChecksumMismatchError) Error() string {
	var b strings.Builder

	b.WriteString("the following scripts have a modified checksum:")

	for _, cs := range e.Scripts {
		b.WriteString("\n")
		b.WriteString(cs.String())
	}

	return b.String()
}

// Unwrap lets callers match the error with errors.Is(err, ErrChecksumMismatch).
func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }
