package applier

import (
	"errors"
	"fmt"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
)

// ErrScriptFailed is matched by ScriptError through errors.Is.
var ErrScriptFailed = errors.New("change script failed")

// ErrTemplateNotFound is matched by TemplateNotFoundError through errors.Is.
var ErrTemplateNotFound = errors.New("template not found")

// ScriptError reports the statement that failed while a change script was
// being applied. The script's transaction was rolled back and no changelog
// entry was written.
type ScriptError struct {
	// Script names the script whose statement failed: the change script itself
	// or the pre/post script wrapped around it.
	Script string
	// ChangeScript is the change script being applied when the failure happened.
	ChangeScript *changescript.ChangeScript
	// Statement is the 1-based index of the failing statement within Script.
	Statement int
	SQL       string
	Err       error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s failed while executing statement %d:\n%s\n -> %v", e.Script, e.Statement, e.SQL, e.Err)
}

// Unwrap returns the driver error.
func (e *ScriptError) Unwrap() error { return e.Err }

// Is reports whether target is ErrScriptFailed.
func (e *ScriptError) Is(target error) bool { return target == ErrScriptFailed }

// TemplateNotFoundError is returned when no template source exists for the
// configured syntax. It is a configuration error, distinct from render failures.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("could not find template named %s; check that the database syntax (dbms) is correct", e.Name)
}

// Unwrap lets callers match the error with errors.Is(err, ErrTemplateNotFound).
func (e *TemplateNotFoundError) Unwrap() error { return ErrTemplateNotFound }
