// Package rules holds the built-in lint rules for PostgreSQL change scripts.
package rules

import "github.com/dbdeploy/dbdeploy/internal/lint"

// NewDefaultRegistry returns a Registry with all built-in detection rules.
func NewDefaultRegistry() *lint.Registry {
	r := lint.NewRegistry()
	r.Register(NewTransactionBlockRule())
	r.Register(NewCreateIndexRule())
	r.Register(NewAddColumnRule())
	r.Register(NewAddConstraintRule())
	r.Register(NewAlterColumnTypeRule())
	r.Register(NewSetNotNullRule())
	r.Register(NewDropTableRule())
	r.Register(NewVacuumFullRule())
	r.Register(NewLockTableRule())
	r.Register(NewRenameRule())

	return r
}
