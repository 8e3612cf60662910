package rules

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/dbdeploy/dbdeploy/internal/lint"
)

// RenameRule detects RENAME TABLE and RENAME COLUMN.
type RenameRule struct{}

// NewRenameRule creates a new RenameRule.
func NewRenameRule() *RenameRule { return &RenameRule{} }

// ID returns the rule identifier.
func (r *RenameRule) ID() string { return "rename" }

// Check examines a statement for RENAME TABLE or RENAME COLUMN.
func (r *RenameRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	node, ok := stmt.Stmt.Node.(*pg_query.Node_RenameStmt)
	if !ok {
		return nil
	}

	rename := node.RenameStmt

	var msg string

	switch rename.RenameType {
	case pg_query.ObjectType_OBJECT_TABLE:
		msg = "RENAME TABLE breaks application code that references the old name"
	case pg_query.ObjectType_OBJECT_COLUMN:
		msg = "RENAME COLUMN breaks application code that references the old column name"
	default:
		return nil
	}

	return []lint.Finding{{
		Rule:       r.ID(),
		Severity:   lint.Medium,
		Table:      lint.TableName(rename.Relation),
		Message:    msg,
		Suggestion: "Introduce the new name alongside the old one, update application code, then remove the old name",
		LockType:   "ACCESS EXCLUSIVE",
		StmtIndex:  ctx.Statement,
	}}
}
