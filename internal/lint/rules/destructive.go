package rules

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/dbdeploy/dbdeploy/internal/lint"
)

// DropTableRule detects DROP TABLE and TRUNCATE.
type DropTableRule struct{}

// NewDropTableRule creates a new DropTableRule.
func NewDropTableRule() *DropTableRule { return &DropTableRule{} }

// ID returns the rule identifier.
func (r *DropTableRule) ID() string { return "drop-table" }

// Check examines a statement for DROP TABLE or TRUNCATE.
func (r *DropTableRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	var table, msg string

	switch node := stmt.Stmt.Node.(type) {
	case *pg_query.Node_DropStmt:
		drop := node.DropStmt
		if drop.RemoveType != pg_query.ObjectType_OBJECT_TABLE {
			return nil
		}

		table = strings.Join(qualifiedNames(drop.Objects), ", ")
		msg = "DROP TABLE is irreversible and will permanently delete all data"

		if drop.MissingOk {
			msg = "DROP TABLE IF EXISTS is irreversible and will permanently delete all data"
		}
	case *pg_query.Node_TruncateStmt:
		table = strings.Join(rangeVarNames(node.TruncateStmt.Relations), ", ")
		msg = "TRUNCATE removes all data from the table and cannot be undone by an undo script"
	default:
		return nil
	}

	return []lint.Finding{{
		Rule:       r.ID(),
		Severity:   lint.Critical,
		Table:      table,
		Message:    msg,
		Suggestion: "Take a backup first; the undo section of this change script cannot restore the data",
		LockType:   "ACCESS EXCLUSIVE",
		StmtIndex:  ctx.Statement,
	}}
}

// qualifiedNames joins the name lists of a DROP statement into dotted names.
func qualifiedNames(objects []*pg_query.Node) []string {
	var names []string

	for _, obj := range objects {
		list, ok := obj.Node.(*pg_query.Node_List)
		if !ok {
			continue
		}

		var parts []string

		for _, item := range list.List.Items {
			if s, ok := item.Node.(*pg_query.Node_String_); ok {
				parts = append(parts, s.String_.Sval)
			}
		}

		if len(parts) > 0 {
			names = append(names, strings.Join(parts, "."))
		}
	}

	return names
}

func rangeVarNames(relations []*pg_query.Node) []string {
	var names []string

	for _, rel := range relations {
		if rv, ok := rel.Node.(*pg_query.Node_RangeVar); ok {
			names = append(names, lint.TableName(rv.RangeVar))
		}
	}

	return names
}
