package rules

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/dbdeploy/dbdeploy/internal/lint"
)

// LockTableRule detects explicit LOCK TABLE statements.
type LockTableRule struct{}

// NewLockTableRule creates a new LockTableRule.
func NewLockTableRule() *LockTableRule { return &LockTableRule{} }

// ID returns the rule identifier.
func (r *LockTableRule) ID() string { return "lock-table" }

// Check examines a statement for explicit LOCK TABLE. One finding is
// reported per locked table.
func (r *LockTableRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	node, ok := stmt.Stmt.Node.(*pg_query.Node_LockStmt)
	if !ok {
		return nil
	}

	tables := rangeVarNames(node.LockStmt.Relations)
	findings := make([]lint.Finding, 0, len(tables))

	for _, table := range tables {
		findings = append(findings, lint.Finding{
			Rule:       r.ID(),
			Severity:   lint.High,
			Table:      table,
			Message:    "Explicit LOCK TABLE is held until the change script commits and blocks other queries",
			Suggestion: "Avoid explicit table locks. Let PostgreSQL manage locking through normal operations",
			LockType:   "EXPLICIT",
			StmtIndex:  ctx.Statement,
		})
	}

	return findings
}

// VacuumFullRule detects VACUUM FULL.
type VacuumFullRule struct{}

// NewVacuumFullRule creates a new VacuumFullRule.
func NewVacuumFullRule() *VacuumFullRule { return &VacuumFullRule{} }

// ID returns the rule identifier.
func (r *VacuumFullRule) ID() string { return "vacuum-full" }

// Check examines a statement for VACUUM FULL.
func (r *VacuumFullRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	node, ok := stmt.Stmt.Node.(*pg_query.Node_VacuumStmt)
	if !ok || !hasOption(node.VacuumStmt.Options, "full") {
		return nil
	}

	return []lint.Finding{{
		Rule:       r.ID(),
		Severity:   lint.High,
		Table:      vacuumTable(node.VacuumStmt),
		Message:    "VACUUM FULL rewrites the entire table and holds an ACCESS EXCLUSIVE lock",
		Suggestion: "Use regular VACUUM instead, which does not block reads or writes",
		LockType:   "ACCESS EXCLUSIVE",
		StmtIndex:  ctx.Statement,
	}}
}

func hasOption(options []*pg_query.Node, name string) bool {
	for _, opt := range options {
		if de, ok := opt.Node.(*pg_query.Node_DefElem); ok && de.DefElem.Defname == name {
			return true
		}
	}

	return false
}

func vacuumTable(v *pg_query.VacuumStmt) string {
	for _, rel := range v.Rels {
		vr, ok := rel.Node.(*pg_query.Node_VacuumRelation)
		if ok && vr.VacuumRelation.Relation != nil {
			return lint.TableName(vr.VacuumRelation.Relation)
		}
	}

	return "<all tables>"
}
