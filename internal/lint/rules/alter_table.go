package rules

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/dbdeploy/dbdeploy/internal/lint"
)

const (
	pgVersionSafeNonVolatileDefault = 11
	pgVersionSafeSetNotNull         = 12
)

// alterTableCmds returns the target relation and the commands of an ALTER
// TABLE statement whose subtype is one of the given kinds.
func alterTableCmds(stmt *pg_query.RawStmt, kind pg_query.AlterTableType) (*pg_query.RangeVar, []*pg_query.AlterTableCmd) {
	node, ok := stmt.Stmt.Node.(*pg_query.Node_AlterTableStmt)
	if !ok {
		return nil, nil
	}

	var cmds []*pg_query.AlterTableCmd

	for _, cmdNode := range node.AlterTableStmt.Cmds {
		cmd, ok := cmdNode.Node.(*pg_query.Node_AlterTableCmd)
		if ok && cmd.AlterTableCmd.Subtype == kind {
			cmds = append(cmds, cmd.AlterTableCmd)
		}
	}

	return node.AlterTableStmt.Relation, cmds
}

// AddColumnRule detects ADD COLUMN with a DEFAULT that rewrites the table.
type AddColumnRule struct{}

// NewAddColumnRule creates a new AddColumnRule.
func NewAddColumnRule() *AddColumnRule { return &AddColumnRule{} }

// ID returns the rule identifier.
func (r *AddColumnRule) ID() string { return "add-column-volatile-default" }

// Check examines a statement for ADD COLUMN with a rewriting DEFAULT.
func (r *AddColumnRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	relation, cmds := alterTableCmds(stmt, pg_query.AlterTableType_AT_AddColumn)

	var findings []lint.Finding

	for _, cmd := range cmds {
		if cmd.Def == nil {
			continue
		}

		colDef, ok := cmd.Def.Node.(*pg_query.Node_ColumnDef)
		if !ok {
			continue
		}

		def := defaultExpr(colDef.ColumnDef)
		if def == nil {
			continue
		}

		if ctx.TargetPGVersion >= pgVersionSafeNonVolatileDefault && !isVolatile(def) {
			continue
		}

		msg := "ADD COLUMN with volatile DEFAULT rewrites the entire table"
		if ctx.TargetPGVersion < pgVersionSafeNonVolatileDefault {
			msg = "ADD COLUMN with DEFAULT rewrites the entire table on PG < 11"
		}

		findings = append(findings, lint.Finding{
			Rule:       r.ID(),
			Severity:   lint.High,
			Table:      lint.TableName(relation),
			Message:    msg,
			Suggestion: "Add column without DEFAULT, then backfill in batches from later change scripts",
			LockType:   "ACCESS EXCLUSIVE",
			StmtIndex:  ctx.Statement,
		})
	}

	return findings
}

// defaultExpr returns the DEFAULT expression of a column, stored by
// pg_query as a CONSTR_DEFAULT constraint.
func defaultExpr(colDef *pg_query.ColumnDef) *pg_query.Node {
	for _, c := range colDef.Constraints {
		cn, ok := c.Node.(*pg_query.Node_Constraint)
		if ok && cn.Constraint.Contype == pg_query.ConstrType_CONSTR_DEFAULT {
			return cn.Constraint.RawExpr
		}
	}

	return nil
}

// isVolatile treats constants and casts of constants as stable and anything
// else, function calls included, as volatile.
func isVolatile(node *pg_query.Node) bool {
	switch n := node.Node.(type) {
	case *pg_query.Node_AConst:
		return false
	case *pg_query.Node_TypeCast:
		if n.TypeCast.Arg != nil {
			if _, ok := n.TypeCast.Arg.Node.(*pg_query.Node_AConst); ok {
				return false
			}
		}

		return true
	default:
		return true
	}
}

// AddConstraintRule detects CHECK and FOREIGN KEY constraints added without NOT VALID.
type AddConstraintRule struct{}

// NewAddConstraintRule creates a new AddConstraintRule.
func NewAddConstraintRule() *AddConstraintRule { return &AddConstraintRule{} }

// ID returns the rule identifier.
func (r *AddConstraintRule) ID() string { return "add-constraint-without-not-valid" }

// Check examines a statement for ADD CONSTRAINT without NOT VALID.
func (r *AddConstraintRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	relation, cmds := alterTableCmds(stmt, pg_query.AlterTableType_AT_AddConstraint)

	var findings []lint.Finding

	for _, cmd := range cmds {
		if cmd.Def == nil {
			continue
		}

		cn, ok := cmd.Def.Node.(*pg_query.Node_Constraint)
		if !ok {
			continue
		}

		c := cn.Constraint
		if c.Contype != pg_query.ConstrType_CONSTR_CHECK && c.Contype != pg_query.ConstrType_CONSTR_FOREIGN {
			continue
		}

		if c.SkipValidation {
			continue
		}

		findings = append(findings, lint.Finding{
			Rule:       r.ID(),
			Severity:   lint.High,
			Table:      lint.TableName(relation),
			Message:    "ADD CONSTRAINT without NOT VALID scans the entire table while holding a lock",
			Suggestion: "Add with NOT VALID, then VALIDATE CONSTRAINT in a later change script",
			LockType:   "ACCESS EXCLUSIVE",
			StmtIndex:  ctx.Statement,
		})
	}

	return findings
}

// AlterColumnTypeRule detects ALTER COLUMN TYPE, which rewrites the table.
type AlterColumnTypeRule struct{}

// NewAlterColumnTypeRule creates a new AlterColumnTypeRule.
func NewAlterColumnTypeRule() *AlterColumnTypeRule { return &AlterColumnTypeRule{} }

// ID returns the rule identifier.
func (r *AlterColumnTypeRule) ID() string { return "alter-column-type" }

// Check examines a statement for ALTER COLUMN TYPE.
func (r *AlterColumnTypeRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	relation, cmds := alterTableCmds(stmt, pg_query.AlterTableType_AT_AlterColumnType)

	findings := make([]lint.Finding, 0, len(cmds))

	for range cmds {
		findings = append(findings, lint.Finding{
			Rule:       r.ID(),
			Severity:   lint.High,
			Table:      lint.TableName(relation),
			Message:    "ALTER COLUMN TYPE rewrites the entire table while holding an ACCESS EXCLUSIVE lock",
			Suggestion: "Add a new column, backfill it, swap columns, then drop the old one across separate change scripts",
			LockType:   "ACCESS EXCLUSIVE",
			StmtIndex:  ctx.Statement,
		})
	}

	return findings
}

// SetNotNullRule detects SET NOT NULL, which scans the whole table.
type SetNotNullRule struct{}

// NewSetNotNullRule creates a new SetNotNullRule.
func NewSetNotNullRule() *SetNotNullRule { return &SetNotNullRule{} }

// ID returns the rule identifier.
func (r *SetNotNullRule) ID() string { return "set-not-null" }

// Check examines a statement for SET NOT NULL.
func (r *SetNotNullRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	relation, cmds := alterTableCmds(stmt, pg_query.AlterTableType_AT_SetNotNull)

	findings := make([]lint.Finding, 0, len(cmds))

	for range cmds {
		severity := lint.High
		suggestion := "Requires full table scan. Consider application-level enforcement instead."

		if ctx.TargetPGVersion >= pgVersionSafeSetNotNull {
			severity = lint.Medium
			suggestion = "First add CHECK (col IS NOT NULL) NOT VALID, then VALIDATE CONSTRAINT, then SET NOT NULL"
		}

		findings = append(findings, lint.Finding{
			Rule:       r.ID(),
			Severity:   severity,
			Table:      lint.TableName(relation),
			Message:    "SET NOT NULL requires a full table scan to verify no NULL values exist",
			Suggestion: suggestion,
			LockType:   "ACCESS EXCLUSIVE",
			StmtIndex:  ctx.Statement,
		})
	}

	return findings
}
