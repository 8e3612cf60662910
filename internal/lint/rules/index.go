package rules

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/dbdeploy/dbdeploy/internal/lint"
)

const pgVersionEnumValueInTransaction = 12

// CreateIndexRule detects CREATE INDEX without CONCURRENTLY.
type CreateIndexRule struct{}

// NewCreateIndexRule creates a new CreateIndexRule.
func NewCreateIndexRule() *CreateIndexRule { return &CreateIndexRule{} }

// ID returns the rule identifier.
func (r *CreateIndexRule) ID() string { return "create-index-not-concurrent" }

// Check examines a statement for non-concurrent CREATE INDEX.
func (r *CreateIndexRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	node, ok := stmt.Stmt.Node.(*pg_query.Node_IndexStmt)
	if !ok || node.IndexStmt.Concurrent {
		return nil
	}

	suggestion := "Use CREATE INDEX CONCURRENTLY to avoid blocking writes during index creation"
	if ctx.InTransaction {
		suggestion = "Build the index CONCURRENTLY from a script rendered with --output and run outside a transaction"
	}

	return []lint.Finding{{
		Rule:       r.ID(),
		Severity:   lint.High,
		Table:      lint.TableName(node.IndexStmt.Relation),
		Message:    "CREATE INDEX without CONCURRENTLY locks the table for writes",
		Suggestion: suggestion,
		LockType:   "SHARE",
		StmtIndex:  ctx.Statement,
	}}
}

// TransactionBlockRule detects statements PostgreSQL refuses to run inside a
// transaction block. The direct applier wraps every change script in one, so
// these scripts fail on apply.
type TransactionBlockRule struct{}

// NewTransactionBlockRule creates a new TransactionBlockRule.
func NewTransactionBlockRule() *TransactionBlockRule { return &TransactionBlockRule{} }

// ID returns the rule identifier.
func (r *TransactionBlockRule) ID() string { return "not-allowed-in-transaction" }

// Check examines a statement that cannot run in a transaction block.
func (r *TransactionBlockRule) Check(stmt *pg_query.RawStmt, ctx *lint.Context) []lint.Finding {
	if !ctx.InTransaction {
		return nil
	}

	var what, table string

	switch node := stmt.Stmt.Node.(type) {
	case *pg_query.Node_IndexStmt:
		if !node.IndexStmt.Concurrent {
			return nil
		}

		what, table = "CREATE INDEX CONCURRENTLY", lint.TableName(node.IndexStmt.Relation)
	case *pg_query.Node_DropStmt:
		if !node.DropStmt.Concurrent {
			return nil
		}

		what = "DROP INDEX CONCURRENTLY"
	case *pg_query.Node_VacuumStmt:
		if !node.VacuumStmt.IsVacuumcmd {
			return nil
		}

		what, table = "VACUUM", vacuumTable(node.VacuumStmt)
	case *pg_query.Node_CreatedbStmt:
		what = "CREATE DATABASE"
	case *pg_query.Node_AlterEnumStmt:
		if node.AlterEnumStmt.NewVal == "" || ctx.TargetPGVersion >= pgVersionEnumValueInTransaction {
			return nil
		}

		what = "ALTER TYPE ... ADD VALUE"
	default:
		return nil
	}

	return []lint.Finding{{
		Rule:       r.ID(),
		Severity:   lint.Critical,
		Table:      table,
		Message:    what + " cannot run inside a transaction block; the change script will fail when applied",
		Suggestion: "Render this script with --output and run it outside a transaction, or move it to a manual step",
		StmtIndex:  ctx.Statement,
	}}
}
