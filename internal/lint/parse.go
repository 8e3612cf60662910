package lint

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseResult holds the parsed statements of one SQL fragment.
type ParseResult struct {
	Stmts []*pg_query.RawStmt
	SQL   string
}

// Parse parses PostgreSQL SQL. Empty or whitespace-only input yields zero statements.
func Parse(sql string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &ParseResult{SQL: sql}, nil
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	return &ParseResult{Stmts: tree.Stmts, SQL: sql}, nil
}
