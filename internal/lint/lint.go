// Package lint inspects pending PostgreSQL change scripts with the real
// PostgreSQL parser and reports statements that lock tables, lose data, or
// cannot run inside the per-script transaction used by the direct applier.
package lint

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
)

const defaultPGVersion = 14

// StatementSplitter breaks script text into executable statements.
type StatementSplitter interface {
	Split(text string) []string
}

// Rule is implemented by every danger detection rule.
type Rule interface {
	// ID returns a unique kebab-case identifier for this rule.
	ID() string
	// Check examines a single parsed statement and returns any findings.
	Check(stmt *pg_query.RawStmt, ctx *Context) []Finding
}

// Context describes the statement a rule is looking at.
type Context struct {
	Script          *changescript.ChangeScript
	TargetPGVersion int
	// Statement is the 1-based index of the statement within the script, as
	// reported by the direct applier on failure.
	Statement int
	// InTransaction is true when the script will run inside a transaction block.
	InTransaction bool
}

// Registry holds a collection of rules.
type Registry struct {
	rules []Rule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a rule to the registry.
func (r *Registry) Register(rule Rule) {
	r.rules = append(r.rules, rule)
}

// Rules returns all registered rules.
func (r *Registry) Rules() []Rule {
	return r.rules
}

// Option configures a Linter.
type Option func(*Linter)

// Linter runs registered rules against the statements of change scripts.
type Linter struct {
	registry      *Registry
	splitter      StatementSplitter
	parseFn       func(string) (*ParseResult, error)
	pgVersion     int
	inTransaction bool
}

// WithRegistry sets the rules to run.
func WithRegistry(r *Registry) Option {
	return func(l *Linter) { l.registry = r }
}

// WithPGVersion sets the target PostgreSQL major version.
func WithPGVersion(v int) Option {
	return func(l *Linter) { l.pgVersion = v }
}

// WithParser overrides the SQL parser function.
func WithParser(fn func(string) (*ParseResult, error)) Option {
	return func(l *Linter) { l.parseFn = fn }
}

// WithTransaction tells rules whether scripts run inside a transaction block.
// It defaults to true, matching the direct applier.
func WithTransaction(inTransaction bool) Option {
	return func(l *Linter) { l.inTransaction = inTransaction }
}

// New creates a Linter that splits scripts with s.
func New(s StatementSplitter, opts ...Option) *Linter {
	l := &Linter{
		registry:      NewRegistry(),
		splitter:      s,
		parseFn:       Parse,
		pgVersion:     defaultPGVersion,
		inTransaction: true,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Lint checks the forward content of one change script.
func (l *Linter) Lint(cs *changescript.ChangeScript) (*Result, error) {
	result := &Result{Script: cs, MaxSeverity: Safe}

	for i, text := range l.splitter.Split(cs.DoContent()) {
		parsed, err := l.parseFn(text)
		if err != nil {
			return nil, fmt.Errorf("parsing change script %s statement %d: %w", cs, i+1, err)
		}

		ctx := &Context{
			Script:          cs,
			TargetPGVersion: l.pgVersion,
			Statement:       i + 1,
			InTransaction:   l.inTransaction,
		}

		for _, stmt := range parsed.Stmts {
			for _, rule := range l.registry.Rules() {
				for _, f := range rule.Check(stmt, ctx) {
					if f.Statement == "" {
						f.Statement = TruncateSQL(text, maxStatementDisplay)
					}

					result.add(f)
				}
			}
		}
	}

	return result, nil
}

// LintAll checks scripts in order and returns one result per script.
func (l *Linter) LintAll(scripts []*changescript.ChangeScript) ([]Result, error) {
	results := make([]Result, 0, len(scripts))

	for _, cs := range scripts {
		r, err := l.Lint(cs)
		if err != nil {
			return nil, err
		}

		results = append(results, *r)
	}

	return results, nil
}

// TableName extracts a qualified table name from a RangeVar.
func TableName(rv *pg_query.RangeVar) string {
	if rv == nil {
		return "<unknown>"
	}

	if rv.Schemaname != "" {
		return rv.Schemaname + "." + rv.Relname
	}

	return rv.Relname
}
