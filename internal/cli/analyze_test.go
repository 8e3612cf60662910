package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/config"
	"github.com/dbdeploy/dbdeploy/internal/lint"
)

const (
	safeScript      = "CREATE TABLE orders (id BIGINT PRIMARY KEY);\n--//@UNDO\nDROP TABLE orders;\n"
	dangerousScript = "CREATE INDEX idx_orders_id ON orders (id);\nALTER TABLE orders ALTER COLUMN id TYPE TEXT;\n"
)

func TestRunAnalyze_safeScripts_reportsNoFindings(t *testing.T) { //nolint:paralleltest // mutates AppConfig
	f := newFixture(t)
	f.writeScript(t, "001_orders.sql", safeScript)

	out, err := runCommand(t, runAnalyze, registerAnalyzeFlags, map[string]string{"fail-on-high": "true"})

	require.NoError(t, err)
	assert.Contains(t, out, "No dangerous operations detected.")
}

func TestRunAnalyze_dirArgument_overridesConfig(t *testing.T) { //nolint:paralleltest // mutates AppConfig
	f := newFixture(t)
	f.writeScript(t, "001_orders.sql", safeScript)

	setAppConfig(t, config.New())

	out, err := runCommand(t, runAnalyze, registerAnalyzeFlags, nil, f.scriptsDir)

	require.NoError(t, err)
	assert.Contains(t, out, "No dangerous operations detected.")
}

func TestRunAnalyze_highFindings_failOnHigh(t *testing.T) { //nolint:paralleltest // mutates AppConfig
	f := newFixture(t)
	f.writeScript(t, "001_orders.sql", safeScript)
	f.writeScript(t, "002_reindex.sql", dangerousScript)

	out, err := runCommand(t, runAnalyze, registerAnalyzeFlags, map[string]string{"fail-on-high": "true"})

	require.ErrorIs(t, err, errHighSeverityFindings)
	assert.Contains(t, out, "=== #2: 002_reindex.sql ===")
	assert.Contains(t, out, "[HIGH]")
	assert.Contains(t, out, "Statement: 1:")
	assert.Contains(t, out, "across 1 change script(s)")
	assert.NotContains(t, out, "#1: 001_orders.sql")
}

func TestRunAnalyze_highFindings_withoutFailOnHigh_succeeds(t *testing.T) { //nolint:paralleltest // mutates AppConfig
	f := newFixture(t)
	f.writeScript(t, "002_reindex.sql", dangerousScript)

	out, err := runCommand(t, runAnalyze, registerAnalyzeFlags, nil)

	require.NoError(t, err)
	assert.Contains(t, out, "Found")
}

func TestRunAnalyze_emptyDir_reportsNothingToAnalyze(t *testing.T) { //nolint:paralleltest // mutates AppConfig
	newFixture(t)

	out, err := runCommand(t, runAnalyze, registerAnalyzeFlags, nil)

	require.NoError(t, err)
	assert.Contains(t, out, "No change scripts to analyze.")
}

func TestRunAnalyze_invalidSQL_returnsParseError(t *testing.T) { //nolint:paralleltest // mutates AppConfig
	f := newFixture(t)
	f.writeScript(t, "001_bad.sql", "CREATE TABL nope;\n")

	_, err := runCommand(t, runAnalyze, registerAnalyzeFlags, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzing change scripts")
}

func TestRunAnalyze_pending_skipsAppliedScripts(t *testing.T) { //nolint:paralleltest // mutates AppConfig
	f := newFixture(t)
	f.writeScript(t, "001_users.sql", createUsers)
	f.initTable(t)

	_, err := runCommand(t, runApply, registerApplyFlags, nil)
	require.NoError(t, err)

	f.writeScript(t, "002_reindex.sql", dangerousScript)

	out, err := runCommand(t, runAnalyze, registerAnalyzeFlags, map[string]string{"pending": "true"})

	require.NoError(t, err)
	assert.Contains(t, out, "#2: 002_reindex.sql")
	assert.NotContains(t, out, "#1: 001_users.sql")
}

func TestRunAnalyze_missingDir_isUsageError(t *testing.T) { //nolint:paralleltest // mutates AppConfig
	f := newFixture(t)
	f.cfg.ScriptsDir = ""

	_, err := runCommand(t, runAnalyze, registerAnalyzeFlags, nil)

	require.ErrorIs(t, err, config.ErrUsage)
}

func TestPrintLintResults(t *testing.T) {
	t.Parallel()

	cs, err := changescript.New(4, "004_lock.sql", "LOCK TABLE orders;\n", "")
	require.NoError(t, err)

	results := []lint.Result{
		{Script: cs, MaxSeverity: lint.Medium, Findings: []lint.Finding{{
			Rule:       "lock-table",
			Severity:   lint.Medium,
			Table:      "orders",
			Statement:  "LOCK TABLE orders",
			Message:    "explicit lock",
			Suggestion: "avoid it",
			StmtIndex:  1,
		}}},
		{Script: cs},
	}

	buf := new(bytes.Buffer)
	high := printLintResults(buf, results)

	assert.False(t, high)
	assert.Contains(t, buf.String(), "=== #4: 004_lock.sql ===")
	assert.Contains(t, buf.String(), "Table:     orders")
	assert.Contains(t, buf.String(), "Rule:      lock-table")
	assert.Contains(t, buf.String(), "Statement: 1: LOCK TABLE orders")
	assert.Contains(t, buf.String(), "Fix:       avoid it")
	assert.Contains(t, buf.String(), "Found 1 finding(s) across 1 change script(s).")
}

func TestCountScriptsWithFindings(t *testing.T) {
	t.Parallel()

	results := []lint.Result{
		{Findings: []lint.Finding{{Rule: "a"}}},
		{},
		{Findings: []lint.Finding{{Rule: "b"}, {Rule: "c"}}},
	}

	assert.Equal(t, 2, countScriptsWithFindings(results))
	assert.Equal(t, 0, countScriptsWithFindings(nil))
}
