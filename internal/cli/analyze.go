package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/config"
	"github.com/dbdeploy/dbdeploy/internal/controller"
	"github.com/dbdeploy/dbdeploy/internal/lint"
	"github.com/dbdeploy/dbdeploy/internal/lint/rules"
	"github.com/dbdeploy/dbdeploy/internal/splitter"
)

const defaultPGVersion = 14

var analyzeCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "analyze [scripts-dir]",
	Short: "Analyze PostgreSQL change scripts for dangerous operations",
	Long: `Parse change scripts with the PostgreSQL parser and report statements
that lock tables, destroy data, or cannot run inside the transaction each
change script is applied in. By default every script in the directory is
checked without connecting; --pending checks only scripts not yet applied.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	registerAnalyzeFlags(analyzeCmd.Flags())
	rootCmd.AddCommand(analyzeCmd)
}

func registerAnalyzeFlags(fs *pflag.FlagSet) {
	fs.Bool("fail-on-high", false, "exit with non-zero code if high/critical findings exist")
	fs.Bool("pending", false, "only analyze scripts not yet recorded in the changelog")
	fs.Bool("no-transaction", false, "scripts will be run outside a transaction block")
	fs.Int("pg-version", defaultPGVersion, "target PostgreSQL major version")
}

// errHighSeverityFindings is returned when --fail-on-high is set and high/critical findings exist.
var errHighSeverityFindings = errors.New("high or critical severity findings detected")

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := commandConfig(cmd)

	if len(args) > 0 {
		cfg.ScriptsDir = args[0]
	}

	if err := cfg.ValidateScriptsDir(); err != nil {
		return err
	}

	repo, err := loadRepository(cfg)
	if err != nil {
		return err
	}

	split, err := newSplitter(cfg)
	if err != nil {
		return err
	}

	scripts := repo.Ordered()

	if pending, _ := cmd.Flags().GetBool("pending"); pending {
		if scripts, err = pendingScripts(cmd, cfg, repo); err != nil {
			return err
		}
	}

	if len(scripts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No change scripts to analyze.")

		return nil
	}

	noTx, _ := cmd.Flags().GetBool("no-transaction")
	pgVersion, _ := cmd.Flags().GetInt("pg-version")

	results, err := newLinter(split, !noTx, pgVersion).LintAll(scripts)
	if err != nil {
		return fmt.Errorf("analyzing change scripts: %w", err)
	}

	hasHighOrCritical := printLintResults(cmd.OutOrStdout(), results)

	failOnHigh, _ := cmd.Flags().GetBool("fail-on-high")
	if failOnHigh && hasHighOrCritical {
		return errHighSeverityFindings
	}

	return nil
}

func pendingScripts(
	cmd *cobra.Command, cfg *config.Config, repo *changescript.Repository,
) ([]*changescript.ChangeScript, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx := commandContext(cmd)

	sess, err := openSession(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	plan, err := controller.New(repo, sess.tracker, nil, controller.WithLogger(Logger)).Plan(ctx, cfg.LastChangeToApply)
	if err != nil {
		return nil, err
	}

	return plan.Pending, nil
}

func newLinter(split *splitter.Splitter, inTransaction bool, pgVersion int) *lint.Linter {
	return lint.New(split,
		lint.WithRegistry(rules.NewDefaultRegistry()),
		lint.WithPGVersion(pgVersion),
		lint.WithTransaction(inTransaction),
	)
}

func severityStyle(s lint.Severity) lipgloss.Style {
	switch s {
	case lint.Critical:
		return failedStyle.Bold(true)
	case lint.High:
		return failedStyle
	case lint.Medium:
		return warnStyle
	case lint.Low:
		return mutedStyle
	default:
		return appliedStyle
	}
}

// printLintResults writes findings grouped by script and reports whether any
// are high or critical.
func printLintResults(out io.Writer, results []lint.Result) bool {
	totalFindings := 0
	hasHighOrCritical := false

	for _, r := range results {
		if len(r.Findings) == 0 {
			continue
		}

		fmt.Fprintf(out, "\n%s\n", headingStyle.Render("=== "+r.Script.String()+" ==="))

		for _, f := range r.Findings {
			label := severityStyle(f.Severity).Render("[" + f.Severity.String() + "]")
			fmt.Fprintf(out, "  %s %s\n", label, f.Message)

			if f.Table != "" {
				fmt.Fprintf(out, "    Table:     %s\n", f.Table)
			}

			fmt.Fprintf(out, "    Rule:      %s\n", f.Rule)
			fmt.Fprintf(out, "    Statement: %d: %s\n", f.StmtIndex, f.Statement)
			fmt.Fprintf(out, "    Fix:       %s\n\n", f.Suggestion)
		}

		totalFindings += len(r.Findings)

		if r.HasHighOrCritical() {
			hasHighOrCritical = true
		}
	}

	if totalFindings == 0 {
		fmt.Fprintln(out, "No dangerous operations detected.")
	} else {
		fmt.Fprintf(out, "Found %d finding(s) across %d change script(s).\n", totalFindings, countScriptsWithFindings(results))
	}

	return hasHighOrCritical
}

func countScriptsWithFindings(results []lint.Result) int {
	count := 0

	for _, r := range results {
		if len(r.Findings) > 0 {
			count++
		}
	}

	return count
}
