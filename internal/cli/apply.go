package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dbdeploy/dbdeploy/internal/applier"
	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/config"
	"github.com/dbdeploy/dbdeploy/internal/controller"
	"github.com/dbdeploy/dbdeploy/internal/splitter"
)

// errDangerousChanges is returned when apply --check finds high or critical issues.
var errDangerousChanges = errors.New("apply aborted: dangerous change scripts detected (run without --check to override)")

var applyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "apply",
	Short: "Apply pending change scripts",
	Long: `Apply every pending change script up to --last-change. Each script runs
in its own transaction together with its changelog entry. With --output the
pending scripts are rendered to a SQL file instead of being executed, and
--undo-output renders their undo sections in reverse order.`,
	RunE: runApply,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	registerApplyFlags(applyCmd.Flags())
	rootCmd.AddCommand(applyCmd)
}

func registerApplyFlags(fs *pflag.FlagSet) {
	fs.Int64("last-change", config.DefaultLastChangeToApply, "highest change number to apply")
	fs.String("output", "", "render pending scripts to this file instead of executing them")
	fs.String("undo-output", "", "render undo scripts for the pending changes to this file")
	fs.String("dbms", "", "template syntax for rendered output (pgsql, mysql, ora, mssql, sqlite)")
	fs.String("template-dir", "", "directory searched for templates before the built-in ones")
	fs.Duration("statement-timeout", 0, "per-statement timeout (e.g. 30s, 5m)")
	fs.Bool("check", false, "lint pending PostgreSQL scripts and abort on high or critical findings")
}

func runApply(cmd *cobra.Command, _ []string) error {
	cfg := commandConfig(cmd)

	if err := cfg.ValidateApply(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	repo, err := loadRepository(cfg)
	if err != nil {
		return err
	}

	split, err := newSplitter(cfg)
	if err != nil {
		return err
	}

	tmplOpts := templateOptions(cfg, split)

	if err := checkTemplates(cfg, tmplOpts); err != nil {
		return err
	}

	sess, err := openSession(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer sess.Close()

	var outputs []*outputFile

	defer func() {
		for _, o := range outputs {
			o.Close() //nolint:errcheck // already closed on success
		}
	}()

	forward, forwardOut, err := newForwardApplier(cfg, sess, tmplOpts, split, out)
	if err != nil {
		return err
	}

	if forwardOut != nil {
		outputs = append(outputs, forwardOut)
	}

	opts := []controller.Option{
		controller.WithLogger(Logger),
		controller.WithStatusCallback(func(p controller.Plan) { printPlan(out, p) }),
	}

	if cfg.UndoOutputFile != "" {
		undoOut, err := createOutput(cfg.UndoOutputFile, cfg.Encoding)
		if err != nil {
			return fmt.Errorf("creating undo output file: %w", err)
		}

		outputs = append(outputs, undoOut)
		opts = append(opts, controller.WithUndoApplier(applier.NewUndoTemplate(undoOut, tmplOpts)))
	}

	ctrl := controller.New(repo, sess.tracker, forward, opts...)

	if check, _ := cmd.Flags().GetBool("check"); check {
		blocked, err := checkPending(cmd, ctrl, split, cfg)
		if err != nil {
			return err
		}

		if blocked {
			return errDangerousChanges
		}
	}

	start := time.Now()

	if err := ctrl.ProcessChangeScripts(ctx, cfg.LastChangeToApply); err != nil {
		return err
	}

	for _, o := range outputs {
		if err := o.Close(); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
	}

	Logger.Info("apply complete", "duration", time.Since(start))

	if cfg.OutputFile != "" {
		fmt.Fprintf(out, "\nWrote pending change scripts to %s\n", cfg.OutputFile)
	} else {
		fmt.Fprintln(out, "\nApply complete.")
	}

	if cfg.UndoOutputFile != "" {
		fmt.Fprintf(out, "Wrote undo scripts to %s\n", cfg.UndoOutputFile)
	}

	return nil
}

// checkTemplates loads every template the run will render so that a missing
// or malformed one fails before the database is touched.
func checkTemplates(cfg *config.Config, opts applier.TemplateOptions) error {
	if cfg.OutputFile != "" {
		if err := applier.NewTemplate(io.Discard, opts).Check(); err != nil {
			return err
		}
	}

	if cfg.UndoOutputFile != "" {
		return applier.NewUndoTemplate(io.Discard, opts).Check()
	}

	return nil
}

// newForwardApplier returns the template applier when an output file is
// configured and the direct applier otherwise. The output file is nil for the
// direct applier.
func newForwardApplier(
	cfg *config.Config,
	sess *session,
	tmplOpts applier.TemplateOptions,
	split *splitter.Splitter,
	out io.Writer,
) (controller.Applier, *outputFile, error) {
	if cfg.OutputFile != "" {
		f, err := createOutput(cfg.OutputFile, cfg.Encoding)
		if err != nil {
			return nil, nil, fmt.Errorf("creating output file: %w", err)
		}

		return applier.NewTemplate(f, tmplOpts), f, nil
	}

	opts := []applier.DirectOption{
		applier.WithLogger(Logger),
		applier.WithStatementTimeout(cfg.StatementTimeout),
		applier.WithProgressCallback(progressPrinter(out)),
	}

	if cfg.PreScript != "" {
		pre, err := changescript.LoadScript(cfg.PreScript, cfg.Encoding)
		if err != nil {
			return nil, nil, fmt.Errorf("loading pre script: %w", err)
		}

		opts = append(opts, applier.WithPreScript(pre))
	}

	if cfg.PostScript != "" {
		post, err := changescript.LoadScript(cfg.PostScript, cfg.Encoding)
		if err != nil {
			return nil, nil, fmt.Errorf("loading post script: %w", err)
		}

		opts = append(opts, applier.WithPostScript(post))
	}

	return applier.NewDirect(sess.gw, sess.tracker, split, opts...), nil, nil
}

func templateOptions(cfg *config.Config, split *splitter.Splitter) applier.TemplateOptions {
	return applier.TemplateOptions{
		Syntax:         cfg.Syntax,
		ChangeLogTable: cfg.ChangeLogTable,
		Delimiter:      split.Delimiter(),
		DelimiterType:  split.DelimiterType(),
		TemplateDir:    cfg.TemplateDir,
	}
}

func progressPrinter(out io.Writer) func(applier.ProgressEvent) {
	return func(event applier.ProgressEvent) {
		switch event.Status {
		case applier.StatusStarting:
			fmt.Fprintf(out, "  Applying %s ... ", event.Script)
		case applier.StatusCompleted:
			fmt.Fprintf(out, "done (%s)\n", event.Duration.Truncate(time.Millisecond))
		case applier.StatusFailed:
			fmt.Fprintln(out, "FAILED")
		}
	}
}

// checkPending lints the scripts that would be applied and reports whether
// any finding is high or critical.
func checkPending(cmd *cobra.Command, ctrl *controller.Controller, split *splitter.Splitter, cfg *config.Config) (bool, error) {
	plan, err := ctrl.Plan(commandContext(cmd), cfg.LastChangeToApply)
	if err != nil {
		return false, err
	}

	results, err := newLinter(split, cfg.OutputFile == "", defaultPGVersion).LintAll(plan.Pending)
	if err != nil {
		return false, fmt.Errorf("analyzing change scripts: %w", err)
	}

	return printLintResults(cmd.OutOrStdout(), results), nil
}
