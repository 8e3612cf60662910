package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dbdeploy/dbdeploy/internal/config"
)

const version = "0.1.0"

// Exit codes returned by Execute.
const (
	exitFailure = 1
	exitUsage   = 2
)

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// Logger is the run logger, set during PersistentPreRunE.
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil)) //nolint:gochecknoglobals // standard Cobra pattern for shared state

// rootCmd is the base command for the dbdeploy CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "dbdeploy",
	Version: version,
	Short:   "Apply numbered SQL change scripts and track them in a changelog table",
	Long: `dbdeploy compares the numbered change scripts in a directory with the
changelog table of the target database, verifies that applied scripts have
not been modified, and applies the pending ones in order, each in its own
transaction. It can instead render the pending scripts, and their undo
sections, to SQL files for manual execution.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		Logger = newLogger(cmd.ErrOrStderr(), AppConfig.LogFormat, verbose)

		return nil
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	registerGlobalFlags(rootCmd.PersistentFlags())
}

func registerGlobalFlags(fs *pflag.FlagSet) {
	fs.String("config", "dbdeploy.yml", "path to configuration file")
	fs.String("url", "", "database connection string")
	fs.String("driver", "", "database driver (pgx, postgres, sqlite)")
	fs.String("user", "", "database user, overrides the connection string")
	fs.String("password", "", "database password, overrides the connection string")
	fs.String("dir", "", "directory containing numbered change scripts")
	fs.String("changelog-table", "", "name of the changelog table")
	fs.String("log-format", "", "log format (auto, text, json)")
	fs.Bool("verbose", false, "enable debug logging")
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		if errors.Is(err, config.ErrUsage) {
			os.Exit(exitUsage)
		}

		os.Exit(exitFailure)
	}
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if err := config.MergeEnv(cfg); err != nil {
		return err
	}

	mergeFlags(cmd, cfg)

	AppConfig = cfg

	return nil
}

// commandConfig returns a copy of AppConfig with cmd's flags applied.
// AppConfig itself is never modified.
func commandConfig(cmd *cobra.Command) *config.Config {
	cfg := config.New()
	if AppConfig != nil {
		*cfg = *AppConfig
	}

	mergeFlags(cmd, cfg)

	return cfg
}

// mergeFlags overrides config with explicitly-set CLI flags.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	stringFlags := map[string]*string{
		"url":             &cfg.DatabaseURL,
		"driver":          &cfg.Driver,
		"user":            &cfg.User,
		"password":        &cfg.Password,
		"dir":             &cfg.ScriptsDir,
		"changelog-table": &cfg.ChangeLogTable,
		"log-format":      &cfg.LogFormat,
		"output":          &cfg.OutputFile,
		"undo-output":     &cfg.UndoOutputFile,
		"dbms":            &cfg.Syntax,
		"template-dir":    &cfg.TemplateDir,
	}

	for name, dst := range stringFlags {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}

	if cmd.Flags().Changed("last-change") {
		cfg.LastChangeToApply, _ = cmd.Flags().GetInt64("last-change")
	}

	if cmd.Flags().Changed("statement-timeout") {
		cfg.StatementTimeout, _ = cmd.Flags().GetDuration("statement-timeout")
	}
}

// newLogger builds the run logger. With format "auto" it writes text to a
// terminal and JSON otherwise. Every record carries the run id.
func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler

	if useJSON(w, format) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("run_id", uuid.NewString())
}

func useJSON(w io.Writer, format string) bool {
	switch strings.ToLower(format) {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return true
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}
