package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/splitter"
)

// Default values for configuration fields.
const (
	DefaultDriver            = "pgx"
	DefaultChangeLogTable    = "changelog"
	DefaultDelimiter         = ";"
	DefaultDelimiterType     = "normal"
	DefaultLineEnding        = "platform"
	DefaultEncoding          = changescript.DefaultEncoding
	DefaultLogFormat         = "auto"
	DefaultLastChangeToApply = int64(math.MaxInt64)
)

// ErrUsage marks a missing or invalid setting. It is reported before any
// database interaction.
var ErrUsage = errors.New("invalid configuration")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$.]*$`)

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	DatabaseURL       string
	Driver            string
	User              string
	Password          string
	ScriptsDir        string
	Encoding          string
	OutputFile        string
	UndoOutputFile    string
	Syntax            string
	LastChangeToApply int64
	ChangeLogTable    string
	Delimiter         string
	DelimiterType     string
	LineEnding        string
	TemplateDir       string
	PreScript         string
	PostScript        string
	StatementTimeout  time.Duration
	LogFormat         string
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	DatabaseURL       string `yaml:"url"`
	Driver            string `yaml:"driver"`
	User              string `yaml:"userid"`
	Password          string `yaml:"password"`
	ScriptsDir        string `yaml:"dir"`
	Encoding          string `yaml:"encoding"`
	OutputFile        string `yaml:"outputfile"`
	UndoOutputFile    string `yaml:"undooutputfile"`
	Syntax            string `yaml:"dbms"`
	LastChangeToApply *int64 `yaml:"lastchangetoapply"`
	ChangeLogTable    string `yaml:"changelogtablename"`
	Delimiter         string `yaml:"delimiter"`
	DelimiterType     string `yaml:"delimitertype"`
	LineEnding        string `yaml:"lineending"`
	TemplateDir       string `yaml:"templatedir"`
	PreScript         string `yaml:"prescript"`
	PostScript        string `yaml:"postscript"`
	StatementTimeout  string `yaml:"statement_timeout"`
	LogFormat         string `yaml:"log_format"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		Driver:            DefaultDriver,
		Encoding:          DefaultEncoding,
		LastChangeToApply: DefaultLastChangeToApply,
		ChangeLogTable:    DefaultChangeLogTable,
		Delimiter:         DefaultDelimiter,
		DelimiterType:     DefaultDelimiterType,
		LineEnding:        DefaultLineEnding,
		LogFormat:         DefaultLogFormat,
	}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.Driver, raw.Driver)
	setString(&cfg.User, raw.User)
	setString(&cfg.Password, raw.Password)
	setString(&cfg.ScriptsDir, raw.ScriptsDir)
	setString(&cfg.Encoding, raw.Encoding)
	setString(&cfg.OutputFile, raw.OutputFile)
	setString(&cfg.UndoOutputFile, raw.UndoOutputFile)
	setString(&cfg.Syntax, raw.Syntax)
	setString(&cfg.ChangeLogTable, raw.ChangeLogTable)
	setString(&cfg.Delimiter, raw.Delimiter)
	setString(&cfg.DelimiterType, raw.DelimiterType)
	setString(&cfg.LineEnding, raw.LineEnding)
	setString(&cfg.TemplateDir, raw.TemplateDir)
	setString(&cfg.PreScript, raw.PreScript)
	setString(&cfg.PostScript, raw.PostScript)
	setString(&cfg.LogFormat, raw.LogFormat)

	if raw.LastChangeToApply != nil {
		cfg.LastChangeToApply = *raw.LastChangeToApply
	}

	if raw.StatementTimeout != "" {
		d, err := time.ParseDuration(raw.StatementTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing statement_timeout %q: %w", raw.StatementTimeout, err)
		}

		cfg.StatementTimeout = d
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// MergeEnv overrides config fields from DBDEPLOY_* environment variables.
// A value that cannot be parsed is an error wrapping ErrUsage.
func MergeEnv(cfg *Config) error {
	setString(&cfg.DatabaseURL, os.Getenv("DBDEPLOY_URL"))
	setString(&cfg.Driver, os.Getenv("DBDEPLOY_DRIVER"))
	setString(&cfg.User, os.Getenv("DBDEPLOY_USERID"))
	setString(&cfg.Password, os.Getenv("DBDEPLOY_PASSWORD"))
	setString(&cfg.ScriptsDir, os.Getenv("DBDEPLOY_DIR"))
	setString(&cfg.Syntax, os.Getenv("DBDEPLOY_DBMS"))
	setString(&cfg.ChangeLogTable, os.Getenv("DBDEPLOY_CHANGELOG_TABLE"))
	setString(&cfg.LogFormat, os.Getenv("DBDEPLOY_LOG_FORMAT"))

	if v := os.Getenv("DBDEPLOY_STATEMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return usage("DBDEPLOY_STATEMENT_TIMEOUT", fmt.Sprintf("%q is not a duration", v))
		}

		cfg.StatementTimeout = d
	}

	return nil
}

// Validate checks the settings needed by every command that reads the
// changelog. Returned errors wrap ErrUsage.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return usage("url", "is required (flag --url, env DBDEPLOY_URL or config key url)")
	}

	switch c.Driver {
	case "pgx", "postgres", "sqlite":
	default:
		return usage("driver", fmt.Sprintf("%q is not one of pgx, postgres or sqlite", c.Driver))
	}

	if !tableNamePattern.MatchString(c.ChangeLogTable) {
		return usage("changelogtablename", fmt.Sprintf("%q is not a valid table name", c.ChangeLogTable))
	}

	if c.LastChangeToApply < 0 {
		return usage("lastchangetoapply", "must not be negative")
	}

	if c.Delimiter == "" {
		return usage("delimiter", "must not be empty")
	}

	if _, err := splitter.ParseDelimiterType(c.DelimiterType); err != nil {
		return usage("delimitertype", err.Error())
	}

	if _, err := splitter.ParseLineEnding(c.LineEnding); err != nil {
		return usage("lineending", err.Error())
	}

	if _, err := changescript.Encoding(c.Encoding); err != nil {
		return usage("encoding", err.Error())
	}

	switch strings.ToLower(c.LogFormat) {
	case "auto", "text", "json":
	default:
		return usage("log_format", fmt.Sprintf("%q is not one of auto, text or json", c.LogFormat))
	}

	if c.StatementTimeout < 0 {
		return usage("statement_timeout", "must not be negative")
	}

	return nil
}

// ValidateApply adds the checks that only matter when scripts are applied or rendered.
func (c *Config) ValidateApply() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := c.ValidateScriptsDir(); err != nil {
		return err
	}

	if (c.OutputFile != "" || c.UndoOutputFile != "") && c.Syntax == "" {
		return usage("dbms", "is required when outputfile or undooutputfile is set")
	}

	if err := checkFile("prescript", c.PreScript); err != nil {
		return err
	}

	return checkFile("postscript", c.PostScript)
}

// ValidateScriptsDir checks that the scripts directory is set and is a directory.
func (c *Config) ValidateScriptsDir() error {
	if c.ScriptsDir == "" {
		return usage("dir", "is required (flag --dir, env DBDEPLOY_DIR or config key dir)")
	}

	info, err := os.Stat(c.ScriptsDir)
	if err != nil || !info.IsDir() {
		return usage("dir", fmt.Sprintf("%s is not a directory", c.ScriptsDir))
	}

	return nil
}

func checkFile(name, path string) error {
	if path == "" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return usage(name, fmt.Sprintf("file %s does not exist", path))
	}

	return nil
}

func usage(setting, problem string) error {
	return fmt.Errorf("%w: %s %s", ErrUsage, setting, problem)
}
