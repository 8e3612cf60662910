package applier

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/dbdeploy/dbdeploy/internal/changelog"
	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/splitter"
)

// Template qualifiers.
const (
	QualifierApply = "apply"
	QualifierUndo  = "undo"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// Model is the data handed to an apply or undo template.
type Model struct {
	Scripts            []*changescript.ChangeScript
	ChangeLogTableName string
	Delimiter          string
	// Separator is "\n" for row delimiters, so "GO" lands on its own line,
	// and empty for normal delimiters.
	Separator string
}

// TemplateOptions configures a Template applier.
type TemplateOptions struct {
	// Syntax selects the template family, e.g. "pgsql" or "mssql".
	Syntax         string
	ChangeLogTable string
	Delimiter      string
	DelimiterType  splitter.DelimiterType
	// TemplateDir is searched before the built-in templates when set.
	TemplateDir string
}

// Template renders change scripts into a SQL file instead of running them.
type Template struct {
	out       io.Writer
	opts      TemplateOptions
	qualifier string
	builtin   fs.FS
}

// NewTemplate returns an applier that writes forward scripts to out.
func NewTemplate(out io.Writer, opts TemplateOptions) *Template {
	return newTemplate(out, opts, QualifierApply)
}

// NewUndoTemplate returns an applier that writes undo scripts to out.
// The controller passes it scripts in descending order.
func NewUndoTemplate(out io.Writer, opts TemplateOptions) *Template {
	return newTemplate(out, opts, QualifierUndo)
}

func newTemplate(out io.Writer, opts TemplateOptions, qualifier string) *Template {
	if opts.ChangeLogTable == "" {
		opts.ChangeLogTable = changelog.DefaultTableName
	}

	if opts.Delimiter == "" {
		opts.Delimiter = ";"
	}

	return &Template{out: out, opts: opts, qualifier: qualifier, builtin: builtinTemplates}
}

// TemplateName returns the file name looked up for this applier.
func (t *Template) TemplateName() string {
	return t.opts.Syntax + "_" + t.qualifier + ".tmpl"
}

// Apply renders scripts and writes the result to the output. Nothing is
// written when loading, parsing or rendering fails.
func (t *Template) Apply(ctx context.Context, scripts []*changescript.ChangeScript) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpl, err := t.parse()
	if err != nil {
		return err
	}

	separator := ""
	if t.opts.DelimiterType == splitter.Row {
		separator = "\n"
	}

	model := Model{
		Scripts:            scripts,
		ChangeLogTableName: t.opts.ChangeLogTable,
		Delimiter:          t.opts.Delimiter,
		Separator:          separator,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, model); err != nil {
		return fmt.Errorf("rendering template %s: %w", tmpl.Name(), err)
	}

	if _, err := buf.WriteTo(t.out); err != nil {
		return fmt.Errorf("writing %s output: %w", t.qualifier, err)
	}

	return nil
}

// Check loads and parses the template without rendering anything, so a
// missing or malformed template can be reported before any change is made.
func (t *Template) Check() error {
	_, err := t.parse()

	return err
}

func (t *Template) parse() (*template.Template, error) {
	name := t.TemplateName()

	src, err := t.load(name)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(name).Funcs(funcMap()).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}

	return tmpl, nil
}

func (t *Template) load(name string) (string, error) {
	if t.opts.TemplateDir != "" {
		data, err := os.ReadFile(filepath.Join(t.opts.TemplateDir, name))
		if err == nil {
			return string(data), nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading template %s: %w", name, err)
		}
	}

	data, err := fs.ReadFile(t.builtin, "templates/"+name)
	if err != nil {
		return "", &TemplateNotFoundError{Name: name}
	}

	return string(data), nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"sql":         quoteLiteral,
		"deleteEntry": changelog.DeleteEntrySQL,
	}
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
