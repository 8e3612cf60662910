package applier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/database"
)

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ProgressEvent is emitted by the direct applier for each change script processed.
type ProgressEvent struct {
	Script   *changescript.ChangeScript
	Status   string
	Duration time.Duration
	Error    error
}

// StatementSplitter breaks script text into executable statements.
type StatementSplitter interface {
	Split(text string) []string
}

// Recorder appends a changelog entry through the given executor.
type Recorder interface {
	RecordApplied(ctx context.Context, exec database.Execer, cs *changescript.ChangeScript) error
}

// statementSource is anything with SQL content to split and run.
type statementSource interface {
	Content() string
}

// Direct applies change scripts to a live database. Each script, its optional
// pre- and post-scripts, and its changelog entry run in one transaction.
type Direct struct {
	db               database.Beginner
	recorder         Recorder
	splitter         StatementSplitter
	pre              *changescript.Script
	post             *changescript.Script
	statementTimeout time.Duration
	logger           *slog.Logger
	onProgress       func(ProgressEvent)
}

// DirectOption configures a Direct applier.
type DirectOption func(*Direct)

// WithPreScript runs s before every change script, inside its transaction.
func WithPreScript(s changescript.Script) DirectOption {
	return func(d *Direct) { d.pre = &s }
}

// WithPostScript runs s after every change script, inside its transaction.
func WithPostScript(s changescript.Script) DirectOption {
	return func(d *Direct) { d.post = &s }
}

// WithStatementTimeout bounds each statement with a context deadline.
func WithStatementTimeout(timeout time.Duration) DirectOption {
	return func(d *Direct) { d.statementTimeout = timeout }
}

// WithLogger sets the logger for per-script and per-statement messages.
func WithLogger(l *slog.Logger) DirectOption {
	return func(d *Direct) { d.logger = l }
}

// WithProgressCallback sets a function called as each change script starts and finishes.
func WithProgressCallback(fn func(ProgressEvent)) DirectOption {
	return func(d *Direct) { d.onProgress = fn }
}

// NewDirect creates a Direct applier.
func NewDirect(db database.Beginner, recorder Recorder, splitter StatementSplitter, opts ...DirectOption) *Direct {
	d := &Direct{
		db:       db,
		recorder: recorder,
		splitter: splitter,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Apply runs scripts in the given order, stopping at the first failure.
// Scripts that completed before the failure stay committed and recorded.
// An empty slice is a successful no-op.
func (d *Direct) Apply(ctx context.Context, scripts []*changescript.ChangeScript) error {
	for _, cs := range scripts {
		if err := d.applyOne(ctx, cs); err != nil {
			return err
		}
	}

	return nil
}

func (d *Direct) applyOne(ctx context.Context, cs *changescript.ChangeScript) error {
	d.logger.Info("applying change script", "id", cs.ID(), "description", cs.Description())
	d.fireProgress(ProgressEvent{Script: cs, Status: StatusStarting})

	start := time.Now()

	err := database.InTransaction(ctx, d.db, func(tx database.Tx) error {
		if d.pre != nil {
			d.logger.Debug("applying pre script", "script", d.pre.Description())

			if err := d.execScript(ctx, tx, d.pre.String(), d.pre, cs); err != nil {
				return err
			}
		}

		if err := d.execScript(ctx, tx, "change script "+cs.String(), cs, cs); err != nil {
			return err
		}

		if d.post != nil {
			d.logger.Debug("applying post script", "script", d.post.Description())

			if err := d.execScript(ctx, tx, d.post.String(), d.post, cs); err != nil {
				return err
			}
		}

		return d.recorder.RecordApplied(ctx, tx, cs)
	})

	duration := time.Since(start)

	if err != nil {
		var scriptErr *ScriptError
		if !errors.As(err, &scriptErr) {
			err = fmt.Errorf("applying change script %s: %w", cs, err)
		}

		d.logger.Error("change script failed", "id", cs.ID(), "sqlstate", database.SQLState(err), "error", err)
		d.fireProgress(ProgressEvent{Script: cs, Status: StatusFailed, Duration: duration, Error: err})

		return err
	}

	d.fireProgress(ProgressEvent{Script: cs, Status: StatusCompleted, Duration: duration})

	return nil
}

// execScript splits src and executes its statements in order on tx.
func (d *Direct) execScript(
	ctx context.Context,
	tx database.Execer,
	label string,
	src statementSource,
	cs *changescript.ChangeScript,
) error {
	statements := d.splitter.Split(src.Content())

	for i, stmt := range statements {
		if len(statements) > 1 {
			d.logger.Debug("executing statement", "script", label, "statement", i+1, "of", len(statements))
		}

		if err := d.exec(ctx, tx, stmt); err != nil {
			return &ScriptError{
				Script:       label,
				ChangeScript: cs,
				Statement:    i + 1,
				SQL:          stmt,
				Err:          err,
			}
		}
	}

	return nil
}

func (d *Direct) exec(ctx context.Context, tx database.Execer, stmt string) error {
	if d.statementTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.statementTimeout)
		defer cancel()
	}

	return tx.Exec(ctx, stmt)
}

func (d *Direct) fireProgress(event ProgressEvent) {
	if d.onProgress != nil {
		d.onProgress(event)
	}
}
