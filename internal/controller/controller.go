// Package controller reconciles the available change scripts with the
// changelog and hands the pending delta to the configured appliers.
package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/dbdeploy/dbdeploy/internal/changelog"
	"github.com/dbdeploy/dbdeploy/internal/changescript"
)

// NoCeiling applies every pending script.
const NoCeiling int64 = math.MaxInt64

// ScriptSource supplies the available change scripts ascending by id.
type ScriptSource interface {
	Ordered() []*changescript.ChangeScript
}

// AppliedChangesProvider reads the changelog.
type AppliedChangesProvider interface {
	FindAppliedIDs(ctx context.Context) ([]int64, error)
	FindEntries(ctx context.Context) ([]changelog.Entry, error)
}

// Applier consumes an ordered slice of change scripts. An empty slice must be
// treated as a successful no-op.
type Applier interface {
	Apply(ctx context.Context, scripts []*changescript.ChangeScript) error
}

// Plan is the outcome of checksum validation and delta computation.
type Plan struct {
	// Applied holds the change numbers found in the changelog, ascending.
	Applied []int64
	// Available holds every change script, ascending by id.
	Available []*changescript.ChangeScript
	// Pending holds the scripts to apply, ascending by id.
	Pending []*changescript.ChangeScript
}

// Controller runs one reconciliation pass.
type Controller struct {
	source   ScriptSource
	applied  AppliedChangesProvider
	forward  Applier
	undo     Applier
	logger   *slog.Logger
	onStatus func(Plan)
}

// Option configures a Controller.
type Option func(*Controller)

// WithUndoApplier sets the applier that receives the pending scripts in
// descending order after the forward applier succeeds.
func WithUndoApplier(a Applier) Option {
	return func(c *Controller) { c.undo = a }
}

// WithLogger sets the logger used for status reporting.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithStatusCallback sets a function that receives the plan before anything is applied.
func WithStatusCallback(fn func(Plan)) Option {
	return func(c *Controller) { c.onStatus = fn }
}

// New creates a Controller.
func New(source ScriptSource, applied AppliedChangesProvider, forward Applier, opts ...Option) *Controller {
	c := &Controller{
		source:  source,
		applied: applied,
		forward: forward,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Plan validates checksums of already-applied scripts and computes the
// scripts still pending up to and including lastChange. Nothing is applied.
func (c *Controller) Plan(ctx context.Context, lastChange int64) (Plan, error) {
	available := c.source.Ordered()

	ids, err := c.applied.FindAppliedIDs(ctx)
	if err != nil {
		return Plan{}, err
	}

	entries, err := c.applied.FindEntries(ctx)
	if err != nil {
		return Plan{}, err
	}

	if err := c.validateChecksums(available, entries); err != nil {
		return Plan{}, err
	}

	return Plan{
		Applied:   ids,
		Available: available,
		Pending:   pending(available, ids, lastChange),
	}, nil
}

// ProcessChangeScripts runs a full pass: plan, report, apply forward, then
// generate undo output when an undo applier is configured.
func (c *Controller) ProcessChangeScripts(ctx context.Context, lastChange int64) error {
	if lastChange != NoCeiling {
		c.logger.Info("only applying changes up to and including change script", "last_change", lastChange)
	}

	plan, err := c.Plan(ctx, lastChange)
	if err != nil {
		return err
	}

	c.reportStatus(plan)

	if err := c.forward.Apply(ctx, slices.Clip(plan.Pending)); err != nil {
		return err
	}

	if c.undo == nil {
		return nil
	}

	c.logger.Info("generating undo scripts", "count", len(plan.Pending))

	reversed := slices.Clone(plan.Pending)
	slices.Reverse(reversed)

	return c.undo.Apply(ctx, reversed)
}

// validateChecksums collects every available script whose checksum differs
// from its changelog entry.
func (c *Controller) validateChecksums(available []*changescript.ChangeScript, entries []changelog.Entry) error {
	recorded := make(map[int64]string, len(entries))
	for _, e := range entries {
		recorded[e.ID] = e.Checksum
	}

	var modified []*changescript.ChangeScript

	for _, cs := range available {
		checksum, ok := recorded[cs.ID()]
		if !ok || checksum == cs.Checksum() {
			continue
		}

		c.logger.Warn("invalid checksum for script", "script", cs.String(), "recorded", checksum, "actual", cs.Checksum())
		modified = append(modified, cs)
	}

	if len(modified) > 0 {
		return &ChecksumMismatchError{Scripts: modified}
	}

	return nil
}

func (c *Controller) reportStatus(plan Plan) {
	c.logger.Info("changes currently applied to database", "ids", FormatIDs(plan.Applied))
	c.logger.Info("scripts available", "ids", FormatIDs(scriptIDs(plan.Available)))
	c.logger.Info("to be applied", "ids", FormatIDs(scriptIDs(plan.Pending)))

	if c.onStatus != nil {
		c.onStatus(plan)
	}
}

// pending returns the available scripts with id <= lastChange that are not applied.
func pending(available []*changescript.ChangeScript, applied []int64, lastChange int64) []*changescript.ChangeScript {
	done := make(map[int64]struct{}, len(applied))
	for _, id := range applied {
		done[id] = struct{}{}
	}

	result := make([]*changescript.ChangeScript, 0, len(available))

	for _, cs := range available {
		if cs.ID() > lastChange {
			break
		}

		if _, ok := done[cs.ID()]; !ok {
			result = append(result, cs)
		}
	}

	return result
}

func scriptIDs(scripts []*changescript.ChangeScript) []int64 {
	ids := make([]int64, 0, len(scripts))
	for _, cs := range scripts {
		ids = append(ids, cs.ID())
	}

	return ids
}

// FormatIDs renders ascending ids compactly, collapsing consecutive runs:
// [1 2 3 5] becomes "1..3, 5". An empty slice renders as "(none)".
func FormatIDs(ids []int64) string {
	if len(ids) == 0 {
		return "(none)"
	}

	var out []byte

	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}

		if len(out) > 0 {
			out = append(out, ", "...)
		}

		switch {
		case j == i:
			out = fmt.Appendf(out, "%d", ids[i])
		case j == i+1:
			out = fmt.Appendf(out, "%d, %d", ids[i], ids[j])
		default:
			out = fmt.Appendf(out, "%d..%d", ids[i], ids[j])
		}

		i = j + 1
	}

	return string(out)
}
