package changelog

import (
	"context"
	"fmt"
	"time"

	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/database"
)

// DefaultTableName is the changelog table used when none is configured.
const DefaultTableName = "changelog"

// Entry is one row of the changelog: change ID was applied at Timestamp by
// UserName, and its content checksum at that time was Checksum.
type Entry struct {
	ID          int64
	Timestamp   time.Time
	UserName    string
	Description string
	Checksum    string
}

// NewEntry validates a changelog row read back from storage.
func NewEntry(id int64, ts time.Time, userName, description, checksum string) (Entry, error) {
	if id < 0 {
		return Entry{}, fmt.Errorf("%w: change_number %d is negative", ErrInvalidEntry, id)
	}

	if ts.IsZero() {
		return Entry{}, fmt.Errorf("%w: change_number %d has no completion time", ErrInvalidEntry, id)
	}

	return Entry{
		ID:          id,
		Timestamp:   ts,
		UserName:    userName,
		Description: description,
		Checksum:    checksum,
	}, nil
}

func (e Entry) String() string {
	return fmt.Sprintf("ChangeLogEntry { id: %d, timestamp: '%s', userName: '%s', description: '%s', checksum: '%s'}",
		e.ID, e.Timestamp.Format(time.RFC3339), e.UserName, e.Description, e.Checksum)
}

// Store is the part of a database gateway the Manager reads from.
type Store interface {
	database.Querier
	database.Execer
	CurrentUser(ctx context.Context) (string, error)
	Dialect() database.Dialect
}

// Manager is the only component that touches the changelog table.
type Manager struct {
	store    Store
	table    string
	now      func() time.Time
	identity func(ctx context.Context) (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the clock used to timestamp new entries.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIdentity replaces the accessor for the user recorded in new entries.
// The default asks the store for the connected principal.
func WithIdentity(fn func(ctx context.Context) (string, error)) Option {
	return func(m *Manager) { m.identity = fn }
}

// New creates a Manager for the named changelog table.
func New(store Store, table string, opts ...Option) *Manager {
	if table == "" {
		table = DefaultTableName
	}

	m := &Manager{
		store: store,
		table: table,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.identity == nil {
		m.identity = func(ctx context.Context) (string, error) { return m.store.CurrentUser(ctx) }
	}

	return m
}

// TableName returns the changelog table name.
func (m *Manager) TableName() string {
	return m.table
}

// EnsureTable creates the changelog table if it does not exist.
func (m *Manager) EnsureTable(ctx context.Context) error {
	if err := m.store.Exec(ctx, createTableSQL(m.store.Dialect(), m.table)); err != nil {
		return fmt.Errorf("%w %s: %w", ErrTableCreation, m.table, err)
	}

	return nil
}

// FindEntries returns every changelog entry ordered by change number.
func (m *Manager) FindEntries(ctx context.Context) ([]Entry, error) {
	rows, err := m.store.Query(ctx,
		"SELECT change_number, complete_dt, applied_by, description, checksum FROM "+m.table+" ORDER BY change_number",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: could not retrieve changelog entries: %w", ErrSchemaTracking, err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			id                          int64
			ts                          time.Time
			user, description, checksum string
		)

		if err := rows.Scan(&id, &ts, &user, &description, &checksum); err != nil {
			return nil, fmt.Errorf("%w: scanning changelog row: %w", ErrSchemaTracking, err)
		}

		entry, err := NewEntry(id, ts, user, description, checksum)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchemaTracking, err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: could not retrieve changelog entries: %w", ErrSchemaTracking, err)
	}

	return entries, nil
}

// FindAppliedIDs returns the change numbers present in the changelog, ascending.
func (m *Manager) FindAppliedIDs(ctx context.Context) ([]int64, error) {
	entries, err := m.FindEntries(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	return ids, nil
}

// RecordApplied appends an entry for cs through exec, which must be the
// transaction that executed the script so both commit or neither does.
func (m *Manager) RecordApplied(ctx context.Context, exec database.Execer, cs *changescript.ChangeScript) error {
	user, err := m.identity(ctx)
	if err != nil {
		return fmt.Errorf("%w: could not determine database user: %w", ErrSchemaTracking, err)
	}

	d := m.store.Dialect()
	insert := fmt.Sprintf(
		"INSERT INTO %s (change_number, complete_dt, applied_by, description, checksum) VALUES (%s, %s, %s, %s, %s)",
		m.table, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5),
	)

	if err := exec.Exec(ctx, insert, cs.ID(), m.now(), user, cs.Description(), cs.Checksum()); err != nil {
		return fmt.Errorf("%w: could not update changelog for %s: %w", ErrSchemaTracking, cs, err)
	}

	return nil
}

// DeleteEntrySQL returns the statement that removes cs from the changelog.
// It is only rendered into undo output, never executed here.
func (m *Manager) DeleteEntrySQL(cs *changescript.ChangeScript) string {
	return DeleteEntrySQL(m.table, cs.ID())
}

// DeleteEntrySQL returns "DELETE FROM <table> WHERE change_number = <id>".
func DeleteEntrySQL(table string, id int64) string {
	return fmt.Sprintf("DELETE FROM %s WHERE change_number = %d", table, id)
}
