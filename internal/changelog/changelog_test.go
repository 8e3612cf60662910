package changelog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbdeploy/dbdeploy/internal/changelog"
	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/database"
)

var fixedTime = time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC) //nolint:gochecknoglobals // test fixture

func openSQLite(t *testing.T) database.Gateway {
	t.Helper()

	gw, err := database.Open(context.Background(), database.Options{
		Driver: database.DriverSQLite,
		URL:    ":memory:",
		User:   "deployer",
	})
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	return gw
}

func newManager(t *testing.T, gw database.Gateway, opts ...changelog.Option) *changelog.Manager {
	t.Helper()

	opts = append([]changelog.Option{changelog.WithClock(func() time.Time { return fixedTime })}, opts...)
	m := changelog.New(gw, "changelog", opts...)
	require.NoError(t, m.EnsureTable(context.Background()))

	return m
}

func script(t *testing.T, id int64, description string) *changescript.ChangeScript {
	t.Helper()

	cs, err := changescript.New(id, description, "SELECT 1;", "SELECT 0;")
	require.NoError(t, err)

	return cs
}

func TestNew_defaultsTableName(t *testing.T) {
	t.Parallel()

	// nil store is accepted at construction time; errors surface on use.
	m := changelog.New(nil, "", changelog.WithIdentity(func(context.Context) (string, error) { return "x", nil }))

	assert.Equal(t, changelog.DefaultTableName, m.TableName())
}

func TestManager_emptyChangelog(t *testing.T) {
	t.Parallel()

	m := newManager(t, openSQLite(t))

	entries, err := m.FindEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	ids, err := m.FindAppliedIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestManager_recordAndReadBack(t *testing.T) {
	t.Parallel()

	gw := openSQLite(t)
	m := newManager(t, gw)
	ctx := context.Background()

	for _, cs := range []*changescript.ChangeScript{script(t, 3, "003_c.sql"), script(t, 1, "001_a.sql"), script(t, 2, "002_b.sql")} {
		require.NoError(t, m.RecordApplied(ctx, gw, cs))
	}

	ids, err := m.FindAppliedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	entries, err := m.FindEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	first := entries[0]
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "001_a.sql", first.Description)
	assert.Equal(t, "deployer", first.UserName)
	assert.Equal(t, script(t, 1, "001_a.sql").Checksum(), first.Checksum)
	assert.True(t, fixedTime.Equal(first.Timestamp), "timestamp comes from the injected clock, got %s", first.Timestamp)
}

func TestManager_recordUsesInjectedIdentity(t *testing.T) {
	t.Parallel()

	gw := openSQLite(t)
	m := newManager(t, gw, changelog.WithIdentity(func(context.Context) (string, error) { return "ci-bot", nil }))
	ctx := context.Background()

	require.NoError(t, m.RecordApplied(ctx, gw, script(t, 1, "one")))

	entries, err := m.FindEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ci-bot", entries[0].UserName)
}

func TestManager_recordIdentityFailure(t *testing.T) {
	t.Parallel()

	gw := openSQLite(t)
	m := newManager(t, gw, changelog.WithIdentity(func(context.Context) (string, error) {
		return "", errors.New("no user")
	}))

	err := m.RecordApplied(context.Background(), gw, script(t, 1, "one"))

	require.ErrorIs(t, err, changelog.ErrSchemaTracking)
	assert.Contains(t, err.Error(), "no user")
}

func TestManager_recordInsideRolledBackTransaction_leavesNoEntry(t *testing.T) {
	t.Parallel()

	gw := openSQLite(t)
	m := newManager(t, gw)
	ctx := context.Background()
	abort := errors.New("abort")

	err := database.InTransaction(ctx, gw, func(tx database.Tx) error {
		require.NoError(t, m.RecordApplied(ctx, tx, script(t, 1, "one")))

		return abort
	})
	require.ErrorIs(t, err, abort)

	ids, err := m.FindAppliedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestManager_duplicateRecordFails(t *testing.T) {
	t.Parallel()

	gw := openSQLite(t)
	m := newManager(t, gw)
	ctx := context.Background()

	require.NoError(t, m.RecordApplied(ctx, gw, script(t, 1, "one")))

	err := m.RecordApplied(ctx, gw, script(t, 1, "one"))

	require.ErrorIs(t, err, changelog.ErrSchemaTracking)
	assert.Contains(t, err.Error(), "#1: one")
}

func TestManager_missingTable_wrapsCause(t *testing.T) {
	t.Parallel()

	m := changelog.New(openSQLite(t), "no_such_table")

	_, err := m.FindEntries(context.Background())

	require.ErrorIs(t, err, changelog.ErrSchemaTracking)
	assert.Contains(t, err.Error(), "no_such_table")
}

func TestManager_EnsureTable_idempotent(t *testing.T) {
	t.Parallel()

	gw := openSQLite(t)
	m := newManager(t, gw)

	require.NoError(t, m.EnsureTable(context.Background()))
}

func TestManager_DeleteEntrySQL(t *testing.T) {
	t.Parallel()

	m := changelog.New(nil, "my_changelog", changelog.WithIdentity(func(context.Context) (string, error) { return "", nil }))

	assert.Equal(t, "DELETE FROM my_changelog WHERE change_number = 42", m.DeleteEntrySQL(script(t, 42, "x")))
	assert.Equal(t, "DELETE FROM changelog WHERE change_number = 7", changelog.DeleteEntrySQL("changelog", 7))
}

func TestNewEntry(t *testing.T) {
	t.Parallel()

	e, err := changelog.NewEntry(0, fixedTime, "u", "d", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.ID)
	assert.Contains(t, e.String(), "id: 0")

	_, err = changelog.NewEntry(-1, fixedTime, "u", "d", "c")
	require.ErrorIs(t, err, changelog.ErrInvalidEntry)

	_, err = changelog.NewEntry(1, time.Time{}, "u", "d", "c")
	require.ErrorIs(t, err, changelog.ErrInvalidEntry)
}
