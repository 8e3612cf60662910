//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbdeploy/dbdeploy/internal/changelog"
	"github.com/dbdeploy/dbdeploy/internal/changescript"
	"github.com/dbdeploy/dbdeploy/internal/database"
)

func TestChangelog_fullLifecycle(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{database.DriverPgx, database.DriverPostgres} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()

			gw := SetupGateway(t, driver)
			ctx := context.Background()
			m := changelog.New(gw, "changelog")

			// EnsureTable is idempotent.
			require.NoError(t, m.EnsureTable(ctx))
			require.NoError(t, m.EnsureTable(ctx))

			ids, err := m.FindAppliedIDs(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)

			cs2, err := changescript.New(2, "002_posts.sql", "SELECT 2;\n", "")
			require.NoError(t, err)
			cs1, err := changescript.New(1, "001_users.sql", "SELECT 1;\n", "SELECT 0;\n")
			require.NoError(t, err)

			for _, cs := range []*changescript.ChangeScript{cs2, cs1} {
				require.NoError(t, database.InTransaction(ctx, gw, func(tx database.Tx) error {
					return m.RecordApplied(ctx, tx, cs)
				}))
			}

			ids, err = m.FindAppliedIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2}, ids)

			entries, err := m.FindEntries(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "001_users.sql", entries[0].Description)
			assert.Equal(t, cs1.Checksum(), entries[0].Checksum)
			assert.Equal(t, testUser, entries[0].UserName)
			assert.False(t, entries[0].Timestamp.IsZero())
		})
	}
}

func TestChangelog_recordDuplicate_fails(t *testing.T) {
	t.Parallel()

	gw := SetupGateway(t, database.DriverPgx)
	ctx := context.Background()
	m := changelog.New(gw, "changelog")
	require.NoError(t, m.EnsureTable(ctx))

	cs, err := changescript.New(1, "001_users.sql", "SELECT 1;\n", "")
	require.NoError(t, err)

	record := func() error {
		return database.InTransaction(ctx, gw, func(tx database.Tx) error {
			return m.RecordApplied(ctx, tx, cs)
		})
	}

	require.NoError(t, record())
	require.ErrorIs(t, record(), changelog.ErrSchemaTracking)
}

func TestChangelog_missingTable_returnsSchemaTrackingError(t *testing.T) {
	t.Parallel()

	gw := SetupGateway(t, database.DriverPgx)
	m := changelog.New(gw, "changelog")

	_, err := m.FindAppliedIDs(context.Background())

	require.ErrorIs(t, err, changelog.ErrSchemaTracking)
}
