package changelog

import (
	"fmt"

	"github.com/dbdeploy/dbdeploy/internal/database"
)

// createTableSQL returns the DDL for the changelog table in the given dialect.
// Column order matters: rows are read back positionally.
func createTableSQL(d database.Dialect, table string) string {
	if d == database.SQLite {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    change_number INTEGER   NOT NULL PRIMARY KEY,
    complete_dt   TIMESTAMP NOT NULL,
    applied_by    TEXT      NOT NULL,
    description   TEXT      NOT NULL,
    checksum      TEXT      NOT NULL
)`, table)
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    change_number BIGINT       NOT NULL PRIMARY KEY,
    complete_dt   TIMESTAMP    NOT NULL,
    applied_by    VARCHAR(100) NOT NULL,
    description   VARCHAR(500) NOT NULL,
    checksum      VARCHAR(64)  NOT NULL
)`, table)
}
