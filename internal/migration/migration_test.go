package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/orgservice/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	for _, dialect := range []string{db.TypeMySQL, db.TypePostgres} {
		entries, err := fs.ReadDir(embeddedMigrations, "migrations/"+dialect)
		require.NoError(t, err)
		require.NotEmpty(t, entries)

		ups, downs := 0, 0
		for _, e := range entries {
			switch {
			case len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql":
				ups++
			case len(e.Name()) > 9 && e.Name()[len(e.Name())-9:] == ".down.sql":
				downs++
			}
		}
		assert.Equal(t, ups, downs, dialect)
	}
}

func TestRunSQLiteAutoMigrates(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Run(conn, db.TypeSQLite))
	for _, table := range []string{"organizations", "memberships", "membership_events"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestRunMigrationsRejectsUnknownDialect(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)

	assert.Error(t, RunMigrations(sqlDB, "oracle"))
}
