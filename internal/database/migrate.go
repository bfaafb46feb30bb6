package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations
var migrationFS embed.FS

// prefixToken is replaced with the configured table prefix in every migration.
const prefixToken = "{{prefix}}"

// MigrationSource loads the embedded migrations for the dialect with the
// table prefix applied.
func (db *DB) MigrationSource() (*migrate.MemoryMigrationSource, error) {
	return loadMigrations(db.Dialect, db.Tables.Prefix)
}

func loadMigrations(dialect Dialect, prefix string) (*migrate.MemoryMigrationSource, error) {
	root := path.Join("migrations", string(dialect))
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("no migrations for %s: %w", dialect, err)
	}

	src := &migrate.MemoryMigrationSource{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		raw, err := migrationFS.ReadFile(path.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		body := strings.ReplaceAll(string(raw), prefixToken, prefix)
		m, err := migrate.ParseMigration(e.Name(), strings.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse migration %s: %w", e.Name(), err)
		}
		src.Migrations = append(src.Migrations, m)
	}
	sort.Slice(src.Migrations, func(i, j int) bool {
		return src.Migrations[i].Less(src.Migrations[j])
	})
	return src, nil
}

func (db *DB) migrationSet() migrate.MigrationSet {
	return migrate.MigrationSet{TableName: db.Tables.Migrations()}
}

// Migrate applies every pending migration and returns how many ran.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	return db.migrateDirection(ctx, migrate.Up, 0)
}

// Rollback reverts up to steps migrations.
func (db *DB) Rollback(ctx context.Context, steps int) (int, error) {
	return db.migrateDirection(ctx, migrate.Down, steps)
}

func (db *DB) migrateDirection(ctx context.Context, dir migrate.MigrationDirection, max int) (int, error) {
	src, err := db.MigrationSource()
	if err != nil {
		return 0, err
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := db.migrationSet().ExecMax(db.DB.DB, string(db.Dialect), src, dir, max)
		done <- result{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("migration timeout: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return res.n, fmt.Errorf("db migrations have failed: %w", res.err)
		}
		return res.n, nil
	}
}

// MigrationState is one row of the migrate status listing.
type MigrationState struct {
	ID      string
	Applied bool
}

// MigrationStatus lists every known migration and whether it has run.
func (db *DB) MigrationStatus() ([]MigrationState, error) {
	src, err := db.MigrationSource()
	if err != nil {
		return nil, err
	}
	records, err := db.migrationSet().GetMigrationRecords(db.DB.DB, string(db.Dialect))
	if err != nil {
		return nil, fmt.Errorf("read migration records: %w", err)
	}
	applied := make(map[string]bool, len(records))
	for _, r := range records {
		applied[r.Id] = true
	}

	states := make([]MigrationState, 0, len(src.Migrations))
	for _, m := range src.Migrations {
		states = append(states, MigrationState{ID: m.Id, Applied: applied[m.Id]})
	}
	return states, nil
}
