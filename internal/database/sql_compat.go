package database

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour of the open connection.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgsql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// ConvertPlaceholders converts PostgreSQL placeholders ($1, $2) to ? for
// MySQL and SQLite. Queries are written in PostgreSQL form and converted here.
func (d Dialect) ConvertPlaceholders(query string) string {
	if d == Postgres {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?")
}

// RemapArgs expands positional arguments so repeated placeholders share the
// same value once converted to ?.
func (d Dialect) RemapArgs(query string, args []any) []any {
	if d == Postgres {
		return args
	}
	matches := placeholderRe.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return args
	}

	expanded := make([]any, len(matches))
	for i, match := range matches {
		idx, err := strconv.Atoi(match[1])
		if err != nil || idx < 1 || idx > len(args) {
			return args
		}
		expanded[i] = args[idx-1]
	}
	return expanded
}

// Prepare converts a PostgreSQL-style query and its args for the dialect.
func (d Dialect) Prepare(query string, args ...any) (string, []any) {
	return d.ConvertPlaceholders(query), d.RemapArgs(query, args)
}

// SupportsReturning reports whether INSERT ... RETURNING id can be used
// instead of LastInsertId.
func (d Dialect) SupportsReturning() bool {
	return d == Postgres
}

// Tables resolves HESK table names with the configured prefix.
type Tables struct {
	Prefix string
}

func (t Tables) Tickets() string         { return t.Prefix + "tickets" }
func (t Tables) Replies() string         { return t.Prefix + "replies" }
func (t Tables) Attachments() string     { return t.Prefix + "attachments" }
func (t Tables) Logins() string          { return t.Prefix + "logins" }
func (t Tables) Users() string           { return t.Prefix + "users" }
func (t Tables) TempAttachments() string { return t.Prefix + "temp_attachments" }
func (t Tables) DeviceTokens() string    { return t.Prefix + "device_tokens" }
func (t Tables) Migrations() string      { return t.Prefix + "schema_migrations" }
