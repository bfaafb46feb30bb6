package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Driver messages that mean the server could not be reached. The drivers do
// not export typed errors for all of them.
var unreachable = []string{
	"connection refused",
	"connection reset",
	"host is unreachable",
	"network is unreachable",
	"broken pipe",
	"database is closed",
	"too many connections",
}

// IsConnectionError reports whether err means the database is unavailable
// rather than that the statement failed.
func IsConnectionError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// 1040 too many connections, 1053 server shutdown
		return myErr.Number == 1040 || myErr.Number == 1053
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08 connection exception, 57P0x operator intervention
		return pqErr.Code.Class() == "08" || strings.HasPrefix(string(pqErr.Code), "57P0")
	}

	msg := strings.ToLower(err.Error())
	for _, s := range unreachable {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsDuplicateKey reports a unique constraint violation from any supported driver.
func IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	var pqErr *pq.Error
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &myErr):
		return myErr.Number == 1062
	case errors.As(err, &pqErr):
		return pqErr.Code == "23505"
	case errors.As(err, &liteErr):
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
