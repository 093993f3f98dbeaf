// Package introspect connects to a live database and reads its table
// definitions into a DBML schema, so existing databases can be imported
// into mapping documents without writing the schema by hand.
//
// Only metadata is read; no user tables are scanned.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"fieldmap/internal/dbml"
)

// Driver names accepted by Introspect.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// Introspect opens dsn with the named driver and returns the table
// definitions of its default schema.
func Introspect(ctx context.Context, driver, dsn string) (*dbml.Schema, error) {
	switch driver {
	case DriverDuckDB:
		db, err := openPool(ctx, "duckdb", dsn)
		if err != nil {
			return nil, err
		}
		defer db.Close() //nolint:errcheck
		return introspectDuckDB(ctx, db)
	case DriverSQLite:
		db, err := openPool(ctx, "sqlite3", dsn)
		if err != nil {
			return nil, err
		}
		defer db.Close() //nolint:errcheck
		return introspectSQLite(ctx, db)
	default:
		return nil, fmt.Errorf("unsupported driver %q (want %q or %q)", driver, DriverDuckDB, DriverSQLite)
	}
}

func openPool(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}
	db.SetMaxOpenConns(4)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s database: %w", driverName, err)
	}
	return db, nil
}

// normalizeType lowercases a reported SQL type and strips blanks from its
// size suffix, so introspected output reads like hand-written DBML.
func normalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return "text"
	}
	if i := strings.IndexByte(t, '('); i >= 0 {
		return strings.TrimSpace(t[:i]) + strings.ReplaceAll(t[i:], " ", "")
	}
	return t
}

// bareLiteralPattern matches default values that are plain literals rather
// than expressions.
var bareLiteralPattern = regexp.MustCompile(`^(?i)(-?[0-9]+(\.[0-9]+)?|true|false)$`)

// setDefault records a reported column default, classifying it as a quoted
// string, a bare literal, or an expression.
func setDefault(col *dbml.Column, raw string) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "null") {
		return
	}
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		col.Default = strings.ReplaceAll(v[1:len(v)-1], "''", "'")
		return
	}
	if bareLiteralPattern.MatchString(v) {
		col.Default = strings.ToLower(v)
		return
	}
	col.Default = v
	col.DefaultIsExpr = true
}
