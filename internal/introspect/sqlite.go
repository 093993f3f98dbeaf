package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"fieldmap/internal/dbml"
)

// introspectSQLite reads table definitions through sqlite_master and the
// pragma table-valued functions.
func introspectSQLite(ctx context.Context, db *sql.DB) (*dbml.Schema, error) {
	defs, err := sqliteTableDefs(ctx, db)
	if err != nil {
		return nil, err
	}

	schema := &dbml.Schema{}
	for _, def := range defs {
		table, err := sqliteTable(ctx, db, def)
		if err != nil {
			return nil, fmt.Errorf("introspect table %q: %w", def.name, err)
		}
		schema.Tables = append(schema.Tables, table)
	}

	// Foreign keys may reference a parent's implicit primary key, so they
	// resolve against the fully collected schema.
	for _, table := range schema.Tables {
		if err := applySQLiteIndexes(ctx, db, table); err != nil {
			return nil, fmt.Errorf("introspect indexes of %q: %w", table.Name, err)
		}
		refs, err := sqliteForeignKeys(ctx, db, table.Name, schema)
		if err != nil {
			return nil, fmt.Errorf("introspect foreign keys of %q: %w", table.Name, err)
		}
		schema.Refs = append(schema.Refs, refs...)
	}
	return schema, nil
}

// sqliteTableDef pairs a table name with its CREATE TABLE text.
type sqliteTableDef struct {
	name      string
	createSQL string
}

func sqliteTableDefs(ctx context.Context, db *sql.DB) ([]sqliteTableDef, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, COALESCE(sql, '') FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var defs []sqliteTableDef
	for rows.Next() {
		var def sqliteTableDef
		if err := rows.Scan(&def.name, &def.createSQL); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

var autoincrementPattern = regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`)

func sqliteTable(ctx context.Context, db *sql.DB, def sqliteTableDef) (*dbml.Table, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`,
		def.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	table := &dbml.Table{Name: def.name}
	type pkEntry struct {
		pos  int
		name string
	}
	var pkCols []pkEntry
	for rows.Next() {
		var (
			colName string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		col := &dbml.Column{
			Name:    colName,
			Type:    normalizeType(colType),
			NotNull: notNull != 0,
		}
		if dflt.Valid {
			setDefault(col, dflt.String)
		}
		if pk > 0 {
			pkCols = append(pkCols, pkEntry{pos: pk, name: colName})
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pkCols, func(i, j int) bool { return pkCols[i].pos < pkCols[j].pos })
	if len(pkCols) == 1 {
		col := table.Column(pkCols[0].name)
		col.PK = true
		col.Increment = autoincrementPattern.MatchString(def.createSQL)
	} else if len(pkCols) > 1 {
		names := make([]string, len(pkCols))
		for i, e := range pkCols {
			names[i] = e.name
		}
		table.Indexes = append(table.Indexes, &dbml.Index{Columns: names, PK: true})
	}
	return table, nil
}

// applySQLiteIndexes folds unique indexes into the table. The primary key is
// already covered by table_info; auto-generated index names are dropped.
func applySQLiteIndexes(ctx context.Context, db *sql.DB, table *dbml.Table) error {
	rows, err := db.QueryContext(ctx,
		`SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY seq`,
		table.Name)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck

	type indexDef struct {
		name   string
		origin string
	}
	var uniques []indexDef
	for rows.Next() {
		var (
			idx    indexDef
			unique int
		)
		if err := rows.Scan(&idx.name, &unique, &idx.origin); err != nil {
			return err
		}
		if unique == 1 && idx.origin != "pk" {
			uniques = append(uniques, idx)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, idx := range uniques {
		cols, err := sqliteIndexColumns(ctx, db, idx.name)
		if err != nil {
			return err
		}
		if len(cols) == 1 {
			if col := table.Column(cols[0]); col != nil {
				col.Unique = true
				continue
			}
		}
		if len(cols) == 0 {
			continue // expression index
		}
		entry := &dbml.Index{Columns: cols, Unique: true}
		if !strings.HasPrefix(idx.name, "sqlite_autoindex_") {
			entry.Name = idx.name
		}
		table.Indexes = append(table.Indexes, entry)
	}
	return nil
}

func sqliteIndexColumns(ctx context.Context, db *sql.DB, indexName string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM pragma_index_info(?) ORDER BY seqno`,
		indexName)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var cols []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if !name.Valid {
			return nil, nil // expression index, no plain column list
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

func sqliteForeignKeys(ctx context.Context, db *sql.DB, tableName string, schema *dbml.Schema) ([]*dbml.Ref, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT seq, "table", "from", "to", on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`,
		tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var refs []*dbml.Ref
	for rows.Next() {
		var (
			seq      int
			parent   string
			from     string
			to       sql.NullString
			onUpdate string
			onDelete string
		)
		if err := rows.Scan(&seq, &parent, &from, &to, &onUpdate, &onDelete); err != nil {
			return nil, err
		}

		// A NULL target column means the parent's primary key, in order.
		target := to.String
		if target == "" {
			parentTable := schema.Table(parent)
			if parentTable == nil {
				continue
			}
			pk := parentTable.PrimaryKey()
			if seq >= len(pk) {
				continue
			}
			target = pk[seq]
		}

		refs = append(refs, &dbml.Ref{
			Cardinality: ">",
			From:        dbml.ColumnRef{Table: tableName, Column: from},
			To:          dbml.ColumnRef{Table: parent, Column: target},
			OnDelete:    refAction(onDelete),
			OnUpdate:    refAction(onUpdate),
		})
	}
	return refs, rows.Err()
}

// refAction maps a reported action to its DBML setting; the default NO
// ACTION is omitted.
func refAction(action string) string {
	if action == "" || strings.EqualFold(action, "NO ACTION") {
		return ""
	}
	return strings.ToLower(action)
}
