package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver

	"fieldmap/internal/dbml"
)

// introspectDuckDB reads the connected database's current schema from
// information_schema and duckdb_constraints().
func introspectDuckDB(ctx context.Context, db *sql.DB) (*dbml.Schema, error) {
	var schemaName string
	if err := db.QueryRowContext(ctx, `SELECT current_schema()`).Scan(&schemaName); err != nil {
		return nil, fmt.Errorf("resolve current schema: %w", err)
	}

	names, err := duckdbTableNames(ctx, db, schemaName)
	if err != nil {
		return nil, err
	}

	schema := &dbml.Schema{}
	for _, name := range names {
		table, err := duckdbTable(ctx, db, schemaName, name)
		if err != nil {
			return nil, fmt.Errorf("introspect table %q: %w", name, err)
		}
		schema.Tables = append(schema.Tables, table)
	}

	if err := applyDuckDBConstraints(ctx, db, schemaName, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func duckdbTableNames(ctx context.Context, db *sql.DB, schemaName string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_type = 'BASE TABLE' ORDER BY table_name`,
		schemaName)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func duckdbTable(ctx context.Context, db *sql.DB, schemaName, name string) (*dbml.Table, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable, column_default FROM information_schema.columns WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position`,
		schemaName, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	table := &dbml.Table{Name: name}
	for rows.Next() {
		var (
			colName    string
			dataType   string
			isNullable string
			colDefault sql.NullString
		)
		if err := rows.Scan(&colName, &dataType, &isNullable, &colDefault); err != nil {
			return nil, err
		}
		col := &dbml.Column{
			Name:    colName,
			Type:    normalizeType(dataType),
			NotNull: isNullable == "NO",
		}
		if colDefault.Valid {
			setDefault(col, colDefault.String)
		}
		table.Columns = append(table.Columns, col)
	}
	return table, rows.Err()
}

// applyDuckDBConstraints folds primary-key, unique, and foreign-key
// constraints into the schema. DuckDB exposes them only as rendered SQL in
// constraint_text, so the text is parsed back apart.
func applyDuckDBConstraints(ctx context.Context, db *sql.DB, schemaName string, schema *dbml.Schema) error {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name, constraint_type, constraint_text FROM duckdb_constraints() WHERE schema_name = ? ORDER BY table_name, constraint_index`,
		schemaName)
	if err != nil {
		return fmt.Errorf("list constraints: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var tableName, ctype, ctext string
		if err := rows.Scan(&tableName, &ctype, &ctext); err != nil {
			return err
		}
		table := schema.Table(tableName)
		if table == nil {
			continue
		}
		switch ctype {
		case "PRIMARY KEY":
			applyKeyColumns(table, parseConstraintColumns(ctext), true)
		case "UNIQUE":
			applyKeyColumns(table, parseConstraintColumns(ctext), false)
		case "FOREIGN KEY":
			fk, ok := parseForeignKeyText(ctext)
			if !ok {
				continue
			}
			for i := range fk.From {
				if i >= len(fk.To) {
					break
				}
				schema.Refs = append(schema.Refs, &dbml.Ref{
					Cardinality: ">",
					From:        dbml.ColumnRef{Table: tableName, Column: fk.From[i]},
					To:          dbml.ColumnRef{Table: fk.Table, Column: fk.To[i]},
				})
			}
		}
	}
	return rows.Err()
}

// applyKeyColumns marks a single-column key on the column itself and a
// composite key as an indexes-block entry.
func applyKeyColumns(table *dbml.Table, cols []string, pk bool) {
	if len(cols) == 1 {
		if col := table.Column(cols[0]); col != nil {
			if pk {
				col.PK = true
			} else {
				col.Unique = true
			}
			return
		}
	}
	if len(cols) > 0 {
		table.Indexes = append(table.Indexes, &dbml.Index{Columns: cols, PK: pk, Unique: !pk})
	}
}

var (
	constraintColumnsPattern = regexp.MustCompile(`\(([^()]*)\)`)
	foreignKeyPattern        = regexp.MustCompile(`(?i)FOREIGN\s+KEY\s*\(([^()]+)\)\s*REFERENCES\s+("?[\w".]+"?)\s*\(([^()]+)\)`)
)

// parseConstraintColumns extracts the column list of a rendered PRIMARY
// KEY(...) or UNIQUE(...) constraint.
func parseConstraintColumns(text string) []string {
	m := constraintColumnsPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return splitColumnList(m[1])
}

// foreignKey is a parsed FOREIGN KEY (...) REFERENCES t(...) constraint.
type foreignKey struct {
	From  []string
	Table string
	To    []string
}

// parseForeignKeyText parses a rendered foreign-key constraint. The
// referenced table keeps only its final name segment; a schema qualifier
// would not resolve against the introspected table list.
func parseForeignKeyText(text string) (foreignKey, bool) {
	m := foreignKeyPattern.FindStringSubmatch(text)
	if m == nil {
		return foreignKey{}, false
	}
	refTable := strings.Trim(m[2], `"`)
	if i := strings.LastIndexByte(refTable, '.'); i >= 0 {
		refTable = strings.Trim(refTable[i+1:], `"`)
	}
	return foreignKey{
		From:  splitColumnList(m[1]),
		Table: refTable,
		To:    splitColumnList(m[3]),
	}, true
}

func splitColumnList(list string) []string {
	var cols []string
	for _, part := range strings.Split(list, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			cols = append(cols, part)
		}
	}
	return cols
}
