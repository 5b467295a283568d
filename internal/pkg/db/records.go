// Package db provides dialect-aware SQL for the generic records table.
//
// Every collection lives in one table keyed by (topic, id). Statements are built
// from a fixed allowlist of fragments and never accept user input; the only
// caller-controlled values are bound through placeholders.
package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies a supported SQL database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ParseDialect maps the configured dialect name, including common aliases, to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "pgx", "postgresdb", "pg", "postgresql":
		return DialectPostgres, nil
	case "sqlite3", "sqlite", "":
		return DialectSQLite, nil
	case "mysql", "tidb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("invalid dialect: %s", name)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// Rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)

	b.Grow(len(query) + 8)

	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}

		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}

	return b.String()
}

// AllowedCreateTable holds the records table DDL per dialect.
var AllowedCreateTable = map[Dialect]string{
	DialectSQLite: `CREATE TABLE IF NOT EXISTS records (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    topic TEXT NOT NULL,
    id TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (topic, id)
)`,
	DialectPostgres: `CREATE TABLE IF NOT EXISTS records (
    seq BIGSERIAL PRIMARY KEY,
    topic VARCHAR(191) NOT NULL,
    id VARCHAR(191) NOT NULL,
    payload TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE (topic, id)
)`,
	DialectMySQL: `CREATE TABLE IF NOT EXISTS records (
    seq BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    topic VARCHAR(191) NOT NULL,
    id VARCHAR(191) NOT NULL,
    payload LONGTEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE KEY records_topic_id (topic, id)
)`,
}

// CreateTableQuery returns the DDL for d, falling back to the sqlite form.
func CreateTableQuery(d Dialect) string {
	if q, ok := AllowedCreateTable[d]; ok {
		return q
	}

	return AllowedCreateTable[DialectSQLite]
}

// AllowedOrderColumns maps the orderable reserved fields to their columns.
var AllowedOrderColumns = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

const selectColumns = "id, payload, created_at, updated_at"

// BuildSelectQuery builds the topic scan. Rows come back ordered by column when
// orderBy names an allowed column, otherwise in insertion order. Ties always keep
// insertion order. The only placeholder is the topic.
func BuildSelectQuery(d Dialect, orderBy string, descending bool, limit int) string {
	order := "seq ASC"

	if col, ok := AllowedOrderColumns[orderBy]; ok {
		dir := "ASC"
		if descending {
			dir = "DESC"
		}

		order = col + " " + dir + ", seq ASC"
	}

	query := "SELECT " + selectColumns + " FROM records WHERE topic = ? ORDER BY " + order
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	return d.Rebind(query)
}

// IsColumnOrder reports whether orderBy is handled by BuildSelectQuery in SQL.
func IsColumnOrder(orderBy string) bool {
	_, ok := AllowedOrderColumns[orderBy]
	return ok
}

func InsertQuery(d Dialect) string {
	return d.Rebind("INSERT INTO records (topic, id, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?)")
}

func SelectOneQuery(d Dialect) string {
	return d.Rebind("SELECT " + selectColumns + " FROM records WHERE topic = ? AND id = ?")
}

func UpdateQuery(d Dialect) string {
	return d.Rebind("UPDATE records SET payload = ?, updated_at = ? WHERE topic = ? AND id = ?")
}

func DeleteQuery(d Dialect) string {
	return d.Rebind("DELETE FROM records WHERE topic = ? AND id = ?")
}
