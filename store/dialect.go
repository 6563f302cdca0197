package store

import (
	"database/sql"
	"strconv"
	"strings"
)

// Dialect covers the few places where SQLite and PostgreSQL differ.
type Dialect interface {
	Name() string
	// TxOptions is used for read-modify-write transactions.
	TxOptions() *sql.TxOptions
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

// SQLite runs with a single connection, so the default level is already serial.
func (sqliteDialect) TxOptions() *sql.TxOptions { return nil }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }
func (postgresDialect) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

// Rebind replaces each ? placeholder with $1, $2, ... Quoted literals are left alone.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
