package views

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
)

// Dialect selects identifier quoting and statement shape
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// SupportsMaterialized reports whether the dialect has materialized views
func (d Dialect) SupportsMaterialized() bool {
	return d == Postgres
}

// SupportsComments reports whether view comments can be stored
func (d Dialect) SupportsComments() bool {
	return d == Postgres
}

// SupportsTransactionalDDL reports whether CREATE and DROP can be rolled
// back. MySQL commits implicitly around every DDL statement.
func (d Dialect) SupportsTransactionalDDL() bool {
	return d != MySQL
}

// QuoteIdent quotes a possibly schema-qualified identifier
func (d Dialect) QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if d == MySQL {
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		} else {
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// QuoteLiteral quotes a string literal
func (d Dialect) QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// placeholderPattern finds {name} placeholders in a view body
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// RenderBody substitutes {dependency} placeholders with the quoted
// identifier of that dependency. Braces that do not name a declared
// dependency are left alone.
func RenderBody(d Dialect, def Definition) string {
	deps := make(map[string]bool, len(def.Dependencies))
	for _, ref := range def.Dependencies {
		deps[ref.Name] = true
	}
	return placeholderPattern.ReplaceAllStringFunc(def.Body, func(m string) string {
		name := m[1 : len(m)-1]
		if !deps[name] {
			return m
		}
		return d.QuoteIdent(name)
	})
}

// Checksum fingerprints the rendered body and kind of a definition
func Checksum(d Dialect, def Definition) string {
	h := xxh3.HashString(def.Kind() + "\x00" + strings.TrimSpace(RenderBody(d, def)))
	return fmt.Sprintf("%016x", h)
}

// CheckSupported returns an UnsupportedError when def cannot be created
// on dialect d
func CheckSupported(d Dialect, def Definition) error {
	if def.Materialized && !d.SupportsMaterialized() {
		return &UnsupportedError{View: def.Name, Feature: "materialized views", Dialect: d}
	}
	return nil
}

// DropStatement returns DROP [MATERIALIZED] VIEW IF EXISTS name [CASCADE]
func DropStatement(d Dialect, def Definition, cascade bool) string {
	stmt := fmt.Sprintf("DROP %s IF EXISTS %s", def.Kind(), d.QuoteIdent(def.Name))
	if cascade {
		stmt += " CASCADE"
	}
	return stmt
}

// CreateStatement returns CREATE [MATERIALIZED] VIEW name AS body.
// PostgreSQL wraps the body in parentheses; SQLite and MySQL reject them.
func CreateStatement(d Dialect, def Definition) string {
	body, lineComment := trimStatementEnd(RenderBody(d, def))
	if d == Postgres {
		if lineComment {
			// the closing parenthesis must not land inside the comment
			body += "\n"
		}
		return fmt.Sprintf("CREATE %s %s AS (%s)", def.Kind(), d.QuoteIdent(def.Name), body)
	}
	return fmt.Sprintf("CREATE %s %s AS %s", def.Kind(), d.QuoteIdent(def.Name), body)
}

// trimStatementEnd strips surrounding whitespace and a terminating
// semicolon from body. The semicolon may be followed by a "--" comment on
// the last line, which is kept. lineComment reports whether the last line
// holds such a comment.
func trimStatementEnd(body string) (trimmed string, lineComment bool) {
	body = strings.TrimSpace(body)

	head, last := "", body
	if i := strings.LastIndexByte(body, '\n'); i >= 0 {
		head, last = body[:i+1], body[i+1:]
	}

	idx := strings.Index(last, "--")
	if idx < 0 {
		return strings.TrimRightFunc(strings.TrimSuffix(body, ";"), unicode.IsSpace), false
	}

	code := strings.TrimRightFunc(last[:idx], unicode.IsSpace)
	if stripped, ok := strings.CutSuffix(code, ";"); ok {
		last = stripped + " " + last[idx:]
	}
	return head + last, true
}

// IndexStatements returns CREATE [UNIQUE] INDEX statements for the
// indexes declared on a materialized view
func IndexStatements(d Dialect, def Definition) []string {
	var stmts []string
	for _, idx := range def.Indexes {
		cols := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			cols[i] = d.QuoteIdent(c)
		}
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
			unique, d.QuoteIdent(idx.Name), d.QuoteIdent(def.Name), strings.Join(cols, ", ")))
	}
	return stmts
}

// CommentStatement returns COMMENT ON [MATERIALIZED] VIEW name IS 'comment'
func CommentStatement(d Dialect, def Definition, comment string) string {
	return fmt.Sprintf("COMMENT ON %s %s IS %s", def.Kind(), d.QuoteIdent(def.Name), d.QuoteLiteral(comment))
}

// RefreshStatement returns REFRESH MATERIALIZED VIEW [CONCURRENTLY] name
func RefreshStatement(d Dialect, def Definition) string {
	if def.Concurrently {
		return fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", d.QuoteIdent(def.Name))
	}
	return fmt.Sprintf("REFRESH MATERIALIZED VIEW %s", d.QuoteIdent(def.Name))
}

// VacuumStatement returns VACUUM ANALYZE name
func VacuumStatement(d Dialect, def Definition) string {
	return fmt.Sprintf("VACUUM ANALYZE %s", d.QuoteIdent(def.Name))
}

// StatisticsStatements returns one ALTER ... SET STATISTICS per declared field
func StatisticsStatements(d Dialect, def Definition, target int) []string {
	stmts := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		stmts = append(stmts, fmt.Sprintf("ALTER MATERIALIZED VIEW %s ALTER COLUMN %s SET STATISTICS %d",
			d.QuoteIdent(def.Name), d.QuoteIdent(f.Name), target))
	}
	return stmts
}
