// Package querysql compiles queryir queries to self-contained SQLite
// statements for the series store.
//
// Values are inlined as literals rather than bound as parameters: the
// series backend hands the store one finished query string. Strings are
// single-quoted with embedded quotes doubled, canonical integer ids are
// left unquoted, and identifiers are double-quoted.
//
// Every statement reads only the latest point of each series and skips
// tombstoned series, and every statement with more than one row has an
// ORDER BY with an id tiebreaker so results are deterministic.
package querysql

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/zermelo/internal/queryir"
	"github.com/roach88/zermelo/internal/series"
	"github.com/roach88/zermelo/internal/value"
)

// CountColumn is the result column of a count projection.
const CountColumn = "count"

const (
	sqlTrue  = "1 = 1"
	sqlFalse = "1 = 0"
)

// QuoteString returns s as an SQL string literal. SQLite strings have no
// backslash escapes, so doubling single quotes is the whole escape.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent returns name as a double-quoted SQL identifier.
func QuoteIdent(name string) string {
	return series.QuoteIdent(name)
}

// Compile converts a queryir query to SQL.
func Compile(q queryir.Query) (string, error) {
	if q == nil {
		return "", fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return compileSelect(query)
	default:
		return "", fmt.Errorf("unsupported query type: %T", q)
	}
}

// latest restricts rows of table to the newest point of each live series.
func latest(table string) string {
	t := QuoteIdent(table)
	return fmt.Sprintf("%s IN (SELECT MAX(%s) FROM %s GROUP BY %s) AND %s = 0",
		QuoteIdent(series.ColumnSeq), QuoteIdent(series.ColumnSeq), t,
		QuoteIdent(series.ColumnSeries), QuoteIdent(series.ColumnDeleted))
}

func compileSelect(q queryir.Select) (string, error) {
	if q.From == "" {
		return "", fmt.Errorf("select needs a measurement")
	}
	c := &compiler{from: q.From}

	idCol := QuoteIdent(series.ColumnID)
	seriesCol := QuoteIdent(series.ColumnSeries)

	var cols, tail string
	switch q.Projection {
	case queryir.ProjectIDs:
		cols = seriesCol + ", " + idCol
	case queryir.ProjectCount:
		cols = fmt.Sprintf("%s, COUNT(%s) AS %s", seriesCol, idCol, QuoteIdent(CountColumn))
		tail = " GROUP BY " + seriesCol
	case queryir.ProjectFields:
		if len(q.Fields) == 0 {
			return "", fmt.Errorf("field projection needs at least one field")
		}
		parts := []string{seriesCol}
		for _, f := range q.Fields {
			parts = append(parts, QuoteIdent(f))
		}
		cols = strings.Join(parts, ", ")
	default:
		return "", fmt.Errorf("unknown projection %q", q.Projection)
	}

	where := latest(q.From)
	filter, err := c.predicate(q.Filter)
	if err != nil {
		return "", fmt.Errorf("compile filter: %w", err)
	}
	if filter != sqlTrue {
		where += " AND (" + filter + ")"
	}

	order := " ORDER BY " + idCol + " ASC"
	switch {
	case q.Projection == queryir.ProjectCount:
		order = " ORDER BY " + seriesCol + " ASC"
	case q.Order != nil && q.Order.Field == series.ColumnID:
		order = " ORDER BY " + idCol + direction(q.Order.Desc)
	case q.Order != nil:
		order = fmt.Sprintf(" ORDER BY %s%s, %s ASC", QuoteIdent(q.Order.Field), direction(q.Order.Desc), idCol)
	}

	limit := ""
	switch {
	case q.Limit < 0:
		return "", fmt.Errorf("negative limit %d", q.Limit)
	case q.Limit > 0:
		limit = " LIMIT " + strconv.Itoa(q.Limit)
	}

	return fmt.Sprintf("SELECT %s FROM %s WHERE %s%s%s%s",
		cols, QuoteIdent(q.From), where, tail, order, limit), nil
}

func direction(desc bool) string {
	if desc {
		return " DESC"
	}
	return " ASC"
}

// compiler carries the measurement predicates are compiled against.
type compiler struct {
	from string
}

func (c *compiler) predicate(p queryir.Predicate) (string, error) {
	if p == nil {
		return sqlTrue, nil
	}

	switch pred := p.(type) {
	case queryir.True:
		return sqlTrue, nil
	case queryir.False:
		return sqlFalse, nil
	case queryir.Equals:
		return c.equals(pred)
	case queryir.Between:
		return fmt.Sprintf("%s BETWEEN %s AND %s", QuoteIdent(pred.Field), number(pred.Min), number(pred.Max)), nil
	case queryir.NotNull:
		return QuoteIdent(pred.Field) + " IS NOT NULL", nil
	case queryir.RankWithin:
		return c.rankWithin(pred)
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return sqlTrue, nil
		}
		return c.join(pred.Predicates, " AND ")
	case queryir.Or:
		if len(pred.Predicates) == 0 {
			return sqlFalse, nil
		}
		return c.join(pred.Predicates, " OR ")
	case queryir.Not:
		inner, err := c.predicate(pred.Predicate)
		if err != nil {
			return "", err
		}
		// NULL comparisons count as "not matched"
		return "NOT COALESCE((" + inner + "), 0)", nil
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *compiler) join(preds []queryir.Predicate, sep string) (string, error) {
	parts := make([]string, len(preds))
	for i, p := range preds {
		s, err := c.predicate(p)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, sep), nil
}

func (c *compiler) equals(eq queryir.Equals) (string, error) {
	lit, err := literal(eq.Field, eq.Value)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", eq.Field, err)
	}
	return QuoteIdent(eq.Field) + " = " + lit, nil
}

func (c *compiler) rankWithin(r queryir.RankWithin) (string, error) {
	field := QuoteIdent(r.Field)
	idCol := QuoteIdent(series.ColumnID)

	where := latest(c.from) + " AND " + field + " IS NOT NULL"
	filter, err := c.predicate(r.Filter)
	if err != nil {
		return "", err
	}
	if filter != sqlTrue {
		where += " AND (" + filter + ")"
	}

	limit := -1
	if r.Limit >= 0 {
		limit = r.Limit
	}
	dir := direction(r.Desc)
	return fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s ORDER BY %s%s, %s%s LIMIT %d OFFSET %d)",
		idCol, idCol, QuoteIdent(c.from), where, field, dir, idCol, dir, limit, r.Start), nil
}

// literal renders v for comparison with field. Ids in canonical integer
// form are unquoted; the id column's text affinity still compares them as
// text.
func literal(field string, v value.Value) (string, error) {
	switch val := v.(type) {
	case value.String:
		if field == series.ColumnID && canonicalInt(string(val)) {
			return string(val), nil
		}
		return QuoteString(string(val)), nil
	case value.Symbol:
		return QuoteString(string(val)), nil
	case value.Bool:
		return QuoteString(value.Encode(val)), nil
	case value.Int:
		return strconv.FormatInt(int64(val), 10), nil
	case value.Float:
		return number(float64(val)), nil
	default:
		return "", fmt.Errorf("cannot compare against %T", v)
	}
}

func canonicalInt(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == s
}

// number renders f as an SQL numeric literal. SQLite reads overlarge
// literals as infinity.
func number(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "9e999"
	case math.IsInf(f, -1):
		return "-9e999"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
