package xpostgis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// centerExpr 以 $1 = lon、$2 = lat 构造查询中心。
const centerExpr = "ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography"

const selectColumns = "id, ST_Y(location::geometry), ST_X(location::geometry), kind, attrs, props, updated_at"

// quoteTable 引用表名，支持 schema.table 形式。
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// jsonPath 返回 attrs-><name> 表达式，name 以字面量内联。
func jsonPath(name string) string {
	return "attrs->" + pq.QuoteLiteral(name)
}

// numericExpr 返回属性的数值表达式；非数值时为 NULL。
// 使用 CASE 保证类型判断先于类型转换求值。
func numericExpr(name string) string {
	lit := pq.QuoteLiteral(name)
	return "(CASE WHEN jsonb_typeof(attrs->" + lit + ") = 'number' THEN (attrs->>" + lit + ")::float8 END)"
}

// argList 累积位置参数并返回占位符。
type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return "$" + strconv.Itoa(len(a.args))
}

// buildRadiusQuery 构建半径查询语句。
func buildRadiusQuery(table string, q xgeo.RadiusQuery) (string, []any, error) {
	args := &argList{}
	args.add(q.Center.Lon())
	args.add(q.Center.Lat())
	radius := args.add(q.RadiusMeters)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectColumns)
	b.WriteString(" FROM ")
	b.WriteString(quoteTable(table))
	b.WriteString(" WHERE ST_DWithin(location, ")
	b.WriteString(centerExpr)
	b.WriteString(", ")
	b.WriteString(radius)
	b.WriteString(")")

	for _, f := range q.Filters {
		clause, err := filterClause(f, args)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" AND ")
		b.WriteString(clause)
	}

	b.WriteString(" ORDER BY ST_Distance(location, ")
	b.WriteString(centerExpr)
	b.WriteString("), id")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(args.add(q.Limit))
	}
	return b.String(), args.args, nil
}

func filterClause(f xgeo.Filter, args *argList) (string, error) {
	if f.Op == xgeo.OpEquals {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return "", fmt.Errorf("%w: %w", xgeo.ErrInvalidFilter, err)
		}
		return jsonPath(f.Attr) + " = " + args.add(string(raw)) + "::jsonb", nil
	}

	expr := numericExpr(f.Attr)
	clauses := []string{expr + " IS NOT NULL"}
	if f.HasLowerBound() {
		clauses = append(clauses, expr+" >= "+args.add(f.Min))
	}
	if f.HasUpperBound() {
		clauses = append(clauses, expr+" <= "+args.add(f.Max))
	}
	return "(" + strings.Join(clauses, " AND ") + ")", nil
}

// buildUpsert 构建批量写入语句，rows 须已去重。
func buildUpsert(table string, rows []row) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteTable(table))
	b.WriteString(" (id, location, kind, attrs, props, updated_at) VALUES ")
	for i := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 7
		fmt.Fprintf(&b, "($%d, ST_SetSRID(ST_MakePoint($%d, $%d), 4326)::geography, $%d, $%d::jsonb, $%d::jsonb, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7)
	}
	b.WriteString(" ON CONFLICT (id) DO UPDATE SET location = EXCLUDED.location, kind = EXCLUDED.kind," +
		" attrs = EXCLUDED.attrs, props = EXCLUDED.props, updated_at = EXCLUDED.updated_at")
	return b.String()
}

func buildDelete(table string) string {
	return "DELETE FROM " + quoteTable(table) + " WHERE id = $1"
}

// schemaStatements 返回建表与建索引语句，均可重复执行。
func schemaStatements(table string, schema *xgeo.Schema) []string {
	quoted := quoteTable(table)
	base := strings.ReplaceAll(table, ".", "_")
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS postgis",
		"CREATE TABLE IF NOT EXISTS " + quoted + " (" +
			"id text PRIMARY KEY, " +
			"location geography(Point, 4326) NOT NULL, " +
			"kind text NOT NULL DEFAULT '', " +
			"attrs jsonb NOT NULL DEFAULT '{}', " +
			"props jsonb NOT NULL DEFAULT '{}', " +
			"updated_at timestamptz NOT NULL)",
		"CREATE INDEX IF NOT EXISTS " + pq.QuoteIdentifier(base+"_location_gix") +
			" ON " + quoted + " USING GIST (location)",
	}
	for _, name := range schema.Names() {
		kind, _ := schema.Kind(name)
		expr := "(" + jsonPath(name) + ")"
		if kind == xgeo.AttrRange {
			expr = numericExpr(name)
		}
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS "+pq.QuoteIdentifier(base+"_attr_"+name)+
			" ON "+quoted+" ("+expr+")")
	}
	return stmts
}
