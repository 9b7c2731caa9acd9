package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// graphName is the single AGE graph this engine ever opens.
const graphName = "astgraph"

// escapeStr escapes backslashes and single quotes for safe inline Cypher
// string literals.
func escapeStr(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return v
}

// cypherValue renders a Go value as a Cypher literal: bools and numbers
// unquoted, everything else as an escaped string literal.
func cypherValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	default:
		return "'" + escapeStr(fmt.Sprintf("%v", t)) + "'"
	}
}

// cypherProps renders a property map as a Cypher `{k: v, ...}` literal,
// iterating keys in the caller-supplied order for deterministic output.
func cypherProps(keys []string, props map[string]any) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, cypherValue(props[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// execCypher runs a write Cypher statement through ag_catalog.cypher and
// discards its result. The random per-call dollar-quote tag lets Cypher
// literals containing $ pass through safely.
func execCypher(ctx context.Context, q querier, cypher string) error {
	tag := "q_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	sql := fmt.Sprintf("SELECT * FROM ag_catalog.cypher('%s', $%s$ %s $%s$) AS (ignored agtype)",
		graphName, tag, cypher, tag)
	_, err := q.Exec(ctx, sql)
	return err
}

// fetchCypher runs a read Cypher statement and returns its rows as
// agtype text, one column per requested return value.
func fetchCypher(ctx context.Context, q querier, cypher string, columns int) ([][]string, error) {
	tag := "q_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	colDefs := make([]string, columns)
	for i := range colDefs {
		colDefs[i] = fmt.Sprintf("c%d agtype", i)
	}
	sql := fmt.Sprintf("SELECT * FROM ag_catalog.cypher('%s', $%s$ %s $%s$) AS (%s)",
		graphName, tag, cypher, tag, strings.Join(colDefs, ", "))

	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		vals := make([]any, columns)
		ptrs := make([]any, columns)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]string, columns)
		for i, v := range vals {
			row[i] = fmt.Sprintf("%v", v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// parseAgtypeInt strips every non-digit byte and parses what remains,
// pulling an integer id out of an agtype-rendered value like `"123"`
// or `123`.
func parseAgtypeInt(s string) int64 {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) == 0 {
		return 0
	}
	n, _ := strconv.ParseInt(string(digits), 10, 64)
	return n
}

// unquoteAgtype strips the surrounding double quotes agtype renders around
// string-valued properties, so callers see the bare string.
func unquoteAgtype(s string) string {
	return strings.Trim(s, `"`)
}
