package store

import (
	"fmt"
	"sort"
	"strings"
)

// filterColumns maps filter-grammar field names onto table columns.
// Fields outside this map are dropped silently, mirroring the
// translator's sanitizer; the builder is the last line of defense when
// a filter arrives from an API caller directly.
var filterColumns = map[string]string{
	"propertyId":      "property_id",
	"name":            "name",
	"propType":        "prop_type",
	"city":            "city",
	"propertyAddress": "property_address",
	"description":     "description",
	"geoId":           "geo_id",
	"searchTerm":      "search_term",
	"assessedValue":   "assessed_value",
	"appraisedValue":  "appraised_value",
}

var comparisonOps = map[string]string{
	"gte": ">=",
	"lte": "<=",
	"gt":  ">",
	"lt":  "<",
	"eq":  "=",
}

// BuildWhere renders a filter object (the translator grammar) into a
// SQL WHERE clause with positional args. An empty or fully-dropped
// filter yields an empty clause, matching everything.
func BuildWhere(filter map[string]any) (string, []any) {
	var args []any
	argPos := 1

	clause := buildNode(filter, "AND", &args, &argPos)
	if clause == "" {
		return "", nil
	}
	return " WHERE " + clause, args
}

// buildNode renders one filter object, joining its members with joiner.
func buildNode(filter map[string]any, joiner string, args *[]any, argPos *int) string {
	var parts []string

	for _, key := range sortedKeys(filter) {
		value := filter[key]
		switch key {
		case "AND", "OR":
			items, ok := value.([]any)
			if !ok {
				continue
			}
			var sub []string
			for _, item := range items {
				obj, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if clause := buildNode(obj, "AND", args, argPos); clause != "" {
					sub = append(sub, clause)
				}
			}
			if len(sub) > 0 {
				parts = append(parts, "("+strings.Join(sub, " "+key+" ")+")")
			}
		default:
			if clause := buildLeaf(key, value, args, argPos); clause != "" {
				parts = append(parts, clause)
			}
		}
	}

	return strings.Join(parts, " "+joiner+" ")
}

func buildLeaf(field string, value any, args *[]any, argPos *int) string {
	col, ok := filterColumns[field]
	if !ok {
		return ""
	}

	switch v := value.(type) {
	case string:
		clause := fmt.Sprintf("%s = $%d", col, *argPos)
		*args = append(*args, v)
		*argPos++
		return clause
	case map[string]any:
		if contains, ok := v["contains"].(string); ok {
			op := "LIKE"
			if mode, ok := v["mode"].(string); ok && mode == "insensitive" {
				op = "ILIKE"
			}
			clause := fmt.Sprintf("%s %s '%%' || $%d || '%%'", col, op, *argPos)
			*args = append(*args, escapeLike(contains))
			*argPos++
			return clause
		}
		var sub []string
		for _, op := range []string{"gte", "lte", "gt", "lt", "eq"} {
			num, ok := v[op].(float64)
			if !ok {
				continue
			}
			sub = append(sub, fmt.Sprintf("%s %s $%d", col, comparisonOps[op], *argPos))
			*args = append(*args, num)
			*argPos++
		}
		return strings.Join(sub, " AND ")
	}

	return ""
}

// escapeLike neutralizes LIKE metacharacters in user text so a query
// for "50%" matches the literal string.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// sortedKeys makes clause order deterministic; map iteration order
// would otherwise shuffle the generated SQL between calls.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
