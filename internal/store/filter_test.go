package store

import (
	"strings"
	"testing"
)

func TestBuildWhereEmptyFilter(t *testing.T) {
	where, args := BuildWhere(nil)
	if where != "" || args != nil {
		t.Fatalf("nil filter should produce no clause, got %q %v", where, args)
	}

	where, args = BuildWhere(map[string]any{})
	if where != "" || len(args) != 0 {
		t.Fatalf("empty filter should produce no clause, got %q %v", where, args)
	}
}

func TestBuildWhereStringLeaf(t *testing.T) {
	where, args := BuildWhere(map[string]any{"city": "Austin"})
	if where != " WHERE city = $1" {
		t.Fatalf("unexpected clause: %q", where)
	}
	if len(args) != 1 || args[0] != "Austin" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildWhereContainsInsensitive(t *testing.T) {
	where, args := BuildWhere(map[string]any{
		"name": map[string]any{"contains": "smith", "mode": "insensitive"},
	})
	if where != " WHERE name ILIKE '%' || $1 || '%'" {
		t.Fatalf("unexpected clause: %q", where)
	}
	if args[0] != "smith" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildWhereEscapesLikeMetacharacters(t *testing.T) {
	_, args := BuildWhere(map[string]any{
		"name": map[string]any{"contains": "50%_done", "mode": "insensitive"},
	})
	if args[0] != `50\%\_done` {
		t.Fatalf("LIKE metacharacters not escaped: %v", args)
	}
}

func TestBuildWhereNumericOps(t *testing.T) {
	where, args := BuildWhere(map[string]any{
		"assessedValue": map[string]any{"gte": float64(100000), "lt": float64(500000)},
	})
	if !strings.Contains(where, "assessed_value >= $") || !strings.Contains(where, "assessed_value < $") {
		t.Fatalf("unexpected clause: %q", where)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
}

func TestBuildWhereComposites(t *testing.T) {
	where, args := BuildWhere(map[string]any{
		"OR": []any{
			map[string]any{"city": map[string]any{"contains": "austin", "mode": "insensitive"}},
			map[string]any{"name": map[string]any{"contains": "austin", "mode": "insensitive"}},
		},
	})
	if !strings.HasPrefix(where, " WHERE (") || !strings.Contains(where, " OR ") {
		t.Fatalf("unexpected clause: %q", where)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
}

func TestBuildWhereDropsUnknownFields(t *testing.T) {
	where, args := BuildWhere(map[string]any{
		"city":        "Austin",
		"evil; DROP":  "x",
		"unknownAttr": map[string]any{"contains": "y"},
	})
	if where != " WHERE city = $1" {
		t.Fatalf("unknown fields must be dropped, got %q", where)
	}
	if len(args) != 1 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildWhereNestedComposite(t *testing.T) {
	where, args := BuildWhere(map[string]any{
		"AND": []any{
			map[string]any{"propType": "R"},
			map[string]any{"OR": []any{
				map[string]any{"city": "Austin"},
				map[string]any{"city": "Manor"},
			}},
		},
	})
	if !strings.Contains(where, "prop_type = $1") {
		t.Fatalf("unexpected clause: %q", where)
	}
	if !strings.Contains(where, "(city = $2 OR city = $3)") {
		t.Fatalf("nested OR not rendered: %q", where)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %v", args)
	}
}
