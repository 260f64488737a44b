package engine

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Condition tree operators. Internal nodes combine children; leaves compare
// a dotted-path lookup against a literal.
const (
	opAnd    = "AND"
	opOr     = "OR"
	opNot    = "NOT"
	opEq     = "eq"
	opNeq    = "neq"
	opGte    = "gte"
	opLte    = "lte"
	opIn     = "in"
	opHasTag = "hasTag"
)

// CondNode is one node of a rule's condition tree, decoded from jsonb.
type CondNode struct {
	Op    string     `json:"op"`
	Nodes []CondNode `json:"nodes,omitempty"`
	Node  *CondNode  `json:"node,omitempty"`
	Path  string     `json:"path,omitempty"`
	Value any        `json:"value,omitempty"`
}

// EvalCondition evaluates a condition tree against a context snapshot.
// A nil tree is vacuously true. AND over an empty list is true, OR over an
// empty list is false. Unknown operators evaluate false.
func EvalCondition(node *CondNode, ctx map[string]any) bool {
	if node == nil {
		return true
	}
	switch node.Op {
	case opAnd:
		for i := range node.Nodes {
			if !EvalCondition(&node.Nodes[i], ctx) {
				return false
			}
		}
		return true
	case opOr:
		for i := range node.Nodes {
			if EvalCondition(&node.Nodes[i], ctx) {
				return true
			}
		}
		return false
	case opNot:
		return !EvalCondition(node.Node, ctx)
	}

	left := readPath(ctx, node.Path)
	switch node.Op {
	case opEq:
		return looseEqual(left, node.Value)
	case opNeq:
		return !looseEqual(left, node.Value)
	case opGte:
		l, lok := toNumber(left)
		r, rok := toNumber(node.Value)
		return lok && rok && l >= r
	case opLte:
		l, lok := toNumber(left)
		r, rok := toNumber(node.Value)
		return lok && rok && l <= r
	case opIn:
		list, ok := toList(node.Value)
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(left, item) {
				return true
			}
		}
		return false
	case opHasTag:
		list, ok := toList(left)
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(item, node.Value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// DecodeCondition parses a jsonb condition tree; nil input yields nil.
func DecodeCondition(raw []byte) (*CondNode, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var node CondNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func readPath(ctx map[string]any, path string) any {
	var current any = ctx
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		return bok && as == bs
	}
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn
		}
		return false
	}
	if ab, aok := a.(bool); aok {
		bb, bok := b.(bool)
		return bok && ab == bb
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
