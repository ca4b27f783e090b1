package atlas

import (
	"fmt"
	"sort"
	"strings"
)

// PropertyError lists property keys whose values cannot be stored, keyed by
// property name.
type PropertyError struct {
	Fields map[string]string
}

func (e *PropertyError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid property values (" + strings.Join(parts, "; ") + ")"
}

func (e *PropertyError) Unwrap() error { return ErrInvalidArgument }

// ValidateProps accepts text, numeric and boolean values, lists of a single
// such kind, and nil.
func ValidateProps(props map[string]any) error {
	var bad map[string]string
	for k, v := range props {
		if reason := propertyProblem(v); reason != "" {
			if bad == nil {
				bad = map[string]string{}
			}
			bad[k] = reason
		}
	}
	if bad != nil {
		return &PropertyError{Fields: bad}
	}
	return nil
}

type scalarKind int

const (
	kindNone scalarKind = iota
	kindString
	kindBool
	kindNumber
)

func kindOf(v any) scalarKind {
	switch v.(type) {
	case string:
		return kindString
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return kindNumber
	}
	return kindNone
}

func propertyProblem(v any) string {
	if v == nil || kindOf(v) != kindNone {
		return ""
	}
	switch list := v.(type) {
	case []string, []bool, []int, []int64, []float64:
		return ""
	case []any:
		first := kindNone
		for i, el := range list {
			k := kindOf(el)
			if k == kindNone {
				return fmt.Sprintf("list element %d must be text, numeric or boolean", i)
			}
			if first == kindNone {
				first = k
			} else if k != first {
				return "list elements must all be of one type"
			}
		}
		return ""
	}
	return "must be text, numeric, boolean or a list of one of those"
}
