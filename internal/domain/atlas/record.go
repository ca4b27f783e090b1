package atlas

import (
	"fmt"
	"strings"
)

// Record is the denormalized property map returned for a node.
type Record map[string]any

func (r Record) String(key string) string {
	if r == nil {
		return ""
	}
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (r Record) ID() string   { return r.String("id") }
func (r Record) Name() string { return r.String("name") }

// Float reads numeric properties regardless of the integer/float width the driver used.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Project keeps only the given fields that are present.
func (r Record) Project(fields []string) Record {
	if len(fields) == 0 {
		return r.Clone()
	}
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Edge is a directed, typed relation between two nodes identified by their atlas ids.
type Edge struct {
	Type     string `json:"type"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Props    Record `json:"properties,omitempty"`
	// Created is false when Link found an existing edge.
	Created bool `json:"created"`
}

// Actor is the platform user performing a mutation.
type Actor struct {
	ID       string
	Username string
}

func (a *Actor) Valid() bool {
	return a != nil && strings.TrimSpace(a.ID) != ""
}
