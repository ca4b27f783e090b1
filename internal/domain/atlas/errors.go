package atlas

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a lookup expected exactly one node and found none.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRelation is returned when a relation type is not declared for the source type.
	ErrInvalidRelation = errors.New("invalid relation")
	// ErrUnknownEntityType is returned for labels missing from the catalog or without an id prefix.
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrLinkFailure is returned when an edge could not be created between two nodes.
	ErrLinkFailure = errors.New("link failure")
	// ErrDuplicateName is returned by callers that enforce name uniqueness.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

type NotFoundError struct {
	Label string
	Field string
	Value any
}

func (e *NotFoundError) Error() string {
	label := e.Label
	if label == "" {
		label = "node"
	}
	return fmt.Sprintf("%s with %s=%v not found", label, e.Field, e.Value)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// RelationError names the rule a link attempt violated.
type RelationError struct {
	Label    string
	Relation string
	// Target is set when the relation exists but may not point at this type.
	Target string
}

func (e *RelationError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("relation %q from %q may not target entity type %q", e.Relation, e.Label, e.Target)
	}
	return fmt.Sprintf("relation %q is not declared for entity type %q", e.Relation, e.Label)
}

func (e *RelationError) Unwrap() error { return ErrInvalidRelation }

type UnknownEntityTypeError struct {
	Label  string
	Reason string
}

func (e *UnknownEntityTypeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("entity type %q: %s", e.Label, e.Reason)
	}
	return fmt.Sprintf("unknown entity type %q", e.Label)
}

func (e *UnknownEntityTypeError) Unwrap() error { return ErrUnknownEntityType }

// DuplicateNameError carries the ids of the existing nodes so callers can offer a choice.
type DuplicateNameError struct {
	Label string
	Name  string
	IDs   []string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s named %q already exists (%s)", e.Label, e.Name, strings.Join(e.IDs, ", "))
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

type LinkError struct {
	Source   string
	Target   string
	Relation string
	Err      error
}

func (e *LinkError) Error() string {
	msg := fmt.Sprintf("unable to link %s -[%s]-> %s", e.Source, e.Relation, e.Target)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrLinkFailure and the underlying cause to errors.Is.
func (e *LinkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrLinkFailure}
	}
	return []error{ErrLinkFailure, e.Err}
}
