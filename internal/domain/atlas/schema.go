// Package atlas holds the Cognitive Atlas entity catalog and the value types
// shared by the node store, the traversal queries and the HTTP layer.
package atlas

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Entity type labels. These are the graph labels persisted on every node.
const (
	Concept         = "concept"
	Task            = "task"
	Condition       = "condition"
	Contrast        = "contrast"
	Disorder        = "disorder"
	Trait           = "trait"
	Behavior        = "behavior"
	Battery         = "battery"
	Theory          = "theory"
	Implementation  = "implementation"
	ExternalDataset = "external_dataset"
	Indicator       = "indicator"
	Citation        = "citation"
	Assertion       = "assertion"
	User            = "user"
	ExternalLink    = "external_link"
	ConceptClass    = "concept_class"
	Disambiguation  = "disambiguation"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RelationDef is one row of an entity type's relation table.
type RelationDef struct {
	Type    string   `yaml:"type"`
	Key     string   `yaml:"key"`
	Targets []string `yaml:"targets"`
}

// EntityType is the schema value object for one label.
type EntityType struct {
	Label      string        `yaml:"label"`
	Prefix     string        `yaml:"prefix"`
	Color      string        `yaml:"color"`
	Searchable bool          `yaml:"searchable"`
	Fields     []string      `yaml:"fields"`
	Relations  []RelationDef `yaml:"relations"`

	byType map[string]RelationDef
}

// Relation returns the declared relation of the given type.
func (t *EntityType) Relation(relType string) (RelationDef, bool) {
	if t == nil {
		return RelationDef{}, false
	}
	def, ok := t.byType[relType]
	return def, ok
}

func (t *EntityType) AllowsRelation(relType string) bool {
	_, ok := t.Relation(relType)
	return ok
}

type catalogDoc struct {
	Entities          []*EntityType     `yaml:"entities"`
	RelationNodeTypes map[string]string `yaml:"relation_node_types"`
	RelationColors    map[string]string `yaml:"relation_colors"`
}

// Registry is the validated, read-only entity catalog.
type Registry struct {
	order          []string
	types          map[string]*EntityType
	byPrefix       map[string]*EntityType
	relationNodes  map[string]string
	relationColors map[string]string
}

// LoadRegistry parses and validates a YAML catalog. Duplicate labels,
// prefixes or relation types within one table are rejected.
func LoadRegistry(data []byte) (*Registry, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse entity catalog: %w", err)
	}
	if len(doc.Entities) == 0 {
		return nil, fmt.Errorf("entity catalog: no entities declared")
	}

	r := &Registry{
		types:          make(map[string]*EntityType, len(doc.Entities)),
		byPrefix:       make(map[string]*EntityType, len(doc.Entities)),
		relationNodes:  doc.RelationNodeTypes,
		relationColors: doc.RelationColors,
	}
	for _, t := range doc.Entities {
		if t == nil || !identPattern.MatchString(t.Label) {
			return nil, fmt.Errorf("entity catalog: invalid label %q", labelOf(t))
		}
		if _, dup := r.types[t.Label]; dup {
			return nil, fmt.Errorf("entity catalog: label %q declared twice", t.Label)
		}
		if t.Prefix != "" {
			if other, dup := r.byPrefix[t.Prefix]; dup {
				return nil, fmt.Errorf("entity catalog: prefix %q used by %q and %q", t.Prefix, other.Label, t.Label)
			}
			if !identPattern.MatchString(t.Prefix) || len(t.Prefix) < 3 || len(t.Prefix) > 5 {
				return nil, fmt.Errorf("entity catalog: %q has invalid prefix %q", t.Label, t.Prefix)
			}
			r.byPrefix[t.Prefix] = t
		}
		if len(t.Fields) == 0 {
			t.Fields = []string{"id", "name"}
		}
		t.byType = make(map[string]RelationDef, len(t.Relations))
		for _, rel := range t.Relations {
			if !identPattern.MatchString(rel.Type) {
				return nil, fmt.Errorf("entity catalog: %q has invalid relation type %q", t.Label, rel.Type)
			}
			if _, dup := t.byType[rel.Type]; dup {
				return nil, fmt.Errorf("entity catalog: %q declares relation %q twice", t.Label, rel.Type)
			}
			if strings.TrimSpace(rel.Key) == "" {
				return nil, fmt.Errorf("entity catalog: %q relation %q has no response key", t.Label, rel.Type)
			}
			t.byType[rel.Type] = rel
		}
		r.types[t.Label] = t
		r.order = append(r.order, t.Label)
	}

	for _, t := range doc.Entities {
		for _, rel := range t.Relations {
			for _, target := range rel.Targets {
				if _, ok := r.types[target]; !ok {
					return nil, fmt.Errorf("entity catalog: %q relation %q targets unknown type %q", t.Label, rel.Type, target)
				}
			}
		}
	}
	return r, nil
}

func labelOf(t *EntityType) string {
	if t == nil {
		return ""
	}
	return t.Label
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// DefaultRegistry returns the embedded catalog.
func DefaultRegistry() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = LoadRegistry(embeddedCatalog)
	})
	return defaultReg, defaultErr
}

// LoadRegistryFile loads a catalog override; an empty path yields the embedded catalog.
func LoadRegistryFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity catalog: %w", err)
	}
	return LoadRegistry(data)
}

// Type looks up an entity type by label.
func (r *Registry) Type(label string) (*EntityType, error) {
	t, ok := r.types[label]
	if !ok {
		return nil, &UnknownEntityTypeError{Label: label}
	}
	return t, nil
}

// Labels returns every label in catalog order.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.order...)
}

// SearchableLabels returns the domain labels cross-type search is restricted to.
func (r *Registry) SearchableLabels() []string {
	var out []string
	for _, l := range r.order {
		if r.types[l].Searchable {
			out = append(out, l)
		}
	}
	return out
}

// FieldsFor returns the canonical field list, or nil for unknown labels.
func (r *Registry) FieldsFor(label string) []string {
	t, ok := r.types[label]
	if !ok {
		return nil
	}
	return append([]string(nil), t.Fields...)
}

// RelationsFor returns relation type -> response key.
func (r *Registry) RelationsFor(label string) map[string]string {
	t, ok := r.types[label]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(t.Relations))
	for _, rel := range t.Relations {
		out[rel.Type] = rel.Key
	}
	return out
}

func (r *Registry) IsRelationAllowed(label, relType string) bool {
	t, ok := r.types[label]
	return ok && t.AllowsRelation(relType)
}

// RelationNodeType returns the node type found at the end of a relation
// (--RELATION-->[NODE]) or "" if the relation has no fixed target.
func (r *Registry) RelationNodeType(relType string) string {
	return r.relationNodes[relType]
}

func (r *Registry) RelationColor(relType string) string {
	if c, ok := r.relationColors[relType]; ok {
		return c
	}
	return "#FFFFFF"
}

// TypeForID resolves the entity type encoded in an id prefix.
func (r *Registry) TypeForID(id string) (*EntityType, bool) {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return nil, false
	}
	t, ok := r.byPrefix[prefix]
	return t, ok
}

// Prefixes returns label -> prefix for every label that can mint ids.
func (r *Registry) Prefixes() map[string]string {
	out := make(map[string]string, len(r.byPrefix))
	for p, t := range r.byPrefix {
		out[t.Label] = p
	}
	return out
}

// RelationTypes returns every relation type declared anywhere in the catalog, sorted.
func (r *Registry) RelationTypes() []string {
	seen := map[string]struct{}{}
	for _, t := range r.types {
		for _, rel := range t.Relations {
			seen[rel.Type] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
