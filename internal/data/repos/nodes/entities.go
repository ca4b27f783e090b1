package nodes

import (
	"context"

	"github.com/poldracklab/cogat/internal/domain/atlas"
)

// Entity binds the node store to one label.
type Entity struct {
	repo  NodeRepo
	Label string
}

func (e Entity) Create(ctx context.Context, name string, props map[string]any, actor *atlas.Actor) (atlas.Record, error) {
	return e.repo.Create(ctx, e.Label, name, props, actor)
}

func (e Entity) Get(ctx context.Context, field string, value any, opts GetOptions) ([]atlas.Record, error) {
	return e.repo.Get(ctx, e.Label, field, value, opts)
}

func (e Entity) GetOne(ctx context.Context, field string, value any, opts GetOptions) (atlas.Record, error) {
	return e.repo.GetOne(ctx, e.Label, field, value, opts)
}

func (e Entity) GetFull(ctx context.Context, field string, value any) (atlas.Record, error) {
	return e.repo.GetFull(ctx, e.Label, field, value)
}

func (e Entity) Update(ctx context.Context, id string, updates map[string]any, actor *atlas.Actor) error {
	return e.repo.Update(ctx, e.Label, id, updates, actor)
}

func (e Entity) Link(ctx context.Context, srcID, destID, relType string, opts LinkOptions) (atlas.Edge, error) {
	return e.repo.Link(ctx, e.Label, srcID, destID, relType, opts)
}

func (e Entity) Unlink(ctx context.Context, srcID, destID, relType, destLabel string) error {
	return e.repo.Unlink(ctx, e.Label, srcID, destID, relType, destLabel)
}

func (e Entity) UpdateLinkProperties(ctx context.Context, srcID, destID, relType, destLabel string, props map[string]any) error {
	return e.repo.UpdateLinkProperties(ctx, e.Label, srcID, destID, relType, destLabel, props)
}

func (e Entity) Count(ctx context.Context) (int64, error) {
	return e.repo.Count(ctx, e.Label)
}

func (e Entity) All(ctx context.Context, opts ListOptions) ([]atlas.Record, error) {
	return e.repo.All(ctx, e.Label, opts)
}

func (e Entity) Filter(ctx context.Context, filters []Filter, opts ListOptions) ([]atlas.Record, error) {
	return e.repo.Filter(ctx, e.Label, filters, opts)
}

// ByLetter lists nodes whose name starts with letter.
func (e Entity) ByLetter(ctx context.Context, letter string, opts ListOptions) ([]atlas.Record, error) {
	if opts.OrderBy == "" {
		opts.OrderBy = "name"
	}
	return e.repo.Filter(ctx, e.Label, []Filter{{Field: "name", Op: FilterStartsWith, Value: letter}}, opts)
}

func (e Entity) SearchAllFields(ctx context.Context, terms ...string) ([]atlas.Record, error) {
	return e.repo.SearchAllFields(ctx, e.Label, terms)
}

func (e Entity) Relation(ctx context.Context, id, relType, targetLabel string) ([]atlas.Record, error) {
	return e.repo.GetRelation(ctx, e.Label, id, relType, targetLabel)
}

func (e Entity) ReverseRelation(ctx context.Context, id, relType, sourceLabel string) ([]atlas.Record, error) {
	return e.repo.GetReverseRelation(ctx, e.Label, id, relType, sourceLabel)
}

func (e Entity) Creator(ctx context.Context, id string) (atlas.Record, error) {
	return e.repo.Creator(ctx, e.Label, id)
}

type Task struct{ Entity }
type Concept struct{ Entity }
type Condition struct{ Entity }
type Contrast struct{ Entity }
type Disorder struct{ Entity }
type Theory struct{ Entity }
type ConceptClass struct{ Entity }
type Assertion struct{ Entity }

// Catalog holds one wrapper per entity type over a shared store.
type Catalog struct {
	repo NodeRepo

	Task         Task
	Concept      Concept
	Condition    Condition
	Contrast     Contrast
	Disorder     Disorder
	Trait        Entity
	Behavior     Entity
	Battery      Entity
	Theory       Theory
	Citation     Entity
	Assertion    Assertion
	ConceptClass ConceptClass
}

func NewCatalog(repo NodeRepo) *Catalog {
	bind := func(label string) Entity { return Entity{repo: repo, Label: label} }
	return &Catalog{
		repo:         repo,
		Task:         Task{bind("task")},
		Concept:      Concept{bind("concept")},
		Condition:    Condition{bind("condition")},
		Contrast:     Contrast{bind("contrast")},
		Disorder:     Disorder{bind("disorder")},
		Trait:        bind("trait"),
		Behavior:     bind("behavior"),
		Battery:      bind("battery"),
		Theory:       Theory{bind("theory")},
		Citation:     bind("citation"),
		Assertion:    Assertion{bind("assertion")},
		ConceptClass: ConceptClass{bind("concept_class")},
	}
}

func (c *Catalog) Repo() NodeRepo { return c.repo }

// Entity returns a wrapper for any registered label.
func (c *Catalog) Entity(label string) (Entity, error) {
	if _, err := c.repo.Registry().Type(label); err != nil {
		return Entity{}, err
	}
	return Entity{repo: c.repo, Label: label}, nil
}
