package nodes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/poldracklab/cogat/internal/data/graph"
	"github.com/poldracklab/cogat/internal/domain/atlas"
)

// Concurrent hydration fan-out per traversal.
const hydrateLimit = 8

type ConditionWeight struct {
	Condition atlas.Record `json:"condition"`
	// Props are the condition->contrast edge properties.
	Props atlas.Record `json:"properties"`
}

func (c ConditionWeight) Weight() (float64, bool) { return c.Props.Float("weight") }

type ContrastWithConditions struct {
	Contrast   atlas.Record      `json:"contrast"`
	Conditions []ConditionWeight `json:"conditions"`
}

// TaskDisorder is built from the HASDIFFERENCE edge, whose name and event
// stamp differ from the disorder node's own.
type TaskDisorder struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EventStamp any    `json:"event_stamp,omitempty"`
	IDContrast string `json:"id_contrast"`
	IDDisorder string `json:"id_disorder"`
	IDTask     string `json:"id_task"`
	IDUser     string `json:"id_user,omitempty"`
}

type PhenotypeMeasure struct {
	Phenotype atlas.Record   `json:"phenotype"`
	Contrasts []atlas.Record `json:"contrasts"`
}

type ReferencedTerm struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	URL   string `json:"url"`
	Label string `json:"label"`
	ID    string `json:"id"`
}

type DisorderTreeNode struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Children []DisorderTreeNode `json:"children"`
}

type ConceptClassMembers struct {
	Class    atlas.Record   `json:"class"`
	Concepts []atlas.Record `json:"concepts"`
}

// contrastNodes returns the task's contrasts, owned directly or through one of
// its conditions, in discovery order.
func (t Task) contrastNodes(ctx context.Context, taskID string) ([]graph.Node, error) {
	direct, err := t.repo.Traverse(ctx, t.Label, taskID,
		graph.Hop{Type: "HASCONTRAST", Dir: graph.Outgoing, Label: "contrast"})
	if err != nil {
		return nil, err
	}
	viaCondition, err := t.repo.Traverse(ctx, t.Label, taskID,
		graph.Hop{Type: "HASCONDITION", Dir: graph.Outgoing, Label: "condition"},
		graph.Hop{Type: "HASCONTRAST", Dir: graph.Outgoing, Label: "contrast"})
	if err != nil {
		return nil, err
	}
	return uniqueEnds(append(direct, viaCondition...)), nil
}

func uniqueEnds(paths []graph.Path) []graph.Node {
	seen := make(map[string]struct{}, len(paths))
	out := make([]graph.Node, 0, len(paths))
	for _, p := range paths {
		n := p.Last()
		if _, ok := seen[n.ElementID]; ok {
			continue
		}
		seen[n.ElementID] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Contrasts returns each of the task's contrasts with the conditions that
// point at it and the weights on those edges.
func (t Task) Contrasts(ctx context.Context, taskID string) ([]ContrastWithConditions, error) {
	contrasts, err := t.contrastNodes(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]ContrastWithConditions, len(contrasts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateLimit)
	for i, c := range contrasts {
		g.Go(func() error {
			edges, err := t.repo.Edges(gctx, graph.RelPattern{
				StartLabel: "condition", Type: "HASCONTRAST", EndLabel: "contrast", EndID: c.ID(),
			})
			if err != nil {
				return err
			}
			conds := make([]ConditionWeight, 0, len(edges))
			for _, e := range edges {
				conds = append(conds, ConditionWeight{
					Condition: atlas.Record(e.Start.Props),
					Props:     atlas.Record(e.Rel.Props),
				})
			}
			out[i] = ContrastWithConditions{Contrast: atlas.Record(c.Props), Conditions: conds}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("contrasts of task %s: %w", taskID, err)
	}
	return out, nil
}

// Disorders follows task -> contrast -HASDIFFERENCE-> disorder, one record per
// difference edge.
func (t Task) Disorders(ctx context.Context, taskID string) ([]TaskDisorder, error) {
	difference := graph.Hop{Type: "HASDIFFERENCE", Dir: graph.Outgoing, Label: "disorder"}
	direct, err := t.repo.Traverse(ctx, t.Label, taskID,
		graph.Hop{Type: "HASCONTRAST", Dir: graph.Outgoing, Label: "contrast"}, difference)
	if err != nil {
		return nil, err
	}
	viaCondition, err := t.repo.Traverse(ctx, t.Label, taskID,
		graph.Hop{Type: "HASCONDITION", Dir: graph.Outgoing, Label: "condition"},
		graph.Hop{Type: "HASCONTRAST", Dir: graph.Outgoing, Label: "contrast"}, difference)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	out := []TaskDisorder{}
	for _, p := range append(direct, viaCondition...) {
		rel := p.Rels[len(p.Rels)-1]
		if _, ok := seen[rel.ElementID]; ok {
			continue
		}
		seen[rel.ElementID] = struct{}{}
		contrast := p.Nodes[len(p.Nodes)-2]
		disorder := p.Last()
		props := atlas.Record(rel.Props)
		idContrast := props.String("id_contrast")
		if idContrast == "" {
			idContrast = contrast.ID()
		}
		out = append(out, TaskDisorder{
			ID:         props.ID(),
			Name:       props.Name(),
			EventStamp: props["event_stamp"],
			IDContrast: idContrast,
			IDDisorder: disorder.ID(),
			IDTask:     taskID,
			IDUser:     atlas.Record(disorder.Props).String("id_user"),
		})
	}
	return out, nil
}

// MeasuredBy lists the phenotypes of the given label (concept, trait or
// behavior) measured by the task's contrasts.
func (t Task) MeasuredBy(ctx context.Context, taskID, label string) ([]PhenotypeMeasure, error) {
	typ, err := t.repo.Registry().Type(label)
	if err != nil {
		return nil, err
	}
	if !typ.AllowsRelation("MEASUREDBY") {
		return nil, &atlas.RelationError{Label: label, Relation: "MEASUREDBY"}
	}
	contrasts, err := t.contrastNodes(ctx, taskID)
	if err != nil {
		return nil, err
	}
	byPhenotype := map[string]int{}
	out := []PhenotypeMeasure{}
	for _, c := range contrasts {
		edges, err := t.repo.Edges(ctx, graph.RelPattern{
			StartLabel: label, Type: "MEASUREDBY", EndLabel: "contrast", EndID: c.ID(),
		})
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			idx, ok := byPhenotype[e.Start.ElementID]
			if !ok {
				idx = len(out)
				byPhenotype[e.Start.ElementID] = idx
				out = append(out, PhenotypeMeasure{Phenotype: atlas.Record(e.Start.Props)})
			}
			out[idx].Contrasts = append(out[idx].Contrasts, atlas.Record(c.Props))
		}
	}
	return out, nil
}

func (t Task) Conditions(ctx context.Context, taskID string) ([]atlas.Record, error) {
	return t.Relation(ctx, taskID, "HASCONDITION", "condition")
}

// ConceptContrasts returns the concepts the task asserts, each keyed by
// concept_id and carrying the task contrasts that measure it.
func (t Task) ConceptContrasts(ctx context.Context, taskID string) ([]atlas.Record, error) {
	concepts, err := t.Relation(ctx, taskID, "ASSERTS", "concept")
	if err != nil {
		return nil, err
	}
	contrasts, err := t.contrastNodes(ctx, taskID)
	if err != nil {
		return nil, err
	}
	taskContrasts := make(map[string]graph.Node, len(contrasts))
	for _, c := range contrasts {
		taskContrasts[c.ID()] = c
	}
	out := make([]atlas.Record, 0, len(concepts))
	for _, c := range concepts {
		measured, err := t.repo.Edges(ctx, graph.RelPattern{
			StartLabel: "concept", StartID: c.ID(), Type: "MEASUREDBY", EndLabel: "contrast",
		})
		if err != nil {
			return nil, err
		}
		pairs := []map[string]string{}
		for _, m := range measured {
			if n, ok := taskContrasts[m.End.ID()]; ok {
				pairs = append(pairs, map[string]string{"id": n.ID(), "name": stringOf(n.Props["name"])})
			}
		}
		rec := c.Clone()
		rec["concept_id"] = c.ID()
		delete(rec, "id")
		rec["contrasts"] = pairs
		out = append(out, rec)
	}
	return out, nil
}

// GetFull returns the task with its contrasts, disorders and asserted
// concepts replaced by their traversal views. Nil when absent.
func (t Task) GetFull(ctx context.Context, field string, value any) (atlas.Record, error) {
	rec, err := t.Entity.GetFull(ctx, field, value)
	if err != nil || rec == nil {
		return rec, err
	}
	id := rec.ID()
	var (
		contrasts []ContrastWithConditions
		disorders []TaskDisorder
		concepts  []atlas.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { contrasts, err = t.Contrasts(gctx, id); return })
	g.Go(func() (err error) { disorders, err = t.Disorders(gctx, id); return })
	g.Go(func() (err error) { concepts, err = t.ConceptContrasts(gctx, id); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	rec["contrasts"] = contrasts
	rec["disorders"] = disorders
	rec["concepts"] = concepts
	return rec, nil
}

// GetFull adds a relationships list: children (incoming PARTOF/KINDOF) first,
// then parents (outgoing).
func (c Concept) GetFull(ctx context.Context, field string, value any) (atlas.Record, error) {
	rec, err := c.Entity.GetFull(ctx, field, value)
	if err != nil || rec == nil {
		return rec, err
	}
	id := rec.ID()
	rels := []atlas.Record{}
	for _, dir := range []struct {
		name    string
		reverse bool
	}{{"child", true}, {"parent", false}} {
		for _, relType := range []string{"PARTOF", "KINDOF"} {
			var related []atlas.Record
			if dir.reverse {
				related, err = c.ReverseRelation(ctx, id, relType, "concept")
			} else {
				related, err = c.Relation(ctx, id, relType, "concept")
			}
			if err != nil {
				return nil, err
			}
			for _, r := range related {
				r["direction"] = dir.name
				rels = append(rels, r)
			}
		}
	}
	rec["relationships"] = rels
	return rec, nil
}

func (c Contrast) Conditions(ctx context.Context, contrastID string) ([]atlas.Record, error) {
	return c.ReverseRelation(ctx, contrastID, "HASCONTRAST", "condition")
}

// Concepts hydrates every concept measured by the contrast.
func (c Contrast) Concepts(ctx context.Context, contrastID string) ([]atlas.Record, error) {
	measuring, err := c.ReverseRelation(ctx, contrastID, "MEASUREDBY", "concept")
	if err != nil {
		return nil, err
	}
	concept := Concept{Entity{repo: c.repo, Label: "concept"}}
	out := make([]atlas.Record, len(measuring))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateLimit)
	for i, m := range measuring {
		g.Go(func() error {
			full, err := concept.GetFull(gctx, "id", m.ID())
			if err != nil {
				return err
			}
			out[i] = full
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("concepts of contrast %s: %w", contrastID, err)
	}
	hydrated := out[:0]
	for _, r := range out {
		if r != nil {
			hydrated = append(hydrated, r)
		}
	}
	return hydrated, nil
}

// Tasks returns the tasks owning the contrast directly or through a condition.
func (c Contrast) Tasks(ctx context.Context, contrastID string) ([]atlas.Record, error) {
	direct, err := c.repo.Traverse(ctx, c.Label, contrastID,
		graph.Hop{Type: "HASCONTRAST", Dir: graph.Incoming, Label: "task"})
	if err != nil {
		return nil, err
	}
	viaCondition, err := c.repo.Traverse(ctx, c.Label, contrastID,
		graph.Hop{Type: "HASCONTRAST", Dir: graph.Incoming, Label: "condition"},
		graph.Hop{Type: "HASCONDITION", Dir: graph.Incoming, Label: "task"})
	if err != nil {
		return nil, err
	}
	tasks := uniqueEnds(append(direct, viaCondition...))
	out := make([]atlas.Record, 0, len(tasks))
	for _, n := range tasks {
		out = append(out, atlas.Record(n.Props))
	}
	return out, nil
}

// ReferencedTerms counts the subjects and predicates of the theory's
// assertions. The label of each term comes from the graph.
func (t Theory) ReferencedTerms(ctx context.Context, theoryID string) ([]ReferencedTerm, error) {
	assertions, err := t.ReverseRelation(ctx, theoryID, "INTHEORY", "assertion")
	if err != nil {
		return nil, err
	}
	index := map[string]int{}
	out := []ReferencedTerm{}
	for _, a := range assertions {
		edges, err := t.repo.Edges(ctx, graph.RelPattern{StartLabel: "assertion", StartID: a.ID()})
		if err != nil {
			return nil, err
		}
		for _, relType := range []string{"SUBJECT", "PREDICATE"} {
			for _, e := range edges {
				if e.Rel.Type != relType {
					continue
				}
				name := stringOf(e.End.Props["name"])
				if i, ok := index[name]; ok {
					out[i].Count++
					continue
				}
				label := e.End.Label()
				index[name] = len(out)
				out = append(out, ReferencedTerm{
					Name:  name,
					Count: 1,
					URL:   fmt.Sprintf("/%s/id/%s/", label, e.End.ID()),
					Label: label,
					ID:    e.End.ID(),
				})
			}
		}
	}
	return out, nil
}

// Tree returns the disorder hierarchy. Roots have no outgoing ISA; a disorder
// linked ISA to itself is therefore never a root. Cycles are cut per path.
func (d Disorder) Tree(ctx context.Context) ([]DisorderTreeNode, error) {
	all, err := d.All(ctx, ListOptions{Fields: []string{"id", "name"}})
	if err != nil {
		return nil, err
	}
	edges, err := d.repo.Edges(ctx, graph.RelPattern{StartLabel: d.Label, Type: "ISA", EndLabel: d.Label})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]atlas.Record, len(all))
	for _, r := range all {
		byID[r.ID()] = r
	}
	hasParent := map[string]bool{}
	children := map[string][]string{}
	for _, e := range edges {
		child, parent := e.Start.ID(), e.End.ID()
		hasParent[child] = true
		if child != parent {
			children[parent] = append(children[parent], child)
		}
	}

	var build func(id string, path map[string]bool) DisorderTreeNode
	build = func(id string, path map[string]bool) DisorderTreeNode {
		node := DisorderTreeNode{ID: id, Name: byID[id].Name(), Children: []DisorderTreeNode{}}
		path[id] = true
		for _, cid := range sortByName(children[id], byID) {
			if path[cid] {
				continue
			}
			node.Children = append(node.Children, build(cid, path))
		}
		delete(path, id)
		return node
	}

	var roots []string
	for _, r := range all {
		if !hasParent[r.ID()] {
			roots = append(roots, r.ID())
		}
	}
	out := []DisorderTreeNode{}
	for _, id := range sortByName(roots, byID) {
		out = append(out, build(id, map[string]bool{}))
	}
	return out, nil
}

func sortByName(ids []string, byID map[string]atlas.Record) []string {
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(byID[out[i]].Name()) < strings.ToLower(byID[out[j]].Name())
	})
	return out
}

// WithConcepts lists every concept class with the concepts classified under it.
func (c ConceptClass) WithConcepts(ctx context.Context) ([]ConceptClassMembers, error) {
	classes, err := c.All(ctx, ListOptions{OrderBy: "display_order"})
	if err != nil {
		return nil, err
	}
	out := make([]ConceptClassMembers, 0, len(classes))
	for _, cls := range classes {
		members, err := c.ReverseRelation(ctx, cls.ID(), "CLASSIFIEDUNDER", "concept")
		if err != nil {
			return nil, err
		}
		out = append(out, ConceptClassMembers{Class: cls, Concepts: members})
	}
	return out, nil
}
