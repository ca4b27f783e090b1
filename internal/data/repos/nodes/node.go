// Package nodes is the generic node store over graph.Backend, plus the audit
// trail, the cross-type search and the typed entity wrappers with their
// multi-hop traversals.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poldracklab/cogat/internal/data/graph"
	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

// Relation type tags added to related records.
const (
	relationshipTypeKey = "relationship_type"
	relationshipKey     = "relationship"
	relationsKey        = "relations"
)

type GetOptions struct {
	// SkipRelations omits the "relations" map.
	SkipRelations bool
	// Relations restricts the returned groups to these relation types.
	Relations []string
}

type LinkOptions struct {
	// DestLabel requires the destination to carry this label.
	DestLabel string
	Props     map[string]any
}

type ListOptions struct {
	// Fields defaults to the type's declared field list.
	Fields  []string
	Limit   int
	OrderBy string
	Desc    bool
}

type FilterOp string

const (
	FilterStartsWith FilterOp = "starts_with"
	FilterContains   FilterOp = "contains"
	FilterEquals     FilterOp = "equals"
)

type Filter struct {
	Field string
	Op    FilterOp
	Value string
}

// LinkObserver is told the outcome of every Link call.
type LinkObserver interface {
	IncLink(relation, outcome string)
}

type NodeRepo interface {
	Registry() *atlas.Registry

	Create(ctx context.Context, label, name string, props map[string]any, actor *atlas.Actor) (atlas.Record, error)
	Get(ctx context.Context, label, field string, value any, opts GetOptions) ([]atlas.Record, error)
	GetOne(ctx context.Context, label, field string, value any, opts GetOptions) (atlas.Record, error)
	GetFull(ctx context.Context, label, field string, value any) (atlas.Record, error)
	Update(ctx context.Context, label, id string, updates map[string]any, actor *atlas.Actor) error
	Delete(ctx context.Context, label, id string) (bool, error)
	LabelOf(ctx context.Context, id string) (string, error)

	Link(ctx context.Context, srcLabel, srcID, destID, relType string, opts LinkOptions) (atlas.Edge, error)
	Unlink(ctx context.Context, srcLabel, srcID, destID, relType, destLabel string) error
	UpdateLinkProperties(ctx context.Context, srcLabel, srcID, destID, relType, destLabel string, props map[string]any) error
	GetRelation(ctx context.Context, label, id, relType, targetLabel string) ([]atlas.Record, error)
	GetReverseRelation(ctx context.Context, label, id, relType, sourceLabel string) ([]atlas.Record, error)

	Count(ctx context.Context, label string) (int64, error)
	All(ctx context.Context, label string, opts ListOptions) ([]atlas.Record, error)
	Filter(ctx context.Context, label string, filters []Filter, opts ListOptions) ([]atlas.Record, error)
	SearchAllFields(ctx context.Context, label string, terms []string) ([]atlas.Record, error)

	Search(ctx context.Context, term string, opts SearchOptions) ([]atlas.Record, error)
	SearchContrasts(ctx context.Context, term string) ([]ContrastHit, error)

	Creator(ctx context.Context, label, id string) (atlas.Record, error)
	LastEditor(ctx context.Context, id string) (atlas.Record, error)

	// Edges and Traverse expose raw graph reads to the traversal helpers.
	Edges(ctx context.Context, p graph.RelPattern) ([]graph.Triple, error)
	Traverse(ctx context.Context, label, id string, hops ...graph.Hop) ([]graph.Path, error)
}

type nodeRepo struct {
	g     graph.Backend
	reg   *atlas.Registry
	ids   *atlas.IDGenerator
	log   *logger.Logger
	links linkObserver
	now   func() time.Time
}

func NewNodeRepo(g graph.Backend, reg *atlas.Registry, log *logger.Logger, links LinkObserver) NodeRepo {
	r := &nodeRepo{
		g:     g,
		reg:   reg,
		log:   log.With("repo", "NodeRepo"),
		links: linkObserver{links},
		now:   time.Now,
	}
	r.ids = atlas.NewIDGenerator(reg, r.idExists)
	return r
}

func (r *nodeRepo) Registry() *atlas.Registry { return r.reg }

func (r *nodeRepo) idExists(ctx context.Context, id string) (bool, error) {
	found, err := r.g.FindNodes(ctx, graph.NodeQuery{
		Where: []graph.Predicate{{Field: "id", Op: graph.OpEquals, Value: id}},
		Limit: 1,
	})
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (r *nodeRepo) timestamp() int64 { return r.now().UnixMilli() }

func (r *nodeRepo) Create(ctx context.Context, label, name string, props map[string]any, actor *atlas.Actor) (atlas.Record, error) {
	if err := atlas.ValidateProps(props); err != nil {
		return nil, err
	}
	id, err := r.ids.Generate(ctx, label)
	if err != nil {
		return nil, err
	}
	ts := r.timestamp()
	all := make(map[string]any, len(props)+4)
	for k, v := range props {
		if v != nil {
			all[k] = v
		}
	}
	all["id"] = id
	all["name"] = name
	all["creation_time"] = ts
	all["last_updated"] = ts

	n, err := r.g.CreateNode(ctx, label, all)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	rec := atlas.Record(n.Props)
	if actor.Valid() {
		if err := r.recordCreate(ctx, actor, label, id); err != nil {
			return rec, fmt.Errorf("create %s %s: audit: %w", label, id, err)
		}
	}
	r.log.Debug("node created", "label", label, "id", id)
	return rec, nil
}

func (r *nodeRepo) Get(ctx context.Context, label, field string, value any, opts GetOptions) ([]atlas.Record, error) {
	if _, err := r.reg.Type(label); err != nil {
		return nil, err
	}
	found, err := r.g.FindNodes(ctx, graph.NodeQuery{
		Labels: []string{label},
		Where:  []graph.Predicate{{Field: defaultField(field), Op: graph.OpEquals, Value: value}},
	})
	if err != nil {
		return nil, fmt.Errorf("get %s by %s: %w", label, field, err)
	}
	out := make([]atlas.Record, 0, len(found))
	for _, n := range found {
		rec := atlas.Record(n.Props).Clone()
		if !opts.SkipRelations {
			rels, err := r.outgoing(ctx, label, n.ID(), opts.Relations)
			if err != nil {
				return nil, err
			}
			rec[relationsKey] = rels
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *nodeRepo) outgoing(ctx context.Context, label, id string, only []string) (map[string][]atlas.Record, error) {
	triples, err := r.g.MatchRelationships(ctx, graph.RelPattern{StartLabel: label, StartID: id}, 0)
	if err != nil {
		return nil, fmt.Errorf("relations of %s: %w", id, err)
	}
	groups := map[string][]atlas.Record{}
	for _, t := range triples {
		if len(only) > 0 && !contains(only, t.Rel.Type) {
			continue
		}
		rec := atlas.Record(t.End.Props).Clone()
		rec[relationshipTypeKey] = t.Rel.Type
		groups[t.Rel.Type] = append(groups[t.Rel.Type], rec)
	}
	return groups, nil
}

func (r *nodeRepo) GetOne(ctx context.Context, label, field string, value any, opts GetOptions) (atlas.Record, error) {
	recs, err := r.Get(ctx, label, field, value, opts)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &atlas.NotFoundError{Label: label, Field: defaultField(field), Value: value}
	}
	return recs[0], nil
}

// GetFull returns nil, nil when nothing matches. Relation types sharing a
// response key are merged under it.
func (r *nodeRepo) GetFull(ctx context.Context, label, field string, value any) (atlas.Record, error) {
	typ, err := r.reg.Type(label)
	if err != nil {
		return nil, err
	}
	found, err := r.g.FindNodes(ctx, graph.NodeQuery{
		Labels: []string{label},
		Where:  []graph.Predicate{{Field: defaultField(field), Op: graph.OpEquals, Value: value}},
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("get %s by %s: %w", label, field, err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	rec := atlas.Record(found[0].Props).Clone()
	rec["type"] = label
	id := found[0].ID()
	for _, rel := range typ.Relations {
		related, err := r.GetRelation(ctx, label, id, rel.Type, "")
		if err != nil {
			return nil, err
		}
		existing, _ := rec[rel.Key].([]atlas.Record)
		if existing == nil {
			existing = []atlas.Record{}
		}
		rec[rel.Key] = append(existing, related...)
	}
	return rec, nil
}

// Update merges updates into the node. A missing node is logged and ignored.
func (r *nodeRepo) Update(ctx context.Context, label, id string, updates map[string]any, actor *atlas.Actor) error {
	if _, err := r.reg.Type(label); err != nil {
		return err
	}
	if err := atlas.ValidateProps(updates); err != nil {
		return err
	}
	props := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		if k == "id" || k == "creation_time" {
			continue
		}
		props[k] = v
	}
	props["last_updated"] = r.timestamp()

	found, err := r.g.SetNodeProps(ctx, label, id, props)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", label, id, err)
	}
	if !found {
		r.log.Warn("update skipped: node not found", "label", label, "id", id)
		return nil
	}
	if actor.Valid() {
		if err := r.recordUpdate(ctx, actor, id); err != nil {
			return fmt.Errorf("update %s %s: audit: %w", label, id, err)
		}
	}
	return nil
}

// Delete detaches and removes a node. Used by compensating actions.
func (r *nodeRepo) Delete(ctx context.Context, label, id string) (bool, error) {
	ok, err := r.g.DeleteNode(ctx, label, id)
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", label, id, err)
	}
	if ok {
		r.log.Info("node deleted", "label", label, "id", id)
	}
	return ok, nil
}

func (r *nodeRepo) LabelOf(ctx context.Context, id string) (string, error) {
	n, ok, err := r.findByID(ctx, "", id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &atlas.NotFoundError{Field: "id", Value: id}
	}
	return n.Label(), nil
}

func (r *nodeRepo) findByID(ctx context.Context, label, id string) (graph.Node, bool, error) {
	q := graph.NodeQuery{
		Where: []graph.Predicate{{Field: "id", Op: graph.OpEquals, Value: id}},
		Limit: 1,
	}
	if label != "" {
		q.Labels = []string{label}
	}
	found, err := r.g.FindNodes(ctx, q)
	if err != nil {
		return graph.Node{}, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	if len(found) == 0 {
		return graph.Node{}, false, nil
	}
	return found[0], true, nil
}

// Link validates relType against the source type and creates the edge
// unless it already exists. The edge is returned either way.
func (r *nodeRepo) Link(ctx context.Context, srcLabel, srcID, destID, relType string, opts LinkOptions) (atlas.Edge, error) {
	typ, err := r.reg.Type(srcLabel)
	if err != nil {
		return atlas.Edge{}, err
	}
	def, ok := typ.Relation(relType)
	if !ok {
		r.links.observe(relType, "rejected")
		return atlas.Edge{}, &atlas.RelationError{Label: srcLabel, Relation: relType}
	}
	if err := atlas.ValidateProps(opts.Props); err != nil {
		r.links.observe(relType, "rejected")
		return atlas.Edge{}, err
	}
	fail := func(err error) (atlas.Edge, error) {
		r.links.observe(relType, "failed")
		return atlas.Edge{}, &atlas.LinkError{Source: srcID, Target: destID, Relation: relType, Err: err}
	}

	if _, ok, err := r.findByID(ctx, srcLabel, srcID); err != nil {
		return fail(err)
	} else if !ok {
		return fail(&atlas.NotFoundError{Label: srcLabel, Field: "id", Value: srcID})
	}
	dest, ok, err := r.findByID(ctx, opts.DestLabel, destID)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(&atlas.NotFoundError{Label: opts.DestLabel, Field: "id", Value: destID})
	}
	if len(def.Targets) > 0 && !contains(def.Targets, dest.Label()) {
		r.links.observe(relType, "rejected")
		return atlas.Edge{}, &atlas.RelationError{Label: srcLabel, Relation: relType, Target: dest.Label()}
	}

	rel, created, err := r.g.CreateRelationship(ctx, srcID, relType, destID, opts.Props)
	if err != nil {
		return fail(err)
	}
	outcome := "existing"
	if created {
		outcome = "created"
	}
	r.links.observe(relType, outcome)
	return atlas.Edge{
		Type:     rel.Type,
		SourceID: srcID,
		TargetID: destID,
		Props:    atlas.Record(rel.Props),
		Created:  created,
	}, nil
}

// Unlink removes at most one matching edge. A missing edge is not an error.
func (r *nodeRepo) Unlink(ctx context.Context, srcLabel, srcID, destID, relType, destLabel string) error {
	_, err := r.g.DeleteRelationships(ctx, graph.RelPattern{
		StartLabel: srcLabel, StartID: srcID, Type: relType, EndLabel: destLabel, EndID: destID,
	}, 1)
	if err != nil {
		return fmt.Errorf("unlink %s -[%s]-> %s: %w", srcID, relType, destID, err)
	}
	return nil
}

func (r *nodeRepo) UpdateLinkProperties(ctx context.Context, srcLabel, srcID, destID, relType, destLabel string, props map[string]any) error {
	if err := atlas.ValidateProps(props); err != nil {
		return err
	}
	n, err := r.g.SetRelationshipProps(ctx, graph.RelPattern{
		StartLabel: srcLabel, StartID: srcID, Type: relType, EndLabel: destLabel, EndID: destID,
	}, props)
	if err != nil {
		return fmt.Errorf("update link %s -[%s]-> %s: %w", srcID, relType, destID, err)
	}
	if n == 0 {
		return &atlas.NotFoundError{Label: relType, Field: "edge", Value: srcID + "->" + destID}
	}
	return nil
}

// GetRelation returns the nodes id points at through relType, tagged with
// the relation.
func (r *nodeRepo) GetRelation(ctx context.Context, label, id, relType, targetLabel string) ([]atlas.Record, error) {
	triples, err := r.g.MatchRelationships(ctx, graph.RelPattern{
		StartLabel: label, StartID: id, Type: relType, EndLabel: targetLabel,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("relation %s of %s: %w", relType, id, err)
	}
	out := make([]atlas.Record, 0, len(triples))
	for _, t := range triples {
		rec := atlas.Record(t.End.Props).Clone()
		rec[relationshipKey] = relType
		out = append(out, rec)
	}
	return out, nil
}

// GetReverseRelation returns the nodes pointing at id through relType.
func (r *nodeRepo) GetReverseRelation(ctx context.Context, label, id, relType, sourceLabel string) ([]atlas.Record, error) {
	triples, err := r.g.MatchRelationships(ctx, graph.RelPattern{
		StartLabel: sourceLabel, Type: relType, EndLabel: label, EndID: id,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("reverse relation %s of %s: %w", relType, id, err)
	}
	out := make([]atlas.Record, 0, len(triples))
	for _, t := range triples {
		rec := atlas.Record(t.Start.Props).Clone()
		rec[relationshipKey] = relType
		out = append(out, rec)
	}
	return out, nil
}

func (r *nodeRepo) Edges(ctx context.Context, p graph.RelPattern) ([]graph.Triple, error) {
	triples, err := r.g.MatchRelationships(ctx, p, 0)
	if err != nil {
		return nil, fmt.Errorf("match %s edges: %w", p.Type, err)
	}
	return triples, nil
}

func (r *nodeRepo) Traverse(ctx context.Context, label, id string, hops ...graph.Hop) ([]graph.Path, error) {
	paths, err := r.g.Traverse(ctx, label, id, hops)
	if err != nil {
		return nil, fmt.Errorf("traverse from %s: %w", id, err)
	}
	return paths, nil
}

func (r *nodeRepo) Count(ctx context.Context, label string) (int64, error) {
	if _, err := r.reg.Type(label); err != nil {
		return 0, err
	}
	return r.g.CountNodes(ctx, label)
}

func (r *nodeRepo) All(ctx context.Context, label string, opts ListOptions) ([]atlas.Record, error) {
	return r.list(ctx, label, nil, opts)
}

func (r *nodeRepo) Filter(ctx context.Context, label string, filters []Filter, opts ListOptions) ([]atlas.Record, error) {
	preds := make([]graph.Predicate, 0, len(filters))
	for _, f := range filters {
		p := graph.Predicate{Field: f.Field, Value: f.Value}
		switch f.Op {
		case FilterStartsWith:
			p.Op = graph.OpStartsWith
		case FilterContains:
			p.Op = graph.OpContains
		case FilterEquals:
			p.Op = graph.OpEquals
		default:
			return nil, fmt.Errorf("%w: unsupported filter %q", atlas.ErrInvalidArgument, f.Op)
		}
		if strings.TrimSpace(f.Field) == "" {
			return nil, fmt.Errorf("%w: filter field required", atlas.ErrInvalidArgument)
		}
		preds = append(preds, p)
	}
	return r.list(ctx, label, preds, opts)
}

func (r *nodeRepo) list(ctx context.Context, label string, where []graph.Predicate, opts ListOptions) ([]atlas.Record, error) {
	typ, err := r.reg.Type(label)
	if err != nil {
		return nil, err
	}
	found, err := r.g.FindNodes(ctx, graph.NodeQuery{
		Labels:  []string{label},
		Where:   where,
		OrderBy: opts.OrderBy,
		Desc:    opts.Desc,
		Limit:   opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", label, err)
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = typ.Fields
	}
	return project(found, fields), nil
}

// SearchAllFields ORs a case-insensitive substring match over every
// declared field and term. Each node appears once.
func (r *nodeRepo) SearchAllFields(ctx context.Context, label string, terms []string) ([]atlas.Record, error) {
	typ, err := r.reg.Type(label)
	if err != nil {
		return nil, err
	}
	var or []graph.Predicate
	for _, f := range typ.Fields {
		for _, term := range terms {
			if strings.TrimSpace(term) == "" {
				continue
			}
			or = append(or, graph.Predicate{Field: f, Op: graph.OpContains, Value: term})
		}
	}
	if len(or) == 0 {
		return []atlas.Record{}, nil
	}
	found, err := r.g.FindNodes(ctx, graph.NodeQuery{Labels: []string{label}, Any: or})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", label, err)
	}
	return project(dedupe(found), typ.Fields), nil
}

func project(nodes []graph.Node, fields []string) []atlas.Record {
	out := make([]atlas.Record, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, atlas.Record(n.Props).Project(fields))
	}
	return out
}

func dedupe(nodes []graph.Node) []graph.Node {
	seen := make(map[string]struct{}, len(nodes))
	out := nodes[:0]
	for _, n := range nodes {
		if _, ok := seen[n.ElementID]; ok {
			continue
		}
		seen[n.ElementID] = struct{}{}
		out = append(out, n)
	}
	return out
}

func defaultField(field string) string {
	if strings.TrimSpace(field) == "" {
		return "id"
	}
	return field
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type linkObserver struct{ LinkObserver }

func (o linkObserver) observe(relation, outcome string) {
	if o.LinkObserver != nil {
		o.IncLink(relation, outcome)
	}
}

// IsNotFound reports whether err means a lookup found nothing.
func IsNotFound(err error) bool { return errors.Is(err, atlas.ErrNotFound) }
