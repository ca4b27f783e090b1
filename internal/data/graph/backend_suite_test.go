package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBackendSuite exercises a Backend through the contract the node store
// relies on. Every node carries a per-run "suite" property so the suite can
// run against a shared database.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("FindNodes", func(t *testing.T) { testFindNodes(t, newBackend(t)) })
	t.Run("OrderByFieldType", func(t *testing.T) { testOrderByFieldType(t, newBackend(t)) })
	t.Run("ContainsFoldsUnicode", func(t *testing.T) { testContainsFoldsUnicode(t, newBackend(t)) })
	t.Run("CreateRelationshipIsIdempotent", func(t *testing.T) { testCreateRelationshipIdempotent(t, newBackend(t)) })
	t.Run("CreateRelationshipMissingEndpoint", func(t *testing.T) { testCreateRelationshipMissing(t, newBackend(t)) })
	t.Run("RelationshipProps", func(t *testing.T) { testRelationshipProps(t, newBackend(t)) })
	t.Run("DeleteRelationshipsLimit", func(t *testing.T) { testDeleteRelationshipsLimit(t, newBackend(t)) })
	t.Run("Traverse", func(t *testing.T) { testTraverse(t, newBackend(t)) })
	t.Run("NodeProps", func(t *testing.T) { testNodeProps(t, newBackend(t)) })
	t.Run("DeleteNodeDetaches", func(t *testing.T) { testDeleteNodeDetaches(t, newBackend(t)) })
}

type fixture struct {
	t     *testing.T
	b     Backend
	suite string
	ids   []string
}

func newFixture(t *testing.T, b Backend) *fixture {
	f := &fixture{t: t, b: b, suite: uuid.NewString()}
	t.Cleanup(func() {
		for _, id := range f.ids {
			_, _ = b.DeleteNode(context.Background(), "", id)
		}
	})
	return f
}

func (f *fixture) id(s string) string { return f.suite[:8] + "_" + s }

func (f *fixture) node(label, id, name string, extra map[string]any) Node {
	f.t.Helper()
	props := map[string]any{"id": f.id(id), "name": name, "suite": f.suite}
	for k, v := range extra {
		props[k] = v
	}
	n, err := f.b.CreateNode(context.Background(), label, props)
	require.NoError(f.t, err)
	f.ids = append(f.ids, f.id(id))
	return n
}

func (f *fixture) link(from, rel, to string, props map[string]any) Relationship {
	f.t.Helper()
	r, _, err := f.b.CreateRelationship(context.Background(), f.id(from), rel, f.id(to), props)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) scoped(q NodeQuery) NodeQuery {
	q.Where = append([]Predicate{{Field: "suite", Op: OpEquals, Value: f.suite}}, q.Where...)
	return q
}

func names(nodes []Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Props["name"].(string))
	}
	return out
}

func testFindNodes(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("concept", "c1", "working memory", nil)
	f.node("concept", "c2", "Attention", nil)
	f.node("concept", "c3", "a.b literal", nil)
	f.node("task", "t1", "Stroop task", nil)

	got, err := b.FindNodes(ctx, f.scoped(NodeQuery{Labels: []string{"concept"}, OrderBy: "name"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b literal", "Attention", "working memory"}, names(got))

	got, err = b.FindNodes(ctx, f.scoped(NodeQuery{
		Labels: []string{"concept"},
		Where:  []Predicate{{Field: "name", Op: OpStartsWith, Value: "WORK"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"working memory"}, names(got))

	got, err = b.FindNodes(ctx, f.scoped(NodeQuery{Any: []Predicate{{Field: "name", Op: OpContains, Value: "a.b"}}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b literal"}, names(got))

	got, err = b.FindNodes(ctx, f.scoped(NodeQuery{Any: []Predicate{{Field: "name", Op: OpContains, Value: "a+b"}}}))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = b.FindNodes(ctx, f.scoped(NodeQuery{
		Labels: []string{"concept", "task"},
		Any: []Predicate{
			{Field: "name", Op: OpContains, Value: "stroop"},
			{Field: "name", Op: OpContains, Value: "ATTEN"},
		},
		OrderBy: "name",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Attention", "Stroop task"}, names(got))

	got, err = b.FindNodes(ctx, f.scoped(NodeQuery{
		Where:   []Predicate{{Field: "id", Op: OpIn, Value: []string{f.id("c1"), f.id("t1")}}},
		OrderBy: "name",
		Desc:    true,
		Limit:   1,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"working memory"}, names(got))

	_, err = b.FindNodes(ctx, NodeQuery{Labels: []string{"bad label"}})
	assert.Error(t, err)
}

func testOrderByFieldType(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("concept_class", "k10", "ten", map[string]any{"display_order": int64(10)})
	f.node("concept_class", "k2", "two", map[string]any{"display_order": int64(2)})
	f.node("concept_class", "k1", "one", map[string]any{"display_order": int64(1)})
	f.node("concept_class", "kx", "unordered", nil)

	got, err := b.FindNodes(ctx, f.scoped(NodeQuery{Labels: []string{"concept_class"}, OrderBy: "display_order"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "ten", "unordered"}, names(got))

	got, err = b.FindNodes(ctx, f.scoped(NodeQuery{Labels: []string{"concept_class"}, OrderBy: "display_order", Desc: true}))
	require.NoError(t, err)
	assert.Equal(t, []string{"unordered", "ten", "two", "one"}, names(got))
}

func testContainsFoldsUnicode(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("task", "t1", "Étude de mémoire", nil)

	got, err := b.FindNodes(ctx, f.scoped(NodeQuery{Any: []Predicate{{Field: "name", Op: OpContains, Value: "ÉTUDE DE MÉM"}}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Étude de mémoire"}, names(got))
}

func testCreateRelationshipIdempotent(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("task", "t", "task", nil)
	f.node("contrast", "k", "contrast", nil)

	r1, created, err := b.CreateRelationship(ctx, f.id("t"), "HASCONTRAST", f.id("k"), nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, f.id("t"), r1.StartID)
	assert.Equal(t, f.id("k"), r1.EndID)

	r2, created, err := b.CreateRelationship(ctx, f.id("t"), "HASCONTRAST", f.id("k"), nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, r1.ElementID, r2.ElementID)

	triples, err := b.MatchRelationships(ctx, RelPattern{StartID: f.id("t"), Type: "HASCONTRAST"}, 0)
	require.NoError(t, err)
	assert.Len(t, triples, 1)

	_, _, err = b.CreateRelationship(ctx, f.id("t"), "HAS CONTRAST", f.id("k"), nil)
	assert.Error(t, err)
}

func testCreateRelationshipMissing(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("task", "t", "task", nil)

	_, _, err := b.CreateRelationship(ctx, f.id("t"), "HASCONTRAST", f.id("ghost"), nil)
	assert.True(t, errors.Is(err, ErrNodeMissing), "err = %v", err)
}

func testRelationshipProps(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("condition", "c", "incongruent", nil)
	f.node("contrast", "k", "incongruent - congruent", nil)
	f.link("c", "HASCONTRAST", "k", map[string]any{"weight": 1.0})

	n, err := b.SetRelationshipProps(ctx, RelPattern{StartID: f.id("c"), Type: "HASCONTRAST", EndID: f.id("k")}, map[string]any{"weight": -1.0})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	triples, err := b.MatchRelationships(ctx, RelPattern{StartLabel: "condition", StartID: f.id("c"), EndLabel: "contrast"}, 0)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, -1.0, triples[0].Rel.Props["weight"])
	assert.Equal(t, "incongruent", triples[0].Start.Props["name"])
	assert.Equal(t, "contrast", triples[0].End.Label())
}

func testDeleteRelationshipsLimit(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("user", "u", "u", nil)
	f.node("concept", "a", "a", nil)
	f.node("concept", "b", "b", nil)
	f.link("u", "UPDATED", "a", nil)
	f.link("u", "UPDATED", "b", nil)

	n, err := b.DeleteRelationships(ctx, RelPattern{StartID: f.id("u"), Type: "UPDATED"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.DeleteRelationships(ctx, RelPattern{StartID: f.id("u"), Type: "UPDATED"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.DeleteRelationships(ctx, RelPattern{StartID: f.id("u"), Type: "UPDATED"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testTraverse(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("task", "t", "Stroop", nil)
	f.node("condition", "inc", "incongruent", nil)
	f.node("condition", "con", "congruent", nil)
	f.node("contrast", "k", "incongruent - congruent", nil)
	f.link("t", "HASCONDITION", "inc", nil)
	f.link("t", "HASCONDITION", "con", nil)
	f.link("inc", "HASCONTRAST", "k", map[string]any{"weight": 1.0})
	f.link("con", "HASCONTRAST", "k", map[string]any{"weight": -1.0})

	paths, err := b.Traverse(ctx, "task", f.id("t"), []Hop{
		{Type: "HASCONDITION", Dir: Outgoing, Label: "condition"},
		{Type: "HASCONTRAST", Dir: Outgoing, Label: "contrast"},
	})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		require.Len(t, p.Nodes, 3)
		require.Len(t, p.Rels, 2)
		assert.Equal(t, f.id("k"), p.Last().ID())
		assert.Equal(t, p.Nodes[1].ID(), p.Rels[1].StartID)
	}

	paths, err = b.Traverse(ctx, "contrast", f.id("k"), []Hop{
		{Type: "HASCONTRAST", Dir: Incoming, Label: "condition"},
		{Type: "HASCONDITION", Dir: Incoming, Label: "task"},
	})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, f.id("t"), paths[0].Last().ID())

	paths, err = b.Traverse(ctx, "concept", f.id("t"), []Hop{{Type: "HASCONDITION", Dir: Outgoing}})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func testNodeProps(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("concept", "c", "old", map[string]any{"definition_text": "x"})

	ok, err := b.SetNodeProps(ctx, "concept", f.id("c"), map[string]any{"name": "new", "definition_text": nil, "id": "hijack"})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := b.FindNodes(ctx, f.scoped(NodeQuery{Where: []Predicate{{Field: "id", Op: OpEquals, Value: f.id("c")}}}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Props["name"])
	_, has := got[0].Props["definition_text"]
	assert.False(t, has)

	ok, err = b.SetNodeProps(ctx, "concept", f.id("missing"), map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.SetNodeProps(ctx, "task", f.id("c"), map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := b.CountNodes(ctx, "concept")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, int64(1))
}

func testDeleteNodeDetaches(t *testing.T, b Backend) {
	ctx := context.Background()
	f := newFixture(t, b)
	f.node("task", "t", "t", nil)
	f.node("contrast", "k", "k", nil)
	f.link("t", "HASCONTRAST", "k", nil)

	ok, err := b.DeleteNode(ctx, "contrast", f.id("k"))
	require.NoError(t, err)
	assert.True(t, ok)

	triples, err := b.MatchRelationships(ctx, RelPattern{StartID: f.id("t")}, 0)
	require.NoError(t, err)
	assert.Empty(t, triples)

	ok, err = b.DeleteNode(ctx, "contrast", f.id("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}
