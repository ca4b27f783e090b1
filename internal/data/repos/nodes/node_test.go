package nodes

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poldracklab/cogat/internal/data/graph"
	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

type countingLinks struct{ outcomes map[string]int }

func (c *countingLinks) IncLink(_, outcome string) { c.outcomes[outcome]++ }

func newTestRepo(t *testing.T) (NodeRepo, *countingLinks) {
	t.Helper()
	reg, err := atlas.DefaultRegistry()
	require.NoError(t, err)
	links := &countingLinks{outcomes: map[string]int{}}
	return NewNodeRepo(graph.NewMemoryBackend(), reg, logger.Nop(), links), links
}

func mustCreate(t *testing.T, repo NodeRepo, label, name string, props map[string]any) atlas.Record {
	t.Helper()
	rec, err := repo.Create(context.Background(), label, name, props, nil)
	require.NoError(t, err)
	return rec
}

func mustLink(t *testing.T, repo NodeRepo, srcLabel, srcID, destID, relType string, props map[string]any) {
	t.Helper()
	_, err := repo.Link(context.Background(), srcLabel, srcID, destID, relType, LinkOptions{Props: props})
	require.NoError(t, err)
}

func TestCreateAssignsRegisteredPrefix(t *testing.T) {
	repo, _ := newTestRepo(t)
	for label, prefix := range repo.Registry().Prefixes() {
		rec := mustCreate(t, repo, label, "node "+label, nil)
		assert.True(t, strings.HasPrefix(rec.ID(), prefix+"_"), "%s id %q", label, rec.ID())
		assert.Equal(t, rec["creation_time"], rec["last_updated"])
	}
}

func TestCreateUserTypeFails(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Create(context.Background(), "user", "someone", nil, nil)
	require.ErrorIs(t, err, atlas.ErrUnknownEntityType)

	_, err = repo.Create(context.Background(), "spaceship", "x", nil, nil)
	require.ErrorIs(t, err, atlas.ErrUnknownEntityType)
}

func TestCreateGetFullRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	props := map[string]any{"definition_text": "Name the ink color.", "id": "ignored"}
	created := mustCreate(t, repo, "task", "Stroop Task", props)
	require.NotEqual(t, "ignored", created.ID())

	full, err := repo.GetFull(ctx, "task", "id", created.ID())
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, "Stroop Task", full.Name())
	assert.Equal(t, "Name the ink color.", full["definition_text"])
	assert.Equal(t, "task", full["type"])
	assert.NotNil(t, full["conditions"])
	assert.Empty(t, full["conditions"])

	missing, err := repo.GetFull(ctx, "task", "id", "tsk_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetByAlternateFieldGroupsRelations(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	task := mustCreate(t, repo, "task", "Go/No-Go", nil)
	cond := mustCreate(t, repo, "condition", "Go", nil)
	mustLink(t, repo, "task", task.ID(), cond.ID(), "HASCONDITION", nil)

	recs, err := repo.Get(ctx, "task", "name", "Go/No-Go", GetOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rels, ok := recs[0][relationsKey].(map[string][]atlas.Record)
	require.True(t, ok)
	require.Len(t, rels["HASCONDITION"], 1)
	assert.Equal(t, "HASCONDITION", rels["HASCONDITION"][0][relationshipTypeKey])

	recs, err = repo.Get(ctx, "task", "name", "Go/No-Go", GetOptions{Relations: []string{"ASSERTS"}})
	require.NoError(t, err)
	assert.Empty(t, recs[0][relationsKey])

	recs, err = repo.Get(ctx, "task", "", task.ID(), GetOptions{SkipRelations: true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotContains(t, recs[0], relationsKey)

	none, err := repo.Get(ctx, "task", "name", "nothing", GetOptions{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGetOneNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.GetOne(context.Background(), "concept", "id", "trm_missing", GetOptions{})
	require.ErrorIs(t, err, atlas.ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestLinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, links := newTestRepo(t)
	task := mustCreate(t, repo, "task", "Stop Signal Task", nil)
	contrast := mustCreate(t, repo, "contrast", "stop vs go", nil)

	first, err := repo.Link(ctx, "task", task.ID(), contrast.ID(), "HASCONTRAST", LinkOptions{})
	require.NoError(t, err)
	assert.True(t, first.Created)
	second, err := repo.Link(ctx, "task", task.ID(), contrast.ID(), "HASCONTRAST", LinkOptions{DestLabel: "contrast"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "HASCONTRAST", second.Type)

	edges, err := repo.Edges(ctx, graph.RelPattern{StartID: task.ID(), Type: "HASCONTRAST"})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
	assert.Equal(t, 1, links.outcomes["created"])
	assert.Equal(t, 1, links.outcomes["existing"])
}

func TestLinkRejectsUndeclaredRelation(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	task := mustCreate(t, repo, "task", "n-back", nil)
	concept := mustCreate(t, repo, "concept", "working memory", nil)

	_, err := repo.Link(ctx, "task", task.ID(), concept.ID(), "PARTOF", LinkOptions{})
	require.ErrorIs(t, err, atlas.ErrInvalidRelation)
	var relErr *atlas.RelationError
	require.True(t, errors.As(err, &relErr))
	assert.Equal(t, "PARTOF", relErr.Relation)

	edges, err := repo.Edges(ctx, graph.RelPattern{StartID: task.ID()})
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestLinkRejectsUndeclaredTarget(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	task := mustCreate(t, repo, "task", "n-back", nil)
	concept := mustCreate(t, repo, "concept", "working memory", nil)

	_, err := repo.Link(ctx, "task", task.ID(), concept.ID(), "HASCONDITION", LinkOptions{})
	var relErr *atlas.RelationError
	require.True(t, errors.As(err, &relErr))
	assert.Equal(t, "concept", relErr.Target)
}

func TestLinkMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	task := mustCreate(t, repo, "task", "n-back", nil)

	_, err := repo.Link(ctx, "task", task.ID(), "cnt_missing", "HASCONTRAST", LinkOptions{})
	require.ErrorIs(t, err, atlas.ErrLinkFailure)
	require.ErrorIs(t, err, atlas.ErrNotFound)

	_, err = repo.Link(ctx, "task", "tsk_missing", task.ID(), "HASCONTRAST", LinkOptions{})
	require.ErrorIs(t, err, atlas.ErrLinkFailure)

	contrast := mustCreate(t, repo, "contrast", "c", nil)
	_, err = repo.Link(ctx, "task", task.ID(), contrast.ID(), "HASCONTRAST", LinkOptions{DestLabel: "condition"})
	require.ErrorIs(t, err, atlas.ErrLinkFailure)
}

func TestSelfReferentialISAIsAllowed(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	depression := mustCreate(t, repo, "disorder", "Depression", nil)

	edge, err := repo.Link(ctx, "disorder", depression.ID(), depression.ID(), "ISA", LinkOptions{})
	require.NoError(t, err)
	assert.True(t, edge.Created)
	assert.Equal(t, edge.SourceID, edge.TargetID)
}

func TestUpdateMergesAndKeepsSingleUpdatedEdge(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	r := repo.(*nodeRepo)
	clock := time.UnixMilli(1_000)
	r.now = func() time.Time { return clock }

	creator := &atlas.Actor{ID: "u-1", Username: "ada"}
	concept, err := repo.Create(ctx, "concept", "attention", map[string]any{"alias": "focus"}, creator)
	require.NoError(t, err)

	for _, id := range []string{"u-2", "u-3", "u-4"} {
		clock = clock.Add(time.Second)
		require.NoError(t, repo.Update(ctx, "concept", concept.ID(), map[string]any{"definition_text": "by " + id}, &atlas.Actor{ID: id}))
	}

	edges, err := repo.Edges(ctx, graph.RelPattern{StartLabel: "user", Type: "UPDATED", EndID: concept.ID()})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "u-4", edges[0].Start.ID())

	editor, err := repo.LastEditor(ctx, concept.ID())
	require.NoError(t, err)
	assert.Equal(t, "u-4", editor.ID())
	who, err := repo.Creator(ctx, "concept", concept.ID())
	require.NoError(t, err)
	assert.Equal(t, "ada", who[usernameKey])

	got, err := repo.GetOne(ctx, "concept", "id", concept.ID(), GetOptions{SkipRelations: true})
	require.NoError(t, err)
	assert.Equal(t, "focus", got["alias"])
	assert.Equal(t, "by u-4", got["definition_text"])
	assert.Equal(t, int64(1_000), got["creation_time"])
	assert.Equal(t, clock.UnixMilli(), got["last_updated"])
}

func TestUpdateMissingIsNoop(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.Update(context.Background(), "concept", "trm_missing", map[string]any{"name": "x"}, &atlas.Actor{ID: "u-1"})
	require.NoError(t, err)
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	a := mustCreate(t, repo, "concept", "a", nil)
	b := mustCreate(t, repo, "concept", "b", nil)

	require.NoError(t, repo.Unlink(ctx, "concept", a.ID(), b.ID(), "PARTOF", ""))

	mustLink(t, repo, "concept", a.ID(), b.ID(), "PARTOF", nil)
	require.NoError(t, repo.Unlink(ctx, "concept", a.ID(), b.ID(), "PARTOF", "concept"))
	rel, err := repo.GetRelation(ctx, "concept", a.ID(), "PARTOF", "")
	require.NoError(t, err)
	assert.Empty(t, rel)
}

func TestRelationReverseSymmetry(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	a := mustCreate(t, repo, "concept", "visual attention", nil)
	b := mustCreate(t, repo, "concept", "attention", nil)
	mustLink(t, repo, "concept", a.ID(), b.ID(), "PARTOF", nil)

	forward, err := repo.GetRelation(ctx, "concept", a.ID(), "PARTOF", "")
	require.NoError(t, err)
	require.Len(t, forward, 1)
	assert.Equal(t, b.ID(), forward[0].ID())
	assert.Equal(t, "PARTOF", forward[0][relationshipKey])

	reverse, err := repo.GetReverseRelation(ctx, "concept", b.ID(), "PARTOF", "")
	require.NoError(t, err)
	require.Len(t, reverse, 1)
	assert.Equal(t, a.ID(), reverse[0].ID())
}

func TestUpdateLinkProperties(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cond := mustCreate(t, repo, "condition", "incongruent", nil)
	contrast := mustCreate(t, repo, "contrast", "incongruent - congruent", nil)
	mustLink(t, repo, "condition", cond.ID(), contrast.ID(), "HASCONTRAST", map[string]any{"weight": 1.0})

	require.NoError(t, repo.UpdateLinkProperties(ctx, "condition", cond.ID(), contrast.ID(), "HASCONTRAST", "contrast", map[string]any{"weight": -1.0}))
	edges, err := repo.Edges(ctx, graph.RelPattern{StartID: cond.ID(), Type: "HASCONTRAST"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, -1.0, edges[0].Rel.Props["weight"])

	err = repo.UpdateLinkProperties(ctx, "condition", cond.ID(), "cnt_missing", "HASCONTRAST", "", map[string]any{"weight": 2.0})
	require.ErrorIs(t, err, atlas.ErrNotFound)
}

func TestListingOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	for _, name := range []string{"beta", "Alpha", "attention", "Zeta"} {
		mustCreate(t, repo, "concept", name, map[string]any{"definition_text": "d"})
	}

	n, err := repo.Count(ctx, "concept")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	all, err := repo.All(ctx, "concept", ListOptions{OrderBy: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "attention", "beta", "Zeta"}, names(all))
	assert.NotContains(t, all[0], "creation_time")

	desc, err := repo.All(ctx, "concept", ListOptions{OrderBy: "name", Desc: true, Limit: 2, Fields: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Zeta", "beta"}, names(desc))
	assert.NotContains(t, desc[0], "id")

	byA, err := repo.Filter(ctx, "concept", []Filter{{Field: "name", Op: FilterStartsWith, Value: "A"}}, ListOptions{OrderBy: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "attention"}, names(byA))

	_, err = repo.Filter(ctx, "concept", []Filter{{Field: "name", Op: "regex", Value: ".*"}}, ListOptions{})
	require.ErrorIs(t, err, atlas.ErrInvalidArgument)
}

func TestSearchAllFieldsDeduplicates(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	mustCreate(t, repo, "concept", "memory span", map[string]any{"definition_text": "span of memory", "alias": "Memory"})
	mustCreate(t, repo, "concept", "attention", nil)

	hits, err := repo.SearchAllFields(ctx, "concept", []string{"MEMORY", "span"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "memory span", hits[0].Name())
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	task := mustCreate(t, repo, "task", "Stop Signal Task", nil)
	mustCreate(t, repo, "citation", "a task citation", nil)

	for _, term := range []string{"task", "TASK", "TaSk"} {
		hits, err := repo.Search(ctx, term, SearchOptions{})
		require.NoError(t, err)
		require.Len(t, hits, 1, term)
		assert.Equal(t, task.ID(), hits[0].ID())
		assert.Equal(t, "task", hits[0]["label"])
	}
}

func TestSearchTreatsInputLiterally(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	mustCreate(t, repo, "concept", "set (shifting)", nil)
	mustCreate(t, repo, "concept", "shifting", nil)

	hits, err := repo.Search(ctx, "(shift", SearchOptions{Label: "concept", Fields: []string{"name"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "set (shifting)", hits[0].Name())

	_, err = repo.Search(ctx, "x", SearchOptions{Label: "spaceship"})
	require.ErrorIs(t, err, atlas.ErrUnknownEntityType)
}

func TestSearchContrasts(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	task := mustCreate(t, repo, "task", "Stroop Task", nil)
	cond := mustCreate(t, repo, "condition", "incongruent", nil)
	direct := mustCreate(t, repo, "contrast", "color naming", nil)
	viaCond := mustCreate(t, repo, "contrast", "interference", nil)
	mustLink(t, repo, "task", task.ID(), direct.ID(), "HASCONTRAST", nil)
	mustLink(t, repo, "task", task.ID(), cond.ID(), "HASCONDITION", nil)
	mustLink(t, repo, "condition", cond.ID(), viaCond.ID(), "HASCONTRAST", nil)

	hits, err := repo.SearchContrasts(ctx, "stroop")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = repo.SearchContrasts(ctx, "INTERFER")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ContrastHit{TaskID: task.ID(), TaskName: "Stroop Task", ContrastID: viaCond.ID(), ContrastName: "interference"}, hits[0])
}

func TestLabelOfAndDelete(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	theory := mustCreate(t, repo, "theory", "dual process", nil)

	label, err := repo.LabelOf(ctx, theory.ID())
	require.NoError(t, err)
	assert.Equal(t, "theory", label)

	ok, err := repo.Delete(ctx, "theory", theory.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = repo.LabelOf(ctx, theory.ID())
	require.ErrorIs(t, err, atlas.ErrNotFound)
}

func names(recs []atlas.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name())
	}
	return out
}

func TestPropertyValuesMustBeScalar(t *testing.T) {
	ctx := context.Background()
	repo, links := newTestRepo(t)

	nested := map[string]any{"definition_text": map[string]any{"nested": []any{1, map[string]any{"x": 2}}}}
	_, err := repo.Create(ctx, "concept", "nested", nested, nil)
	require.ErrorIs(t, err, atlas.ErrInvalidArgument)
	var perr *atlas.PropertyError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Fields, "definition_text")

	n, err := repo.Count(ctx, "concept")
	require.NoError(t, err)
	assert.Zero(t, n)

	task := mustCreate(t, repo, "task", "stroop", map[string]any{"alias": []any{"color word"}})
	concept := mustCreate(t, repo, "concept", "inhibition", nil)

	err = repo.Update(ctx, "task", task.ID(), map[string]any{"alias": []any{"a", 1}}, nil)
	require.ErrorIs(t, err, atlas.ErrInvalidArgument)
	got, err := repo.GetOne(ctx, "task", "id", task.ID(), GetOptions{SkipRelations: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"color word"}, got["alias"])

	_, err = repo.Link(ctx, "task", task.ID(), concept.ID(), "ASSERTS", LinkOptions{Props: map[string]any{"meta": []any{[]any{"x"}}}})
	require.ErrorIs(t, err, atlas.ErrInvalidArgument)
	assert.Equal(t, 1, links.outcomes["rejected"])

	mustLink(t, repo, "task", task.ID(), concept.ID(), "ASSERTS", map[string]any{"weight": 1.5})
	err = repo.UpdateLinkProperties(ctx, "task", task.ID(), concept.ID(), "ASSERTS", "concept", map[string]any{"weight": map[string]any{}})
	require.ErrorIs(t, err, atlas.ErrInvalidArgument)
}
