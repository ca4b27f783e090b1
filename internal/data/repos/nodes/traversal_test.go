package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poldracklab/cogat/internal/domain/atlas"
)

func TestTaskContrastsWithConditions(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	task := mustCreate(t, repo, "task", "Stroop Task", nil)
	cond := mustCreate(t, repo, "condition", "Congruent", nil)
	contrast := mustCreate(t, repo, "contrast", "Congruent vs Incongruent", nil)
	mustLink(t, repo, "task", task.ID(), cond.ID(), "HASCONDITION", nil)
	mustLink(t, repo, "condition", cond.ID(), contrast.ID(), "HASCONTRAST", map[string]any{"weight": 1.0})

	got, err := cat.Task.Contrasts(ctx, task.ID())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, contrast.ID(), got[0].Contrast.ID())
	require.Len(t, got[0].Conditions, 1)
	assert.Equal(t, cond.ID(), got[0].Conditions[0].Condition.ID())
	w, ok := got[0].Conditions[0].Weight()
	require.True(t, ok)
	assert.Equal(t, 1.0, w)

	// A direct HASCONTRAST to the same contrast does not duplicate it.
	mustLink(t, repo, "task", task.ID(), contrast.ID(), "HASCONTRAST", nil)
	got, err = cat.Task.Contrasts(ctx, task.ID())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTaskDisordersComeFromDifferenceEdge(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	task := mustCreate(t, repo, "task", "reversal learning", nil)
	contrast := mustCreate(t, repo, "contrast", "reversal - acquisition", nil)
	disorder := mustCreate(t, repo, "disorder", "Obsessive-Compulsive Disorder", map[string]any{"id_user": "u-9"})
	mustLink(t, repo, "task", task.ID(), contrast.ID(), "HASCONTRAST", nil)
	mustLink(t, repo, "contrast", contrast.ID(), disorder.ID(), "HASDIFFERENCE", map[string]any{
		"id":          "dif_1",
		"name":        "OCD vs controls",
		"event_stamp": "2016-01-02",
	})

	got, err := cat.Task.Disorders(ctx, task.ID())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, TaskDisorder{
		ID:         "dif_1",
		Name:       "OCD vs controls",
		EventStamp: "2016-01-02",
		IDContrast: contrast.ID(),
		IDDisorder: disorder.ID(),
		IDTask:     task.ID(),
		IDUser:     "u-9",
	}, got[0])
}

func TestTaskMeasuredBy(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	task := mustCreate(t, repo, "task", "delay discounting", nil)
	c1 := mustCreate(t, repo, "contrast", "immediate - delayed", nil)
	c2 := mustCreate(t, repo, "contrast", "choice", nil)
	trait := mustCreate(t, repo, "trait", "impulsivity", nil)
	mustLink(t, repo, "task", task.ID(), c1.ID(), "HASCONTRAST", nil)
	mustLink(t, repo, "task", task.ID(), c2.ID(), "HASCONTRAST", nil)
	mustLink(t, repo, "trait", trait.ID(), c1.ID(), "MEASUREDBY", nil)
	mustLink(t, repo, "trait", trait.ID(), c2.ID(), "MEASUREDBY", nil)

	got, err := cat.Task.MeasuredBy(ctx, task.ID(), "trait")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, trait.ID(), got[0].Phenotype.ID())
	assert.Len(t, got[0].Contrasts, 2)

	behaviors, err := cat.Task.MeasuredBy(ctx, task.ID(), "behavior")
	require.NoError(t, err)
	assert.Empty(t, behaviors)

	_, err = cat.Task.MeasuredBy(ctx, task.ID(), "battery")
	require.Error(t, err)
}

func TestTaskGetFullReplacesViews(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	task := mustCreate(t, repo, "task", "n-back", nil)
	contrast := mustCreate(t, repo, "contrast", "2-back - 0-back", nil)
	other := mustCreate(t, repo, "contrast", "unrelated", nil)
	concept := mustCreate(t, repo, "concept", "working memory", nil)
	mustLink(t, repo, "task", task.ID(), contrast.ID(), "HASCONTRAST", nil)
	mustLink(t, repo, "task", task.ID(), concept.ID(), "ASSERTS", nil)
	mustLink(t, repo, "concept", concept.ID(), contrast.ID(), "MEASUREDBY", nil)
	mustLink(t, repo, "concept", concept.ID(), other.ID(), "MEASUREDBY", nil)

	full, err := cat.Task.GetFull(ctx, "id", task.ID())
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Len(t, full["contrasts"], 1)
	assert.Empty(t, full["disorders"])

	require.IsType(t, []atlas.Record{}, full["concepts"])
	assert.Len(t, full["concepts"], 1)

	cc, err := cat.Task.ConceptContrasts(ctx, task.ID())
	require.NoError(t, err)
	require.Len(t, cc, 1)
	assert.Equal(t, concept.ID(), cc[0]["concept_id"])
	assert.NotContains(t, cc[0], "id")
	assert.Equal(t, []map[string]string{{"id": contrast.ID(), "name": "2-back - 0-back"}}, cc[0]["contrasts"])

	missing, err := cat.Task.GetFull(ctx, "id", "tsk_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestConceptGetFullRelationshipDirections(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	memory := mustCreate(t, repo, "concept", "memory", nil)
	wm := mustCreate(t, repo, "concept", "working memory", nil)
	verbal := mustCreate(t, repo, "concept", "verbal working memory", nil)
	mustLink(t, repo, "concept", wm.ID(), memory.ID(), "PARTOF", nil)
	mustLink(t, repo, "concept", verbal.ID(), wm.ID(), "KINDOF", nil)

	full, err := cat.Concept.GetFull(ctx, "id", wm.ID())
	require.NoError(t, err)
	rels := full["relationships"].([]atlas.Record)
	require.Len(t, rels, 2)
	assert.Equal(t, verbal.ID(), rels[0].ID())
	assert.Equal(t, "child", rels[0]["direction"])
	assert.Equal(t, "KINDOF", rels[0][relationshipKey])
	assert.Equal(t, memory.ID(), rels[1].ID())
	assert.Equal(t, "parent", rels[1]["direction"])
	assert.Len(t, full["concepts"], 1)
}

func TestContrastViews(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	direct := mustCreate(t, repo, "task", "flanker", nil)
	viaCond := mustCreate(t, repo, "task", "flanker variant", nil)
	cond := mustCreate(t, repo, "condition", "incongruent", nil)
	contrast := mustCreate(t, repo, "contrast", "incongruent - congruent", nil)
	concept := mustCreate(t, repo, "concept", "conflict", nil)
	mustLink(t, repo, "task", direct.ID(), contrast.ID(), "HASCONTRAST", nil)
	mustLink(t, repo, "task", viaCond.ID(), cond.ID(), "HASCONDITION", nil)
	mustLink(t, repo, "condition", cond.ID(), contrast.ID(), "HASCONTRAST", nil)
	mustLink(t, repo, "concept", concept.ID(), contrast.ID(), "MEASUREDBY", nil)

	tasks, err := cat.Contrast.Tasks(ctx, contrast.ID())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{direct.ID(), viaCond.ID()}, ids(tasks))

	conds, err := cat.Contrast.Conditions(ctx, contrast.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{cond.ID()}, ids(conds))

	concepts, err := cat.Contrast.Concepts(ctx, contrast.ID())
	require.NoError(t, err)
	require.Len(t, concepts, 1)
	assert.Equal(t, "concept", concepts[0]["type"])
	assert.Contains(t, concepts[0], "relationships")
}

func TestTheoryReferencedTerms(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	theory := mustCreate(t, repo, "theory", "multicomponent model", nil)
	concept := mustCreate(t, repo, "concept", "working memory", nil)
	task := mustCreate(t, repo, "task", "n-back", nil)
	for i := 0; i < 2; i++ {
		a := mustCreate(t, repo, "assertion", "claim", nil)
		mustLink(t, repo, "assertion", a.ID(), theory.ID(), "INTHEORY", nil)
		mustLink(t, repo, "assertion", a.ID(), concept.ID(), "SUBJECT", nil)
		if i == 0 {
			mustLink(t, repo, "assertion", a.ID(), task.ID(), "PREDICATE", nil)
		}
	}

	terms, err := cat.Theory.ReferencedTerms(ctx, theory.ID())
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, ReferencedTerm{Name: "working memory", Count: 2, URL: "/concept/id/" + concept.ID() + "/", Label: "concept", ID: concept.ID()}, terms[0])
	assert.Equal(t, "task", terms[1].Label)
	assert.Equal(t, 1, terms[1].Count)
}

func TestDisorderTree(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	mood := mustCreate(t, repo, "disorder", "Mood disorder", nil)
	depression := mustCreate(t, repo, "disorder", "Depression", nil)
	bipolar := mustCreate(t, repo, "disorder", "bipolar disorder", nil)
	anxiety := mustCreate(t, repo, "disorder", "Anxiety", nil)
	loop := mustCreate(t, repo, "disorder", "self-referential", nil)
	mustLink(t, repo, "disorder", depression.ID(), mood.ID(), "ISA", nil)
	mustLink(t, repo, "disorder", bipolar.ID(), mood.ID(), "ISA", nil)
	mustLink(t, repo, "disorder", loop.ID(), loop.ID(), "ISA", nil)

	tree, err := cat.Disorder.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, anxiety.ID(), tree[0].ID)
	assert.Empty(t, tree[0].Children)
	assert.Equal(t, mood.ID(), tree[1].ID)
	require.Len(t, tree[1].Children, 2)
	assert.Equal(t, "bipolar disorder", tree[1].Children[0].Name)
	assert.Equal(t, "Depression", tree[1].Children[1].Name)
}

func TestConceptClassMembers(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	cls := mustCreate(t, repo, "concept_class", "Memory", map[string]any{"display_order": "1"})
	concept := mustCreate(t, repo, "concept", "recall", nil)
	mustLink(t, repo, "concept", concept.ID(), cls.ID(), "CLASSIFIEDUNDER", nil)

	got, err := cat.ConceptClass.WithConcepts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{concept.ID()}, ids(got[0].Concepts))
}

func TestConceptClassesFollowDisplayOrder(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	mustCreate(t, repo, "concept_class", "ten", map[string]any{"display_order": int64(10)})
	mustCreate(t, repo, "concept_class", "two", map[string]any{"display_order": int64(2)})
	mustCreate(t, repo, "concept_class", "one", map[string]any{"display_order": int64(1)})

	all, err := repo.All(ctx, "concept_class", ListOptions{OrderBy: "display_order"})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "ten"}, names(all))

	got, err := cat.ConceptClass.WithConcepts(ctx)
	require.NoError(t, err)
	classes := make([]atlas.Record, 0, len(got))
	for _, m := range got {
		classes = append(classes, m.Class)
	}
	assert.Equal(t, []string{"one", "two", "ten"}, names(classes))
}

func TestEntityGraphView(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)

	task := mustCreate(t, repo, "task", "n-back", nil)
	concept := mustCreate(t, repo, "concept", "working memory", nil)
	mustLink(t, repo, "task", task.ID(), concept.ID(), "ASSERTS", nil)

	view, err := cat.Task.Graph(ctx, []string{task.ID()})
	require.NoError(t, err)
	require.Len(t, view.Nodes, 2)
	assert.Equal(t, "task: n-back", view.Nodes[0].Label)
	assert.Equal(t, "ASSERTS: working memory", view.Nodes[1].Label)
	assert.Equal(t, "#3C7263", view.Nodes[1].Color)
	assert.Equal(t, []GraphLink{{Source: 1, Target: 2, Type: "ASSERTS"}}, view.Links)

	_, err = cat.Task.Graph(ctx, []string{"tsk_missing"})
	require.True(t, IsNotFound(err))
}

func TestCatalogEntity(t *testing.T) {
	repo, _ := newTestRepo(t)
	cat := NewCatalog(repo)
	e, err := cat.Entity("battery")
	require.NoError(t, err)
	assert.Equal(t, "battery", e.Label)
	_, err = cat.Entity("spaceship")
	require.Error(t, err)
}

func ids(recs []atlas.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID())
	}
	return out
}
