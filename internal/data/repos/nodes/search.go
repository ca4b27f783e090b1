package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/poldracklab/cogat/internal/data/graph"
	"github.com/poldracklab/cogat/internal/domain/atlas"
)

var defaultSearchFields = []string{"name", "id"}

type SearchOptions struct {
	// Fields to return per hit; defaults to name and id.
	Fields []string
	// Label restricts the search to one entity type.
	Label string
}

// ContrastHit pairs a contrast with a task that owns it.
type ContrastHit struct {
	TaskID       string `json:"task_id"`
	TaskName     string `json:"task_name"`
	ContrastID   string `json:"contrast_id"`
	ContrastName string `json:"contrast_name"`
}

// Search matches nodes whose name contains term, case-insensitively, across
// the searchable entity types. Each hit carries its label.
func (r *nodeRepo) Search(ctx context.Context, term string, opts SearchOptions) ([]atlas.Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []atlas.Record{}, nil
	}
	labels := r.reg.SearchableLabels()
	if opts.Label != "" {
		if _, err := r.reg.Type(opts.Label); err != nil {
			return nil, err
		}
		labels = []string{opts.Label}
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = defaultSearchFields
	}
	found, err := r.g.FindNodes(ctx, graph.NodeQuery{
		Labels:  labels,
		Where:   []graph.Predicate{{Field: "name", Op: graph.OpContains, Value: term}},
		OrderBy: "name",
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	found = dedupe(found)
	out := make([]atlas.Record, 0, len(found))
	for _, n := range found {
		rec := atlas.Record(n.Props).Project(fields)
		rec["label"] = n.Label()
		out = append(out, rec)
	}
	return out, nil
}

// SearchContrasts returns task/contrast pairs where the task or contrast name
// contains term. Contrasts owned through a condition count as the task's.
func (r *nodeRepo) SearchContrasts(ctx context.Context, term string) ([]ContrastHit, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []ContrastHit{}, nil
	}
	direct, err := r.g.MatchRelationships(ctx, graph.RelPattern{
		StartLabel: "task", Type: "HASCONTRAST", EndLabel: "contrast",
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("search contrasts: %w", err)
	}
	conditions, err := r.g.MatchRelationships(ctx, graph.RelPattern{
		StartLabel: "task", Type: "HASCONDITION", EndLabel: "condition",
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("search contrasts: %w", err)
	}
	viaCondition, err := r.g.MatchRelationships(ctx, graph.RelPattern{
		StartLabel: "condition", Type: "HASCONTRAST", EndLabel: "contrast",
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("search contrasts: %w", err)
	}

	tasksByCondition := map[string][]graph.Node{}
	for _, t := range conditions {
		tasksByCondition[t.End.ID()] = append(tasksByCondition[t.End.ID()], t.Start)
	}
	type pair struct{ task, contrast graph.Node }
	pairs := make([]pair, 0, len(direct)+len(viaCondition))
	for _, t := range direct {
		pairs = append(pairs, pair{t.Start, t.End})
	}
	for _, t := range viaCondition {
		for _, task := range tasksByCondition[t.Start.ID()] {
			pairs = append(pairs, pair{task, t.End})
		}
	}

	needle := strings.ToLower(term)
	seen := map[string]struct{}{}
	out := []ContrastHit{}
	for _, p := range pairs {
		taskName := stringOf(p.task.Props["name"])
		contrastName := stringOf(p.contrast.Props["name"])
		if !strings.Contains(strings.ToLower(taskName), needle) && !strings.Contains(strings.ToLower(contrastName), needle) {
			continue
		}
		key := p.task.ID() + "|" + p.contrast.ID()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ContrastHit{
			TaskID:       p.task.ID(),
			TaskName:     taskName,
			ContrastID:   p.contrast.ID(),
			ContrastName: contrastName,
		})
	}
	return out, nil
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
