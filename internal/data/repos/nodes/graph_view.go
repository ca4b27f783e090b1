package nodes

import (
	"context"
	"fmt"
	"sort"

	"github.com/poldracklab/cogat/internal/domain/atlas"
)

type GraphNode struct {
	ID     int          `json:"id"`
	Label  string       `json:"label"`
	Color  string       `json:"color,omitempty"`
	Fields atlas.Record `json:"fields,omitempty"`
}

type GraphLink struct {
	Source int    `json:"source"`
	Target int    `json:"target"`
	Type   string `json:"type"`
}

// GraphView is a numbered node/link listing for client-side rendering.
type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// Graph renders the given nodes with their outgoing relations. Graph ids are
// assigned in discovery order starting at 1.
func (e Entity) Graph(ctx context.Context, ids []string) (GraphView, error) {
	reg := e.repo.Registry()
	typ, err := reg.Type(e.Label)
	if err != nil {
		return GraphView{}, err
	}
	fields := append([]string{"name"}, typ.Fields...)

	view := GraphView{Nodes: []GraphNode{}, Links: []GraphLink{}}
	lookup := map[string]int{}
	number := func(id string) int {
		if n, ok := lookup[id]; ok {
			return n
		}
		lookup[id] = len(lookup) + 1
		return lookup[id]
	}

	for _, id := range ids {
		rec, err := e.GetOne(ctx, "id", id, GetOptions{})
		if err != nil {
			return GraphView{}, err
		}
		src := number(rec.ID())
		view.Nodes = append(view.Nodes, GraphNode{
			ID:     src,
			Label:  fmt.Sprintf("%s: %s", e.Label, rec.Name()),
			Color:  typ.Color,
			Fields: rec.Project(fields),
		})
		rels, _ := rec[relationsKey].(map[string][]atlas.Record)
		relTypes := make([]string, 0, len(rels))
		for t := range rels {
			relTypes = append(relTypes, t)
		}
		sort.Strings(relTypes)
		for _, relType := range relTypes {
			for _, related := range rels[relType] {
				dst := number(related.ID())
				view.Nodes = append(view.Nodes, GraphNode{
					ID:     dst,
					Label:  fmt.Sprintf("%s: %s", relType, related.Name()),
					Color:  reg.RelationColor(relType),
					Fields: related.Project(fields),
				})
				view.Links = append(view.Links, GraphLink{Source: src, Target: dst, Type: relType})
			}
		}
	}
	return view, nil
}
