package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memNode struct {
	seq   int
	label string
	props map[string]any
}

type memRel struct {
	seq     int
	relType string
	start   string // element id
	end     string // element id
	props   map[string]any
}

// MemoryBackend is an in-process Backend. It applies the same matching rules
// as the Cypher backend and is safe for concurrent use.
type MemoryBackend struct {
	mu    sync.RWMutex
	seq   int
	nodes map[string]*memNode
	rels  map[string]*memRel
	byID  map[string]string // atlas id -> element id
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		nodes: make(map[string]*memNode),
		rels:  make(map[string]*memRel),
		byID:  make(map[string]string),
	}
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }
func (m *MemoryBackend) Close(context.Context) error { return nil }

func (m *MemoryBackend) CreateNode(ctx context.Context, label string, props map[string]any) (Node, error) {
	if err := ctx.Err(); err != nil {
		return Node{}, err
	}
	if err := ValidateIdent(label); err != nil {
		return Node{}, err
	}
	id, _ := props["id"].(string)
	if id == "" {
		return Node{}, fmt.Errorf("graph: create %s: id property required", label)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byID[id]; dup {
		return Node{}, fmt.Errorf("graph: create %s: id %q already exists", label, id)
	}
	m.seq++
	eid := fmt.Sprintf("n:%d", m.seq)
	n := &memNode{seq: m.seq, label: label, props: cloneProps(props)}
	m.nodes[eid] = n
	m.byID[id] = eid
	return n.toNode(eid), nil
}

func (m *MemoryBackend) FindNodes(ctx context.Context, q NodeQuery) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, l := range q.Labels {
		if err := ValidateIdent(l); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Node
	for _, eid := range m.sortedNodeIDs() {
		n := m.nodes[eid]
		if !labelAllowed(n.label, q.Labels) || !matchNode(n.props, q) {
			continue
		}
		out = append(out, n.toNode(eid))
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareOrder(out[i].Props[q.OrderBy], out[j].Props[q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryBackend) CountNodes(ctx context.Context, label string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, node := range m.nodes {
		if label == "" || node.label == label {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) SetNodeProps(ctx context.Context, label, id string, props map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	eid, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	n := m.nodes[eid]
	if label != "" && n.label != label {
		return false, nil
	}
	for k, v := range props {
		if k == "id" {
			continue
		}
		if v == nil {
			delete(n.props, k)
			continue
		}
		n.props[k] = v
	}
	return true, nil
}

func (m *MemoryBackend) DeleteNode(ctx context.Context, label, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	eid, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	if label != "" && m.nodes[eid].label != label {
		return false, nil
	}
	for rid, r := range m.rels {
		if r.start == eid || r.end == eid {
			delete(m.rels, rid)
		}
	}
	delete(m.nodes, eid)
	delete(m.byID, id)
	return true, nil
}

func (m *MemoryBackend) MatchRelationships(ctx context.Context, p RelPattern, limit int) ([]Triple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Triple
	for _, rid := range m.sortedRelIDs() {
		r := m.rels[rid]
		if !m.relMatches(r, p) {
			continue
		}
		out = append(out, m.triple(rid, r))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryBackend) CreateRelationship(ctx context.Context, startID, relType, endID string, props map[string]any) (Relationship, bool, error) {
	if err := ctx.Err(); err != nil {
		return Relationship{}, false, err
	}
	if err := ValidateIdent(relType); err != nil {
		return Relationship{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[startID]
	if !ok {
		return Relationship{}, false, fmt.Errorf("%w: %s", ErrNodeMissing, startID)
	}
	e, ok := m.byID[endID]
	if !ok {
		return Relationship{}, false, fmt.Errorf("%w: %s", ErrNodeMissing, endID)
	}
	for _, rid := range m.sortedRelIDs() {
		r := m.rels[rid]
		if r.relType == relType && r.start == s && r.end == e {
			return m.toRelationship(rid, r), false, nil
		}
	}
	m.seq++
	rid := fmt.Sprintf("r:%d", m.seq)
	r := &memRel{seq: m.seq, relType: relType, start: s, end: e, props: cloneProps(props)}
	m.rels[rid] = r
	return m.toRelationship(rid, r), true, nil
}

func (m *MemoryBackend) SetRelationshipProps(ctx context.Context, p RelPattern, props map[string]any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rels {
		if !m.relMatches(r, p) {
			continue
		}
		for k, v := range props {
			if v == nil {
				delete(r.props, k)
				continue
			}
			r.props[k] = v
		}
		n++
	}
	return n, nil
}

func (m *MemoryBackend) DeleteRelationships(ctx context.Context, p RelPattern, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rid := range m.sortedRelIDs() {
		if !m.relMatches(m.rels[rid], p) {
			continue
		}
		delete(m.rels, rid)
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return n, nil
}

func (m *MemoryBackend) Traverse(ctx context.Context, startLabel, startID string, hops []Hop) ([]Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	eid, ok := m.byID[startID]
	if !ok {
		return nil, nil
	}
	if startLabel != "" && m.nodes[eid].label != startLabel {
		return nil, nil
	}
	relIDs := m.sortedRelIDs()

	var out []Path
	var walk func(at string, depth int, nodes []string, rels []string)
	walk = func(at string, depth int, nodes []string, rels []string) {
		if depth == len(hops) {
			out = append(out, m.path(nodes, rels))
			return
		}
		h := hops[depth]
		for _, rid := range relIDs {
			r := m.rels[rid]
			if r.relType != h.Type || containsString(rels, rid) {
				continue
			}
			next := ""
			switch {
			case h.Dir == Outgoing && r.start == at:
				next = r.end
			case h.Dir == Incoming && r.end == at:
				next = r.start
			default:
				continue
			}
			if h.Label != "" && m.nodes[next].label != h.Label {
				continue
			}
			walk(next, depth+1, append(nodes[:len(nodes):len(nodes)], next), append(rels[:len(rels):len(rels)], rid))
		}
	}
	walk(eid, 0, []string{eid}, nil)
	return out, nil
}

func (m *MemoryBackend) relMatches(r *memRel, p RelPattern) bool {
	if p.Type != "" && r.relType != p.Type {
		return false
	}
	s, e := m.nodes[r.start], m.nodes[r.end]
	if p.StartLabel != "" && s.label != p.StartLabel {
		return false
	}
	if p.EndLabel != "" && e.label != p.EndLabel {
		return false
	}
	if p.StartID != "" && s.props["id"] != p.StartID {
		return false
	}
	if p.EndID != "" && e.props["id"] != p.EndID {
		return false
	}
	return true
}

func (m *MemoryBackend) sortedNodeIDs() []string {
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.nodes[ids[i]].seq < m.nodes[ids[j]].seq })
	return ids
}

func (m *MemoryBackend) sortedRelIDs() []string {
	ids := make([]string, 0, len(m.rels))
	for id := range m.rels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.rels[ids[i]].seq < m.rels[ids[j]].seq })
	return ids
}

func (m *MemoryBackend) toRelationship(rid string, r *memRel) Relationship {
	return Relationship{
		ElementID: rid,
		Type:      r.relType,
		StartID:   stringProp(m.nodes[r.start].props, "id"),
		EndID:     stringProp(m.nodes[r.end].props, "id"),
		Props:     cloneProps(r.props),
	}
}

func (m *MemoryBackend) triple(rid string, r *memRel) Triple {
	return Triple{
		Start: m.nodes[r.start].toNode(r.start),
		Rel:   m.toRelationship(rid, r),
		End:   m.nodes[r.end].toNode(r.end),
	}
}

func (m *MemoryBackend) path(nodes, rels []string) Path {
	p := Path{Nodes: make([]Node, len(nodes)), Rels: make([]Relationship, len(rels))}
	for i, eid := range nodes {
		p.Nodes[i] = m.nodes[eid].toNode(eid)
	}
	for i, rid := range rels {
		p.Rels[i] = m.toRelationship(rid, m.rels[rid])
	}
	return p
}

func (n *memNode) toNode(eid string) Node {
	return Node{ElementID: eid, Labels: []string{n.label}, Props: cloneProps(n.props)}
}

func matchNode(props map[string]any, q NodeQuery) bool {
	for _, p := range q.Where {
		if !matchPredicate(props, p) {
			return false
		}
	}
	if len(q.Any) == 0 {
		return true
	}
	for _, p := range q.Any {
		if matchPredicate(props, p) {
			return true
		}
	}
	return false
}

func matchPredicate(props map[string]any, p Predicate) bool {
	v, ok := props[p.Field]
	if !ok || v == nil {
		return false
	}
	switch p.Op {
	case OpEquals:
		return valuesEqual(v, p.Value)
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(p.Value)))
	case OpContains:
		return strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(p.Value)))
	case OpIn:
		list, _ := p.Value.([]string)
		return containsString(list, fmt.Sprint(v))
	}
	return false
}

func valuesEqual(a, b any) bool {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func labelAllowed(label string, labels []string) bool {
	return len(labels) == 0 || containsString(labels, label)
}

// compareOrder follows Cypher ORDER BY: strings (case-folded) before
// booleans before numbers, and null sorts after everything.
func compareOrder(a, b any) int {
	ra, rb := orderRank(a), orderRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case rankString:
		return strings.Compare(strings.ToLower(a.(string)), strings.ToLower(b.(string)))
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	case rankNumber:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case rankOther:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

const (
	rankString = iota
	rankBool
	rankNumber
	rankOther
	rankNull
)

func orderRank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case string:
		return rankString
	case bool:
		return rankBool
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	return rankOther
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func cloneProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
