package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poldracklab/cogat/internal/platform/logger"
	"github.com/poldracklab/cogat/internal/platform/neo4jdb"
)

// QueryObserver receives one observation per backend operation.
type QueryObserver interface {
	ObserveGraphQuery(op, status string, dur time.Duration)
}

type Neo4jBackend struct {
	client   *neo4jdb.Client
	log      *logger.Logger
	tracer   trace.Tracer
	observer QueryObserver
}

func NewNeo4jBackend(client *neo4jdb.Client, log *logger.Logger, observer QueryObserver) *Neo4jBackend {
	return &Neo4jBackend{
		client:   client,
		log:      log.With("backend", "Neo4j"),
		tracer:   otel.Tracer("github.com/poldracklab/cogat/internal/data/graph"),
		observer: observer,
	}
}

// SchemaStatements returns the id constraints for the given labels.
func SchemaStatements(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if ValidateIdent(l) != nil {
			continue
		}
		// Older graphs keyed user nodes by integer; ids are looked up as text.
		out = append(out, fmt.Sprintf("MATCH (n:`%s`) WHERE n.id IS NOT NULL AND toString(n.id) <> n.id SET n.id = toString(n.id)", l))
		out = append(out, fmt.Sprintf("CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:`%s`) REQUIRE n.id IS UNIQUE", l, l))
	}
	return out
}

// EnsureSchema rewrites non-text ids as text and creates id uniqueness
// constraints, best-effort.
func (b *Neo4jBackend) EnsureSchema(ctx context.Context, labels []string) {
	b.client.EnsureSchema(ctx, SchemaStatements(labels))
}

func (b *Neo4jBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

func (b *Neo4jBackend) Close(ctx context.Context) error {
	return b.client.Close(ctx)
}

func (b *Neo4jBackend) observe(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := b.tracer.Start(ctx, "graph."+op, trace.WithAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("db.operation", op),
	))
	start := time.Now()
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			b.log.Debug("graph query failed", "op", op, "error", err)
		}
		if b.observer != nil {
			b.observer.ObserveGraphQuery(op, status, time.Since(start))
		}
		span.End()
	}
}

func (b *Neo4jBackend) CreateNode(ctx context.Context, label string, props map[string]any) (node Node, err error) {
	ctx, done := b.observe(ctx, "create_node")
	defer func() { done(err) }()

	pat, err := nodePattern("n", label, "")
	if err != nil {
		return Node{}, err
	}
	query := "CREATE " + pat + "\nSET n = $props\nRETURN n"
	out, err := b.client.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		recs, err := collect(ctx, tx, query, map[string]any{"props": props})
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("graph: create %s returned no rows", label)
		}
		return nodeFromRecord(recs[0], "n")
	})
	if err != nil {
		return Node{}, err
	}
	return out.(Node), nil
}

func (b *Neo4jBackend) FindNodes(ctx context.Context, q NodeQuery) (nodes []Node, err error) {
	ctx, done := b.observe(ctx, "find_nodes")
	defer func() { done(err) }()

	params := map[string]any{}
	query, err := nodeQueryClause(q, params)
	if err != nil {
		return nil, err
	}
	out, err := b.client.Read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		recs, err := collect(ctx, tx, query, params)
		if err != nil {
			return nil, err
		}
		nodes := make([]Node, 0, len(recs))
		for _, rec := range recs {
			n, err := nodeFromRecord(rec, "n")
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		return nodes, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]Node), nil
}

func (b *Neo4jBackend) CountNodes(ctx context.Context, label string) (n int64, err error) {
	ctx, done := b.observe(ctx, "count_nodes")
	defer func() { done(err) }()

	pat, err := nodePattern("n", label, "")
	if err != nil {
		return 0, err
	}
	return b.count(ctx, false, "MATCH "+pat+"\nRETURN count(n) AS c", nil)
}

func (b *Neo4jBackend) SetNodeProps(ctx context.Context, label, id string, props map[string]any) (found bool, err error) {
	ctx, done := b.observe(ctx, "set_node_props")
	defer func() { done(err) }()

	pat, err := nodePattern("n", label, "id")
	if err != nil {
		return false, err
	}
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if k != "id" {
			clean[k] = v
		}
	}
	c, err := b.count(ctx, true, "MATCH "+pat+"\nSET n += $props\nRETURN count(n) AS c", map[string]any{"id": id, "props": clean})
	return c > 0, err
}

func (b *Neo4jBackend) DeleteNode(ctx context.Context, label, id string) (found bool, err error) {
	ctx, done := b.observe(ctx, "delete_node")
	defer func() { done(err) }()

	pat, err := nodePattern("n", label, "id")
	if err != nil {
		return false, err
	}
	c, err := b.count(ctx, true, "MATCH "+pat+"\nDETACH DELETE n\nRETURN count(n) AS c", map[string]any{"id": id})
	return c > 0, err
}

func (b *Neo4jBackend) MatchRelationships(ctx context.Context, p RelPattern, limit int) (triples []Triple, err error) {
	ctx, done := b.observe(ctx, "match_relationships")
	defer func() { done(err) }()

	params := map[string]any{}
	clause, err := relPatternClause(p, params)
	if err != nil {
		return nil, err
	}
	query := clause + "\nRETURN a, r, b"
	if limit > 0 {
		params["limit"] = int64(limit)
		query += "\nLIMIT $limit"
	}
	out, err := b.client.Read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		recs, err := collect(ctx, tx, query, params)
		if err != nil {
			return nil, err
		}
		triples := make([]Triple, 0, len(recs))
		for _, rec := range recs {
			t, err := tripleFromRecord(rec)
			if err != nil {
				return nil, err
			}
			triples = append(triples, t)
		}
		return triples, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]Triple), nil
}

func (b *Neo4jBackend) CreateRelationship(ctx context.Context, startID, relType, endID string, props map[string]any) (rel Relationship, created bool, err error) {
	ctx, done := b.observe(ctx, "create_relationship")
	defer func() { done(err) }()

	t, err := quoteIdent(relType)
	if err != nil {
		return Relationship{}, false, err
	}
	if props == nil {
		props = map[string]any{}
	}
	query := `
MATCH (a {id: $start_id})
MATCH (b {id: $end_id})
OPTIONAL MATCH (a)-[old:` + t + `]->(b)
WITH a, b, count(old) AS existing
MERGE (a)-[r:` + t + `]->(b)
ON CREATE SET r = $props
RETURN a, r, b, existing = 0 AS created
LIMIT 1`
	type result struct {
		rel     Relationship
		created bool
	}
	out, err := b.client.Write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		recs, err := collect(ctx, tx, query, map[string]any{"start_id": startID, "end_id": endID, "props": props})
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("%w: %s or %s", ErrNodeMissing, startID, endID)
		}
		tr, err := tripleFromRecord(recs[0])
		if err != nil {
			return nil, err
		}
		c, _ := recs[0].Get("created")
		isNew, _ := c.(bool)
		return result{rel: tr.Rel, created: isNew}, nil
	})
	if err != nil {
		return Relationship{}, false, err
	}
	r := out.(result)
	return r.rel, r.created, nil
}

func (b *Neo4jBackend) SetRelationshipProps(ctx context.Context, p RelPattern, props map[string]any) (n int, err error) {
	ctx, done := b.observe(ctx, "set_relationship_props")
	defer func() { done(err) }()

	params := map[string]any{"props": props}
	clause, err := relPatternClause(p, params)
	if err != nil {
		return 0, err
	}
	c, err := b.count(ctx, true, clause+"\nSET r += $props\nRETURN count(r) AS c", params)
	return int(c), err
}

func (b *Neo4jBackend) DeleteRelationships(ctx context.Context, p RelPattern, limit int) (n int, err error) {
	ctx, done := b.observe(ctx, "delete_relationships")
	defer func() { done(err) }()

	params := map[string]any{}
	clause, err := relPatternClause(p, params)
	if err != nil {
		return 0, err
	}
	query := clause + "\nWITH r"
	if limit > 0 {
		params["limit"] = int64(limit)
		query += " LIMIT $limit"
	}
	query += "\nDELETE r\nRETURN count(r) AS c"
	c, err := b.count(ctx, true, query, params)
	return int(c), err
}

func (b *Neo4jBackend) Traverse(ctx context.Context, startLabel, startID string, hops []Hop) (paths []Path, err error) {
	ctx, done := b.observe(ctx, "traverse")
	defer func() { done(err) }()

	if len(hops) == 0 {
		return nil, fmt.Errorf("graph: traverse needs at least one hop")
	}
	query, err := traverseClause(startLabel, hops)
	if err != nil {
		return nil, err
	}
	out, err := b.client.Read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		recs, err := collect(ctx, tx, query, map[string]any{"start_id": startID})
		if err != nil {
			return nil, err
		}
		paths := make([]Path, 0, len(recs))
		for _, rec := range recs {
			v, ok := rec.Get("p")
			if !ok {
				return nil, fmt.Errorf("graph: traverse row missing path")
			}
			p, ok := v.(neo4j.Path)
			if !ok {
				return nil, fmt.Errorf("graph: traverse row has %T, want path", v)
			}
			paths = append(paths, pathFromDriver(p))
		}
		return paths, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]Path), nil
}

func (b *Neo4jBackend) count(ctx context.Context, write bool, query string, params map[string]any) (int64, error) {
	work := func(tx neo4j.ManagedTransaction) (any, error) {
		recs, err := collect(ctx, tx, query, params)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return int64(0), nil
		}
		v, _ := recs[0].Get("c")
		n, _ := v.(int64)
		return n, nil
	}
	var (
		out any
		err error
	)
	if write {
		out, err = b.client.Write(ctx, work)
	} else {
		out, err = b.client.Read(ctx, work)
	}
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

func nodeFromRecord(rec *neo4j.Record, key string) (Node, error) {
	v, ok := rec.Get(key)
	if !ok {
		return Node{}, fmt.Errorf("graph: row missing %q", key)
	}
	n, ok := v.(neo4j.Node)
	if !ok {
		return Node{}, fmt.Errorf("graph: %q is %T, want node", key, v)
	}
	return nodeFromDriver(n), nil
}

func tripleFromRecord(rec *neo4j.Record) (Triple, error) {
	a, err := nodeFromRecord(rec, "a")
	if err != nil {
		return Triple{}, err
	}
	b, err := nodeFromRecord(rec, "b")
	if err != nil {
		return Triple{}, err
	}
	v, ok := rec.Get("r")
	if !ok {
		return Triple{}, fmt.Errorf("graph: row missing relationship")
	}
	r, ok := v.(neo4j.Relationship)
	if !ok {
		return Triple{}, fmt.Errorf("graph: relationship is %T", v)
	}
	return Triple{Start: a, Rel: relFromDriver(r, a.ID(), b.ID()), End: b}, nil
}

func nodeFromDriver(n neo4j.Node) Node {
	props := n.Props
	if props == nil {
		props = map[string]any{}
	}
	return Node{ElementID: n.ElementId, Labels: n.Labels, Props: props}
}

func relFromDriver(r neo4j.Relationship, startID, endID string) Relationship {
	props := r.Props
	if props == nil {
		props = map[string]any{}
	}
	return Relationship{ElementID: r.ElementId, Type: r.Type, StartID: startID, EndID: endID, Props: props}
}

func pathFromDriver(p neo4j.Path) Path {
	out := Path{Nodes: make([]Node, len(p.Nodes)), Rels: make([]Relationship, len(p.Relationships))}
	ids := make(map[string]string, len(p.Nodes))
	for i, n := range p.Nodes {
		out.Nodes[i] = nodeFromDriver(n)
		ids[n.ElementId] = out.Nodes[i].ID()
	}
	for i, r := range p.Relationships {
		out.Rels[i] = relFromDriver(r, ids[r.StartElementId], ids[r.EndElementId])
	}
	return out
}
