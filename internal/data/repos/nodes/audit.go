package nodes

import (
	"context"
	"fmt"

	"github.com/poldracklab/cogat/internal/data/graph"
	"github.com/poldracklab/cogat/internal/domain/atlas"
)

const (
	userLabel   = "user"
	relCreated  = "CREATED"
	relUpdated  = "UPDATED"
	usernameKey = "username"
)

// ensureUser returns the user node for actor, creating it on first sight.
// User nodes are keyed by the platform id, not a generated one.
func (r *nodeRepo) ensureUser(ctx context.Context, actor *atlas.Actor) error {
	_, ok, err := r.findByID(ctx, userLabel, actor.ID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = r.g.CreateNode(ctx, userLabel, map[string]any{
		"id":        actor.ID,
		usernameKey: actor.Username,
	})
	if err != nil {
		// A concurrent request may have created it.
		if _, ok, ferr := r.findByID(ctx, userLabel, actor.ID); ferr == nil && ok {
			return nil
		}
		return fmt.Errorf("ensure user %s: %w", actor.ID, err)
	}
	r.log.Debug("user node created", "user_id", actor.ID)
	return nil
}

func (r *nodeRepo) recordCreate(ctx context.Context, actor *atlas.Actor, label, id string) error {
	if err := r.ensureUser(ctx, actor); err != nil {
		return err
	}
	_, _, err := r.g.CreateRelationship(ctx, actor.ID, relCreated, id, map[string]any{
		"timestamp": r.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("record create of %s %s: %w", label, id, err)
	}
	return nil
}

// recordUpdate keeps at most one UPDATED edge per node: the latest editor.
func (r *nodeRepo) recordUpdate(ctx context.Context, actor *atlas.Actor, id string) error {
	if err := r.ensureUser(ctx, actor); err != nil {
		return err
	}
	if _, err := r.g.DeleteRelationships(ctx, graph.RelPattern{
		StartLabel: userLabel, Type: relUpdated, EndID: id,
	}, 0); err != nil {
		return fmt.Errorf("clear update trail of %s: %w", id, err)
	}
	_, _, err := r.g.CreateRelationship(ctx, actor.ID, relUpdated, id, map[string]any{
		"timestamp": r.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("record update of %s: %w", id, err)
	}
	return nil
}

// Creator returns the user that created the node, or nil when unknown.
func (r *nodeRepo) Creator(ctx context.Context, label, id string) (atlas.Record, error) {
	triples, err := r.g.MatchRelationships(ctx, graph.RelPattern{
		StartLabel: userLabel, Type: relCreated, EndLabel: label, EndID: id,
	}, 1)
	if err != nil {
		return nil, fmt.Errorf("creator of %s: %w", id, err)
	}
	if len(triples) == 0 {
		return nil, nil
	}
	return atlas.Record(triples[0].Start.Props).Clone(), nil
}

// LastEditor returns the user behind the UPDATED edge, or nil.
func (r *nodeRepo) LastEditor(ctx context.Context, id string) (atlas.Record, error) {
	triples, err := r.g.MatchRelationships(ctx, graph.RelPattern{
		StartLabel: userLabel, Type: relUpdated, EndID: id,
	}, 1)
	if err != nil {
		return nil, fmt.Errorf("last editor of %s: %w", id, err)
	}
	if len(triples) == 0 {
		return nil, nil
	}
	return atlas.Record(triples[0].Start.Props).Clone(), nil
}
