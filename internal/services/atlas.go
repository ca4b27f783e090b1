package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/poldracklab/cogat/internal/data/graph"
	"github.com/poldracklab/cogat/internal/data/repos/nodes"
	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/platform/ctxutil"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

type CreateOptions struct {
	// UniqueName rejects the create when a node of the type already has the name.
	UniqueName bool
}

// CreateAndLinkRequest creates a node and links it to an existing one. When
// Reverse is set the new node is the source of the edge.
type CreateAndLinkRequest struct {
	SrcLabel  string
	SrcID     string
	DestLabel string
	Name      string
	Props     map[string]any
	Relation  string
	Reverse   bool
}

type DisambiguateRequest struct {
	Term1Name       string
	Term1Extension  string
	Term1Definition string
	Term2Name       string
	Term2Extension  string
	Term2Definition string
}

// AtlasService runs the composite mutations behind the curation forms.
// Every create records the actor found in the context.
type AtlasService interface {
	Create(ctx context.Context, label, name string, props map[string]any, opts CreateOptions) (atlas.Record, error)
	Update(ctx context.Context, label, id string, updates map[string]any) error
	SetReviewed(ctx context.Context, label, id string, reviewed bool) error

	Link(ctx context.Context, srcLabel, srcID, destID, relType string, opts nodes.LinkOptions) (atlas.Edge, error)
	Unlink(ctx context.Context, srcLabel, srcID, destID, relType, destLabel string) error
	CreateAndLink(ctx context.Context, req CreateAndLinkRequest) (atlas.Record, error)

	AddCondition(ctx context.Context, taskID, name string) (atlas.Record, error)
	AddContrast(ctx context.Context, taskID, name string, weights map[string]float64) (atlas.Record, error)
	AddTaskPhenotype(ctx context.Context, phenotypeID, contrastID string) (atlas.Edge, error)
	AddDisorderRelation(ctx context.Context, disorderID, relatedID string, parent bool) (atlas.Edge, error)
	AddConceptRelation(ctx context.Context, conceptID, relType, otherID string) (atlas.Edge, error)
	AssertTaskConcept(ctx context.Context, taskID, conceptID string) (atlas.Edge, error)
	AssertConceptContrast(ctx context.Context, taskID, conceptID, contrastID string) (atlas.Record, error)
	AssertDisorderTask(ctx context.Context, disorderID, taskID string) (atlas.Record, error)
	AddTheoryAssertion(ctx context.Context, theoryID, assertionID string) (atlas.Edge, error)
	Disambiguate(ctx context.Context, label, id string, req DisambiguateRequest) (atlas.Record, error)
}

type atlasService struct {
	log  *logger.Logger
	repo nodes.NodeRepo
	reg  *atlas.Registry
}

func NewAtlasService(baseLog *logger.Logger, repo nodes.NodeRepo) AtlasService {
	return &atlasService{
		log:  baseLog.With("service", "AtlasService"),
		repo: repo,
		reg:  repo.Registry(),
	}
}

func (s *atlasService) Create(ctx context.Context, label, name string, props map[string]any, opts CreateOptions) (atlas.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", atlas.ErrInvalidArgument)
	}
	if opts.UniqueName {
		existing, err := s.repo.Get(ctx, label, "name", name, nodes.GetOptions{SkipRelations: true})
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			ids := make([]string, 0, len(existing))
			for _, r := range existing {
				ids = append(ids, r.ID())
			}
			return nil, &atlas.DuplicateNameError{Label: label, Name: name, IDs: ids}
		}
	}
	return s.repo.Create(ctx, label, name, props, ctxutil.GetActor(ctx))
}

func (s *atlasService) Update(ctx context.Context, label, id string, updates map[string]any) error {
	return s.repo.Update(ctx, label, id, updates, ctxutil.GetActor(ctx))
}

func (s *atlasService) SetReviewed(ctx context.Context, label, id string, reviewed bool) error {
	status := "False"
	if reviewed {
		status = "True"
	}
	return s.Update(ctx, label, id, map[string]any{"review_status": status})
}

func (s *atlasService) Link(ctx context.Context, srcLabel, srcID, destID, relType string, opts nodes.LinkOptions) (atlas.Edge, error) {
	return s.repo.Link(ctx, srcLabel, srcID, destID, relType, opts)
}

func (s *atlasService) Unlink(ctx context.Context, srcLabel, srcID, destID, relType, destLabel string) error {
	return s.repo.Unlink(ctx, srcLabel, srcID, destID, relType, destLabel)
}

// CreateAndLink deletes the new node again when the link cannot be made.
func (s *atlasService) CreateAndLink(ctx context.Context, req CreateAndLinkRequest) (atlas.Record, error) {
	rec, err := s.Create(ctx, req.DestLabel, req.Name, req.Props, CreateOptions{})
	if err != nil {
		return nil, err
	}
	newID := rec.ID()
	if req.Reverse {
		_, err = s.repo.Link(ctx, req.DestLabel, newID, req.SrcID, req.Relation, nodes.LinkOptions{DestLabel: req.SrcLabel})
	} else {
		_, err = s.repo.Link(ctx, req.SrcLabel, req.SrcID, newID, req.Relation, nodes.LinkOptions{DestLabel: req.DestLabel})
	}
	if err != nil {
		return nil, s.compensate(ctx, req.DestLabel, newID, err)
	}
	return rec, nil
}

// compensate removes a node created by a composite that failed afterwards.
func (s *atlasService) compensate(ctx context.Context, label, id string, cause error) error {
	if _, derr := s.repo.Delete(context.WithoutCancel(ctx), label, id); derr != nil {
		s.log.Error("compensating delete failed", "label", label, "id", id, "error", derr)
		return errors.Join(cause, fmt.Errorf("remove orphan %s %s: %w", label, id, derr))
	}
	s.log.Warn("composite create rolled back", "label", label, "id", id, "error", cause)
	return cause
}

func (s *atlasService) AddCondition(ctx context.Context, taskID, name string) (atlas.Record, error) {
	return s.CreateAndLink(ctx, CreateAndLinkRequest{
		SrcLabel:  "task",
		SrcID:     taskID,
		DestLabel: "condition",
		Name:      name,
		Relation:  "HASCONDITION",
	})
}

// AddContrast creates a contrast owned by the task and weighted over its
// conditions. Zero weights are dropped; at least one must remain.
func (s *atlasService) AddContrast(ctx context.Context, taskID, name string, weights map[string]float64) (atlas.Record, error) {
	conditionIDs := make([]string, 0, len(weights))
	for id, w := range weights {
		if w != 0 {
			conditionIDs = append(conditionIDs, id)
		}
	}
	if strings.TrimSpace(name) == "" || len(conditionIDs) == 0 {
		return nil, fmt.Errorf("%w: contrast needs a name and at least one weighted condition", atlas.ErrInvalidArgument)
	}
	sort.Strings(conditionIDs)

	contrast, err := s.CreateAndLink(ctx, CreateAndLinkRequest{
		SrcLabel:  "task",
		SrcID:     taskID,
		DestLabel: "contrast",
		Name:      name,
		Relation:  "HASCONTRAST",
	})
	if err != nil {
		return nil, err
	}
	for _, condID := range conditionIDs {
		_, err := s.repo.Link(ctx, "condition", condID, contrast.ID(), "HASCONTRAST", nodes.LinkOptions{
			DestLabel: "contrast",
			Props:     map[string]any{"weight": weights[condID]},
		})
		if err != nil {
			return nil, s.compensate(ctx, "contrast", contrast.ID(), err)
		}
	}
	return contrast, nil
}

// AddTaskPhenotype relates a contrast to a phenotype chosen by id prefix:
// disorders differ on the contrast, traits and behaviors are measured by it.
func (s *atlasService) AddTaskPhenotype(ctx context.Context, phenotypeID, contrastID string) (atlas.Edge, error) {
	typ, ok := s.reg.TypeForID(phenotypeID)
	if !ok {
		return atlas.Edge{}, &atlas.UnknownEntityTypeError{Label: phenotypeID, Reason: "id prefix not registered"}
	}
	switch typ.Label {
	case "disorder":
		return s.repo.Link(ctx, "contrast", contrastID, phenotypeID, "HASDIFFERENCE", nodes.LinkOptions{DestLabel: "disorder"})
	case "trait", "behavior":
		return s.repo.Link(ctx, typ.Label, phenotypeID, contrastID, "MEASUREDBY", nodes.LinkOptions{DestLabel: "contrast"})
	default:
		return atlas.Edge{}, fmt.Errorf("%w: %s is not a phenotype", atlas.ErrInvalidArgument, phenotypeID)
	}
}

// AddDisorderRelation links disorderID ISA relatedID when parent is set,
// otherwise relatedID ISA disorderID.
func (s *atlasService) AddDisorderRelation(ctx context.Context, disorderID, relatedID string, parent bool) (atlas.Edge, error) {
	opts := nodes.LinkOptions{DestLabel: "disorder"}
	if parent {
		return s.repo.Link(ctx, "disorder", disorderID, relatedID, "ISA", opts)
	}
	return s.repo.Link(ctx, "disorder", relatedID, disorderID, "ISA", opts)
}

// AddConceptRelation accepts PARTOF/KINDOF; a REV prefix flips the direction.
func (s *atlasService) AddConceptRelation(ctx context.Context, conceptID, relType, otherID string) (atlas.Edge, error) {
	src, dst := conceptID, otherID
	if rest, ok := strings.CutPrefix(relType, "REV"); ok {
		src, dst, relType = otherID, conceptID, rest
	}
	if relType != "PARTOF" && relType != "KINDOF" {
		return atlas.Edge{}, &atlas.RelationError{Label: "concept", Relation: relType}
	}
	return s.repo.Link(ctx, "concept", src, dst, relType, nodes.LinkOptions{DestLabel: "concept"})
}

func (s *atlasService) AssertTaskConcept(ctx context.Context, taskID, conceptID string) (atlas.Edge, error) {
	return s.repo.Link(ctx, "task", taskID, conceptID, "ASSERTS", nodes.LinkOptions{DestLabel: "concept"})
}

// AssertConceptContrast records that the concept is measured by the task's
// contrast, reified as an assertion with SUBJECT, PREDICATE and PREDICATE_DEF.
func (s *atlasService) AssertConceptContrast(ctx context.Context, taskID, conceptID, contrastID string) (atlas.Record, error) {
	if _, err := s.repo.Link(ctx, "concept", conceptID, contrastID, "MEASUREDBY", nodes.LinkOptions{DestLabel: "contrast"}); err != nil {
		return nil, err
	}
	return s.createAssertion(ctx, []assertionEdge{
		{"SUBJECT", conceptID, "concept"},
		{"PREDICATE", taskID, "task"},
		{"PREDICATE_DEF", contrastID, "contrast"},
	})
}

// AssertDisorderTask links task ASSERTS disorder and reuses an existing
// assertion between the two.
func (s *atlasService) AssertDisorderTask(ctx context.Context, disorderID, taskID string) (atlas.Record, error) {
	if _, err := s.repo.Link(ctx, "task", taskID, disorderID, "ASSERTS", nodes.LinkOptions{DestLabel: "disorder"}); err != nil {
		return nil, err
	}
	paths, err := s.repo.Traverse(ctx, "disorder", disorderID,
		graph.Hop{Type: "SUBJECT", Dir: graph.Incoming, Label: "assertion"},
		graph.Hop{Type: "PREDICATE", Dir: graph.Outgoing, Label: "task"})
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if p.Last().ID() == taskID {
			return atlas.Record(p.Nodes[1].Props), nil
		}
	}
	return s.createAssertion(ctx, []assertionEdge{
		{"SUBJECT", disorderID, "disorder"},
		{"PREDICATE", taskID, "task"},
	})
}

func (s *atlasService) AddTheoryAssertion(ctx context.Context, theoryID, assertionID string) (atlas.Edge, error) {
	return s.repo.Link(ctx, "assertion", assertionID, theoryID, "INTHEORY", nodes.LinkOptions{DestLabel: "theory"})
}

type assertionEdge struct {
	relType string
	target  string
	label   string
}

func (s *atlasService) createAssertion(ctx context.Context, edges []assertionEdge) (atlas.Record, error) {
	asrt, err := s.repo.Create(ctx, "assertion", "", nil, ctxutil.GetActor(ctx))
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if _, err := s.repo.Link(ctx, "assertion", asrt.ID(), e.target, e.relType, nodes.LinkOptions{DestLabel: e.label}); err != nil {
			return nil, s.compensate(ctx, "assertion", asrt.ID(), err)
		}
	}
	return asrt, nil
}

// Disambiguate splits a term in two: the original is renamed, a sibling is
// created, and a disambiguation node links both.
func (s *atlasService) Disambiguate(ctx context.Context, label, id string, req DisambiguateRequest) (atlas.Record, error) {
	orig, err := s.repo.GetOne(ctx, label, "id", id, nodes.GetOptions{SkipRelations: true})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Term1Name) == "" || strings.TrimSpace(req.Term2Name) == "" {
		return nil, fmt.Errorf("%w: both term names required", atlas.ErrInvalidArgument)
	}
	actor := ctxutil.GetActor(ctx)

	sibling, err := s.repo.Create(ctx, label, qualifiedName(req.Term2Name, req.Term2Extension),
		map[string]any{"definition_text": req.Term2Definition}, actor)
	if err != nil {
		return nil, err
	}
	disam, err := s.repo.Create(ctx, "disambiguation", req.Term1Name, nil, actor)
	if err != nil {
		return nil, s.compensate(ctx, label, sibling.ID(), err)
	}
	for _, target := range []string{sibling.ID(), orig.ID()} {
		if _, err := s.repo.Link(ctx, "disambiguation", disam.ID(), target, "DISAMBIGUATES", nodes.LinkOptions{DestLabel: label}); err != nil {
			cause := s.compensate(ctx, "disambiguation", disam.ID(), err)
			return nil, s.compensate(ctx, label, sibling.ID(), cause)
		}
	}
	if err := s.repo.Update(ctx, label, orig.ID(), map[string]any{
		"name":            qualifiedName(req.Term1Name, req.Term1Extension),
		"definition_text": req.Term1Definition,
	}, actor); err != nil {
		return disam, fmt.Errorf("rename %s: %w", orig.ID(), err)
	}
	return disam, nil
}

func qualifiedName(name, ext string) string {
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(name), strings.TrimSpace(ext))
}
