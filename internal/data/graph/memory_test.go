package graph

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend { return NewMemoryBackend() })
}

func TestMemoryBackendConcurrentLinkCreatesOneEdge(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	for _, id := range []string{"tsk_a", "cnt_b"} {
		if _, err := b.CreateNode(ctx, "node", map[string]any{"id": id}); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := b.CreateRelationship(ctx, "tsk_a", "HASCONTRAST", "cnt_b", nil)
			if err != nil {
				t.Errorf("CreateRelationship: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	triples, err := b.MatchRelationships(ctx, RelPattern{Type: "HASCONTRAST"}, 0)
	if err != nil {
		t.Fatalf("MatchRelationships: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("edges = %d, want 1", len(triples))
	}
}

func TestMemoryBackendRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	if _, err := b.CreateNode(ctx, "concept", map[string]any{"id": "trm_x"}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := b.CreateNode(ctx, "task", map[string]any{"id": "trm_x"}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := b.CreateNode(ctx, "task", map[string]any{"name": "no id"}); err == nil {
		t.Fatalf("expected missing id error")
	}
}

func TestMemoryBackendSelfLoop(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	if _, err := b.CreateNode(ctx, "disorder", map[string]any{"id": "dso_d"}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, _, err := b.CreateRelationship(ctx, "dso_d", "ISA", "dso_d", nil); err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}
	out, err := b.Traverse(ctx, "disorder", "dso_d", []Hop{{Type: "ISA", Dir: Outgoing}})
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if len(out) != 1 || out[0].Last().ID() != "dso_d" {
		t.Fatalf("Traverse = %+v", out)
	}
	in, err := b.Traverse(ctx, "disorder", "dso_d", []Hop{{Type: "ISA", Dir: Incoming}})
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if len(in) != 1 {
		t.Fatalf("incoming paths = %d, want 1", len(in))
	}
}
