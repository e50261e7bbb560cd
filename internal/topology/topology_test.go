package topology

import (
	"testing"

	"github.com/abeynet/filemesh/internal/protocol"
)

func TestTTLForAllToAllIsDiameterPlusOne(t *testing.T) {
	// A complete graph has diameter 1: one hop from the origin's super
	// reaches every neighbor directly. TTL=2 survives exactly the single
	// decrement a forwarding super applies, so the query is never dropped
	// before reaching a neighbor.
	if got := TTLFor(protocol.AllToAll, 10); got != 2 {
		t.Fatalf("TTLFor(AllToAll, 10) = %d, want 2", got)
	}
}

func TestTTLForLinearCoversWorstCaseDiameter(t *testing.T) {
	if got := TTLFor(protocol.Linear, 5); got != 5 {
		t.Fatalf("TTLFor(Linear, 5) = %d, want 5", got)
	}
}

func TestAdjacencyAllToAllIsComplete(t *testing.T) {
	adj := Adjacency(4, protocol.AllToAll)
	for id := 1; id <= 4; id++ {
		if len(adj[id]) != 3 {
			t.Fatalf("super %d has %d neighbors, want 3", id, len(adj[id]))
		}
		for _, n := range adj[id] {
			if n == id {
				t.Fatalf("super %d lists itself as a neighbor", id)
			}
		}
	}
}

func TestAdjacencyLinearIsPath(t *testing.T) {
	adj := Adjacency(5, protocol.Linear)
	if len(adj[1]) != 1 || adj[1][0] != 2 {
		t.Fatalf("super 1 neighbors = %v, want [2]", adj[1])
	}
	if len(adj[5]) != 1 || adj[5][0] != 4 {
		t.Fatalf("super 5 neighbors = %v, want [4]", adj[5])
	}
	if len(adj[3]) != 2 {
		t.Fatalf("super 3 neighbors = %v, want 2 entries", adj[3])
	}
}

func TestBuildRequestsExcludeOwnedFiles(t *testing.T) {
	plan := Build(2, 2, 3, 5, protocol.AllToAll, 1)
	for i, requests := range plan.RequestFiles {
		owned := make(map[string]bool)
		for _, f := range plan.InitialFiles[i] {
			owned[f] = true
		}
		seen := make(map[string]bool)
		for _, r := range requests {
			if owned[r] {
				t.Fatalf("leaf %d requested a file it already owns: %s", i, r)
			}
			if seen[r] {
				t.Fatalf("leaf %d has a duplicate request: %s", i, r)
			}
			seen[r] = true
		}
	}
}

func TestBuildRequestCountBoundedByRequestsPerLeaf(t *testing.T) {
	plan := Build(3, 2, 2, 100, protocol.Linear, 2)
	for i, requests := range plan.RequestFiles {
		if len(requests) > plan.RequestsPerLeaf {
			t.Fatalf("leaf %d has %d requests, more than requestsPerLeaf=%d", i, len(requests), plan.RequestsPerLeaf)
		}
	}
}

func TestLeafSuperAssignmentRoundRobin(t *testing.T) {
	plan := Build(3, 2, 1, 0, protocol.AllToAll, 1)
	for i := 0; i < plan.NumLeaves(); i++ {
		want := i%3 + 1
		if got := plan.LeafSuper(i); got != want {
			t.Fatalf("LeafSuper(%d) = %d, want %d", i, got, want)
		}
	}
}
