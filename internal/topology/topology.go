// Package topology builds the super-peer adjacency graph, chooses TTL, and
// generates the per-leaf initial-file/request-file assignment: a
// random-shuffle-and-take-prefix for each leaf's initial files, then
// reject-sampling against the shared "used" file universe for requests.
package topology

import (
	"math/rand"
	"strconv"

	"github.com/abeynet/filemesh/internal/protocol"
)

// Adjacency builds the super-overlay neighbor sets for n supers (ids
// 1..n). ALL_TO_ALL is the complete graph; LINEAR is the path graph with
// each super connected to id±1 when present.
func Adjacency(n int, kind protocol.Topology) map[int][]int {
	adj := make(map[int][]int, n)
	for id := 1; id <= n; id++ {
		switch kind {
		case protocol.Linear:
			var neighbors []int
			if id > 1 {
				neighbors = append(neighbors, id-1)
			}
			if id < n {
				neighbors = append(neighbors, id+1)
			}
			adj[id] = neighbors
		default: // AllToAll
			neighbors := make([]int, 0, n-1)
			for other := 1; other <= n; other++ {
				if other != id {
					neighbors = append(neighbors, other)
				}
			}
			adj[id] = neighbors
		}
	}
	return adj
}

// TTLFor chooses the origin TTL: ALL_TO_ALL has diameter 1, so TTL=2 lets a
// query reach the origin's super plus one forward to every neighbor;
// LINEAR's worst-case diameter is nSupers-1, so TTL=nSupers is used to stay
// safely above it.
func TTLFor(kind protocol.Topology, nSupers int) int {
	if kind == protocol.AllToAll {
		return 2
	}
	return nSupers
}

// Plan is the fully-generated experiment input: topology, TTL, and the
// per-leaf initial/request file assignment.
type Plan struct {
	NSupers           int
	LeavesPerSuper    int
	FilesPerLeaf      int
	RequestsPerLeaf   int
	DuplicationFactor int
	Topology          protocol.Topology
	TTL               int
	Adjacency         map[int][]int

	// InitialFiles[i] / RequestFiles[i] describe the leaf at index i (0
	// based); its peer id is NSupers+1+i and its parent super is
	// i%NSupers+1.
	InitialFiles  [][]string
	RequestFiles  [][]string
	TotalRequests int
}

// LeafID returns the peer id for the leaf at the given 0-based index.
func (p *Plan) LeafID(index int) int { return p.NSupers + 1 + index }

// LeafSuper returns the parent super id for the leaf at the given 0-based
// index, assigning leaves round-robin across supers.
func (p *Plan) LeafSuper(index int) int { return index%p.NSupers + 1 }

// NumLeaves returns the total number of leaves in the plan.
func (p *Plan) NumLeaves() int { return p.NSupers * p.LeavesPerSuper }

// Build generates a complete experiment plan: it picks a file-name
// universe sized nSupers*leavesPerSuper*filesPerLeaf/duplicationFactor,
// assigns each leaf a shuffled prefix of that universe as its initial
// files, tracks the global "used" set, then for each leaf samples up to
// requestsPerLeaf distinct names from used, excluding files the leaf
// already owns.
func Build(nSupers, leavesPerSuper, filesPerLeaf, requestsPerLeaf int, kind protocol.Topology, duplicationFactor int) *Plan {
	plan := &Plan{
		NSupers:           nSupers,
		LeavesPerSuper:    leavesPerSuper,
		FilesPerLeaf:      filesPerLeaf,
		RequestsPerLeaf:   requestsPerLeaf,
		DuplicationFactor: duplicationFactor,
		Topology:          kind,
		TTL:               TTLFor(kind, nSupers),
		Adjacency:         Adjacency(nSupers, kind),
	}

	universeSize := nSupers * leavesPerSuper * filesPerLeaf / duplicationFactor
	if universeSize < 1 {
		universeSize = 1
	}
	numbers := make([]int, universeSize)
	for i := range numbers {
		numbers[i] = i + 1
	}

	numLeaves := plan.NumLeaves()
	plan.InitialFiles = make([][]string, numLeaves)
	used := make(map[int]struct{})

	for i := 0; i < numLeaves; i++ {
		shuffled := append([]int(nil), numbers...)
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		take := filesPerLeaf
		if take > len(shuffled) {
			take = len(shuffled)
		}
		files := make([]string, take)
		for j := 0; j < take; j++ {
			files[j] = strconv.Itoa(shuffled[j]) + ".txt"
			used[shuffled[j]] = struct{}{}
		}
		plan.InitialFiles[i] = files
	}

	usedSlice := make([]int, 0, len(used))
	for n := range used {
		usedSlice = append(usedSlice, n)
	}

	plan.RequestFiles = make([][]string, numLeaves)
	for i := 0; i < numLeaves; i++ {
		owned := make(map[string]struct{}, len(plan.InitialFiles[i]))
		for _, f := range plan.InitialFiles[i] {
			owned[f] = struct{}{}
		}
		available := 0
		for n := range used {
			if _, has := owned[strconv.Itoa(n)+".txt"]; !has {
				available++
			}
		}
		numRequests := requestsPerLeaf
		if numRequests > available {
			numRequests = available
		}
		plan.TotalRequests += numRequests

		requested := make(map[string]struct{}, numRequests)
		requests := make([]string, 0, numRequests)
		for len(requests) < numRequests {
			n := usedSlice[rand.Intn(len(usedSlice))]
			name := strconv.Itoa(n) + ".txt"
			if _, dup := requested[name]; dup {
				continue
			}
			if _, own := owned[name]; own {
				continue
			}
			requested[name] = struct{}{}
			requests = append(requests, name)
		}
		plan.RequestFiles[i] = requests
	}

	return plan
}
