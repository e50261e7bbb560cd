// Package orchestrator builds the topology, spawns supers and leaves,
// gates the experiment's start/end barriers, and times throughput: wait
// for all supers ready, start a clock, release the leaves, wait for all
// leaves complete, stop the clock, report requests/second, then signal
// end to everyone.
package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/abeynet/filemesh/internal/leafpeer"
	"github.com/abeynet/filemesh/internal/localstore"
	"github.com/abeynet/filemesh/internal/logging"
	"github.com/abeynet/filemesh/internal/netaddr"
	"github.com/abeynet/filemesh/internal/protocol"
	"github.com/abeynet/filemesh/internal/rpcutil"
	"github.com/abeynet/filemesh/internal/seed"
	"github.com/abeynet/filemesh/internal/superpeer"
	"github.com/abeynet/filemesh/internal/topology"
)

// OrchestratorID is the fixed peer id the orchestrator binds, distinct
// from every super and leaf id (supers are numbered from 1, leaves from
// nSupers+1).
const OrchestratorID = 0

var log = logging.New("orchestrator")

// Config is the launcher's positional-argument contract.
type Config struct {
	NSupers           int
	LeavesPerSuper    int
	FilesPerLeaf      int
	RequestsPerLeaf   int
	Topology          protocol.Topology
	DuplicationFactor int
}

// Orchestrator gates the experiment's ready/complete barriers.
type Orchestrator struct {
	nSupers     int
	totalLeaves int

	readyMu    sync.Mutex
	readyCond  *sync.Cond
	readyCount int

	completeMu    sync.Mutex
	completeCond  *sync.Cond
	completeCount int
}

// New constructs an orchestrator expecting nSupers ready signals and
// totalLeaves complete signals.
func New(nSupers, totalLeaves int) *Orchestrator {
	o := &Orchestrator{nSupers: nSupers, totalLeaves: totalLeaves}
	o.readyCond = sync.NewCond(&o.readyMu)
	o.completeCond = sync.NewCond(&o.completeMu)
	return o
}

// Listen binds the orchestrator's RPC server under its own service name
// (distinct from "Peer": only supers and leaves call it, and they always
// know they're calling the orchestrator).
func (o *Orchestrator) Listen(port int) (*rpcutil.Server, error) {
	return rpcutil.Listen(port, "Orchestrator", o)
}

// Ready is called by a super once all of its children are ready.
func (o *Orchestrator) Ready(args *protocol.None, reply *protocol.None) error {
	o.readyMu.Lock()
	o.readyCount++
	o.readyMu.Unlock()
	o.readyCond.Broadcast()
	return nil
}

// Complete is called by a leaf once its pending queries reach zero.
func (o *Orchestrator) Complete(args *protocol.None, reply *protocol.None) error {
	o.completeMu.Lock()
	o.completeCount++
	o.completeMu.Unlock()
	o.completeCond.Broadcast()
	return nil
}

func (o *Orchestrator) waitAllSupersReady() {
	o.readyMu.Lock()
	defer o.readyMu.Unlock()
	for o.readyCount < o.nSupers {
		o.readyCond.Wait()
	}
}

func (o *Orchestrator) waitAllLeavesComplete() {
	o.completeMu.Lock()
	defer o.completeMu.Unlock()
	for o.completeCount < o.totalLeaves {
		o.completeCond.Wait()
	}
}

// Result reports the experiment's measured throughput.
type Result struct {
	TotalRequests int
	Elapsed       time.Duration
}

func (r Result) RequestsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.TotalRequests) / r.Elapsed.Seconds()
}

// spawnedPeer is the common shape Run tracks so End can be fanned out to
// every peer at teardown.
type spawnedPeer struct {
	id     int
	server *rpcutil.Server
	end    func() error
}

// Run executes the whole experiment in-process: it builds the topology
// plan, launches one goroutine per super and per leaf (each binding its
// own RPC server on netaddr.Port(id), exactly as a standalone process
// would), gates start/completion through the barriers above, and reports
// throughput.
func Run(cfg Config) (Result, error) {
	plan := topology.Build(cfg.NSupers, cfg.LeavesPerSuper, cfg.FilesPerLeaf, cfg.RequestsPerLeaf, cfg.Topology, cfg.DuplicationFactor)

	orch := New(cfg.NSupers, plan.NumLeaves())
	orchServer, err := orch.Listen(netaddr.Port(OrchestratorID))
	if err != nil {
		return Result{}, fmt.Errorf("binding orchestrator: %w", err)
	}
	defer orchServer.Close()

	var peers []spawnedPeer
	var peersMu sync.Mutex

	log.Info("spawning supers", "n", cfg.NSupers)
	for id := 1; id <= cfg.NSupers; id++ {
		id := id
		clients := rpcutil.NewClientCache()
		super := superpeer.New(id, cfg.NSupers, countChildrenOf(plan, id), plan.Adjacency[id], clients)
		srv, err := super.Listen(netaddr.Port(id))
		if err != nil {
			return Result{}, fmt.Errorf("binding super %d: %w", id, err)
		}
		peersMu.Lock()
		peers = append(peers, spawnedPeer{id: id, server: srv, end: func() error {
			_, err := noneCall(clients, id, protocol.PeerService+".End")
			return err
		}})
		peersMu.Unlock()

		go func() {
			super.WaitChildrenReady()
			log.Debug("super children ready", "super", id)
			if err := clients.CallSync(OrchestratorID, "Orchestrator.Ready", &protocol.None{}, &protocol.None{}); err != nil {
				log.Warn("super failed to signal ready", "super", id, "err", err)
			}
		}()
	}

	log.Info("spawning leaves", "n", plan.NumLeaves())
	for i := 0; i < plan.NumLeaves(); i++ {
		i := i
		leafID := plan.LeafID(i)
		superID := plan.LeafSuper(i)
		clients := rpcutil.NewClientCache()

		store, err := localstore.Open(leafID)
		if err != nil {
			return Result{}, fmt.Errorf("opening store for leaf %d: %w", leafID, err)
		}
		leaf := leafpeer.New(leafID, superID, cfg.NSupers, store, clients)

		srv, err := leaf.Listen(netaddr.Port(leafID))
		if err != nil {
			return Result{}, fmt.Errorf("binding leaf %d: %w", leafID, err)
		}
		peersMu.Lock()
		peers = append(peers, spawnedPeer{id: leafID, server: srv, end: func() error {
			_, err := noneCall(clients, leafID, protocol.PeerService+".End")
			return err
		}})
		peersMu.Unlock()

		initialFiles := plan.InitialFiles[i]
		requestFiles := plan.RequestFiles[i]
		go func() {
			if err := leaf.Bootstrap(initialFiles, func(name string) []byte {
				return seed.Generate(leafID, seed.DefaultSize)
			}); err != nil {
				log.Warn("leaf bootstrap failed", "leaf", leafID, "err", err)
				return
			}
			leaf.WaitStart()
			for _, fileName := range requestFiles {
				leaf.IssueQuery(fileName, plan.TTL)
			}
			leaf.WaitPendingZero(0)
			if err := leaf.SignalComplete(OrchestratorID); err != nil {
				log.Warn("leaf failed to signal complete", "leaf", leafID, "err", err)
			}
		}()
	}

	orch.waitAllSupersReady()
	log.Info("supers are ready")

	start := time.Now()
	log.Info("starting leaf requests")
	startClients := rpcutil.NewClientCache()
	for i := 0; i < plan.NumLeaves(); i++ {
		leafID := plan.LeafID(i)
		if _, err := noneCall(startClients, leafID, protocol.PeerService+".Start"); err != nil {
			log.Warn("failed to start leaf", "leaf", leafID, "err", err)
		}
	}

	orch.waitAllLeavesComplete()
	elapsed := time.Since(start)
	result := Result{TotalRequests: plan.TotalRequests, Elapsed: elapsed}
	log.Info("leaves have finished", "requests", result.TotalRequests, "seconds", elapsed.Seconds(), "reqps", result.RequestsPerSecond())

	peersMu.Lock()
	for _, p := range peers {
		if err := p.end(); err != nil {
			log.Warn("end signal failed", "peer", p.id, "err", err)
		}
		if err := p.server.Close(); err != nil {
			log.Warn("closing peer listener failed", "peer", p.id, "err", err)
		}
	}
	peersMu.Unlock()

	return result, nil
}

func countChildrenOf(plan *topology.Plan, superID int) int {
	count := 0
	for i := 0; i < plan.NumLeaves(); i++ {
		if plan.LeafSuper(i) == superID {
			count++
		}
	}
	return count
}

func noneCall(clients *rpcutil.ClientCache, peerID int, method string) (struct{}, error) {
	return struct{}{}, clients.CallSync(peerID, method, &protocol.None{}, &protocol.None{})
}
