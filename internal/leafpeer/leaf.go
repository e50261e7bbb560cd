// Package leafpeer implements the leaf role: it holds local files,
// registers them with its parent super, issues queries, and fetches bytes
// from whichever leaf a query hit names. Downloads run on a detached
// goroutine so the RPC handler thread returns promptly and a slow transfer
// never blocks the next incoming hit.
package leafpeer

import (
	"math/rand"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/abeynet/filemesh/internal/localstore"
	"github.com/abeynet/filemesh/internal/logging"
	"github.com/abeynet/filemesh/internal/protocol"
	"github.com/abeynet/filemesh/internal/rpcutil"
)

// PingRetryTimeout is the per-attempt timeout for the startup ping loop
// against the parent super, retried forever until the super's listener
// comes up.
const PingRetryTimeout = 50 * time.Millisecond

// maxObtainRetries bounds the number of alternate sources a leaf tries
// before giving up on a query hit, capped at the candidate set size.
const maxObtainRetries = 8

// Leaf holds one leaf's request/fulfillment state.
type Leaf struct {
	id      int
	superID int
	nSupers int

	store   *localstore.Store
	clients *rpcutil.ClientCache
	log     interface {
		Debug(msg string, ctx ...interface{})
		Info(msg string, ctx ...interface{})
		Warn(msg string, ctx ...interface{})
	}

	pendingMu   sync.Mutex
	pendingCond *sync.Cond
	pending     int

	retrievedMu sync.Mutex
	retrieved   mapset.Set

	seqMu sync.Mutex
	seq   int

	startMu   sync.Mutex
	startCond *sync.Cond
	canStart  bool

	endMu   sync.Mutex
	endCond *sync.Cond
	canEnd  bool
}

// New constructs a leaf attached to superID.
func New(id, superID, nSupers int, store *localstore.Store, clients *rpcutil.ClientCache) *Leaf {
	l := &Leaf{
		id:        id,
		superID:   superID,
		nSupers:   nSupers,
		store:     store,
		clients:   clients,
		log:       logging.New("leaf", "id", id),
		retrieved: mapset.NewSet(),
	}
	l.pendingCond = sync.NewCond(&l.pendingMu)
	l.startCond = sync.NewCond(&l.startMu)
	l.endCond = sync.NewCond(&l.endMu)
	return l
}

// ID returns the leaf's peer id.
func (l *Leaf) ID() int { return l.id }

// Listen binds the leaf's RPC server.
func (l *Leaf) Listen(port int) (*rpcutil.Server, error) {
	return rpcutil.Listen(port, protocol.PeerService, l)
}

// Bootstrap races the parent super's socket-open delay, then publishes
// each of fileNames (writing seeded placeholder bytes locally first) and
// signals readiness.
func (l *Leaf) Bootstrap(fileNames []string, seedFn func(name string) []byte) error {
	l.clients.EnsureReachable(l.superID, PingRetryTimeout)

	for _, name := range fileNames {
		if err := l.store.Write(name, seedFn(name)); err != nil {
			return err
		}
		if err := l.clients.CallSync(l.superID, protocol.PeerService+".Add", &protocol.AddArgs{
			LeafID: l.id, FileName: name,
		}, &protocol.None{}); err != nil {
			return err
		}
	}
	return l.clients.CallSync(l.superID, protocol.PeerService+".Ready", &protocol.None{}, &protocol.None{})
}

// WaitStart blocks until Start has been observed.
func (l *Leaf) WaitStart() {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	for !l.canStart {
		l.startCond.Wait()
	}
}

// WaitPendingZero blocks until every issued query has resolved (hit
// delivered or exhausted). A zero timeout waits forever; callers
// exercising a guaranteed miss should pass a bounded timeout and check the
// returned bool, since a miss produces no negative acknowledgment.
func (l *Leaf) WaitPendingZero(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.pendingMu.Lock()
		for l.pending > 0 {
			l.pendingCond.Wait()
		}
		l.pendingMu.Unlock()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IssueQuery allocates a fresh messageId and fires a query to the parent
// super, incrementing pendingQueries before the call so a reply racing the
// increment is never mistaken for an extra, unmatched completion.
func (l *Leaf) IssueQuery(fileName string, ttl int) {
	l.seqMu.Lock()
	mid := protocol.MessageID{Origin: l.id, Seq: l.seq}
	l.seq++
	l.seqMu.Unlock()

	l.pendingMu.Lock()
	l.pending++
	l.pendingMu.Unlock()

	l.log.Debug("querying", "file", fileName, "message", mid)
	l.clients.CallAsync(l.superID, protocol.PeerService+".Query", &protocol.QueryArgs{
		Sender:   l.id,
		Message:  mid,
		TTL:      ttl,
		FileName: fileName,
	})
}

// decrementPending is the single place pendingQueries drops, whether a
// download succeeded or failed permanently. Only the first hit for a file
// starts a download, so each IssueQuery call is matched by at most one
// decrementPending; a duplicate hit releases nothing, and a query that
// never gets a hit is never decremented.
func (l *Leaf) decrementPending() {
	l.pendingMu.Lock()
	l.pending--
	l.pendingMu.Unlock()
	l.pendingCond.Broadcast()
}

// --- RPC handlers ---

func (l *Leaf) Ping(args *protocol.None, reply *protocol.None) error { return nil }

// QueryHit handles an incoming hit: duplicate hits for an
// already-retrieved file are dropped; otherwise a source leaf is picked at
// random and the download is dispatched on a detached goroutine so this
// handler returns immediately.
func (l *Leaf) QueryHit(args *protocol.QueryHitArgs, reply *protocol.None) error {
	l.retrievedMu.Lock()
	if l.retrieved.Contains(args.FileName) {
		l.retrievedMu.Unlock()
		l.log.Debug("dropping duplicate query hit", "file", args.FileName, "err", protocol.NewProtocolDrop("duplicate query hit"))
		return nil
	}
	l.retrieved.Add(args.FileName)
	l.retrievedMu.Unlock()

	leaves := append([]int(nil), args.Leaves...)
	fileName := args.FileName
	go l.download(fileName, leaves)
	return nil
}

// download fetches fileName's bytes from a randomly-chosen source among
// leaves, retrying other sources on failure (bounded by the candidate set
// size) before giving up. pendingQueries is decremented exactly once, on
// success or exhaustion.
func (l *Leaf) download(fileName string, leaves []int) {
	defer l.decrementPending()

	candidates := append([]int(nil), leaves...)
	attempts := len(candidates)
	if attempts > maxObtainRetries {
		attempts = maxObtainRetries
	}

	for i := 0; i < attempts && len(candidates) > 0; i++ {
		idx := rand.Intn(len(candidates))
		source := candidates[idx]
		candidates = append(candidates[:idx], candidates[idx+1:]...)

		var reply protocol.ObtainReply
		err := l.clients.CallSync(source, protocol.PeerService+".Obtain", &protocol.ObtainArgs{FileName: fileName}, &reply)
		if err != nil {
			l.log.Warn("obtain failed, trying another source", "file", fileName, "source", source, "err", err)
			continue
		}
		if err := l.store.Write(fileName, reply.Data); err != nil {
			l.log.Warn("writing downloaded file failed", "file", fileName, "err", err)
			continue
		}
		l.log.Debug("download complete", "file", fileName, "source", source)
		return
	}
	l.log.Warn("file unretrievable, all sources exhausted", "file", fileName)
}

// Obtain returns the named file's bytes, or protocol.NotFound /
// protocol.ReadError.
func (l *Leaf) Obtain(args *protocol.ObtainArgs, reply *protocol.ObtainReply) error {
	data, err := l.store.Read(args.FileName)
	if err != nil {
		return err
	}
	reply.Data = data
	return nil
}

// Start releases the pre-request barrier.
func (l *Leaf) Start(args *protocol.None, reply *protocol.None) error {
	l.startMu.Lock()
	l.canStart = true
	l.startMu.Unlock()
	l.startCond.Broadcast()
	return nil
}

// End latches termination.
func (l *Leaf) End(args *protocol.None, reply *protocol.None) error {
	l.endMu.Lock()
	l.canEnd = true
	l.endMu.Unlock()
	l.endCond.Broadcast()
	return nil
}

// WaitEnd blocks until End has been observed.
func (l *Leaf) WaitEnd() {
	l.endMu.Lock()
	defer l.endMu.Unlock()
	for !l.canEnd {
		l.endCond.Wait()
	}
}

// RetrievedFiles returns a snapshot of the dedupe set, for tests.
func (l *Leaf) RetrievedFiles() []string {
	l.retrievedMu.Lock()
	defer l.retrievedMu.Unlock()
	out := make([]string, 0, l.retrieved.Cardinality())
	for _, v := range l.retrieved.ToSlice() {
		out = append(out, v.(string))
	}
	return out
}

// SignalComplete reports to the orchestrator once every pending query has
// resolved.
func (l *Leaf) SignalComplete(orchestratorID int) error {
	return l.clients.CallSync(orchestratorID, "Orchestrator.Complete", &protocol.None{}, &protocol.None{})
}
