// Package superpeer implements the super-peer role: it serves the
// inter-super overlay, indexes the files its leaves announce, and floods
// queries with loop suppression and reverse-path query-hit routing.
//
// Both the file index and the message-id history are a map guarded by a
// single mutex, the same shape whether it's indexing file names or
// message ids.
package superpeer

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/abeynet/filemesh/internal/logging"
	"github.com/abeynet/filemesh/internal/protocol"
	"github.com/abeynet/filemesh/internal/rpcutil"
)

// Super holds one super-peer's routing state.
type Super struct {
	id        int
	nSupers   int
	nChildren int
	neighbors []int

	clients *rpcutil.ClientCache
	log     interface {
		Debug(msg string, ctx ...interface{})
		Info(msg string, ctx ...interface{})
		Warn(msg string, ctx ...interface{})
	}

	indexMu sync.Mutex
	index   map[string]mapset.Set // fileName -> set of leaf ids

	historyMu sync.Mutex
	history   map[protocol.MessageID]mapset.Set // messageId -> set of sender ids

	readyMu    sync.Mutex
	readyCond  *sync.Cond
	readyCount int

	endMu   sync.Mutex
	endCond *sync.Cond
	canEnd  bool
}

// New constructs a super peer. neighbors is the set of one-hop super ids on
// the inter-super overlay; nChildren is the number of leaves attached to
// it that must signal Ready before this super reports ready upstream.
func New(id, nSupers, nChildren int, neighbors []int, clients *rpcutil.ClientCache) *Super {
	s := &Super{
		id:        id,
		nSupers:   nSupers,
		nChildren: nChildren,
		neighbors: neighbors,
		clients:   clients,
		log:       logging.New("super", "id", id),
		index:     make(map[string]mapset.Set),
		history:   make(map[protocol.MessageID]mapset.Set),
	}
	s.readyCond = sync.NewCond(&s.readyMu)
	s.endCond = sync.NewCond(&s.endMu)
	return s
}

// ID returns the super's peer id.
func (s *Super) ID() int { return s.id }

// Listen binds the super's RPC server.
func (s *Super) Listen(port int) (*rpcutil.Server, error) {
	return rpcutil.Listen(port, protocol.PeerService, s)
}

// WaitChildrenReady blocks until nChildren leaves have signaled Ready.
func (s *Super) WaitChildrenReady() {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	for s.readyCount < s.nChildren {
		s.readyCond.Wait()
	}
}

// WaitEnd blocks until End has been observed.
func (s *Super) WaitEnd() {
	s.endMu.Lock()
	defer s.endMu.Unlock()
	for !s.canEnd {
		s.endCond.Wait()
	}
}

// --- RPC handlers (net/rpc method signature: func(args, *reply) error) ---

// Ping is a liveness probe with no side effects.
func (s *Super) Ping(args *protocol.None, reply *protocol.None) error {
	return nil
}

// Ready is called by a child leaf once it has published its initial files.
func (s *Super) Ready(args *protocol.None, reply *protocol.None) error {
	s.readyMu.Lock()
	s.readyCount++
	s.log.Debug("leaf ready", "count", s.readyCount, "of", s.nChildren)
	s.readyMu.Unlock()
	s.readyCond.Broadcast()
	return nil
}

// Add registers fileName under leafID in the index, idempotently.
func (s *Super) Add(args *protocol.AddArgs, reply *protocol.None) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	set, ok := s.index[args.FileName]
	if !ok {
		set = mapset.NewSet()
		s.index[args.FileName] = set
	}
	set.Add(args.LeafID)
	s.log.Debug("file registered", "leaf", args.LeafID, "file", args.FileName)
	return nil
}

// Query implements the flood-with-loop-suppression algorithm: first-sighting
// check and history insert happen atomically under historyMu (so that "was
// this entry empty before this arrival" is linearizable per messageId even
// under concurrent duplicate arrivals); the index lookup and any outbound
// forwarding happen afterwards, without holding the history lock, since no
// handler may hold a lock across an outbound call and forwarding here is
// fire-and-forget only as a courtesy to remote responsiveness.
func (s *Super) Query(args *protocol.QueryArgs, reply *protocol.None) error {
	s.historyMu.Lock()
	senders, exists := s.history[args.Message]
	if !exists {
		senders = mapset.NewSet()
		s.history[args.Message] = senders
	}
	firstSighting := senders.Cardinality() == 0
	senders.Add(args.Sender)
	s.historyMu.Unlock()

	if !firstSighting {
		s.log.Debug("dropping duplicate query", "err", protocol.NewProtocolDrop("duplicate query"))
		return nil
	}

	s.indexMu.Lock()
	leafSet, found := s.index[args.FileName]
	var leaves []int
	if found {
		for _, v := range leafSet.ToSlice() {
			leaves = append(leaves, v.(int))
		}
	}
	s.indexMu.Unlock()

	if found {
		s.log.Debug("file found, replying with query hit", "file", args.FileName, "to", args.Sender)
		s.clients.CallAsync(args.Sender, protocol.PeerService+".QueryHit", &protocol.QueryHitArgs{
			Sender:   s.id,
			Message:  args.Message,
			TTL:      s.nSupers,
			FileName: args.FileName,
			Leaves:   leaves,
		})
		return nil
	}

	if args.TTL-1 > 0 {
		s.log.Debug("forwarding query to neighbors", "file", args.FileName, "neighbors", s.neighbors)
		for _, neighbor := range s.neighbors {
			if neighbor == args.Sender {
				continue
			}
			s.clients.CallAsync(neighbor, protocol.PeerService+".Query", &protocol.QueryArgs{
				Sender:   s.id,
				Message:  args.Message,
				TTL:      args.TTL - 1,
				FileName: args.FileName,
			})
		}
	}
	return nil
}

// QueryHit implements reverse-path propagation: forward to every recorded
// query sender for this messageId except the immediate upstream sender of
// this hit. A messageId absent from history means a spurious or late hit,
// silently dropped.
func (s *Super) QueryHit(args *protocol.QueryHitArgs, reply *protocol.None) error {
	s.historyMu.Lock()
	senders, exists := s.history[args.Message]
	var recipients []int
	if exists {
		for _, v := range senders.ToSlice() {
			id := v.(int)
			if id != args.Sender {
				recipients = append(recipients, id)
			}
		}
	}
	s.historyMu.Unlock()

	if !exists {
		s.log.Debug("dropping query hit for unknown message", "message", args.Message, "err", protocol.NewProtocolDrop("unknown messageId"))
		return nil
	}
	if args.TTL-1 <= 0 {
		s.log.Debug("dropping query hit at expired TTL", "message", args.Message, "err", protocol.NewProtocolDrop("expired TTL"))
		return nil
	}
	for _, recipient := range recipients {
		s.clients.CallAsync(recipient, protocol.PeerService+".QueryHit", &protocol.QueryHitArgs{
			Sender:   s.id,
			Message:  args.Message,
			TTL:      args.TTL - 1,
			FileName: args.FileName,
			Leaves:   args.Leaves,
		})
	}
	return nil
}

// End latches termination; the RPC layer itself keeps running so in-flight
// handlers can finish, but WaitEnd unblocks the main goroutine.
func (s *Super) End(args *protocol.None, reply *protocol.None) error {
	s.endMu.Lock()
	s.canEnd = true
	s.endMu.Unlock()
	s.endCond.Broadcast()
	return nil
}

// HistorySenders returns a snapshot of the recorded senders for a
// messageId, exposed for tests verifying reverse-path routing and loop
// suppression.
func (s *Super) HistorySenders(mid protocol.MessageID) []int {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	set, ok := s.history[mid]
	if !ok {
		return nil
	}
	out := make([]int, 0, set.Cardinality())
	for _, v := range set.ToSlice() {
		out = append(out, v.(int))
	}
	return out
}

// DumpIndex returns a snapshot of the file index, for tests and ad hoc
// debugging; it is not exposed as an RPC.
func (s *Super) DumpIndex() map[string][]int {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	out := make(map[string][]int, len(s.index))
	for file, set := range s.index {
		leaves := make([]int, 0, set.Cardinality())
		for _, v := range set.ToSlice() {
			leaves = append(leaves, v.(int))
		}
		out[file] = leaves
	}
	return out
}
