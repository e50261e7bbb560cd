package superpeer

import (
	"sync"
	"testing"
	"time"

	"github.com/abeynet/filemesh/internal/netaddr"
	"github.com/abeynet/filemesh/internal/protocol"
	"github.com/abeynet/filemesh/internal/rpcutil"
)

func TestAddIsIdempotent(t *testing.T) {
	s := New(1, 1, 0, nil, rpcutil.NewClientCache())
	args := &protocol.AddArgs{LeafID: 7, FileName: "5.txt"}
	if err := s.Add(args, &protocol.None{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(args, &protocol.None{}); err != nil {
		t.Fatal(err)
	}
	idx := s.DumpIndex()
	if got := len(idx["5.txt"]); got != 1 {
		t.Fatalf("index[5.txt] has %d entries, want 1", got)
	}
}

func TestQueryFirstSightingInsertsAllSenders(t *testing.T) {
	s := New(1, 1, 0, nil, rpcutil.NewClientCache())
	mid := protocol.MessageID{Origin: 50, Seq: 0}

	// Two distinct neighbors forward the same query; both must be recorded
	// as reverse-path candidates even though only the first is a "first
	// sighting".
	if err := s.Query(&protocol.QueryArgs{Sender: 2, Message: mid, TTL: 2, FileName: "missing.txt"}, &protocol.None{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Query(&protocol.QueryArgs{Sender: 3, Message: mid, TTL: 2, FileName: "missing.txt"}, &protocol.None{}); err != nil {
		t.Fatal(err)
	}

	senders := s.HistorySenders(mid)
	if len(senders) != 2 {
		t.Fatalf("history has %d senders, want 2 (got %v)", len(senders), senders)
	}
}

func TestQueryHitDropsUnknownMessage(t *testing.T) {
	s := New(1, 1, 0, nil, rpcutil.NewClientCache())
	mid := protocol.MessageID{Origin: 99, Seq: 0}
	// No prior Query recorded this messageId; QueryHit must be a silent
	// drop, not a panic or forward.
	if err := s.QueryHit(&protocol.QueryHitArgs{Sender: 2, Message: mid, TTL: 5, FileName: "x.txt", Leaves: []int{1}}, &protocol.None{}); err != nil {
		t.Fatal(err)
	}
}

func TestQueryHitEndToEndDeliversOnlyToSender(t *testing.T) {
	const mockID = 9301
	const superID = 9302

	var mu sync.Mutex
	var received []*protocol.QueryHitArgs
	got := make(chan struct{}, 4)

	mock := &mockPeer{onQueryHit: func(args *protocol.QueryHitArgs) {
		mu.Lock()
		received = append(received, args)
		mu.Unlock()
		got <- struct{}{}
	}}
	mockSrv, err := rpcutil.Listen(netaddr.Port(mockID), protocol.PeerService, mock)
	if err != nil {
		t.Fatal(err)
	}
	defer mockSrv.Close()

	clients := rpcutil.NewClientCache()
	s := New(superID, 1, 0, nil, clients)
	superSrv, err := s.Listen(netaddr.Port(superID))
	if err != nil {
		t.Fatal(err)
	}
	defer superSrv.Close()

	if err := s.Add(&protocol.AddArgs{LeafID: 999, FileName: "5.txt"}, &protocol.None{}); err != nil {
		t.Fatal(err)
	}

	mid := protocol.MessageID{Origin: mockID, Seq: 0}
	if err := clients.CallSync(superID, protocol.PeerService+".Query", &protocol.QueryArgs{
		Sender: mockID, Message: mid, TTL: 2, FileName: "5.txt",
	}, &protocol.None{}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query hit")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("mock received %d query hits, want 1", len(received))
	}
	if len(received[0].Leaves) != 1 || received[0].Leaves[0] != 999 {
		t.Fatalf("query hit leaves = %v, want [999]", received[0].Leaves)
	}
}

// mockPeer satisfies the Peer RPC surface minimally, recording QueryHit
// calls so tests can assert on exactly what a super sends back.
type mockPeer struct {
	onQueryHit func(*protocol.QueryHitArgs)
}

func (m *mockPeer) Ping(args *protocol.None, reply *protocol.None) error { return nil }
func (m *mockPeer) Ready(args *protocol.None, reply *protocol.None) error { return nil }
func (m *mockPeer) End(args *protocol.None, reply *protocol.None) error { return nil }
func (m *mockPeer) QueryHit(args *protocol.QueryHitArgs, reply *protocol.None) error {
	if m.onQueryHit != nil {
		m.onQueryHit(args)
	}
	return nil
}
