package leafpeer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abeynet/filemesh/internal/localstore"
	"github.com/abeynet/filemesh/internal/netaddr"
	"github.com/abeynet/filemesh/internal/protocol"
	"github.com/abeynet/filemesh/internal/rpcutil"
)

func withTempWD(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestObtainReturnsNotFoundForMissingFile(t *testing.T) {
	withTempWD(t)
	store, err := localstore.Open(1)
	if err != nil {
		t.Fatal(err)
	}
	l := New(1, 0, 1, store, rpcutil.NewClientCache())

	var reply protocol.ObtainReply
	err = l.Obtain(&protocol.ObtainArgs{FileName: "missing.txt"}, &reply)
	if !protocol.IsNotFound(err) {
		t.Fatalf("Obtain(missing) err = %v, want NotFound", err)
	}
}

func TestQueryHitDeduplicatesByRetrievedFiles(t *testing.T) {
	const sourceID = 9401
	const leafID = 9402

	withTempWD(t)
	os.MkdirAll(filepath.Join("Leaves", "Leaf 9401"), 0o755)
	os.WriteFile(filepath.Join("Leaves", "Leaf 9401", "5.txt"), []byte("hello world"), 0o644)

	sourceStore, err := localstore.Open(sourceID)
	if err != nil {
		t.Fatal(err)
	}
	sourceClients := rpcutil.NewClientCache()
	source := New(sourceID, 0, 1, sourceStore, sourceClients)
	sourceSrv, err := source.Listen(netaddr.Port(sourceID))
	if err != nil {
		t.Fatal(err)
	}
	defer sourceSrv.Close()

	leafStore, err := localstore.Open(leafID)
	if err != nil {
		t.Fatal(err)
	}
	leaf := New(leafID, 0, 1, leafStore, rpcutil.NewClientCache())

	// First hit: pending must be incremented before the download resolves.
	leaf.pendingMu.Lock()
	leaf.pending = 1
	leaf.pendingMu.Unlock()

	if err := leaf.QueryHit(&protocol.QueryHitArgs{
		Sender: 0, Message: protocol.MessageID{Origin: leafID, Seq: 0},
		TTL: 2, FileName: "5.txt", Leaves: []int{sourceID},
	}, &protocol.None{}); err != nil {
		t.Fatal(err)
	}

	if !leaf.WaitPendingZero(2 * time.Second) {
		t.Fatal("timed out waiting for download to complete")
	}

	got, err := leafStore.Read("5.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("downloaded content = %q, want %q", got, "hello world")
	}

	// A duplicate hit for the same file must be dropped: pending should
	// not be incremented again by the (absent) caller, and a second
	// QueryHit call is a silent no-op.
	leaf.pendingMu.Lock()
	leaf.pending = 1
	leaf.pendingMu.Unlock()
	if err := leaf.QueryHit(&protocol.QueryHitArgs{
		Sender: 0, Message: protocol.MessageID{Origin: leafID, Seq: 0},
		TTL: 2, FileName: "5.txt", Leaves: []int{sourceID},
	}, &protocol.None{}); err != nil {
		t.Fatal(err)
	}
	// Give the (non-existent) duplicate download goroutine a moment; it
	// should never have been spawned, so pending stays at 1 forever here.
	time.Sleep(50 * time.Millisecond)
	leaf.pendingMu.Lock()
	pending := leaf.pending
	leaf.pendingMu.Unlock()
	if pending != 1 {
		t.Fatalf("pending after duplicate hit = %d, want 1 (duplicate must not re-decrement)", pending)
	}

	files := leaf.RetrievedFiles()
	if len(files) != 1 || files[0] != "5.txt" {
		t.Fatalf("retrieved files = %v, want [5.txt]", files)
	}
}

func TestDownloadExhaustsSourcesAndStillDecrements(t *testing.T) {
	withTempWD(t)
	store, err := localstore.Open(9501)
	if err != nil {
		t.Fatal(err)
	}
	leaf := New(9501, 0, 1, store, rpcutil.NewClientCache())

	leaf.pendingMu.Lock()
	leaf.pending = 1
	leaf.pendingMu.Unlock()

	// No source in this list is reachable; download must exhaust and still
	// release the pending slot so the leaf can terminate.
	leaf.download("ghost.txt", []int{9998, 9999})

	leaf.pendingMu.Lock()
	pending := leaf.pending
	leaf.pendingMu.Unlock()
	if pending != 0 {
		t.Fatalf("pending after exhausted download = %d, want 0", pending)
	}
	if store.Has("ghost.txt") {
		t.Fatal("ghost.txt should not exist after an exhausted download")
	}
}
