package rpcutil

import (
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/pborman/uuid"

	"github.com/abeynet/filemesh/internal/logging"
	"github.com/abeynet/filemesh/internal/netaddr"
	"github.com/abeynet/filemesh/internal/protocol"
)

var clientLog = logging.New("rpcutil")

// cachedClient pairs a dialed net/rpc client with a correlation id used
// only in log lines, not in the protocol itself.
type cachedClient struct {
	client *rpc.Client
	tag    string
}

// ClientCache dials each remote peer at most once and reuses the
// connection for the lifetime of the process. It is write-once under a
// lock, not an LRU: every peer stays reachable for as long as the
// experiment runs, so evicting an idle connection would only force a
// pointless redial later.
type ClientCache struct {
	mu      sync.Mutex
	clients map[int]*cachedClient
}

// NewClientCache returns an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{clients: make(map[int]*cachedClient)}
}

// dial returns the cached client for peerID, dialing it on first use.
func (c *ClientCache) dial(peerID int) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cc, ok := c.clients[peerID]; ok {
		return cc.client, nil
	}
	client, err := rpc.Dial("tcp", netaddr.HostPort(peerID))
	if err != nil {
		return nil, protocol.NewTransportError(err.Error())
	}
	tag := uuid.New()[:8]
	c.clients[peerID] = &cachedClient{client: client, tag: tag}
	clientLog.Debug("dialed peer", "peer", peerID, "tag", tag)
	return client, nil
}

// CallSync performs a synchronous RPC against peerID.
func (c *ClientCache) CallSync(peerID int, method string, args, reply interface{}) error {
	client, err := c.dial(peerID)
	if err != nil {
		return err
	}
	if err := client.Call(method, args, reply); err != nil {
		return protocol.NewTransportError(err.Error())
	}
	return nil
}

// CallAsync fires method at peerID without waiting for the reply. Errors
// (dial failures, transport errors) are logged, never retried: the flood
// itself provides redundancy through alternative paths, so retrying a
// single forward here would only duplicate work the protocol already
// covers.
func (c *ClientCache) CallAsync(peerID int, method string, args interface{}) {
	client, err := c.dial(peerID)
	if err != nil {
		clientLog.Warn("async call dial failed", "peer", peerID, "method", method, "err", err)
		return
	}
	reply := &protocol.None{}
	call := client.Go(method, args, reply, make(chan *rpc.Call, 1))
	go func() {
		done := <-call.Done
		if done.Error != nil {
			clientLog.Warn("async call failed", "peer", peerID, "method", method, "err", done.Error)
		}
	}()
}

// Close shuts down every cached connection.
func (c *ClientCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cc := range c.clients {
		cc.client.Close()
	}
	c.clients = make(map[int]*cachedClient)
}

// EnsureReachable dials peerID in a retry-forever loop with the given
// per-attempt timeout, used by a leaf racing its super's socket-open delay
// at startup. The resulting connection is cached under the write-once
// lock so the subsequent Add/Ready/Query calls reuse it instead of
// redialing.
func (c *ClientCache) EnsureReachable(peerID int, timeout time.Duration) {
	for {
		conn, err := net.DialTimeout("tcp", netaddr.HostPort(peerID), timeout)
		if err == nil {
			c.mu.Lock()
			if _, ok := c.clients[peerID]; !ok {
				tag := uuid.New()[:8]
				c.clients[peerID] = &cachedClient{client: rpc.NewClient(conn), tag: tag}
			} else {
				conn.Close()
			}
			c.mu.Unlock()
			return
		}
		time.Sleep(timeout)
	}
}
