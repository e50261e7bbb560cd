// Package protocol defines the wire-level vocabulary shared by supers and
// leaves: message identity, topology selection, and RPC argument/reply
// shapes. It carries no behavior of its own, just types and constants.
package protocol

import "fmt"

// MessageID uniquely identifies a query flood. It is globally unique by
// construction: the origin leaf increments its own sequence counter
// monotonically per query.
type MessageID struct {
	Origin int
	Seq    int
}

func (m MessageID) String() string {
	return fmt.Sprintf("%d:%d", m.Origin, m.Seq)
}

// PeerService is the net/rpc service name both supers and leaves register
// their handlers under, so reverse-path routing can call "Peer.QueryHit"
// on a recorded sender without first knowing whether that sender is a
// leaf or another super.
const PeerService = "Peer"

// Topology selects the super-peer adjacency shape.
type Topology int

const (
	AllToAll Topology = iota
	Linear
)

func (t Topology) String() string {
	switch t {
	case AllToAll:
		return "all-to-all"
	case Linear:
		return "linear"
	default:
		return "unknown"
	}
}

// QueryArgs are the parameters of a Super.Query RPC.
type QueryArgs struct {
	Sender   int
	Message  MessageID
	TTL      int
	FileName string
}

// QueryHitArgs are the parameters of a Super.QueryHit / Leaf.QueryHit RPC.
type QueryHitArgs struct {
	Sender   int
	Message  MessageID
	TTL      int
	FileName string
	Leaves   []int
}

// AddArgs are the parameters of a Super.Add RPC.
type AddArgs struct {
	LeafID   int
	FileName string
}

// ObtainArgs are the parameters of a Leaf.Obtain RPC.
type ObtainArgs struct {
	FileName string
}

// ObtainReply carries the bytes a Leaf.Obtain RPC returns.
type ObtainReply struct {
	Data []byte
}

// None is used as the reply type (or arg type) for RPCs that carry no
// payload, the way gob-backed net/rpc calls still need a concrete type on
// both sides of the wire.
type None struct{}
