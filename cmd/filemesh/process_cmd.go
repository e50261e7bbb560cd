package main

import (
	"fmt"
	"strings"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/abeynet/filemesh/internal/leafpeer"
	"github.com/abeynet/filemesh/internal/localstore"
	"github.com/abeynet/filemesh/internal/netaddr"
	"github.com/abeynet/filemesh/internal/protocol"
	"github.com/abeynet/filemesh/internal/rpcutil"
	"github.com/abeynet/filemesh/internal/seed"
	"github.com/abeynet/filemesh/internal/superpeer"
	"github.com/abeynet/filemesh/internal/topology"
)

// orchestratorIDFlag, idFlag and friends are shared by the standalone
// super/leaf subcommands: each binds one peer's own RPC listener on
// netaddr.Port(id) and talks to the rest of the overlay over the network,
// the same wiring orchestrator.Run uses for its in-process goroutines.
var (
	idFlag = cli.IntFlag{
		Name:  "id",
		Usage: "this peer's id",
	}
	orchestratorIDFlag = cli.IntFlag{
		Name:  "orchestrator",
		Value: 0,
		Usage: "peer id the orchestrator is listening on",
	}
)

var superCommand = cli.Command{
	Name:  "super",
	Usage: "launch one super-peer as a standalone process",
	Flags: []cli.Flag{
		idFlag, superFlag, topologyFlag,
		cli.IntFlag{Name: "children", Value: 0, Usage: "number of leaves attached to this super"},
		orchestratorIDFlag,
	},
	Action: superAction,
}

func superAction(ctx *cli.Context) error {
	id := ctx.Int(idFlag.Name)
	if id <= 0 {
		return fmt.Errorf("--id must be a positive super id")
	}
	nSupers := ctx.Int(superFlag.Name)
	kind := protocol.Topology(ctx.Int(topologyFlag.Name))
	neighbors := topology.Adjacency(nSupers, kind)[id]

	clients := rpcutil.NewClientCache()
	defer clients.Close()

	s := superpeer.New(id, nSupers, ctx.Int("children"), neighbors, clients)
	srv, err := s.Listen(netaddr.Port(id))
	if err != nil {
		return fmt.Errorf("binding super %d: %w", id, err)
	}
	defer srv.Close()

	orchestratorID := ctx.Int(orchestratorIDFlag.Name)
	go func() {
		s.WaitChildrenReady()
		clients.CallSync(orchestratorID, "Orchestrator.Ready", &protocol.None{}, &protocol.None{})
	}()

	s.WaitEnd()
	return nil
}

var leafCommand = cli.Command{
	Name:  "leaf",
	Usage: "launch one leaf as a standalone process",
	Flags: []cli.Flag{
		idFlag,
		cli.IntFlag{Name: "super-id", Usage: "parent super-peer id"},
		superFlag,
		cli.StringFlag{Name: "initial", Usage: "comma-separated file names this leaf publishes at startup"},
		cli.StringFlag{Name: "requests", Usage: "comma-separated file names this leaf queries once started"},
		cli.IntFlag{Name: "ttl", Value: 2, Usage: "TTL attached to every query this leaf issues"},
		orchestratorIDFlag,
	},
	Action: leafAction,
}

func leafAction(ctx *cli.Context) error {
	id := ctx.Int(idFlag.Name)
	if id <= 0 {
		return fmt.Errorf("--id must be a positive leaf id")
	}
	superID := ctx.Int("super-id")
	nSupers := ctx.Int(superFlag.Name)
	orchestratorID := ctx.Int(orchestratorIDFlag.Name)
	ttl := ctx.Int("ttl")
	initialFiles := splitCSV(ctx.String("initial"))
	requestFiles := splitCSV(ctx.String("requests"))

	store, err := localstore.Open(id)
	if err != nil {
		return fmt.Errorf("opening store for leaf %d: %w", id, err)
	}
	clients := rpcutil.NewClientCache()
	defer clients.Close()

	l := leafpeer.New(id, superID, nSupers, store, clients)
	srv, err := l.Listen(netaddr.Port(id))
	if err != nil {
		return fmt.Errorf("binding leaf %d: %w", id, err)
	}
	defer srv.Close()

	go func() {
		if err := l.Bootstrap(initialFiles, func(name string) []byte {
			return seed.Generate(id, seed.DefaultSize)
		}); err != nil {
			return
		}
		l.WaitStart()
		for _, fileName := range requestFiles {
			l.IssueQuery(fileName, ttl)
		}
		l.WaitPendingZero(0)
		l.SignalComplete(orchestratorID)
	}()

	l.WaitEnd()
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
