// Command filemesh drives the two-tier Gnutella-style overlay simulation,
// either as a single in-process run or as one standalone role per process.
package main

import (
	"fmt"
	"os"
	"strconv"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/abeynet/filemesh/internal/logging"
	"github.com/abeynet/filemesh/internal/orchestrator"
	"github.com/abeynet/filemesh/internal/protocol"
)

var (
	superFlag = cli.IntFlag{
		Name:  "supers",
		Value: 10,
		Usage: "number of super-peers",
	}
	leavesFlag = cli.IntFlag{
		Name:  "leaves-per-super",
		Value: 5,
		Usage: "number of leaves attached to each super",
	}
	filesFlag = cli.IntFlag{
		Name:  "files-per-leaf",
		Value: 10,
		Usage: "number of initial files each leaf publishes",
	}
	requestsFlag = cli.IntFlag{
		Name:  "requests-per-leaf",
		Value: 10,
		Usage: "maximum number of file requests each leaf issues",
	}
	topologyFlag = cli.IntFlag{
		Name:  "topology",
		Value: 0,
		Usage: "super overlay topology: 0=ALL_TO_ALL, 1=LINEAR",
	}
	duplicationFlag = cli.IntFlag{
		Name:  "duplication-factor",
		Value: 2,
		Usage: "divides the file-name universe size; higher means more duplication across leaves",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: int(logging.LvlInfo),
		Usage: "log verbosity, 0 (crit) through 4 (debug)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "filemesh"
	app.Usage = "two-tier Gnutella-style file-sharing overlay simulation"
	app.Commands = []cli.Command{
		orchestratorCommand,
		superCommand,
		leafCommand,
	}
	app.Flags = []cli.Flag{verbosityFlag}
	app.Before = func(ctx *cli.Context) error {
		logging.Init(logging.Verbosity(ctx.GlobalInt(verbosityFlag.Name)))
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var orchestratorCommand = cli.Command{
	Name:      "orchestrator",
	Aliases:   []string{"run"},
	Usage:     "run the full experiment in-process: build topology, spawn supers and leaves, gate start/end, report throughput",
	ArgsUsage: "[nSupers leavesPerSuper filesPerLeaf requestsPerLeaf topology duplicationFactor]",
	Flags: []cli.Flag{
		superFlag, leavesFlag, filesFlag, requestsFlag, topologyFlag, duplicationFlag,
	},
	Action: orchestratorAction,
}

func orchestratorAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	result, err := orchestrator.Run(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("%d requests took %.6f seconds. R/s = %f\n", result.TotalRequests, result.Elapsed.Seconds(), result.RequestsPerSecond())
	return nil
}

// loadConfig accepts either the legacy positional argument form
// ("filemesh orchestrator 10 5 10 10 0 2") or named flags, keeping
// urfave/cli.v1's flag ergonomics available alongside the six-argument
// positional form.
func loadConfig(ctx *cli.Context) (orchestrator.Config, error) {
	if ctx.NArg() >= 6 {
		return parsePositional(ctx.Args())
	}
	return orchestrator.Config{
		NSupers:           ctx.Int(superFlag.Name),
		LeavesPerSuper:    ctx.Int(leavesFlag.Name),
		FilesPerLeaf:      ctx.Int(filesFlag.Name),
		RequestsPerLeaf:   ctx.Int(requestsFlag.Name),
		Topology:          protocol.Topology(ctx.Int(topologyFlag.Name)),
		DuplicationFactor: ctx.Int(duplicationFlag.Name),
	}, nil
}

func parsePositional(args cli.Args) (orchestrator.Config, error) {
	values := make([]int, 6)
	for i := range values {
		v, err := strconv.Atoi(args.Get(i))
		if err != nil {
			return orchestrator.Config{}, fmt.Errorf("positional argument %d: %w", i+1, err)
		}
		values[i] = v
	}
	return orchestrator.Config{
		NSupers:           values[0],
		LeavesPerSuper:    values[1],
		FilesPerLeaf:      values[2],
		RequestsPerLeaf:   values[3],
		Topology:          protocol.Topology(values[4]),
		DuplicationFactor: values[5],
	}, nil
}
