// Package logging builds the structured loggers every role (orchestrator,
// super, leaf) writes through, in a field-tagged style: log.Debug("msg",
// "key", val, ...).
package logging

import (
	"os"

	"github.com/inconshreveable/log15"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Verbosity mirrors the lvl flag go-ethereum-family binaries expose.
type Verbosity = log15.Lvl

const (
	LvlError = log15.LvlError
	LvlWarn  = log15.LvlWarn
	LvlInfo  = log15.LvlInfo
	LvlDebug = log15.LvlDebug
)

var root log15.Logger

func init() {
	Init(LvlInfo)
}

// Init (re)configures the root handler. Call once from cmd/filemesh before
// spawning any peer goroutines.
func Init(lvl log15.Lvl) {
	var handler log15.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = log15.StreamHandler(colorable.NewColorableStderr(), log15.TerminalFormat())
	} else {
		handler = log15.StreamHandler(os.Stderr, log15.LogfmtFormat())
	}
	if root == nil {
		root = log15.New()
	}
	root.SetHandler(log15.LvlFilterHandler(lvl, handler))
}

// New returns a child logger scoped to one component ("orchestrator",
// "super", "leaf"), stamped with the given context fields.
func New(component string, ctx ...interface{}) log15.Logger {
	args := append([]interface{}{"component", component}, ctx...)
	return root.New(args...)
}
