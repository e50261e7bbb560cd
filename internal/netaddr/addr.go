// Package netaddr centralizes the peer addressing convention shared by the
// orchestrator, supers and leaves: every peer listens on BasePort+id.
package netaddr

import "fmt"

// BasePort is the port the orchestrator binds; peer id is added on top of it.
const BasePort = 8000

// Port returns the TCP port a peer with the given id listens on.
func Port(id int) int {
	return BasePort + id
}

// HostPort returns a dialable localhost:port string for the given peer id.
func HostPort(id int) string {
	return fmt.Sprintf("localhost:%d", Port(id))
}
