// shipyardctl is the command-line client for the shipyard build server.
package main

import (
	"github.com/bitswalk/shipyard/src/shipyardctl/internal/cmd"
)

func main() {
	cmd.Execute()
}
