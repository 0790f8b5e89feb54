// shipyardd is the build and deploy server for hackathon project submissions.
// It exposes a REST API on port 8080 for uploading, building and deploying versions.
package main

import (
	"github.com/bitswalk/shipyard/src/shipyardd/core"
)

func main() {
	core.Execute()
}
