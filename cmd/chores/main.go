/*
main.go - Application entry point

USAGE:
  chores serve                          Run the server
  chores seed                           Load a demo family
  chores create-user --name Sam --pin 4321
  chores reset-data                     Wipe tasks and points (asks first)
  chores verify-ledger                  Check balances against the ledger
  chores vapid-keys                     Generate Web Push keys

CONFIGURATION:
  --config file.toml, then CHORES_* environment variables. See config/.

SEE ALSO:
  - cli/: Command implementations
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"os"

	"github.com/warp/chore-engine/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
