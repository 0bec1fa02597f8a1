// Command todosync is an offline-first todo list that replicates to a remote
// peer.
package main

import (
	"os"

	"github.com/roach88/todosync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
