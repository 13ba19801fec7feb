// Command livefetch runs live queries over a local SQLite record store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/livefetch/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
