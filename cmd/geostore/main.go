// Command geostore is the CLI for the content-addressed geometry store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/geostore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
