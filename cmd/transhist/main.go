// Command transhist maintains a local translation history store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/transhist/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
