// Command slowforest checks form definitions and runs controller scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/slowforest/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
