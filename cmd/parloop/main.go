// Command parloop lowers CUE loop kernels into GNU OpenMP parallel loops.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/parloop/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
