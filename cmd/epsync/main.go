package main

import (
	"fmt"
	"os"

	"github.com/roach88/epsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "epsync: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
