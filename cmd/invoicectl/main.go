package main

import (
	"fmt"
	"os"

	"github.com/invoicely/invoicely/cmd/invoicectl/cli"
)

func main() {
	if err := cli.NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
