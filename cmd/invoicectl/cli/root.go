// Package cli implements invoicectl, the operator tool for invoice totals and
// background jobs.
package cli

import (
	"io"

	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCommand assembles the command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Operator tooling for the invoicing service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(newTotalsCommand(), newJobsCommand(nil))
	return root
}
