package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/invoicely/invoicely/internal/invoice"
)

type itemInput struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

type totalsOptions struct {
	file     string
	tax      float64
	discount float64
	currency string
	asJSON   bool
}

func newTotalsCommand() *cobra.Command {
	var opts totalsOptions
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Compute subtotal, tax, discount and total for a list of line items",
		Example: `  invoicectl totals --file items.json --tax 8.25
  cat items.json | invoicectl totals --file - --discount 10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTotals(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "-", "JSON array of line items, - for stdin")
	cmd.Flags().Float64Var(&opts.tax, "tax", 0, "tax rate in percent")
	cmd.Flags().Float64Var(&opts.discount, "discount", 0, "discount rate in percent (estimates only)")
	cmd.Flags().StringVar(&opts.currency, "currency", "USD", "ISO currency for display")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print totals as JSON")
	return cmd
}

func runTotals(stdin io.Reader, out io.Writer, opts totalsOptions) error {
	src := stdin
	if opts.file != "" && opts.file != "-" {
		f, err := os.Open(opts.file)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	var raw []itemInput
	if err := json.NewDecoder(src).Decode(&raw); err != nil {
		return fmt.Errorf("decode items: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("at least one line item is required")
	}
	items := make([]invoice.LineItem, len(raw))
	for i, it := range raw {
		items[i] = invoice.LineItem{Description: it.Description, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	totals := invoice.ComputeEstimateTotals(items, opts.tax, opts.discount).Rounded()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(totals)
	}
	money := func(v float64) string { return invoice.FormatMoney(v, opts.currency, language.English) }
	fmt.Fprintf(out, "Subtotal: %s\n", money(totals.Subtotal))
	fmt.Fprintf(out, "Tax:      %s\n", money(totals.TaxAmount))
	if totals.DiscountAmount != 0 {
		fmt.Fprintf(out, "Discount: %s\n", money(totals.DiscountAmount))
	}
	fmt.Fprintf(out, "Total:    %s\n", money(totals.Total))
	return nil
}
