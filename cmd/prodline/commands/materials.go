package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newMaterialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materials",
		Short: "Material requirement previews",
	}

	cmd.AddCommand(newMaterialsPreviewCommand())

	return cmd
}

func newMaterialsPreviewCommand() *cobra.Command {
	var (
		productCode string
		quantity    int64
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview material requirements for a batch",
		Long: `Compute the raw materials needed to produce a quantity of a product,
checked against current stock.

Shortage flags are advisory: critical means the requirement exceeds
stock on hand, low means producing would drop stock below its minimum
threshold, unknown means the stock record could not be read. A preview
never blocks submission.`,
		Example: `  # Preview producing 8 units of VAN-01
  prodline materials preview --product VAN-01 --qty 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				lines, err := a.engine.PreviewMaterialNeeds(ctx, productCode, quantity)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(lines)
				}

				if len(lines) == 0 {
					fmt.Printf("Product %s has no recipe.\n", productCode)
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "MATERIAL\tNAME\tREQUIRED\tON HAND\tUNIT\tSTATUS")
				for _, l := range lines {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						l.MaterialID, l.Name, l.Required, l.OnHand, l.Unit, l.Status)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&productCode, "product", "p", "", "product code")
	cmd.Flags().Int64VarP(&quantity, "qty", "q", 0, "batch quantity")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("qty")

	return cmd
}
