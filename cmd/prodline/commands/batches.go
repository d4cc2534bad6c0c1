package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prodline/prodline/pkg/engine"
)

func newBatchesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Demand batch aggregation and submission",
		Long: `Aggregate pending sales-order lines into per-product demand batches
and submit them to production.

A batch is a live view: it is recomputed from pending lines on every
request and only becomes durable when submitted.`,
	}

	cmd.AddCommand(newBatchesListCommand())
	cmd.AddCommand(newBatchesSubmitCommand())

	return cmd
}

func newBatchesListCommand() *cobra.Command {
	var (
		search          string
		displayStatuses []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List demand batches",
		Long: `List demand batches aggregated from pending sales-order lines,
largest demand first.

Lines without a product code group under "(unknown)"; such batches are
shown but cannot be submitted.`,
		Example: `  # List all demand batches
  prodline batches list

  # Filter by product name or code
  prodline batches list --search vanilla

  # Restrict to confirmed upstream orders
  prodline batches list --display-status confirmed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				batches, err := a.engine.ListDemandBatches(ctx, engine.BatchFilter{
					Search:          search,
					DisplayStatuses: displayStatuses,
				})
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(batches)
				}

				if len(batches) == 0 {
					fmt.Println("No pending demand.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PRODUCT\tNAME\tQTY\tLINES\tCHANNELS\tCUSTOMERS")
				for _, b := range batches {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
						b.ProductCode, b.ProductName, b.TotalQuantity, len(b.OrderLineIDs),
						strings.Join(b.Channels, ","), strings.Join(b.CustomerSample, ","))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "substring filter on product name or code")
	cmd.Flags().StringSliceVar(&displayStatuses, "display-status", nil, "restrict to upstream display statuses")

	return cmd
}

func newBatchesSubmitCommand() *cobra.Command {
	var (
		productCode string
		choice      string
		targetID    string
		token       string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a demand batch to production",
		Long: `Commit the demand batch for a product into a work order.

If an open work order already exists for the product the submission is
ambiguous: re-run with --merge-into <id> to fold the batch into it, or
--create-new to start a separate order anyway.`,
		Example: `  # Submit the vanilla batch
  prodline batches submit --product VAN-01

  # Fold into an existing open work order
  prodline batches submit --product VAN-01 --merge-into 4f7c...

  # Force a separate order despite an open one
  prodline batches submit --product VAN-01 --create-new`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				batches, err := a.engine.ListDemandBatches(ctx, engine.BatchFilter{})
				if err != nil {
					return err
				}

				var batch *engine.DemandBatch
				for i := range batches {
					if batches[i].ProductCode == productCode {
						batch = &batches[i]
						break
					}
				}
				if batch == nil {
					return fmt.Errorf("no pending demand for product %s", productCode)
				}

				req := engine.SubmitRequest{
					Batch:            *batch,
					IdempotencyToken: token,
				}
				switch choice {
				case "merge":
					req.Choice = engine.ChoiceMergeInto
					req.TargetID = targetID
				case "new":
					req.Choice = engine.ChoiceCreateNew
				}

				result, err := a.engine.SubmitBatch(ctx, req)
				if err != nil {
					var engErr *engine.Error
					if errors.As(err, &engErr) && engErr.Kind == engine.KindAmbiguousMerge && engErr.Target != nil {
						fmt.Printf("An open work order exists for %s:\n", productCode)
						fmt.Printf("  %s  qty=%d  status=%s\n", engErr.Target.ID, engErr.Target.Quantity, engErr.Target.Status)
						fmt.Printf("Re-run with --merge-into %s or --create-new.\n", engErr.Target.ID)
						return err
					}
					return err
				}

				if jsonOutput {
					return printJSON(result)
				}

				verb := "created"
				if result.MergeOccurred {
					verb = "merged into"
				}
				replay := ""
				if result.Replayed {
					replay = " (replayed)"
				}
				fmt.Printf("Batch %s work order %s, qty %d%s\n",
					verb, result.WorkOrder.ID, result.WorkOrder.Quantity, replay)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&productCode, "product", "p", "", "product code of the batch to submit")
	cmd.Flags().StringVar(&token, "token", "", "idempotency token (derived from line set when empty)")
	cmd.Flags().StringVar(&targetID, "merge-into", "", "merge into this open work order")
	cmd.Flags().BoolP("create-new", "n", false, "create a separate work order even if one is open")
	_ = cmd.MarkFlagRequired("product")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if targetID != "" {
			choice = "merge"
		} else if createNew, _ := cmd.Flags().GetBool("create-new"); createNew {
			choice = "new"
		}
	}

	return cmd
}
