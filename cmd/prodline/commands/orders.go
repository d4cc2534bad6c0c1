package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prodline/prodline/pkg/engine"
)

func newOrdersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Work order lifecycle management",
		Long: `Inspect and drive work orders through their lifecycle.

Work orders move strictly forward: Planned -> InProgress -> Done.
Only planned orders can be deleted; deletion releases the claimed
sales-order lines back into the demand pool.`,
	}

	cmd.AddCommand(newOrdersListCommand())
	cmd.AddCommand(newOrdersShowCommand())
	cmd.AddCommand(newOrdersAdvanceCommand())
	cmd.AddCommand(newOrdersDeleteCommand())
	cmd.AddCommand(newOrdersCreateCommand())

	return cmd
}

func newOrdersListCommand() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders",
		Example: `  # List all work orders
  prodline orders list

  # Only planned orders
  prodline orders list --status Planned`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var status *engine.WorkOrderStatus
				if statusFilter != "" {
					s := engine.WorkOrderStatus(statusFilter)
					status = &s
				}

				orders, err := a.engine.ListWorkOrders(ctx, status)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(orders)
				}

				if len(orders) == 0 {
					fmt.Println("No work orders.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPRODUCT\tQTY\tSTATUS\tLINES\tCREATED")
				for _, o := range orders {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
						o.ID, o.ProductCode, o.Quantity, o.Status, len(o.OrderLineIDs),
						o.CreatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "filter by status (Planned, InProgress, Done)")

	return cmd
}

func newOrdersShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work order and its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				order, err := a.engine.GetWorkOrder(ctx, args[0])
				if err != nil {
					return err
				}

				events, err := a.engine.ListWorkOrderEvents(ctx, order.ID)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(struct {
						Order  *engine.WorkOrder        `json:"order"`
						Events []engine.WorkOrderEvent  `json:"events"`
					}{order, events})
				}

				fmt.Printf("Work order %s\n", order.ID)
				fmt.Printf("  Product:  %s (%s)\n", order.ProductCode, order.ProductName)
				fmt.Printf("  Quantity: %d\n", order.Quantity)
				fmt.Printf("  Status:   %s\n", order.Status)
				if order.Note != "" {
					fmt.Printf("  Note:     %s\n", order.Note)
				}
				fmt.Printf("  Lines:    %d\n", len(order.OrderLineIDs))
				fmt.Printf("  Created:  %s\n", order.CreatedAt.Format("2006-01-02 15:04:05"))
				if order.StartedAt != nil {
					fmt.Printf("  Started:  %s\n", order.StartedAt.Format("2006-01-02 15:04:05"))
				}
				if order.CompletedAt != nil {
					fmt.Printf("  Done:     %s\n", order.CompletedAt.Format("2006-01-02 15:04:05"))
				}

				if len(events) > 0 {
					fmt.Println("History:")
					for _, ev := range events {
						fmt.Printf("  %s  %-9s %s\n",
							ev.Timestamp.Format("2006-01-02 15:04:05"), ev.EventType, ev.Detail)
					}
				}
				return nil
			})
		},
	}

	return cmd
}

func newOrdersAdvanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <id>",
		Short: "Advance a work order to its next status",
		Long: `Move a work order one step forward: Planned -> InProgress -> Done.

Advancing a done order fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				order, err := a.engine.AdvanceWorkOrder(ctx, args[0])
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(order)
				}
				fmt.Printf("Work order %s is now %s\n", order.ID, order.Status)
				return nil
			})
		},
	}

	return cmd
}

func newOrdersDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a planned work order",
		Long: `Delete a planned work order and release its claimed sales-order lines
back to pending.

Orders that have started production cannot be deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.engine.DeleteWorkOrder(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Work order %s deleted\n", args[0])
				return nil
			})
		},
	}

	return cmd
}

func newOrdersCreateCommand() *cobra.Command {
	var (
		productCode string
		quantity    int64
		note        string
		token       string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work order manually",
		Long: `Create a planned work order outside the demand pipeline, for walk-in
or urgent production.

Manual orders carry no sales-order lines and never merge into existing
orders.`,
		Example: `  # Urgent batch of 20 units
  prodline orders create --product VAN-01 --qty 20 --note "walk-in event"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				order, err := a.engine.CreateManualWorkOrder(ctx, engine.ManualIntake{
					ProductCode:      productCode,
					Quantity:         quantity,
					Note:             note,
					IdempotencyToken: token,
				})
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(order)
				}
				fmt.Printf("Created work order %s for %s, qty %d\n",
					order.ID, order.ProductCode, order.Quantity)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&productCode, "product", "p", "", "product code")
	cmd.Flags().Int64VarP(&quantity, "qty", "q", 0, "quantity to produce")
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	cmd.Flags().StringVar(&token, "token", "", "idempotency token")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("qty")

	return cmd
}
