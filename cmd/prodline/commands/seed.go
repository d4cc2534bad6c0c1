package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prodline/prodline/pkg/engine"
)

// seedFile is the YAML demo-data format consumed by `prodline seed`.
type seedFile struct {
	Products []struct {
		Code string `yaml:"code"`
		Name string `yaml:"name"`
	} `yaml:"products"`

	Materials []struct {
		ID           string `yaml:"id"`
		Name         string `yaml:"name"`
		Unit         string `yaml:"unit"`
		OnHand       string `yaml:"on_hand"`
		MinThreshold string `yaml:"min_threshold"`
	} `yaml:"materials"`

	Recipes []struct {
		ProductCode string `yaml:"product_code"`
		Lines       []struct {
			MaterialID string `yaml:"material_id"`
			QtyPerUnit string `yaml:"qty_per_unit"`
		} `yaml:"lines"`
	} `yaml:"recipes"`

	OrderLines []struct {
		ProductCode   string `yaml:"product_code"`
		ProductName   string `yaml:"product_name"`
		Quantity      int64  `yaml:"quantity"`
		Channel       string `yaml:"channel"`
		CustomerName  string `yaml:"customer_name"`
		DisplayStatus string `yaml:"display_status"`
	} `yaml:"order_lines"`
}

func newSeedCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo data from a YAML file",
		Long: `Load products, materials, recipes, and sales-order lines from a
YAML file into the database.

Products and materials are upserted; recipes are replaced wholesale;
order lines are always inserted as new pending lines.`,
		Example: `  # Load the demo dataset
  prodline seed --file demo.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read seed file: %w", err)
				}

				var seed seedFile
				if err := yaml.Unmarshal(data, &seed); err != nil {
					return fmt.Errorf("failed to parse seed file: %w", err)
				}

				for _, p := range seed.Products {
					if err := a.store.SeedProduct(ctx, p.Code, p.Name); err != nil {
						return err
					}
				}

				for _, m := range seed.Materials {
					onHand, err := decimal.NewFromString(m.OnHand)
					if err != nil {
						return fmt.Errorf("material %s: invalid on_hand %q: %w", m.ID, m.OnHand, err)
					}
					threshold := decimal.Zero
					if m.MinThreshold != "" {
						if threshold, err = decimal.NewFromString(m.MinThreshold); err != nil {
							return fmt.Errorf("material %s: invalid min_threshold %q: %w", m.ID, m.MinThreshold, err)
						}
					}
					err = a.store.SeedMaterial(ctx, engine.MaterialStock{
						MaterialID:   m.ID,
						Name:         m.Name,
						Unit:         m.Unit,
						OnHand:       onHand,
						MinThreshold: threshold,
					})
					if err != nil {
						return err
					}
				}

				for _, r := range seed.Recipes {
					lines := make([]engine.RecipeLine, 0, len(r.Lines))
					for _, l := range r.Lines {
						qty, err := decimal.NewFromString(l.QtyPerUnit)
						if err != nil {
							return fmt.Errorf("recipe %s: invalid qty_per_unit %q: %w", r.ProductCode, l.QtyPerUnit, err)
						}
						lines = append(lines, engine.RecipeLine{
							MaterialID: l.MaterialID,
							QtyPerUnit: qty,
						})
					}
					if err := a.store.ReplaceRecipe(ctx, r.ProductCode, lines); err != nil {
						return err
					}
				}

				for _, l := range seed.OrderLines {
					err := a.store.InsertOrderLine(ctx, engine.OrderLine{
						ProductCode:   l.ProductCode,
						ProductName:   l.ProductName,
						Quantity:      l.Quantity,
						Channel:       l.Channel,
						CustomerName:  l.CustomerName,
						DisplayStatus: l.DisplayStatus,
					})
					if err != nil {
						return err
					}
				}

				a.tel.Logger.
					WithField("products", len(seed.Products)).
					WithField("materials", len(seed.Materials)).
					WithField("order_lines", len(seed.OrderLines)).
					Info("Seed data loaded")
				fmt.Printf("Loaded %d products, %d materials, %d recipes, %d order lines\n",
					len(seed.Products), len(seed.Materials), len(seed.Recipes), len(seed.OrderLines))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "demo.yaml", "seed data file")

	return cmd
}
