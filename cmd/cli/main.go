package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gosegment/adapters/tabular"
	"gosegment/domain/schema"
	"gosegment/engine"
	"gosegment/internal/config"
	"gosegment/internal/testkit"
	"gosegment/ports"
	"gosegment/report"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "gosegment",
		Short: "Automated customer segmentation engine",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newDemoCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var rolesJSON string
	var protected string
	var output string
	var seed int64

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run the full segmentation pipeline on a CSV or XLSX file",
		Long: `Classify missingness, impute, standardize, reduce and select the
cluster count for a tabular customer dataset.

Example: gosegment run customers.csv --roles '{"region":"categorical"}' --protected customer_id`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ports.DefaultReadOptions()
			if rolesJSON != "" {
				roles := map[string]schema.ColumnRole{}
				if err := json.Unmarshal([]byte(rolesJSON), &roles); err != nil {
					return fmt.Errorf("invalid --roles JSON: %w", err)
				}
				opts.Roles = roles
			}
			if protected != "" {
				for _, name := range strings.Split(protected, ",") {
					opts.Protected = append(opts.Protected, strings.TrimSpace(name))
				}
			}

			ds, err := tabular.NewReader(opts).Read(args[0])
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), ds, seed, output)
		},
	}

	cmd.Flags().StringVar(&rolesJSON, "roles", "", "JSON object mapping column names to roles (identifier, numeric, categorical, text)")
	cmd.Flags().StringVar(&protected, "protected", "", "Comma-separated columns excluded from imputation and scaling")
	cmd.Flags().StringVar(&output, "output", "markdown", "Output format: markdown or json")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed override (0 keeps the configured seed)")

	return cmd
}

func newDemoCmd() *cobra.Command {
	var customers int
	var segments int
	var output string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the pipeline on generated synthetic customer data",
		Long: `Generate a synthetic customer dataset with known segment structure and
injected missingness, then run the full pipeline on it.

Example: gosegment demo --customers 500 --segments 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := testkit.NewCustomerDataGenerator(testkit.CustomerGeneratorConfig{
				CustomerCount: customers,
				Segments:      segments,
				NoiseStd:      0.5,
				Seed:          42,
			})
			ds, err := gen.GenerateDataset()
			if err != nil {
				return err
			}
			ds, err = gen.InjectMCAR(ds, "annual_spend", 0.05)
			if err != nil {
				return err
			}
			ds, err = gen.InjectMAR(ds, "avg_basket", "order_count", 0.10)
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), ds, 0, output)
		},
	}

	cmd.Flags().IntVar(&customers, "customers", 300, "Number of synthetic customers")
	cmd.Flags().IntVar(&segments, "segments", 3, "Number of planted segments")
	cmd.Flags().StringVar(&output, "output", "markdown", "Output format: markdown or json")

	return cmd
}

func runPipeline(ctx context.Context, ds *schema.Dataset, seed int64, output string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if seed != 0 {
		cfg.Engine.RandomState = seed
	}

	pipeline, err := engine.New(cfg.Engine)
	if err != nil {
		return err
	}

	result, err := pipeline.Run(ctx, ds)
	if err != nil {
		return err
	}

	switch output {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	default:
		fmt.Print(report.NewRenderer().RenderMarkdown(result))
		return nil
	}
}
