package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"conjoint/app"
	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/internal/config"
	"conjoint/internal/container"
	"conjoint/internal/errors"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// reportFlags pick the utilities a simulation runs against: a stored run or a
// fresh analysis of a study.
type reportFlags struct {
	runID    string
	dataFile string
	scenario string
	share    app.ShareOptions
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.runID, "run", "", "Stored run id to simulate against (needs DATABASE_URL)")
	cmd.Flags().StringVar(&f.dataFile, "data", "", "Response data file when analysing the study")
	cmd.Flags().StringVar(&f.scenario, "scenario", "", "YAML file with a products list; defaults to the study's products")
	cmd.Flags().StringVar(&f.share.Method, "method", "logit", "Share rule: logit, first_choice or randomized_first_choice")
	cmd.Flags().Float64Var(&f.share.Scale, "scale", 1, "Logit scale factor")
	cmd.Flags().BoolVar(&f.share.IncludeNone, "include-none", false, "Add the no-choice alternative to the market")
}

// scenarioFile is the layout of --scenario.
type scenarioFile struct {
	Products []conjoint.Product `yaml:"products"`
}

// resolve returns the report, the scenario products and the open container.
func (f *reportFlags) resolve(ctx context.Context, args []string) (*container.Container, *conjoint.AnalysisReport, []conjoint.Product, error) {
	if f.runID == "" && len(args) == 0 {
		return nil, nil, nil, errors.InvalidInput("give a study file or --run")
	}

	c, err := openContainer(ctx, false)
	if err != nil {
		return nil, nil, nil, err
	}
	fail := func(err error) (*container.Container, *conjoint.AnalysisReport, []conjoint.Product, error) {
		c.Shutdown(context.Background())
		return nil, nil, nil, err
	}

	var study *config.Study
	if len(args) > 0 {
		if study, err = loadStudy(args[0], f.dataFile); err != nil {
			return fail(err)
		}
	}

	var report *conjoint.AnalysisReport
	if f.runID != "" {
		id, err := core.ParseRunID(f.runID)
		if err != nil {
			return fail(errors.InvalidInput(err.Error()))
		}
		if report, err = c.Simulations.Report(ctx, id); err != nil {
			return fail(err)
		}
	} else {
		study.OutputFile = ""
		ar, err := analyze(ctx, c, study)
		if err != nil {
			return fail(err)
		}
		report = ar.Report
	}

	var products []conjoint.Product
	switch {
	case f.scenario != "":
		if products, err = readScenario(f.scenario); err != nil {
			return fail(err)
		}
	case study != nil:
		products = study.Products
	}
	return c, report, products, nil
}

func readScenario(path string) ([]conjoint.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "reading scenario %s", path))
	}
	var doc scenarioFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "parsing scenario %s", path))
	}
	return doc.Products, nil
}

func newSimulateCmd() *cobra.Command {
	var flags reportFlags
	var sweep, sweepAgainst, focal, format string

	cmd := &cobra.Command{
		Use:   "simulate [study]",
		Short: "Predict market shares for a product scenario",
		Long: `Predict preference shares for the scenario products, or sweep one
attribute (two with --against) of a focal product.

Example: conjoint simulate studies/phones.yaml --scenario market.yaml --method first_choice
         conjoint simulate --run 0190... --scenario market.yaml --sweep Price`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, report, products, err := flags.resolve(ctx, args)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())
			if len(products) == 0 {
				return errors.InvalidInput("the scenario has no products")
			}
			out := cmd.OutOrStdout()

			if sweep == "" {
				res, err := c.Simulations.Shares(report, app.SharesRequest{ShareOptions: flags.share, Products: products})
				if err != nil {
					return err
				}
				if format == "json" {
					return writeJSON(out, res)
				}
				printShares(out, res)
				return nil
			}

			focalProduct, competitors, err := splitFocal(products, focal)
			if err != nil {
				return err
			}
			res, err := c.Simulations.Sensitivity(ctx, report, app.SensitivityRequest{
				ShareOptions:    flags.share,
				Focal:           focalProduct,
				Competitors:     competitors,
				Attribute:       sweep,
				SecondAttribute: sweepAgainst,
			})
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(out, res)
			}
			printSensitivity(out, focalProduct.Name, res)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&sweep, "sweep", "", "Attribute to sweep across its levels")
	cmd.Flags().StringVar(&sweepAgainst, "against", "", "Second attribute for a two-way sweep")
	cmd.Flags().StringVar(&focal, "focal", "", "Focal product name for sweeps; defaults to the first product")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

func newOptimizeCmd() *cobra.Command {
	var flags reportFlags
	var focal, format string
	var vary []string
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "optimize [study]",
		Short: "Search for the levels that maximise a product's share",
		Long: `Change one attribute at a time, keeping the best improving level, until
no single change raises the focal product's share against its competitors.

Example: conjoint optimize studies/phones.yaml --scenario market.yaml --product Ours --vary Price,Size`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, report, products, err := flags.resolve(ctx, args)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			initial, competitors, err := splitFocal(products, focal)
			if err != nil {
				return err
			}
			res, err := c.Simulations.Optimize(ctx, report, app.OptimizeRequest{
				ShareOptions:  flags.share,
				Initial:       initial,
				Competitors:   competitors,
				Vary:          vary,
				MaxIterations: maxIterations,
			})
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printOptimization(cmd.OutOrStdout(), res)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&focal, "product", "", "Product to optimise; defaults to the first product")
	cmd.Flags().StringSliceVar(&vary, "vary", nil, "Attributes the search may change; defaults to all")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Upper bound on improving passes (0 uses the simulator default)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

// splitFocal separates the named product from its competitors. An empty name
// picks the first product.
func splitFocal(products []conjoint.Product, name string) (conjoint.Product, []conjoint.Product, error) {
	if len(products) == 0 {
		return conjoint.Product{}, nil, errors.InvalidInput("the scenario has no products")
	}
	idx := 0
	if name != "" {
		idx = -1
		for i, p := range products {
			if strings.EqualFold(p.Name, name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return conjoint.Product{}, nil, errors.InvalidInput(fmt.Sprintf("product %q is not in the scenario", name))
		}
	}
	competitors := make([]conjoint.Product, 0, len(products)-1)
	competitors = append(competitors, products[:idx]...)
	competitors = append(competitors, products[idx+1:]...)
	return products[idx], competitors, nil
}

func printShares(w io.Writer, res *app.SharesResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tUTILITY\tSHARE")
	for _, row := range res.Shares {
		fmt.Fprintf(tw, "%s\t%.3f\t%.1f%%\n", row.Product, row.Utility, row.Share*100)
	}
	tw.Flush()
	printNotes(w, res.Notes)
}

func printSensitivity(w io.Writer, focal string, res *app.SensitivityResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if res.TwoWay != nil {
		g := res.TwoWay
		fmt.Fprintf(w, "%s share by %s x %s (baseline %.1f%%)\n", focal, g.AttributeA, g.AttributeB, g.BaselineShare*100)
		fmt.Fprintf(tw, "%s\t%s\tSHARE\n", strings.ToUpper(g.AttributeA), strings.ToUpper(g.AttributeB))
		for _, cell := range g.Cells {
			fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", cell.LevelA, cell.LevelB, cell.Share*100)
		}
		tw.Flush()
		return
	}
	fmt.Fprintln(tw, "ATTRIBUTE\tLEVEL\tSHARE\tCHANGE\t")
	for _, row := range res.OneWay {
		mark := ""
		if row.IsBaseline {
			mark = "(current)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%+.1f\t%s\n", row.Attribute, row.Level, row.Share*100, row.Delta*100, mark)
	}
	tw.Flush()
}

func printOptimization(w io.Writer, res *conjoint.OptimizationResult) {
	fmt.Fprintf(w, "share %.1f%% -> %.1f%% after %d iterations (converged: %t)\n",
		res.ShareBefore*100, res.ShareAfter*100, res.Iterations, res.Converged)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tATTRIBUTE\tFROM\tTO\tSHARE")
	for _, step := range res.History {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f%%\n", step.Iteration, step.Attribute, step.From, step.To, step.Share*100)
	}
	tw.Flush()
}

func printNotes(w io.Writer, notes []conjoint.Finding) {
	for _, n := range notes {
		fmt.Fprintf(w, "note: %s\n", n.Message)
	}
}
