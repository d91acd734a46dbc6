package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"conjoint/app"
	"conjoint/domain/run"
	"conjoint/internal/config"
	"conjoint/internal/container"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var dataFile, outputFile, format string
	var noOutput bool

	cmd := &cobra.Command{
		Use:   "analyze <study.xlsx|study.yaml>",
		Short: "Estimate part-worth utilities and importance for a study",
		Long: `Load a study configuration, validate its response data, estimate
part-worth utilities and print the report.

Example: conjoint analyze studies/phones.yaml --data responses.csv --format markdown`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openContainer(ctx, false)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			study, err := loadStudy(args[0], dataFile)
			if err != nil {
				return err
			}
			switch {
			case noOutput:
				study.OutputFile = ""
			case outputFile != "":
				study.OutputFile = outputFile
			case study.OutputFile == "" && appConfig.Paths.ResultsDir != "":
				study.OutputFile = filepath.Join(appConfig.Paths.ResultsDir, study.Name+"_results.xlsx")
			}

			ar, err := analyze(ctx, c, study)
			if err != nil {
				return err
			}
			if err := printRun(cmd.OutOrStdout(), c, ar, format); err != nil {
				return err
			}
			if study.OutputFile != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "results written to %s\n", study.OutputFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "Response data file (.xlsx or .csv); overrides the study's data_file")
	cmd.Flags().StringVar(&outputFile, "output", "", "Results workbook path; defaults to the study's output_file or RESULTS_DIR")
	cmd.Flags().BoolVar(&noOutput, "no-output", false, "Do not write a results workbook")
	cmd.Flags().StringVar(&format, "format", "markdown", "Report format: markdown or json")

	return cmd
}

// openContainer wires the services. With inMemory unset and no DATABASE_URL,
// runs are not persisted.
func openContainer(ctx context.Context, inMemory bool) (*container.Container, error) {
	c, err := container.New(appConfig)
	if err != nil {
		return nil, err
	}
	db, err := c.OpenDatabase(ctx, inMemory)
	if err != nil {
		return nil, err
	}
	if err := c.InitWithDatabase(db); err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}
	return c, nil
}

func loadStudy(path, dataFile string) (*config.Study, error) {
	study, err := config.LoadStudy(path)
	if err != nil {
		return nil, err
	}
	if dataFile != "" {
		study.DataFile = dataFile
	}
	return study, nil
}

func analyze(ctx context.Context, c *container.Container, study *config.Study) (*run.AnalysisRun, error) {
	req := app.AnalysisRequest{Study: study}
	if study.DataFile != "" {
		req.Source = c.DataSource(study.DataFile)
	}
	return c.Analyses.Run(ctx, req)
}

func printRun(w io.Writer, c *container.Container, ar *run.AnalysisRun, format string) error {
	switch format {
	case "json":
		return writeJSON(w, ar)
	case "markdown", "md", "":
		md, err := c.Renderer.Markdown(ar.Report)
		if err != nil {
			return err
		}
		_, err = w.Write(md)
		return err
	default:
		return fmt.Errorf("unknown format %q (use markdown or json)", format)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
