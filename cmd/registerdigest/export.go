package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the formatted documents of a date range",
	Long: `Write title, abstract and document link for every document of the agencies
referenced by the interest table, one section per published day.

Examples:
  registerdigest export --from 2024-03-01 --to 2024-03-31
  registerdigest export --from 2024-03-01 --to 2024-03-31 --out march.txt`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("from", "", "first issue date (YYYY-MM-DD)")
	exportCmd.Flags().String("to", "", "last issue date, inclusive (YYYY-MM-DD)")
	exportCmd.Flags().String("out", "", "output file (default stdout)")
	_ = exportCmd.MarkFlagRequired("from")
	_ = exportCmd.MarkFlagRequired("to")
}

func runExport(cmd *cobra.Command, _ []string) error {
	fromValue, _ := cmd.Flags().GetString("from")
	toValue, _ := cmd.Flags().GetString("to")
	outPath, _ := cmd.Flags().GetString("out")

	from, err := parseDate(fromValue)
	if err != nil {
		return err
	}
	to, err := parseDate(toValue)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	ctx, application, cleanup, err := newApplication()
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := application.Export(ctx, from, to, out)
	if err != nil {
		return err
	}
	logger.Info("export complete", "days", report.Days, "published", report.Published, "documents", report.Documents)
	return nil
}
