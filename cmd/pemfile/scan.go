package main

import (
	"fmt"
	"log/slog"

	"github.com/sensiblebit/pemfile/internal"
	"github.com/sensiblebit/pemfile/internal/catalog"
	"github.com/spf13/cobra"
)

var (
	scanDBPath   string
	scanLoadPath string
	scanFormat   string
)

var scanFormats = []string{"text", "json", "yaml"}

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Catalog the PEM sections in a file or directory",
	Long: "Walk a file, directory, or stdin (\"-\") and catalog every PEM section found. " +
		"Prints a table of section counts by kind followed by any malformed sections.",
	Example: `  pemfile scan /etc/ssl/certs
  pemfile scan bundle.pem --lenient
  pemfile scan ./certs --db catalog.db
  cat chain.pem | pemfile scan - --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanDBPath, "db", "d", "", "Save the catalog to this SQLite file")
	scanCmd.Flags().StringVar(&scanLoadPath, "load", "", "Merge an existing SQLite catalog before scanning")
	addFormatFlag(scanCmd.Flags(), &scanFormat, "text", scanFormats...)

	registerCompletion(scanCmd, completionInput{"db", fileCompletion})
	registerCompletion(scanCmd, completionInput{"load", fileCompletion})
	registerCompletion(scanCmd, completionInput{"format", fixedCompletion(scanFormats...)})
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := checkChoice("format", scanFormat, scanFormats); err != nil {
		return err
	}
	in, err := walkInput(args[0])
	if err != nil {
		return err
	}

	store := catalog.NewMemStore()
	if scanLoadPath != "" {
		if err := catalog.LoadFromSQLite(store, scanLoadPath); err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
	}

	in.Stdin = cmd.InOrStdin()
	in.Handler = store
	if err := internal.ProcessPath(cmd.Context(), in); err != nil {
		return err
	}
	slog.Debug("scan complete", "records", store.Len(), "errors", len(store.Errors()))

	if scanDBPath != "" {
		if err := catalog.SaveToSQLite(store, scanDBPath); err != nil {
			return fmt.Errorf("saving catalog: %w", err)
		}
	}

	output, err := internal.FormatScanReport(internal.ScanReport{
		Summary: store.Summary(catalog.SummaryInput{}),
		Errors:  store.Errors(),
	}, scanFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}
