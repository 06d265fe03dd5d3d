package main

import (
	"fmt"

	"github.com/sensiblebit/pemfile/internal"
	"github.com/spf13/cobra"
)

var inspectFormat string

var inspectFormats = []string{"text", "json", "yaml"}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Describe each PEM section in a file",
	Long:  "Show the label, kind, size, fingerprints, and decoded details of every PEM section in a file or stdin (\"-\").",
	Example: `  pemfile inspect chain.pem
  pemfile inspect key.pem --format json
  pemfile inspect bundle.pem --lenient --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	addFormatFlag(inspectCmd.Flags(), &inspectFormat, "text", inspectFormats...)
	registerCompletion(inspectCmd, completionInput{"format", fixedCompletion(inspectFormats...)})
}

func runInspect(cmd *cobra.Command, args []string) error {
	if err := checkChoice("format", inspectFormat, inspectFormats); err != nil {
		return err
	}
	pw, err := passwords()
	if err != nil {
		return err
	}

	c, err := collect(cmd, args[0])
	if err != nil {
		return err
	}

	output, err := internal.FormatInspectResults(internal.InspectItems(c, pw), inspectFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}
