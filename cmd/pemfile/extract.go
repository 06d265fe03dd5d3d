package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sensiblebit/pemfile"
	"github.com/sensiblebit/pemfile/internal"
	"github.com/spf13/cobra"
)

var (
	extractIndex int
	extractKinds kindsValue
	extractOut   string
	extractForce bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Write the decoded payload of one PEM section",
	Long: "Decode one PEM section and write its binary payload (usually DER). " +
		"Select it by position with --index or take the first section of a --kind. " +
		"Binary output is not written to a terminal unless --force is given.",
	Example: `  pemfile extract chain.pem --index 1 --out intermediate.der
  pemfile extract key.pem --kind pkcs8-private-key > key.der
  pemfile extract bundle.pem --kind crl --out revoked.crl`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().IntVarP(&extractIndex, "index", "i", -1, "Zero-based position of the section to extract")
	addKindFlag(extractCmd.Flags(), &extractKinds, "Extract the first section of this kind")
	addOutFlag(extractCmd.Flags(), &extractOut, "Output file (default: stdout)")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "Write binary output even when stdout is a terminal")

	registerCompletion(extractCmd, completionInput{"kind", kindCompletion})
	registerCompletion(extractCmd, completionInput{"out", fileCompletion})
}

// selectItem picks the section at index, or the first accepted by kinds
// when index is negative.
func selectItem(items []pemfile.Item, index int, kinds *kindsValue) (pemfile.Item, error) {
	if index >= 0 {
		if index >= len(items) {
			return pemfile.Item{}, fmt.Errorf("--index %d out of range (%d sections)", index, len(items))
		}
		item := items[index]
		if !kinds.matches(item) {
			return pemfile.Item{}, fmt.Errorf("section %d is %s, not %s", index, item.Kind, kinds)
		}
		return item, nil
	}
	if len(kinds.kinds) == 0 {
		return pemfile.Item{}, errors.New("one of --index or --kind is required")
	}
	for _, item := range items {
		if kinds.matches(item) {
			return item, nil
		}
	}
	return pemfile.Item{}, fmt.Errorf("no %s section found", kinds)
}

func runExtract(cmd *cobra.Command, args []string) error {
	c, err := collect(cmd, args[0])
	if err != nil {
		return err
	}
	item, err := selectItem(c.Items, extractIndex, &extractKinds)
	if err != nil {
		return err
	}
	slog.Debug("extracting section", "label", item.Label, "bytes", len(item.Bytes))

	if extractOut != "" {
		sensitive := internal.IsSensitiveFormat(internal.FormatDER, []pemfile.Item{item})
		return internal.WriteOutputFile(extractOut, item.Bytes, sensitive)
	}

	stdout := cmd.OutOrStdout()
	if internal.IsTerminal(stdout) && !extractForce {
		return errors.New("refusing to write binary data to a terminal (use --out or --force)")
	}
	if _, err := stdout.Write(item.Bytes); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
