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
	exportFormat       string
	exportOut          string
	exportPassword     string
	exportPasswordFile string
	exportKinds        kindsValue
)

// defaultExportPassword protects p12 and jks output when no password is
// given. Java tooling assumes it.
const defaultExportPassword = "changeit"

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Repackage PEM sections as DER, PEM, P7B, PKCS#12, or JKS",
	Long: "Read the PEM sections of a file and write them in another container format. " +
		"PKCS#12 and JKS output pair the first private key with its certificate; " +
		"without a key they hold the certificates as trusted entries.",
	Example: `  pemfile export chain.pem --format p7b --out chain.p7b
  pemfile export bundle.pem --format p12 --out server.p12 --password s3cret
  pemfile export roots.pem --format jks --out truststore.jks
  pemfile export mixed.pem --kind certificate --format pem --out certs.pem`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	addFormatFlag(exportCmd.Flags(), &exportFormat, internal.FormatPEM, internal.ExportFormats...)
	addOutFlag(exportCmd.Flags(), &exportOut, "Output file")
	exportCmd.Flags().StringVar(&exportPassword, "password", "", "Password for p12/jks output (default \"changeit\")")
	exportCmd.Flags().StringVar(&exportPasswordFile, "export-password-file", "", "File whose first line is the p12/jks password")
	addKindFlag(exportCmd.Flags(), &exportKinds, "Only export sections of these kinds")
	_ = exportCmd.MarkFlagRequired("out")

	registerCompletion(exportCmd, completionInput{"format", fixedCompletion(internal.ExportFormats...)})
	registerCompletion(exportCmd, completionInput{"out", fileCompletion})
	registerCompletion(exportCmd, completionInput{"export-password-file", fileCompletion})
	registerCompletion(exportCmd, completionInput{"kind", kindCompletion})
}

// filterKinds returns the items accepted by kinds, in order.
func filterKinds(items []pemfile.Item, kinds *kindsValue) []pemfile.Item {
	var out []pemfile.Item
	for _, item := range items {
		if kinds.matches(item) {
			out = append(out, item)
		}
	}
	return out
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := checkChoice("format", exportFormat, internal.ExportFormats); err != nil {
		return err
	}
	pw, err := passwords()
	if err != nil {
		return err
	}
	password, err := internal.ExportPassword(exportPassword, exportPasswordFile, defaultExportPassword)
	if err != nil {
		return err
	}

	c, err := collect(cmd, args[0])
	if err != nil {
		return err
	}
	items := filterKinds(c.Items, &exportKinds)
	if len(items) == 0 {
		return errors.New("no sections match --kind")
	}

	data, err := internal.Export(internal.ExportInput{
		Items:     items,
		Format:    exportFormat,
		Password:  password,
		Passwords: pw,
		LineWidth: cfg.LineWidth,
	})
	if err != nil {
		return fmt.Errorf("exporting %s: %w", exportFormat, err)
	}

	if err := internal.WriteOutputFile(exportOut, data, internal.IsSensitiveFormat(exportFormat, items)); err != nil {
		return err
	}
	slog.Info("exported sections", "format", exportFormat, "sections", len(items), "path", exportOut)
	return nil
}
