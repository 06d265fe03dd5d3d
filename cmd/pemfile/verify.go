package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sensiblebit/pemfile/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	verifyTrustStore string
	verifyRoots      string
	verifyExpiry     string
	verifyFormat     string
)

var verifyFormats = []string{"text", "json", "yaml"}

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify the first certificate using the other sections",
	Long: "Verify the chain of trust of the first certificate section in a file, using the other " +
		"certificate sections as intermediates. A private key section is checked against the " +
		"certificate and CRL sections signed by its issuer are checked for revocation.",
	Example: `  pemfile verify fullchain.pem
  pemfile verify server.pem --trust-store custom --roots ca.pem
  pemfile verify cert.pem --expiry 30d --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyTrustStore, "trust-store", "", "Trust store: mozilla, system, custom (default from config)")
	verifyCmd.Flags().StringVar(&verifyRoots, "roots", "", "PEM file of additional root certificates")
	verifyCmd.Flags().StringVarP(&verifyExpiry, "expiry", "e", "", "Fail if the certificate expires within this duration (e.g., 30d, 720h)")
	addFormatFlag(verifyCmd.Flags(), &verifyFormat, "text", verifyFormats...)

	registerCompletion(verifyCmd, completionInput{"trust-store", fixedCompletion(internal.TrustStoreMozilla, internal.TrustStoreSystem, internal.TrustStoreCustom)})
	registerCompletion(verifyCmd, completionInput{"roots", fileCompletion})
	registerCompletion(verifyCmd, completionInput{"format", fixedCompletion(verifyFormats...)})
}

func runVerify(cmd *cobra.Command, args []string) error {
	if err := checkChoice("format", verifyFormat, verifyFormats); err != nil {
		return err
	}

	var expiryDuration time.Duration
	if verifyExpiry != "" {
		var err error
		expiryDuration, err = internal.ParseDuration(verifyExpiry)
		if err != nil {
			return fmt.Errorf("invalid --expiry value: %w", err)
		}
	}

	trustStore := verifyTrustStore
	if trustStore == "" {
		trustStore = cfg.TrustStore
	}
	input := internal.VerifyItemsInput{
		TrustStore:     trustStore,
		ExpiryDuration: expiryDuration,
	}
	if verifyRoots != "" {
		roots, err := internal.LoadCertificatesFile(verifyRoots)
		if err != nil {
			return fmt.Errorf("loading --roots: %w", err)
		}
		input.CustomRoots = roots
	}

	pw, err := passwords()
	if err != nil {
		return err
	}
	input.Passwords = pw

	c, err := collect(cmd, args[0])
	if err != nil {
		return err
	}
	input.Items = c.Items

	result, err := internal.VerifyItems(cmd.Context(), input)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch verifyFormat {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		fmt.Fprint(out, string(data))
	default:
		fmt.Fprint(out, internal.FormatVerifyResult(result))
	}

	if len(result.Errors) > 0 {
		return errors.New("verification failed")
	}
	return nil
}
