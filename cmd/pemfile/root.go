package main

import (
	"fmt"

	"github.com/sensiblebit/pemfile"
	"github.com/sensiblebit/pemfile/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	logLevel       string
	logFormat      string
	configPath     string
	lenient        bool
	maxSectionSize int
	passwordList   []string
	passwordFile   string
	containers     bool

	// cfg is resolved from --config and the global flags before any
	// subcommand runs.
	cfg = internal.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "pemfile",
	Short: "Extract and examine PEM sections",
	Long: "Scan text files for PEM sections (certificates, keys, CRLs, PKCS#7), " +
		"inspect their contents, extract decoded payloads, and repackage them.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "auto", "Log format: auto, text, json")
	pf.StringVarP(&configPath, "config", "c", "", "YAML file with scanning defaults")
	pf.BoolVar(&lenient, "lenient", false, "Report malformed sections and keep scanning")
	pf.IntVar(&maxSectionSize, "max-section-size", 0, "Largest accepted base64 body in bytes (default from config)")
	pf.StringSliceVarP(&passwordList, "passwords", "p", nil, "Comma-separated passwords for encrypted keys and containers")
	pf.StringVar(&passwordFile, "password-file", "", "File containing passwords, one per line")
	pf.BoolVar(&containers, "containers", false, "Also read PKCS#12, JKS, PKCS#7, and DER files")

	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{"log-format", fixedCompletion("auto", "text", "json")})
	registerCompletion(rootCmd, completionInput{"config", fileCompletion})
	registerCompletion(rootCmd, completionInput{"password-file", fileCompletion})

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(verifyCmd)
}

// setup configures logging and layers the global flags over the config
// file.
func setup(cmd *cobra.Command, _ []string) error {
	if err := internal.SetupLogger(logLevel, logFormat); err != nil {
		return err
	}

	loaded, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := applyFlagOverrides(cmd.Flags(), loaded); err != nil {
		return err
	}
	if _, err := loaded.ScanOptions(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// applyFlagOverrides copies the global flags the user set onto loaded.
// Flags left at their defaults keep the config file's values.
func applyFlagOverrides(flags *pflag.FlagSet, loaded *internal.Config) error {
	if flags.Changed("lenient") {
		v, err := flags.GetBool("lenient")
		if err != nil {
			return err
		}
		loaded.Policy = policyName(v)
	}
	if flags.Changed("max-section-size") {
		v, err := flags.GetInt("max-section-size")
		if err != nil {
			return err
		}
		if v <= 0 {
			return fmt.Errorf("--max-section-size must be positive, got %d", v)
		}
		loaded.MaxSectionSize = v
	}
	return nil
}

// policyName maps --lenient to a config policy value.
func policyName(lenient bool) string {
	if lenient {
		return pemfile.Lenient.String()
	}
	return pemfile.Strict.String()
}

// passwords returns the passwords tried on encrypted keys.
func passwords() ([]string, error) {
	pw, err := internal.ProcessPasswords(passwordList, passwordFile)
	if err != nil {
		return nil, fmt.Errorf("loading passwords: %w", err)
	}
	return pw, nil
}

// collect scans path with the resolved configuration and returns its
// sections. Section errors are logged by the pipeline; the result is an
// error only if nothing usable was found.
func collect(cmd *cobra.Command, path string) (*internal.ItemCollector, error) {
	in, err := walkInput(path)
	if err != nil {
		return nil, err
	}
	in.Stdin = cmd.InOrStdin()
	c, err := internal.CollectFile(cmd.Context(), in)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		if len(c.Errors) > 0 {
			return nil, c.Errors[0]
		}
		return nil, fmt.Errorf("no PEM sections found in %s", path)
	}
	return c, nil
}

// walkInput builds the pipeline input for path from the resolved
// configuration. The caller sets the handler.
func walkInput(path string) (internal.WalkInput, error) {
	opts, err := cfg.ScanOptions()
	if err != nil {
		return internal.WalkInput{}, err
	}
	in := internal.WalkInput{
		Path:       path,
		Options:    opts,
		Filter:     cfg.Filter(),
		Containers: containers,
	}
	if containers {
		pw, err := passwords()
		if err != nil {
			return internal.WalkInput{}, err
		}
		in.Passwords = pw
	}
	return in, nil
}
