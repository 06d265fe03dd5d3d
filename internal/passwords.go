package internal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultPasswords returns the passphrases tried on PKCS#12 and JKS
// containers and encrypted OpenSSH keys before any user-supplied ones.
// Returns a fresh copy each call.
func DefaultPasswords() []string {
	return []string{"", "password", "changeit", "keypassword"}
}

// LoadPasswordsFromFile reads one password per line. Blank lines are skipped.
func LoadPasswordsFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var passwords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			passwords = append(passwords, pwd)
		}
	}
	return passwords, scanner.Err()
}

// ProcessPasswords merges the defaults, the command-line list and the
// password file into one de-duplicated list, preserving order.
func ProcessPasswords(passwordList []string, passwordFile string) ([]string, error) {
	passwords := DefaultPasswords()
	passwords = append(passwords, passwordList...)

	if passwordFile != "" {
		filePasswords, err := LoadPasswordsFromFile(passwordFile)
		if err != nil {
			return nil, fmt.Errorf("loading passwords from file: %w", err)
		}
		passwords = append(passwords, filePasswords...)
	}

	seen := make(map[string]bool)
	var uniquePasswords []string
	for _, pwd := range passwords {
		if !seen[pwd] {
			seen[pwd] = true
			uniquePasswords = append(uniquePasswords, pwd)
		}
	}
	return uniquePasswords, nil
}

// ExportPassword picks the password protecting a PKCS#12 or JKS export: the
// explicit flag value, else the first line of passwordFile, else
// fallback.
func ExportPassword(flagValue, passwordFile, fallback string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if passwordFile == "" {
		return fallback, nil
	}
	passwords, err := LoadPasswordsFromFile(passwordFile)
	if err != nil {
		return "", fmt.Errorf("loading export password: %w", err)
	}
	if len(passwords) == 0 {
		return "", errors.New("export password file is empty")
	}
	return passwords[0], nil
}
