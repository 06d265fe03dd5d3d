package internal

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/sensiblebit/pemfile"
	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Export formats accepted by Export.
const (
	FormatDER = "der"
	FormatPEM = "pem"
	FormatP7B = "p7b"
	FormatP12 = "p12"
	FormatJKS = "jks"
)

// ExportFormats lists the formats accepted by Export.
var ExportFormats = []string{FormatDER, FormatPEM, FormatP7B, FormatP12, FormatJKS}

// ExportInput holds parameters for Export.
type ExportInput struct {
	Items  []pemfile.Item
	Format string
	// Password protects p12 and jks output.
	Password string
	// Passwords are tried on encrypted OpenSSH keys.
	Passwords []string
	// LineWidth wraps pem output. Zero or less writes each body on one line.
	LineWidth int
}

// exportable is the typed view of a set of sections.
type exportable struct {
	certs []*x509.Certificate
	key   crypto.PrivateKey
}

func collectExportable(items []pemfile.Item, passwords []string) (exportable, error) {
	var ex exportable
	for i, item := range items {
		switch {
		case item.Kind == pemfile.KindCertificate:
			cert, err := x509.ParseCertificate(item.Bytes)
			if err != nil {
				return ex, fmt.Errorf("parsing certificate section %d: %w", i, err)
			}
			ex.certs = append(ex.certs, cert)
		case item.Kind.IsPrivateKey() || item.Label == LabelOpenSSHPrivateKey:
			if ex.key != nil {
				slog.Debug("ignoring additional private key", "index", i)
				continue
			}
			key, err := ParsePrivateKey(item, passwords)
			if err != nil {
				return ex, fmt.Errorf("parsing private key section %d: %w", i, err)
			}
			ex.key = key
		default:
			slog.Debug("section not exportable to keystore", "index", i, "label", item.Label)
		}
	}
	return ex, nil
}

// Export converts sections to the requested format.
//
//   - der: the single section's payload, or the concatenated DER of a set of
//     certificate sections
//   - pem: every section re-encoded under its own label
//   - p7b: a certs-only PKCS#7 bundle of the certificate sections
//   - p12: a PKCS#12 file; with a private key the matching certificate is
//     the leaf, without one the certificates form a trust store
//   - jks: a Java KeyStore laid out the same way as p12
func Export(input ExportInput) ([]byte, error) {
	if len(input.Items) == 0 {
		return nil, errors.New("no sections to export")
	}

	switch input.Format {
	case FormatDER:
		return exportDER(input.Items)
	case FormatPEM:
		var buf bytes.Buffer
		for i, item := range input.Items {
			if err := pemfile.Encode(&buf, item.Label, item.Bytes, input.LineWidth); err != nil {
				return nil, fmt.Errorf("encoding section %d: %w", i, err)
			}
		}
		return buf.Bytes(), nil
	case FormatP7B, FormatP12, FormatJKS:
	default:
		return nil, fmt.Errorf("unsupported export format %q (use %s)", input.Format, strings.Join(ExportFormats, ", "))
	}

	ex, err := collectExportable(input.Items, input.Passwords)
	if err != nil {
		return nil, err
	}
	if len(ex.certs) == 0 {
		return nil, fmt.Errorf("%s export needs at least one certificate section", input.Format)
	}

	switch input.Format {
	case FormatP7B:
		return encodePKCS7(ex.certs)
	case FormatP12:
		if ex.key == nil {
			return gopkcs12.Modern.EncodeTrustStore(ex.certs, input.Password)
		}
		leaf, cas, err := splitLeaf(ex.key, ex.certs)
		if err != nil {
			return nil, err
		}
		if err := validateKeystoreKeyType(ex.key); err != nil {
			return nil, err
		}
		return gopkcs12.Modern.Encode(ex.key, leaf, cas, input.Password)
	default:
		return encodeJKS(ex, input.Password)
	}
}

func exportDER(items []pemfile.Item) ([]byte, error) {
	if len(items) == 1 {
		return bytes.Clone(items[0].Bytes), nil
	}
	var out []byte
	for i, item := range items {
		if item.Kind != pemfile.KindCertificate {
			return nil, fmt.Errorf("der export of several sections needs all certificates; section %d is %s", i, item.Kind)
		}
		out = append(out, item.Bytes...)
	}
	return out, nil
}

func encodePKCS7(certs []*x509.Certificate) ([]byte, error) {
	var derBytes []byte
	for _, cert := range certs {
		derBytes = append(derBytes, cert.Raw...)
	}
	p7, err := pkcs7.DegenerateCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("building PKCS#7: %w", err)
	}
	return p7, nil
}

// splitLeaf returns the certificate matching key and the remaining
// certificates in their original order.
func splitLeaf(key crypto.PrivateKey, certs []*x509.Certificate) (*x509.Certificate, []*x509.Certificate, error) {
	for i, cert := range certs {
		match, err := KeyMatchesCert(key, cert)
		if err != nil {
			return nil, nil, fmt.Errorf("matching key to certificate: %w", err)
		}
		if match {
			rest := make([]*x509.Certificate, 0, len(certs)-1)
			rest = append(rest, certs[:i]...)
			rest = append(rest, certs[i+1:]...)
			return cert, rest, nil
		}
	}
	return nil, nil, errors.New("no certificate section matches the private key")
}

// validateKeystoreKeyType checks that the private key can be stored in
// PKCS#12 or JKS output.
func validateKeystoreKeyType(privateKey crypto.PrivateKey) error {
	switch privateKey.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
		return nil
	default:
		return fmt.Errorf("unsupported private key type %T", privateKey)
	}
}

// encodeJKS stores a key with its chain under the alias "server", or each
// certificate as a trusted entry when there is no key. The same password
// protects the store and the key entry.
func encodeJKS(ex exportable, password string) ([]byte, error) {
	ks := keystore.New()
	now := time.Now()

	if ex.key != nil {
		if err := validateKeystoreKeyType(ex.key); err != nil {
			return nil, err
		}
		leaf, cas, err := splitLeaf(ex.key, ex.certs)
		if err != nil {
			return nil, err
		}
		pkcs8Key, err := x509.MarshalPKCS8PrivateKey(ex.key)
		if err != nil {
			return nil, fmt.Errorf("marshaling private key to PKCS#8: %w", err)
		}
		chain := []keystore.Certificate{{Type: "X.509", Content: leaf.Raw}}
		for _, ca := range cas {
			chain = append(chain, keystore.Certificate{Type: "X.509", Content: ca.Raw})
		}
		if err := ks.SetPrivateKeyEntry("server", keystore.PrivateKeyEntry{
			CreationTime:     now,
			PrivateKey:       pkcs8Key,
			CertificateChain: chain,
		}, []byte(password)); err != nil {
			return nil, fmt.Errorf("setting JKS private key entry: %w", err)
		}
	} else {
		for i, cert := range ex.certs {
			alias := trustedAlias(cert, i)
			if err := ks.SetTrustedCertificateEntry(alias, keystore.TrustedCertificateEntry{
				CreationTime: now,
				Certificate:  keystore.Certificate{Type: "X.509", Content: cert.Raw},
			}); err != nil {
				return nil, fmt.Errorf("setting JKS trusted entry %s: %w", alias, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, fmt.Errorf("storing JKS: %w", err)
	}
	return buf.Bytes(), nil
}

// trustedAlias derives a unique keystore alias from the certificate's common
// name and its position.
func trustedAlias(cert *x509.Certificate, index int) string {
	cn := strings.ToLower(strings.TrimSpace(cert.Subject.CommonName))
	cn = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, cn)
	if cn == "" {
		cn = "cert"
	}
	return fmt.Sprintf("%s-%d", cn, index)
}

// IsSensitiveFormat reports whether output in format may hold private key
// material.
func IsSensitiveFormat(format string, items []pemfile.Item) bool {
	switch format {
	case FormatP12, FormatJKS:
		return true
	}
	for _, item := range items {
		if item.Kind.IsPrivateKey() || item.Label == LabelOpenSSHPrivateKey {
			return true
		}
	}
	return false
}

// WriteOutputFile writes data to path, creating parent directories.
// Sensitive output is written with mode 0600.
func WriteOutputFile(path string, data []byte, sensitive bool) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory %s: %w", dir, err)
		}
	}
	mode := os.FileMode(0644)
	if sensitive {
		mode = 0600
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
