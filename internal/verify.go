package internal

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/breml/rootcerts/embedded"
	"github.com/sensiblebit/pemfile"
)

// Trust stores accepted by RootPool.
const (
	TrustStoreMozilla = "mozilla"
	TrustStoreSystem  = "system"
	TrustStoreCustom  = "custom"
)

// RootPool builds the root pool for trustStore. Custom roots are added to
// whichever pool is chosen; the "custom" store holds only them.
func RootPool(trustStore string, custom []*x509.Certificate) (*x509.CertPool, error) {
	var pool *x509.CertPool
	switch trustStore {
	case TrustStoreSystem:
		var err error
		pool, err = x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("loading system cert pool: %w", err)
		}
	case TrustStoreMozilla, "":
		pool = x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(embedded.MozillaCACertificatesPEM())) {
			return nil, errors.New("parsing embedded Mozilla root certificates")
		}
	case TrustStoreCustom:
		if len(custom) == 0 {
			return nil, errors.New("custom trust store needs at least one root certificate")
		}
		pool = x509.NewCertPool()
	default:
		return nil, fmt.Errorf("unknown trust store %q (use mozilla, system, or custom)", trustStore)
	}
	for _, cert := range custom {
		pool.AddCert(cert)
	}
	return pool, nil
}

// LoadCertificatesFile returns every parseable certificate section in path.
func LoadCertificatesFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	ders, err := pemfile.Certificates(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	var certs []*x509.Certificate
	for i, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate %d in %s: %w", i, path, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return certs, nil
}

// ParseDuration extends time.ParseDuration with a whole-day "d" suffix.
func ParseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		trimmed := strings.TrimSuffix(s, "d")
		days, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q: %w", s, err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// VerifyInput holds the parsed certificate data and verification options.
type VerifyInput struct {
	Cert           *x509.Certificate
	Key            crypto.PrivateKey
	ExtraCerts     []*x509.Certificate
	CustomRoots    []*x509.Certificate
	CRLs           []*x509.RevocationList
	ExpiryDuration time.Duration
	TrustStore     string
	// Now is the verification time. Zero means time.Now().
	Now time.Time
}

// ChainCert holds display information for one certificate in the chain.
type ChainCert struct {
	Subject string `json:"subject" yaml:"subject"`
	Expiry  string `json:"expiry" yaml:"expiry"`
	SKI     string `json:"ski,omitempty" yaml:"ski,omitempty"`
	IsRoot  bool   `json:"is_root,omitempty" yaml:"isRoot,omitempty"`
}

// VerifyResult holds the results of certificate verification checks.
type VerifyResult struct {
	Subject        string      `json:"subject" yaml:"subject"`
	SANs           []string    `json:"sans,omitempty" yaml:"sans,omitempty"`
	NotAfter       string      `json:"not_after" yaml:"notAfter"`
	SKI            string      `json:"ski,omitempty" yaml:"ski,omitempty"`
	KeyMatch       *bool       `json:"key_match,omitempty" yaml:"keyMatch,omitempty"`
	KeyMatchErr    string      `json:"key_match_error,omitempty" yaml:"keyMatchError,omitempty"`
	KeyInfo        string      `json:"key_info,omitempty" yaml:"keyInfo,omitempty"`
	ChainValid     *bool       `json:"chain_valid,omitempty" yaml:"chainValid,omitempty"`
	ChainErr       string      `json:"chain_error,omitempty" yaml:"chainError,omitempty"`
	Chain          []ChainCert `json:"chain,omitempty" yaml:"chain,omitempty"`
	Revoked        *bool       `json:"revoked,omitempty" yaml:"revoked,omitempty"`
	RevocationInfo string      `json:"revocation_info,omitempty" yaml:"revocationInfo,omitempty"`
	Expiry         *bool       `json:"expires_within,omitempty" yaml:"expiresWithin,omitempty"`
	ExpiryInfo     string      `json:"expiry_info,omitempty" yaml:"expiryInfo,omitempty"`
	Errors         []string    `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// VerifyCert verifies a certificate with optional key matching, chain
// validation, CRL revocation and expiry checking.
func VerifyCert(ctx context.Context, input *VerifyInput) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cert := input.Cert
	if cert == nil {
		return nil, errors.New("no certificate to verify")
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	result := &VerifyResult{
		Subject:  cert.Subject.String(),
		SANs:     cert.DNSNames,
		NotAfter: cert.NotAfter.UTC().Format(time.RFC3339),
		SKI:      embeddedSKI(cert),
	}

	if input.Key != nil {
		match, err := KeyMatchesCert(input.Key, cert)
		if err != nil {
			result.KeyMatchErr = fmt.Sprintf("comparing key: %v", err)
			result.Errors = append(result.Errors, result.KeyMatchErr)
		} else {
			result.KeyMatch = &match
			result.KeyInfo = fmt.Sprintf("%s %s", KeyAlgorithmName(input.Key), privateKeySize(input.Key))
			if !match {
				result.Errors = append(result.Errors, "key does not match certificate")
			}
		}
	}

	roots, err := RootPool(input.TrustStore, input.CustomRoots)
	if err != nil {
		return nil, err
	}
	intermediates := x509.NewCertPool()
	for _, c := range input.ExtraCerts {
		intermediates.AddCert(c)
	}
	chains, err := cert.Verify(x509.VerifyOptions{
		Intermediates: intermediates,
		Roots:         roots,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	valid := err == nil
	result.ChainValid = &valid
	var best []*x509.Certificate
	if err != nil {
		result.ChainErr = err.Error()
		result.Errors = append(result.Errors, fmt.Sprintf("chain validation: %s", err.Error()))
	} else {
		best = chains[0]
		for _, chain := range chains[1:] {
			if len(chain) < len(best) {
				best = chain
			}
		}
		result.Chain = buildChainDisplay(best)
	}

	if len(input.CRLs) > 0 {
		revoked, info := checkRevocation(cert, best, input.ExtraCerts, input.CRLs, now)
		result.Revoked = &revoked
		result.RevocationInfo = info
		if revoked {
			result.Errors = append(result.Errors, info)
		}
	}

	if input.ExpiryDuration > 0 {
		expires := now.Add(input.ExpiryDuration).After(cert.NotAfter)
		result.Expiry = &expires
		if expires {
			result.ExpiryInfo = fmt.Sprintf("certificate expires within %s (not after: %s)", input.ExpiryDuration, result.NotAfter)
			result.Errors = append(result.Errors, result.ExpiryInfo)
		} else {
			result.ExpiryInfo = fmt.Sprintf("certificate does not expire within %s", input.ExpiryDuration)
		}
	}

	return result, nil
}

// checkRevocation looks cert up in every CRL signed by its issuer. The
// issuer comes from the verified chain when there is one, otherwise from
// the extra certificates by subject.
func checkRevocation(cert *x509.Certificate, chain, extra []*x509.Certificate, crls []*x509.RevocationList, now time.Time) (bool, string) {
	var issuer *x509.Certificate
	if len(chain) > 1 {
		issuer = chain[1]
	} else {
		for _, c := range extra {
			if bytes.Equal(c.RawSubject, cert.RawIssuer) {
				issuer = c
				break
			}
		}
	}
	if issuer == nil {
		return false, "issuer not available, CRLs not checked"
	}

	// Every issuer CRL is consulted; a stale one never hides a revocation
	// listed in another.
	checked := 0
	var stale *x509.RevocationList
	for _, crl := range crls {
		if !bytes.Equal(crl.RawIssuer, issuer.RawSubject) {
			continue
		}
		if err := crl.CheckSignatureFrom(issuer); err != nil {
			continue
		}
		checked++
		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return true, fmt.Sprintf("certificate revoked at %s", entry.RevocationTime.UTC().Format(time.RFC3339))
			}
		}
		if stale == nil && !crl.NextUpdate.IsZero() && now.After(crl.NextUpdate) {
			stale = crl
		}
	}
	if checked == 0 {
		return false, "no CRL signed by the issuer"
	}
	if stale != nil {
		return false, fmt.Sprintf("CRL from %s is stale (next update %s)", issuer.Subject.CommonName, stale.NextUpdate.UTC().Format(time.RFC3339))
	}
	return false, fmt.Sprintf("not revoked (%d CRL(s) checked)", checked)
}

func embeddedSKI(cert *x509.Certificate) string {
	if len(cert.SubjectKeyId) == 0 {
		return ""
	}
	return ColonHex(cert.SubjectKeyId)
}

// buildChainDisplay creates the display chain from a verified chain ordered
// leaf first, root last.
func buildChainDisplay(chain []*x509.Certificate) []ChainCert {
	out := make([]ChainCert, 0, len(chain))
	for i, c := range chain {
		out = append(out, ChainCert{
			Subject: c.Subject.String(),
			Expiry:  c.NotAfter.UTC().Format("2006-01-02"),
			SKI:     embeddedSKI(c),
			IsRoot:  i == len(chain)-1 && len(chain) > 1,
		})
	}
	return out
}

// VerifyItemsInput holds the sections to verify and verification options.
type VerifyItemsInput struct {
	Items          []pemfile.Item
	Passwords      []string
	CustomRoots    []*x509.Certificate
	TrustStore     string
	ExpiryDuration time.Duration
	Now            time.Time
}

// VerifyItems verifies the first certificate section using the other
// certificate sections as intermediates. The first private key section, if
// any, is matched against it and every CRL section is checked for
// revocation.
func VerifyItems(ctx context.Context, input VerifyItemsInput) (*VerifyResult, error) {
	vi := &VerifyInput{
		CustomRoots:    input.CustomRoots,
		TrustStore:     input.TrustStore,
		ExpiryDuration: input.ExpiryDuration,
		Now:            input.Now,
	}
	for i, item := range input.Items {
		switch {
		case item.Kind == pemfile.KindCertificate:
			cert, err := x509.ParseCertificate(item.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing certificate section %d: %w", i, err)
			}
			if vi.Cert == nil {
				vi.Cert = cert
			} else {
				vi.ExtraCerts = append(vi.ExtraCerts, cert)
			}
		case item.Kind == pemfile.KindCRL:
			crl, err := x509.ParseRevocationList(item.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing CRL section %d: %w", i, err)
			}
			vi.CRLs = append(vi.CRLs, crl)
		case vi.Key == nil && (item.Kind.IsPrivateKey() || item.Label == LabelOpenSSHPrivateKey):
			key, err := ParsePrivateKey(item, input.Passwords)
			if err != nil {
				return nil, fmt.Errorf("parsing private key section %d: %w", i, err)
			}
			vi.Key = key
		}
	}
	if vi.Cert == nil {
		return nil, errors.New("no certificate section found")
	}
	return VerifyCert(ctx, vi)
}

// daysUntil returns the number of days from now until t, rounded down.
func daysUntil(t time.Time) int {
	return int(math.Floor(time.Until(t).Hours() / 24))
}

// FormatVerifyResult formats a verify result as human-readable text.
func FormatVerifyResult(r *VerifyResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Certificate: %s\n", r.Subject)

	if len(r.SANs) > 0 {
		fmt.Fprintf(&sb, "       SANs: %s\n", strings.Join(r.SANs, ", "))
	}

	notAfter, err := time.Parse(time.RFC3339, r.NotAfter)
	if err == nil {
		fmt.Fprintf(&sb, "  Not After: %s (%d days)\n", r.NotAfter, daysUntil(notAfter))
	} else {
		fmt.Fprintf(&sb, "  Not After: %s\n", r.NotAfter)
	}

	if r.SKI != "" {
		fmt.Fprintf(&sb, "        SKI: %s\n", r.SKI)
	}

	if r.KeyMatch != nil {
		if *r.KeyMatch {
			fmt.Fprintf(&sb, "  Key Match: OK (%s)\n", r.KeyInfo)
		} else {
			fmt.Fprintf(&sb, "  Key Match: MISMATCH (%s)\n", r.KeyInfo)
		}
	} else if r.KeyMatchErr != "" {
		fmt.Fprintf(&sb, "  Key Match: ERROR (%s)\n", r.KeyMatchErr)
	}

	if r.ChainValid != nil {
		if *r.ChainValid {
			sb.WriteString("      Chain: VALID\n")
		} else {
			fmt.Fprintf(&sb, "      Chain: INVALID (%s)\n", r.ChainErr)
		}
	}

	if r.Revoked != nil {
		if *r.Revoked {
			fmt.Fprintf(&sb, " Revocation: REVOKED (%s)\n", r.RevocationInfo)
		} else {
			fmt.Fprintf(&sb, " Revocation: %s\n", r.RevocationInfo)
		}
	}

	if len(r.Chain) > 0 {
		sb.WriteString("\nChain:\n")
		for i, c := range r.Chain {
			tag := ""
			if c.IsRoot {
				tag = "  [root]"
			}
			fmt.Fprintf(&sb, "  %d: %s  (expires %s)%s\n", i, c.Subject, c.Expiry, tag)
			if c.SKI != "" {
				fmt.Fprintf(&sb, "     SKI: %s\n", c.SKI)
			}
		}
	}

	if r.Expiry != nil {
		fmt.Fprintf(&sb, "\n  Expiry: %s\n", r.ExpiryInfo)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&sb, "\nVerification FAILED (%d error(s))\n", len(r.Errors))
	} else {
		sb.WriteString("\nVerification OK\n")
	}

	return sb.String()
}
