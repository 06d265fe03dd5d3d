package internal

import (
	"crypto"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/sensiblebit/pemfile"
	"github.com/smallstep/pkcs7"
	"gopkg.in/yaml.v3"
)

// InspectResult holds the inspection details for one section.
type InspectResult struct {
	Index          int      `json:"index" yaml:"index"`
	Source         string   `json:"source,omitempty" yaml:"source,omitempty"`
	Label          string   `json:"label" yaml:"label"`
	Kind           string   `json:"kind" yaml:"kind"`
	Size           int      `json:"size" yaml:"size"`
	SHA256         string   `json:"sha256_fingerprint" yaml:"sha256_fingerprint"`
	SHA1           string   `json:"sha1_fingerprint,omitempty" yaml:"sha1_fingerprint,omitempty"`
	Subject        string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer         string   `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Serial         string   `json:"serial,omitempty" yaml:"serial,omitempty"`
	NotBefore      string   `json:"not_before,omitempty" yaml:"not_before,omitempty"`
	NotAfter       string   `json:"not_after,omitempty" yaml:"not_after,omitempty"`
	CertType       string   `json:"cert_type,omitempty" yaml:"cert_type,omitempty"`
	SANs           []string `json:"sans,omitempty" yaml:"sans,omitempty"`
	SKI            string   `json:"subject_key_id,omitempty" yaml:"subject_key_id,omitempty"`
	AKI            string   `json:"authority_key_id,omitempty" yaml:"authority_key_id,omitempty"`
	SigAlg         string   `json:"signature_algorithm,omitempty" yaml:"signature_algorithm,omitempty"`
	KeyAlgo        string   `json:"key_algorithm,omitempty" yaml:"key_algorithm,omitempty"`
	KeySize        string   `json:"key_size,omitempty" yaml:"key_size,omitempty"`
	SSHFingerprint string   `json:"ssh_fingerprint,omitempty" yaml:"ssh_fingerprint,omitempty"`
	ThisUpdate     string   `json:"this_update,omitempty" yaml:"this_update,omitempty"`
	NextUpdate     string   `json:"next_update,omitempty" yaml:"next_update,omitempty"`
	CRLNumber      string   `json:"crl_number,omitempty" yaml:"crl_number,omitempty"`
	Revoked        *int     `json:"revoked_count,omitempty" yaml:"revoked_count,omitempty"`
	Certificates   []string `json:"certificates,omitempty" yaml:"certificates,omitempty"`
	Error          string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// InspectItems inspects every collected section in order.
func InspectItems(c *ItemCollector, passwords []string) []InspectResult {
	results := make([]InspectResult, 0, len(c.Items))
	for i, item := range c.Items {
		r := InspectItem(item, passwords)
		r.Index = i
		r.Source = c.Sources[i]
		results = append(results, r)
	}
	return results
}

// InspectItem decodes the DER of a section according to its kind. A
// payload that does not parse is reported in Error, never as a failure.
func InspectItem(item pemfile.Item, passwords []string) InspectResult {
	r := InspectResult{
		Label:  item.Label,
		Kind:   item.Kind.String(),
		Size:   len(item.Bytes),
		SHA256: FingerprintSHA256(item.Bytes),
	}

	var err error
	switch {
	case item.Kind == pemfile.KindCertificate:
		err = inspectCert(&r, item.Bytes)
	case item.Kind == pemfile.KindCRL:
		err = inspectCRL(&r, item.Bytes)
	case item.Kind == pemfile.KindPKCS7:
		err = inspectPKCS7(&r, item.Bytes)
	case item.Kind == pemfile.KindPublicKey:
		err = inspectPublicKey(&r, item.Bytes)
	case item.Kind.IsPrivateKey(), item.Label == LabelOpenSSHPrivateKey:
		err = inspectKey(&r, item, passwords)
	case item.Label == LabelCertificateRequest:
		err = inspectCSR(&r, item.Bytes)
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func formatIPs(ips []net.IP) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out
}

func inspectCert(r *InspectResult, der []byte) error {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("parsing certificate: %w", err)
	}
	sans := slices.Concat(cert.DNSNames, formatIPs(cert.IPAddresses), cert.EmailAddresses)
	for _, uri := range cert.URIs {
		sans = append(sans, uri.String())
	}

	r.Subject = cert.Subject.String()
	r.Issuer = cert.Issuer.String()
	r.Serial = cert.SerialNumber.String()
	r.NotBefore = cert.NotBefore.UTC().Format(time.RFC3339)
	r.NotAfter = cert.NotAfter.UTC().Format(time.RFC3339)
	r.CertType = CertificateType(cert)
	r.KeyAlgo = PublicKeyAlgorithmName(cert.PublicKey)
	r.KeySize = publicKeySize(cert.PublicKey)
	r.SANs = sans
	r.SHA1 = FingerprintSHA1(der)
	r.SigAlg = cert.SignatureAlgorithm.String()
	if len(cert.SubjectKeyId) > 0 {
		r.SKI = ColonHex(cert.SubjectKeyId)
	}
	if len(cert.AuthorityKeyId) > 0 {
		r.AKI = ColonHex(cert.AuthorityKeyId)
	}
	return nil
}

func inspectCRL(r *InspectResult, der []byte) error {
	crl, err := x509.ParseRevocationList(der)
	if err != nil {
		return fmt.Errorf("parsing CRL: %w", err)
	}
	revoked := len(crl.RevokedCertificateEntries)
	r.Issuer = crl.Issuer.String()
	r.ThisUpdate = crl.ThisUpdate.UTC().Format(time.RFC3339)
	if !crl.NextUpdate.IsZero() {
		r.NextUpdate = crl.NextUpdate.UTC().Format(time.RFC3339)
	}
	if crl.Number != nil {
		r.CRLNumber = crl.Number.String()
	}
	r.Revoked = &revoked
	r.SigAlg = crl.SignatureAlgorithm.String()
	if len(crl.AuthorityKeyId) > 0 {
		r.AKI = ColonHex(crl.AuthorityKeyId)
	}
	return nil
}

func inspectPKCS7(r *InspectResult, der []byte) error {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return fmt.Errorf("parsing PKCS#7: %w", err)
	}
	for _, cert := range p7.Certificates {
		r.Certificates = append(r.Certificates, cert.Subject.String())
	}
	return nil
}

func inspectPublicKey(r *InspectResult, der []byte) error {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}
	describePublicKey(r, pub)
	return nil
}

func describePublicKey(r *InspectResult, pub crypto.PublicKey) {
	r.KeyAlgo = PublicKeyAlgorithmName(pub)
	r.KeySize = publicKeySize(pub)
	if ski, err := ComputeSKI(pub); err == nil {
		r.SKI = ColonHex(ski)
	}
	r.SSHFingerprint = SSHFingerprint(pub)
}

func inspectKey(r *InspectResult, item pemfile.Item, passwords []string) error {
	key, err := ParsePrivateKey(item, passwords)
	if err != nil {
		return err
	}
	if pub, err := publicKeyOf(key); err == nil {
		describePublicKey(r, pub)
	}
	r.KeyAlgo = KeyAlgorithmName(key)
	r.KeySize = privateKeySize(key)
	return nil
}

func inspectCSR(r *InspectResult, der []byte) error {
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return fmt.Errorf("parsing certificate request: %w", err)
	}
	r.Subject = csr.Subject.String()
	r.SANs = slices.Concat(csr.DNSNames, formatIPs(csr.IPAddresses), csr.EmailAddresses)
	r.KeyAlgo = PublicKeyAlgorithmName(csr.PublicKey)
	r.KeySize = publicKeySize(csr.PublicKey)
	r.SigAlg = csr.SignatureAlgorithm.String()
	if err := csr.CheckSignature(); err != nil {
		return fmt.Errorf("certificate request signature: %w", err)
	}
	return nil
}

// FormatInspectResults formats inspection results as text, JSON, or YAML.
func FormatInspectResults(results []InspectResult, format string) (string, error) {
	switch format {
	case "text":
		return formatInspectText(results), nil
	case "json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling JSON: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(results)
		if err != nil {
			return "", fmt.Errorf("marshaling YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json, or yaml)", format)
	}
}

func formatInspectText(results []InspectResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%d] %s (%s, %d bytes)\n", r.Index, r.Label, r.Kind, r.Size)
		if r.Source != "" {
			fmt.Fprintf(&sb, "  Source:      %s\n", r.Source)
		}
		fmt.Fprintf(&sb, "  SHA-256:     %s\n", r.SHA256)
		if r.Error != "" {
			fmt.Fprintf(&sb, "  Error:       %s\n", r.Error)
			continue
		}
		switch {
		case r.Kind == pemfile.KindCertificate.String():
			fmt.Fprintf(&sb, "  Subject:     %s\n", r.Subject)
			if len(r.SANs) > 0 {
				fmt.Fprintf(&sb, "  SANs:        %s\n", strings.Join(r.SANs, ", "))
			}
			fmt.Fprintf(&sb, "  Issuer:      %s\n", r.Issuer)
			fmt.Fprintf(&sb, "  Serial:      %s\n", r.Serial)
			fmt.Fprintf(&sb, "  Type:        %s\n", r.CertType)
			fmt.Fprintf(&sb, "  Not Before:  %s\n", r.NotBefore)
			fmt.Fprintf(&sb, "  Not After:   %s\n", r.NotAfter)
			fmt.Fprintf(&sb, "  Key:         %s %s\n", r.KeyAlgo, r.KeySize)
			fmt.Fprintf(&sb, "  Signature:   %s\n", r.SigAlg)
			fmt.Fprintf(&sb, "  SHA-1:       %s\n", r.SHA1)
			if r.SKI != "" {
				fmt.Fprintf(&sb, "  SKI:         %s\n", r.SKI)
			}
			if r.AKI != "" {
				fmt.Fprintf(&sb, "  AKI:         %s\n", r.AKI)
			}
		case r.Kind == pemfile.KindCRL.String():
			fmt.Fprintf(&sb, "  Issuer:      %s\n", r.Issuer)
			fmt.Fprintf(&sb, "  This Update: %s\n", r.ThisUpdate)
			if r.NextUpdate != "" {
				fmt.Fprintf(&sb, "  Next Update: %s\n", r.NextUpdate)
			}
			if r.CRLNumber != "" {
				fmt.Fprintf(&sb, "  Number:      %s\n", r.CRLNumber)
			}
			if r.Revoked != nil {
				fmt.Fprintf(&sb, "  Revoked:     %d\n", *r.Revoked)
			}
		case r.Kind == pemfile.KindPKCS7.String():
			fmt.Fprintf(&sb, "  Certificates: %d\n", len(r.Certificates))
			for _, s := range r.Certificates {
				fmt.Fprintf(&sb, "    - %s\n", s)
			}
		case r.Label == LabelCertificateRequest:
			fmt.Fprintf(&sb, "  Subject:     %s\n", r.Subject)
			if len(r.SANs) > 0 {
				fmt.Fprintf(&sb, "  SANs:        %s\n", strings.Join(r.SANs, ", "))
			}
			fmt.Fprintf(&sb, "  Key:         %s %s\n", r.KeyAlgo, r.KeySize)
			fmt.Fprintf(&sb, "  Signature:   %s\n", r.SigAlg)
		case r.KeyAlgo != "":
			fmt.Fprintf(&sb, "  Key:         %s %s\n", r.KeyAlgo, r.KeySize)
			if r.SKI != "" {
				fmt.Fprintf(&sb, "  SKI:         %s\n", r.SKI)
			}
			if r.SSHFingerprint != "" {
				fmt.Fprintf(&sb, "  SSH:         %s\n", r.SSHFingerprint)
			}
		}
	}
	return sb.String()
}
