package internal

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sensiblebit/pemfile"
	"golang.org/x/crypto/ssh"
)

// LabelOpenSSHPrivateKey is the label OpenSSH writes around its own key
// format. The scanner reports it as KindUnknown; inspection handles it here.
const LabelOpenSSHPrivateKey = "OPENSSH PRIVATE KEY"

// LabelCertificateRequest is the PKCS#10 CSR label.
const LabelCertificateRequest = "CERTIFICATE REQUEST"

// ColonHex formats a byte slice as colon-separated lowercase hex.
func ColonHex(b []byte) string {
	h := hex.EncodeToString(b)
	parts := make([]string, 0, len(h)/2)
	for i := 0; i < len(h); i += 2 {
		end := min(i+2, len(h))
		parts = append(parts, h[i:end])
	}
	return strings.Join(parts, ":")
}

// FingerprintSHA256 returns the SHA-256 of der in uppercase colon-separated
// hex (AA:BB:...), the form OpenSSL and browsers display.
func FingerprintSHA256(der []byte) string {
	sum := sha256.Sum256(der)
	return strings.ToUpper(ColonHex(sum[:]))
}

// FingerprintSHA1 is FingerprintSHA256 with SHA-1.
func FingerprintSHA1(der []byte) string {
	sum := sha1.Sum(der)
	return strings.ToUpper(ColonHex(sum[:]))
}

// extractPublicKeyBitString parses a DER-encoded SubjectPublicKeyInfo and
// returns the raw public key bytes (the BIT STRING value, excluding the
// unused-bits octet).
func extractPublicKeyBitString(spkiDER []byte) ([]byte, error) {
	var spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spkiDER, &spki); err != nil {
		return nil, fmt.Errorf("parsing SubjectPublicKeyInfo: %w", err)
	}
	return spki.PublicKey.Bytes, nil
}

// ComputeSKI computes a Subject Key Identifier using RFC 7093 Method 1:
// SHA-256 of subjectPublicKey BIT STRING bytes, truncated to 160 bits (20 bytes).
func ComputeSKI(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal PKIX: %w", err)
	}
	bits, err := extractPublicKeyBitString(der)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(bits)
	return sum[:20], nil
}

// KeyAlgorithmName returns a human-readable name for a private key's algorithm.
func KeyAlgorithmName(key crypto.PrivateKey) string {
	switch key.(type) {
	case *ecdsa.PrivateKey:
		return "ECDSA"
	case *rsa.PrivateKey:
		return "RSA"
	case ed25519.PrivateKey, *ed25519.PrivateKey:
		return "Ed25519"
	default:
		return "unknown"
	}
}

// PublicKeyAlgorithmName returns a human-readable name for a public key's algorithm.
func PublicKeyAlgorithmName(key crypto.PublicKey) string {
	switch key.(type) {
	case *ecdsa.PublicKey:
		return "ECDSA"
	case *rsa.PublicKey:
		return "RSA"
	case ed25519.PublicKey, *ed25519.PublicKey:
		return "Ed25519"
	default:
		return "unknown"
	}
}

func publicKeySize(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("%d", k.N.BitLen())
	case *ecdsa.PublicKey:
		return k.Curve.Params().Name
	case ed25519.PublicKey:
		return "256"
	default:
		return "unknown"
	}
}

func privateKeySize(key crypto.PrivateKey) string {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return fmt.Sprintf("%d", k.N.BitLen())
	case *ecdsa.PrivateKey:
		return k.Curve.Params().Name
	case ed25519.PrivateKey, *ed25519.PrivateKey:
		return "256"
	default:
		return "unknown"
	}
}

// CertificateType determines if a certificate is root, intermediate, or leaf.
func CertificateType(cert *x509.Certificate) string {
	if cert.IsCA {
		if bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			return "root"
		}
		return "intermediate"
	}
	return "leaf"
}

// normalizeKey dereferences *ed25519.PrivateKey (returned by
// ssh.ParseRawPrivateKey) so type switches only need the value form.
func normalizeKey(key crypto.PrivateKey) crypto.PrivateKey {
	if ptr, ok := key.(*ed25519.PrivateKey); ok {
		return *ptr
	}
	return key
}

// ParsePrivateKey decodes the private key carried by item. The parser is
// chosen by kind; PRIVATE KEY sections fall back to PKCS#1 and SEC 1 for
// mislabeled keys. OPENSSH PRIVATE KEY sections go through x/crypto/ssh,
// trying each password in turn when the key is encrypted.
func ParsePrivateKey(item pemfile.Item, passwords []string) (crypto.PrivateKey, error) {
	switch item.Kind {
	case pemfile.KindPKCS1PrivateKey:
		return x509.ParsePKCS1PrivateKey(item.Bytes)
	case pemfile.KindSEC1PrivateKey:
		return x509.ParseECPrivateKey(item.Bytes)
	case pemfile.KindPKCS8PrivateKey:
		if key, err := x509.ParsePKCS8PrivateKey(item.Bytes); err == nil {
			return normalizeKey(key), nil
		}
		if key, err := x509.ParsePKCS1PrivateKey(item.Bytes); err == nil {
			return key, nil
		}
		if key, err := x509.ParseECPrivateKey(item.Bytes); err == nil {
			return key, nil
		}
		return nil, errors.New("parsing PRIVATE KEY section with any known format")
	}
	if item.Label == LabelOpenSSHPrivateKey {
		return parseOpenSSHKey(item, passwords)
	}
	return nil, fmt.Errorf("section %q does not hold a private key", item.Label)
}

func parseOpenSSHKey(item pemfile.Item, passwords []string) (crypto.PrivateKey, error) {
	pemData := pemfile.EncodeToMemory(item.Label, item.Bytes, 70)
	key, err := ssh.ParseRawPrivateKey(pemData)
	if err == nil {
		return normalizeKey(key), nil
	}
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("parsing OpenSSH private key: %w", err)
	}
	for _, pw := range passwords {
		if pw == "" {
			continue
		}
		if key, err := ssh.ParseRawPrivateKeyWithPassphrase(pemData, []byte(pw)); err == nil {
			return normalizeKey(key), nil
		}
	}
	return nil, errors.New("OpenSSH private key is encrypted and no password matched")
}

// publicKeyOf returns the public half of a private key.
func publicKeyOf(priv crypto.PrivateKey) (crypto.PublicKey, error) {
	if signer, ok := priv.(crypto.Signer); ok {
		return signer.Public(), nil
	}
	return nil, fmt.Errorf("unsupported private key type: %T", priv)
}

// KeyMatchesCert reports whether a private key corresponds to the public key
// in a certificate.
func KeyMatchesCert(priv crypto.PrivateKey, cert *x509.Certificate) (bool, error) {
	pub, err := publicKeyOf(priv)
	if err != nil {
		return false, err
	}
	type equalKey interface {
		Equal(crypto.PublicKey) bool
	}
	eq, ok := pub.(equalKey)
	if !ok {
		return false, fmt.Errorf("unsupported public key type: %T", pub)
	}
	return eq.Equal(cert.PublicKey), nil
}

// SSHFingerprint returns the OpenSSH SHA256 fingerprint of pub, or "" if
// the key type has no SSH encoding.
func SSHFingerprint(pub crypto.PublicKey) string {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(sshPub)
}
