package internal

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/sensiblebit/pemfile"
	"golang.org/x/crypto/ssh"
)

func TestColonHex(t *testing.T) {
	// WHY: Fingerprints and key identifiers are displayed in this form;
	// empty input must render as an empty string, not a stray colon.
	t.Parallel()

	tests := []struct {
		in   []byte
		want string
	}{
		{nil, ""},
		{[]byte{0xab}, "ab"},
		{[]byte{0x01, 0xfe, 0x00}, "01:fe:00"},
	}
	for _, tt := range tests {
		if got := ColonHex(tt.in); got != tt.want {
			t.Errorf("ColonHex(%x) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if fp := FingerprintSHA256([]byte("x")); len(fp) != 32*3-1 || strings.ToUpper(fp) != fp {
		t.Errorf("FingerprintSHA256 = %q, want 32 uppercase colon-separated bytes", fp)
	}
	if fp := FingerprintSHA1([]byte("x")); len(fp) != 20*3-1 {
		t.Errorf("FingerprintSHA1 = %q, want 20 colon-separated bytes", fp)
	}
}

func TestParsePrivateKey_ByKind(t *testing.T) {
	// WHY: Each private key label has its own DER structure; the parser must
	// be chosen from the kind, with PRIVATE KEY tolerating mislabeled PKCS#1
	// and SEC 1 payloads.
	t.Parallel()

	rsaKey := newRSAKey(t)
	ecKey := newECKey(t)
	edKey := newEd25519Key(t)
	sec1, err := x509.MarshalECPrivateKey(ecKey)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		item     pemfile.Item
		wantAlgo string
	}{
		{"pkcs1", newItem("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey)), "RSA"},
		{"sec1", newItem("EC PRIVATE KEY", sec1), "ECDSA"},
		{"pkcs8 ec", newItem("PRIVATE KEY", pkcs8DER(t, ecKey)), "ECDSA"},
		{"pkcs8 ed25519", newItem("PRIVATE KEY", pkcs8DER(t, edKey)), "Ed25519"},
		{"pkcs8 label holding pkcs1", newItem("PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey)), "RSA"},
		{"pkcs8 label holding sec1", newItem("PRIVATE KEY", sec1), "ECDSA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			key, err := ParsePrivateKey(tt.item, nil)
			if err != nil {
				t.Fatalf("ParsePrivateKey: %v", err)
			}
			if got := KeyAlgorithmName(key); got != tt.wantAlgo {
				t.Errorf("algorithm = %q, want %q", got, tt.wantAlgo)
			}
		})
	}

	if _, err := ParsePrivateKey(newItem("CERTIFICATE", []byte{1}), nil); err == nil {
		t.Error("expected error for a non-key section")
	}
	if _, err := ParsePrivateKey(newItem("PRIVATE KEY", []byte{0x30, 0x00}), nil); err == nil {
		t.Error("expected error for garbage PRIVATE KEY payload")
	}
}

func TestParsePrivateKey_OpenSSH(t *testing.T) {
	// WHY: OPENSSH PRIVATE KEY is not a recognized kind but is common in
	// key directories; plain and passphrase-protected keys must both parse,
	// the latter only with a matching password.
	t.Parallel()

	edKey := newEd25519Key(t)
	plain, err := ssh.MarshalPrivateKey(edKey, "")
	if err != nil {
		t.Fatal(err)
	}
	encrypted, err := ssh.MarshalPrivateKeyWithPassphrase(edKey, "", []byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}

	toItem := func(b *pem.Block) pemfile.Item {
		it, _, err := pemfile.ReadOneFromSlice(pem.EncodeToMemory(b))
		if err != nil {
			t.Fatal(err)
		}
		return it
	}

	key, err := ParsePrivateKey(toItem(plain), nil)
	if err != nil {
		t.Fatalf("plain OpenSSH key: %v", err)
	}
	if _, ok := key.(ed25519.PrivateKey); !ok {
		t.Errorf("key type = %T, want ed25519.PrivateKey", key)
	}

	if _, err := ParsePrivateKey(toItem(encrypted), []string{"", "wrong"}); err == nil {
		t.Error("expected error when no password matches")
	}
	key, err = ParsePrivateKey(toItem(encrypted), []string{"wrong", "s3cret"})
	if err != nil {
		t.Fatalf("encrypted OpenSSH key: %v", err)
	}
	if !edKey.Equal(key) {
		t.Error("decrypted key differs from the original")
	}
}

func TestKeyMatchesCert(t *testing.T) {
	// WHY: Verify and export pair keys with certificates by public key; a
	// different key of the same algorithm must not match.
	t.Parallel()

	_, _, leaf := newTestChain(t)
	match, err := KeyMatchesCert(leaf.key, leaf.cert)
	if err != nil || !match {
		t.Errorf("KeyMatchesCert(own key) = %v, %v", match, err)
	}
	match, err = KeyMatchesCert(newECKey(t), leaf.cert)
	if err != nil || match {
		t.Errorf("KeyMatchesCert(other key) = %v, %v", match, err)
	}
}

func TestComputeSKIAndSizes(t *testing.T) {
	// WHY: SKIs are the join key between keys and certificates in inspect
	// output; they must be 20 bytes and stable for a given key.
	t.Parallel()

	ecKey := newECKey(t)
	a, err := ComputeSKI(&ecKey.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ComputeSKI(ecKey.Public())
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 20 || ColonHex(a) != ColonHex(b) {
		t.Errorf("SKI = %x / %x, want equal 20-byte values", a, b)
	}

	rsaKey := newRSAKey(t)
	if got := publicKeySize(&rsaKey.PublicKey); got != "2048" {
		t.Errorf("publicKeySize(RSA) = %q", got)
	}
	if got := privateKeySize(ecKey); got != "P-256" {
		t.Errorf("privateKeySize(EC) = %q", got)
	}
	if got := PublicKeyAlgorithmName(&ecdsa.PublicKey{}); got != "ECDSA" {
		t.Errorf("PublicKeyAlgorithmName = %q", got)
	}
	if got := KeyAlgorithmName(&rsa.PrivateKey{}); got != "RSA" {
		t.Errorf("KeyAlgorithmName = %q", got)
	}
	if fp := SSHFingerprint(ecKey.Public()); !strings.HasPrefix(fp, "SHA256:") {
		t.Errorf("SSHFingerprint = %q", fp)
	}
}

func TestCertificateType(t *testing.T) {
	// WHY: Root, intermediate and leaf are told apart by CA flag and
	// self-issuance; summaries and verify output depend on it.
	t.Parallel()

	root, inter, leaf := newTestChain(t)
	for _, tt := range []struct {
		cert *x509.Certificate
		want string
	}{
		{root.cert, "root"},
		{inter.cert, "intermediate"},
		{leaf.cert, "leaf"},
	} {
		if got := CertificateType(tt.cert); got != tt.want {
			t.Errorf("CertificateType(%s) = %q, want %q", tt.cert.Subject.CommonName, got, tt.want)
		}
	}
}
