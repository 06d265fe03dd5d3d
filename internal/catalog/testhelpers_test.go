package catalog

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/sensiblebit/pemfile"
)

// newSelfSignedDER returns the DER of a self-signed ECDSA certificate.
func newSelfSignedDER(t *testing.T, cn string, notAfter time.Time, isCA bool) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notAfter.Add(-48 * time.Hour),
		NotAfter:              notAfter,
		IsCA:                  isCA,
		BasicConstraintsValid: true,
	}
	if isCA {
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

func certItem(der []byte) pemfile.Item {
	return pemfile.Item{Kind: pemfile.KindCertificate, Label: "CERTIFICATE", Bytes: der}
}

func labeled(label string, data []byte) pemfile.Item {
	return pemfile.Item{Kind: pemfile.Classify(label), Label: label, Bytes: data}
}

// mustHandle feeds item to store and fails the test on error.
func mustHandle(t *testing.T, store *MemStore, item pemfile.Item, source string) {
	t.Helper()
	if err := store.HandleItem(item, source); err != nil {
		t.Fatalf("HandleItem(%s): %v", item, err)
	}
}
