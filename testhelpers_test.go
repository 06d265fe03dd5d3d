package pemfile

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

// testPKI holds the DER of a small CA hierarchy plus one of every key and
// list encoding the classifier recognizes.
type testPKI struct {
	caDER, intDER, leafDER []byte
	pkcs8DER, pkcs1DER     []byte
	sec1DER, spkiDER       []byte
	crlDER                 []byte
}

// chainPEM returns leaf, intermediate and CA certificates in that order.
func (p testPKI) chainPEM() []byte {
	var buf bytes.Buffer
	for _, der := range [][]byte{p.leafDER, p.intDER, p.caDER} {
		buf.Write(EncodeToMemory("CERTIFICATE", der, DefaultLineWidth))
	}
	return buf.Bytes()
}

// zooPEM returns one section of every recognized kind, in Kinds() order.
func (p testPKI) zooPEM() []byte {
	var buf bytes.Buffer
	for _, s := range []struct {
		label string
		der   []byte
	}{
		{"CERTIFICATE", p.leafDER},
		{"X509 CRL", p.crlDER},
		{"PKCS7", []byte{0x30, 0x00}},
		{"PRIVATE KEY", p.pkcs8DER},
		{"RSA PRIVATE KEY", p.pkcs1DER},
		{"EC PRIVATE KEY", p.sec1DER},
		{"PUBLIC KEY", p.spkiDER},
	} {
		buf.Write(EncodeToMemory(s.label, s.der, DefaultLineWidth))
	}
	return buf.Bytes()
}

// generateTestPKI creates a self-signed CA, an intermediate, a leaf and a
// CRL, and encodes fresh keys in PKCS#8, PKCS#1, SEC 1 and SPKI form.
func generateTestPKI(tb testing.TB) testPKI {
	tb.Helper()

	caKey := mustECKey(tb)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		tb.Fatal(err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		tb.Fatal(err)
	}

	intKey := mustECKey(tb)
	intTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "Test Intermediate"},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	intDER, err := x509.CreateCertificate(rand.Reader, intTemplate, caCert, &intKey.PublicKey, caKey)
	if err != nil {
		tb.Fatal(err)
	}
	intCert, err := x509.ParseCertificate(intDER)
	if err != nil {
		tb.Fatal(err)
	}

	leafKey := mustECKey(tb)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "test.example.com"},
		DNSNames:     []string{"test.example.com"},
		NotBefore:    time.Now().Add(-1 * time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, intCert, &leafKey.PublicKey, intKey)
	if err != nil {
		tb.Fatal(err)
	}

	crlDER, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now().Add(-1 * time.Hour),
		NextUpdate: time.Now().Add(24 * time.Hour),
	}, caCert, caKey)
	if err != nil {
		tb.Fatal(err)
	}

	pkcs8DER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	if err != nil {
		tb.Fatal(err)
	}
	sec1DER, err := x509.MarshalECPrivateKey(leafKey)
	if err != nil {
		tb.Fatal(err)
	}
	spkiDER, err := x509.MarshalPKIXPublicKey(&leafKey.PublicKey)
	if err != nil {
		tb.Fatal(err)
	}
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatal(err)
	}

	return testPKI{
		caDER:    caDER,
		intDER:   intDER,
		leafDER:  leafDER,
		pkcs8DER: pkcs8DER,
		pkcs1DER: x509.MarshalPKCS1PrivateKey(rsaKey),
		sec1DER:  sec1DER,
		spkiDER:  spkiDER,
		crlDER:   crlDER,
	}
}

func mustECKey(tb testing.TB) *ecdsa.PrivateKey {
	tb.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatal(err)
	}
	return key
}
