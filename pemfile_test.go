package pemfile

import (
	"bytes"
	"crypto/x509"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadAll_Chain(t *testing.T) {
	// WHY: A bundle of N certificates must yield N items in order, each
	// parseable by crypto/x509 and identical to the DER that was encoded.
	t.Parallel()

	pki := generateTestPKI(t)
	items, err := ReadAll(bytes.NewReader(pki.chainPEM()))
	if err != nil {
		t.Fatal(err)
	}
	want := [][]byte{pki.leafDER, pki.intDER, pki.caDER}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, item := range items {
		if !bytes.Equal(item.Bytes, want[i]) {
			t.Errorf("items[%d] DER mismatch", i)
		}
		if _, err := x509.ParseCertificate(item.Bytes); err != nil {
			t.Errorf("items[%d]: %v", i, err)
		}
	}
}

func TestReadAll_StopsAtFirstError(t *testing.T) {
	// WHY: ReadAll is the strict convenience wrapper; partial results must
	// not leak out alongside an error.
	t.Parallel()

	input := string(EncodeToMemory("CERTIFICATE", []byte("a"), 64)) +
		"-----BEGIN CERTIFICATE-----\nA\n-----END CERTIFICATE-----\n"
	items, err := ReadAll(strings.NewReader(input))
	if !errors.Is(err, ErrInvalidBase64Length) {
		t.Fatalf("error = %v, want ErrInvalidBase64Length", err)
	}
	if items != nil {
		t.Errorf("items = %v, want nil", items)
	}
}

func TestAll_Lenient(t *testing.T) {
	// WHY: The iterator form must yield errors inline in lenient mode and
	// keep going, and the yielded items must stay valid after iteration.
	t.Parallel()

	input := "-----BEGIN PUBLIC KEY-----\n!!!!\n-----END PUBLIC KEY-----\n" +
		string(EncodeToMemory("PUBLIC KEY", []byte("spki"), 64)) +
		string(EncodeToMemory("X509 CRL", []byte("crl"), 64))

	var items []Item
	var errs []error
	for item, err := range All(strings.NewReader(input), Lenient) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, item)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrInvalidBase64Character) {
		t.Errorf("errors = %v, want one ErrInvalidBase64Character", errs)
	}
	if len(items) != 2 || string(items[0].Bytes) != "spki" || string(items[1].Bytes) != "crl" {
		t.Errorf("items = %v", items)
	}
}

func TestAll_EarlyBreak(t *testing.T) {
	// WHY: Breaking out of a range loop must stop the scan without panicking.
	t.Parallel()

	pki := generateTestPKI(t)
	n := 0
	for _, err := range All(bytes.NewReader(pki.chainPEM()), Strict) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterated %d times, want 1", n)
	}
}

func TestReadOneFromSlice(t *testing.T) {
	// WHY: Slice callers walk a buffer section by section; the returned rest
	// must begin right after the END line and io.EOF must end the walk.
	t.Parallel()

	first := EncodeToMemory("CERTIFICATE", []byte("one"), 64)
	second := EncodeToMemory("EC PRIVATE KEY", []byte("two"), 64)
	data := append(append([]byte("preamble\n"), first...), second...)

	item, rest, err := ReadOneFromSlice(data)
	if err != nil {
		t.Fatal(err)
	}
	if item.Kind != KindCertificate || string(item.Bytes) != "one" {
		t.Errorf("first item = %v", item)
	}
	if !bytes.Equal(rest, second) {
		t.Errorf("rest = %q, want the second section", rest)
	}

	item, rest, err = ReadOneFromSlice(rest)
	if err != nil {
		t.Fatal(err)
	}
	if item.Kind != KindSEC1PrivateKey || string(item.Bytes) != "two" {
		t.Errorf("second item = %v", item)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %q, want empty", rest)
	}

	if _, _, err := ReadOneFromSlice(rest); !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want io.EOF", err)
	}
	if _, _, err := ReadOneFromSlice([]byte("no sections here\n")); !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want io.EOF", err)
	}
}

func TestKindFilters(t *testing.T) {
	// WHY: Each filter must return only its own kind and skip the rest of a
	// mixed file without error.
	t.Parallel()

	pki := generateTestPKI(t)
	zoo := pki.zooPEM()

	tests := []struct {
		name string
		fn   func(io.Reader) ([][]byte, error)
		want []byte
	}{
		{"Certificates", Certificates, pki.leafDER},
		{"CRLs", CRLs, pki.crlDER},
		{"PKCS8PrivateKeys", PKCS8PrivateKeys, pki.pkcs8DER},
		{"RSAPrivateKeys", RSAPrivateKeys, pki.pkcs1DER},
		{"ECPrivateKeys", ECPrivateKeys, pki.sec1DER},
		{"PublicKeys", PublicKeys, pki.spkiDER},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.fn(bytes.NewReader(zoo))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || !bytes.Equal(got[0], tt.want) {
				t.Errorf("got %d payloads, want exactly the %s DER", len(got), tt.name)
			}
		})
	}
}

func TestReadAll_ZooKinds(t *testing.T) {
	// WHY: One section of each recognized label must classify to the kinds
	// in table order.
	t.Parallel()

	items, err := ReadAll(bytes.NewReader(generateTestPKI(t).zooPEM()))
	if err != nil {
		t.Fatal(err)
	}
	kinds := Kinds()
	kinds = kinds[:len(kinds)-1]
	if len(items) != len(kinds) {
		t.Fatalf("got %d items, want %d", len(items), len(kinds))
	}
	for i, item := range items {
		if item.Kind != kinds[i] {
			t.Errorf("items[%d].Kind = %v, want %v", i, item.Kind, kinds[i])
		}
	}
	if _, err := x509.ParsePKCS1PrivateKey(items[4].Bytes); err != nil {
		t.Errorf("PKCS#1 payload: %v", err)
	}
	if _, err := x509.ParseRevocationList(items[1].Bytes); err != nil {
		t.Errorf("CRL payload: %v", err)
	}
}
