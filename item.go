package pemfile

import "fmt"

// Kind identifies what a PEM section carries, as told by its label.
type Kind int

const (
	// KindUnknown is any label not in the recognized set.
	KindUnknown Kind = iota
	// KindCertificate is a DER X.509 certificate ("CERTIFICATE").
	KindCertificate
	// KindCRL is a DER certificate revocation list, RFC 5280 ("X509 CRL").
	KindCRL
	// KindPKCS7 is a DER PKCS#7 / CMS structure ("PKCS7").
	KindPKCS7
	// KindPKCS8PrivateKey is a plaintext PKCS#8 private key, RFC 5958 ("PRIVATE KEY").
	KindPKCS8PrivateKey
	// KindPKCS1PrivateKey is a plaintext RSA private key, RFC 3447 ("RSA PRIVATE KEY").
	KindPKCS1PrivateKey
	// KindSEC1PrivateKey is a plaintext EC private key, RFC 5915 ("EC PRIVATE KEY").
	KindSEC1PrivateKey
	// KindPublicKey is a DER SubjectPublicKeyInfo ("PUBLIC KEY").
	KindPublicKey
)

// labelKinds is the label to kind mapping. Lookups are exact and
// case-sensitive; new labels only need a row here.
var labelKinds = []struct {
	label string
	kind  Kind
	name  string
}{
	{"CERTIFICATE", KindCertificate, "certificate"},
	{"X509 CRL", KindCRL, "crl"},
	{"PKCS7", KindPKCS7, "pkcs7"},
	{"PRIVATE KEY", KindPKCS8PrivateKey, "pkcs8-private-key"},
	{"RSA PRIVATE KEY", KindPKCS1PrivateKey, "pkcs1-private-key"},
	{"EC PRIVATE KEY", KindSEC1PrivateKey, "sec1-private-key"},
	{"PUBLIC KEY", KindPublicKey, "public-key"},
}

// Classify maps a section label to its Kind. Unrecognized labels are
// KindUnknown; no case folding or trimming is applied.
func Classify(label string) Kind {
	for _, lk := range labelKinds {
		if lk.label == label {
			return lk.kind
		}
	}
	return KindUnknown
}

// Label returns the canonical PEM label for k, or "" for KindUnknown.
func (k Kind) Label() string {
	for _, lk := range labelKinds {
		if lk.kind == k {
			return lk.label
		}
	}
	return ""
}

// String returns a short lowercase name such as "certificate" or
// "pkcs8-private-key".
func (k Kind) String() string {
	for _, lk := range labelKinds {
		if lk.kind == k {
			return lk.name
		}
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, error) {
	if name == "unknown" {
		return KindUnknown, nil
	}
	for _, lk := range labelKinds {
		if lk.name == name {
			return lk.kind, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown item kind %q", name)
}

// Kinds returns every kind in table order, followed by KindUnknown.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(labelKinds)+1)
	for _, lk := range labelKinds {
		kinds = append(kinds, lk.kind)
	}
	return append(kinds, KindUnknown)
}

// IsPrivateKey reports whether k is one of the private key kinds.
func (k Kind) IsPrivateKey() bool {
	switch k {
	case KindPKCS8PrivateKey, KindPKCS1PrivateKey, KindSEC1PrivateKey:
		return true
	}
	return false
}

// Item is one decoded PEM section.
type Item struct {
	Kind Kind
	// Label is the marker text exactly as it appeared in the stream.
	Label string
	// Bytes is the decoded payload, typically DER.
	Bytes []byte
}

// Clone returns a copy of it whose Bytes do not alias any scanner buffer.
func (it Item) Clone() Item {
	b := make([]byte, len(it.Bytes))
	copy(b, it.Bytes)
	it.Bytes = b
	return it
}

func (it Item) String() string {
	return fmt.Sprintf("%s %q (%d bytes)", it.Kind, it.Label, len(it.Bytes))
}
