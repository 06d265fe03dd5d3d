package internal

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/sensiblebit/pemfile"
	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// ErrNotContainer is returned by ContainerItems for data that is not a
// recognized binary container.
var ErrNotContainer = errors.New("not a PKCS#12, JKS, PKCS#7, or DER container")

// ContainerItems decodes a binary container (PKCS#12, JKS, PKCS#7, or a bare
// DER certificate or CRL) into the sections a PEM file of the same contents
// would hold. Private keys come out as PRIVATE KEY (PKCS#8). Each password
// is tried for PKCS#12 and JKS. It also returns the container format.
func ContainerItems(data []byte, passwords []string) ([]pemfile.Item, string, error) {
	for _, pw := range passwords {
		if items, err := pkcs12Items(data, pw); err == nil {
			return items, "pkcs12", nil
		}
	}

	for _, pw := range passwords {
		if items, err := jksItems(data, pw); err == nil {
			return items, "jks", nil
		}
	}

	if p7, err := pkcs7.Parse(data); err == nil && len(p7.Certificates) > 0 {
		items := make([]pemfile.Item, 0, len(p7.Certificates))
		for _, cert := range p7.Certificates {
			items = append(items, certSection(cert.Raw))
		}
		return items, "pkcs7", nil
	}

	if cert, err := x509.ParseCertificate(data); err == nil {
		return []pemfile.Item{certSection(cert.Raw)}, "der", nil
	}
	if _, err := x509.ParseRevocationList(data); err == nil {
		return []pemfile.Item{{Kind: pemfile.KindCRL, Label: pemfile.KindCRL.Label(), Bytes: data}}, "der", nil
	}

	return nil, "", ErrNotContainer
}

func certSection(der []byte) pemfile.Item {
	return pemfile.Item{Kind: pemfile.KindCertificate, Label: pemfile.KindCertificate.Label(), Bytes: der}
}

func keySection(pkcs8 []byte) pemfile.Item {
	return pemfile.Item{Kind: pemfile.KindPKCS8PrivateKey, Label: pemfile.KindPKCS8PrivateKey.Label(), Bytes: pkcs8}
}

func pkcs12Items(data []byte, password string) ([]pemfile.Item, error) {
	key, leaf, cas, err := gopkcs12.DecodeChain(data, password)
	if err != nil {
		certs, tsErr := gopkcs12.DecodeTrustStore(data, password)
		if tsErr != nil {
			return nil, fmt.Errorf("decoding PKCS#12: %w", err)
		}
		items := make([]pemfile.Item, 0, len(certs))
		for _, c := range certs {
			items = append(items, certSection(c.Raw))
		}
		return items, nil
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(normalizeKey(key))
	if err != nil {
		return nil, fmt.Errorf("marshaling PKCS#12 key to PKCS#8: %w", err)
	}
	items := []pemfile.Item{certSection(leaf.Raw)}
	for _, c := range cas {
		items = append(items, certSection(c.Raw))
	}
	return append(items, keySection(pkcs8)), nil
}

// jksItems lists every entry of a Java KeyStore. Entries that fail to
// decode are skipped; a store with no usable entry is an error.
func jksItems(data []byte, password string) ([]pemfile.Item, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, fmt.Errorf("loading JKS: %w", err)
	}

	var items []pemfile.Item
	for _, alias := range ks.Aliases() {
		switch {
		case ks.IsTrustedCertificateEntry(alias):
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				slog.Debug("skipping JKS trusted entry", "alias", alias, "error", err)
				continue
			}
			items = append(items, certSection(entry.Certificate.Content))
		case ks.IsPrivateKeyEntry(alias):
			entry, err := ks.GetPrivateKeyEntry(alias, []byte(password))
			if err != nil {
				slog.Debug("skipping JKS key entry", "alias", alias, "error", err)
				continue
			}
			for _, c := range entry.CertificateChain {
				items = append(items, certSection(c.Content))
			}
			items = append(items, keySection(entry.PrivateKey))
		}
	}
	if len(items) == 0 {
		return nil, errors.New("JKS contains no usable entries")
	}
	return items, nil
}

// processContainer feeds the sections of a binary container to the
// handler. Data that is no container is skipped.
func processContainer(data []byte, input ProcessInput) error {
	items, format, err := ContainerItems(data, input.Passwords)
	if err != nil {
		slog.Debug("skipping file without PEM markers", "path", input.Path)
		return nil
	}
	slog.Debug("decoded container", "path", input.Path, "format", format, "sections", len(items))
	for _, item := range items {
		if !input.Filter.Allows(item) {
			continue
		}
		if err := input.Handler.HandleItem(item, input.Path); err != nil {
			slog.Debug("handler rejected section", "path", input.Path, "label", item.Label, "error", err)
		}
	}
	return nil
}
