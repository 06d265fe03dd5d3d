// Package pemfile extracts the binary payloads of PEM sections
// (certificates, private keys, public keys, CRLs, PKCS#7) from text streams
// such as those written by OpenSSL.
//
// The core works over caller-owned memory: section bodies are decoded in
// place, a Scanner can be given the buffer it accumulates bodies into, and
// nothing is retained between sections except the read position. The
// package does not parse the DER it returns.
//
// Stream through a file with a Scanner:
//
//	s := pemfile.NewScanner(f)
//	for {
//		item, err := s.Next()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		handle(item.Kind, item.Bytes)
//	}
//
// or collect everything at once with ReadAll.
package pemfile

import (
	"errors"
	"io"
	"iter"
)

// ReadAll returns every section in r. It stops at the first error.
func ReadAll(r io.Reader) ([]Item, error) {
	var items []Item
	for item, err := range All(r, Strict) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// All iterates over the sections in r. Each yielded Item is detached from
// the scanner. With Strict the iteration ends after the first error; with
// Lenient section errors are yielded and scanning continues.
func All(r io.Reader, policy Policy) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		opts := DefaultOptions()
		opts.Policy = policy
		s := NewScannerOptions(r, opts)
		for {
			item, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if !yield(Item{}, err) || policy == Strict || s.fatal {
					return
				}
				continue
			}
			if !yield(item.Clone(), nil) {
				return
			}
		}
	}
}

// ReadOneFromSlice decodes the first section in data and returns it along
// with the bytes that follow it. It returns io.EOF when data holds no
// further section.
func ReadOneFromSlice(data []byte) (Item, []byte, error) {
	src := &sliceLines{rest: data}
	s := newScanner(src, DefaultOptions())
	item, err := s.Next()
	if err != nil {
		return Item{}, src.rest, err
	}
	return item, src.rest, nil
}

// ReadKind returns the payloads of every section of kind k in r, skipping all
// other sections. Any scan error aborts.
func ReadKind(r io.Reader, k Kind) ([][]byte, error) {
	var out [][]byte
	for item, err := range All(r, Strict) {
		if err != nil {
			return nil, err
		}
		if item.Kind == k {
			out = append(out, item.Bytes)
		}
	}
	return out, nil
}

// Certificates returns the DER of every CERTIFICATE section in r.
func Certificates(r io.Reader) ([][]byte, error) { return ReadKind(r, KindCertificate) }

// CRLs returns the DER of every X509 CRL section in r.
func CRLs(r io.Reader) ([][]byte, error) { return ReadKind(r, KindCRL) }

// RSAPrivateKeys returns the PKCS#1 DER of every RSA PRIVATE KEY section in r.
func RSAPrivateKeys(r io.Reader) ([][]byte, error) { return ReadKind(r, KindPKCS1PrivateKey) }

// PKCS8PrivateKeys returns the PKCS#8 DER of every PRIVATE KEY section in r.
func PKCS8PrivateKeys(r io.Reader) ([][]byte, error) { return ReadKind(r, KindPKCS8PrivateKey) }

// ECPrivateKeys returns the SEC1 DER of every EC PRIVATE KEY section in r.
func ECPrivateKeys(r io.Reader) ([][]byte, error) { return ReadKind(r, KindSEC1PrivateKey) }

// PublicKeys returns the SubjectPublicKeyInfo DER of every PUBLIC KEY
// section in r.
func PublicKeys(r io.Reader) ([][]byte, error) { return ReadKind(r, KindPublicKey) }
