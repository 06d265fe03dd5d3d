package pemfile

import (
	"bytes"
	"testing"

	"github.com/breml/rootcerts/embedded"
)

func benchmarkScan(b *testing.B, data []byte) {
	b.Helper()
	buf := make([]byte, 0, 64<<10)
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		opts := DefaultOptions()
		opts.Buffer = buf
		s := NewBytesScanner(data, opts)
		for {
			if _, err := s.Next(); err != nil {
				break
			}
		}
		if s.State() != StateDone {
			b.Fatalf("scan ended in state %v", s.State())
		}
	}
}

func BenchmarkScan_Chain(b *testing.B) {
	benchmarkScan(b, generateTestPKI(b).chainPEM())
}

func BenchmarkScan_Zoo(b *testing.B) {
	benchmarkScan(b, generateTestPKI(b).zooPEM())
}

func BenchmarkScan_MozillaBundle(b *testing.B) {
	benchmarkScan(b, []byte(embedded.MozillaCACertificatesPEM()))
}

func BenchmarkReadAll_Reader(b *testing.B) {
	data := generateTestPKI(b).chainPEM()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		if _, err := ReadAll(bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}

func TestMozillaBundle(t *testing.T) {
	// WHY: The embedded Mozilla store is a large real-world bundle with
	// comment preambles; every section must scan as a certificate.
	t.Parallel()

	items, err := ReadAll(bytes.NewReader([]byte(embedded.MozillaCACertificatesPEM())))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) < 100 {
		t.Fatalf("got %d certificates, want at least 100", len(items))
	}
	for i, item := range items {
		if item.Kind != KindCertificate {
			t.Errorf("items[%d].Kind = %v", i, item.Kind)
		}
	}
}
