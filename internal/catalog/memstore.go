// Package catalog keeps a deduplicated record of every PEM section seen
// across a scan and persists it to SQLite.
package catalog

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/sensiblebit/pemfile"
)

// Record is one distinct section payload. Identical payloads under the same
// label seen in several places share a record.
type Record struct {
	ID     string // hex SHA-256 of label and payload
	Kind   pemfile.Kind
	Label  string
	Bytes  []byte
	Source string // first source that contributed this section
	Seen   int

	// Set for certificate sections whose DER parses.
	Subject  string
	NotAfter time.Time
	IsCA     bool
}

// Expired reports whether r is a certificate past its NotAfter at now.
func (r *Record) Expired(now time.Time) bool {
	return r.Kind == pemfile.KindCertificate && !r.NotAfter.IsZero() && now.After(r.NotAfter)
}

// Item returns the section held by r.
func (r *Record) Item() pemfile.Item {
	return pemfile.Item{Kind: r.Kind, Label: r.Label, Bytes: r.Bytes}
}

// ErrorRecord is a section error reported while scanning a source.
type ErrorRecord struct {
	Source  string `json:"source" yaml:"source"`
	Message string `json:"message" yaml:"message"`
}

// recordID hashes the label together with the payload so that the same DER
// under two labels stays two records.
func recordID(label string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(label))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MemStore is an in-memory section catalog. It implements the
// internal.ItemHandler interface.
type MemStore struct {
	records map[string]*Record
	order   []string
	errors  []ErrorRecord
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*Record)}
}

// HandleItem stores a copy of item. A payload already in the store only
// bumps its Seen count.
func (s *MemStore) HandleItem(item pemfile.Item, source string) error {
	if item.Label == "" {
		return errors.New("section has no label")
	}
	id := recordID(item.Label, item.Bytes)
	if rec, ok := s.records[id]; ok {
		rec.Seen++
		slog.Debug("duplicate section", "id", id[:16], "source", source, "first", rec.Source)
		return nil
	}

	rec := &Record{
		ID:     id,
		Kind:   item.Kind,
		Label:  item.Label,
		Bytes:  item.Clone().Bytes,
		Source: source,
		Seen:   1,
	}
	describeCert(rec)
	s.add(rec)
	return nil
}

// HandleError records a section error against its source.
func (s *MemStore) HandleError(err error, source string) {
	s.errors = append(s.errors, ErrorRecord{Source: source, Message: err.Error()})
}

func (s *MemStore) add(rec *Record) {
	if existing, ok := s.records[rec.ID]; ok {
		existing.Seen += rec.Seen
		return
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
}

func describeCert(rec *Record) {
	if rec.Kind != pemfile.KindCertificate {
		return
	}
	cert, err := x509.ParseCertificate(rec.Bytes)
	if err != nil {
		slog.Debug("certificate section does not parse", "source", rec.Source, "error", err)
		return
	}
	rec.Subject = cert.Subject.String()
	rec.NotAfter = cert.NotAfter
	rec.IsCA = cert.IsCA
}

// Get returns the record with the given ID, or nil.
func (s *MemStore) Get(id string) *Record {
	return s.records[id]
}

// Len returns the number of distinct records.
func (s *MemStore) Len() int { return len(s.order) }

// Records returns every record in the order it was first seen.
func (s *MemStore) Records() []*Record {
	out := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// RecordsByKind returns the records of kind k in first-seen order.
func (s *MemStore) RecordsByKind(k pemfile.Kind) []*Record {
	return slices.DeleteFunc(s.Records(), func(r *Record) bool { return r.Kind != k })
}

// Errors returns the recorded section errors.
func (s *MemStore) Errors() []ErrorRecord {
	return slices.Clone(s.errors)
}

// Reset clears all records and errors.
func (s *MemStore) Reset() {
	s.records = make(map[string]*Record)
	s.order = nil
	s.errors = nil
}
