package catalog

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sensiblebit/pemfile"
)

func TestSaveToSQLite_RoundTrip(t *testing.T) {
	// WHY: SQLite persistence must round-trip payloads, labels, seen counts,
	// certificate metadata and scan errors.
	t.Parallel()

	notAfter := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	der := newSelfSignedDER(t, "Round Trip CA", notAfter, true)

	store := NewMemStore()
	mustHandle(t, store, certItem(der), "chain.pem")
	mustHandle(t, store, certItem(der), "other.pem")
	mustHandle(t, store, labeled("OPENSSH PRIVATE KEY", []byte("openssh-key-v1\x00")), "id_ed25519")
	store.HandleError(errors.New("line 9: unterminated"), "broken.pem")

	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	if err := SaveToSQLite(store, dbPath); err != nil {
		t.Fatalf("SaveToSQLite: %v", err)
	}

	loaded := NewMemStore()
	if err := LoadFromSQLite(loaded, dbPath); err != nil {
		t.Fatalf("LoadFromSQLite: %v", err)
	}

	if loaded.Len() != 2 {
		t.Fatalf("expected 2 records after round-trip, got %d", loaded.Len())
	}
	certs := loaded.RecordsByKind(pemfile.KindCertificate)
	if len(certs) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(certs))
	}
	c := certs[0]
	if !bytes.Equal(c.Bytes, der) {
		t.Error("certificate payload changed")
	}
	if c.Seen != 2 || c.Source != "chain.pem" {
		t.Errorf("seen/source = %d/%q", c.Seen, c.Source)
	}
	if c.Subject != "CN=Round Trip CA" || !c.IsCA {
		t.Errorf("subject/isCA = %q/%v", c.Subject, c.IsCA)
	}
	if !c.NotAfter.Equal(notAfter) {
		t.Errorf("NotAfter = %v, want %v", c.NotAfter, notAfter)
	}

	unknown := loaded.RecordsByKind(pemfile.KindUnknown)
	if len(unknown) != 1 || unknown[0].Label != "OPENSSH PRIVATE KEY" {
		t.Errorf("unknown records = %+v", unknown)
	}
	if !unknown[0].NotAfter.IsZero() {
		t.Error("non-certificate record gained a NotAfter")
	}

	errs := loaded.Errors()
	if len(errs) != 1 || errs[0].Source != "broken.pem" {
		t.Errorf("Errors = %+v", errs)
	}
}

func TestLoadFromSQLite_MergesIntoStore(t *testing.T) {
	// WHY: --load followed by a new scan must merge: a section present in both
	// the database and the store ends up as one record with summed counts.
	t.Parallel()

	payload := []byte{0x30, 0x00}
	saved := NewMemStore()
	mustHandle(t, saved, labeled("X509 CRL", payload), "old.pem")
	dbPath := filepath.Join(t.TempDir(), "merge.db")
	if err := SaveToSQLite(saved, dbPath); err != nil {
		t.Fatal(err)
	}

	store := NewMemStore()
	mustHandle(t, store, labeled("X509 CRL", payload), "new.pem")
	mustHandle(t, store, labeled("PUBLIC KEY", payload), "new.pem")
	if err := LoadFromSQLite(store, dbPath); err != nil {
		t.Fatal(err)
	}

	if store.Len() != 2 {
		t.Fatalf("Len = %d, want 2", store.Len())
	}
	crls := store.RecordsByKind(pemfile.KindCRL)
	if len(crls) != 1 || crls[0].Seen != 2 || crls[0].Source != "new.pem" {
		t.Errorf("merged CRL record = %+v", crls)
	}
}

func TestSaveToSQLite_ExistingFileErrors(t *testing.T) {
	// WHY: VACUUM INTO does not overwrite; saving to an existing file must error to prevent silent data loss.
	t.Parallel()

	store := NewMemStore()
	dbPath := filepath.Join(t.TempDir(), "existing.db")

	if err := SaveToSQLite(store, dbPath); err != nil {
		t.Fatalf("first SaveToSQLite: %v", err)
	}

	err := SaveToSQLite(store, dbPath)
	if err == nil {
		t.Fatal("expected error when saving to existing file, got nil")
	}
	if !strings.Contains(err.Error(), "saving database to") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFromSQLite_NonexistentFile(t *testing.T) {
	// WHY: Nonexistent path must produce an error, not silently return an empty store.
	t.Parallel()

	store := NewMemStore()
	err := LoadFromSQLite(store, "/nonexistent/path/to/db.sqlite")
	if err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
	if !strings.Contains(err.Error(), "attaching database") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFromSQLite_EmptyDB(t *testing.T) {
	// WHY: An empty database must produce an empty store, not phantom data or errors.
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "empty.db")
	if err := SaveToSQLite(NewMemStore(), dbPath); err != nil {
		t.Fatalf("SaveToSQLite: %v", err)
	}

	store := NewMemStore()
	if err := LoadFromSQLite(store, dbPath); err != nil {
		t.Fatalf("LoadFromSQLite on empty DB: %v", err)
	}
	if store.Len() != 0 || len(store.Errors()) != 0 {
		t.Errorf("expected empty store, got %d records and %d errors", store.Len(), len(store.Errors()))
	}
}
