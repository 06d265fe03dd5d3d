package catalog

import (
	"time"

	"github.com/sensiblebit/pemfile"
)

// SummaryInput holds parameters for Summary.
type SummaryInput struct {
	Now time.Time // zero means time.Now()
}

// KindCount is the number of sections of one kind.
type KindCount struct {
	Kind     string `json:"kind" yaml:"kind"`
	Sections int    `json:"sections" yaml:"sections"`
	Unique   int    `json:"unique" yaml:"unique"`
}

// Summary holds aggregate counts over a catalog.
type Summary struct {
	Sections   int         `json:"sections" yaml:"sections"`
	Unique     int         `json:"unique" yaml:"unique"`
	Duplicates int         `json:"duplicates" yaml:"duplicates"`
	Errors     int         `json:"errors" yaml:"errors"`
	Expired    int         `json:"expired_certificates" yaml:"expiredCertificates"`
	CAs        int         `json:"ca_certificates" yaml:"caCertificates"`
	Kinds      []KindCount `json:"kinds" yaml:"kinds"`
}

// Summary returns per-kind counts for the store. Kinds with no sections are
// left out; the rest follow pemfile.Kinds order.
func (s *MemStore) Summary(input SummaryInput) Summary {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	byKind := make(map[pemfile.Kind]*KindCount)
	var sum Summary
	for _, rec := range s.Records() {
		kc, ok := byKind[rec.Kind]
		if !ok {
			kc = &KindCount{Kind: rec.Kind.String()}
			byKind[rec.Kind] = kc
		}
		kc.Sections += rec.Seen
		kc.Unique++

		sum.Sections += rec.Seen
		sum.Unique++
		if rec.Expired(now) {
			sum.Expired++
		}
		if rec.IsCA {
			sum.CAs++
		}
	}
	sum.Duplicates = sum.Sections - sum.Unique
	sum.Errors = len(s.errors)

	for _, k := range pemfile.Kinds() {
		if kc, ok := byKind[k]; ok {
			sum.Kinds = append(sum.Kinds, *kc)
		}
	}
	return sum
}
