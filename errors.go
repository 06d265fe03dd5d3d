package pemfile

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrMalformedBeginMarker reports a "-----BEGIN " line whose trailer is
	// not exactly five dashes or whose label is empty.
	ErrMalformedBeginMarker = errors.New("pemfile: malformed begin marker")

	// ErrMismatchedEndLabel reports an END marker whose label differs from
	// the open section's label.
	ErrMismatchedEndLabel = errors.New("pemfile: mismatched end label")

	// ErrUnterminatedSection reports a section that was still open when the
	// stream ended or another BEGIN marker appeared.
	ErrUnterminatedSection = errors.New("pemfile: unterminated section")

	// ErrInvalidBase64Character reports a byte outside the base64 alphabet
	// or padding in an invalid position.
	ErrInvalidBase64Character = errors.New("pemfile: invalid base64 character")

	// ErrInvalidBase64Length reports a final base64 group that cannot
	// encode a whole number of bytes.
	ErrInvalidBase64Length = errors.New("pemfile: invalid base64 length")

	// ErrSectionTooLarge reports a section body that exceeds the scanner's
	// configured maximum.
	ErrSectionTooLarge = errors.New("pemfile: section too large")

	// ErrEncryptedSection reports an RFC 1421 encrypted block
	// (Proc-Type: 4,ENCRYPTED). Decryption is not supported.
	ErrEncryptedSection = errors.New("pemfile: encrypted sections are not supported")

	// ErrInvalidLabel reports a label that cannot be written as a PEM
	// marker.
	ErrInvalidLabel = errors.New("pemfile: invalid label")
)

// Base64Error records where in a base64 body decoding failed.
type Base64Error struct {
	// Offset is the index into the base64 input of the offending byte, or
	// of the start of the final group for length errors.
	Offset int
	// Err is ErrInvalidBase64Character or ErrInvalidBase64Length.
	Err error
}

func (e *Base64Error) Error() string {
	return e.Err.Error() + " at offset " + strconv.Itoa(e.Offset)
}

func (e *Base64Error) Unwrap() error { return e.Err }

// SectionError describes why a section could not produce an item.
type SectionError struct {
	// Line is the 1-based line number where the problem was detected.
	Line int
	// Label is the label of the open section, if one was open.
	Label string
	// EndLabel is the label found on a mismatched END marker.
	EndLabel string
	// Err is one of the package sentinel errors, or a *Base64Error.
	Err error
}

func (e *SectionError) Error() string {
	msg := fmt.Sprintf("line %d", e.Line)
	if e.Label != "" {
		msg += fmt.Sprintf(": section %q", e.Label)
	}
	msg += ": " + e.Err.Error()
	if e.EndLabel != "" {
		msg += fmt.Sprintf(" (found %q)", e.EndLabel)
	}
	return msg
}

func (e *SectionError) Unwrap() error { return e.Err }
