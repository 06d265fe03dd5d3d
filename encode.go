package pemfile

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
)

// DefaultLineWidth is the conventional PEM body width (RFC 7468).
const DefaultLineWidth = 64

// ValidLabel reports whether label can be written between PEM markers and
// read back unchanged by a Scanner.
func ValidLabel(label string) bool {
	if label == "" || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		if label[i] == '\n' || label[i] == '\r' {
			return false
		}
	}
	return true
}

// Encode writes data to w as a PEM section with the given label, wrapping
// the base64 body every width characters. A width of zero or less writes
// the body on one line.
func Encode(w io.Writer, label string, data []byte, width int) error {
	if !ValidLabel(label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	var buf bytes.Buffer
	buf.Write(beginPrefix)
	buf.WriteString(label)
	buf.Write(dashes)
	buf.WriteByte('\n')

	b64 := base64.StdEncoding.EncodeToString(data)
	if width <= 0 {
		width = len(b64)
	}
	for len(b64) > 0 {
		n := min(width, len(b64))
		buf.WriteString(b64[:n])
		buf.WriteByte('\n')
		b64 = b64[n:]
	}

	buf.Write(endPrefix)
	buf.WriteString(label)
	buf.Write(dashes)
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}

// EncodeToMemory returns data as a PEM section. It returns nil if label is
// not valid.
func EncodeToMemory(label string, data []byte, width int) []byte {
	var buf bytes.Buffer
	if err := Encode(&buf, label, data, width); err != nil {
		return nil
	}
	return buf.Bytes()
}

// EncodeItem writes it back to PEM under its original label at
// DefaultLineWidth.
func EncodeItem(w io.Writer, it Item) error {
	return Encode(w, it.Label, it.Bytes, DefaultLineWidth)
}
