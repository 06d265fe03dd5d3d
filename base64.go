package pemfile

import "io"

// Standard RFC 4648 alphabet.
const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	codeInvalid = 0xFF
	codePad     = 0xFE
)

// decodeTable maps every byte to its 6-bit value, codePad or codeInvalid.
var decodeTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = codeInvalid
	}
	for i := 0; i < len(base64Alphabet); i++ {
		t[base64Alphabet[i]] = byte(i)
	}
	t['='] = codePad
	return t
}()

// DecodedLen returns the maximum number of bytes decoding n base64
// characters can produce. It never exceeds n.
func DecodedLen(n int) int {
	return n/4*3 + n%4*3/4
}

// Decode decodes base64 src into dst and returns the number of bytes
// written. Whitespace is not accepted; callers strip it first. dst may
// start at the same address as src, which makes the decode in place: each
// output byte is written at or before the position of the input byte that
// completed it. dst must hold at least DecodedLen(len(src)) bytes.
func Decode(dst, src []byte) (int, error) {
	var (
		quad [4]byte
		used int
		pads int
		out  int
	)
	if len(dst) < DecodedLen(len(src)) {
		return 0, io.ErrShortBuffer
	}

	for i, c := range src {
		v := decodeTable[c]
		switch {
		case v == codeInvalid:
			return out, &Base64Error{Offset: i, Err: ErrInvalidBase64Character}
		case v == codePad:
			if pads == 2 {
				return out, &Base64Error{Offset: i, Err: ErrInvalidBase64Character}
			}
			pads++
			continue
		case pads > 0:
			// data after padding
			return out, &Base64Error{Offset: i, Err: ErrInvalidBase64Character}
		}

		quad[used] = v
		used++
		if used == 4 {
			dst[out] = quad[0]<<2 | quad[1]>>4
			dst[out+1] = quad[1]<<4 | quad[2]>>2
			dst[out+2] = quad[2]<<6 | quad[3]
			out += 3
			used = 0
		}
	}

	switch {
	case used == 0 && pads == 0:
		return out, nil
	case used == 2 && (pads == 0 || pads == 2):
		dst[out] = quad[0]<<2 | quad[1]>>4
		return out + 1, nil
	case used == 3 && (pads == 0 || pads == 1):
		dst[out] = quad[0]<<2 | quad[1]>>4
		dst[out+1] = quad[1]<<4 | quad[2]>>2
		return out + 2, nil
	default:
		return out, &Base64Error{Offset: len(src) - used - pads, Err: ErrInvalidBase64Length}
	}
}

// DecodeInPlace decodes buf over itself and returns the decoded prefix.
func DecodeInPlace(buf []byte) ([]byte, error) {
	n, err := Decode(buf, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// DecodeString decodes s into a newly allocated slice.
func DecodeString(s string) ([]byte, error) {
	dst := make([]byte, DecodedLen(len(s)))
	n, err := Decode(dst, []byte(s))
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
