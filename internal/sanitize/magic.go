package sanitize

import (
	"bytes"
	"strings"
)

// shortest buffer we will vet, WEBP needs bytes 8..11
const minSignatureLen = 12

type signature struct {
	offset int
	magic  []byte
}

var signatures = map[string][]signature{
	"application/pdf": {{0, []byte("%PDF")}},
	"image/png":       {{0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}}},
	"image/jpeg":      {{0, []byte{0xFF, 0xD8, 0xFF}}},
	"image/webp":      {{0, []byte("RIFF")}, {8, []byte("WEBP")}},
}

// KnownMIME reports whether MagicBytes enforces a signature for mimeType.
func KnownMIME(mimeType string) bool {
	_, ok := signatures[normalizeMIME(mimeType)]
	return ok
}

// MagicBytes checks buf's leading bytes against the signature of the declared
// type. Known types fail when buf is shorter than 12 bytes. Types without a
// registered signature always pass; this only vets what it recognizes.
func MagicBytes(buf []byte, mimeType string) bool {
	sigs, ok := signatures[normalizeMIME(mimeType)]
	if !ok {
		return true
	}
	if len(buf) < minSignatureLen {
		return false
	}
	for _, sig := range sigs {
		end := sig.offset + len(sig.magic)
		if end > len(buf) || !bytes.Equal(buf[sig.offset:end], sig.magic) {
			return false
		}
	}
	return true
}

// normalizeMIME drops parameters and case: "Image/PNG; q=1" -> "image/png"
func normalizeMIME(s string) string {
	base, _, _ := strings.Cut(s, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "image/jpg" {
		return "image/jpeg"
	}
	return base
}
