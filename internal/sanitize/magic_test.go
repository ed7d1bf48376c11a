package sanitize

import "testing"

func pad(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func TestMagicBytes_PDF(t *testing.T) {
	buf := pad([]byte{0x25, 0x50, 0x44, 0x46, '-', '1', '.', '7'}, 32)

	if !MagicBytes(buf, "application/pdf") {
		t.Fatal("PDF signature should validate as application/pdf")
	}
	if MagicBytes(buf, "image/png") {
		t.Fatal("PDF signature must not validate as image/png")
	}
}

func TestMagicBytes_KnownTypes(t *testing.T) {
	png := pad([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, 16)
	jpeg := pad([]byte{0xFF, 0xD8, 0xFF, 0xE0}, 16)
	webp := []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")

	tests := []struct {
		name string
		buf  []byte
		mime string
		want bool
	}{
		{"png", png, "image/png", true},
		{"jpeg", jpeg, "image/jpeg", true},
		{"jpg alias", jpeg, "image/jpg", true},
		{"webp", webp, "image/webp", true},
		{"mime case and params", png, "Image/PNG; charset=binary", true},
		{"png as jpeg", png, "image/jpeg", false},
		{"jpeg as webp", jpeg, "image/webp", false},
		{"riff without webp marker", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), "image/webp", false},
		{"zeros as pdf", make([]byte, 64), "application/pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MagicBytes(tt.buf, tt.mime); got != tt.want {
				t.Fatalf("MagicBytes(%s) = %v, want %v", tt.mime, got, tt.want)
			}
		})
	}
}

func TestMagicBytes_ShortBufferFails(t *testing.T) {
	short := []byte{0x25, 0x50, 0x44, 0x46, 0x2D, 0x31, 0x2E, 0x37, 0x0A, 0x25, 0xE2}
	if len(short) != 11 {
		t.Fatalf("test setup: len = %d", len(short))
	}
	for _, mime := range []string{"application/pdf", "image/png", "image/jpeg", "image/webp"} {
		if MagicBytes(short, mime) {
			t.Errorf("11 byte buffer should fail for %s", mime)
		}
	}
	if MagicBytes(nil, "application/pdf") {
		t.Error("nil buffer should fail for a known type")
	}
}

func TestMagicBytes_UnknownTypePasses(t *testing.T) {
	for _, buf := range [][]byte{nil, {0x00}, []byte("anything at all, really")} {
		if !MagicBytes(buf, "text/csv") {
			t.Errorf("unknown type should pass for %q", buf)
		}
	}
	if !MagicBytes([]byte("%PDF-1.7 padded"), "application/octet-stream") {
		t.Error("unknown type should pass regardless of contents")
	}
}

func TestKnownMIME(t *testing.T) {
	if !KnownMIME("image/webp") || !KnownMIME("IMAGE/JPG") {
		t.Fatal("webp and jpg should be known")
	}
	if KnownMIME("text/plain") {
		t.Fatal("text/plain should not be known")
	}
}
