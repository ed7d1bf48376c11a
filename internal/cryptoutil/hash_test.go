package cryptoutil

import "testing"

func TestSHA256Hex(t *testing.T) {
	tests := map[string]string{
		"":            "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"hello world": "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
	}
	for in, want := range tests {
		if got := SHA256Hex([]byte(in)); got != want {
			t.Errorf("SHA256Hex(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSHA256Base64(t *testing.T) {
	const want = "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="
	if got := SHA256Base64(nil); got != want {
		t.Fatalf("SHA256Base64(nil) = %q, want %q", got, want)
	}
}

func TestTokenEqual(t *testing.T) {
	if !TokenEqual("s3cret-token", "s3cret-token") {
		t.Fatal("equal tokens should match")
	}
	for _, other := range []string{"s3cret-tokeN", "s3cret", "", "s3cret-token "} {
		if TokenEqual("s3cret-token", other) {
			t.Errorf("TokenEqual matched %q", other)
		}
	}
}
