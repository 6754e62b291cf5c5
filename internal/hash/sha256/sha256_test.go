package sha256

import "testing"

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	other, err := h.Hash([]byte("Baile da Massa Real-2026-01-16T21:00:00-Rio Vermelho"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if other == got || len(other) != 64 {
		t.Fatalf("expected a distinct 64 char digest, got %s", other)
	}
}
