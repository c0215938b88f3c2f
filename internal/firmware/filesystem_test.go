package firmware

import "testing"

func TestUtf16BytesToStringDecodesUntilNull(t *testing.T) {
	// "hi" in little-endian UCS-2, null-terminated, with trailing garbage
	// past the terminator that must be ignored.
	b := []byte{'h', 0, 'i', 0, 0, 0, 'x', 0}
	if got, want := utf16BytesToString(b), "hi"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestUtf16BytesToStringEmpty(t *testing.T) {
	if got := utf16BytesToString([]byte{0, 0}); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

func TestUtf16BytesToStringWithoutTerminator(t *testing.T) {
	b := []byte{'o', 0, 'k', 0}
	if got, want := utf16BytesToString(b), "ok"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
