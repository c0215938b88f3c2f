package bootload

import "testing"

func TestErrorFormatsModuleAndMessage(t *testing.T) {
	err := New("memory", "out of frames")
	if got, want := err.Error(), "[memory] out of frames"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorSatisfiesErrorInterface(t *testing.T) {
	var err error = New("firmware", "boom")
	if err.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}
