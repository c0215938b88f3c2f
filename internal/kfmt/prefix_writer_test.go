package kfmt

import (
	"bytes"
	"testing"
)

func TestPrefixWriterTagsEachLine(t *testing.T) {
	var sink bytes.Buffer
	w := &PrefixWriter{Sink: &sink, Prefix: []byte("[mem] ")}

	w.Write([]byte("frame allocated\nmapped page\n"))

	want := "[mem] frame allocated\n[mem] mapped page\n"
	if got := sink.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPrefixWriterHoldsPrefixAcrossPartialWrites(t *testing.T) {
	var sink bytes.Buffer
	w := &PrefixWriter{Sink: &sink, Prefix: []byte(">> ")}

	w.Write([]byte("partial "))
	w.Write([]byte("line\n"))

	want := ">> partial line\n"
	if got := sink.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
