package kfmt

import (
	"bytes"
	"errors"
	"testing"
)

func TestPanicWritesBannerToActiveSink(t *testing.T) {
	resetSink()
	defer resetSink()

	var console bytes.Buffer
	SetOutputSink(&console)

	halted := false
	orig := haltFn
	haltFn = func() { halted = true }
	defer func() { haltFn = orig }()

	Panic(errors.New("frame exhausted"))

	if !halted {
		t.Fatal("expected Panic to invoke haltFn")
	}
	if !bytes.Contains(console.Bytes(), []byte("frame exhausted")) {
		t.Errorf("console sink did not receive the error message: %q", console.String())
	}
	if !bytes.Contains(console.Bytes(), []byte("bootloader halted")) {
		t.Errorf("console sink did not receive the halt banner: %q", console.String())
	}
}

func TestPanicWithNoSinkStillHalts(t *testing.T) {
	resetSink()
	defer resetSink()

	SetOutputSink(nil)

	halted := false
	orig := haltFn
	haltFn = func() { halted = true }
	defer func() { haltFn = orig }()

	Panic(errors.New("post exit-boot-services failure"))

	if !halted {
		t.Fatal("expected Panic to invoke haltFn even with no sink attached")
	}
}

func TestPanicForceUnlocksAHeldSinkLock(t *testing.T) {
	resetSink()
	defer resetSink()

	var console bytes.Buffer
	SetOutputSink(&console)

	orig := haltFn
	haltFn = func() {}
	defer func() { haltFn = orig }()

	sinkLock.Acquire() // simulate an in-flight write interrupted by the panic
	Panic(errors.New("boom"))

	if !sinkLock.TryAcquire() {
		t.Fatal("expected Panic to leave the sink lock released")
	}
	sinkLock.Release()
}
