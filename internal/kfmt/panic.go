package kfmt

import (
	"io"

	"github.com/tsoutsman/uefi-bootloader/internal/cpu"
)

func defaultHalt() {
	cpu.DisableInterrupts()
	cpu.Halt()
}

var (
	// haltFn performs the final CPU halt. It is a variable so tests can
	// intercept it instead of actually stopping the processor.
	haltFn = defaultHalt
)

// Panic prints err (if non-nil) to the active sink and halts the processor.
// It never returns. Per the propagation policy, no error recovers past this
// point: Panic is the single funnel for every fatal condition in the boot
// pipeline. Once main clears the sink with SetOutputSink(nil) after
// ExitBootServices (the firmware console is no longer callable past that
// point and nothing replaces it), a later Panic halts silently rather than
// writing into a dead firmware protocol.
func Panic(err error) {
	// The console sink may belong to firmware services that are no
	// longer callable (post exit-boot-services); force the lock so a
	// panic that interrupts an in-flight write never wedges the only
	// remaining output path.
	sinkLock.ForceUnlock()

	writeBanner(outputSink, err)

	haltFn()
}

func writeBanner(w io.Writer, err error) {
	if w == nil {
		return
	}
	Fprintf(w, "\n-----------------------------------\n")
	if err != nil {
		Fprintf(w, "unrecoverable error: %s\n", err.Error())
	}
	Fprintf(w, "*** bootloader halted ***\n")
	Fprintf(w, "-----------------------------------\n")
}
