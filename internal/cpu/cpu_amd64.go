// Package cpu exposes the handful of x86_64 primitives the bootloader
// needs directly: disabling interrupts before the final handoff and
// halting the processor when a fatal error leaves nothing else to do.
package cpu

// DisableInterrupts masks maskable interrupts (CLI).
func DisableInterrupts()

// Halt stops instruction execution (HLT), looping forever in case of a
// spurious wakeup (e.g. an NMI). It never returns.
func Halt()
