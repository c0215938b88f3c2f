// Package trampoline performs the final, irreversible context switch:
// loading the new page table, switching to the kernel stack, and jumping
// into the kernel entry point with the boot-info pointer as its first
// argument. See jump_amd64.s — this is the one piece of the pipeline that
// cannot be written in Go, since the moment cr3 is reloaded nothing
// outside the identity-mapped trampoline page is valid to fetch
// instructions from until the jump lands in the (separately mapped)
// kernel code.
package trampoline

import "github.com/tsoutsman/uefi-bootloader/internal/memory"

// Context bundles everything the switch needs. All four fields are
// read-only inputs to jump; nothing is returned because jump never
// returns.
type Context struct {
	PageTable  memory.PhysicalAddress
	StackTop   memory.VirtualAddress
	EntryPoint memory.VirtualAddress
	BootInfo   memory.VirtualAddress
}

// Jump loads ctx.PageTable (a physical address, not a frame number) into
// cr3, sets rsp to ctx.StackTop, places
// ctx.BootInfo in the first SysV integer argument register, and jumps to
// ctx.EntryPoint. It never returns. Address returns the physical address
// and length of Jump's own machine code, which the mapping builder must
// identity-map before Jump is called (see mapping.Build): once cr3 is
// reloaded the old identity mapping is gone, and only an explicit mapping
// of this range keeps the instruction pointer valid until the jmp
// instruction lands in the kernel.
func Jump(ctx Context)

// Address returns Jump's load address and a length covering the page it
// starts on, which is what the mapping builder identity-maps before Jump
// is ever called.
func Address() (memory.PhysicalAddress, uint64)
