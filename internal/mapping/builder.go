// Package mapping establishes the virtual mappings the kernel needs the
// instant control passes to it: a stack with a guard page below it, an
// identity mapping of the trampoline so the instruction pointer stays
// valid across the cr3 reload, and an optional framebuffer mapping.
package mapping

import (
	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/firmware"
	"github.com/tsoutsman/uefi-bootloader/internal/memory"
)

// stackPages is STACK_SIZE / PageSize: 18 pages of stack, guarded by one
// unmapped page immediately below the lowest mapped page.
const stackPages = 18

func newErr(message string) *bootload.Error {
	return bootload.New("mapping", message)
}

// Result is everything the boot-info builder and trampoline need out of
// the mapping stage.
type Result struct {
	StackTop memory.VirtualAddress

	HasFrameBuffer    bool
	FrameBufferVirtual memory.VirtualAddress
}

// Build reserves and maps the kernel stack (with its guard page) and, if
// fb is non-nil, the framebuffer. trampolinePhys/trampolineLen describe
// the physical range of the trampoline's code page, which Build identity
// maps so that it is still valid to execute from immediately after cr3 is
// reloaded.
func Build(mem *memory.Memory, trampolinePhys memory.PhysicalAddress, trampolineLen uint64, fb *firmware.FrameBufferInfo) (Result, *bootload.Error) {
	res := Result{}

	stackTop, err := buildStack(mem)
	if err != nil {
		return Result{}, err
	}
	res.StackTop = stackTop

	if err := identityMapTrampoline(mem, trampolinePhys, trampolineLen); err != nil {
		return Result{}, err
	}

	if fb != nil {
		virt, err := mapFrameBuffer(mem, *fb)
		if err != nil {
			return Result{}, err
		}
		res.HasFrameBuffer = true
		res.FrameBufferVirtual = virt
	}

	return res, nil
}

// buildStack reserves stackPages+1 pages (the extra page is the guard),
// maps every page except the lowest (the guard page) to a freshly
// allocated frame, and returns the address one past the last mapped page:
// the stack grows downward from there.
func buildStack(mem *memory.Memory) (memory.VirtualAddress, *bootload.Error) {
	region := mem.GetFreeAddress((stackPages + 1) * memory.PageSize)
	guardPage := memory.PageContaining(region)

	for i := uint64(1); i <= stackPages; i++ {
		frame, err := mem.AllocateFrame()
		if err != nil {
			return 0, err
		}
		page := guardPage + memory.Page(i)
		if err := mem.Map(page, frame, memory.FlagPresent|memory.FlagWritable|memory.FlagNoExecute); err != nil {
			return 0, err
		}
	}

	stackTop := guardPage.Next().Address()
	stackTop, verr := stackTop.Add(stackPages * memory.PageSize)
	if verr != nil {
		return 0, verr
	}
	return stackTop, nil
}

// identityMapTrampoline maps the page(s) containing the trampoline code
// at their own physical address, read+execute only: the trampoline must
// still be executable immediately after the new page table becomes
// active, and it never needs to be written to.
func identityMapTrampoline(mem *memory.Memory, phys memory.PhysicalAddress, length uint64) *bootload.Error {
	if length == 0 {
		return nil
	}
	startFrame := memory.FrameContaining(phys)
	endFrame := memory.FrameContaining(phys + memory.PhysicalAddress(length-1))

	for frame := startFrame; frame <= endFrame; frame = frame.Next() {
		page := memory.Page(frame)
		if err := mem.Map(page, frame, memory.FlagPresent); err != nil {
			return err
		}
	}
	return nil
}

// mapFrameBuffer allocates a fresh virtual range of fb.Size bytes and maps
// it onto the physical frames the firmware already reserves for the
// framebuffer; no new frames are allocated.
func mapFrameBuffer(mem *memory.Memory, fb firmware.FrameBufferInfo) (memory.VirtualAddress, *bootload.Error) {
	virt := mem.GetFreeAddress(fb.Size)

	startFrame := memory.FrameContaining(memory.PhysicalAddress(fb.Address))
	pageCount := (fb.Size + memory.PageSize - 1) / memory.PageSize
	startPage := memory.PageContaining(virt)

	for i := uint64(0); i < pageCount; i++ {
		page := startPage + memory.Page(i)
		frame := startFrame + memory.Frame(i)
		if err := mem.Map(page, frame, memory.FlagPresent|memory.FlagWritable|memory.FlagNoExecute); err != nil {
			return 0, err
		}
	}

	return virt, nil
}
