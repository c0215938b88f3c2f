// Package firmware is the Firmware Facade: the only place in the
// bootloader that speaks UEFI directly. Every other package is handed
// plain Go values (frames, descriptors, byte slices) and never sees a raw
// protocol pointer or an EFI_STATUS code.
package firmware

import (
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/memory"
)

// status is an EFI_STATUS return code. Bit 63 set means error; this
// facade only ever distinguishes "success" from "anything else" and folds
// every failure into a *bootload.Error with the calling operation's name,
// since the bootloader has no recovery path finer than "abort with an
// error message" for any firmware failure (see spec section 7).
type status uintptr

const efiSuccess status = 0

func newErr(message string) *bootload.Error {
	return bootload.New("firmware", message)
}

func ptrFromUintptr(p uintptr) unsafe.Pointer {
	return unsafe.Pointer(p)
}

// Facade is the live connection to the firmware's boot-time services,
// obtained once at entry and threaded through the rest of the pipeline.
// After ExitBootServices succeeds, a Facade must not be used again except
// to read the final, already-retrieved memory map.
type Facade struct {
	imageHandle uintptr
	st          *systemTable
	bs          *bootServices
}

// New wraps the (ImageHandle, SystemTable) pair the firmware passes to the
// image's entry point. Both are received as raw addresses: the platform
// entry stub that the firmware actually jumps to lives outside this
// module's Go source (it has to run before the Go runtime has initialized
// itself, the same way gopheros's NASM rt0 runs before Kmain), and hands
// the two pointers to Entry as plain uintptrs once it's safe to call into
// Go code.
func New(imageHandle, systemTableAddr uintptr) *Facade {
	st := (*systemTable)(ptrFromUintptr(systemTableAddr))
	return &Facade{
		imageHandle: imageHandle,
		st:          st,
		bs:          st.BootServices,
	}
}

func (f *Facade) locateProtocol(guid GUID, out *uintptr) status {
	return status(efiCall(f.bs.LocateProtocol,
		uintptr(unsafe.Pointer(&guid)),
		0,
		uintptr(unsafe.Pointer(out)),
		0, 0, 0,
	))
}

// AllocatePages asks the firmware for count contiguous pages of the given
// memory type and returns the physical frame at their base. Frames the
// bootloader allocates for its own bookkeeping (page tables, boot-info,
// the loaded kernel and modules) should be requested as
// EfiBootloaderReservedMemory so the consolidated memory map can tell them
// apart from memory nothing has touched.
func (f *Facade) AllocatePages(count uint64, memType MemoryType) (memory.Frame, *bootload.Error) {
	var addr uint64
	st := status(efiCall(f.bs.AllocatePages,
		uintptr(allocateAnyPages),
		uintptr(memType),
		uintptr(count),
		uintptr(unsafe.Pointer(&addr)),
		0, 0,
	))
	if st != efiSuccess {
		return 0, newErr("AllocatePages failed")
	}
	return memory.FrameContaining(memory.PhysicalAddress(addr)), nil
}

// FrameAllocator adapts Facade to memory.FrameAllocator, always tagging
// allocations as bootloader-reserved.
type FrameAllocator struct {
	Facade *Facade
}

func (a FrameAllocator) AllocateFrames(count uint64) (memory.FrameRange, *bootload.Error) {
	start, err := a.Facade.AllocatePages(count, EfiBootloaderReservedMemory)
	if err != nil {
		return memory.FrameRange{}, err
	}
	return memory.FrameRange{Start: start, End: start + memory.Frame(count)}, nil
}
