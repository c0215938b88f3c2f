// Package bootinfo defines the data the bootloader hands to the kernel at
// the moment of the context switch, and the single allocation that holds
// it. Every type here is laid out to be read by a reader that observes
// the structure at a different virtual address than the one the
// bootloader wrote it at (see Header's doc comment), so none of them may
// embed an absolute pointer.
package bootinfo

import "github.com/tsoutsman/uefi-bootloader/internal/firmware"

// moduleNameCapacity bounds a Module's Name field. 64 bytes comfortably
// fits any reasonable boot-module filename; a longer name is rejected
// rather than silently truncated; see modules.Load.
const moduleNameCapacity = 64

// elfSectionNameCapacity mirrors moduleNameCapacity for ElfSection.Name.
const elfSectionNameCapacity = 64

// MemoryRegionKind classifies a MemoryRegion.
type MemoryRegionKind uint32

const (
	// KindUsable covers everything the kernel is free to use for its own
	// allocator once it takes over: firmware conventional memory plus the
	// boot-services regions firmware promises to stop using after
	// ExitBootServices.
	KindUsable MemoryRegionKind = iota
	// KindUnknownUefi wraps a firmware memory type this bootloader does
	// not recognize as usable (ACPI NVS, MMIO, reserved, etc). The
	// original UEFI tag is preserved in Tag so the kernel can still make
	// its own policy decision about it.
	KindUnknownUefi
	// KindBootloaderReserved covers frames the bootloader itself
	// allocated (page tables, the boot-info structure, the loaded kernel
	// and module images) and that remain live after handoff.
	KindBootloaderReserved
	// KindKernelReserved is available for the kernel to mark regions it
	// has claimed after boot; the bootloader never emits it.
	KindKernelReserved
)

// MemoryRegion describes one non-overlapping span of physical memory. The
// final array produced by the memory-map consolidator keeps firmware order,
// and no two physically contiguous neighbours in it share a Kind; the
// array is not re-sorted, and gaps between descriptors are left as gaps.
type MemoryRegion struct {
	Start uint64
	Len   uint64
	Kind  MemoryRegionKind
	// Tag holds the original firmware.MemoryType when Kind is
	// KindUnknownUefi, and is zero otherwise.
	Tag uint32
}

// PixelFormat mirrors firmware.PixelFormat for the two formats the
// bootloader is able to describe in a FrameBuffer record.
type PixelFormat uint32

const (
	PixelFormatRGB PixelFormat = iota
	PixelFormatBGR
)

// FrameBuffer describes the kernel's mapped view of the firmware
// framebuffer.
type FrameBuffer struct {
	// Start is the virtual address at which the mapping builder mapped
	// the framebuffer, not its physical address: the kernel never needs
	// the physical address, and exposing it would violate the rule that
	// no bootloader-visible virtual address crosses the handoff instead.
	Start            uint64
	Size             uint64
	Width            uint32
	Height           uint32
	BytesPerPixel    uint32
	Stride           uint32
	PixelFormat      PixelFormat
}

// Module describes one file loaded from the modules directory.
type Module struct {
	Name  [moduleNameCapacity]byte
	Start uint64
	Len   uint64
}

// ElfSectionFlags mirrors the subset of ELF section flags the kernel
// needs to know to treat a section as readable, writable and/or
// executable once it owns its own page tables.
type ElfSectionFlags uint32

const (
	ElfSectionWritable ElfSectionFlags = 1 << iota
	ElfSectionAllocated
	ElfSectionExecutable
)

// ElfSection describes one named, non-empty section of the loaded kernel
// image, at its final post-relocation virtual address.
type ElfSection struct {
	Name           [elfSectionNameCapacity]byte
	VirtualAddress uint64
	Size           uint64
	Flags          ElfSectionFlags
}

// arrayRef is the self-referential (byte_offset, element_count) half of
// the base-pointer/offset/count triple the spec calls for. The base
// pointer is always Header's own virtual address as the kernel observes
// it — never stored here, since storing it would be exactly the
// bootloader-visible absolute pointer the dual-address-space handoff
// forbids.
type arrayRef struct {
	Offset uint64
	Len    uint64
}

// Header is the fixed-size record at the base of the boot-info
// allocation. Every address a kernel needs afterward is reached by
// adding one of the three ArrayRef offsets to the virtual address at
// which the kernel itself observes this Header — the bootloader writes
// this structure through firmware's identity mapping (physical address
// used as virtual), while the kernel will later read the very same bytes
// through a different mapping entirely, so no field here may be a raw
// bootloader-side pointer.
type Header struct {
	Size uint64

	HasFrameBuffer bool
	_              [7]byte // pad FrameBuffer to its natural 8-byte alignment
	FrameBuffer    FrameBuffer

	HasRSDPAddress bool
	_              [7]byte
	RSDPAddress    uint64

	MemoryRegions arrayRef
	Modules       arrayRef
	ElfSections   arrayRef
}

func firmwarePixelFormat(f firmware.PixelFormat) (PixelFormat, bool) {
	switch f {
	case firmware.PixelRGBReserved8BitPerColor:
		return PixelFormatRGB, true
	case firmware.PixelBGRReserved8BitPerColor:
		return PixelFormatBGR, true
	default:
		return 0, false
	}
}
