package bootinfo

import (
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/firmware"
	"github.com/tsoutsman/uefi-bootloader/internal/memory"
)

// regionSlack mirrors the buffer slack the Firmware Facade adds when
// sizing its ExitBootServices buffer (see firmware.memoryMapSlackDescriptors):
// the allocate_pages calls the bootloader makes right up until
// ExitBootServices can themselves add a handful of descriptors to the
// final memory map, so the region array needs the same amount of headroom
// or the memory-map consolidator could overflow it.
const regionSlack = 8

// KernelMappings is embedded into the final boot-info so the kernel can
// reconstruct each trailing array by adding an offset to the virtual
// address at which it observes the header — see Header's doc comment for
// why no absolute bootloader-side pointer appears here.
type KernelMappings struct {
	BootInfoVirtual   memory.VirtualAddress
	MemoryRegionsOffset uint64
	ModulesOffset       uint64
	ElfSectionsOffset   uint64
}

// Builder owns the single contiguous allocation backing the boot-info
// structure. It is written to through the bootloader's identity-mapped
// view of the frames (base) while also being mapped into the kernel's own
// address space at virtualBase; both windows refer to the same physical
// frames.
type Builder struct {
	base        memory.VirtualAddress
	virtualBase memory.VirtualAddress

	header      *Header
	regions     []MemoryRegion
	modules     []Module
	elfSections []ElfSection
}

// align rounds n up to a multiple of a (a must be a power of two).
func align(n, a uint64) uint64 {
	return (n + a - 1) &^ (a - 1)
}

// New allocates and maps the boot-info structure. memoryMapSize and
// descriptorSize come from firmware.Facade.MemoryMapBufferSize and size
// the memory-regions array; moduleCount and elfSectionCount are known
// exactly ahead of time from the module and kernel loaders.
func New(mem *memory.Memory, memoryMapSize, descriptorSize uint64, moduleCount, elfSectionCount int) (*Builder, KernelMappings, *bootload.Error) {
	regionCapacity := int(memoryMapSize/descriptorSize) + regionSlack

	headerSize := uint64(unsafe.Sizeof(Header{}))
	regionsOffset := align(headerSize, 8)
	regionsSize := uint64(regionCapacity) * uint64(unsafe.Sizeof(MemoryRegion{}))

	modulesOffset := align(regionsOffset+regionsSize, 8)
	modulesSize := uint64(moduleCount) * uint64(unsafe.Sizeof(Module{}))

	elfSectionsOffset := align(modulesOffset+modulesSize, 8)
	elfSectionsSize := uint64(elfSectionCount) * uint64(unsafe.Sizeof(ElfSection{}))

	totalSize := elfSectionsOffset + elfSectionsSize

	frames, err := mem.AllocateFrames((totalSize + memory.PageSize - 1) / memory.PageSize)
	if err != nil {
		return nil, KernelMappings{}, err
	}

	// Written through firmware's identity mapping: the physical address
	// of the first frame, reinterpreted as a virtual address, is valid
	// right up until the trampoline reloads cr3.
	base := memory.VirtualAddress(frames.Start.Address())

	virtualBase := mem.GetFreeAddress(totalSize)
	pageCount := frames.Len()
	for i := uint64(0); i < pageCount; i++ {
		page := memory.PageContaining(virtualBase) + memory.Page(i)
		frame := frames.Start + memory.Frame(i)
		if err := mem.Map(page, frame, memory.FlagPresent|memory.FlagWritable|memory.FlagNoExecute); err != nil {
			return nil, KernelMappings{}, err
		}
	}

	b := &Builder{
		base:        base,
		virtualBase: virtualBase,
		header:      (*Header)(unsafe.Pointer(uintptr(base))),
		regions:     unsafe.Slice((*MemoryRegion)(unsafe.Pointer(uintptr(base)+uintptr(regionsOffset))), regionCapacity),
		modules:     unsafe.Slice((*Module)(unsafe.Pointer(uintptr(base)+uintptr(modulesOffset))), moduleCount),
		elfSections: unsafe.Slice((*ElfSection)(unsafe.Pointer(uintptr(base)+uintptr(elfSectionsOffset))), elfSectionCount),
	}

	*b.header = Header{
		Size: totalSize,
		MemoryRegions: arrayRef{Offset: regionsOffset, Len: 0},
		Modules:       arrayRef{Offset: modulesOffset, Len: uint64(moduleCount)},
		ElfSections:   arrayRef{Offset: elfSectionsOffset, Len: uint64(elfSectionCount)},
	}

	return b, KernelMappings{
		BootInfoVirtual:     virtualBase,
		MemoryRegionsOffset: regionsOffset,
		ModulesOffset:       modulesOffset,
		ElfSectionsOffset:   elfSectionsOffset,
	}, nil
}

// SetFrameBuffer records the kernel's mapped view of the framebuffer.
// start is the virtual address the mapping builder mapped it to.
func (b *Builder) SetFrameBuffer(info firmware.FrameBufferInfo, start memory.VirtualAddress) {
	format, ok := firmwarePixelFormat(info.PixelFormat)
	if !ok {
		return
	}
	b.header.HasFrameBuffer = true
	b.header.FrameBuffer = FrameBuffer{
		Start:         uint64(start),
		Size:          info.Size,
		Width:         info.Width,
		Height:        info.Height,
		BytesPerPixel: 4,
		Stride:        info.PixelsPerScanLine,
		PixelFormat:   format,
	}
}

// SetRSDPAddress records the physical address of the ACPI root table, if
// one was found.
func (b *Builder) SetRSDPAddress(addr uint64) {
	b.header.HasRSDPAddress = true
	b.header.RSDPAddress = addr
}

// Modules returns the fixed-length module record slice for the loaders to
// fill in directly, index by index.
func (b *Builder) Modules() []Module {
	return b.modules
}

// ElfSections returns the fixed-length ELF section record slice for the
// kernel loader to fill in directly.
func (b *Builder) ElfSections() []ElfSection {
	return b.elfSections
}

// AppendRegion writes the next memory region into the pre-sized region
// array. It fails fatally if the consolidator produced more regions than
// regionSlack accounted for, since that would silently truncate the
// kernel's view of physical memory.
func (b *Builder) AppendRegion(r MemoryRegion) *bootload.Error {
	n := b.header.MemoryRegions.Len
	if int(n) >= len(b.regions) {
		return bootload.New("bootinfo", "memory region array exhausted its capacity slack")
	}
	b.regions[n] = r
	b.header.MemoryRegions.Len = n + 1
	return nil
}
