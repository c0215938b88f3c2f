package memory

import (
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
)

const entriesPerTable = 512

// table overlays a page table's 4 KiB frame as 512 raw entries. Firmware
// identity-maps every physical address as its own virtual address, so a
// frame's physical address can be dereferenced directly as long as no
// mutation happens after the trampoline reloads cr3 (see Memory's doc
// comment).
type table [entriesPerTable]pageTableEntry

func tableAt(f Frame) *table {
	return (*table)(unsafe.Pointer(uintptr(f.Address())))
}

// shift and mask for each of the four paging levels, most significant
// first (PML4, PDPT, PD, PT).
var levelShift = [4]uint{39, 30, 21, 12}

const levelIndexBits = 9

func levelIndex(addr VirtualAddress, level int) uint64 {
	return (uint64(addr) >> levelShift[level]) & (1<<levelIndexBits - 1)
}

// FrameAllocator is the subset of the Firmware Facade that Memory needs:
// the ability to hand out fresh, firmware-backed physical frames. It is
// expressed as an interface here (rather than importing the firmware
// package directly) so memory's tests can supply a trivial bump allocator
// and so the firmware package never needs to depend back on memory.
type FrameAllocator interface {
	AllocateFrames(count uint64) (FrameRange, *bootload.Error)
}

// Memory owns physical frame allocation and the new page table that will
// become the kernel's address space. It leans on the fact that firmware
// identity-maps all of RAM: every physical address it allocates is also
// immediately usable as a virtual address, right up until the trampoline
// reloads cr3. No page-table mutation may happen after that point.
//
// This merges the teacher's separate pmm (frame allocator) and vmm (page
// mapper) packages into one type, matching the spec's single "Memory"
// component.
type Memory struct {
	alloc FrameAllocator
	root  Frame

	// nextFreeAddr is a simple bump pointer used by GetFreeAddress. It
	// starts at the base of the kernel's higher-half address space and
	// only ever grows, mirroring the teacher's EarlyReserveRegion.
	nextFreeAddr VirtualAddress
}

// KernelAddressSpaceBase is the virtual address at which the kernel's own
// address space begins. GetFreeAddress hands out ranges starting here.
const KernelAddressSpaceBase = VirtualAddress(0xffff_8000_0000_0000)

// New creates a Memory instance with a freshly allocated, zeroed root page
// table.
func New(alloc FrameAllocator) (*Memory, *bootload.Error) {
	rootRange, err := alloc.AllocateFrames(1)
	if err != nil {
		return nil, err
	}

	root := rootRange.Start
	zero(tableAt(root))

	return &Memory{
		alloc:        alloc,
		root:         root,
		nextFreeAddr: KernelAddressSpaceBase,
	}, nil
}

func zero(t *table) {
	for i := range t {
		t[i] = 0
	}
}

// AllocateFrame reserves a single physical frame.
func (m *Memory) AllocateFrame() (Frame, *bootload.Error) {
	r, err := m.alloc.AllocateFrames(1)
	if err != nil {
		return 0, err
	}
	return r.Start, nil
}

// AllocateFrames reserves a contiguous run of count physical frames.
func (m *Memory) AllocateFrames(count uint64) (FrameRange, *bootload.Error) {
	return m.alloc.AllocateFrames(count)
}

// GetFreeAddress returns a free, page-aligned virtual region of at least
// size bytes in the kernel's address space. Consecutive calls return
// disjoint ranges; the bump pointer itself is opaque to callers.
func (m *Memory) GetFreeAddress(size uint64) VirtualAddress {
	addr := m.nextFreeAddr
	pages := (size + PageSize - 1) / PageSize
	m.nextFreeAddr += VirtualAddress(pages * PageSize)
	return addr
}

// PageTable returns the physical frame backing the root (PML4) table.
func (m *Memory) PageTable() Frame {
	return m.root
}

var (
	errRemap    = bootload.New("memory", "attempted to remap a page to a different frame")
	errHugePage = bootload.New("memory", "huge pages are not supported")
)

// Map installs a 4 KiB mapping from page to frame with the given flags,
// allocating intermediate page tables on demand. Allocated intermediate
// tables are always marked PRESENT|WRITABLE; USER is added to an
// intermediate table the moment any leaf beneath it requests USER access,
// which is the simplest policy that can't under-permission a valid leaf.
//
// Mapping over an existing, different frame is a programming-invariant
// violation: the bootloader never needs to remap, so Map fails fatally
// instead of silently overwriting a mapping that another component relied
// on being stable.
func (m *Memory) Map(page Page, frame Frame, flags PteFlags) *bootload.Error {
	t := tableAt(m.root)

	for level := 0; level < 3; level++ {
		idx := levelIndex(page.Address(), level)
		entry := &t[idx]

		if entry.hasFlags(FlagHuge) {
			return errHugePage
		}

		if !entry.hasFlags(FlagPresent) {
			newTable, err := m.AllocateFrame()
			if err != nil {
				return err
			}
			zero(tableAt(newTable))

			*entry = 0
			entry.setFrame(newTable)
			entry.setFlags(FlagPresent | FlagWritable)
		}

		if flags&FlagUser != 0 {
			entry.setFlags(FlagUser)
		}

		t = tableAt(entry.frame())
	}

	idx := levelIndex(page.Address(), 3)
	leaf := &t[idx]

	if leaf.hasFlags(FlagPresent) && leaf.frame() != frame {
		return errRemap
	}

	*leaf = 0
	leaf.setFrame(frame)
	leaf.setFlags(flags | FlagPresent)

	return nil
}

// Translate walks the active page table for addr and returns the frame it
// resolves to, or an error if no mapping exists at the leaf level. It is
// used by tests to verify that every mapping Map produces round-trips
// through a fresh four-level walk, as required by the spec's testable
// properties.
func (m *Memory) Translate(addr VirtualAddress) (Frame, *bootload.Error) {
	t := tableAt(m.root)

	for level := 0; level < 3; level++ {
		idx := levelIndex(addr, level)
		entry := t[idx]
		if !entry.hasFlags(FlagPresent) {
			return 0, bootload.New("memory", "virtual address is not mapped")
		}
		t = tableAt(entry.frame())
	}

	idx := levelIndex(addr, 3)
	leaf := t[idx]
	if !leaf.hasFlags(FlagPresent) {
		return 0, bootload.New("memory", "virtual address is not mapped")
	}
	return leaf.frame(), nil
}
