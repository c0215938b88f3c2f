package firmware

import (
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
)

// memoryMapSlackDescriptors is added to the size GetMemoryMap reports it
// needs before allocating the buffer. AllocatePool/AllocatePages for the
// buffer itself can add a handful of new descriptors to the map (splitting
// a free region, or tagging the pool allocation), so a zero-slack buffer
// can make the second GetMemoryMap call fail with EFI_BUFFER_TOO_SMALL.
// Value and rationale taken from the original Rust implementation, which
// hits this exact race.
const memoryMapSlackDescriptors = 8

// MemoryMap is the raw descriptor buffer GetMemoryMap filled in, plus the
// bookkeeping needed to step through it: firmware memory maps are not
// guaranteed to be built from fixed-size EFI_MEMORY_DESCRIPTOR structs,
// so callers must advance by DescriptorSize, not sizeof(MemoryDescriptor).
type MemoryMap struct {
	buf            []byte
	descriptorSize uintptr
	mapKey         uintptr
}

// Len returns the number of descriptors in the map.
func (m MemoryMap) Len() int {
	if m.descriptorSize == 0 {
		return 0
	}
	return len(m.buf) / int(m.descriptorSize)
}

// At returns the i'th descriptor.
func (m MemoryMap) At(i int) MemoryDescriptor {
	off := uintptr(i) * m.descriptorSize
	return *(*MemoryDescriptor)(unsafe.Pointer(&m.buf[off]))
}

// NewMemoryMap builds a MemoryMap from already-decoded descriptors,
// packing them at the natural size of MemoryDescriptor. Production code
// only ever gets a MemoryMap from ExitBootServices; this constructor
// exists so callers like the memory-map consolidator can be tested
// against a hand-built descriptor sequence without a real firmware call.
func NewMemoryMap(descriptors []MemoryDescriptor) MemoryMap {
	descSize := unsafe.Sizeof(MemoryDescriptor{})
	buf := make([]byte, len(descriptors)*int(descSize))
	for i, d := range descriptors {
		*(*MemoryDescriptor)(unsafe.Pointer(&buf[uintptr(i)*descSize])) = d
	}
	return MemoryMap{buf: buf, descriptorSize: descSize}
}

// getMemoryMap fills buf with a single GetMemoryMap call. Sizing the
// buffer (the first half of the usual two-call sequence) is
// MemoryMapBufferSize's job; the buffer itself comes from the
// caller-supplied backing store.
func (f *Facade) getMemoryMap(buf []byte) (MemoryMap, *bootload.Error) {
	var (
		mapSize        = uintptr(len(buf)) // firmware requires this set to the buffer's capacity on entry
		mapKey         uintptr
		descriptorSize uintptr
		descVersion    uint32
	)

	st := status(efiCall(f.bs.GetMemoryMap,
		uintptr(unsafe.Pointer(&mapSize)),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&mapKey)),
		uintptr(unsafe.Pointer(&descriptorSize)),
		uintptr(unsafe.Pointer(&descVersion)),
		0,
	))
	if st != efiSuccess {
		return MemoryMap{}, newErr("GetMemoryMap failed")
	}

	return MemoryMap{
		buf:            buf[:mapSize],
		descriptorSize: descriptorSize,
		mapKey:         mapKey,
	}, nil
}

// MemoryMapBufferSize returns the number of bytes the caller should
// allocate before calling ExitBootServices (including slack for the
// descriptors that allocation itself may add to the map) and the
// firmware's current descriptor stride, which the boot-info builder needs
// to size the memory-regions array.
func (f *Facade) MemoryMapBufferSize() (bufSize, descriptorSize uint64, err *bootload.Error) {
	var (
		mapSize   uintptr
		mapKey    uintptr
		descSize  uintptr
		descVers  uint32
		dummy     byte
	)

	st := status(efiCall(f.bs.GetMemoryMap,
		uintptr(unsafe.Pointer(&mapSize)),
		uintptr(unsafe.Pointer(&dummy)),
		uintptr(unsafe.Pointer(&mapKey)),
		uintptr(unsafe.Pointer(&descSize)),
		uintptr(unsafe.Pointer(&descVers)),
		0,
	))
	_ = st // EFI_BUFFER_TOO_SMALL is expected here; mapSize/descSize are valid regardless

	return uint64(mapSize) + memoryMapSlackDescriptors*uint64(descSize), uint64(descSize), nil
}

// ExitBootServices retrieves the final memory map and signals the
// firmware to relinquish boot services, in the single atomic
// GetMemoryMap-then-ExitBootServices sequence the UEFI spec requires (the
// map key from the final GetMemoryMap call must match the one passed to
// ExitBootServices, or the firmware rejects the call). buf must be sized
// by a prior call to MemoryMapBufferSize.
//
// After this returns successfully, no other Facade method may be called:
// boot services (including the console, page allocation, and protocol
// lookup) no longer exist.
func (f *Facade) ExitBootServices(buf []byte) (MemoryMap, *bootload.Error) {
	mm, err := f.getMemoryMap(buf)
	if err != nil {
		return MemoryMap{}, err
	}

	st := status(efiCall(f.bs.ExitBootServices, f.imageHandle, mm.mapKey, 0, 0, 0, 0))
	if st != efiSuccess {
		return MemoryMap{}, newErr("ExitBootServices failed")
	}

	return mm, nil
}

// ACPIRootTable locates the platform's ACPI root system description
// pointer, preferring the ACPI 2.0+ table and falling back to ACPI 1.0
// only if no 2.0 entry is present, matching the fallback order the
// original implementation uses.
func (f *Facade) ACPIRootTable() (uintptr, *bootload.Error) {
	entries := unsafe.Slice(f.st.ConfigurationTable, int(f.st.NumberOfTableEntries))

	var acpi1 uintptr
	found1 := false

	for _, e := range entries {
		if e.VendorGUID.Equal(ACPI20TableGUID) {
			return e.VendorTable, nil
		}
		if e.VendorGUID.Equal(ACPI10TableGUID) {
			acpi1 = e.VendorTable
			found1 = true
		}
	}

	if found1 {
		return acpi1, nil
	}
	return 0, newErr("no ACPI configuration table present")
}
