// Package memmap turns the raw firmware memory map retrieved at
// ExitBootServices into the kernel's merged MemoryRegion sequence. Regions
// are emitted in firmware order; the consolidator does not sort them and
// does not fill gaps between descriptors.
package memmap

import (
	"github.com/tsoutsman/uefi-bootloader/internal/bootinfo"
	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/firmware"
)

// usableTypes are the firmware memory types the kernel is free to treat
// as ordinary usable RAM once boot services have ended: firmware's own
// conventional memory, plus the regions it used for loading and for boot
// services code/data, which the UEFI spec defines as reclaimable the
// moment ExitBootServices succeeds.
var usableTypes = map[firmware.MemoryType]bool{
	firmware.EfiConventionalMemory: true,
	firmware.EfiLoaderCode:         true,
	firmware.EfiLoaderData:         true,
	firmware.EfiBootServicesCode:   true,
	firmware.EfiBootServicesData:   true,
}

func classify(d firmware.MemoryDescriptor) bootinfo.MemoryRegion {
	r := bootinfo.MemoryRegion{
		Start: d.PhysicalStart,
		Len:   d.NumberOfPages * 4096,
	}

	if d.Type == firmware.EfiBootloaderReservedMemory {
		r.Kind = bootinfo.KindBootloaderReserved
		return r
	}

	if usableTypes[d.Type] {
		r.Kind = bootinfo.KindUsable
		return r
	}

	r.Kind = bootinfo.KindUnknownUefi
	r.Tag = uint32(d.Type)
	return r
}

func sameKind(a, b bootinfo.MemoryRegion) bool {
	return a.Kind == b.Kind && a.Tag == b.Tag
}

// Consolidate walks mm in firmware order, classifying and merging
// adjacent descriptors of the same kind before handing each finished
// region to appendFn. Merging is what keeps the region count within the
// boot-info's pre-reserved slack: a raw firmware map can have far more
// descriptors than the kernel needs distinct regions for.
func Consolidate(mm firmware.MemoryMap, appendFn func(bootinfo.MemoryRegion) *bootload.Error) *bootload.Error {
	var current bootinfo.MemoryRegion
	have := false

	for i := 0; i < mm.Len(); i++ {
		region := classify(mm.At(i))

		if have && sameKind(current, region) && region.Start == current.Start+current.Len {
			current.Len += region.Len
			continue
		}

		if have {
			if err := appendFn(current); err != nil {
				return err
			}
		}
		current = region
		have = true
	}

	if have {
		if err := appendFn(current); err != nil {
			return err
		}
	}

	return nil
}
