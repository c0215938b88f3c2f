// Package kernelimage loads a standalone ELF64 kernel image into a fresh
// set of frames and maps it into the address space under construction,
// the way tools/bootimage in the teacher's pack reads an ELF binary with
// debug/elf to find the pieces it needs to place in memory.
package kernelimage

import (
	"debug/elf"
	"io"
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootinfo"
	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/memory"
)

func newErr(message string) *bootload.Error {
	return bootload.New("kernelimage", message)
}

// Image is the result of loading a kernel: where execution should begin.
// The caller's sections slice (passed to Load) holds the ElfSection
// records directly; there is no separate copy to return.
type Image struct {
	EntryPoint memory.VirtualAddress
}

// unsafeBytesAt overlays a byte slice directly on a physical address,
// relying on firmware's identity mapping exactly as Memory's page tables
// do (see memory.tableAt).
func unsafeBytesAt(addr memory.PhysicalAddress, size uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}

func flagsForSegment(f elf.ProgFlag) memory.PteFlags {
	flags := memory.FlagPresent
	if f&elf.PF_W != 0 {
		flags |= memory.FlagWritable
	}
	if f&elf.PF_X == 0 {
		flags |= memory.FlagNoExecute
	}
	return flags
}

func sectionFlags(f elf.SectionFlag) bootinfo.ElfSectionFlags {
	var flags bootinfo.ElfSectionFlags
	if f&elf.SHF_WRITE != 0 {
		flags |= bootinfo.ElfSectionWritable
	}
	if f&elf.SHF_ALLOC != 0 {
		flags |= bootinfo.ElfSectionAllocated
	}
	if f&elf.SHF_EXECINSTR != 0 {
		flags |= bootinfo.ElfSectionExecutable
	}
	return flags
}

func packName(name string, dst []byte) *bootload.Error {
	if len(name) > len(dst) {
		return newErr("ELF section name exceeds the fixed name capacity: " + name)
	}
	copy(dst, name)
	return nil
}

// mappedRange records one already-mapped virtual range, so a later
// PT_LOAD segment whose range overlaps it can be rejected the way the
// spec's Kernel Loader requires.
type mappedRange struct {
	start, end memory.VirtualAddress
}

func overlaps(ranges []mappedRange, start, end memory.VirtualAddress) bool {
	for _, r := range ranges {
		if start < r.end && r.start < end {
			return true
		}
	}
	return false
}

// Load reads r (an ELF64 executable) and, for every PT_LOAD segment,
// allocates frames covering memsz, copies filesz bytes from the file and
// zero-fills the remainder, then maps the segment into mem with flags
// derived from the segment's R/W/X bits. It returns the kernel's entry
// point and writes one ElfSection record per non-empty named section into
// sections.
//
// len(sections) bounds how many sections Load will describe;
// callers size the boot-info's ELF-section array to this exact count
// ahead of time (debug/elf.File.Sections is walked twice for that
// reason: once by the caller to count, once here to fill in).
func Load(r io.ReaderAt, mem *memory.Memory, sections []bootinfo.ElfSection) (Image, *bootload.Error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return Image{}, newErr("failed to parse kernel ELF image: " + err.Error())
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return Image{}, newErr("kernel image is not a 64-bit ELF executable")
	}

	var loaded []mappedRange

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		start, verr := memory.NewVirtualAddress(prog.Vaddr)
		if verr != nil {
			return Image{}, verr
		}
		end, verr := start.Add(prog.Memsz)
		if verr != nil {
			return Image{}, verr
		}

		if overlaps(loaded, start, end) {
			return Image{}, newErr("kernel load segments overlap in the kernel address space")
		}
		loaded = append(loaded, mappedRange{start: start, end: end})

		frameCount := (prog.Memsz + memory.PageSize - 1) / memory.PageSize
		frames, ferr := mem.AllocateFrames(frameCount)
		if ferr != nil {
			return Image{}, ferr
		}

		dst := unsafeBytesAt(frames.Start.Address(), frameCount*memory.PageSize)
		for i := range dst {
			dst[i] = 0
		}
		if _, ioErr := io.ReadFull(prog.Open(), dst[:prog.Filesz]); ioErr != nil {
			return Image{}, newErr("failed to read kernel load segment: " + ioErr.Error())
		}

		flags := flagsForSegment(prog.Flags)
		page := memory.PageContaining(start)
		for i := uint64(0); i < frameCount; i++ {
			if merr := mem.Map(page+memory.Page(i), frames.Start+memory.Frame(i), flags); merr != nil {
				return Image{}, merr
			}
		}
	}

	idx := 0
	for _, sect := range f.Sections {
		if sect.Size == 0 || sect.Name == "" {
			continue
		}
		if idx >= len(sections) {
			return Image{}, newErr("kernel has more non-empty named sections than were counted")
		}

		addr, verr := memory.NewVirtualAddress(sect.Addr)
		if verr != nil {
			return Image{}, verr
		}

		rec := bootinfo.ElfSection{
			VirtualAddress: uint64(addr),
			Size:           sect.Size,
			Flags:          sectionFlags(sect.Flags),
		}
		if perr := packName(sect.Name, rec.Name[:]); perr != nil {
			return Image{}, perr
		}
		sections[idx] = rec
		idx++
	}

	entry, verr := memory.NewVirtualAddress(f.Entry)
	if verr != nil {
		return Image{}, verr
	}

	return Image{EntryPoint: entry}, nil
}

// CountSections returns how many non-empty named sections r's ELF file
// has, so the caller can size the boot-info's ELF-section array before
// calling Load.
func CountSections(r io.ReaderAt) (int, *bootload.Error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return 0, newErr("failed to parse kernel ELF image: " + err.Error())
	}
	defer f.Close()

	n := 0
	for _, sect := range f.Sections {
		if sect.Size == 0 || sect.Name == "" {
			continue
		}
		n++
	}
	return n, nil
}
