package kernelimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootinfo"
	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/memory"
)

type testAllocator struct{}

func (testAllocator) AllocateFrames(count uint64) (memory.FrameRange, *bootload.Error) {
	buf := make([]byte, (count+1)*memory.PageSize)
	base := (uintptr(unsafe.Pointer(&buf[0])) + uintptr(memory.PageSize) - 1) &^ (uintptr(memory.PageSize) - 1)
	start := memory.FrameContaining(memory.PhysicalAddress(base))
	return memory.FrameRange{Start: start, End: start + memory.Frame(count)}, nil
}

func newTestMemory(t *testing.T) *memory.Memory {
	t.Helper()
	m, err := memory.New(testAllocator{})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	return m
}

// testSegment describes one PT_LOAD segment for buildELF.
type testSegment struct {
	Vaddr  uint64
	Data   []byte
	Memsz  uint64
	Flags  uint32
}

// buildELF hand-assembles a minimal little-endian ELF64 executable with one
// PT_LOAD segment per entry in segs, a single ".text" section describing the
// first segment, and the ".shstrtab" section every ELF file needs to name
// its sections. It exists so the kernel loader can be exercised without a
// real toolchain-produced binary on disk.
func buildELF(t *testing.T, entry uint64, segs []testSegment) []byte {
	t.Helper()

	var buf bytes.Buffer

	ehdrSize := int(unsafe.Sizeof(elf.Header64{}))
	phdrSize := int(unsafe.Sizeof(elf.Prog64{}))
	shdrSize := int(unsafe.Sizeof(elf.Section64{}))

	phoff := uint64(ehdrSize)
	dataOff := uint64(ehdrSize + phdrSize*len(segs))

	phdrs := make([]elf.Prog64, len(segs))
	offsets := make([]uint64, len(segs))
	for i, s := range segs {
		offsets[i] = dataOff
		memsz := s.Memsz
		if memsz == 0 {
			memsz = uint64(len(s.Data))
		}
		phdrs[i] = elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  s.Flags,
			Off:    dataOff,
			Vaddr:  s.Vaddr,
			Paddr:  s.Vaddr,
			Filesz: uint64(len(s.Data)),
			Memsz:  memsz,
			Align:  0x1000,
		}
		dataOff += uint64(len(s.Data))
	}

	shstrtab := append([]byte{0}, []byte(".text\x00.shstrtab\x00")...)
	textNameOff := uint32(1)
	shstrtabNameOff := uint32(1 + len(".text\x00"))

	shstrtabOff := dataOff
	shoff := shstrtabOff + uint64(len(shstrtab))

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   1,
		Entry:     entry,
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    uint16(ehdrSize),
		Phentsize: uint16(phdrSize),
		Phnum:     uint16(len(segs)),
		Shentsize: uint16(shdrSize),
		Shnum:     3,
		Shstrndx:  2,
	}
	hdr.Ident[0], hdr.Ident[1], hdr.Ident[2], hdr.Ident[3] = 0x7f, 'E', 'L', 'F'
	hdr.Ident[4] = byte(elf.ELFCLASS64)
	hdr.Ident[5] = byte(elf.ELFDATA2LSB)
	hdr.Ident[6] = byte(elf.EV_CURRENT)

	binary.Write(&buf, binary.LittleEndian, &hdr)
	for i := range phdrs {
		binary.Write(&buf, binary.LittleEndian, &phdrs[i])
	}
	for _, s := range segs {
		buf.Write(s.Data)
	}
	buf.Write(shstrtab)

	var textAddr, textSize uint64
	if len(segs) > 0 {
		textAddr = segs[0].Vaddr
		textSize = uint64(len(segs[0].Data))
	}

	sections := []elf.Section64{
		{}, // SHN_UNDEF
		{
			Name:      textNameOff,
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Addr:      textAddr,
			Off:       offsets[0],
			Size:      textSize,
			Addralign: 1,
		},
		{
			Name:      shstrtabNameOff,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrtabOff,
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		},
	}
	for i := range sections {
		binary.Write(&buf, binary.LittleEndian, &sections[i])
	}

	return buf.Bytes()
}

func TestLoadMapsSegmentAndResolvesEntryPoint(t *testing.T) {
	mem := newTestMemory(t)

	const vaddr = uint64(0x400000)
	data := []byte{0x90, 0x90, 0xc3} // nop nop ret
	img, err := Load(bytes.NewReader(buildELF(t, vaddr, []testSegment{
		{Vaddr: vaddr, Data: data, Memsz: uint64(len(data)) + 13, Flags: uint32(elf.PF_R | elf.PF_X)},
	})), mem, make([]bootinfo.ElfSection, 2))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if uint64(img.EntryPoint) != vaddr {
		t.Errorf("EntryPoint = %#x, want %#x", uint64(img.EntryPoint), vaddr)
	}

	frame, terr := mem.Translate(memory.VirtualAddress(vaddr))
	if terr != nil {
		t.Fatalf("Translate: %v", terr)
	}

	got := unsafeBytesAt(frame.Address(), uint64(len(data)))
	if !bytes.Equal(got, data) {
		t.Errorf("segment contents = %v, want %v", got, data)
	}
}

func TestLoadRejectsOverlappingSegments(t *testing.T) {
	mem := newTestMemory(t)

	const vaddr = uint64(0x400000)
	data := []byte{0x90, 0x90}
	file := buildELF(t, vaddr, []testSegment{
		{Vaddr: vaddr, Data: data, Memsz: 0x2000, Flags: uint32(elf.PF_R)},
		{Vaddr: vaddr + 0x1000, Data: data, Memsz: 0x1000, Flags: uint32(elf.PF_R)},
	})

	if _, err := Load(bytes.NewReader(file), mem, make([]bootinfo.ElfSection, 1)); err == nil {
		t.Fatal("expected overlapping PT_LOAD segments to be rejected")
	}
}

func TestCountSectionsMatchesNonEmptyNamedSections(t *testing.T) {
	const vaddr = uint64(0x400000)
	data := []byte{0x90}
	file := buildELF(t, vaddr, []testSegment{{Vaddr: vaddr, Data: data, Flags: uint32(elf.PF_R | elf.PF_X)}})

	n, err := CountSections(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("CountSections: %v", err)
	}
	// .text and .shstrtab are both non-empty and named; the synthetic null
	// section is neither.
	if n != 2 {
		t.Fatalf("CountSections = %d, want 2", n)
	}
}

func TestLoadFailsOnTooFewSectionSlots(t *testing.T) {
	mem := newTestMemory(t)
	const vaddr = uint64(0x400000)
	data := []byte{0x90}
	file := buildELF(t, vaddr, []testSegment{{Vaddr: vaddr, Data: data, Flags: uint32(elf.PF_R | elf.PF_X)}})

	if _, err := Load(bytes.NewReader(file), mem, nil); err == nil {
		t.Fatal("expected Load to fail when the caller under-counted sections")
	}
}
