package modules

import (
	"testing"
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootinfo"
	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/memory"
)

// testAllocator hands out frames backed by real Go-allocated memory, the
// same approach the memory package's own tests use to stand in for
// firmware-identity-mapped RAM.
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

type fakeFile struct {
	data   []byte
	closed bool
}

func (f *fakeFile) Size() (uint64, *bootload.Error) { return uint64(len(f.data)), nil }

func (f *fakeFile) ReadInto(dst []byte) *bootload.Error {
	copy(dst, f.data)
	return nil
}

func (f *fakeFile) Close() { f.closed = true }

type fakeDirectory struct {
	entries []DirEntry
	files   map[string]*fakeFile
}

func (d *fakeDirectory) Entries() ([]DirEntry, *bootload.Error) {
	return d.entries, nil
}

func (d *fakeDirectory) Open(name string) (File, *bootload.Error) {
	f, ok := d.files[name]
	if !ok {
		return nil, bootload.New("modules", "no such file: "+name)
	}
	return f, nil
}

func TestLoadPopulatesModuleRecords(t *testing.T) {
	mem := newTestMemory(t)
	dir := &fakeDirectory{
		entries: []DirEntry{{Name: "init"}, {Name: "fs"}},
		files: map[string]*fakeFile{
			"init": {data: []byte("hello init")},
			"fs":   {data: make([]byte, 5000)}, // spans more than one page
		},
	}

	out := make([]bootinfo.Module, 2)
	n, err := Load(dir, mem, out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d modules, want 2", n)
	}

	if got := string(bytes(out[0].Name[:])); got != "init" {
		t.Errorf("out[0].Name = %q, want %q", got, "init")
	}
	if out[0].Len != 10 {
		t.Errorf("out[0].Len = %d, want 10", out[0].Len)
	}
	if out[1].Len != 5000 {
		t.Errorf("out[1].Len = %d, want 5000", out[1].Len)
	}
	if !dir.files["init"].closed || !dir.files["fs"].closed {
		t.Error("expected every opened file to be closed")
	}
}

func TestLoadRejectsTooManyEntriesForOutputSlice(t *testing.T) {
	mem := newTestMemory(t)
	dir := &fakeDirectory{
		entries: []DirEntry{{Name: "a"}, {Name: "b"}},
		files:   map[string]*fakeFile{"a": {}, "b": {}},
	}

	out := make([]bootinfo.Module, 1)
	if _, err := Load(dir, mem, out); err == nil {
		t.Fatal("expected an error when there are more entries than output slots")
	}
}

func TestLoadRejectsNameExceedingCapacity(t *testing.T) {
	mem := newTestMemory(t)
	longName := ""
	for i := 0; i < 100; i++ {
		longName += "x"
	}
	dir := &fakeDirectory{
		entries: []DirEntry{{Name: longName}},
		files:   map[string]*fakeFile{longName: {data: []byte("x")}},
	}

	out := make([]bootinfo.Module, 1)
	if _, err := Load(dir, mem, out); err == nil {
		t.Fatal("expected an error for a module name exceeding the fixed capacity")
	}
}

func TestLoadWithNoEntriesSucceeds(t *testing.T) {
	mem := newTestMemory(t)
	dir := &fakeDirectory{}

	out := make([]bootinfo.Module, 4)
	n, err := Load(dir, mem, out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d modules, want 0", n)
	}
}

func bytes(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
