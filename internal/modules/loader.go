// Package modules enumerates and loads the optional boot-module
// directory, following the same per-file frame allocation approach as the
// kernel loader. Module images are not mapped into the kernel's address
// space; each is described by its physical start and length only.
package modules

import (
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootinfo"
	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/firmware"
	"github.com/tsoutsman/uefi-bootloader/internal/memory"
)

func newErr(message string) *bootload.Error {
	return bootload.New("modules", message)
}

// Directory lists and reads the files under a module directory. It is
// satisfied in production by the firmwareDirectory wrapper around a
// *firmware.File (see NewFirmwareDirectory) and by a fake in tests,
// mirroring the teacher's function-variable dependency-injection idiom
// used throughout gopheros' mem/vmm and mem/pmm test suites.
type Directory interface {
	Entries() ([]DirEntry, *bootload.Error)
	Open(name string) (File, *bootload.Error)
}

// DirEntry is one file's name as reported by directory enumeration, in
// enumeration order.
type DirEntry struct {
	Name string
}

// File is the subset of an open file handle a module load needs.
type File interface {
	Size() (uint64, *bootload.Error)
	ReadInto(dst []byte) *bootload.Error
	Close()
}

// Load enumerates dir in its natural order and loads every entry into a
// freshly allocated, contiguous, page-aligned physical range, recording a
// bootinfo.Module for each. A name longer than the fixed module-name
// capacity is a fatal error rather than a silent truncation, per the
// spec's "excess is an error" rule.
//
// Missing module directory is not an error at this layer: the caller (the
// orchestrator) treats a nil Directory as "zero modules" before ever
// calling Load, since the directory itself is one of the spec's three
// explicitly optional resources.
func Load(dir Directory, mem *memory.Memory, out []bootinfo.Module) (int, *bootload.Error) {
	entries, err := dir.Entries()
	if err != nil {
		return 0, err
	}
	if len(entries) > len(out) {
		return 0, newErr("module directory has more entries than were counted")
	}

	for i, e := range entries {
		f, err := dir.Open(e.Name)
		if err != nil {
			return 0, err
		}

		size, err := f.Size()
		if err != nil {
			f.Close()
			return 0, err
		}

		frameCount := (size + memory.PageSize - 1) / memory.PageSize
		frames, err := mem.AllocateFrames(frameCount)
		if err != nil {
			f.Close()
			return 0, err
		}

		dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(frames.Start.Address()))), frameCount*memory.PageSize)
		if err := f.ReadInto(dst[:size]); err != nil {
			f.Close()
			return 0, err
		}
		f.Close()

		var rec bootinfo.Module
		if len(e.Name) > len(rec.Name) {
			return 0, newErr("module name exceeds the fixed name capacity: " + e.Name)
		}
		copy(rec.Name[:], e.Name)
		rec.Start = uint64(frames.Start.Address())
		rec.Len = size

		out[i] = rec
	}

	return len(entries), nil
}

// firmwareDirectory adapts firmware.File (the root-volume handle) to
// Directory for a specific subdirectory. UEFI's Simple File System
// protocol has no readdir primitive beyond Read()-ing EFI_FILE_INFO
// records from a directory handle in succession; that iteration lives in
// firmware.File.ReadDirectoryEntries, and this adapter only drops the "."
// and ".." entries and opens files by name.
type firmwareDirectory struct {
	handle *firmware.File
}

// NewFirmwareDirectory wraps an already-opened directory handle.
func NewFirmwareDirectory(handle *firmware.File) Directory {
	return firmwareDirectory{handle: handle}
}

func (d firmwareDirectory) Entries() ([]DirEntry, *bootload.Error) {
	names, err := d.handle.ReadDirectoryEntries()
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(names))
	for _, n := range names {
		if n == "." || n == ".." {
			continue
		}
		entries = append(entries, DirEntry{Name: n})
	}
	return entries, nil
}

func (d firmwareDirectory) Open(name string) (File, *bootload.Error) {
	path := make([]uint16, 0, len(name)+1)
	for _, r := range name {
		path = append(path, uint16(r))
	}
	path = append(path, 0)

	f, err := d.handle.Open(path)
	if err != nil {
		return nil, err
	}
	return firmwareFile{f}, nil
}

type firmwareFile struct {
	f *firmware.File
}

func (f firmwareFile) Size() (uint64, *bootload.Error)         { return f.f.Size() }
func (f firmwareFile) ReadInto(dst []byte) *bootload.Error     { return f.f.ReadInto(dst) }
func (f firmwareFile) Close()                                  { f.f.Close() }
