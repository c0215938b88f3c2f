package firmware

import (
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
)

type simpleFileSystemProtocol struct {
	Revision   uint64
	OpenVolume uintptr
}

type fileProtocol struct {
	Revision    uint64
	Open        uintptr
	Close       uintptr
	Delete      uintptr
	Read        uintptr
	Write       uintptr
	GetPosition uintptr
	SetPosition uintptr
	GetInfo     uintptr
}

const fileModeRead uint64 = 1

// fileInfo mirrors EFI_FILE_INFO's fixed-size prefix; the variable-length
// FileName field that follows it is read separately.
type fileInfo struct {
	Size             uint64
	FileSize         uint64
	PhysicalSize     uint64
	CreateTime       [16]byte
	LastAccessTime   [16]byte
	ModificationTime [16]byte
	Attribute        uint64
}

// File is an open handle on the boot volume, returned by OpenVolume/Open.
type File struct {
	facade *Facade
	proto  *fileProtocol
}

// RootVolume opens the root directory of the first Simple File System
// protocol instance LocateProtocol returns. It does not consult the
// Loaded Image protocol, so on a machine with several volumes this is not
// necessarily the volume the bootloader image itself was loaded from.
func (f *Facade) RootVolume() (*File, *bootload.Error) {
	var handle uintptr
	st := f.locateProtocol(SimpleFileSystemProtocolGUID, &handle)
	if st != efiSuccess {
		return nil, newErr("no simple file system protocol available")
	}
	fs := (*simpleFileSystemProtocol)(ptrFromUintptr(handle))

	var root uintptr
	st = status(efiCall(fs.OpenVolume, uintptr(unsafe.Pointer(fs)), uintptr(unsafe.Pointer(&root)), 0, 0, 0, 0))
	if st != efiSuccess {
		return nil, newErr("OpenVolume failed")
	}

	return &File{facade: f, proto: (*fileProtocol)(ptrFromUintptr(root))}, nil
}

// Open opens path (UCS-2, '\\'-separated, relative to this file's
// directory) for reading.
func (d *File) Open(path []uint16) (*File, *bootload.Error) {
	var child uintptr
	st := status(efiCall(d.proto.Open,
		uintptr(unsafe.Pointer(d.proto)),
		uintptr(unsafe.Pointer(&child)),
		uintptr(unsafe.Pointer(&path[0])),
		uintptr(fileModeRead),
		0, 0,
	))
	if st != efiSuccess {
		return nil, newErr("Open failed")
	}
	return &File{facade: d.facade, proto: (*fileProtocol)(ptrFromUintptr(child))}, nil
}

// Size returns the file's byte length via GetInfo(EFI_FILE_INFO_GUID).
func (d *File) Size() (uint64, *bootload.Error) {
	var buf [512]byte
	size := uintptr(len(buf))
	guid := FileInfoGUID

	st := status(efiCall(d.proto.GetInfo,
		uintptr(unsafe.Pointer(d.proto)),
		uintptr(unsafe.Pointer(&guid)),
		uintptr(unsafe.Pointer(&size)),
		uintptr(unsafe.Pointer(&buf[0])),
		0, 0,
	))
	if st != efiSuccess {
		return 0, newErr("GetInfo failed")
	}

	info := (*fileInfo)(unsafe.Pointer(&buf[0]))
	return info.FileSize, nil
}

// ReadInto reads the file's entire contents into dst, which must be at
// least as large as Size(). The module loader passes freshly allocated
// frames, so module images land directly in their final physical home;
// the kernel image is read into an ordinary buffer that the kernel loader
// parses and copies its load segments out of.
func (d *File) ReadInto(dst []byte) *bootload.Error {
	size := uintptr(len(dst))
	st := status(efiCall(d.proto.Read,
		uintptr(unsafe.Pointer(d.proto)),
		uintptr(unsafe.Pointer(&size)),
		uintptr(unsafe.Pointer(&dst[0])),
		0, 0, 0,
	))
	if st != efiSuccess {
		return newErr("Read failed")
	}
	return nil
}

// Close releases the file handle.
func (d *File) Close() {
	efiCall(d.proto.Close, uintptr(unsafe.Pointer(d.proto)), 0, 0, 0, 0, 0)
}

// ReadDirectoryEntries returns the base names of every entry in the
// directory d, in the order the firmware reports them. A directory handle
// has no separate readdir call in UEFI: repeatedly calling Read() on it
// yields one EFI_FILE_INFO record per entry until a read reports zero
// bytes.
func (d *File) ReadDirectoryEntries() ([]string, *bootload.Error) {
	var names []string
	var buf [1024]byte

	for {
		size := uintptr(len(buf))
		st := status(efiCall(d.proto.Read,
			uintptr(unsafe.Pointer(d.proto)),
			uintptr(unsafe.Pointer(&size)),
			uintptr(unsafe.Pointer(&buf[0])),
			0, 0, 0,
		))
		if st != efiSuccess {
			return nil, newErr("directory Read failed")
		}
		if size == 0 {
			return names, nil
		}

		info := (*fileInfo)(unsafe.Pointer(&buf[0]))
		nameBytes := buf[unsafe.Sizeof(*info):size]
		names = append(names, utf16BytesToString(nameBytes))
	}
}

// utf16BytesToString decodes a null-terminated, little-endian UCS-2
// string as returned in EFI_FILE_INFO.FileName.
func utf16BytesToString(b []byte) string {
	var runes []rune
	for i := 0; i+1 < len(b); i += 2 {
		u := uint16(b[i]) | uint16(b[i+1])<<8
		if u == 0 {
			break
		}
		runes = append(runes, rune(u))
	}
	return string(runes)
}
