// Command uefi-bootloader is a UEFI x86_64 bootloader: a firmware-invoked
// program that prepares the machine to execute a standalone kernel, then
// hands off control with boot services terminated and a self-describing
// boot-info structure in place for the kernel to consume.
//
// Entry orchestrates the full pipeline described in each internal
// package; it owns no logic of its own beyond sequencing and error
// propagation, the same separation of concerns gopheros draws between its
// rt0-invoked Kmain and the hal/kernel packages Kmain calls into.
package main

import (
	"bytes"
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootinfo"
	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
	"github.com/tsoutsman/uefi-bootloader/internal/firmware"
	"github.com/tsoutsman/uefi-bootloader/internal/kernelimage"
	"github.com/tsoutsman/uefi-bootloader/internal/kfmt"
	"github.com/tsoutsman/uefi-bootloader/internal/mapping"
	"github.com/tsoutsman/uefi-bootloader/internal/memmap"
	"github.com/tsoutsman/uefi-bootloader/internal/memory"
	"github.com/tsoutsman/uefi-bootloader/internal/modules"
	"github.com/tsoutsman/uefi-bootloader/internal/trampoline"
)

const (
	kernelPath  = "\\EFI\\kernel.elf"
	modulesPath = "\\EFI\\modules"

	maxModules = 64
)

// Entry is the only Go symbol the platform's entry stub calls, handing
// across the (ImageHandle, SystemTable) pair the firmware passed to the
// image's own entry point. It is not expected to return on the success
// path; see package doc.
//
//go:noinline
func Entry(imageHandle, systemTableAddr uintptr) {
	fw := firmware.New(imageHandle, systemTableAddr)

	console := fw.Console()
	console.ClearScreen()
	kfmt.SetOutputSink(console)
	kfmt.Printf("uefi-bootloader starting\n")

	if err := run(fw); err != nil {
		kfmt.Panic(err)
	}

	// run only returns on success, and the success path ends inside
	// trampoline.Jump, which never returns either. Reaching here is a
	// programming-invariant violation.
	kfmt.Panic(bootload.New("main", "pipeline returned without jumping to the kernel"))
}

func run(fw *firmware.Facade) *bootload.Error {
	// 1. Graphics output and logger initialized (if available). An absent
	// protocol is optional -- boot continues without a framebuffer -- but a
	// present GOP in a Bitmask or BltOnly mode is unrecoverable: the
	// boot-info FrameBuffer record has no way to describe it, so the
	// bootloader halts rather than silently dropping graphics output.
	fbInfo, fbErr := fw.GraphicsOutput()
	if fbErr == firmware.ErrUnsupportedPixelFormat {
		kfmt.Panic(bootload.New("main", "Bitmask and BltOnly framebuffers are not supported"))
	}
	haveFramebuffer := fbErr == nil

	// 2. RSDP located.
	rsdp, rsdpErr := fw.ACPIRootTable()
	haveRSDP := rsdpErr == nil

	// 3. Memory subsystem created (no frames yet allocated).
	mem, err := memory.New(firmware.FrameAllocator{Facade: fw})
	if err != nil {
		return err
	}

	// 4. Kernel loaded (frames allocated, mapped).
	root, err := fw.RootVolume()
	if err != nil {
		return err
	}
	kernelFile, err := openPath(root, kernelPath)
	if err != nil {
		return err
	}
	kernelSize, err := kernelFile.Size()
	if err != nil {
		return err
	}
	kernelBuf := make([]byte, kernelSize)
	if err := kernelFile.ReadInto(kernelBuf); err != nil {
		return err
	}
	kernelFile.Close()

	sectionCount, err := kernelimage.CountSections(bytes.NewReader(kernelBuf))
	if err != nil {
		return err
	}

	// 5. Modules loaded.
	var moduleRecords [maxModules]bootinfo.Module
	moduleDir, dirErr := openPath(root, modulesPath)
	moduleCount := 0
	if dirErr == nil {
		n, err := modules.Load(modules.NewFirmwareDirectory(moduleDir), mem, moduleRecords[:])
		if err != nil {
			return err
		}
		moduleCount = n
	}

	// 7 (done before the kernel's segments are mapped, because
	// kernelimage.Load writes its section records straight into the
	// builder's ELF-section array): ask firmware how big the final memory
	// map buffer needs to be, which also tells us the region-array
	// capacity the boot-info allocation needs.
	mapBufSize, descriptorSize, err := fw.MemoryMapBufferSize()
	if err != nil {
		return err
	}

	builder, kernelMappings, err := bootinfo.New(mem, mapBufSize, descriptorSize, moduleCount, sectionCount)
	if err != nil {
		return err
	}

	img, err := kernelimage.Load(bytes.NewReader(kernelBuf), mem, builder.ElfSections())
	if err != nil {
		return err
	}
	copy(builder.Modules(), moduleRecords[:moduleCount])

	// 6. Mapping builder runs (stack, trampoline, framebuffer).
	trampPhys, trampLen := trampoline.Address()
	var fbPtr *firmware.FrameBufferInfo
	if haveFramebuffer {
		fbPtr = &fbInfo
	}
	mapResult, err := mapping.Build(mem, trampPhys, trampLen, fbPtr)
	if err != nil {
		return err
	}

	if haveFramebuffer {
		builder.SetFrameBuffer(fbInfo, mapResult.FrameBufferVirtual)
	}
	if haveRSDP {
		builder.SetRSDPAddress(uint64(rsdp))
	}

	// 8. Memory-map storage buffer allocated inside firmware.
	mapFrame, err := fw.AllocatePages((mapBufSize+memory.PageSize-1)/memory.PageSize, firmware.EfiLoaderData)
	if err != nil {
		return err
	}
	mapBuf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(mapFrame.Address()))), mapBufSize)

	// 9. "Exit boot services" -- after this point, no firmware call is
	// legal.
	mm, err := fw.ExitBootServices(mapBuf)
	if err != nil {
		return err
	}
	// The console sink is backed by a firmware protocol call that is no
	// longer legal past this point; clearing it means a post-exit Panic
	// (e.g. from memmap.Consolidate below) silently drops the console
	// banner instead of calling into dead firmware, per kfmt's sink
	// contract. No framebuffer-backed sink replaces it: wiring one would
	// need a pixel-level text renderer this bootloader does not have.
	kfmt.SetOutputSink(nil)

	// 10. Memory-map consolidator fills the regions array.
	if err := memmap.Consolidate(mm, builder.AppendRegion); err != nil {
		return err
	}

	// 11. Remaining boot-info fields initialized: done above (frame
	// buffer, RSDP, sections, modules) except for fields that only make
	// sense post-ExitBootServices, of which there are none in this
	// design -- step 11 is listed for fields whose correctness depends
	// on the regions array being complete, which step 10 just ensured.

	// 12. Trampoline invoked. Never returns.
	trampoline.Jump(trampoline.Context{
		PageTable:  mem.PageTable().Address(),
		StackTop:   mapResult.StackTop,
		EntryPoint: img.EntryPoint,
		BootInfo:   kernelMappings.BootInfoVirtual,
	})

	panic("unreachable")
}

func openPath(root *firmware.File, path string) (*firmware.File, *bootload.Error) {
	u16 := make([]uint16, 0, len(path)+1)
	for _, r := range path {
		u16 = append(u16, uint16(r))
	}
	u16 = append(u16, 0)
	return root.Open(u16)
}

func main() {
	// Unused in the firmware-invoked build; Entry is the real entry
	// point. main exists so this package builds as a normal Go command
	// for tooling (go vet, staticcheck) that expects one.
}
