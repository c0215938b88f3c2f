package memory

import "github.com/tsoutsman/uefi-bootloader/internal/bootload"

const (
	// physicalAddressBits is the number of bits implemented by current
	// x86_64 hardware for a physical address (bits 52-63 must be zero).
	physicalAddressBits = 52
	maxPhysicalAddress  = uint64(1)<<physicalAddressBits - 1

	// signExtendBit is the virtual-address bit whose value must be
	// replicated into every bit above it for the address to be canonical.
	signExtendBit = 47
)

// PhysicalAddress is a 64-bit physical memory address. It is
// address-space independent: the same PhysicalAddress value is valid
// whether read through the firmware's identity mapping or the kernel's
// own page tables.
type PhysicalAddress uint64

// NewPhysicalAddress validates that addr does not set any of the bits
// above the architecture's implemented physical address width.
func NewPhysicalAddress(addr uint64) (PhysicalAddress, *bootload.Error) {
	if addr > maxPhysicalAddress {
		return 0, bootload.New("memory", "physical address exceeds the architecture's implemented width")
	}
	return PhysicalAddress(addr), nil
}

// Uint64 returns the raw address value.
func (a PhysicalAddress) Uint64() uint64 { return uint64(a) }

// Add returns a+offset, failing if the result would exceed the
// implemented physical address width.
func (a PhysicalAddress) Add(offset uint64) (PhysicalAddress, *bootload.Error) {
	return NewPhysicalAddress(uint64(a) + offset)
}

// AlignDown rounds a down to the nearest multiple of align, which must be
// a power of two.
func (a PhysicalAddress) AlignDown(align uint64) PhysicalAddress {
	return PhysicalAddress(uint64(a) &^ (align - 1))
}

// VirtualAddress is a 64-bit x86_64 virtual address. Valid values are
// canonical: bits 63 down to 47 all equal bit 47.
type VirtualAddress uint64

// NewVirtualAddress validates that addr is already in canonical form,
// rather than silently correcting it. Used when the address originates
// from a source (e.g. an ELF section header) that must already be
// well-formed.
func NewVirtualAddress(addr uint64) (VirtualAddress, *bootload.Error) {
	if !isCanonical(addr) {
		return 0, bootload.New("memory", "virtual address is not in canonical form")
	}
	return VirtualAddress(addr), nil
}

// NewCanonicalVirtualAddress sign-extends bit 47 of addr into the upper
// bits, producing a canonical address from an arbitrary 48-bit value (for
// example a bump-allocator cursor that never sets bit 47 itself).
func NewCanonicalVirtualAddress(addr uint64) VirtualAddress {
	const mask = uint64(1)<<(signExtendBit+1) - 1
	addr &= mask
	if addr&(1<<signExtendBit) != 0 {
		addr |= ^mask
	}
	return VirtualAddress(addr)
}

func isCanonical(addr uint64) bool {
	return NewCanonicalVirtualAddress(addr) == VirtualAddress(addr)
}

// Uint64 returns the raw address value.
func (a VirtualAddress) Uint64() uint64 { return uint64(a) }

// Add returns a+offset, failing if the result is no longer canonical.
func (a VirtualAddress) Add(offset uint64) (VirtualAddress, *bootload.Error) {
	return NewVirtualAddress(uint64(a) + offset)
}

// AlignDown rounds a down to the nearest multiple of align, which must be
// a power of two.
func (a VirtualAddress) AlignDown(align uint64) VirtualAddress {
	return VirtualAddress(uint64(a) &^ (align - 1))
}
