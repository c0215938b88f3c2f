package memory

import "testing"

func TestNewCanonicalVirtualAddressSignExtends(t *testing.T) {
	specs := []struct {
		name string
		in   uint64
		want VirtualAddress
	}{
		{"zero", 0, 0},
		{"low half untouched", 0x0000_1234_5678_9000, 0x0000_1234_5678_9000},
		{"bit 47 set sign-extends", 0x0000_8000_0000_0000, 0xffff_8000_0000_0000},
		{"already canonical high address", 0xffff_ffff_ffff_f000, 0xffff_ffff_ffff_f000},
	}

	for _, s := range specs {
		t.Run(s.name, func(t *testing.T) {
			if got := NewCanonicalVirtualAddress(s.in); got != s.want {
				t.Errorf("NewCanonicalVirtualAddress(%#x) = %#x, want %#x", s.in, got, s.want)
			}
		})
	}
}

func TestNewVirtualAddressRejectsNonCanonical(t *testing.T) {
	if _, err := NewVirtualAddress(0x0001_0000_0000_0000); err == nil {
		t.Fatal("expected a non-canonical address to be rejected")
	}

	addr, err := NewVirtualAddress(0xffff_8000_0000_1000)
	if err != nil {
		t.Fatalf("unexpected error for a canonical address: %v", err)
	}
	if addr != 0xffff_8000_0000_1000 {
		t.Errorf("got %#x, want 0xffff_8000_0000_1000", addr)
	}
}

func TestPhysicalAddressRejectsOverWidth(t *testing.T) {
	if _, err := NewPhysicalAddress(uint64(1) << 52); err == nil {
		t.Fatal("expected an address beyond the implemented physical width to be rejected")
	}
}

func TestVirtualAddressAlignDown(t *testing.T) {
	addr := VirtualAddress(0xffff_8000_0000_1fff)
	if got := addr.AlignDown(PageSize); got != 0xffff_8000_0000_1000 {
		t.Errorf("AlignDown = %#x, want 0xffff_8000_0000_1000", got)
	}
}
