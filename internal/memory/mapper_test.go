package memory

import (
	"testing"
	"unsafe"

	"github.com/tsoutsman/uefi-bootloader/internal/bootload"
)

// testAllocator hands out frames backed by real Go-allocated memory,
// standing in for firmware's identity-mapped RAM the way the teacher's
// vmm tests stand in for physical pages with plain byte slices.
type testAllocator struct {
	pages [][]byte
}

func (a *testAllocator) AllocateFrames(count uint64) (FrameRange, *bootload.Error) {
	buf := make([]byte, (count+1)*PageSize)
	// Align the backing buffer up to a page boundary so FrameContaining
	// round-trips exactly.
	base := (uintptr(unsafe.Pointer(&buf[0])) + uintptr(PageSize) - 1) &^ (uintptr(PageSize) - 1)
	a.pages = append(a.pages, buf)

	start := FrameContaining(PhysicalAddress(base))
	return FrameRange{Start: start, End: start + Frame(count)}, nil
}

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m, err := New(&testAllocator{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestMapThenTranslateRoundTrips(t *testing.T) {
	m := newTestMemory(t)

	frame, err := m.AllocateFrame()
	if err != nil {
		t.Fatalf("AllocateFrame: %v", err)
	}

	page := PageContaining(m.GetFreeAddress(PageSize))
	if err := m.Map(page, frame, FlagPresent|FlagWritable); err != nil {
		t.Fatalf("Map: %v", err)
	}

	got, err := m.Translate(page.Address())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != frame {
		t.Errorf("Translate returned frame %d, want %d", got, frame)
	}
}

func TestTranslateUnmappedFails(t *testing.T) {
	m := newTestMemory(t)
	if _, err := m.Translate(m.GetFreeAddress(PageSize)); err == nil {
		t.Fatal("expected Translate of an unmapped address to fail")
	}
}

func TestMapRejectsRemap(t *testing.T) {
	m := newTestMemory(t)

	frameA, _ := m.AllocateFrame()
	frameB, _ := m.AllocateFrame()
	page := PageContaining(m.GetFreeAddress(PageSize))

	if err := m.Map(page, frameA, FlagPresent); err != nil {
		t.Fatalf("first Map: %v", err)
	}
	if err := m.Map(page, frameB, FlagPresent); err == nil {
		t.Fatal("expected remapping a page to a different frame to fail")
	}
	// Remapping to the same frame with different flags is idempotent,
	// not a remap, so it must succeed.
	if err := m.Map(page, frameA, FlagPresent|FlagWritable); err != nil {
		t.Fatalf("remapping to the same frame should succeed: %v", err)
	}
}

func TestGetFreeAddressReturnsDisjointRanges(t *testing.T) {
	m := newTestMemory(t)

	a := m.GetFreeAddress(PageSize)
	b := m.GetFreeAddress(2 * PageSize)
	c := m.GetFreeAddress(PageSize)

	if a == b || b == c || a == c {
		t.Fatalf("expected disjoint addresses, got %#x %#x %#x", a, b, c)
	}
	if b < a+VirtualAddress(PageSize) {
		t.Errorf("GetFreeAddress(%d) did not reserve enough room after a", PageSize)
	}
	if c < b+VirtualAddress(2*PageSize) {
		t.Errorf("GetFreeAddress did not reserve enough room after b")
	}
}

func TestMapAcrossMultipleLevelsAllocatesIntermediateTables(t *testing.T) {
	m := newTestMemory(t)

	// Two pages far enough apart to require distinct PDPT/PD entries.
	lowPage := PageContaining(KernelAddressSpaceBase)
	highPage := PageContaining(KernelAddressSpaceBase + VirtualAddress(1)<<40)

	fLow, _ := m.AllocateFrame()
	fHigh, _ := m.AllocateFrame()

	if err := m.Map(lowPage, fLow, FlagPresent); err != nil {
		t.Fatalf("Map low: %v", err)
	}
	if err := m.Map(highPage, fHigh, FlagPresent); err != nil {
		t.Fatalf("Map high: %v", err)
	}

	gotLow, err := m.Translate(lowPage.Address())
	if err != nil || gotLow != fLow {
		t.Errorf("Translate(low) = %v, %v; want %v, nil", gotLow, err, fLow)
	}
	gotHigh, err := m.Translate(highPage.Address())
	if err != nil || gotHigh != fHigh {
		t.Errorf("Translate(high) = %v, %v; want %v, nil", gotHigh, err, fHigh)
	}
}
