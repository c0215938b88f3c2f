package memory

const (
	// PageShift is log2(PageSize); used to convert between an address and
	// its containing frame/page number.
	PageShift = 12

	// PageSize is the architecture's base page size in bytes.
	PageSize = uint64(1) << PageShift
)

// Frame identifies a 4 KiB-aligned physical page. Ported from the
// teacher's Frame/Address split (gopheros/kernel/mem/pmm.Frame) but
// expressed in terms of the canonical PhysicalAddress type rather than a
// bare uintptr, since this bootloader juggles both physical and virtual
// addresses side by side far more than a single-address-space kernel does.
type Frame uint64

// FrameContaining rounds addr down to the frame that contains it.
func FrameContaining(addr PhysicalAddress) Frame {
	return Frame(addr.AlignDown(PageSize) >> PageShift)
}

// Address returns the physical address at the start of the frame.
func (f Frame) Address() PhysicalAddress {
	return PhysicalAddress(uint64(f) << PageShift)
}

// Next returns the next frame, i.e. f+1.
func (f Frame) Next() Frame { return f + 1 }

// FrameRange is a half-open, inclusive-exclusive range of contiguous
// frames: [Start, End).
type FrameRange struct {
	Start, End Frame
}

// FrameRangeForBytes returns the range of frames needed to cover size
// bytes starting at frame start, rounding size up to a page multiple.
func FrameRangeForBytes(start Frame, size uint64) FrameRange {
	count := (size + PageSize - 1) / PageSize
	return FrameRange{Start: start, End: start + Frame(count)}
}

// Len returns the number of frames in the range.
func (r FrameRange) Len() uint64 { return uint64(r.End - r.Start) }

// Page identifies a 4 KiB-aligned virtual page.
type Page uint64

// PageContaining rounds addr down to the page that contains it.
func PageContaining(addr VirtualAddress) Page {
	return Page(addr.AlignDown(PageSize) >> PageShift)
}

// Address returns the virtual address at the start of the page.
func (p Page) Address() VirtualAddress {
	return VirtualAddress(NewCanonicalVirtualAddress(uint64(p) << PageShift))
}

// Next returns the next page, i.e. p+1.
func (p Page) Next() Page { return p + 1 }

// PageRange is a half-open range of contiguous pages: [Start, End).
type PageRange struct {
	Start, End Page
}

// PageRangeForBytes returns the range of pages needed to cover size bytes
// starting at page start, rounding size up to a page multiple.
func PageRangeForBytes(start Page, size uint64) PageRange {
	count := (size + PageSize - 1) / PageSize
	return PageRange{Start: start, End: start + Page(count)}
}

// Len returns the number of pages in the range.
func (r PageRange) Len() uint64 { return uint64(r.End - r.Start) }
