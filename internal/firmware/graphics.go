package firmware

import "github.com/tsoutsman/uefi-bootloader/internal/bootload"

// PixelFormat mirrors EFI_GRAPHICS_PIXEL_FORMAT.
type PixelFormat uint32

const (
	PixelRGBReserved8BitPerColor PixelFormat = iota
	PixelBGRReserved8BitPerColor
	PixelBitMask
	PixelBltOnly
)

type graphicsOutputProtocol struct {
	QueryMode uintptr
	SetMode   uintptr
	Blt       uintptr
	Mode      *graphicsOutputProtocolMode
}

type graphicsOutputProtocolMode struct {
	MaxMode          uint32
	Mode             uint32
	Info             *graphicsOutputModeInformation
	SizeOfInfo       uintptr
	FrameBufferBase  uint64
	FrameBufferSize  uintptr
}

type graphicsOutputModeInformation struct {
	Version              uint32
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelFormat          PixelFormat
	PixelInformation     [4]uint32 // only meaningful when PixelFormat == PixelBitMask
	PixelsPerScanLine    uint32
}

// FrameBufferInfo is the subset of the active graphics mode the mapping
// builder and boot-info builder need: where the framebuffer lives
// physically, how big it is, and how to interpret its pixels.
type FrameBufferInfo struct {
	Address           uint64
	Size              uint64
	Width             uint32
	Height            uint32
	PixelsPerScanLine uint32
	PixelFormat       PixelFormat
}

// ErrUnsupportedPixelFormat is returned by GraphicsOutput when a Graphics
// Output Protocol instance is present but its active mode is PixelBitMask or
// PixelBltOnly. Callers must distinguish this from every other GraphicsOutput
// failure: an absent protocol means "no framebuffer, continue without one",
// while this sentinel means a framebuffer exists but the bootloader cannot
// describe it, which the spec treats as a fatal, unrecoverable condition
// rather than a reason to fall back to console-only boot.
var ErrUnsupportedPixelFormat = newErr("graphics output mode is not a linear RGB/BGR framebuffer")

// GraphicsOutput returns the active mode of the first Graphics Output
// Protocol instance the firmware exposes, or an error if the platform has
// none (e.g. a serial-only or headless board). A PixelBitMask or
// PixelBltOnly mode returns ErrUnsupportedPixelFormat: the boot-info's
// FrameBuffer record can only describe a linear RGB or BGR framebuffer,
// matching the spec's explicit Non-goal of not interpreting arbitrary
// bitmasks, and the caller must turn that case into a fatal halt rather than
// silently booting without a framebuffer.
func (f *Facade) GraphicsOutput() (FrameBufferInfo, *bootload.Error) {
	var handle uintptr
	st := f.locateProtocol(GraphicsOutputProtocolGUID, &handle)
	if st != efiSuccess {
		return FrameBufferInfo{}, newErr("no graphics output protocol available")
	}

	gop := (*graphicsOutputProtocol)(ptrFromUintptr(handle))
	mode := gop.Mode
	info := mode.Info

	switch info.PixelFormat {
	case PixelRGBReserved8BitPerColor, PixelBGRReserved8BitPerColor:
	default:
		return FrameBufferInfo{}, ErrUnsupportedPixelFormat
	}

	return FrameBufferInfo{
		Address:           mode.FrameBufferBase,
		Size:              uint64(mode.FrameBufferSize),
		Width:             info.HorizontalResolution,
		Height:            info.VerticalResolution,
		PixelsPerScanLine: info.PixelsPerScanLine,
		PixelFormat:       info.PixelFormat,
	}, nil
}
