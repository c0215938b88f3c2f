package firmware

import "unsafe"

// ConsoleWriter adapts the firmware's UEFI text console to io.Writer so it
// can be installed as a kfmt output sink before any other console exists,
// matching the teacher's pattern of wiring kfmt to whatever the earliest
// available sink is (gopheros brings up an 80x25 VGA text sink the same
// way).
type ConsoleWriter struct {
	facade *Facade
}

// Console returns a writer over the firmware's standard output console.
func (f *Facade) Console() *ConsoleWriter {
	return &ConsoleWriter{facade: f}
}

// ClearScreen blanks the console and resets the cursor to (0, 0).
func (c *ConsoleWriter) ClearScreen() {
	efiCall(c.facade.st.ConOut.ClearScreen, uintptr(unsafe.Pointer(c.facade.st.ConOut)), 0, 0, 0, 0, 0)
}

// Write implements io.Writer by widening each byte of p to one UTF-16 code
// unit of the null-terminated string OutputString expects, translating
// '\n' to the "\r\n" the UEFI console requires. This is exact for ASCII;
// multi-byte UTF-8 sequences are not decoded. Buffers are bounded and fixed-size
// because this runs long before any allocator exists; console lines
// longer than the buffer are written in chunks.
func (c *ConsoleWriter) Write(p []byte) (int, error) {
	var buf [256]uint16
	written := 0

	flush := func(n int) {
		if n == 0 {
			return
		}
		buf[n] = 0
		efiCall(c.facade.st.ConOut.OutputString,
			uintptr(unsafe.Pointer(c.facade.st.ConOut)),
			uintptr(unsafe.Pointer(&buf[0])),
			0, 0, 0, 0,
		)
	}

	n := 0
	for _, b := range p {
		if n >= len(buf)-2 {
			flush(n)
			n = 0
		}
		if b == '\n' {
			buf[n] = '\r'
			n++
		}
		buf[n] = uint16(b)
		n++
		written++
	}
	flush(n)

	return written, nil
}
