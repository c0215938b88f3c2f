package firmware

// efiCall invokes an EFI protocol method (or boot service) at fn using the
// Microsoft x64 calling convention, regardless of how many of the six
// argument slots the target actually uses; unused trailing slots are
// passed as zero. See call_amd64.s.
func efiCall(fn uintptr, a1, a2, a3, a4, a5, a6 uintptr) uintptr
