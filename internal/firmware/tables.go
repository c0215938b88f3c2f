package firmware

// The structs below overlay firmware-owned memory the same way the
// teacher's multiboot header does (multiboot/multiboot.go): every field is
// declared in the exact order and width the UEFI specification gives it,
// and the bootloader only ever receives a pointer to one of these from the
// firmware, never constructs one itself. Fields the facade has no current
// use for are still declared, under their spec name, so that later fields
// in the struct land at the correct offset; the gopls-unused warning that
// comes with that is the price of an honest overlay.

type tableHeader struct {
	Signature  uint64
	Revision   uint32
	HeaderSize uint32
	CRC32      uint32
	Reserved   uint32
}

// systemTable mirrors EFI_SYSTEM_TABLE. The firmware passes a pointer to
// one of these as the second argument to the image's entry point.
type systemTable struct {
	Hdr                  tableHeader
	FirmwareVendor       uintptr
	FirmwareRevision     uint32
	_                    uint32 // alignment padding before the next pointer field
	ConsoleInHandle      uintptr
	ConIn                uintptr
	ConsoleOutHandle     uintptr
	ConOut               *simpleTextOutputProtocol
	StandardErrorHandle  uintptr
	StdErr               uintptr
	RuntimeServices      uintptr
	BootServices         *bootServices
	NumberOfTableEntries uintptr
	ConfigurationTable   *configurationTableEntry
}

// simpleTextOutputProtocol mirrors EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL. Field
// order is the vtable order the spec defines; only Reset, OutputString and
// ClearScreen are ever invoked.
type simpleTextOutputProtocol struct {
	Reset          uintptr
	OutputString   uintptr
	TestString     uintptr
	QueryMode      uintptr
	SetMode        uintptr
	SetAttribute   uintptr
	ClearScreen    uintptr
	SetCursorPos   uintptr
	EnableCursor   uintptr
	Mode           uintptr
}

// bootServices mirrors EFI_BOOT_SERVICES in full spec order. Only a
// handful of the thirty-odd entries are ever called through, but every
// slot before the last one used must be present for offsets to line up.
type bootServices struct {
	Hdr tableHeader

	RaiseTPL   uintptr
	RestoreTPL uintptr

	AllocatePages uintptr
	FreePages     uintptr
	GetMemoryMap  uintptr
	AllocatePool  uintptr
	FreePool      uintptr

	CreateEvent  uintptr
	SetTimer     uintptr
	WaitForEvent uintptr
	SignalEvent  uintptr
	CloseEvent   uintptr
	CheckEvent   uintptr

	InstallProtocolInterface   uintptr
	ReinstallProtocolInterface uintptr
	UninstallProtocolInterface uintptr
	HandleProtocol             uintptr
	Reserved                   uintptr
	RegisterProtocolNotify     uintptr
	LocateHandle               uintptr
	LocateDevicePath           uintptr
	InstallConfigurationTable  uintptr

	LoadImage         uintptr
	StartImage        uintptr
	Exit              uintptr
	UnloadImage       uintptr
	ExitBootServices  uintptr

	GetNextMonotonicCount uintptr
	Stall                 uintptr
	SetWatchdogTimer      uintptr

	ConnectController    uintptr
	DisconnectController uintptr

	OpenProtocol            uintptr
	CloseProtocol           uintptr
	OpenProtocolInformation uintptr

	ProtocolsPerHandle  uintptr
	LocateHandleBuffer  uintptr
	LocateProtocol      uintptr

	InstallMultipleProtocolInterfaces   uintptr
	UninstallMultipleProtocolInterfaces uintptr

	CalculateCrc32 uintptr

	CopyMem uintptr
	SetMem  uintptr

	CreateEventEx uintptr
}

// configurationTableEntry mirrors one element of the EFI_SYSTEM_TABLE's
// ConfigurationTable array (EFI_CONFIGURATION_TABLE).
type configurationTableEntry struct {
	VendorGUID  GUID
	VendorTable uintptr
}

// allocateType values for AllocatePages. The bootloader only ever needs
// AllocateAnyPages: it has no reason to demand a specific physical
// address.
const (
	allocateAnyPages uint32 = iota
	allocateMaxAddress
	allocateAddress
)
