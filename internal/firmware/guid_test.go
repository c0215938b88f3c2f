package firmware

import "testing"

func TestGUIDEqual(t *testing.T) {
	a := GUID{0x1, 0x2, 0x3, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	b := a
	if !a.Equal(b) {
		t.Fatal("expected identical GUIDs to be equal")
	}

	b.Data4[0] = 0xff
	if a.Equal(b) {
		t.Fatal("expected GUIDs differing in Data4 to be unequal")
	}

	c := a
	c.Data1++
	if a.Equal(c) {
		t.Fatal("expected GUIDs differing in Data1 to be unequal")
	}
}

func TestWellKnownGUIDsAreDistinct(t *testing.T) {
	known := []GUID{
		ACPI20TableGUID,
		ACPI10TableGUID,
		GraphicsOutputProtocolGUID,
		SimpleFileSystemProtocolGUID,
		LoadedImageProtocolGUID,
		FileInfoGUID,
	}
	for i := range known {
		for j := range known {
			if i == j {
				continue
			}
			if known[i].Equal(known[j]) {
				t.Errorf("GUIDs at index %d and %d are equal, want distinct well-known identifiers", i, j)
			}
		}
	}
}
