package value

import (
	"encoding/binary"
	"fmt"
)

// Architecture is the target platform's pointer width. It is fixed for the
// lifetime of a loaded program and drives every size computation: TypeID
// headers, array entry headers and reference payloads.
type Architecture uint8

const (
	Arch64 Architecture = iota
	Arch32
	Arch16
)

// PointerWidth returns the width of a pointer in bytes.
func (a Architecture) PointerWidth() int {
	switch a {
	case Arch16:
		return 2
	case Arch32:
		return 4
	default:
		return 8
	}
}

// MaxPointer returns the largest address representable on this architecture.
func (a Architecture) MaxPointer() uint64 {
	switch a {
	case Arch16:
		return 0xFFFF
	case Arch32:
		return 0xFFFFFFFF
	default:
		return ^uint64(0)
	}
}

// String returns "16", "32" or "64".
func (a Architecture) String() string {
	switch a {
	case Arch16:
		return "16"
	case Arch32:
		return "32"
	case Arch64:
		return "64"
	default:
		return fmt.Sprintf("Architecture(%d)", uint8(a))
	}
}

// ParseArchitecture parses "16", "32" or "64" (a "bit" suffix is accepted).
func ParseArchitecture(s string) (Architecture, error) {
	switch s {
	case "16", "16bit", "16-bit":
		return Arch16, nil
	case "32", "32bit", "32-bit":
		return Arch32, nil
	case "64", "64bit", "64-bit", "":
		return Arch64, nil
	}
	return Arch64, fmt.Errorf("unknown architecture %q: want 16, 32 or 64", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Architecture) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Architecture) UnmarshalText(text []byte) error {
	parsed, err := ParseArchitecture(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AppendPointer appends v as a little-endian pointer-width unsigned integer.
// Bits above the pointer width are dropped.
func (a Architecture) AppendPointer(buf []byte, v uint64) []byte {
	switch a.PointerWidth() {
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(buf, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(buf, v)
	}
}

// ReadPointer decodes a pointer-width unsigned integer from the start of data.
// The caller guarantees len(data) >= PointerWidth().
func (a Architecture) ReadPointer(data []byte) uint64 {
	switch a.PointerWidth() {
	case 2:
		return uint64(binary.LittleEndian.Uint16(data))
	case 4:
		return uint64(binary.LittleEndian.Uint32(data))
	default:
		return binary.LittleEndian.Uint64(data)
	}
}
