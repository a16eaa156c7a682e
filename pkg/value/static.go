package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PayloadSize is the fixed payload width of a StaticRawType.
const PayloadSize = 8

// StaticRawType is a register- or stack-resident value: a TypeID plus a fixed
// 8-byte little-endian payload. Kinds that do not fit (String, Array, ...)
// are held through a reference.
type StaticRawType struct {
	Type TypeID
	Data [PayloadSize]byte
}

// NewStatic builds a static value of kind k whose payload is the low bytes
// of bits. Reference kinds are truncated to the pointer width.
func NewStatic(k Kind, bits uint64, arch Architecture) StaticRawType {
	if k.IsReference() || k == Function {
		bits &= arch.MaxPointer()
	}
	n := fixedSize(k, arch)
	if k == Class {
		n = arch.PointerWidth()
	}
	s := StaticRawType{Type: TypeID{ID: k, Size: uint64(n)}}
	binary.LittleEndian.PutUint64(s.Data[:], bits)
	clear(s.Data[n:])
	return s
}

// NewInt returns an Integer value.
func NewInt(v int64) StaticRawType {
	return NewStatic(Integer, uint64(v), Arch64)
}

// NewFloat returns a Float value.
func NewFloat(v float32) StaticRawType {
	return NewStatic(Float, uint64(math.Float32bits(v)), Arch64)
}

// NewDouble returns a Double value.
func NewDouble(v float64) StaticRawType {
	return NewStatic(Double, math.Float64bits(v), Arch64)
}

// NewByte returns a Byte value.
func NewByte(v byte) StaticRawType {
	return NewStatic(Byte, uint64(v), Arch64)
}

// NewBool returns a Bool value.
func NewBool(v bool) StaticRawType {
	var bits uint64
	if v {
		bits = 1
	}
	return NewStatic(Bool, bits, Arch64)
}

// NewChar returns a Char value holding one UTF-32 code unit.
func NewChar(r rune) StaticRawType {
	return NewStatic(Char, uint64(uint32(r)), Arch64)
}

// VoidValue is the empty-slot marker.
func VoidValue() StaticRawType {
	return StaticRawType{Type: TypeID{ID: Void}}
}

// NullValue is the null reference.
func NullValue() StaticRawType {
	return StaticRawType{Type: TypeID{ID: Null}}
}

// NewStackRef returns a reference to an absolute stack position.
func NewStackRef(pos uint64, arch Architecture) StaticRawType {
	return NewStatic(StackReference, pos, arch)
}

// NewHeapRef returns a reference to a heap address.
func NewHeapRef(addr uint64, arch Architecture) StaticRawType {
	return NewStatic(HeapReference, addr, arch)
}

// Kind returns the value's kind.
func (s StaticRawType) Kind() Kind { return s.Type.ID }

// IsVoid reports whether the slot holds no value.
func (s StaticRawType) IsVoid() bool { return s.Type.ID == Void }

// Int interprets the payload as int64.
func (s StaticRawType) Int() int64 { return int64(binary.LittleEndian.Uint64(s.Data[:])) }

// Uint interprets the payload as uint64. References and addresses are read
// this way.
func (s StaticRawType) Uint() uint64 { return binary.LittleEndian.Uint64(s.Data[:]) }

// Float interprets the low four bytes as float32.
func (s StaticRawType) Float() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(s.Data[:4]))
}

// Double interprets the payload as float64.
func (s StaticRawType) Double() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(s.Data[:]))
}

// Byte returns the low payload byte.
func (s StaticRawType) Byte() byte { return s.Data[0] }

// Bool reports whether the low payload byte is non-zero.
func (s StaticRawType) Bool() bool { return s.Data[0] != 0 }

// Char interprets the low four bytes as a UTF-32 code unit.
func (s StaticRawType) Char() rune { return rune(binary.LittleEndian.Uint32(s.Data[:4])) }

// Truthy is the branch condition used by conditional jumps: zero numbers,
// false, Void and Null are false; everything else is true.
func (s StaticRawType) Truthy() bool {
	switch s.Type.ID {
	case Void, Null:
		return false
	case Float:
		return s.Float() != 0
	case Double:
		return s.Double() != 0
	case Bool, Byte:
		return s.Data[0] != 0
	case Char:
		return s.Char() != 0
	}
	return s.Uint() != 0
}

// Equal compares kind and payload bytes.
func (s StaticRawType) Equal(other StaticRawType) bool {
	return s.Type.Equal(other.Type) && s.Data == other.Data
}

// String renders the value for diagnostics, e.g. "Integer(5)".
func (s StaticRawType) String() string {
	switch s.Type.ID {
	case Integer:
		return fmt.Sprintf("Integer(%d)", s.Int())
	case Float:
		return fmt.Sprintf("Float(%g)", s.Float())
	case Double:
		return fmt.Sprintf("Double(%g)", s.Double())
	case Byte:
		return fmt.Sprintf("Byte(%d)", s.Byte())
	case Bool:
		return fmt.Sprintf("Bool(%t)", s.Bool())
	case Char:
		return fmt.Sprintf("Char(%q)", s.Char())
	case Void, Null:
		return s.Type.ID.String()
	}
	return fmt.Sprintf("%s(0x%X)", s.Type.ID, s.Uint())
}

// StaticLen returns the encoded length of a StaticRawType.
func StaticLen(arch Architecture) int {
	return TypeIDLen(arch) + PayloadSize
}

// AppendBytes appends the binary form: TypeID followed by the 8 payload bytes.
func (s StaticRawType) AppendBytes(buf []byte, arch Architecture) []byte {
	buf = s.Type.AppendBytes(buf, arch)
	return append(buf, s.Data[:]...)
}

// Bytes returns the binary form of s.
func (s StaticRawType) Bytes(arch Architecture) []byte {
	return s.AppendBytes(make([]byte, 0, StaticLen(arch)), arch)
}

// DecodeStatic reads a StaticRawType from the start of data and returns the
// number of bytes consumed.
func DecodeStatic(data []byte, arch Architecture) (StaticRawType, int, error) {
	t, n, err := DecodeTypeID(data, arch)
	if err != nil {
		return StaticRawType{}, 0, err
	}
	if len(data) < n+PayloadSize {
		return StaticRawType{}, 0, fmt.Errorf("static value too short: need %d bytes, got %d", n+PayloadSize, len(data))
	}
	s := StaticRawType{Type: t}
	copy(s.Data[:], data[n:n+PayloadSize])
	return s, n + PayloadSize, nil
}

// Widen converts s into its heap representation. The payload keeps only the
// bytes meaningful for the kind.
func (s StaticRawType) Widen(arch Architecture) RawType {
	n := int(s.Type.Size)
	if n > PayloadSize || n == 0 {
		n = fixedSize(s.Type.ID, arch)
	}
	data := make([]byte, n)
	copy(data, s.Data[:n])
	return RawType{Type: TypeID{ID: s.Type.ID, Size: uint64(n)}, Data: data}
}

// NotStorableError is returned when a value of a heap-only kind is narrowed
// into a register.
type NotStorableError struct {
	Kind Kind
}

func (e *NotStorableError) Error() string {
	return fmt.Sprintf("%s values are not register storable", e.Kind)
}

// ToRegister narrows a heap value into a static one. It succeeds only for
// register-storable kinds; the payload is truncated or zero-padded to 8
// bytes. On failure the error is a *NotStorableError naming the kind.
func ToRegister(raw RawType) (StaticRawType, error) {
	if !raw.Type.ID.RegisterStorable() {
		return StaticRawType{}, &NotStorableError{Kind: raw.Type.ID}
	}
	s := StaticRawType{Type: raw.Type}
	copy(s.Data[:], raw.Data)
	return s, nil
}
