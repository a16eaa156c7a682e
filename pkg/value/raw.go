package value

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// RawType is a heap-resident value with a variable-length payload.
type RawType struct {
	Type TypeID
	Data []byte
}

var (
	// ErrArrayCorrupt reports a container whose entry width or payload
	// length does not add up.
	ErrArrayCorrupt = errors.New("array size corruption")

	// ErrIndexOutOfRange reports an entry index past the container's end.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrPayloadTooLarge reports a value whose length or size does not fit
	// the architecture's pointer width.
	ErrPayloadTooLarge = errors.New("payload too large for architecture")
)

// NewString encodes s as UTF-32 little-endian code units.
func NewString(s string) RawType {
	data := make([]byte, 0, 4*len(s))
	for _, r := range s {
		data = binary.LittleEndian.AppendUint32(data, uint32(r))
	}
	return RawType{Type: TypeID{ID: String, Size: uint64(len(data))}, Data: data}
}

// NewFunction returns a Function value whose payload is the entry
// instruction index.
func NewFunction(entry uint64, arch Architecture) RawType {
	data := arch.AppendPointer(nil, entry)
	return RawType{Type: TypeID{ID: Function, Size: uint64(len(data))}, Data: data}
}

// NewArray packs entries as [entry_size][entry...], each entry being the
// binary form of a StaticRawType.
func NewArray(entries []StaticRawType, arch Architecture) RawType {
	return newContainer(Array, entries, arch)
}

// NewClass packs fields with the same layout as an array.
func NewClass(fields []StaticRawType, arch Architecture) RawType {
	return newContainer(Class, fields, arch)
}

func newContainer(k Kind, entries []StaticRawType, arch Architecture) RawType {
	width := StaticLen(arch)
	data := make([]byte, 0, arch.PointerWidth()+width*len(entries))
	data = arch.AppendPointer(data, uint64(width))
	for _, e := range entries {
		data = e.AppendBytes(data, arch)
	}
	return RawType{Type: TypeID{ID: k, Size: uint64(len(data))}, Data: data}
}

// Kind returns the value's kind.
func (r RawType) Kind() Kind { return r.Type.ID }

// IsStackStorable reports whether this kind can live in a stack slot without
// heap indirection. Strings and arrays cannot.
func (r RawType) IsStackStorable() bool {
	return r.Type.ID != String && r.Type.ID != Array
}

func (r RawType) padded() [PayloadSize]byte {
	var buf [PayloadSize]byte
	copy(buf[:], r.Data)
	return buf
}

// Int interprets the payload as int64.
func (r RawType) Int() int64 {
	b := r.padded()
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// Uint interprets the payload as an unsigned integer (zero-extended).
func (r RawType) Uint() uint64 {
	b := r.padded()
	return binary.LittleEndian.Uint64(b[:])
}

// Float interprets the payload as float32.
func (r RawType) Float() float32 {
	b := r.padded()
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:4]))
}

// Double interprets the payload as float64.
func (r RawType) Double() float64 {
	b := r.padded()
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
}

// Byte returns the first payload byte.
func (r RawType) Byte() byte {
	b := r.padded()
	return b[0]
}

// Bool reports whether the first payload byte is non-zero.
func (r RawType) Bool() bool { return r.Byte() != 0 }

// Char interprets the payload as a single UTF-32 code unit.
func (r RawType) Char() rune {
	b := r.padded()
	return rune(binary.LittleEndian.Uint32(b[:4]))
}

// Text decodes a UTF-32 payload. A trailing partial code unit is ignored.
func (r RawType) Text() string {
	var sb strings.Builder
	for i := 0; i+4 <= len(r.Data); i += 4 {
		sb.WriteRune(rune(binary.LittleEndian.Uint32(r.Data[i:])))
	}
	return sb.String()
}

// CharCount returns the number of UTF-32 code units in the payload.
func (r RawType) CharCount() int { return len(r.Data) / 4 }

// Equal compares kind and payload bytes.
func (r RawType) Equal(other RawType) bool {
	return r.Type.Equal(other.Type) && bytes.Equal(r.Data, other.Data)
}

// Clone returns a deep copy.
func (r RawType) Clone() RawType {
	return RawType{Type: r.Type, Data: bytes.Clone(r.Data)}
}

func (r RawType) String() string {
	switch r.Type.ID {
	case String:
		return fmt.Sprintf("String(%q)", r.Text())
	case Array, Class:
		return fmt.Sprintf("%s[%d bytes]", r.Type.ID, len(r.Data))
	case Function:
		return fmt.Sprintf("Function(@%d)", r.Uint())
	}
	if s, err := ToRegister(r); err == nil {
		return s.String()
	}
	return fmt.Sprintf("%s[%d bytes]", r.Type.ID, len(r.Data))
}

// AppendBytes appends the binary form: TypeID, pointer-width payload length,
// payload. It fails when the size or length exceeds arch.MaxPointer().
func (r RawType) AppendBytes(buf []byte, arch Architecture) ([]byte, error) {
	if r.Type.Size > arch.MaxPointer() {
		return buf, fmt.Errorf("%w: %s size %d exceeds %d on %s-bit", ErrPayloadTooLarge, r.Type.ID, r.Type.Size, arch.MaxPointer(), arch)
	}
	if uint64(len(r.Data)) > arch.MaxPointer() {
		return buf, fmt.Errorf("%w: %d-byte %s exceeds %d on %s-bit", ErrPayloadTooLarge, len(r.Data), r.Type.ID, arch.MaxPointer(), arch)
	}
	buf = r.Type.AppendBytes(buf, arch)
	buf = arch.AppendPointer(buf, uint64(len(r.Data)))
	return append(buf, r.Data...), nil
}

// Bytes returns the binary form of r.
func (r RawType) Bytes(arch Architecture) ([]byte, error) {
	return r.AppendBytes(make([]byte, 0, TypeIDLen(arch)+arch.PointerWidth()+len(r.Data)), arch)
}

// DecodeRaw reads a RawType from the start of data and returns the number of
// bytes consumed.
func DecodeRaw(data []byte, arch Architecture) (RawType, int, error) {
	t, pos, err := DecodeTypeID(data, arch)
	if err != nil {
		return RawType{}, 0, err
	}
	pw := arch.PointerWidth()
	if len(data) < pos+pw {
		return RawType{}, 0, fmt.Errorf("unexpected end of value reading payload length at pos %d", pos)
	}
	n := arch.ReadPointer(data[pos:])
	pos += pw
	if uint64(len(data)-pos) < n {
		return RawType{}, 0, fmt.Errorf("unexpected end of value reading payload: need %d bytes at pos %d", n, pos)
	}
	r := RawType{Type: t, Data: make([]byte, n)}
	copy(r.Data, data[pos:pos+int(n)])
	return r, pos + int(n), nil
}

// ============================================================================
// Container access (Array and Class)
// ============================================================================

// EntryWidth returns the stored entry size of an Array or Class payload.
func (r RawType) EntryWidth(arch Architecture) (int, error) {
	pw := arch.PointerWidth()
	if len(r.Data) < pw {
		return 0, fmt.Errorf("%w: missing entry size header", ErrArrayCorrupt)
	}
	width := arch.ReadPointer(r.Data)
	if width == 0 {
		return 0, fmt.Errorf("%w: zero-width entries", ErrArrayCorrupt)
	}
	if (uint64(len(r.Data)-pw))%width != 0 {
		return 0, fmt.Errorf("%w: %d payload bytes do not split into %d-byte entries", ErrArrayCorrupt, len(r.Data)-pw, width)
	}
	return int(width), nil
}

// EntryCount returns the number of packed entries.
func (r RawType) EntryCount(arch Architecture) (int, error) {
	width, err := r.EntryWidth(arch)
	if err != nil {
		return 0, err
	}
	return (len(r.Data) - arch.PointerWidth()) / width, nil
}

// Entries splits the payload into its packed entries. The returned slices
// alias r.Data.
func (r RawType) Entries(arch Architecture) ([][]byte, error) {
	width, err := r.EntryWidth(arch)
	if err != nil {
		return nil, err
	}
	body := r.Data[arch.PointerWidth():]
	entries := make([][]byte, 0, len(body)/width)
	for off := 0; off < len(body); off += width {
		entries = append(entries, body[off:off+width])
	}
	return entries, nil
}

// Entry decodes entry i as a StaticRawType.
func (r RawType) Entry(i uint64, arch Architecture) (StaticRawType, error) {
	entries, err := r.Entries(arch)
	if err != nil {
		return StaticRawType{}, err
	}
	if i >= uint64(len(entries)) {
		return StaticRawType{}, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, i, len(entries))
	}
	s, _, err := DecodeStatic(entries[i], arch)
	if err != nil {
		return StaticRawType{}, fmt.Errorf("%w: %v", ErrArrayCorrupt, err)
	}
	return s, nil
}

// SetEntry overwrites entry i in place.
func (r RawType) SetEntry(i uint64, v StaticRawType, arch Architecture) error {
	entries, err := r.Entries(arch)
	if err != nil {
		return err
	}
	if i >= uint64(len(entries)) {
		return fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, i, len(entries))
	}
	enc := v.Bytes(arch)
	if len(enc) > len(entries[i]) {
		return fmt.Errorf("%w: %d-byte value does not fit %d-byte entry", ErrArrayCorrupt, len(enc), len(entries[i]))
	}
	clear(entries[i])
	copy(entries[i], enc)
	return nil
}
