package value

import "fmt"

// Kind selects one of the fifteen runtime value kinds. The numeric value is
// the TypeID id byte on the wire and must stay stable.
type Kind uint8

const (
	Integer Kind = iota
	Float
	Double
	Byte
	Bool
	String
	Char
	Void
	Array
	Null
	Class
	Function
	StackReference
	HeapReference
	StaticArray

	kindCount
)

var kindNames = [kindCount]string{
	Integer:        "Integer",
	Float:          "Float",
	Double:         "Double",
	Byte:           "Byte",
	Bool:           "Bool",
	String:         "String",
	Char:           "Char",
	Void:           "Void",
	Array:          "Array",
	Null:           "Null",
	Class:          "Class",
	Function:       "Function",
	StackReference: "StackReference",
	HeapReference:  "HeapReference",
	StaticArray:    "StaticArray",
}

// String returns the kind name, e.g. "HeapReference".
func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k < kindCount
}

// ParseKind looks a kind up by name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// RegisterStorable reports whether values of this kind fit the fixed 8-byte
// register payload. String, Array, Class, Function and StaticArray must be
// reached through a reference instead.
func (k Kind) RegisterStorable() bool {
	switch k {
	case Integer, Float, Double, Byte, Bool, Char, Void, Null, StackReference, HeapReference:
		return true
	}
	return false
}

// IsReference reports whether the payload of this kind is an address.
func (k Kind) IsReference() bool {
	switch k {
	case StackReference, HeapReference, Class, StaticArray:
		return true
	}
	return false
}

// AllKinds returns every defined kind in id order.
func AllKinds() []Kind {
	kinds := make([]Kind, kindCount)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// TypeID tags a value with its kind and byte size. Size is informational:
// two TypeIDs are equal when their ids match.
type TypeID struct {
	ID   Kind
	Size uint64
}

// TypeOf returns the TypeID for a fixed-size kind on the given architecture.
// Variable-length kinds (String, Array, Class) get size 0; use the payload
// length instead.
func TypeOf(k Kind, arch Architecture) TypeID {
	return TypeID{ID: k, Size: uint64(fixedSize(k, arch))}
}

func fixedSize(k Kind, arch Architecture) int {
	switch k {
	case Integer, Double:
		return 8
	case Float, Char:
		return 4
	case Byte, Bool:
		return 1
	case Void, Null:
		return 0
	case StackReference, HeapReference, Function, StaticArray:
		return arch.PointerWidth()
	}
	return 0
}

// Equal compares ids only.
func (t TypeID) Equal(other TypeID) bool {
	return t.ID == other.ID
}

func (t TypeID) String() string {
	return fmt.Sprintf("%s(%d)", t.ID, t.Size)
}

// TypeIDLen returns the encoded length of a TypeID.
func TypeIDLen(arch Architecture) int {
	return 1 + arch.PointerWidth()
}

// AppendBytes appends the binary form: id byte followed by a pointer-width
// little-endian size. Size bits above the pointer width are dropped.
func (t TypeID) AppendBytes(buf []byte, arch Architecture) []byte {
	buf = append(buf, byte(t.ID))
	return arch.AppendPointer(buf, t.Size)
}

// Bytes returns the binary form of t.
func (t TypeID) Bytes(arch Architecture) []byte {
	return t.AppendBytes(make([]byte, 0, TypeIDLen(arch)), arch)
}

// DecodeTypeID reads a TypeID from the start of data and returns the number
// of bytes consumed.
func DecodeTypeID(data []byte, arch Architecture) (TypeID, int, error) {
	n := TypeIDLen(arch)
	if len(data) < n {
		return TypeID{}, 0, fmt.Errorf("type id too short: need %d bytes, got %d", n, len(data))
	}
	k := Kind(data[0])
	if !k.Valid() {
		return TypeID{}, 0, fmt.Errorf("unknown type id %d", data[0])
	}
	return TypeID{ID: k, Size: arch.ReadPointer(data[1:])}, n, nil
}
