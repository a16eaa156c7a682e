// Package image defines the regvm program image: a CBOR container holding
// a serialized program together with its debug info and the heap and stack
// contents a thread starts from.
package image

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/memory"
	"github.com/chazu/regvm/pkg/value"
	"github.com/chazu/regvm/vm"
)

// Version is the image format version written by this package.
const Version = 1

// FileExtension is the conventional suffix for image files.
const FileExtension = ".rvi"

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// HeapEntry is one initial heap value, encoded with value.RawType's byte
// layout for the image's architecture.
type HeapEntry struct {
	Addr  uint64 `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// StackEntry is one initial slot of the entry frame.
type StackEntry struct {
	Offset uint64 `cbor:"1,keyasint"`
	Value  []byte `cbor:"2,keyasint"`
}

// Image is a loadable program.
type Image struct {
	Version uint16              `cbor:"1,keyasint"`
	Arch    uint8               `cbor:"2,keyasint"`
	Entry   uint64              `cbor:"3,keyasint"`
	Code    []byte              `cbor:"4,keyasint"`
	Debug   *bytecode.DebugInfo `cbor:"5,keyasint,omitempty"`
	Heap    []HeapEntry         `cbor:"6,keyasint,omitempty"`
	Stack   []StackEntry        `cbor:"7,keyasint,omitempty"`
}

// ErrUnsupportedVersion is returned when an image is newer than this
// package understands.
var ErrUnsupportedVersion = errors.New("image: unsupported version")

// New builds an image from a program and optional debug info.
func New(p *bytecode.Program, debug *bytecode.DebugInfo) (*Image, error) {
	code, err := p.Serialize()
	if err != nil {
		return nil, fmt.Errorf("image: serialize program: %w", err)
	}
	return &Image{
		Version: Version,
		Arch:    uint8(p.Arch),
		Code:    code,
		Debug:   debug,
	}, nil
}

// Architecture returns the image's target architecture.
func (img *Image) Architecture() value.Architecture {
	return value.Architecture(img.Arch)
}

// AddHeap records an initial heap value, replacing any value at addr.
func (img *Image) AddHeap(addr uint64, v value.RawType) error {
	if addr > img.Architecture().MaxPointer() {
		return fmt.Errorf("image: heap address 0x%X exceeds %s-bit range", addr, img.Architecture())
	}
	data, err := v.Bytes(img.Architecture())
	if err != nil {
		return fmt.Errorf("image: heap value at 0x%X: %w", addr, err)
	}
	for i := range img.Heap {
		if img.Heap[i].Addr == addr {
			img.Heap[i].Value = data
			return nil
		}
	}
	img.Heap = append(img.Heap, HeapEntry{Addr: addr, Value: data})
	sort.Slice(img.Heap, func(i, j int) bool { return img.Heap[i].Addr < img.Heap[j].Addr })
	return nil
}

// AddStack records an initial entry-frame slot, replacing any value at
// offset.
func (img *Image) AddStack(offset uint64, v value.StaticRawType) {
	data := v.AppendBytes(nil, img.Architecture())
	for i := range img.Stack {
		if img.Stack[i].Offset == offset {
			img.Stack[i].Value = data
			return
		}
	}
	img.Stack = append(img.Stack, StackEntry{Offset: offset, Value: data})
	sort.Slice(img.Stack, func(i, j int) bool { return img.Stack[i].Offset < img.Stack[j].Offset })
}

// Program decodes the image's program.
func (img *Image) Program() (*bytecode.Program, error) {
	p, err := bytecode.Deserialize(img.Code)
	if err != nil {
		return nil, fmt.Errorf("image: decode program: %w", err)
	}
	if p.Arch != img.Architecture() {
		return nil, fmt.Errorf("image: program is %s-bit but image is %s-bit", p.Arch, img.Architecture())
	}
	return p, nil
}

// LoadHeap decodes the image's heap entries into heap.
func (img *Image) LoadHeap(heap *memory.HeapMemory) error {
	arch := img.Architecture()
	for _, e := range img.Heap {
		v, n, err := value.DecodeRaw(e.Value, arch)
		if err != nil {
			return fmt.Errorf("image: heap entry 0x%X: %w", e.Addr, err)
		}
		if n != len(e.Value) {
			return fmt.Errorf("image: heap entry 0x%X has %d trailing bytes", e.Addr, len(e.Value)-n)
		}
		if err := heap.Set(e.Addr, v); err != nil {
			return fmt.Errorf("image: heap entry 0x%X: %w", e.Addr, err)
		}
	}
	return nil
}

// StackValues decodes the initial entry-frame slots, keyed by offset.
func (img *Image) StackValues() (map[uint64]value.StaticRawType, error) {
	arch := img.Architecture()
	out := make(map[uint64]value.StaticRawType, len(img.Stack))
	for _, e := range img.Stack {
		v, _, err := value.DecodeStatic(e.Value, arch)
		if err != nil {
			return nil, fmt.Errorf("image: stack slot %d: %w", e.Offset, err)
		}
		out[e.Offset] = v
	}
	return out, nil
}

// NewThread decodes the image into a ready thread starting at the image's
// entry point. A nil heap gets a fresh one; the image's heap entries are
// loaded into it either way. opts.Debug defaults to the image's own and
// opts.Entry is ignored.
func (img *Image) NewThread(heap *memory.HeapMemory, opts vm.Options) (*vm.Thread, error) {
	return img.NewThreadAt(heap, img.Entry, opts)
}

// NewThreadAt is NewThread with an explicit entry instruction.
func (img *Image) NewThreadAt(heap *memory.HeapMemory, entry uint64, opts vm.Options) (*vm.Thread, error) {
	p, err := img.Program()
	if err != nil {
		return nil, err
	}
	if heap == nil {
		heap = memory.NewHeapMemory(nil)
	}
	if err := img.LoadHeap(heap); err != nil {
		return nil, err
	}
	stack, err := img.StackValues()
	if err != nil {
		return nil, err
	}

	if opts.Debug == nil {
		opts.Debug = img.Debug
	}
	opts.Entry = entry
	t, err := vm.NewThread(p, heap, opts)
	if err != nil {
		return nil, err
	}
	for off, v := range stack {
		if !t.SetFrameSlot(off, v) {
			return nil, fmt.Errorf("image: stack slot %d is outside the entry frame", off)
		}
	}
	return t, nil
}

// Marshal encodes img as canonical CBOR.
func Marshal(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// Unmarshal decodes an image and checks its version.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version == 0 || img.Version > Version {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrUnsupportedVersion, img.Version, Version)
	}
	return &img, nil
}

// Load reads an image file.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return Unmarshal(data)
}

// Save writes img to path.
func Save(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return fmt.Errorf("image: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	return nil
}
