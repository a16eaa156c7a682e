package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// NativeFunc is a host function reachable through CALLN. It reads its
// arguments from registers or the auxiliary stack and leaves its result in
// A. Returning a *ThreadPanic propagates it unchanged; any other error
// becomes a NativeFailure panic.
type NativeFunc func(m *Machine) error

// Native is a registered host function.
type Native struct {
	ID   int64
	Name string
	Fn   NativeFunc
}

// NativeTable maps ids to host functions. It may be shared between threads.
type NativeTable struct {
	mu      sync.RWMutex
	natives map[int64]Native
}

// Built-in native ids.
const (
	NativePrint   int64 = 0
	NativePrintln int64 = 1
	NativeAssert  int64 = 2
	NativeAuxLen  int64 = 3
)

// ErrAssertion is returned by the assert native when A is falsy.
var ErrAssertion = errors.New("assertion failed")

// NewNativeTable returns an empty table.
func NewNativeTable() *NativeTable {
	return &NativeTable{natives: make(map[int64]Native)}
}

// DefaultNatives returns a table holding the built-ins.
func DefaultNatives() *NativeTable {
	t := NewNativeTable()
	t.Register(NativePrint, "print", func(m *Machine) error {
		s, err := m.text(m.Regs.Get(bytecode.RegA))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(m.Output, s)
		return err
	})
	t.Register(NativePrintln, "println", func(m *Machine) error {
		s, err := m.text(m.Regs.Get(bytecode.RegA))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(m.Output, s)
		return err
	})
	t.Register(NativeAssert, "assert", func(m *Machine) error {
		if !m.Regs.Get(bytecode.RegA).Truthy() {
			return ErrAssertion
		}
		return nil
	})
	t.Register(NativeAuxLen, "aux_len", func(m *Machine) error {
		m.Regs.Set(bytecode.RegA, value.NewInt(int64(len(m.Aux))))
		return nil
	})
	return t
}

// Register adds or replaces a native function.
func (t *NativeTable) Register(id int64, name string, fn NativeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.natives[id] = Native{ID: id, Name: name, Fn: fn}
}

// Lookup finds a native by id.
func (t *NativeTable) Lookup(id int64) (Native, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.natives[id]
	return n, ok
}

// All returns the registered natives ordered by id.
func (t *NativeTable) All() []Native {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Native, 0, len(t.natives))
	for _, n := range t.natives {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
