package bytecode

import "sort"

// SourceLocation maps an instruction index to a source coordinate.
type SourceLocation struct {
	Instruction uint64 `cbor:"1,keyasint"`
	Line        uint32 `cbor:"2,keyasint"`
	Column      uint16 `cbor:"3,keyasint"`
}

// FunctionSymbol names the instruction at which a function begins.
type FunctionSymbol struct {
	Name  string `cbor:"1,keyasint"`
	Entry uint64 `cbor:"2,keyasint"`
}

// DebugInfo is the optional side-table produced by the front-end. The VM
// never consults it for execution; tooling uses it to name frames and
// annotate listings.
type DebugInfo struct {
	File      string           `cbor:"1,keyasint,omitempty"`
	Locations []SourceLocation `cbor:"2,keyasint,omitempty"`
	Functions []FunctionSymbol `cbor:"3,keyasint,omitempty"`
}

// AddSourceLocation records a mapping. Locations are kept ordered by
// instruction index.
func (d *DebugInfo) AddSourceLocation(instruction uint64, line uint32, column uint16) {
	loc := SourceLocation{Instruction: instruction, Line: line, Column: column}
	i := sort.Search(len(d.Locations), func(i int) bool {
		return d.Locations[i].Instruction >= instruction
	})
	if i < len(d.Locations) && d.Locations[i].Instruction == instruction {
		d.Locations[i] = loc
		return
	}
	d.Locations = append(d.Locations, SourceLocation{})
	copy(d.Locations[i+1:], d.Locations[i:])
	d.Locations[i] = loc
}

// AddFunction records a function entry point.
func (d *DebugInfo) AddFunction(name string, entry uint64) {
	d.Functions = append(d.Functions, FunctionSymbol{Name: name, Entry: entry})
	sort.SliceStable(d.Functions, func(i, j int) bool {
		return d.Functions[i].Entry < d.Functions[j].Entry
	})
}

// Lookup returns the source location for an instruction index: the nearest
// mapping at or before it. Returns line 0, column 0 if no mapping exists.
func (d *DebugInfo) Lookup(instruction uint64) (line uint32, column uint16) {
	if d == nil {
		return 0, 0
	}
	for i := len(d.Locations) - 1; i >= 0; i-- {
		if d.Locations[i].Instruction <= instruction {
			return d.Locations[i].Line, d.Locations[i].Column
		}
	}
	return 0, 0
}

// FunctionAt returns the name of the function whose entry is exactly
// instruction.
func (d *DebugInfo) FunctionAt(instruction uint64) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, f := range d.Functions {
		if f.Entry == instruction {
			return f.Name, true
		}
	}
	return "", false
}

// FunctionContaining returns the function whose entry is the closest one at
// or before instruction.
func (d *DebugInfo) FunctionContaining(instruction uint64) (string, bool) {
	if d == nil {
		return "", false
	}
	for i := len(d.Functions) - 1; i >= 0; i-- {
		if d.Functions[i].Entry <= instruction {
			return d.Functions[i].Name, true
		}
	}
	return "", false
}
