package bytecode

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/chazu/regvm/pkg/value"
)

// Assemble parses the textual program form produced by Disassemble.
//
//	; comment
//	.arch 64            ; optional, before the first instruction
//	.file "main.src"    ; optional, recorded in the debug info
//	main:               ; label, recorded as a function symbol
//	    LDA #Integer(5)
//	    STA $10         ; Absolute
//	    LDB $3[$4]      ; AbsoluteIndex
//	    LDC $3.1        ; AbsoluteProperty
//	    LDX @0          ; AbsoluteStatic
//	    LDY %A          ; Indirect
//	    CALL main       ; label reference, becomes #Integer(index)
//
// Listing prefixes ("0004  ") are accepted and ignored. The returned debug
// info maps every instruction to its assembler line.
func Assemble(src string, arch value.Architecture) (*Program, *DebugInfo, error) {
	a := &assembler{
		prog:   NewProgram(arch),
		debug:  &DebugInfo{},
		labels: make(map[string]uint64),
	}
	if err := a.run(src); err != nil {
		return nil, nil, err
	}
	return a.prog, a.debug, nil
}

type labelRef struct {
	instruction int
	label       string
	line        int
}

type assembler struct {
	prog   *Program
	debug  *DebugInfo
	labels map[string]uint64
	fixups []labelRef
}

func (a *assembler) run(src string) error {
	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := a.line(sc.Text(), lineNo); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			return fmt.Errorf("line %d: undefined label %q", f.line, f.label)
		}
		a.prog.Patch(f.instruction, Immediate(value.NewInt(int64(target))))
	}
	return nil
}

func (a *assembler) line(text string, lineNo int) error {
	text = strings.TrimSpace(stripComment(text))
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, ".") {
		return a.directive(text)
	}

	// Listing prefix: a leading run of digits followed by whitespace.
	if i := strings.IndexFunc(text, unicode.IsSpace); i > 0 && isDigits(text[:i]) {
		text = strings.TrimSpace(text[i:])
	}

	if name, ok := strings.CutSuffix(text, ":"); ok {
		if !isIdent(name) {
			return fmt.Errorf("invalid label %q", name)
		}
		if _, dup := a.labels[name]; dup {
			return fmt.Errorf("duplicate label %q", name)
		}
		entry := uint64(a.prog.Len())
		a.labels[name] = entry
		a.debug.AddFunction(name, entry)
		return nil
	}

	mnemonic, operand, _ := strings.Cut(text, " ")
	op, ok := LookupOpcode(strings.ToUpper(mnemonic))
	if !ok {
		return fmt.Errorf("unknown mnemonic %q", mnemonic)
	}
	operand = strings.TrimSpace(operand)

	info := GetOpcodeInfo(op)
	if info.Implicit && operand != "" {
		return fmt.Errorf("%s takes no operand", info.Name)
	}
	if !info.Implicit && operand == "" {
		return fmt.Errorf("%s requires an operand", info.Name)
	}

	idx := a.prog.Len()
	if operand != "" && isIdent(operand) {
		a.fixups = append(a.fixups, labelRef{instruction: idx, label: operand, line: lineNo})
		a.prog.Emit(op, Implicit())
	} else {
		addr, err := ParseOperand(operand, a.prog.Arch)
		if err != nil {
			return err
		}
		a.prog.Emit(op, addr)
	}
	a.debug.AddSourceLocation(uint64(idx), uint32(lineNo), 1)
	return nil
}

func (a *assembler) directive(text string) error {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ".arch":
		if a.prog.Len() > 0 {
			return fmt.Errorf(".arch must precede the first instruction")
		}
		arch, err := value.ParseArchitecture(arg)
		if err != nil {
			return err
		}
		a.prog.Arch = arch
	case ".file":
		file, err := strconv.Unquote(arg)
		if err != nil {
			file = arg
		}
		a.debug.File = file
	default:
		return fmt.Errorf("unknown directive %q", name)
	}
	return nil
}

// ParseOperand parses one operand in assembler syntax. An empty string is
// the Implicit operand.
func ParseOperand(s string, arch value.Architecture) (AddressingValue, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Implicit(), nil
	}
	switch s[0] {
	case '#':
		v, err := ParseValue(s[1:], arch)
		if err != nil {
			return AddressingValue{}, err
		}
		return Immediate(v), nil
	case '@':
		n, err := strconv.ParseUint(s[1:], 0, 64)
		if err != nil {
			return AddressingValue{}, fmt.Errorf("invalid static operand %q", s)
		}
		return AbsoluteStatic(n), nil
	case '%':
		r, ok := ParseRegister(strings.ToUpper(s[1:]))
		if !ok {
			return AddressingValue{}, fmt.Errorf("unknown register %q", s[1:])
		}
		return Indirect(r), nil
	case '$':
		return parseStackOperand(s)
	}
	return AddressingValue{}, fmt.Errorf("invalid operand %q", s)
}

func parseStackOperand(s string) (AddressingValue, error) {
	body := s[1:]
	if base, rest, ok := strings.Cut(body, "["); ok {
		idx, ok := strings.CutSuffix(rest, "]")
		if !ok || !strings.HasPrefix(idx, "$") {
			return AddressingValue{}, fmt.Errorf("invalid index operand %q", s)
		}
		ptr, err1 := strconv.ParseUint(base, 0, 64)
		index, err2 := strconv.ParseUint(idx[1:], 0, 64)
		if err1 != nil || err2 != nil {
			return AddressingValue{}, fmt.Errorf("invalid index operand %q", s)
		}
		return AbsoluteIndex(ptr, index), nil
	}
	if base, field, ok := strings.Cut(body, "."); ok {
		ptr, err1 := strconv.ParseUint(base, 0, 64)
		index, err2 := strconv.ParseUint(field, 0, 64)
		if err1 != nil || err2 != nil {
			return AddressingValue{}, fmt.Errorf("invalid property operand %q", s)
		}
		return AbsoluteProperty(ptr, index), nil
	}
	pos, err := strconv.ParseUint(body, 0, 64)
	if err != nil {
		return AddressingValue{}, fmt.Errorf("invalid stack operand %q", s)
	}
	return Absolute(pos), nil
}

// ParseValue parses a static value literal such as "Integer(5)",
// "Char('x')", "HeapReference(0x10)" or "Void". A bare number is an Integer.
func ParseValue(s string, arch value.Architecture) (value.StaticRawType, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return value.NewInt(n), nil
	}

	name, payload := s, ""
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return value.StaticRawType{}, fmt.Errorf("unterminated literal %q", s)
		}
		name, payload = s[:open], s[open+1:len(s)-1]
	}
	kind, ok := value.ParseKind(name)
	if !ok {
		return value.StaticRawType{}, fmt.Errorf("unknown kind %q", name)
	}

	bad := func(err error) (value.StaticRawType, error) {
		return value.StaticRawType{}, fmt.Errorf("invalid %s literal %q: %w", kind, payload, err)
	}

	switch kind {
	case value.Void:
		return value.VoidValue(), nil
	case value.Null:
		return value.NullValue(), nil
	case value.Integer:
		n, err := strconv.ParseInt(payload, 0, 64)
		if err != nil {
			return bad(err)
		}
		return value.NewInt(n), nil
	case value.Float:
		f, err := strconv.ParseFloat(payload, 32)
		if err != nil {
			return bad(err)
		}
		return value.NewFloat(float32(f)), nil
	case value.Double:
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return bad(err)
		}
		return value.NewDouble(f), nil
	case value.Byte:
		n, err := strconv.ParseUint(payload, 0, 8)
		if err != nil {
			return bad(err)
		}
		return value.NewByte(byte(n)), nil
	case value.Bool:
		b, err := strconv.ParseBool(payload)
		if err != nil {
			return bad(err)
		}
		return value.NewBool(b), nil
	case value.Char:
		str, err := strconv.Unquote(payload)
		if err != nil {
			return bad(err)
		}
		runes := []rune(str)
		if len(runes) != 1 {
			return bad(fmt.Errorf("want exactly one character"))
		}
		return value.NewChar(runes[0]), nil
	}

	// References and heap-only kinds carry an address or position.
	n, err := strconv.ParseUint(payload, 0, 64)
	if err != nil {
		return bad(err)
	}
	return value.NewStatic(kind, n, arch), nil
}

// stripComment drops a trailing ';' comment that is not inside quotes.
func stripComment(s string) string {
	var quote rune
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != 0:
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ';':
			return s[:i]
		}
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && (unicode.IsDigit(r) || r == '.')) {
			continue
		}
		return false
	}
	return true
}
