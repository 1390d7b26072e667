package lasm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"unlua/internal/chunk"
	"unlua/internal/disasm"
	"unlua/internal/luafmt"
	"unlua/internal/opcodes"
)

// SyntaxError is a LASM parse failure at a 1-based line.
type SyntaxError struct {
	Line int
	Msg  string
	Err  error // underlying taxonomy error, ErrMalformedChunk when nil
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("lasm: line %d: %s", e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return luafmt.ErrMalformedChunk
}

// Parser reads LASM text into a listing.
type Parser struct {
	// Header replaces the header block of the text when set. Without it the
	// text must carry at least .version.
	Header  *chunk.Header
	Options luafmt.Options
}

// Parse reads LASM text using the header block of the text.
func Parse(r io.Reader) (*disasm.Listing, error) {
	return Parser{}.Parse(r)
}

type pendingInst struct {
	line int
	pc   int
	toks []string
}

type parseFunc struct {
	f        *disasm.Func
	start    int
	insts    []pendingInst
	lines    []int64
	curLine  int64
	sawLines bool // every instruction carries the current .line
}

type parser struct {
	opts     Parser
	line     int
	h        chunk.Header
	seen     map[string]bool
	upCount  byte
	table    *opcodes.Table
	stack    []*parseFunc
	main     *disasm.Func
	maxDepth int
	inHeader bool
}

// Parse reads LASM text from r. Errors are *SyntaxError values naming the
// offending line.
func (p Parser) Parse(r io.Reader) (*disasm.Listing, error) {
	ps := &parser{opts: p, seen: map[string]bool{}, maxDepth: p.Options.EffectiveMaxDepth(), inHeader: true}
	br := bufio.NewReader(r)
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			ps.line++
			if perr := ps.parseLine(text); perr != nil {
				return nil, perr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lasm: read: %w", err)
		}
	}
	if len(ps.stack) > 0 {
		pf := ps.stack[len(ps.stack)-1]
		return nil, ps.errorf("unterminated .function %s opened at line %d", pf.f.Name, pf.start)
	}
	if ps.main == nil {
		return nil, ps.errorf("no .function block")
	}
	h := ps.h
	if p.Header != nil {
		h = *p.Header
	}
	return &disasm.Listing{Header: h, UpvalueCount: ps.upCount, Table: ps.table, Main: ps.main}, nil
}

func (ps *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: ps.line, Msg: fmt.Sprintf(format, args...)}
}

func (ps *parser) wrap(err error, format string, args ...any) error {
	return &SyntaxError{Line: ps.line, Msg: fmt.Sprintf(format, args...) + ": " + err.Error(), Err: err}
}

// tokenize splits a line into tokens. Quoted strings are single tokens and
// ';' starts a comment outside quotes.
func tokenize(line string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == ';':
			return toks, nil
		case c == '"':
			q, err := strconv.QuotedPrefix(line[i:])
			if err != nil {
				return nil, fmt.Errorf("bad string literal")
			}
			toks = append(toks, q)
			i += len(q)
		default:
			j := i
			for j < len(line) && !strings.ContainsRune(" \t\r\n;", rune(line[j])) {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
		}
	}
	return toks, nil
}

func (ps *parser) parseLine(text string) error {
	toks, err := tokenize(text)
	if err != nil {
		return ps.errorf("%v", err)
	}
	if len(toks) == 0 {
		return nil
	}
	if strings.HasPrefix(toks[0], ".") && toks[0] != ".word" {
		return ps.directive(toks[0], toks[1:])
	}
	return ps.instruction(toks)
}

func (ps *parser) cur() (*parseFunc, error) {
	if len(ps.stack) == 0 {
		return nil, ps.errorf("instruction or directive outside .function")
	}
	return ps.stack[len(ps.stack)-1], nil
}

func (ps *parser) directive(name string, args []string) error {
	switch name {
	case ".version", ".format", ".endianness", ".int_size", ".size_t_size",
		".instruction_size", ".integer_size", ".number_size", ".number_integral", ".upvalue_count":
		return ps.headerDirective(name, args)
	case ".function":
		return ps.beginFunc(args)
	case ".end":
		if len(args) != 0 {
			return ps.errorf(".end takes no arguments")
		}
		return ps.endFunc()
	}

	pf, err := ps.cur()
	if err != nil {
		return err
	}
	p := pf.f.Proto
	if len(pf.insts) > 0 && name != ".line" {
		return ps.errorf("%s after instructions", name)
	}
	switch name {
	case ".source":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		p.Source, err = ps.str(args[0])
	case ".linedefined":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		p.LineDefined, err = ps.int(args[0])
	case ".lastlinedefined":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		p.LastLineDefined, err = ps.int(args[0])
	case ".numparams":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		p.NumParams, err = ps.byte(args[0])
	case ".is_vararg":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		p.IsVararg, err = ps.byte(args[0])
	case ".maxstacksize":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		p.MaxStackSize, err = ps.byte(args[0])
	case ".nups":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		p.NumUpvalues, err = ps.byte(args[0])
	case ".upvalue":
		if err := ps.want(name, args, 2); err != nil {
			return err
		}
		var u chunk.Upvalue
		if u.InStack, err = ps.byte(args[0]); err != nil {
			return err
		}
		if u.Index, err = ps.byte(args[1]); err != nil {
			return err
		}
		p.Upvalues = append(p.Upvalues, u)
	case ".constant":
		return ps.constant(p, args)
	case ".local":
		if err := ps.want(name, args, 3); err != nil {
			return err
		}
		var lv chunk.LocVar
		if lv.Name, err = ps.str(args[0]); err != nil {
			return err
		}
		if lv.StartPC, err = ps.int(args[1]); err != nil {
			return err
		}
		if lv.EndPC, err = ps.int(args[2]); err != nil {
			return err
		}
		p.Debug.LocVars = append(p.Debug.LocVars, lv)
	case ".upvalname":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		var s chunk.String
		if s, err = ps.str(args[0]); err != nil {
			return err
		}
		p.Debug.UpvalueNames = append(p.Debug.UpvalueNames, s)
	case ".line":
		if err := ps.want(name, args, 1); err != nil {
			return err
		}
		if pf.curLine, err = ps.int(args[0]); err != nil {
			return err
		}
		if !pf.sawLines && len(pf.insts) > 0 {
			return ps.errorf(".line after unlined instructions")
		}
		pf.sawLines = true
	default:
		return ps.errorf("unknown directive %s", name)
	}
	return err
}

func (ps *parser) want(name string, args []string, n int) error {
	if len(args) != n {
		return ps.errorf("%s takes %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func (ps *parser) int(tok string) (int64, error) {
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, ps.errorf("bad integer %q", tok)
	}
	return v, nil
}

func (ps *parser) byte(tok string) (byte, error) {
	v, err := strconv.ParseUint(tok, 10, 8)
	if err != nil {
		return 0, ps.errorf("bad byte value %q", tok)
	}
	return byte(v), nil
}

func (ps *parser) str(tok string) (chunk.String, error) {
	if tok == "nil" {
		return chunk.String{}, nil
	}
	s, err := strconv.Unquote(tok)
	if err != nil || !strings.HasPrefix(tok, `"`) {
		return chunk.String{}, ps.errorf("bad string %s", tok)
	}
	return chunk.Str(s), nil
}

func (ps *parser) headerDirective(name string, args []string) error {
	if !ps.inHeader {
		return ps.errorf("%s after the first .function", name)
	}
	if ps.seen[name] {
		return ps.errorf("duplicate %s", name)
	}
	ps.seen[name] = true
	if err := ps.want(name, args, 1); err != nil {
		return err
	}
	arg := args[0]
	var err error
	switch name {
	case ".version":
		ps.h.Version, err = chunk.ParseVersion(arg)
		if err != nil {
			return ps.wrap(luafmt.ErrUnsupportedVersion, "bad version %q", arg)
		}
	case ".format":
		ps.h.Format, err = ps.byte(arg)
	case ".endianness":
		switch arg {
		case "little":
			ps.h.Endianness = chunk.LittleEndian
		case "big":
			ps.h.Endianness = chunk.BigEndian
		default:
			return ps.errorf("endianness must be little or big, got %q", arg)
		}
	case ".int_size":
		ps.h.IntSize, err = ps.width(arg)
	case ".size_t_size":
		ps.h.SizeTSize, err = ps.width(arg)
	case ".instruction_size":
		ps.h.InstructionSize, err = ps.width(arg)
	case ".integer_size":
		ps.h.IntegerSize, err = ps.width(arg)
	case ".number_size":
		ps.h.NumberSize, err = ps.width(arg)
	case ".number_integral":
		ps.h.NumberIntegral, err = strconv.ParseBool(arg)
		if err != nil {
			return ps.errorf("bad boolean %q", arg)
		}
	case ".upvalue_count":
		ps.upCount, err = ps.byte(arg)
	}
	return err
}

func (ps *parser) width(tok string) (int, error) {
	v, err := strconv.ParseUint(tok, 10, 8)
	if err != nil {
		return 0, ps.errorf("bad width %q", tok)
	}
	return int(v), nil
}

func (ps *parser) beginFunc(args []string) error {
	if err := ps.want(".function", args, 1); err != nil {
		return err
	}
	if ps.inHeader {
		ps.inHeader = false
		v := ps.h.Version
		if ps.opts.Header != nil {
			v = ps.opts.Header.Version
		} else if !ps.seen[".version"] {
			return ps.errorf(".function before .version")
		}
		t, err := opcodes.ForVersion(v)
		if err != nil {
			return ps.wrap(err, "no opcode table")
		}
		ps.table = t
	}
	if len(ps.stack) == 0 && ps.main != nil {
		return ps.errorf("second top-level .function %s", args[0])
	}
	if len(ps.stack) > ps.maxDepth {
		return ps.errorf("function nesting exceeds %d", ps.maxDepth)
	}
	f := &disasm.Func{Name: args[0], Proto: &chunk.Prototype{}}
	ps.stack = append(ps.stack, &parseFunc{f: f, start: ps.line})
	return nil
}

func (ps *parser) endFunc() error {
	pf, err := ps.cur()
	if err != nil {
		return err
	}
	if err := ps.resolve(pf); err != nil {
		return err
	}
	ps.stack = ps.stack[:len(ps.stack)-1]
	if len(ps.stack) == 0 {
		ps.main = pf.f
		return nil
	}
	parent := ps.stack[len(ps.stack)-1].f
	parent.Children = append(parent.Children, pf.f)
	parent.Proto.Protos = append(parent.Proto.Protos, pf.f.Proto)
	return nil
}

func (ps *parser) constant(p *chunk.Prototype, args []string) error {
	if len(args) != 2 && len(args) != 3 {
		return ps.errorf(".constant takes kN, a literal and an optional long marker")
	}
	idx, ok := indexed(args[0], 'k')
	if !ok || idx != len(p.Constants) {
		return ps.errorf("constant label %s out of sequence, want k%d", args[0], len(p.Constants))
	}
	k, err := parseConst(args[1])
	if err != nil {
		return ps.errorf("%v", err)
	}
	if len(args) == 3 {
		if args[2] != "long" || k.Kind != chunk.ConstString {
			return ps.errorf("only string constants take the long marker")
		}
		k.Kind = chunk.ConstLongString
	}
	p.Constants = append(p.Constants, k)
	return nil
}

// parseConst parses a constant literal as written by disasm.ConstLiteral.
func parseConst(tok string) (chunk.Constant, error) {
	switch tok {
	case "nil":
		return chunk.NilConst(), nil
	case "true":
		return chunk.BoolConst(true), nil
	case "false":
		return chunk.BoolConst(false), nil
	case "null":
		return chunk.Constant{Kind: chunk.ConstString}, nil
	case "inf":
		return chunk.NumConst(math.Inf(1)), nil
	case "-inf":
		return chunk.NumConst(math.Inf(-1)), nil
	}
	if strings.HasPrefix(tok, `"`) {
		s, err := strconv.Unquote(tok)
		if err != nil {
			return chunk.Constant{}, fmt.Errorf("bad string literal %s", tok)
		}
		return chunk.StringConst(s), nil
	}
	if strings.HasPrefix(tok, "nan(") && strings.HasSuffix(tok, ")") {
		bits, err := strconv.ParseUint(tok[4:len(tok)-1], 0, 64)
		if err != nil {
			return chunk.Constant{}, fmt.Errorf("bad nan literal %s", tok)
		}
		return chunk.NumConst(math.Float64frombits(bits)), nil
	}
	if isInteger(tok) {
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return chunk.Constant{}, fmt.Errorf("bad integer literal %s", tok)
		}
		return chunk.IntConst(v), nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil || !strings.ContainsAny(tok, ".eE") {
		return chunk.Constant{}, fmt.Errorf("bad literal %s", tok)
	}
	return chunk.NumConst(f), nil
}

func isInteger(tok string) bool {
	s := strings.TrimPrefix(tok, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// indexed parses "<prefix>N" operand text.
func indexed(tok string, prefix byte) (int, bool) {
	if len(tok) < 2 || tok[0] != prefix {
		return 0, false
	}
	if !isInteger(tok[1:]) || tok[1] == '-' {
		return 0, false
	}
	v, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, false
	}
	return v, true
}

func (ps *parser) instruction(toks []string) error {
	pf, err := ps.cur()
	if err != nil {
		return err
	}
	if len(toks) > 1 && isInteger(toks[0]) && !strings.HasPrefix(toks[0], "-") {
		toks = toks[1:] // pc column
	}
	pc := len(pf.insts)
	pf.insts = append(pf.insts, pendingInst{line: ps.line, pc: pc, toks: toks})
	if pf.sawLines {
		pf.lines = append(pf.lines, pf.curLine)
	}
	return nil
}

// resolve converts the pending instruction lines of pf once every constant
// of the function is known.
func (ps *parser) resolve(pf *parseFunc) error {
	f := pf.f
	p := f.Proto
	t := ps.table
	labels := disasm.ConstLabels(p)
	byLabel := make(map[string]int, len(labels))
	for i, l := range labels {
		byLabel[l] = i
	}

	endLine := ps.line
	defer func() { ps.line = endLine }()

	f.Insts = make([]disasm.Inst, len(pf.insts))
	p.Code = make([]uint32, len(pf.insts))
	for i, pi := range pf.insts {
		ps.line = pi.line
		inst, err := ps.inst(t, p, byLabel, pi)
		if err != nil {
			return err
		}
		raw, err := disasm.Encode(inst, t)
		if err != nil {
			return ps.wrap(err, "encode")
		}
		inst.Raw = raw
		f.Insts[i] = inst
		p.Code[i] = raw
	}
	if pf.sawLines {
		p.Debug.LineInfo = pf.lines
	}
	return nil
}

func (ps *parser) inst(t *opcodes.Table, p *chunk.Prototype, byLabel map[string]int, pi pendingInst) (disasm.Inst, error) {
	inst := disasm.Inst{PC: pi.pc}
	toks := pi.toks
	if toks[0] == ".word" {
		if len(toks) != 2 {
			return inst, ps.errorf(".word takes one value")
		}
		v, err := strconv.ParseUint(toks[1], 0, 32)
		if err != nil {
			return inst, ps.errorf("bad .word value %q", toks[1])
		}
		inst.Word, inst.Raw = true, uint32(v)
		return inst, nil
	}

	op, ok := t.ByName(toks[0])
	if !ok {
		return inst, ps.wrap(luafmt.ErrCorruptOperand, "unknown mnemonic %q for Lua %s", toks[0], t.Version)
	}
	inst.Op = op
	info := t.Ops[op]
	var kinds []opcodes.ArgKind
	switch info.Mode {
	case opcodes.IABC:
		kinds = []opcodes.ArgKind{info.A, info.B, info.C}
	case opcodes.IABx, opcodes.IAsBx:
		kinds = []opcodes.ArgKind{info.A, info.B}
	case opcodes.IAx:
		kinds = []opcodes.ArgKind{info.A}
	}
	args := toks[1:]
	n := 0
	for _, k := range kinds {
		if k != opcodes.ArgUnused {
			n++
		}
	}
	if len(args) != n {
		return inst, ps.wrap(luafmt.ErrCorruptOperand, "%s takes %d operand(s), got %d", info.Mnemonic(), n, len(args))
	}
	for _, k := range kinds {
		if k == opcodes.ArgUnused {
			continue
		}
		tok := args[0]
		args = args[1:]
		o, err := ps.operand(k, tok, p, byLabel)
		if err != nil {
			return inst, err
		}
		inst.Operands = append(inst.Operands, o)
	}
	return inst, nil
}

func (ps *parser) operand(kind opcodes.ArgKind, tok string, p *chunk.Prototype, byLabel map[string]int) (disasm.Operand, error) {
	bad := func(what string) (disasm.Operand, error) {
		return disasm.Operand{}, ps.wrap(luafmt.ErrCorruptOperand, "operand %q: want %s", tok, what)
	}
	switch kind {
	case opcodes.ArgReg:
		if v, ok := indexed(tok, 'r'); ok {
			return disasm.Operand{Kind: disasm.OpReg, Value: v}, nil
		}
		return bad("register rN")
	case opcodes.ArgUpval:
		if v, ok := indexed(tok, 'u'); ok {
			return disasm.Operand{Kind: disasm.OpUpval, Value: v}, nil
		}
		return bad("upvalue uN")
	case opcodes.ArgProto:
		if v, ok := indexed(tok, 'f'); ok {
			return disasm.Operand{Kind: disasm.OpProto, Value: v}, nil
		}
		return bad("function fN")
	case opcodes.ArgJump:
		if strings.HasPrefix(tok, "@") && isInteger(tok[1:]) {
			v, err := strconv.Atoi(tok[1:])
			if err == nil {
				return disasm.Operand{Kind: disasm.OpJump, Value: v}, nil
			}
		}
		return bad("jump target @N")
	case opcodes.ArgImm:
		if isInteger(tok) && !strings.HasPrefix(tok, "-") {
			v, err := strconv.Atoi(tok)
			if err == nil {
				return disasm.Operand{Kind: disasm.OpImm, Value: v}, nil
			}
		}
		return bad("immediate")
	case opcodes.ArgRK:
		if v, ok := indexed(tok, 'r'); ok {
			return disasm.Operand{Kind: disasm.OpReg, Value: v}, nil
		}
	}

	// ArgConst, or the constant half of ArgRK
	if v, ok := indexed(tok, 'k'); ok {
		if v >= len(p.Constants) {
			return disasm.Operand{}, ps.wrap(luafmt.ErrCorruptOperand, "constant k%d out of range [0,%d)", v, len(p.Constants))
		}
		return disasm.Operand{Kind: disasm.OpConst, Value: v}, nil
	}
	k, err := parseConst(tok)
	if err != nil {
		return bad("constant")
	}
	idx, ok := byLabel[disasm.ConstLiteral(k)]
	if !ok {
		return disasm.Operand{}, ps.wrap(luafmt.ErrCorruptOperand, "constant %s not unique in the constant table", tok)
	}
	return disasm.Operand{Kind: disasm.OpConst, Value: idx}, nil
}
