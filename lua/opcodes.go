package lua

// OpCode identifies one of the fixed instruction forms a compiled chunk's
// code array can contain (§4.3 "Instruction set"). Mirrors the teacher's
// Bytecode byte enum and its string<->code map pair, generalized from a
// flat stack ISA to the reference compiler's fixed ABC/ABx/AsBx/Ax layout.
type OpCode byte

const (
	OpMove OpCode = iota
	OpLoadK
	OpLoadKX
	OpLoadBool
	OpLoadNil
	OpGetUpval
	OpGetTabUp
	OpGetTable
	OpSetTabUp
	OpSetUpval
	OpSetTable
	OpNewTable
	OpSelf
	OpAdd
	OpSub
	OpMul
	OpMod
	OpPow
	OpDiv
	OpIDiv
	OpBAnd
	OpBOr
	OpBXor
	OpShl
	OpShr
	OpUnm
	OpBNot
	OpNot
	OpLen
	OpConcat
	OpJmp
	OpEq
	OpLt
	OpLe
	OpTest
	OpTestSet
	OpCall
	OpTailCall
	OpReturn
	OpForLoop
	OpForPrep
	OpTForCall
	OpTForLoop
	OpSetList
	OpClosure
	OpVararg
	OpExtraArg
)

var opNames = map[OpCode]string{
	OpMove:     "MOVE",
	OpLoadK:    "LOADK",
	OpLoadKX:   "LOADKX",
	OpLoadBool: "LOADBOOL",
	OpLoadNil:  "LOADNIL",
	OpGetUpval: "GETUPVAL",
	OpGetTabUp: "GETTABUP",
	OpGetTable: "GETTABLE",
	OpSetTabUp: "SETTABUP",
	OpSetUpval: "SETUPVAL",
	OpSetTable: "SETTABLE",
	OpNewTable: "NEWTABLE",
	OpSelf:     "SELF",
	OpAdd:      "ADD",
	OpSub:      "SUB",
	OpMul:      "MUL",
	OpMod:      "MOD",
	OpPow:      "POW",
	OpDiv:      "DIV",
	OpIDiv:     "IDIV",
	OpBAnd:     "BAND",
	OpBOr:      "BOR",
	OpBXor:     "BXOR",
	OpShl:      "SHL",
	OpShr:      "SHR",
	OpUnm:      "UNM",
	OpBNot:     "BNOT",
	OpNot:      "NOT",
	OpLen:      "LEN",
	OpConcat:   "CONCAT",
	OpJmp:      "JMP",
	OpEq:       "EQ",
	OpLt:       "LT",
	OpLe:       "LE",
	OpTest:     "TEST",
	OpTestSet:  "TESTSET",
	OpCall:     "CALL",
	OpTailCall: "TAILCALL",
	OpReturn:   "RETURN",
	OpForLoop:  "FORLOOP",
	OpForPrep:  "FORPREP",
	OpTForCall: "TFORCALL",
	OpTForLoop: "TFORLOOP",
	OpSetList:  "SETLIST",
	OpClosure:  "CLOSURE",
	OpVararg:   "VARARG",
	OpExtraArg: "EXTRAARG",
}

func (op OpCode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "?unknown?"
}

// operandMode identifies how an instruction word's non-opcode bits are
// carved up.
type operandMode uint8

const (
	modeABC operandMode = iota
	modeABx
	modeAsBx
	modeAx
)

var opModes = map[OpCode]operandMode{
	OpLoadK:    modeABx,
	OpLoadKX:   modeABx,
	OpJmp:      modeAsBx,
	OpForLoop:  modeAsBx,
	OpForPrep:  modeAsBx,
	OpTForLoop: modeAsBx,
	OpClosure:  modeABx,
	OpExtraArg: modeAx,
}

func (op OpCode) mode() operandMode {
	if m, ok := opModes[op]; ok {
		return m
	}
	return modeABC
}

// Field widths and shifts of the fixed 32-bit instruction encoding (§4.3):
//
//	bit:  0      6      14           23           32
//	      [ op(6) | A(8) | C(9)       | B(9)        ]   -- iABC
//	      [ op(6) | A(8) | Bx(18)                   ]   -- iABx / iAsBx
//	      [ op(6) | Ax(26)                          ]   -- iAx
const (
	sizeOp = 6
	sizeA  = 8
	sizeB  = 9
	sizeC  = 9
	sizeBx = sizeB + sizeC
	sizeAx = sizeA + sizeBx

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC
	posAx = posA

	maxArgSBx = 1<<(sizeBx-1) - 1

	// constBit marks a B/C (or constant-index) operand as a constant-table
	// index rather than a register index (§4.3 "Constant-index flag bit").
	constBit = 1 << (sizeB - 1)

	// fieldsPerFlush is the reference compiler's LFIELDS_PER_FLUSH: how many
	// array entries one SETLIST batch covers, used to compute the starting
	// index of batches after the first (instr.C, or an EXTRAARG when the
	// batch count overflows C's width).
	fieldsPerFlush = 50
)

func maskBits(n uint) uint32 { return 1<<n - 1 }

// Instr is one decoded instruction, with every field populated regardless
// of the instruction's operandMode; callers read only the fields that mode
// defines.
type Instr struct {
	Op      OpCode
	A       int
	B       int
	C       int
	Bx      int
	SBx     int
	Ax      int
}

// decodeInstr unpacks one raw 32-bit instruction word.
func decodeInstr(word uint32) Instr {
	op := OpCode(word >> posOp & maskBits(sizeOp))
	in := Instr{
		Op: op,
		A:  int(word >> posA & maskBits(sizeA)),
		B:  int(word >> posB & maskBits(sizeB)),
		C:  int(word >> posC & maskBits(sizeC)),
		Bx: int(word >> posBx & maskBits(sizeBx)),
		Ax: int(word >> posAx & maskBits(sizeAx)),
	}
	in.SBx = in.Bx - maxArgSBx
	return in
}

// isConstantOperand reports whether a decoded B or C field names a
// constant-table index rather than a register index.
func isConstantOperand(x int) bool { return x&constBit != 0 }

// constantIndex strips the constant-index flag bit, yielding the index
// into the enclosing prototype's Constants array.
func constantIndex(x int) int { return x &^ constBit }
