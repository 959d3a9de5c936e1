package codegen

import (
	"fmt"
	"strings"

	"github.com/secwest/small-c-x64-arm/internal/compiler/ast"
	"github.com/secwest/small-c-x64-arm/internal/compiler/symtab"
)

// stringConst is one string literal awaiting data-section emission.
type stringConst struct {
	label string
	value string
}

// Generator walks an ast.Program and drives an Emitter to produce one
// assembly-language translation unit, replacing
// original_source/scc_enhanced.c's interleaved parse-and-emit with the
// clean separation spec.md §9 calls for: the generator never looks at
// source text, only at the tree and symbol table the parser built.
type Generator struct {
	e    Emitter
	syms *symtab.Table

	lines []string

	labelN  int
	strings []stringConst
	strIdx  map[string]string

	breakLabels []string
	contLabels  []string
}

// New creates a Generator targeting e, using the symbol table the parser
// built while producing prog.
func New(e Emitter, syms *symtab.Table) *Generator {
	return &Generator{e: e, syms: syms, strIdx: map[string]string{}}
}

func (g *Generator) emit(lines ...string) { g.lines = append(g.lines, lines...) }

func (g *Generator) newLabel() string {
	g.labelN++
	return fmt.Sprintf(".L%d", g.labelN)
}

func (g *Generator) stringLabel(value string) string {
	if l, ok := g.strIdx[value]; ok {
		return l
	}
	l := fmt.Sprintf(".LS%d", len(g.strings))
	g.strIdx[value] = l
	g.strings = append(g.strings, stringConst{label: l, value: value})
	return l
}

// Generate produces the complete assembly text for prog.
func (g *Generator) Generate(prog *ast.Program) (string, error) {
	g.emit(g.e.TextSection()...)
	for _, fn := range prog.Functions {
		if err := g.genFunction(fn); err != nil {
			return "", fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	g.genData(prog)
	g.genBSS(prog)
	return strings.Join(g.lines, "\n") + "\n", nil
}

func (g *Generator) genData(prog *ast.Program) {
	var data []*ast.GlobalDecl
	for _, gd := range prog.Globals {
		if gd.Init != nil {
			data = append(data, gd)
		}
	}
	if len(data) == 0 && len(g.strings) == 0 {
		return
	}
	g.emit(g.e.DataSection()...)
	for _, gd := range data {
		g.emitGlobalInit(gd)
	}
	for _, s := range g.strings {
		g.emit(s.label+":", asciz(s.value))
	}
}

func (g *Generator) genBSS(prog *ast.Program) {
	var bss []*ast.GlobalDecl
	for _, gd := range prog.Globals {
		if gd.Init == nil {
			bss = append(bss, gd)
		}
	}
	if len(bss) == 0 {
		return
	}
	g.emit(g.e.BSSSection()...)
	for _, gd := range bss {
		g.emit(fmt.Sprintf("%s:", gd.Sym.Label), fmt.Sprintf("  .zero %d", gd.Sym.Size()))
	}
}

// emitGlobalInit emits one initialized global, grounded on
// scc_enhanced.c's global_declaration: a char array initialized from a
// string literal gets .ascii plus zero padding to its declared size; any
// other initializer is a .quad constant.
func (g *Generator) emitGlobalInit(gd *ast.GlobalDecl) {
	sym := gd.Sym
	if gd.Init.IsString {
		if sym.IsArray && sym.Type == symtab.Char {
			g.emit(fmt.Sprintf("%s:", sym.Label))
			g.emit("  " + asciz(gd.Init.String))
			pad := sym.ArrayN - int64(len(gd.Init.String)) - 1
			if pad > 0 {
				g.emit(fmt.Sprintf("  .zero %d", pad))
			}
			return
		}
		// A non-array pointer initialized from a string literal holds
		// the literal's address; the literal itself lives in the pool.
		label := g.stringLabel(gd.Init.String)
		g.emit(fmt.Sprintf("%s:", sym.Label), fmt.Sprintf("  .quad %s", label))
		return
	}
	g.emit(fmt.Sprintf("%s:", sym.Label), fmt.Sprintf("  .quad %d", gd.Init.Scalar))
}

func asciz(s string) string {
	var sb strings.Builder
	sb.WriteString(".ascii \"")
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteString(`\0"`)
	return sb.String()
}

func (g *Generator) genFunction(fn *ast.FuncDecl) error {
	if len(fn.Params) > g.e.ArgRegisterCount() {
		return fmt.Errorf("too many parameters (max %d)", g.e.ArgRegisterCount())
	}
	g.emit(g.e.FuncHeader(fn.Name)...)
	g.emit(g.e.Prologue(g.syms.FrameSize())...)
	for i, p := range fn.Params {
		g.emit(g.e.StoreParamFromReg(i, p.Offset)...)
	}
	for _, ld := range fn.Locals {
		if ld.Init == nil {
			continue
		}
		if err := g.genLocalInit(ld); err != nil {
			return err
		}
	}
	for _, s := range fn.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	if !endsInReturn(fn.Body) {
		g.emit(g.e.LoadImm(0)...)
		g.emit(g.e.Epilogue()...)
		g.emit(g.e.Return()...)
	}
	return nil
}

func endsInReturn(body []ast.Stmt) bool {
	if len(body) == 0 {
		return false
	}
	_, ok := body[len(body)-1].(*ast.Return)
	return ok
}

func (g *Generator) genLocalInit(ld ast.LocalDecl) error {
	g.emit(g.e.LoadFrameAddr(ld.Sym.Offset)...)
	g.emit(g.e.Push()...)
	if err := g.genExprValue(ld.Init); err != nil {
		return err
	}
	g.emit(g.e.StoreMem(ld.Sym.ElemSize())...)
	return nil
}

// --- Statements ---

func (g *Generator) genStmt(s ast.Stmt) error {
	switch st := s.(type) {
	case *ast.Block:
		for _, inner := range st.Stmts {
			if err := g.genStmt(inner); err != nil {
				return err
			}
		}
	case *ast.Empty:
	case *ast.ExprStmt:
		return g.genExprValue(st.X)
	case *ast.Return:
		if st.Value == nil {
			g.emit(g.e.LoadImm(0)...)
		} else if err := g.genExprValue(st.Value); err != nil {
			return err
		}
		g.emit(g.e.Epilogue()...)
		g.emit(g.e.Return()...)
	case *ast.If:
		return g.genIf(st)
	case *ast.While:
		return g.genWhile(st)
	case *ast.For:
		return g.genFor(st)
	case *ast.Break:
		if len(g.breakLabels) == 0 {
			return fmt.Errorf("line %d: break outside a loop", st.Line)
		}
		g.emit(g.e.Jump(g.breakLabels[len(g.breakLabels)-1])...)
	case *ast.Continue:
		if len(g.contLabels) == 0 {
			return fmt.Errorf("line %d: continue outside a loop", st.Line)
		}
		g.emit(g.e.Jump(g.contLabels[len(g.contLabels)-1])...)
	default:
		return fmt.Errorf("codegen: unhandled statement %T", s)
	}
	return nil
}

func (g *Generator) genIf(st *ast.If) error {
	if err := g.genExprValue(st.Cond); err != nil {
		return err
	}
	if st.Else == nil {
		end := g.newLabel()
		g.emit(g.e.BranchIfZero(end)...)
		if err := g.genStmt(st.Then); err != nil {
			return err
		}
		g.emit(g.e.Label(end)...)
		return nil
	}
	elseL := g.newLabel()
	end := g.newLabel()
	g.emit(g.e.BranchIfZero(elseL)...)
	if err := g.genStmt(st.Then); err != nil {
		return err
	}
	g.emit(g.e.Jump(end)...)
	g.emit(g.e.Label(elseL)...)
	if err := g.genStmt(st.Else); err != nil {
		return err
	}
	g.emit(g.e.Label(end)...)
	return nil
}

func (g *Generator) genWhile(st *ast.While) error {
	start := g.newLabel()
	end := g.newLabel()
	g.breakLabels = append(g.breakLabels, end)
	g.contLabels = append(g.contLabels, start)
	defer func() {
		g.breakLabels = g.breakLabels[:len(g.breakLabels)-1]
		g.contLabels = g.contLabels[:len(g.contLabels)-1]
	}()

	g.emit(g.e.Label(start)...)
	if err := g.genExprValue(st.Cond); err != nil {
		return err
	}
	g.emit(g.e.BranchIfZero(end)...)
	if err := g.genStmt(st.Body); err != nil {
		return err
	}
	g.emit(g.e.Jump(start)...)
	g.emit(g.e.Label(end)...)
	return nil
}

// genFor grounds the increment clause in a Post expression evaluated
// after the body at the continue label, replacing scc_enhanced.c's
// approach of re-parsing the source text for the increment clause a
// second time (lptr/lineno save-and-restore) with a plain AST re-walk.
func (g *Generator) genFor(st *ast.For) error {
	if st.Init != nil {
		if err := g.genExprValue(st.Init); err != nil {
			return err
		}
	}
	start := g.newLabel()
	cont := g.newLabel()
	end := g.newLabel()
	g.breakLabels = append(g.breakLabels, end)
	g.contLabels = append(g.contLabels, cont)
	defer func() {
		g.breakLabels = g.breakLabels[:len(g.breakLabels)-1]
		g.contLabels = g.contLabels[:len(g.contLabels)-1]
	}()

	g.emit(g.e.Label(start)...)
	if st.Cond != nil {
		if err := g.genExprValue(st.Cond); err != nil {
			return err
		}
		g.emit(g.e.BranchIfZero(end)...)
	}
	if err := g.genStmt(st.Body); err != nil {
		return err
	}
	g.emit(g.e.Label(cont)...)
	if st.Post != nil {
		if err := g.genExprValue(st.Post); err != nil {
			return err
		}
	}
	g.emit(g.e.Jump(start)...)
	g.emit(g.e.Label(end)...)
	return nil
}

// --- Expressions ---

// genExprValue emits code leaving e's runtime value in the accumulator.
func (g *Generator) genExprValue(e ast.Expr) error {
	switch x := e.(type) {
	case *ast.NumberLit:
		g.emit(g.e.LoadImm(x.Value)...)
	case *ast.CharLitExpr:
		g.emit(g.e.LoadImm(x.Value)...)
	case *ast.StringLit:
		g.emit(g.e.LoadLabelAddr(g.stringLabel(x.Value))...)
	case *ast.Ident:
		if x.Sym.IsArray {
			return g.genExprAddr(e)
		}
		if err := g.genExprAddr(e); err != nil {
			return err
		}
		g.emit(g.e.LoadMem(x.Sym.ElemSize())...)
	case *ast.Index:
		width, err := g.genIndexAddr(x)
		if err != nil {
			return err
		}
		g.emit(g.e.LoadMem(width)...)
	case *ast.Unary:
		return g.genUnary(x)
	case *ast.Postfix:
		return g.genPostfix(x)
	case *ast.Binary:
		return g.genBinary(x)
	case *ast.Assign:
		return g.genAssign(x)
	case *ast.Call:
		return g.genCall(x)
	default:
		return fmt.Errorf("codegen: unhandled expression %T", e)
	}
	return nil
}

// genExprAddr emits code leaving the address of the lvalue e in the
// accumulator.
func (g *Generator) genExprAddr(e ast.Expr) error {
	switch x := e.(type) {
	case *ast.Ident:
		if x.Sym.Class == symtab.Global {
			g.emit(g.e.LoadLabelAddr(x.Sym.Label)...)
		} else {
			g.emit(g.e.LoadFrameAddr(x.Sym.Offset)...)
		}
		return nil
	case *ast.Index:
		_, err := g.genIndexAddr(x)
		return err
	default:
		return fmt.Errorf("codegen: %T is not an lvalue", e)
	}
}

// genIndexAddr leaves base+idx*scale in the accumulator and returns the
// element width at that address.
func (g *Generator) genIndexAddr(ix *ast.Index) (int64, error) {
	if arr, ok := arrayBase(ix.Base); ok {
		if err := g.genExprAddr(ix.Base); err != nil {
			return 0, err
		}
		g.emit(g.e.Push()...)
		if err := g.genExprValue(ix.Idx); err != nil {
			return 0, err
		}
		width := arr.ElemSize()
		g.emit(g.e.Scale(width)...)
		g.emit(g.e.PopToSecondary()...)
		g.emit(g.e.BinOp("+")...)
		return width, nil
	}
	if err := g.genExprValue(ix.Base); err != nil {
		return 0, err
	}
	g.emit(g.e.Push()...)
	if err := g.genExprValue(ix.Idx); err != nil {
		return 0, err
	}
	width := pointerElemWidth(ix.Base)
	g.emit(g.e.Scale(width)...)
	g.emit(g.e.PopToSecondary()...)
	g.emit(g.e.BinOp("+")...)
	return width, nil
}

func arrayBase(e ast.Expr) (*symtab.Symbol, bool) {
	id, ok := e.(*ast.Ident)
	if !ok || !id.Sym.IsArray {
		return nil, false
	}
	return id.Sym, true
}

// inferType is a light, best-effort static type inference sufficient to
// pick a 1-byte vs. 8-byte access width; Small-C's weak typing means a
// full checker isn't needed elsewhere in this dialect.
func inferType(e ast.Expr) symtab.Type {
	switch x := e.(type) {
	case *ast.StringLit:
		return symtab.CharPtr
	case *ast.Ident:
		return x.Sym.Type
	case *ast.Unary:
		switch x.Op {
		case "&":
			if inferType(x.Operand) == symtab.Char {
				return symtab.CharPtr
			}
			return symtab.IntPtr
		case "*":
			if inferType(x.Operand) == symtab.CharPtr {
				return symtab.Char
			}
			return symtab.Int
		}
	case *ast.Index:
		if arr, ok := arrayBase(x.Base); ok {
			return arr.Type
		}
		if inferType(x.Base) == symtab.CharPtr {
			return symtab.Char
		}
		return symtab.Int
	}
	return symtab.Int
}

func pointerElemWidth(e ast.Expr) int64 {
	if inferType(e) == symtab.CharPtr {
		return 1
	}
	return 8
}

func (g *Generator) genUnary(x *ast.Unary) error {
	switch x.Op {
	case "&":
		return g.genExprAddr(x.Operand)
	case "*":
		if err := g.genExprValue(x.Operand); err != nil {
			return err
		}
		g.emit(g.e.LoadMem(pointerElemWidth(x.Operand))...)
		return nil
	case "!", "~", "-":
		if err := g.genExprValue(x.Operand); err != nil {
			return err
		}
		g.emit(g.e.UnaryOp(x.Op)...)
		return nil
	case "++", "--":
		return g.genPrefixIncDec(x)
	default:
		return fmt.Errorf("codegen: unknown unary operator %q", x.Op)
	}
}

func incDecOp(op string) string {
	if op == "++" {
		return "+"
	}
	return "-"
}

func (g *Generator) genPrefixIncDec(x *ast.Unary) error {
	width, err := g.widthOf(x.Operand)
	if err != nil {
		return err
	}
	if err := g.genExprAddr(x.Operand); err != nil {
		return err
	}
	g.emit(g.e.Push()...)
	g.emit(g.e.LoadMem(width)...)
	g.emit(g.e.Push()...)
	g.emit(g.e.LoadImm(1)...)
	g.emit(g.e.PopToSecondary()...)
	g.emit(g.e.BinOp(incDecOp(x.Op))...)
	g.emit(g.e.StoreMem(width)...)
	return nil
}

func (g *Generator) genPostfix(x *ast.Postfix) error {
	width, err := g.widthOf(x.Operand)
	if err != nil {
		return err
	}
	if err := g.genExprAddr(x.Operand); err != nil {
		return err
	}
	g.emit(g.e.Push()...)         // [addr]
	g.emit(g.e.LoadMem(width)...) // acc = oldval
	g.emit(g.e.Push()...)         // [addr, oldval]   (copy A: final result)
	g.emit(g.e.Push()...)         // [addr, oldval, oldval] (copy B: arithmetic)
	g.emit(g.e.LoadImm(1)...)
	g.emit(g.e.PopToSecondary()...) // secondary = oldval(B); [addr, oldval]
	g.emit(g.e.BinOp(incDecOp(x.Op))...)
	g.emit(g.e.PopToSecondary()...) // secondary = oldval(A); [addr]
	// StoreMem pops addr into its own internal scratch register, distinct
	// from the secondary register above, so oldval(A) survives the store.
	g.emit(g.e.StoreMem(width)...)
	g.emit(g.e.MoveSecondaryToAcc()...) // acc = oldval(A)
	return nil
}

func (g *Generator) widthOf(target ast.Expr) (int64, error) {
	switch t := target.(type) {
	case *ast.Ident:
		return t.Sym.ElemSize(), nil
	case *ast.Index:
		if arr, ok := arrayBase(t.Base); ok {
			return arr.ElemSize(), nil
		}
		return pointerElemWidth(t.Base), nil
	case *ast.Unary:
		if t.Op == "*" {
			return pointerElemWidth(t.Operand), nil
		}
	}
	return 0, fmt.Errorf("codegen: %T is not an lvalue", target)
}

var logicalOps = map[string]bool{"&&": true, "||": true}

func (g *Generator) genBinary(x *ast.Binary) error {
	if x.Op == "&&" {
		return g.genLogicalAnd(x)
	}
	if x.Op == "||" {
		return g.genLogicalOr(x)
	}
	if err := g.genExprValue(x.Left); err != nil {
		return err
	}
	g.emit(g.e.Push()...)
	if err := g.genExprValue(x.Right); err != nil {
		return err
	}
	g.emit(g.e.PopToSecondary()...)
	g.emit(g.e.BinOp(x.Op)...)
	return nil
}

func (g *Generator) genLogicalAnd(x *ast.Binary) error {
	falseL := g.newLabel()
	end := g.newLabel()
	if err := g.genExprValue(x.Left); err != nil {
		return err
	}
	g.emit(g.e.BranchIfZero(falseL)...)
	if err := g.genExprValue(x.Right); err != nil {
		return err
	}
	g.emit(g.e.BranchIfZero(falseL)...)
	g.emit(g.e.LoadImm(1)...)
	g.emit(g.e.Jump(end)...)
	g.emit(g.e.Label(falseL)...)
	g.emit(g.e.LoadImm(0)...)
	g.emit(g.e.Label(end)...)
	return nil
}

func (g *Generator) genLogicalOr(x *ast.Binary) error {
	checkRight := g.newLabel()
	falseL := g.newLabel()
	end := g.newLabel()
	if err := g.genExprValue(x.Left); err != nil {
		return err
	}
	g.emit(g.e.BranchIfZero(checkRight)...)
	g.emit(g.e.LoadImm(1)...)
	g.emit(g.e.Jump(end)...)
	g.emit(g.e.Label(checkRight)...)
	if err := g.genExprValue(x.Right); err != nil {
		return err
	}
	g.emit(g.e.BranchIfZero(falseL)...)
	g.emit(g.e.LoadImm(1)...)
	g.emit(g.e.Jump(end)...)
	g.emit(g.e.Label(falseL)...)
	g.emit(g.e.LoadImm(0)...)
	g.emit(g.e.Label(end)...)
	return nil
}

func (g *Generator) genAssign(x *ast.Assign) error {
	width, err := g.widthOf(x.Target)
	if err != nil {
		return err
	}
	if err := g.genExprAddr(x.Target); err != nil {
		return err
	}
	g.emit(g.e.Push()...) // [addr]
	if x.Op == "" {
		if err := g.genExprValue(x.Val); err != nil {
			return err
		}
		g.emit(g.e.StoreMem(width)...)
		return nil
	}
	g.emit(g.e.LoadMem(width)...) // acc = curval (derefs the addr we just pushed without losing it below)
	g.emit(g.e.Push()...)         // [addr, curval]
	if err := g.genExprValue(x.Val); err != nil {
		return err
	}
	g.emit(g.e.PopToSecondary()...) // secondary = curval, [addr]
	g.emit(g.e.BinOp(x.Op)...)
	g.emit(g.e.StoreMem(width)...)
	return nil
}

func (g *Generator) genCall(x *ast.Call) error {
	if len(x.Args) > g.e.ArgRegisterCount() {
		return fmt.Errorf("line %d: call to %s has too many arguments (max %d)", x.Line, x.Name, g.e.ArgRegisterCount())
	}
	for _, arg := range x.Args {
		if err := g.genExprValue(arg); err != nil {
			return err
		}
		g.emit(g.e.Push()...)
	}
	for i := len(x.Args) - 1; i >= 0; i-- {
		g.emit(g.e.PopArg(i)...)
	}
	g.emit(g.e.Call(x.Name, len(x.Args))...)
	return nil
}
