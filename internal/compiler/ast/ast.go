// Package ast defines the tagged-union expression and statement tree the
// parser builds, per spec.md §9's "Token/AST representation" redesign note:
// the original interleaves parsing and emission with no tree at all; this
// rewrite separates parsing from code generation so the generator can be a
// straightforward visitor.
package ast

import "github.com/secwest/small-c-x64-arm/internal/compiler/symtab"

// Type is the Small-C scalar type lattice; an alias of symtab.Type so the
// parser can hand types to the symbol table without conversion.
type Type = symtab.Type

const (
	Int     = symtab.Int
	Char    = symtab.Char
	IntPtr  = symtab.IntPtr
	CharPtr = symtab.CharPtr
)

// Expr is any expression node.
type Expr interface{ exprNode() }

type (
	// NumberLit is an integer literal.
	NumberLit struct {
		Value int64
		Line  int
	}

	// CharLitExpr is a character literal (already decoded to its integer value).
	CharLitExpr struct {
		Value int64
		Line  int
	}

	// StringLit is a string literal; the generator allocates it a label.
	StringLit struct {
		Value string
		Line  int
	}

	// Ident references a resolved symbol (local, parameter, or global).
	Ident struct {
		Name string
		Sym  *symtab.Symbol
		Line int
	}

	// Unary is a prefix unary operator: one of ! ~ - * & ++ --.
	Unary struct {
		Op      string
		Operand Expr
		Line    int
	}

	// Postfix is a postfix ++ or -- applied to Operand.
	Postfix struct {
		Op      string
		Operand Expr
		Line    int
	}

	// Binary is an infix binary operator.
	Binary struct {
		Op          string
		Left, Right Expr
		Line        int
	}

	// Assign is a simple or compound assignment; Op is "", "+", "-", "*", "/"
	// for =, +=, -=, *=, /=.
	Assign struct {
		Op          string
		Target, Val Expr
		Line        int
	}

	// Index is arr[idx].
	Index struct {
		Base, Idx Expr
		Line      int
	}

	// Call is a function call with evaluated argument expressions.
	Call struct {
		Name string
		Args []Expr
		Line int
	}
)

func (*NumberLit) exprNode()   {}
func (*CharLitExpr) exprNode() {}
func (*StringLit) exprNode()   {}
func (*Ident) exprNode()       {}
func (*Unary) exprNode()       {}
func (*Postfix) exprNode()     {}
func (*Binary) exprNode()      {}
func (*Assign) exprNode()      {}
func (*Index) exprNode()       {}
func (*Call) exprNode()        {}

// Stmt is any statement node.
type Stmt interface{ stmtNode() }

type (
	// Block is a brace-delimited sequence of statements.
	Block struct {
		Stmts []Stmt
	}

	// If is an if/else statement; Else may be nil.
	If struct {
		Cond       Expr
		Then, Else Stmt
		Line       int
	}

	// While is a while loop.
	While struct {
		Cond Expr
		Body Stmt
		Line int
	}

	// For is a for loop; Init/Cond/Post may each be nil.
	For struct {
		Init       Expr
		Cond       Expr
		Post       Expr
		Body       Stmt
		Line       int
	}

	// Return optionally carries a value expression (nil means "return 0").
	Return struct {
		Value Expr
		Line  int
	}

	// Break and Continue reference the loop they escape/repeat.
	Break struct{ Line int }

	Continue struct{ Line int }

	// ExprStmt is an expression evaluated for effect.
	ExprStmt struct {
		X    Expr
		Line int
	}

	// Empty is a bare ';'.
	Empty struct{}
)

func (*Block) stmtNode()    {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*For) stmtNode()      {}
func (*Return) stmtNode()   {}
func (*Break) stmtNode()    {}
func (*Continue) stmtNode() {}
func (*ExprStmt) stmtNode() {}
func (*Empty) stmtNode()    {}

// LocalDecl is one local variable declaration with an optional initializer,
// emitted at function entry before the first statement.
type LocalDecl struct {
	Sym  *symtab.Symbol
	Init Expr
	Line int
}

// FuncDecl is a function definition.
type FuncDecl struct {
	Name       string
	ReturnType Type
	Params     []*symtab.Symbol
	Locals     []LocalDecl
	Body       []Stmt
	Line       int
}

// GlobalDecl is a top-level variable declaration, with an optional constant
// initializer.
type GlobalDecl struct {
	Sym  *symtab.Symbol
	Init *GlobalInit
	Line int
}

// GlobalInit is a global's initializer: either a scalar constant or a
// string literal assigned to a char array (spec.md §7 supplemented
// feature, grounded on scc_enhanced.c global_declaration).
type GlobalInit struct {
	IsString bool
	String   string
	Scalar   int64
}

// Program is a whole translation unit: globals and functions in source
// order (spec.md §5 "output is emitted in input order").
type Program struct {
	Globals   []*GlobalDecl
	Functions []*FuncDecl
}
