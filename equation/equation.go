// Package equation evaluates claim creation equations: small arithmetic
// expressions over a fixed set of event symbols.
//
// Expressions are parsed into an AST and walked with exact decimal
// arithmetic. Only the four arithmetic operators, unary minus, numeric
// literals and the symbols listed in Names are accepted; anything else is
// rejected at parse time, so a stored equation can never reach code or data
// outside its symbol table.
package equation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/shopspring/decimal"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Symbol names available to an equation.
const (
	SymQuantity          = "quantity"
	SymValue             = "value"
	SymValuePerUnit      = "valuePerUnit"
	SymValuePerUnitOfUse = "valuePerUnitOfUse"
	SymPricePerUnit      = "pricePerUnit"
)

// MaxLength bounds the source length of an equation.
const MaxLength = 512

var (
	ErrSyntax      = errors.New("equation: syntax error")
	ErrUnsupported = errors.New("equation: unsupported construct")
	ErrUnknownName = errors.New("equation: unknown name")
	ErrDivByZero   = errors.New("equation: division by zero")
)

// Names returns the symbols an equation may reference.
func Names() []string {
	return []string{SymQuantity, SymValue, SymValuePerUnit, SymValuePerUnitOfUse, SymPricePerUnit}
}

// Symbols is the symbol table an equation is evaluated against.
type Symbols struct {
	Quantity          decimal.Decimal
	Value             decimal.Decimal
	ValuePerUnit      decimal.Decimal
	ValuePerUnitOfUse decimal.Decimal
	PricePerUnit      decimal.Decimal
}

func (s Symbols) lookup(name string) (decimal.Decimal, bool) {
	switch name {
	case SymQuantity:
		return s.Quantity, true
	case SymValue:
		return s.Value, true
	case SymValuePerUnit:
		return s.ValuePerUnit, true
	case SymValuePerUnitOfUse:
		return s.ValuePerUnitOfUse, true
	case SymPricePerUnit:
		return s.PricePerUnit, true
	}
	return decimal.Zero, false
}

// Expression is a parsed, validated equation. It is safe for concurrent use.
type Expression struct {
	src  string
	root *exprpb.Expr
}

// String returns the source text.
func (e *Expression) String() string { return e.src }

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error

	cacheMu sync.RWMutex
	cache   = make(map[string]*Expression)
)

func parser() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv()
	})
	return env, envErr
}

// Parse parses and validates src. Parsed expressions are cached by source.
func Parse(src string) (*Expression, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("%w: empty equation", ErrSyntax)
	}
	if len(src) > MaxLength {
		return nil, fmt.Errorf("%w: equation longer than %d characters", ErrSyntax, MaxLength)
	}

	cacheMu.RLock()
	cached, ok := cache[src]
	cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	e, err := parser()
	if err != nil {
		return nil, fmt.Errorf("equation: init parser: %w", err)
	}
	ast, issues := e.Parse(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, issues.Err())
	}

	root := ast.Expr() //nolint:staticcheck // exprpb is the traversable form of the parsed AST
	if err := check(root); err != nil {
		return nil, err
	}

	expr := &Expression{src: src, root: root}
	cacheMu.Lock()
	cache[src] = expr
	cacheMu.Unlock()
	return expr, nil
}

// Eval parses src and evaluates it against sym.
func Eval(src string, sym Symbols) (decimal.Decimal, error) {
	expr, err := Parse(src)
	if err != nil {
		return decimal.Zero, err
	}
	return expr.Eval(sym)
}

// Eval evaluates the expression against sym.
func (e *Expression) Eval(sym Symbols) (decimal.Decimal, error) {
	return eval(e.root, sym)
}

// check rejects every node the evaluator does not support.
func check(e *exprpb.Expr) error {
	if e == nil {
		return fmt.Errorf("%w: empty node", ErrSyntax)
	}

	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		if _, err := constant(k.ConstExpr); err != nil {
			return err
		}
		return nil

	case *exprpb.Expr_IdentExpr:
		if _, ok := (Symbols{}).lookup(k.IdentExpr.Name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownName, k.IdentExpr.Name)
		}
		return nil

	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		if call.Target != nil {
			return fmt.Errorf("%w: method call %q", ErrUnsupported, call.Function)
		}
		want, ok := arity[call.Function]
		if !ok {
			return fmt.Errorf("%w: function %q", ErrUnsupported, call.Function)
		}
		if len(call.Args) != want {
			return fmt.Errorf("%w: %q takes %d operands", ErrSyntax, call.Function, want)
		}
		for _, arg := range call.Args {
			if err := check(arg); err != nil {
				return err
			}
		}
		return nil

	case *exprpb.Expr_SelectExpr:
		return fmt.Errorf("%w: field selection", ErrUnsupported)
	case *exprpb.Expr_ListExpr:
		return fmt.Errorf("%w: list", ErrUnsupported)
	case *exprpb.Expr_StructExpr:
		return fmt.Errorf("%w: map or message", ErrUnsupported)
	case *exprpb.Expr_ComprehensionExpr:
		return fmt.Errorf("%w: comprehension", ErrUnsupported)
	}
	return fmt.Errorf("%w: expression kind %T", ErrUnsupported, e.ExprKind)
}

var arity = map[string]int{
	operators.Add:      2,
	operators.Subtract: 2,
	operators.Multiply: 2,
	operators.Divide:   2,
	operators.Negate:   1,
}

func constant(c *exprpb.Constant) (decimal.Decimal, error) {
	switch v := c.ConstantKind.(type) {
	case *exprpb.Constant_Int64Value:
		return decimal.NewFromInt(v.Int64Value), nil
	case *exprpb.Constant_Uint64Value:
		return decimal.NewFromUint64(v.Uint64Value), nil
	case *exprpb.Constant_DoubleValue:
		// NewFromFloat yields the shortest decimal that round-trips, which is
		// the literal as written for any realistic equation.
		return decimal.NewFromFloat(v.DoubleValue), nil
	}
	return decimal.Zero, fmt.Errorf("%w: non-numeric literal", ErrUnsupported)
}

func eval(e *exprpb.Expr, sym Symbols) (decimal.Decimal, error) {
	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		return constant(k.ConstExpr)

	case *exprpb.Expr_IdentExpr:
		v, ok := sym.lookup(k.IdentExpr.Name)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownName, k.IdentExpr.Name)
		}
		return v, nil

	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		args := make([]decimal.Decimal, len(call.Args))
		for i, arg := range call.Args {
			v, err := eval(arg, sym)
			if err != nil {
				return decimal.Zero, err
			}
			args[i] = v
		}
		switch call.Function {
		case operators.Add:
			return args[0].Add(args[1]), nil
		case operators.Subtract:
			return args[0].Sub(args[1]), nil
		case operators.Multiply:
			return args[0].Mul(args[1]), nil
		case operators.Divide:
			if args[1].IsZero() {
				return decimal.Zero, ErrDivByZero
			}
			return args[0].Div(args[1]), nil
		case operators.Negate:
			return args[0].Neg(), nil
		}
		return decimal.Zero, fmt.Errorf("%w: function %q", ErrUnsupported, call.Function)
	}
	return decimal.Zero, fmt.Errorf("%w: expression kind %T", ErrUnsupported, e.ExprKind)
}
