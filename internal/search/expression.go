// Package search parses resource search parameters into boolean expression
// trees ready for translation into store queries.
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Expression is a node in a parsed search expression tree. Trees are built
// fresh per query and immutable once returned.
type Expression interface {
	fmt.Stringer
	isExpression()
}

// MultiaryOperator combines child expressions.
type MultiaryOperator int

const (
	OperatorAnd MultiaryOperator = iota
	OperatorOr
)

func (o MultiaryOperator) String() string {
	if o == OperatorAnd {
		return "And"
	}
	return "Or"
}

// MultiaryExpression combines children under And or Or.
type MultiaryExpression struct {
	Operator    MultiaryOperator
	Expressions []Expression
}

func (e *MultiaryExpression) isExpression() {}

func (e *MultiaryExpression) String() string {
	parts := make([]string, len(e.Expressions))
	for i, child := range e.Expressions {
		parts[i] = child.String()
	}
	return fmt.Sprintf("%s(%s)", e.Operator, strings.Join(parts, ", "))
}

// And combines expressions conjunctively.
func And(expressions ...Expression) *MultiaryExpression {
	return &MultiaryExpression{Operator: OperatorAnd, Expressions: expressions}
}

// Or combines expressions disjunctively.
func Or(expressions ...Expression) *MultiaryExpression {
	return &MultiaryExpression{Operator: OperatorOr, Expressions: expressions}
}

// ChainedExpression applies an inner expression to resources of
// TargetResourceType reachable from SourceResourceType through the named
// reference parameter.
type ChainedExpression struct {
	SourceResourceType string
	ParameterName      string
	TargetResourceType string
	Expression         Expression
}

func (e *ChainedExpression) isExpression() {}

func (e *ChainedExpression) String() string {
	return fmt.Sprintf("Chain(%s.%s->%s: %s)",
		e.SourceResourceType, e.ParameterName, e.TargetResourceType, e.Expression)
}

// StringExpression matches a string parameter.
type StringExpression struct {
	ParameterName string
	Value         string
	Exact         bool
	Contains      bool
}

func (e *StringExpression) isExpression() {}

func (e *StringExpression) String() string {
	op := "sw"
	if e.Exact {
		op = "eq"
	} else if e.Contains {
		op = "co"
	}
	return fmt.Sprintf("String(%s %s %q)", e.ParameterName, op, e.Value)
}

// TokenExpression matches a token parameter, optionally system-qualified.
type TokenExpression struct {
	ParameterName string
	System        string
	Code          string
}

func (e *TokenExpression) isExpression() {}

func (e *TokenExpression) String() string {
	if e.System != "" {
		return fmt.Sprintf("Token(%s = %s|%s)", e.ParameterName, e.System, e.Code)
	}
	return fmt.Sprintf("Token(%s = %s)", e.ParameterName, e.Code)
}

// ReferenceExpression matches a reference parameter against a target id,
// optionally type-qualified.
type ReferenceExpression struct {
	ParameterName string
	TargetType    string
	TargetID      string
}

func (e *ReferenceExpression) isExpression() {}

func (e *ReferenceExpression) String() string {
	if e.TargetType != "" {
		return fmt.Sprintf("Ref(%s = %s/%s)", e.ParameterName, e.TargetType, e.TargetID)
	}
	return fmt.Sprintf("Ref(%s = %s)", e.ParameterName, e.TargetID)
}

// NumberExpression matches a number parameter under a comparison prefix.
type NumberExpression struct {
	ParameterName string
	Prefix        string
	Value         decimal.Decimal
}

func (e *NumberExpression) isExpression() {}

func (e *NumberExpression) String() string {
	return fmt.Sprintf("Number(%s %s %s)", e.ParameterName, e.Prefix, e.Value)
}

// DateExpression matches a date parameter under a comparison prefix.
type DateExpression struct {
	ParameterName string
	Prefix        string
	Value         time.Time
}

func (e *DateExpression) isExpression() {}

func (e *DateExpression) String() string {
	return fmt.Sprintf("Date(%s %s %s)", e.ParameterName, e.Prefix, e.Value.Format(time.RFC3339))
}
