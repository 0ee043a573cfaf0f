package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Comparison prefixes accepted on number and date values.
var comparisonPrefixes = map[string]bool{
	"eq": true, "ne": true, "gt": true, "lt": true,
	"ge": true, "le": true, "sa": true, "eb": true,
}

// ValueBuilder is the default LeafBuilder: it parses raw values into typed
// leaf expressions according to the parameter type.
type ValueBuilder struct{}

// NewValueBuilder creates a ValueBuilder.
func NewValueBuilder() *ValueBuilder {
	return &ValueBuilder{}
}

func (b *ValueBuilder) Build(param *SearchParameter, modifier, value string) (Expression, error) {
	switch param.Type {
	case TypeString:
		return b.buildString(param, modifier, value)
	case TypeToken:
		return b.buildToken(param, modifier, value)
	case TypeReference:
		return b.buildReference(param, modifier, value)
	case TypeNumber:
		return b.buildNumber(param, value)
	case TypeDate:
		return b.buildDate(param, value)
	default:
		return nil, &InvalidSearchOperationError{
			Segment: param.Name,
			Reason:  "unsupported parameter type " + string(param.Type),
		}
	}
}

func (b *ValueBuilder) buildString(param *SearchParameter, modifier, value string) (Expression, error) {
	expr := &StringExpression{ParameterName: param.Name, Value: value}
	switch modifier {
	case "":
	case "exact":
		expr.Exact = true
	case "contains":
		expr.Contains = true
	default:
		return nil, &InvalidSearchOperationError{
			Segment: param.Name + ":" + modifier,
			Reason:  "unsupported string modifier",
		}
	}
	return expr, nil
}

func (b *ValueBuilder) buildToken(param *SearchParameter, modifier, value string) (Expression, error) {
	if modifier != "" {
		return nil, &InvalidSearchOperationError{
			Segment: param.Name + ":" + modifier,
			Reason:  "unsupported token modifier",
		}
	}
	expr := &TokenExpression{ParameterName: param.Name, Code: value}
	if system, code, found := strings.Cut(value, "|"); found {
		expr.System = system
		expr.Code = code
	}
	return expr, nil
}

func (b *ValueBuilder) buildReference(param *SearchParameter, modifier, value string) (Expression, error) {
	expr := &ReferenceExpression{ParameterName: param.Name, TargetID: value}
	if targetType, id, found := strings.Cut(value, "/"); found {
		if !containsType(param.TargetTypes, targetType) {
			return nil, &InvalidSearchOperationError{
				Segment: param.Name,
				Reason:  "reference target " + targetType + " is not a declared target type",
			}
		}
		expr.TargetType = targetType
		expr.TargetID = id
	} else if modifier != "" {
		if !containsType(param.TargetTypes, modifier) {
			return nil, &InvalidSearchOperationError{
				Segment: param.Name + ":" + modifier,
				Reason:  "type scope " + modifier + " is not a declared reference target",
			}
		}
		expr.TargetType = modifier
	}
	return expr, nil
}

func (b *ValueBuilder) buildNumber(param *SearchParameter, value string) (Expression, error) {
	prefix, rest := splitPrefix(value)
	number, err := decimal.NewFromString(rest)
	if err != nil {
		return nil, &InvalidSearchOperationError{
			Segment: param.Name,
			Reason:  "value " + value + " is not a number",
		}
	}
	return &NumberExpression{ParameterName: param.Name, Prefix: prefix, Value: number}, nil
}

func (b *ValueBuilder) buildDate(param *SearchParameter, value string) (Expression, error) {
	prefix, rest := splitPrefix(value)
	t, err := ParseDate(rest)
	if err != nil {
		return nil, &InvalidSearchOperationError{
			Segment: param.Name,
			Reason:  "value " + value + " is not a date",
		}
	}
	return &DateExpression{ParameterName: param.Name, Prefix: prefix, Value: t}, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01", "2006"}

// ParseDate parses a date value in any accepted layout, from a full RFC 3339
// timestamp down to a bare year. The index extractor uses the same function,
// so indexed date values and query binds always compare in one format.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not a date: %q", value)
}

// splitPrefix peels a comparison prefix off a value, defaulting to eq.
func splitPrefix(value string) (prefix, rest string) {
	if len(value) > 2 && comparisonPrefixes[value[:2]] {
		return value[:2], value[2:]
	}
	return "eq", value
}
