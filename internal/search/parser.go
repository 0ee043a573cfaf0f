package search

import (
	"errors"
	"strings"
)

// LeafBuilder turns a resolved parameter, optional modifier, and raw value
// into a leaf expression.
type LeafBuilder interface {
	Build(param *SearchParameter, modifier, value string) (Expression, error)
}

// Parser parses raw key/value search parameters into expression trees,
// resolving chained reference keys across resource-type boundaries.
type Parser struct {
	defs Definitions
	leaf LeafBuilder
}

// NewParser creates a Parser over the given definitions and leaf builder.
func NewParser(defs Definitions, leaf LeafBuilder) *Parser {
	return &Parser{defs: defs, leaf: leaf}
}

// Parse parses one key/value pair scoped to a resource type. Chained keys
// traverse reference parameters segment by segment; each level fans out over
// the reference's declared target types and combines the surviving branches
// under Or.
func (p *Parser) Parse(resourceType, key, value string) (Expression, error) {
	expr, notSupported, err := p.parse(resourceType, strings.Split(key, "."), value)
	if err != nil {
		return nil, err
	}
	if notSupported != nil {
		return nil, notSupported
	}
	return expr, nil
}

// parse resolves the leading segment and recurses over the rest. A
// not-supported result means the segment's parameter name is unknown on this
// resource type; fan-out callers treat it as "skip this candidate" while
// every other failure propagates as a hard error.
func (p *Parser) parse(resourceType string, segments []string, value string) (Expression, *SearchParameterNotSupportedError, error) {
	name, modifier, err := splitSegment(segments[0])
	if err != nil {
		return nil, nil, err
	}

	param, err := p.defs.GetSearchParameter(resourceType, name)
	if err != nil {
		var notSupported *SearchParameterNotSupportedError
		if errors.As(err, &notSupported) {
			return nil, notSupported, nil
		}
		return nil, nil, err
	}

	if len(segments) == 1 {
		expr, err := p.leaf.Build(param, modifier, value)
		return expr, nil, err
	}

	if param.Type != TypeReference {
		return nil, nil, &InvalidSearchOperationError{
			Segment: segments[0],
			Reason:  "chained segment requires a reference parameter",
		}
	}

	// An explicit type scope narrows the fan-out to one declared target.
	candidates := param.TargetTypes
	if modifier != "" {
		if !containsType(param.TargetTypes, modifier) {
			return nil, nil, &InvalidSearchOperationError{
				Segment: segments[0],
				Reason:  "type scope " + modifier + " is not a declared reference target",
			}
		}
		candidates = []string{modifier}
	}

	var branches []Expression
	for _, target := range candidates {
		inner, skipped, err := p.parse(target, segments[1:], value)
		if err != nil {
			return nil, nil, err
		}
		if skipped != nil {
			continue
		}
		branches = append(branches, &ChainedExpression{
			SourceResourceType: resourceType,
			ParameterName:      param.Name,
			TargetResourceType: target,
			Expression:         inner,
		})
	}
	if len(branches) == 0 {
		return nil, nil, &InvalidSearchOperationError{
			Segment: segments[0],
			Reason:  "no reference target supports the remainder of the chain",
		}
	}
	return Or(branches...), nil, nil
}

// splitSegment separates a segment into its parameter name and optional
// modifier or type-scope token. More than one colon is malformed.
func splitSegment(segment string) (name, modifier string, err error) {
	parts := strings.Split(segment, ":")
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", &InvalidSearchOperationError{
			Segment: segment,
			Reason:  "at most one modifier is allowed per segment",
		}
	}
}

func containsType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
