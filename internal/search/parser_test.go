package search

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDefs resolves parameters from a static table keyed by resource type.
type fakeDefs map[string]map[string]*SearchParameter

func (d fakeDefs) GetSearchParameter(resourceType, name string) (*SearchParameter, error) {
	if param, ok := d[resourceType][name]; ok {
		return param, nil
	}
	return nil, &SearchParameterNotSupportedError{ResourceType: resourceType, Name: name}
}

// stubLeaf records what the parser handed to the leaf builder.
type stubLeaf struct {
	Param    *SearchParameter
	Modifier string
	Value    string
}

func (s *stubLeaf) isExpression() {}

func (s *stubLeaf) String() string {
	return fmt.Sprintf("Leaf(%s:%s=%s)", s.Param.Name, s.Modifier, s.Value)
}

type stubBuilder struct{}

func (stubBuilder) Build(param *SearchParameter, modifier, value string) (Expression, error) {
	return &stubLeaf{Param: param, Modifier: modifier, Value: value}, nil
}

func chainDefs() fakeDefs {
	return fakeDefs{
		"Patient": {
			"ref": {Name: "ref", Type: TypeReference, TargetTypes: []string{"Organization"}},
			"multiref": {
				Name: "multiref", Type: TypeReference,
				TargetTypes: []string{"Organization", "Practitioner"},
			},
			"name": {Name: "name", Type: TypeString},
		},
		"Organization": {
			"ref2": {Name: "ref2", Type: TypeReference, TargetTypes: []string{"Practitioner"}},
		},
		"Practitioner": {
			"param": {Name: "param", Type: TypeToken},
		},
	}
}

func newTestParser(defs Definitions) *Parser {
	return NewParser(defs, stubBuilder{})
}

func TestParseLeafReturnedUnwrapped(t *testing.T) {
	p := newTestParser(chainDefs())

	expr, err := p.Parse("Patient", "name", "smith")
	require.NoError(t, err)

	leaf, ok := expr.(*stubLeaf)
	require.True(t, ok, "leaf result must not be wrapped, got %T", expr)
	assert.Equal(t, "name", leaf.Param.Name)
	assert.Equal(t, "", leaf.Modifier)
	assert.Equal(t, "smith", leaf.Value)
}

func TestParseLeafModifierPassedThrough(t *testing.T) {
	p := newTestParser(chainDefs())

	expr, err := p.Parse("Patient", "name:exact", "smith")
	require.NoError(t, err)
	assert.Equal(t, "exact", expr.(*stubLeaf).Modifier)
}

func TestParseChainedSingleTarget(t *testing.T) {
	defs := chainDefs()
	defs["Organization"]["param"] = &SearchParameter{Name: "param", Type: TypeToken}
	p := newTestParser(defs)

	expr, err := p.Parse("Patient", "ref.param", "x")
	require.NoError(t, err)

	or, ok := expr.(*MultiaryExpression)
	require.True(t, ok)
	assert.Equal(t, OperatorOr, or.Operator)
	require.Len(t, or.Expressions, 1)

	chained, ok := or.Expressions[0].(*ChainedExpression)
	require.True(t, ok)
	assert.Equal(t, "Patient", chained.SourceResourceType)
	assert.Equal(t, "ref", chained.ParameterName)
	assert.Equal(t, "Organization", chained.TargetResourceType)
	assert.IsType(t, &stubLeaf{}, chained.Expression)
}

func TestParseChainedSkipsUnsupportedTarget(t *testing.T) {
	// param resolves on Practitioner only; the Organization branch is
	// silently dropped.
	p := newTestParser(chainDefs())

	expr, err := p.Parse("Patient", "multiref.param", "x")
	require.NoError(t, err)

	or := expr.(*MultiaryExpression)
	require.Len(t, or.Expressions, 1)
	chained := or.Expressions[0].(*ChainedExpression)
	assert.Equal(t, "Practitioner", chained.TargetResourceType)
}

func TestParseChainedAllTargetsUnsupported(t *testing.T) {
	p := newTestParser(chainDefs())

	_, err := p.Parse("Patient", "ref.nosuch", "x")
	var invalid *InvalidSearchOperationError
	require.ErrorAs(t, err, &invalid)
}

func TestParseChainedTypeScope(t *testing.T) {
	defs := chainDefs()
	defs["Organization"]["param"] = &SearchParameter{Name: "param", Type: TypeToken}
	p := newTestParser(defs)

	expr, err := p.Parse("Patient", "multiref:Practitioner.param", "x")
	require.NoError(t, err)

	or := expr.(*MultiaryExpression)
	require.Len(t, or.Expressions, 1, "explicit scope must narrow fan-out to one branch")
	assert.Equal(t, "Practitioner", or.Expressions[0].(*ChainedExpression).TargetResourceType)
}

func TestParseChainedTypeScopeNotDeclared(t *testing.T) {
	p := newTestParser(chainDefs())

	_, err := p.Parse("Patient", "ref:Practitioner.param", "x")
	var invalid *InvalidSearchOperationError
	require.ErrorAs(t, err, &invalid)
}

func TestParseNestedChainDepthTwo(t *testing.T) {
	p := newTestParser(chainDefs())

	expr, err := p.Parse("Patient", "ref.ref2.param", "x")
	require.NoError(t, err)

	outer := expr.(*MultiaryExpression)
	require.Len(t, outer.Expressions, 1)
	first := outer.Expressions[0].(*ChainedExpression)
	assert.Equal(t, "Patient", first.SourceResourceType)
	assert.Equal(t, "Organization", first.TargetResourceType)

	inner := first.Expression.(*MultiaryExpression)
	require.Equal(t, OperatorOr, inner.Operator)
	require.Len(t, inner.Expressions, 1)
	second := inner.Expressions[0].(*ChainedExpression)
	assert.Equal(t, "Organization", second.SourceResourceType)
	assert.Equal(t, "ref2", second.ParameterName)
	assert.Equal(t, "Practitioner", second.TargetResourceType)
	assert.IsType(t, &stubLeaf{}, second.Expression)
}

func TestParseDoubleColonAlwaysInvalid(t *testing.T) {
	p := newTestParser(chainDefs())

	for _, key := range []string{"name:a:b", "nosuchparam:a:b", "ref.param:a:b"} {
		_, err := p.Parse("Patient", key, "x")
		var invalid *InvalidSearchOperationError
		require.ErrorAs(t, err, &invalid, "key %q", key)
	}
}

func TestParseChainThroughNonReference(t *testing.T) {
	p := newTestParser(chainDefs())

	_, err := p.Parse("Patient", "name.param", "x")
	var invalid *InvalidSearchOperationError
	require.ErrorAs(t, err, &invalid)
}

func TestParseUnknownParameterPropagates(t *testing.T) {
	p := newTestParser(chainDefs())

	_, err := p.Parse("Patient", "nosuch", "x")
	var unsupported *SearchParameterNotSupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "nosuch", unsupported.Name)
	assert.Equal(t, "Patient", unsupported.ResourceType)
}

func TestParseLeafBuilderErrorPropagates(t *testing.T) {
	failing := errors.New("bad value")
	p := NewParser(chainDefs(), leafFunc(func(*SearchParameter, string, string) (Expression, error) {
		return nil, failing
	}))

	_, err := p.Parse("Patient", "name", "x")
	require.ErrorIs(t, err, failing)
}

func TestParseDeterministicCandidateOrder(t *testing.T) {
	defs := chainDefs()
	defs["Organization"]["param"] = &SearchParameter{Name: "param", Type: TypeToken}
	p := newTestParser(defs)

	// Both targets support param; branches follow the declared target order.
	expr, err := p.Parse("Patient", "multiref.param", "x")
	require.NoError(t, err)
	or := expr.(*MultiaryExpression)
	require.Len(t, or.Expressions, 2)
	assert.Equal(t, "Organization", or.Expressions[0].(*ChainedExpression).TargetResourceType)
	assert.Equal(t, "Practitioner", or.Expressions[1].(*ChainedExpression).TargetResourceType)
}

type leafFunc func(*SearchParameter, string, string) (Expression, error)

func (f leafFunc) Build(param *SearchParameter, modifier, value string) (Expression, error) {
	return f(param, modifier, value)
}
