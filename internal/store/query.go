package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/openclinic/fhird/internal/search"
)

// queryBuilder translates a search expression tree into a SQL predicate over
// the search_index table. Leaf predicates become EXISTS subqueries against
// the index rows of the resource alias in scope; chained expressions join
// through the reference index into the target resource table.
type queryBuilder struct {
	args  []any
	alias int
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *queryBuilder) nextAlias(prefix string) string {
	b.alias++
	return fmt.Sprintf("%s%d", prefix, b.alias)
}

// predicate renders the expression as a boolean SQL fragment scoped to the
// resource table alias r.
func (b *queryBuilder) predicate(r string, expr search.Expression) (string, error) {
	switch e := expr.(type) {
	case *search.MultiaryExpression:
		return b.multiary(r, e)
	case *search.ChainedExpression:
		return b.chained(r, e)
	case *search.StringExpression:
		return b.leaf(r, e.ParameterName, func(si string) string { return b.stringMatch(si, e) }), nil
	case *search.TokenExpression:
		return b.leaf(r, e.ParameterName, func(si string) string { return b.tokenMatch(si, e) }), nil
	case *search.ReferenceExpression:
		return b.leaf(r, e.ParameterName, func(si string) string { return b.referenceMatch(si, e) }), nil
	case *search.NumberExpression:
		return b.leaf(r, e.ParameterName, func(si string) string {
			return fmt.Sprintf("%s.value::numeric %s %s::numeric", si, comparisonOp(e.Prefix), b.bind(e.Value.String()))
		}), nil
	case *search.DateExpression:
		// The index extractor normalizes date values to RFC 3339 at write
		// time, so within that one format text comparison is correct.
		return b.leaf(r, e.ParameterName, func(si string) string {
			return fmt.Sprintf("%s.value %s %s", si, comparisonOp(e.Prefix), b.bind(e.Value.Format(time.RFC3339)))
		}), nil
	default:
		return "", fmt.Errorf("untranslatable expression %T", expr)
	}
}

func (b *queryBuilder) multiary(r string, e *search.MultiaryExpression) (string, error) {
	if len(e.Expressions) == 0 {
		return "", fmt.Errorf("empty multiary expression")
	}
	op := " AND "
	if e.Operator == search.OperatorOr {
		op = " OR "
	}
	out := "("
	for i, child := range e.Expressions {
		frag, err := b.predicate(r, child)
		if err != nil {
			return "", err
		}
		if i > 0 {
			out += op
		}
		out += frag
	}
	return out + ")", nil
}

func (b *queryBuilder) chained(r string, e *search.ChainedExpression) (string, error) {
	ref := b.nextAlias("ref")
	tt := b.nextAlias("tt")
	tgt := b.nextAlias("tgt")
	target := b.bind(e.TargetResourceType)
	param := b.bind(e.ParameterName)

	inner, err := b.predicate(tgt, e.Expression)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`EXISTS (SELECT 1
FROM search_index %[1]s
JOIN resource_type %[2]s ON %[2]s.name = %[4]s
JOIN resource %[3]s ON %[3]s.resource_type_id = %[2]s.id
	AND %[3]s.resource_id = %[1]s.ref_id
	AND %[3]s.is_history = false AND %[3]s.is_deleted = false
WHERE %[1]s.resource_type_id = %[6]s.resource_type_id
  AND %[1]s.resource_id = %[6]s.resource_id
  AND %[1]s.param_name = %[5]s
  AND (%[1]s.ref_type = '' OR %[1]s.ref_type = %[4]s)
  AND %[7]s)`,
		ref, tt, tgt, target, param, r, inner), nil
}

// leaf emits an EXISTS subquery over the index rows of alias r; valuePred
// receives the generated search_index alias.
func (b *queryBuilder) leaf(r, paramName string, valuePred func(si string) string) string {
	si := b.nextAlias("si")
	param := b.bind(paramName)
	return fmt.Sprintf(`EXISTS (SELECT 1 FROM search_index %[1]s
WHERE %[1]s.resource_type_id = %[2]s.resource_type_id
  AND %[1]s.resource_id = %[2]s.resource_id
  AND %[1]s.param_name = %[3]s
  AND %[4]s)`, si, r, param, valuePred(si))
}

func (b *queryBuilder) stringMatch(si string, e *search.StringExpression) string {
	switch {
	case e.Exact:
		return si + ".value = " + b.bind(e.Value)
	case e.Contains:
		return si + ".value ILIKE " + b.bind("%"+likeEscape(e.Value)+"%")
	default:
		return si + ".value ILIKE " + b.bind(likeEscape(e.Value)+"%")
	}
}

func (b *queryBuilder) tokenMatch(si string, e *search.TokenExpression) string {
	pred := si + ".value = " + b.bind(e.Code)
	if e.System != "" {
		pred += " AND " + si + ".system = " + b.bind(e.System)
	}
	return pred
}

func (b *queryBuilder) referenceMatch(si string, e *search.ReferenceExpression) string {
	pred := si + ".ref_id = " + b.bind(e.TargetID)
	if e.TargetType != "" {
		pred += " AND " + si + ".ref_type = " + b.bind(e.TargetType)
	}
	return pred
}

func comparisonOp(prefix string) string {
	switch prefix {
	case "ne":
		return "<>"
	case "gt", "sa":
		return ">"
	case "lt", "eb":
		return "<"
	case "ge":
		return ">="
	case "le":
		return "<="
	default:
		return "="
	}
}

func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Search returns the current, non-deleted resources of a type matching the
// expression, in surrogate-id order.
func (s *PostgresResourceStore) Search(ctx context.Context, resourceType string, expr search.Expression, limit int) ([]*ResourceWrapper, error) {
	b := &queryBuilder{}
	b.args = append(b.args, resourceType, limit)

	pred := "true"
	if expr != nil {
		var err error
		pred, err = b.predicate("r", expr)
		if err != nil {
			return nil, err
		}
	}

	q := fmt.Sprintf(`SELECT r.resource_id, r.version, r.surrogate_id, r.is_deleted, r.is_history, r.last_updated, r.payload, r.payload_format
FROM resource r
JOIN resource_type rt ON rt.id = r.resource_type_id
WHERE rt.name = $1 AND r.is_history = false AND r.is_deleted = false
  AND %s
ORDER BY r.surrogate_id
LIMIT $2`, pred)

	rows, err := conn(ctx, s.pool).Query(ctx, q, b.args...)
	if err != nil {
		return nil, s.storageFault(ctx, "search resources", err)
	}
	defer rows.Close()

	var out []*ResourceWrapper
	for rows.Next() {
		var (
			id         string
			version    int64
			surrogate  int64
			isDeleted  bool
			isHistory  bool
			updated    time.Time
			payload    []byte
			formatName string
		)
		if err := rows.Scan(&id, &version, &surrogate, &isDeleted, &isHistory, &updated, &payload, &formatName); err != nil {
			return nil, s.storageFault(ctx, "scan search row", err)
		}
		raw, err := decompressPayload(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, &ResourceWrapper{
			ResourceType: resourceType,
			ID:           id,
			VersionID:    strconv.FormatInt(version, 10),
			LastUpdated:  updated,
			IsDeleted:    isDeleted,
			IsHistory:    isHistory,
			RawResource:  raw,
			Format:       formatName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageFault(ctx, "search resources", err)
	}
	return out, nil
}
