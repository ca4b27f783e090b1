package graph

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdent rejects labels and relation types that cannot be used as
// Cypher identifiers. Anything spliced into query text must pass this first.
func ValidateIdent(s string) error {
	if !identPattern.MatchString(s) {
		return fmt.Errorf("graph: invalid identifier %q", s)
	}
	return nil
}

func quoteIdent(s string) (string, error) {
	if err := ValidateIdent(s); err != nil {
		return "", err
	}
	return "`" + s + "`", nil
}

// orderExpr lowers string values only, so numeric fields keep numeric order.
// toString(x) = x holds only for strings.
const orderExpr = "CASE WHEN toString(n[$order_by]) = n[$order_by] THEN toLower(n[$order_by]) ELSE n[$order_by] END"

// nodePattern renders "(v:`label` {id: $param})" pieces for MATCH clauses.
func nodePattern(v, label, idParam string) (string, error) {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(v)
	if label != "" {
		q, err := quoteIdent(label)
		if err != nil {
			return "", err
		}
		b.WriteString(":")
		b.WriteString(q)
	}
	if idParam != "" {
		b.WriteString(" {id: $")
		b.WriteString(idParam)
		b.WriteString("}")
	}
	b.WriteString(")")
	return b.String(), nil
}

// relPatternClause renders the MATCH clause for p, binding a, r and b.
func relPatternClause(p RelPattern, params map[string]any) (string, error) {
	startParam, endParam := "", ""
	if p.StartID != "" {
		startParam = "start_id"
		params[startParam] = p.StartID
	}
	if p.EndID != "" {
		endParam = "end_id"
		params[endParam] = p.EndID
	}
	a, err := nodePattern("a", p.StartLabel, startParam)
	if err != nil {
		return "", err
	}
	b, err := nodePattern("b", p.EndLabel, endParam)
	if err != nil {
		return "", err
	}
	rel := "[r]"
	if p.Type != "" {
		q, err := quoteIdent(p.Type)
		if err != nil {
			return "", err
		}
		rel = "[r:" + q + "]"
	}
	return "MATCH " + a + "-" + rel + "->" + b, nil
}

// nodeQueryClause renders MATCH/WHERE/ORDER BY/LIMIT for q, binding n.
func nodeQueryClause(q NodeQuery, params map[string]any) (string, error) {
	var b strings.Builder
	var conds []string

	switch len(q.Labels) {
	case 0:
		b.WriteString("MATCH (n)")
	case 1:
		pat, err := nodePattern("n", q.Labels[0], "")
		if err != nil {
			return "", err
		}
		b.WriteString("MATCH " + pat)
	default:
		for _, l := range q.Labels {
			if err := ValidateIdent(l); err != nil {
				return "", err
			}
		}
		b.WriteString("MATCH (n)")
		params["labels"] = q.Labels
		conds = append(conds, "any(l IN labels(n) WHERE l IN $labels)")
	}

	idx := 0
	render := func(p Predicate) (string, error) {
		f := fmt.Sprintf("f%d", idx)
		v := fmt.Sprintf("v%d", idx)
		idx++
		params[f] = p.Field
		switch p.Op {
		case OpEquals:
			params[v] = p.Value
			return fmt.Sprintf("n[$%s] = $%s", f, v), nil
		case OpStartsWith:
			params[v] = fmt.Sprint(p.Value)
			return fmt.Sprintf("toLower(toString(n[$%s])) STARTS WITH toLower($%s)", f, v), nil
		case OpContains:
			params[v] = fmt.Sprint(p.Value)
			return fmt.Sprintf("toLower(toString(n[$%s])) CONTAINS toLower($%s)", f, v), nil
		case OpIn:
			params[v] = p.Value
			return fmt.Sprintf("n[$%s] IN $%s", f, v), nil
		}
		return "", fmt.Errorf("graph: unsupported operator %d", p.Op)
	}

	for _, p := range q.Where {
		c, err := render(p)
		if err != nil {
			return "", err
		}
		conds = append(conds, c)
	}
	if len(q.Any) > 0 {
		var ors []string
		for _, p := range q.Any {
			c, err := render(p)
			if err != nil {
				return "", err
			}
			ors = append(ors, c)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if len(conds) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString("\nRETURN n")
	if q.OrderBy != "" {
		params["order_by"] = q.OrderBy
		b.WriteString("\nORDER BY " + orderExpr)
		if q.Desc {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		params["limit"] = int64(q.Limit)
		b.WriteString("\nLIMIT $limit")
	}
	return b.String(), nil
}

// traverseClause renders a single MATCH p=... for a fixed hop sequence.
func traverseClause(startLabel string, hops []Hop) (string, error) {
	start, err := nodePattern("s", startLabel, "start_id")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("MATCH p=")
	b.WriteString(start)
	for i, h := range hops {
		t, err := quoteIdent(h.Type)
		if err != nil {
			return "", err
		}
		next, err := nodePattern(fmt.Sprintf("n%d", i), h.Label, "")
		if err != nil {
			return "", err
		}
		if h.Dir == Incoming {
			b.WriteString("<-[:" + t + "]-")
		} else {
			b.WriteString("-[:" + t + "]->")
		}
		b.WriteString(next)
	}
	b.WriteString("\nRETURN p")
	return b.String(), nil
}
