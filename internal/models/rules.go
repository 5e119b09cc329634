package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Operator identifies the predicate of an [Expression].
type Operator string

const (
	OpEquals             Operator = "Equals"
	OpContains           Operator = "Contains"
	OpStartsWith         Operator = "StartsWith"
	OpEndsWith           Operator = "EndsWith"
	OpMatchRegex         Operator = "MatchRegex"
	OpGreaterThan        Operator = "GreaterThan"
	OpLessThan           Operator = "LessThan"
	OpGreaterThanOrEqual Operator = "GreaterThanOrEqual"
	OpLessThanOrEqual    Operator = "LessThanOrEqual"
	OpBetween            Operator = "Between"
	OpNewerThan          Operator = "NewerThan" // date within the last N days
	OpOlderThan          Operator = "OlderThan" // date more than N days ago
	OpHasAny             Operator = "HasAny"
	OpHasAll             Operator = "HasAll"
	OpHasNone            Operator = "HasNone"
	OpIsSet              Operator = "IsSet"
	OpIsUnset            Operator = "IsUnset"
)

// Existence reports whether the operator tests presence rather than content.
func (o Operator) Existence() bool {
	return o == OpIsSet || o == OpIsUnset
}

// Operand is the right-hand side of an expression. In JSON it may be a scalar or an array.
type Operand []string

// UnmarshalJSON accepts "x", 3, true, ["a", "b"] and [1, 2].
func (o *Operand) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid operand: %w", err)
	}

	switch v := raw.(type) {
	case nil:
		*o = nil
	case []any:
		out := make(Operand, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*o = out
	default:
		s, err := scalarString(v)
		if err != nil {
			return err
		}
		*o = Operand{s}
	}
	return nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("invalid operand element %v", v)
	}
}

// Expression is one atomic predicate over a single field.
type Expression struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Operand  Operand  `json:"operand,omitempty"`
	Negate   bool     `json:"negate,omitempty"`
}

// ExpressionSet matches when all of its expressions match.
type ExpressionSet struct {
	Expressions []Expression `json:"expressions"`
}

// RuleSet matches when any of its expression sets matches. An empty RuleSet matches nothing.
type RuleSet struct {
	Sets []ExpressionSet `json:"sets"`
}

// Empty reports whether the rule set holds no expressions at all.
func (r RuleSet) Empty() bool {
	for _, set := range r.Sets {
		if len(set.Expressions) > 0 {
			return false
		}
	}
	return true
}

// Direction is the sort direction of an [OrderSpec].
type Direction string

const (
	Ascending  Direction = "Ascending"
	Descending Direction = "Descending"
)

// OrderSpec sorts the composed list. An empty Field keeps composition order.
type OrderSpec struct {
	Field     Field     `json:"field,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Enabled reports whether ordering is requested.
func (o OrderSpec) Enabled() bool {
	return o.Field != ""
}
