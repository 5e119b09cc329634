// package rules interprets the smart list rule grammar against catalog entries.
//
// A [Program] is a compiled [models.RuleSet]: operands are parsed once, field and operator
// compatibility is checked once, and matching an entry never fails. Entries lacking a
// referenced field never match an expression unless the operator is IsSet or IsUnset.
package rules

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// operators valid for each value kind, in addition to IsSet and IsUnset
var kindOperators = map[models.ValueKind][]models.Operator{
	models.ValueString: {
		models.OpEquals, models.OpContains, models.OpStartsWith, models.OpEndsWith, models.OpMatchRegex,
		models.OpHasAny, models.OpHasNone,
	},
	models.ValueEnum: {models.OpEquals, models.OpHasAny, models.OpHasNone},
	models.ValueNumber: {
		models.OpEquals, models.OpGreaterThan, models.OpLessThan,
		models.OpGreaterThanOrEqual, models.OpLessThanOrEqual, models.OpBetween,
	},
	models.ValueDuration: {
		models.OpEquals, models.OpGreaterThan, models.OpLessThan,
		models.OpGreaterThanOrEqual, models.OpLessThanOrEqual, models.OpBetween,
	},
	models.ValueDate: {
		models.OpEquals, models.OpGreaterThan, models.OpLessThan,
		models.OpGreaterThanOrEqual, models.OpLessThanOrEqual, models.OpBetween,
		models.OpNewerThan, models.OpOlderThan,
	},
	models.ValueBool: {models.OpEquals},
	models.ValueSet:  {models.OpContains, models.OpHasAny, models.OpHasAll, models.OpHasNone},
}

// Supports reports whether op may be applied to fields of kind k.
func Supports(k models.ValueKind, op models.Operator) bool {
	if op.Existence() {
		return true
	}
	return slices.Contains(kindOperators[k], op)
}

// predicate is one compiled expression.
type predicate struct {
	expr  models.Expression
	kind  models.ValueKind
	strs  []string // lowercased
	nums  []float64
	times []time.Time
	durs  []time.Duration
	flag  bool
	days  float64
	re    *regexp.Regexp
	// broken predicates come from invalid expressions evaluated leniently and never match
	broken bool
}

// Program is a compiled [models.RuleSet].
type Program struct {
	sets  [][]predicate
	clock models.Clock
}

// Compile validates every expression of rs and pre-parses operands.
func Compile(rs models.RuleSet) (*Program, error) {
	return compile(rs, nil, true)
}

// CompileAt is [Compile] with a pinned clock for relative date operators.
func CompileAt(rs models.RuleSet, clock models.Clock) (*Program, error) {
	return compile(rs, clock, true)
}

func compile(rs models.RuleSet, clock models.Clock, strict bool) (*Program, error) {
	p := &Program{clock: clock}
	for i, set := range rs.Sets {
		if len(set.Expressions) == 0 {
			continue
		}
		preds := make([]predicate, 0, len(set.Expressions))
		for j, expr := range set.Expressions {
			pred, err := compileExpression(expr)
			if err != nil {
				if strict {
					return nil, shared.ValidationError{
						Field:   fmt.Sprintf("rules.sets[%d].expressions[%d]", i, j),
						Message: err.Error(),
					}
				}
				pred = predicate{expr: expr, broken: true}
			}
			preds = append(preds, pred)
		}
		p.sets = append(p.sets, preds)
	}
	return p, nil
}

// Empty reports whether the program has no expressions and therefore matches nothing.
func (p *Program) Empty() bool {
	return len(p.sets) == 0
}

// Match reports whether any expression set matches e.
func (p *Program) Match(e models.MediaEntry) bool {
	now := p.clock.Now()
	for _, set := range p.sets {
		if matchAll(set, e, now) {
			return true
		}
	}
	return false
}

func matchAll(set []predicate, e models.MediaEntry, now time.Time) bool {
	for i := range set {
		if !set[i].match(e, now) {
			return false
		}
	}
	return true
}

// Evaluate reports whether e matches rs. Invalid expressions never match.
func Evaluate(e models.MediaEntry, rs models.RuleSet) bool {
	p, _ := compile(rs, nil, false)
	return p.Match(e)
}

func compileExpression(expr models.Expression) (predicate, error) {
	kind, ok := expr.Field.Kind()
	if !ok {
		return predicate{}, fmt.Errorf("unknown field %q", expr.Field)
	}
	if !Supports(kind, expr.Operator) {
		return predicate{}, fmt.Errorf("operator %s is not valid for %s field %s", expr.Operator, kind, expr.Field)
	}

	pred := predicate{expr: expr, kind: kind}
	if expr.Operator.Existence() {
		return pred, nil
	}

	if err := checkArity(expr); err != nil {
		return predicate{}, err
	}

	switch expr.Operator {
	case models.OpNewerThan, models.OpOlderThan:
		days, err := strconv.ParseFloat(strings.TrimSpace(expr.Operand[0]), 64)
		if err != nil || days < 0 {
			return predicate{}, fmt.Errorf("%s expects a non-negative number of days, got %q", expr.Operator, expr.Operand[0])
		}
		pred.days = days
		return pred, nil
	case models.OpMatchRegex:
		re, err := regexp.Compile("(?i)" + expr.Operand[0])
		if err != nil {
			return predicate{}, fmt.Errorf("invalid pattern %q: %v", expr.Operand[0], err)
		}
		pred.re = re
		return pred, nil
	}

	switch kind {
	case models.ValueString, models.ValueEnum, models.ValueSet:
		for _, s := range expr.Operand {
			pred.strs = append(pred.strs, strings.ToLower(strings.TrimSpace(s)))
		}
	case models.ValueNumber:
		for _, s := range expr.Operand {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return predicate{}, fmt.Errorf("%s expects a number, got %q", expr.Field, s)
			}
			pred.nums = append(pred.nums, n)
		}
	case models.ValueDuration:
		for _, s := range expr.Operand {
			d, err := ParseMinutes(s)
			if err != nil {
				return predicate{}, err
			}
			pred.durs = append(pred.durs, d)
		}
	case models.ValueDate:
		for _, s := range expr.Operand {
			t, err := ParseDate(s)
			if err != nil {
				return predicate{}, err
			}
			pred.times = append(pred.times, t)
		}
	case models.ValueBool:
		b, err := strconv.ParseBool(strings.TrimSpace(expr.Operand[0]))
		if err != nil {
			return predicate{}, fmt.Errorf("%s expects true or false, got %q", expr.Field, expr.Operand[0])
		}
		pred.flag = b
	}

	if expr.Operator == models.OpBetween && !ordered(pred) {
		return predicate{}, fmt.Errorf("between bounds for %s are reversed", expr.Field)
	}
	return pred, nil
}

func checkArity(expr models.Expression) error {
	n := len(expr.Operand)
	switch expr.Operator {
	case models.OpBetween:
		if n != 2 {
			return fmt.Errorf("between expects two operands, got %d", n)
		}
	case models.OpHasAny, models.OpHasAll, models.OpHasNone:
		if n == 0 {
			return fmt.Errorf("%s expects at least one operand", expr.Operator)
		}
	default:
		if n != 1 {
			return fmt.Errorf("%s expects one operand, got %d", expr.Operator, n)
		}
	}
	return nil
}

func ordered(p predicate) bool {
	switch p.kind {
	case models.ValueNumber:
		return p.nums[0] <= p.nums[1]
	case models.ValueDuration:
		return p.durs[0] <= p.durs[1]
	case models.ValueDate:
		return !p.times[0].After(p.times[1])
	}
	return true
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseMinutes reads a duration operand expressed in minutes, or in Go duration syntax.
func ParseMinutes(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if m, err := strconv.ParseFloat(s, 64); err == nil {
		if m < 0 || math.IsInf(m, 0) || math.IsNaN(m) {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(m * float64(time.Minute)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func (p *predicate) match(e models.MediaEntry, now time.Time) bool {
	if p.broken {
		return false
	}

	v, present := e.Get(p.expr.Field)
	switch p.expr.Operator {
	case models.OpIsSet:
		return present != p.expr.Negate
	case models.OpIsUnset:
		return !present != p.expr.Negate
	}

	if !present || v.Kind != p.kind {
		return false
	}
	return p.test(v, now) != p.expr.Negate
}

func (p *predicate) test(v models.Value, now time.Time) bool {
	switch p.kind {
	case models.ValueString, models.ValueEnum:
		return p.testString(strings.ToLower(v.Str))
	case models.ValueSet:
		return p.testSet(v.Set)
	case models.ValueNumber:
		return compareWith(p.expr.Operator, cmp.Compare(v.Num, p.nums[0]), func() bool {
			return v.Num >= p.nums[0] && v.Num <= p.nums[1]
		})
	case models.ValueDuration:
		return compareWith(p.expr.Operator, cmp.Compare(v.Dur, p.durs[0]), func() bool {
			return v.Dur >= p.durs[0] && v.Dur <= p.durs[1]
		})
	case models.ValueDate:
		return p.testDate(v.Time, now)
	case models.ValueBool:
		return v.Bool == p.flag
	}
	return false
}

func (p *predicate) testString(s string) bool {
	switch p.expr.Operator {
	case models.OpEquals:
		return s == p.strs[0]
	case models.OpContains:
		return strings.Contains(s, p.strs[0])
	case models.OpStartsWith:
		return strings.HasPrefix(s, p.strs[0])
	case models.OpEndsWith:
		return strings.HasSuffix(s, p.strs[0])
	case models.OpMatchRegex:
		return p.re.MatchString(s)
	case models.OpHasAny:
		return slices.Contains(p.strs, s)
	case models.OpHasNone:
		return !slices.Contains(p.strs, s)
	}
	return false
}

func (p *predicate) testSet(items []string) bool {
	have := make(map[string]bool, len(items))
	for _, item := range items {
		have[strings.ToLower(strings.TrimSpace(item))] = true
	}

	switch p.expr.Operator {
	case models.OpContains:
		for item := range have {
			if strings.Contains(item, p.strs[0]) {
				return true
			}
		}
		return false
	case models.OpHasAny:
		for _, want := range p.strs {
			if have[want] {
				return true
			}
		}
		return false
	case models.OpHasAll:
		for _, want := range p.strs {
			if !have[want] {
				return false
			}
		}
		return true
	case models.OpHasNone:
		for _, want := range p.strs {
			if have[want] {
				return false
			}
		}
		return true
	}
	return false
}

func (p *predicate) testDate(t time.Time, now time.Time) bool {
	switch p.expr.Operator {
	case models.OpNewerThan:
		return t.After(now.Add(-fractionalDays(p.days)))
	case models.OpOlderThan:
		return t.Before(now.Add(-fractionalDays(p.days)))
	case models.OpEquals:
		y1, m1, d1 := t.UTC().Date()
		y2, m2, d2 := p.times[0].UTC().Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	return compareWith(p.expr.Operator, t.Compare(p.times[0]), func() bool {
		return !t.Before(p.times[0]) && !t.After(p.times[1])
	})
}

func compareWith(op models.Operator, c int, between func() bool) bool {
	switch op {
	case models.OpEquals:
		return c == 0
	case models.OpGreaterThan:
		return c > 0
	case models.OpLessThan:
		return c < 0
	case models.OpGreaterThanOrEqual:
		return c >= 0
	case models.OpLessThanOrEqual:
		return c <= 0
	case models.OpBetween:
		return between()
	}
	return false
}

func fractionalDays(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}

