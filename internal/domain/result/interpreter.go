package result

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/platform/apperr"
)

type Interpreter struct {
	rule HighRule
}

// NewInterpreter returns an interpreter for the named HIGH rule. An empty
// rule selects HighAboveMax.
func NewInterpreter(rule string) (*Interpreter, error) {
	switch HighRule(rule) {
	case "", HighAboveMax:
		return &Interpreter{rule: HighAboveMax}, nil
	case HighLegacy:
		return &Interpreter{rule: HighLegacy}, nil
	}
	return nil, apperr.Validation("unknown high rule %q", rule)
}

func (in *Interpreter) Rule() HighRule { return in.rule }

// Parse checks raw against the test's data type and returns the value to
// store. Numeric results must parse and lie within min_value/max_value when
// those are set. Tests with a choice set accept only one of its results.
func (in *Interpreter) Parse(t *catalog.Test, cs *catalog.ChoiceSet, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}, apperr.Validation("%s: result is required", t.Code)
	}
	switch t.DataType {
	case catalog.DataTypeNumeric:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Value{}, apperr.Validation("%s: %q is not a number", t.Code, raw)
		}
		if t.MinValue.Valid && d.LessThan(t.MinValue.Decimal) {
			return Value{}, apperr.Validation("%s: %s is below the minimum %s", t.Code, d, t.MinValue.Decimal)
		}
		if t.MaxValue.Valid && d.GreaterThan(t.MaxValue.Decimal) {
			return Value{}, apperr.Validation("%s: %s is above the maximum %s", t.Code, d, t.MaxValue.Decimal)
		}
		return Value{Numeric: decimal.NewNullDecimal(d)}, nil
	case catalog.DataTypeText:
		if cs != nil {
			if _, ok := cs.Match(raw); !ok {
				return Value{}, apperr.Validation("%s: %q is not a choice of %s", t.Code, raw, cs.Name)
			}
		}
		return Value{Text: raw}, nil
	}
	return Value{}, apperr.Validation("%s: unknown data type %q", t.Code, t.DataType)
}

// Interpret classifies v. Numeric values are compared with the reference
// range; text values take the interpretation of the matching choice.
func (in *Interpreter) Interpret(t *catalog.Test, cs *catalog.ChoiceSet, v Value) Flag {
	if v.Numeric.Valid {
		return in.Numeric(t, v.Numeric.Decimal)
	}
	if v.Text != "" && cs != nil {
		return Categorical(cs, v.Text)
	}
	return FlagNone
}

// Numeric classifies a numeric result against the test's reference range.
func (in *Interpreter) Numeric(t *catalog.Test, d decimal.Decimal) Flag {
	if t.MinRefValue.Valid && d.LessThan(t.MinRefValue.Decimal) {
		return FlagLow
	}
	if t.MaxRefValue.Valid {
		max := t.MaxRefValue.Decimal
		if in.rule == HighLegacy && d.LessThan(max) {
			return FlagHigh
		}
		if in.rule == HighAboveMax && d.GreaterThan(max) {
			return FlagHigh
		}
	}
	return FlagNone
}

// Categorical returns the interpretation of the choice whose result equals
// value, or FlagNone when nothing matches.
func Categorical(cs *catalog.ChoiceSet, value string) Flag {
	if it, ok := cs.Match(value); ok {
		return Flag(it.Interpretation)
	}
	return FlagNone
}
