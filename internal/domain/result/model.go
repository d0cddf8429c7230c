// Package result validates entered lab results and classifies them against
// a test's reference range or choice set.
package result

import (
	"github.com/shopspring/decimal"
)

// Flag is the interpretation attached to a result. In-range numeric results
// and unmatched text results carry no flag.
type Flag string

const (
	FlagNone Flag = ""
	FlagLow  Flag = "LOW"
	FlagHigh Flag = "HIGH"
)

// HighRule selects how a numeric result is compared against max_ref_value.
type HighRule string

const (
	// HighAboveMax flags HIGH when the result is greater than max_ref_value.
	HighAboveMax HighRule = "above-max"
	// HighLegacy flags HIGH when the result is less than max_ref_value, as
	// records interpreted before the comparison was corrected were.
	HighLegacy HighRule = "legacy"
)

// Value is a parsed result. Exactly one of Numeric or Text is set for an
// entered result; both empty means no result yet.
type Value struct {
	Numeric decimal.NullDecimal `json:"num_result"`
	Text    string              `json:"text_result,omitempty"`
}

// Empty reports whether no result has been entered.
func (v Value) Empty() bool {
	return !v.Numeric.Valid && v.Text == ""
}

// String renders the value for display and activity details.
func (v Value) String() string {
	if v.Numeric.Valid {
		return v.Numeric.Decimal.String()
	}
	return v.Text
}
