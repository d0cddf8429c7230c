package result

import (
	"github.com/shopspring/decimal"

	"github.com/labflow/labflow/internal/platform/apperr"
)

// BMIClass is a body-mass-index band with its report labels.
type BMIClass struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Thai  string `json:"label_th"`
}

var (
	BMIUnderweight = BMIClass{"underweight", "Underweight", "น้ำหนักน้อย"}
	BMINormal      = BMIClass{"normal", "Normal", "ปกติ"}
	BMIOverweight  = BMIClass{"overweight", "Overweight", "น้ำหนักเกิน"}
	BMIObese       = BMIClass{"obese", "Obese", "อ้วน"}
)

type BMIResult struct {
	Value decimal.Decimal `json:"bmi"`
	Class BMIClass        `json:"class"`
}

var (
	bmiUnder  = decimal.RequireFromString("18.5")
	bmiNormal = decimal.NewFromInt(25)
	bmiOver   = decimal.NewFromInt(30)
	hundred   = decimal.NewFromInt(100)
)

// BMI computes weight / height² from kilograms and centimetres, rounded to
// one decimal place, and classifies the rounded value.
func BMI(weightKg, heightCm decimal.Decimal) (BMIResult, error) {
	if !weightKg.IsPositive() || !heightCm.IsPositive() {
		return BMIResult{}, apperr.Validation("weight and height must be positive")
	}
	m := heightCm.Div(hundred)
	v := weightKg.Div(m.Mul(m)).Round(1)
	return BMIResult{Value: v, Class: ClassifyBMI(v)}, nil
}

func ClassifyBMI(v decimal.Decimal) BMIClass {
	switch {
	case v.LessThan(bmiUnder):
		return BMIUnderweight
	case v.LessThan(bmiNormal):
		return BMINormal
	case v.LessThan(bmiOver):
		return BMIOverweight
	default:
		return BMIObese
	}
}
