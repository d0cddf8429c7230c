package result

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/labflow/labflow/internal/platform/apperr"
)

func TestBMI(t *testing.T) {
	tests := []struct {
		weight, height string
		want           string
		class          BMIClass
	}{
		{"70", "175", "22.9", BMINormal},
		{"45", "170", "15.6", BMIUnderweight},
		{"80", "170", "27.7", BMIOverweight},
		{"95", "165", "34.9", BMIObese},
	}
	for _, tt := range tests {
		res, err := BMI(decimal.RequireFromString(tt.weight), decimal.RequireFromString(tt.height))
		if err != nil {
			t.Fatalf("BMI(%s, %s): %v", tt.weight, tt.height, err)
		}
		if res.Value.String() != tt.want || res.Class != tt.class {
			t.Errorf("BMI(%s, %s) = %s %s, want %s %s", tt.weight, tt.height, res.Value, res.Class.Code, tt.want, tt.class.Code)
		}
	}
}

func TestClassifyBMI_Boundaries(t *testing.T) {
	tests := []struct {
		v    string
		want BMIClass
	}{
		{"18.4", BMIUnderweight},
		{"18.5", BMINormal},
		{"24.9", BMINormal},
		{"25", BMIOverweight},
		{"30", BMIObese},
	}
	for _, tt := range tests {
		if got := ClassifyBMI(decimal.RequireFromString(tt.v)); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.v, tt.want.Code, got.Code)
		}
	}
}

func TestBMI_Invalid(t *testing.T) {
	if _, err := BMI(decimal.NewFromInt(60), decimal.Zero); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_CalculateBMI(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"weight_kg":"70","height_cm":"175"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := NewHandler().CalculateBMI(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"bmi":"22.9"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
