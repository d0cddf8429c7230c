// Package billing prices an order's active records and keeps its payment.
package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType values are stored as-is in payment_records.discount_type.
type DiscountType int

const (
	DiscountNone       DiscountType = 0
	DiscountPercentage DiscountType = 1
	DiscountFixed      DiscountType = 3
)

func (d DiscountType) Valid() bool {
	return d == DiscountNone || d == DiscountPercentage || d == DiscountFixed
}

func (d DiscountType) String() string {
	switch d {
	case DiscountNone:
		return "none"
	case DiscountPercentage:
		return "percentage"
	case DiscountFixed:
		return "fixed"
	}
	return "unknown"
}

// Payment is one payment against an order. Only the payment with no
// ExpiredAt is current.
type Payment struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        uuid.UUID       `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
	AmountBalance  decimal.Decimal `json:"amount_balance"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Method         string          `json:"method"`
	Creator        string          `json:"creator"`
	CreatedAt      time.Time       `json:"created_at"`
	PaidAt         time.Time       `json:"payment_datetime"`
	ExpiredAt      *time.Time      `json:"expired_at,omitempty"`
	ReceiptID      string          `json:"receipt_id,omitempty"`
}

func (p *Payment) Current() bool { return p.ExpiredAt == nil }

// RealizedDiscount is the money taken off the balance. For a percentage
// discount DiscountAmount holds the rate, so the amount is what separates
// the balance from the grand total the cashier entered.
func (p *Payment) RealizedDiscount() decimal.Decimal {
	switch p.DiscountType {
	case DiscountPercentage:
		return p.AmountBalance.Sub(p.GrandTotal)
	case DiscountFixed:
		return p.DiscountAmount
	}
	return decimal.Zero
}

// Line is one invoiced test.
type Line struct {
	Seq       int             `json:"seq"`
	RecordID  uuid.UUID       `json:"record_id"`
	TestID    uuid.UUID       `json:"test_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ProfileID *uuid.UUID      `json:"profile_id,omitempty"`
	PackageID *uuid.UUID      `json:"package_id,omitempty"`
}

type Invoice struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderCode     string          `json:"order_code"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	Lines         []Line          `json:"lines"`
	AmountBalance decimal.Decimal `json:"amount_balance"`
	Payment       *Payment        `json:"payment,omitempty"`
}

// AmountBalance sums the line prices before any discount.
func AmountBalance(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price)
	}
	return sum
}

// PaymentInput is what the cashier enters.
type PaymentInput struct {
	Amount         decimal.Decimal `json:"amount"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Method         string          `json:"method" validate:"required,oneof=cash transfer card qr"`
	PaidAt         *time.Time      `json:"payment_datetime"`
	ReceiptID      string          `json:"receipt_id" validate:"max=64"`
}
