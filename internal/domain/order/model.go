// Package order runs the test order lifecycle: ordering tests, receiving
// specimens, entering and rejecting results, cancellation and approval.
package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TestOrder is the aggregate root of the lifecycle. Records are kept in
// creation order.
type TestOrder struct {
	ID          uuid.UUID     `json:"id"`
	LabID       uuid.UUID     `json:"lab_id"`
	CustomerID  uuid.UUID     `json:"customer_id"`
	Code        string        `json:"code"`
	OrderedBy   string        `json:"ordered_by"`
	OrderedAt   time.Time     `json:"ordered_at"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
	ApprovedAt  *time.Time    `json:"approved_at,omitempty"`
	Approver    string        `json:"approver,omitempty"`
	Records     []*TestRecord `json:"records,omitempty"`
}

func (o *TestOrder) Cancelled() bool { return o.CancelledAt != nil }

func (o *TestOrder) Approved() bool { return o.ApprovedAt != nil }

// Pending reports whether the order still awaits approval.
func (o *TestOrder) Pending() bool { return !o.Cancelled() && !o.Approved() }

// ActiveRecords returns the records that still count toward the order.
func (o *TestOrder) ActiveRecords() []*TestRecord {
	var out []*TestRecord
	for _, r := range o.Records {
		if r.IsActive(o) {
			out = append(out, r)
		}
	}
	return out
}

// Refresh recomputes the derived Status and Active fields of every record.
func (o *TestOrder) Refresh() {
	for _, r := range o.Records {
		r.Status = r.CurrentStatus()
		r.Active = r.IsActive(o)
	}
}

type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusReceived  RecordStatus = "received"
	StatusResulted  RecordStatus = "resulted"
	StatusCancelled RecordStatus = "cancelled"
	StatusRejected  RecordStatus = "rejected"
)

// TestRecord tracks one ordered test. ProfileID and PackageID name the
// selection that introduced it.
type TestRecord struct {
	ID             uuid.UUID           `json:"id"`
	OrderID        uuid.UUID           `json:"order_id"`
	TestID         uuid.UUID           `json:"test_id"`
	TestVersion    int                 `json:"test_version"`
	ProfileID      *uuid.UUID          `json:"profile_id,omitempty"`
	PackageID      *uuid.UUID          `json:"package_id,omitempty"`
	Seq            int                 `json:"seq"`
	NumResult      decimal.NullDecimal `json:"num_result"`
	TextResult     string              `json:"text_result,omitempty"`
	Interpretation string              `json:"interpretation,omitempty"`
	Comment        string              `json:"comment,omitempty"`
	Cancelled      bool                `json:"cancelled"`
	RejectRecordID *uuid.UUID          `json:"reject_record_id,omitempty"`
	Reject         *RejectRecord       `json:"reject,omitempty"`
	ReceivedAt     *time.Time          `json:"received_at,omitempty"`
	Receiver       string              `json:"receiver,omitempty"`
	UpdatedAt      *time.Time          `json:"updated_at,omitempty"`
	Updater        string              `json:"updater,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`

	// Derived by TestOrder.Refresh.
	Status RecordStatus `json:"status"`
	Active bool         `json:"is_active"`
}

func (r *TestRecord) HasResult() bool {
	return r.NumResult.Valid || r.TextResult != ""
}

// IsActive holds while the record is neither cancelled nor rejected and its
// order is not cancelled.
func (r *TestRecord) IsActive(o *TestOrder) bool {
	return !r.Cancelled && r.RejectRecordID == nil && !o.Cancelled()
}

func (r *TestRecord) CurrentStatus() RecordStatus {
	switch {
	case r.RejectRecordID != nil:
		return StatusRejected
	case r.Cancelled:
		return StatusCancelled
	case r.HasResult():
		return StatusResulted
	case r.ReceivedAt != nil:
		return StatusReceived
	default:
		return StatusPending
	}
}

// RejectReason is why a specimen was turned away.
type RejectReason string

const (
	ReasonUnsuitable   RejectReason = "unsuitable"
	ReasonInsufficient RejectReason = "insufficient"
	ReasonPoorQuality  RejectReason = "poor_quality"
	ReasonLeaking      RejectReason = "leaking"
	ReasonNoTest       RejectReason = "no_test"
	ReasonDataMismatch RejectReason = "data_mismatch"
	ReasonOther        RejectReason = "other"
)

var rejectLabels = map[RejectReason]string{
	ReasonUnsuitable:   "สิ่งส่งตรวจไม่เหมาะสมกับการทดสอบ",
	ReasonInsufficient: "สิ่งส่งตรวจไม่เพียงพอ",
	ReasonPoorQuality:  "คุณภาพของสิ่งส่งตรวจไม่ดี",
	ReasonLeaking:      "ภาชนะรั่วหรือแตก",
	ReasonNoTest:       "ไม่มีรายการตรวจ",
	ReasonDataMismatch: "ข้อมูลคนไข้ไม่ตรงกัน",
	ReasonOther:        "อื่นๆ",
}

// RejectReasons lists the reasons in display order.
var RejectReasons = []RejectReason{
	ReasonUnsuitable, ReasonInsufficient, ReasonPoorQuality, ReasonLeaking,
	ReasonNoTest, ReasonDataMismatch, ReasonOther,
}

func (r RejectReason) Valid() bool {
	_, ok := rejectLabels[r]
	return ok
}

func (r RejectReason) Label() string { return rejectLabels[r] }

// RejectRecord is immutable once attached to a record.
type RejectRecord struct {
	ID        uuid.UUID    `json:"id"`
	Reason    RejectReason `json:"reason"`
	Detail    string       `json:"detail,omitempty"`
	Creator   string       `json:"creator"`
	CreatedAt time.Time    `json:"created_at"`
}

// RecordRevision is a snapshot of a record's progress taken each time it is
// stored. Rev counts from 1 per record.
type RecordRevision struct {
	ID             uuid.UUID           `json:"id"`
	RecordID       uuid.UUID           `json:"record_id"`
	Rev            int                 `json:"rev"`
	Operation      string              `json:"operation"`
	ProfileID      *uuid.UUID          `json:"profile_id,omitempty"`
	PackageID      *uuid.UUID          `json:"package_id,omitempty"`
	NumResult      decimal.NullDecimal `json:"num_result"`
	TextResult     string              `json:"text_result,omitempty"`
	Interpretation string              `json:"interpretation,omitempty"`
	Comment        string              `json:"comment,omitempty"`
	Cancelled      bool                `json:"cancelled"`
	RejectRecordID *uuid.UUID          `json:"reject_record_id,omitempty"`
	ReceivedAt     *time.Time          `json:"received_at,omitempty"`
	Receiver       string              `json:"receiver,omitempty"`
	Updater        string              `json:"updater,omitempty"`
	ChangedBy      string              `json:"changed_by"`
	ChangedAt      time.Time           `json:"changed_at"`
}

func newRevision(r *TestRecord, op, actorID string, at time.Time) *RecordRevision {
	return &RecordRevision{
		RecordID:       r.ID,
		Operation:      op,
		ProfileID:      r.ProfileID,
		PackageID:      r.PackageID,
		NumResult:      r.NumResult,
		TextResult:     r.TextResult,
		Interpretation: r.Interpretation,
		Comment:        r.Comment,
		Cancelled:      r.Cancelled,
		RejectRecordID: r.RejectRecordID,
		ReceivedAt:     r.ReceivedAt,
		Receiver:       r.Receiver,
		Updater:        r.Updater,
		ChangedBy:      actorID,
		ChangedAt:      at,
	}
}

// RejectedRecord is a rejected record listed with its order.
type RejectedRecord struct {
	Record     *TestRecord `json:"record"`
	OrderCode  string      `json:"order_code"`
	CustomerID uuid.UUID   `json:"customer_id"`
}

// Selection is what the caller asks to order.
type Selection struct {
	TestIDs    []uuid.UUID `json:"test_ids"`
	ProfileIDs []uuid.UUID `json:"profile_ids"`
	PackageIDs []uuid.UUID `json:"package_ids"`
}

func (s Selection) Empty() bool {
	return len(s.TestIDs) == 0 && len(s.ProfileIDs) == 0 && len(s.PackageIDs) == 0
}

// ListFilter narrows order listings.
type ListFilter struct {
	PendingOnly bool
	CustomerID  *uuid.UUID
}
