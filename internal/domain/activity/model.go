// Package activity keeps the per-laboratory audit trail of lifecycle actions.
package activity

import (
	"time"

	"github.com/google/uuid"
)

const (
	MsgAddCustomer   = "Added a new patient"
	MsgAddOrder      = "Added an order."
	MsgUpdateOrder   = "Updated an order."
	MsgCancelOrder   = "Cancelled an order."
	MsgCancelRecord  = "Cancelled a test order."
	MsgReceiveRecord = "Received the test."
	MsgEnterResult   = "Added the result for a test record."
	MsgRejectRecord  = "Rejected and cancelled the test order."
	MsgApproveOrder  = "Approved an order."
	MsgUnapprove     = "Cancelled the approval for an order"
	MsgPayment       = "Recorded a payment."
)

type Activity struct {
	ID      uuid.UUID `json:"id"`
	LabID   uuid.UUID `json:"lab_id"`
	ActorID string    `json:"actor_id"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
