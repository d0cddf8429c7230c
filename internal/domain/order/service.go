package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/domain/activity"
	"github.com/labflow/labflow/internal/domain/catalog"
	"github.com/labflow/labflow/internal/domain/customer"
	"github.com/labflow/labflow/internal/domain/result"
	"github.com/labflow/labflow/internal/domain/sequence"
	"github.com/labflow/labflow/internal/domain/specimen"
	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/clock"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/internal/platform/metrics"
)

// Catalog is the read side of the catalog the lifecycle depends on.
type Catalog interface {
	GetTest(ctx context.Context, id uuid.UUID) (*catalog.Test, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*catalog.TestProfile, error)
	ProfileTests(ctx context.Context, p *catalog.TestProfile) ([]*catalog.Test, error)
	GetPackage(ctx context.Context, id uuid.UUID) (*catalog.ServicePackage, error)
	GetChoiceSet(ctx context.Context, id uuid.UUID) (*catalog.ChoiceSet, error)
	GetContainer(ctx context.Context, id uuid.UUID) (*catalog.SpecimenContainer, error)
}

type Customers interface {
	Get(ctx context.Context, id uuid.UUID) (*customer.Customer, error)
}

type CodeGenerator interface {
	Next(ctx context.Context, kind sequence.Kind) (string, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, labID uuid.UUID, actorID, message, detail string) (*activity.Activity, error)
	Publish(ctx context.Context, acts ...*activity.Activity)
}

type Deps struct {
	Orders      OrderRepository
	Records     RecordRepository
	Catalog     Catalog
	Customers   Customers
	Codes       CodeGenerator
	Activity    ActivityRecorder
	Interpreter *result.Interpreter
	Tx          db.Transactor
	Clock       clock.Clock
	Metrics     *metrics.Collector
	Logger      zerolog.Logger
}

type Service struct {
	orders    OrderRepository
	records   RecordRepository
	catalog   Catalog
	customers Customers
	codes     CodeGenerator
	activity  ActivityRecorder
	interp    *result.Interpreter
	tx        db.Transactor
	clock     clock.Clock
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		orders:    d.Orders,
		records:   d.Records,
		catalog:   d.Catalog,
		customers: d.Customers,
		codes:     d.Codes,
		activity:  d.Activity,
		interp:    d.Interpreter,
		tx:        d.Tx,
		clock:     d.Clock,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

// planned is one record create_order or a selection update will add.
type planned struct {
	test      *catalog.Test
	profileID *uuid.UUID
	packageID *uuid.UUID
}

// expand resolves a selection to distinct tests. Profiles come first in
// their test order, then packages (their direct tests, then their profiles),
// then directly selected tests. The first selection that reaches a test tags
// it, so a test also covered by a bundle is billed under the bundle.
//
// held lists the records already active on the order being updated, keyed by
// test. Held tests skip the active check and packages a held record came from
// skip the expiry check, so retiring catalog entries never locks an order.
func (s *Service) expand(ctx context.Context, labID uuid.UUID, sel Selection, held map[uuid.UUID]*TestRecord) ([]planned, error) {
	heldPackages := make(map[uuid.UUID]bool)
	for _, r := range held {
		if r.PackageID != nil {
			heldPackages[*r.PackageID] = true
		}
	}
	var out []planned
	seen := make(map[uuid.UUID]bool)
	add := func(t *catalog.Test, profileID, packageID *uuid.UUID) error {
		if t.LabID != labID {
			return apperr.Validation("test %s belongs to another laboratory", t.Code)
		}
		if !t.Active && held[t.ID] == nil {
			return apperr.Validation("test %s is not active", t.Code)
		}
		if seen[t.ID] {
			return nil
		}
		seen[t.ID] = true
		out = append(out, planned{test: t, profileID: profileID, packageID: packageID})
		return nil
	}
	addProfile := func(id uuid.UUID, packageID *uuid.UUID) error {
		p, err := s.catalog.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		tests, err := s.catalog.ProfileTests(ctx, p)
		if err != nil {
			return err
		}
		pid := p.ID
		for _, t := range tests {
			if err := add(t, &pid, packageID); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range sel.ProfileIDs {
		if err := addProfile(id, nil); err != nil {
			return nil, err
		}
	}
	now := s.clock.Now()
	for _, id := range sel.PackageIDs {
		pkg, err := s.catalog.GetPackage(ctx, id)
		if err != nil {
			return nil, err
		}
		if !pkg.AvailableAt(now) && !heldPackages[pkg.ID] {
			return nil, apperr.Validation("package %s has expired", pkg.Name)
		}
		pkgID := pkg.ID
		for _, tid := range pkg.TestIDs {
			t, err := s.catalog.GetTest(ctx, tid)
			if err != nil {
				return nil, err
			}
			if err := add(t, nil, &pkgID); err != nil {
				return nil, err
			}
		}
		for _, pid := range pkg.ProfileIDs {
			if err := addProfile(pid, &pkgID); err != nil {
				return nil, err
			}
		}
	}
	for _, id := range sel.TestIDs {
		t, err := s.catalog.GetTest(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := add(t, nil, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Service) newRecord(o *TestOrder, p planned, seq int) *TestRecord {
	return &TestRecord{
		OrderID:     o.ID,
		TestID:      p.test.ID,
		TestVersion: p.test.VersionID,
		ProfileID:   p.profileID,
		PackageID:   p.packageID,
		Seq:         seq,
	}
}

// CreateOrder orders the selection for a customer under a new order code.
func (s *Service) CreateOrder(ctx context.Context, labID, customerID uuid.UUID, sel Selection, actorID string) (*TestOrder, error) {
	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if cust.LabID != labID {
		return nil, apperr.Validation("customer %s is not registered with this laboratory", cust.HN)
	}
	plan, err := s.expand(ctx, labID, sel, nil)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, apperr.Validation("no tests selected")
	}

	o := &TestOrder{LabID: labID, CustomerID: customerID, OrderedBy: actorID, OrderedAt: s.clock.Now()}
	var act *activity.Activity
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		code, err := s.codes.Next(ctx, sequence.KindOrder)
		if err != nil {
			return err
		}
		o.Code = code
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		o.Records = make([]*TestRecord, 0, len(plan))
		for i, p := range plan {
			r := s.newRecord(o, p, i+1)
			if err := s.records.Create(ctx, r); err != nil {
				return err
			}
			o.Records = append(o.Records, r)
		}
		act, err = s.activity.Record(ctx, labID, actorID, activity.MsgAddOrder,
			fmt.Sprintf("%s HN %s: %d tests", o.Code, cust.HN, len(plan)))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)
	s.metrics.OrderEvent("created")
	o.Refresh()
	return o, nil
}

// load returns the order with its records.
func (s *Service) load(ctx context.Context, id uuid.UUID) (*TestOrder, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Records, err = s.records.ListByOrder(ctx, o.ID); err != nil {
		return nil, err
	}
	o.Refresh()
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*TestOrder, error) {
	return s.load(ctx, id)
}

func (s *Service) GetOrderByCode(ctx context.Context, code string) (*TestOrder, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, o.ID)
}

func (s *Service) ListOrders(ctx context.Context, labID uuid.UUID, f ListFilter, limit, offset int) ([]*TestOrder, int, error) {
	return s.orders.ListByLab(ctx, labID, f, limit, offset)
}

func (s *Service) ListRejectedRecords(ctx context.Context, labID uuid.UUID, limit, offset int) ([]*RejectedRecord, int, error) {
	return s.records.ListRejectedByLab(ctx, labID, limit, offset)
}

func notCancelled(o *TestOrder) error {
	if o.Cancelled() {
		return apperr.Validation("order %s is cancelled", o.Code)
	}
	return nil
}

// UpdateOrderSelection replaces what the order asks for. Active records whose
// test is no longer selected are cancelled, newly selected tests get new
// pending records and kept records take the tags of the new selection. An
// empty selection cancels every active record.
func (s *Service) UpdateOrderSelection(ctx context.Context, orderID uuid.UUID, sel Selection, actorID string) (*TestOrder, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := notCancelled(o); err != nil {
		return nil, err
	}
	held := make(map[uuid.UUID]*TestRecord)
	for _, r := range o.ActiveRecords() {
		held[r.TestID] = r
	}
	plan, err := s.expand(ctx, o.LabID, sel, held)
	if err != nil {
		return nil, err
	}

	wanted := make(map[uuid.UUID]planned, len(plan))
	var add []planned
	for _, p := range plan {
		wanted[p.test.ID] = p
		if held[p.test.ID] == nil {
			add = append(add, p)
		}
	}
	var drop, retag []*TestRecord
	for _, r := range o.ActiveRecords() {
		p, ok := wanted[r.TestID]
		switch {
		case !ok:
			drop = append(drop, r)
		case !sameID(r.ProfileID, p.profileID) || !sameID(r.PackageID, p.packageID):
			retag = append(retag, r)
		}
	}

	prev := make([]TestRecord, len(o.Records))
	for i, r := range o.Records {
		prev[i] = *r
	}
	var created []*TestRecord
	var acts []*activity.Activity
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		acts = acts[:0]
		for _, r := range drop {
			r.Cancelled = true
			if err := s.saveRecord(ctx, r, "cancelled", actorID); err != nil {
				return err
			}
			a, err := s.activity.Record(ctx, o.LabID, actorID, activity.MsgCancelRecord, r.ID.String())
			if err != nil {
				return err
			}
			acts = append(acts, a)
		}
		for _, r := range retag {
			p := wanted[r.TestID]
			r.ProfileID, r.PackageID = p.profileID, p.packageID
			if err := s.saveRecord(ctx, r, "retagged", actorID); err != nil {
				return err
			}
		}
		created = created[:0]
		for i, p := range add {
			r := s.newRecord(o, p, len(o.Records)+i+1)
			if err := s.records.Create(ctx, r); err != nil {
				return err
			}
			created = append(created, r)
		}
		a, err := s.activity.Record(ctx, o.LabID, actorID, activity.MsgUpdateOrder,
			fmt.Sprintf("%s: +%d -%d", o.Code, len(add), len(drop)))
		if err != nil {
			return err
		}
		acts = append(acts, a)
		return nil
	})
	if err != nil {
		for i, r := range o.Records {
			*r = prev[i]
		}
		return nil, err
	}
	o.Records = append(o.Records, created...)
	s.activity.Publish(ctx, acts...)
	s.metrics.OrderEvent("updated")
	o.Refresh()
	return o, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// saveRecord stores r and appends a revision of it.
func (s *Service) saveRecord(ctx context.Context, r *TestRecord, op, actorID string) error {
	if err := s.records.Update(ctx, r); err != nil {
		return err
	}
	return s.records.CreateRevision(ctx, newRevision(r, op, actorID, s.clock.Now()))
}

// ListRecordRevisions returns a record's history, oldest first.
func (s *Service) ListRecordRevisions(ctx context.Context, recordID uuid.UUID) ([]*RecordRevision, error) {
	if _, err := s.records.GetByID(ctx, recordID); err != nil {
		return nil, err
	}
	return s.records.ListRevisions(ctx, recordID)
}

// CancelOrder cancels the order and every record still active. Cancelling a
// cancelled order changes nothing.
func (s *Service) CancelOrder(ctx context.Context, orderID uuid.UUID, actorID string) (*TestOrder, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Cancelled() {
		return o, nil
	}
	active := o.ActiveRecords()
	var act *activity.Activity
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()
		o.CancelledAt = &now
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		for _, r := range active {
			r.Cancelled = true
			if err := s.saveRecord(ctx, r, "cancelled", actorID); err != nil {
				return err
			}
		}
		var err error
		act, err = s.activity.Record(ctx, o.LabID, actorID, activity.MsgCancelOrder, o.Code)
		return err
	})
	if err != nil {
		o.CancelledAt = nil
		return nil, err
	}
	s.activity.Publish(ctx, act)
	s.metrics.OrderEvent("cancelled")
	o.Refresh()
	return o, nil
}

// recordMutation loads a record and its order, refuses to touch records of a
// cancelled order, then applies fn and stores the record with an activity in
// one transaction. fn returns an empty detail when nothing changed.
func (s *Service) recordMutation(ctx context.Context, recordID uuid.UUID, actorID, message, transition string,
	fn func(ctx context.Context, o *TestOrder, r *TestRecord, t *catalog.Test) (detail string, err error),
) (*TestRecord, error) {
	r, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.GetByID(ctx, r.OrderID)
	if err != nil {
		return nil, err
	}
	if err := notCancelled(o); err != nil {
		return nil, err
	}
	t, err := s.catalog.GetTest(ctx, r.TestID)
	if err != nil {
		return nil, err
	}

	orig := *r
	var act *activity.Activity
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		*r = orig
		detail, err := fn(ctx, o, r, t)
		if err != nil {
			return err
		}
		if detail == "" {
			return nil
		}
		if err := s.saveRecord(ctx, r, transition, actorID); err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, o.LabID, actorID, message, detail)
		return err
	})
	if err != nil {
		return nil, err
	}
	if act != nil {
		s.activity.Publish(ctx, act)
		s.metrics.RecordTransition(transition)
	}
	r.Status = r.CurrentStatus()
	r.Active = r.IsActive(o)
	return r, nil
}

// CancelRecord cancels one record. A cancelled record is left as is.
func (s *Service) CancelRecord(ctx context.Context, recordID uuid.UUID, actorID string) (*TestRecord, error) {
	return s.recordMutation(ctx, recordID, actorID, activity.MsgCancelRecord, "cancelled",
		func(_ context.Context, o *TestOrder, r *TestRecord, t *catalog.Test) (string, error) {
			if r.Cancelled {
				return "", nil
			}
			r.Cancelled = true
			return o.Code + " " + t.Code, nil
		})
}

// ReceiveRecord marks a pending record's specimen as received. A zero at
// means now.
func (s *Service) ReceiveRecord(ctx context.Context, recordID uuid.UUID, actorID string, at time.Time) (*TestRecord, error) {
	return s.recordMutation(ctx, recordID, actorID, activity.MsgReceiveRecord, "received",
		func(_ context.Context, o *TestOrder, r *TestRecord, t *catalog.Test) (string, error) {
			if st := r.CurrentStatus(); st != StatusPending {
				return "", apperr.Validation("%s %s is %s, not pending", o.Code, t.Code, st)
			}
			when := at
			if when.IsZero() {
				when = s.clock.Now()
			}
			r.ReceivedAt = &when
			r.Receiver = actorID
			return o.Code + " " + t.Code, nil
		})
}

// EnterResult validates raw against the record's test, interprets it and
// stores it. Reception is not required and a result may be re-entered.
func (s *Service) EnterResult(ctx context.Context, recordID uuid.UUID, raw, comment, actorID string, at time.Time) (*TestRecord, error) {
	r, err := s.recordMutation(ctx, recordID, actorID, activity.MsgEnterResult, "resulted",
		func(ctx context.Context, o *TestOrder, r *TestRecord, t *catalog.Test) (string, error) {
			if !r.IsActive(o) {
				return "", apperr.Validation("%s %s is %s", o.Code, t.Code, r.CurrentStatus())
			}
			var cs *catalog.ChoiceSet
			if t.ChoiceSetID != nil {
				var err error
				if cs, err = s.catalog.GetChoiceSet(ctx, *t.ChoiceSetID); err != nil {
					return "", err
				}
			}
			v, err := s.interp.Parse(t, cs, raw)
			if err != nil {
				return "", err
			}
			flag := s.interp.Interpret(t, cs, v)
			when := at
			if when.IsZero() {
				when = s.clock.Now()
			}
			r.NumResult, r.TextResult = v.Numeric, v.Text
			r.Interpretation = string(flag)
			r.Comment = strings.TrimSpace(comment)
			r.UpdatedAt = &when
			r.Updater = actorID
			return fmt.Sprintf("%s %s: %s", o.Code, t.Code, v), nil
		})
	if err != nil {
		return nil, err
	}
	s.metrics.Interpretation(r.Interpretation)
	return r, nil
}

// RejectRecord attaches a reject record and cancels the record for good.
func (s *Service) RejectRecord(ctx context.Context, recordID uuid.UUID, reason RejectReason, detail, actorID string) (*TestRecord, error) {
	if !reason.Valid() {
		return nil, apperr.Validation("unknown reject reason %q", reason)
	}
	return s.recordMutation(ctx, recordID, actorID, activity.MsgRejectRecord, "rejected",
		func(ctx context.Context, o *TestOrder, r *TestRecord, t *catalog.Test) (string, error) {
			if !r.IsActive(o) {
				return "", apperr.Validation("%s %s is %s", o.Code, t.Code, r.CurrentStatus())
			}
			rr := &RejectRecord{Reason: reason, Detail: strings.TrimSpace(detail), Creator: actorID, CreatedAt: s.clock.Now()}
			if err := s.records.CreateReject(ctx, rr); err != nil {
				return "", err
			}
			r.RejectRecordID = &rr.ID
			r.Reject = rr
			r.Cancelled = true
			return fmt.Sprintf("%s %s: %s", o.Code, t.Code, reason.Label()), nil
		})
}

// orderMutation applies fn to an order and stores it with an activity.
// fn returns false when there is nothing to change.
func (s *Service) orderMutation(ctx context.Context, orderID uuid.UUID, actorID, message, event string,
	fn func(o *TestOrder) (bool, error),
) (*TestOrder, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	changed, err := fn(o)
	if err != nil || !changed {
		return o, err
	}
	var act *activity.Activity
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		var err error
		act, err = s.activity.Record(ctx, o.LabID, actorID, message, o.Code)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.Publish(ctx, act)
	s.metrics.OrderEvent(event)
	return o, nil
}

// ApproveOrder records the approver. Record states are untouched.
func (s *Service) ApproveOrder(ctx context.Context, orderID uuid.UUID, actorID string) (*TestOrder, error) {
	return s.orderMutation(ctx, orderID, actorID, activity.MsgApproveOrder, "approved", func(o *TestOrder) (bool, error) {
		if err := notCancelled(o); err != nil {
			return false, err
		}
		if o.Approved() {
			return false, nil
		}
		now := s.clock.Now()
		o.ApprovedAt = &now
		o.Approver = actorID
		return true, nil
	})
}

// UnapproveOrder clears an approval. It never revives cancelled or rejected
// records.
func (s *Service) UnapproveOrder(ctx context.Context, orderID uuid.UUID, actorID string) (*TestOrder, error) {
	return s.orderMutation(ctx, orderID, actorID, activity.MsgUnapprove, "unapproved", func(o *TestOrder) (bool, error) {
		if !o.Approved() {
			return false, nil
		}
		o.ApprovedAt = nil
		o.Approver = ""
		return true, nil
	})
}

// PlanContainers lays out the containers the order's active records need.
func (s *Service) PlanContainers(ctx context.Context, orderID uuid.UUID) ([]specimen.Instance, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var reqs []specimen.Requirement
	for _, r := range o.ActiveRecords() {
		t, err := s.catalog.GetTest(ctx, r.TestID)
		if err != nil {
			return nil, err
		}
		for _, cr := range t.Requirements {
			c, err := s.catalog.GetContainer(ctx, cr.ContainerID)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, specimen.Requirement{
				Container: specimen.Container{ID: c.ID, Name: c.Name, MaxVolume: c.MaxVolume, Number: c.Number},
				Volume:    cr.Volume,
				TestCode:  t.Code,
			})
		}
	}
	plan, err := specimen.Allocate(o.Code, reqs)
	if err != nil {
		if errors.Is(err, apperr.ErrContainerTooSmall) {
			s.logger.Error().Err(err).Str("order", o.Code).Msg("no container can hold a specimen requirement")
		}
		return nil, err
	}
	s.metrics.Containers(len(plan))
	return plan, nil
}
