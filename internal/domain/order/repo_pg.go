package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/db"
)

// =========== TestOrder Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

const orderCols = `id, lab_id, customer_id, code, ordered_by, ordered_at, cancelled_at, approved_at, approver`

func scanOrder(row pgx.Row) (*TestOrder, error) {
	var o TestOrder
	err := row.Scan(&o.ID, &o.LabID, &o.CustomerID, &o.Code, &o.OrderedBy, &o.OrderedAt,
		&o.CancelledAt, &o.ApprovedAt, &o.Approver)
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *TestOrder) error {
	o.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO test_orders (id, lab_id, customer_id, code, ordered_by, ordered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.LabID, o.CustomerID, o.Code, o.OrderedBy, o.OrderedAt)
	if db.IsUniqueViolation(err, "test_orders_code_key") {
		return fmt.Errorf("order code %s: %w", o.Code, apperr.ErrConflict)
	}
	return err
}

func (r *orderRepoPG) Update(ctx context.Context, o *TestOrder) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE test_orders SET cancelled_at = $2, approved_at = $3, approver = $4 WHERE id = $1`,
		o.ID, o.CancelledAt, o.ApprovedAt, o.Approver)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("test order", o.ID)
	}
	return nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TestOrder, error) {
	o, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orderCols+` FROM test_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("test order", id)
	}
	return o, err
}

func (r *orderRepoPG) GetByCode(ctx context.Context, code string) (*TestOrder, error) {
	o, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orderCols+` FROM test_orders WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("test order", code)
	}
	return o, err
}

func (r *orderRepoPG) ListByLab(ctx context.Context, labID uuid.UUID, f ListFilter, limit, offset int) ([]*TestOrder, int, error) {
	where := []string{"lab_id = $1"}
	args := []interface{}{labID}
	if f.PendingOnly {
		where = append(where, "cancelled_at IS NULL", "approved_at IS NULL")
	}
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM test_orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT `+orderCols+` FROM test_orders`+clause+`
		ORDER BY ordered_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TestOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

// =========== TestRecord Repository ===========

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `r.id, r.order_id, r.test_id, r.test_version, r.profile_id, r.package_id, r.seq,
	r.num_result, r.text_result, r.interpretation, r.comment, r.cancelled, r.reject_record_id,
	r.received_at, r.receiver, r.updated_at, r.updater, r.created_at,
	rr.reason, rr.detail, rr.creator, rr.created_at`

const recordFrom = ` FROM test_records r LEFT JOIN reject_records rr ON rr.id = r.reject_record_id`

func scanRecord(row pgx.Row, extra ...interface{}) (*TestRecord, error) {
	var (
		rec      TestRecord
		reason   *string
		detail   *string
		creator  *string
		rejectAt *time.Time
	)
	dest := []interface{}{
		&rec.ID, &rec.OrderID, &rec.TestID, &rec.TestVersion, &rec.ProfileID, &rec.PackageID, &rec.Seq,
		&rec.NumResult, &rec.TextResult, &rec.Interpretation, &rec.Comment, &rec.Cancelled, &rec.RejectRecordID,
		&rec.ReceivedAt, &rec.Receiver, &rec.UpdatedAt, &rec.Updater, &rec.CreatedAt,
		&reason, &detail, &creator, &rejectAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if rec.RejectRecordID != nil && reason != nil {
		rec.Reject = &RejectRecord{ID: *rec.RejectRecordID, Reason: RejectReason(*reason)}
		if detail != nil {
			rec.Reject.Detail = *detail
		}
		if creator != nil {
			rec.Reject.Creator = *creator
		}
		if rejectAt != nil {
			rec.Reject.CreatedAt = *rejectAt
		}
	}
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *TestRecord) error {
	rec.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO test_records (id, order_id, test_id, test_version, profile_id, package_id, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		rec.ID, rec.OrderID, rec.TestID, rec.TestVersion, rec.ProfileID, rec.PackageID, rec.Seq,
	).Scan(&rec.CreatedAt)
	if db.IsUniqueViolation(err, "test_records_order_test_active_key") {
		return fmt.Errorf("test %s already ordered: %w", rec.TestID, apperr.ErrConflict)
	}
	return err
}

func (r *recordRepoPG) Update(ctx context.Context, rec *TestRecord) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE test_records SET num_result = $2, text_result = $3, interpretation = $4, comment = $5,
			cancelled = $6, reject_record_id = $7, received_at = $8, receiver = $9,
			updated_at = $10, updater = $11, profile_id = $12, package_id = $13
		WHERE id = $1`,
		rec.ID, rec.NumResult, rec.TextResult, rec.Interpretation, rec.Comment,
		rec.Cancelled, rec.RejectRecordID, rec.ReceivedAt, rec.Receiver,
		rec.UpdatedAt, rec.Updater, rec.ProfileID, rec.PackageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("test record", rec.ID)
	}
	return nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TestRecord, error) {
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+recordCols+recordFrom+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("test record", id)
	}
	return rec, err
}

func (r *recordRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*TestRecord, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+recordCols+recordFrom+`
		WHERE r.order_id = $1 ORDER BY r.seq`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TestRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *recordRepoPG) CreateReject(ctx context.Context, rr *RejectRecord) error {
	rr.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO reject_records (id, reason, detail, creator, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rr.ID, string(rr.Reason), rr.Detail, rr.Creator, rr.CreatedAt)
	return err
}

const revisionCols = `id, record_id, rev, operation, profile_id, package_id, num_result, text_result,
	interpretation, comment, cancelled, reject_record_id, received_at, receiver, updater, changed_by, changed_at`

func scanRevision(row pgx.Row) (*RecordRevision, error) {
	var v RecordRevision
	err := row.Scan(&v.ID, &v.RecordID, &v.Rev, &v.Operation, &v.ProfileID, &v.PackageID, &v.NumResult, &v.TextResult,
		&v.Interpretation, &v.Comment, &v.Cancelled, &v.RejectRecordID, &v.ReceivedAt, &v.Receiver, &v.Updater,
		&v.ChangedBy, &v.ChangedAt)
	return &v, err
}

// CreateRevision numbers the revision after the record's latest one. Callers
// update the record row first, so its row lock serializes concurrent writers.
func (r *recordRepoPG) CreateRevision(ctx context.Context, v *RecordRevision) error {
	v.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO test_record_revisions (`+revisionCols+`)
		SELECT $1, $2, COALESCE(MAX(rev), 0) + 1, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		FROM test_record_revisions WHERE record_id = $2
		RETURNING rev`,
		v.ID, v.RecordID, v.Operation, v.ProfileID, v.PackageID, v.NumResult, v.TextResult,
		v.Interpretation, v.Comment, v.Cancelled, v.RejectRecordID, v.ReceivedAt, v.Receiver, v.Updater,
		v.ChangedBy, v.ChangedAt,
	).Scan(&v.Rev)
	if db.IsUniqueViolation(err, "test_record_revisions_record_rev_key") {
		return fmt.Errorf("revision of record %s: %w", v.RecordID, apperr.ErrConflict)
	}
	return err
}

func (r *recordRepoPG) ListRevisions(ctx context.Context, recordID uuid.UUID) ([]*RecordRevision, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+revisionCols+`
		FROM test_record_revisions WHERE record_id = $1 ORDER BY rev`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*RecordRevision
	for rows.Next() {
		v, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *recordRepoPG) ListRejectedByLab(ctx context.Context, labID uuid.UUID, limit, offset int) ([]*RejectedRecord, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM test_records r JOIN test_orders o ON o.id = r.order_id
		WHERE o.lab_id = $1 AND r.reject_record_id IS NOT NULL`, labID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+recordCols+`, o.code, o.customer_id`+recordFrom+`
		JOIN test_orders o ON o.id = r.order_id
		WHERE o.lab_id = $1 AND r.reject_record_id IS NOT NULL
		ORDER BY rr.created_at DESC LIMIT $2 OFFSET $3`, labID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*RejectedRecord
	for rows.Next() {
		var item RejectedRecord
		rec, err := scanRecord(rows, &item.OrderCode, &item.CustomerID)
		if err != nil {
			return nil, 0, err
		}
		item.Record = rec
		items = append(items, &item)
	}
	return items, total, rows.Err()
}
