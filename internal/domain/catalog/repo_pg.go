package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/db"
)

func notFound(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return err
}

func conflict(err error, constraint, format string, args ...interface{}) error {
	if db.IsUniqueViolation(err, constraint) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), apperr.ErrConflict)
	}
	return err
}

// =========== Laboratory Repository ===========

type labRepoPG struct{ pool *pgxpool.Pool }

func NewLabRepoPG(pool *pgxpool.Pool) LabRepository {
	return &labRepoPG{pool: pool}
}

const labCols = `id, name, address, phone, created_at`

func scanLab(row pgx.Row) (*Laboratory, error) {
	var l Laboratory
	err := row.Scan(&l.ID, &l.Name, &l.Address, &l.Phone, &l.CreatedAt)
	return &l, err
}

func (r *labRepoPG) Create(ctx context.Context, l *Laboratory) error {
	l.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO laboratories (id, name, address, phone)
		VALUES ($1, $2, $3, $4) RETURNING created_at`,
		l.ID, l.Name, l.Address, l.Phone).Scan(&l.CreatedAt)
}

func (r *labRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Laboratory, error) {
	l, err := scanLab(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+labCols+` FROM laboratories WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "laboratory", id)
	}
	return l, nil
}

func (r *labRepoPG) List(ctx context.Context, limit, offset int) ([]*Laboratory, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM laboratories`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+labCols+` FROM laboratories ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Laboratory
	for rows.Next() {
		l, err := scanLab(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

// =========== SpecimenContainer Repository ===========

type containerRepoPG struct{ pool *pgxpool.Pool }

func NewContainerRepoPG(pool *pgxpool.Pool) ContainerRepository {
	return &containerRepoPG{pool: pool}
}

const containerCols = `id, lab_id, name, max_volume, number, created_at`

func scanContainer(row pgx.Row) (*SpecimenContainer, error) {
	var c SpecimenContainer
	err := row.Scan(&c.ID, &c.LabID, &c.Name, &c.MaxVolume, &c.Number, &c.CreatedAt)
	return &c, err
}

func (r *containerRepoPG) Create(ctx context.Context, c *SpecimenContainer) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO specimen_containers (id, lab_id, name, max_volume, number)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		c.ID, c.LabID, c.Name, c.MaxVolume, c.Number).Scan(&c.CreatedAt)
	return conflict(err, "specimen_containers_lab_number_key", "container number %02d already used", c.Number)
}

func (r *containerRepoPG) Update(ctx context.Context, c *SpecimenContainer) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE specimen_containers SET name = $2, max_volume = $3, number = $4 WHERE id = $1`,
		c.ID, c.Name, c.MaxVolume, c.Number)
	if err != nil {
		return conflict(err, "specimen_containers_lab_number_key", "container number %02d already used", c.Number)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("specimen container", c.ID)
	}
	return nil
}

func (r *containerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SpecimenContainer, error) {
	c, err := scanContainer(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+containerCols+` FROM specimen_containers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "specimen container", id)
	}
	return c, nil
}

func (r *containerRepoPG) ListByLab(ctx context.Context, labID uuid.UUID) ([]*SpecimenContainer, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+containerCols+` FROM specimen_containers WHERE lab_id = $1 ORDER BY number`, labID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*SpecimenContainer
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// =========== ChoiceSet Repository ===========

type choiceSetRepoPG struct{ pool *pgxpool.Pool }

func NewChoiceSetRepoPG(pool *pgxpool.Pool) ChoiceSetRepository {
	return &choiceSetRepoPG{pool: pool}
}

func (r *choiceSetRepoPG) Create(ctx context.Context, cs *ChoiceSet) error {
	cs.ID = uuid.New()
	if _, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO result_choice_sets (id, lab_id, name, reference) VALUES ($1, $2, $3, $4)`,
		cs.ID, cs.LabID, cs.Name, cs.Reference); err != nil {
		return err
	}
	for i := range cs.Items {
		cs.Items[i].ChoiceSetID = cs.ID
		cs.Items[i].Position = i
		if err := r.AddItem(ctx, &cs.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *choiceSetRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ChoiceSet, error) {
	q := db.Conn(ctx, r.pool)
	var cs ChoiceSet
	err := q.QueryRow(ctx, `SELECT id, lab_id, name, reference FROM result_choice_sets WHERE id = $1`, id).
		Scan(&cs.ID, &cs.LabID, &cs.Name, &cs.Reference)
	if err != nil {
		return nil, notFound(err, "choice set", id)
	}
	rows, err := q.Query(ctx, `
		SELECT id, choice_set_id, result, interpretation, ref, position
		FROM result_choice_items WHERE choice_set_id = $1 ORDER BY position, result`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it ChoiceItem
		if err := rows.Scan(&it.ID, &it.ChoiceSetID, &it.Result, &it.Interpretation, &it.Ref, &it.Position); err != nil {
			return nil, err
		}
		cs.Items = append(cs.Items, it)
	}
	return &cs, rows.Err()
}

func (r *choiceSetRepoPG) ListByLab(ctx context.Context, labID uuid.UUID) ([]*ChoiceSet, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, lab_id, name, reference FROM result_choice_sets WHERE lab_id = $1 ORDER BY name`, labID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ChoiceSet
	for rows.Next() {
		var cs ChoiceSet
		if err := rows.Scan(&cs.ID, &cs.LabID, &cs.Name, &cs.Reference); err != nil {
			return nil, err
		}
		items = append(items, &cs)
	}
	return items, rows.Err()
}

func (r *choiceSetRepoPG) AddItem(ctx context.Context, it *ChoiceItem) error {
	it.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO result_choice_items (id, choice_set_id, result, interpretation, ref, position)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		it.ID, it.ChoiceSetID, it.Result, it.Interpretation, it.Ref, it.Position)
	return conflict(err, "result_choice_items_set_result_key", "choice %q already defined", it.Result)
}

func (r *choiceSetRepoPG) RemoveItem(ctx context.Context, setID, itemID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM result_choice_items WHERE id = $1 AND choice_set_id = $2`, itemID, setID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("choice item", itemID)
	}
	return nil
}

// =========== Test Repository ===========

type testRepoPG struct{ pool *pgxpool.Pool }

func NewTestRepoPG(pool *pgxpool.Pool) TestRepository {
	return &testRepoPG{pool: pool}
}

const testCols = `id, lab_id, name, code, detail, unit, data_type,
	min_value, max_value, min_ref_value, max_ref_value, choice_set_id,
	price, active, version_id, created_at, updated_at`

func scanTest(row pgx.Row) (*Test, error) {
	var t Test
	err := row.Scan(&t.ID, &t.LabID, &t.Name, &t.Code, &t.Detail, &t.Unit, &t.DataType,
		&t.MinValue, &t.MaxValue, &t.MinRefValue, &t.MaxRefValue, &t.ChoiceSetID,
		&t.Price, &t.Active, &t.VersionID, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *testRepoPG) Create(ctx context.Context, t *Test) error {
	t.ID = uuid.New()
	t.VersionID = 1
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO lab_tests (id, lab_id, name, code, detail, unit, data_type,
			min_value, max_value, min_ref_value, max_ref_value, choice_set_id,
			price, active, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		t.ID, t.LabID, t.Name, t.Code, t.Detail, t.Unit, string(t.DataType),
		t.MinValue, t.MaxValue, t.MinRefValue, t.MaxRefValue, t.ChoiceSetID,
		t.Price, t.Active, t.VersionID).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return conflict(err, "lab_tests_lab_code_key", "test code %q already used", t.Code)
	}
	return r.ReplaceRequirements(ctx, t.ID, t.Requirements)
}

func (r *testRepoPG) Update(ctx context.Context, t *Test) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE lab_tests SET name=$2, code=$3, detail=$4, unit=$5, data_type=$6,
			min_value=$7, max_value=$8, min_ref_value=$9, max_ref_value=$10, choice_set_id=$11,
			price=$12, active=$13, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING version_id, updated_at`,
		t.ID, t.Name, t.Code, t.Detail, t.Unit, string(t.DataType),
		t.MinValue, t.MaxValue, t.MinRefValue, t.MaxRefValue, t.ChoiceSetID,
		t.Price, t.Active).Scan(&t.VersionID, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("test", t.ID)
		}
		return conflict(err, "lab_tests_lab_code_key", "test code %q already used", t.Code)
	}
	return nil
}

func (r *testRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Test, error) {
	q := db.Conn(ctx, r.pool)
	t, err := scanTest(q.QueryRow(ctx, `SELECT `+testCols+` FROM lab_tests WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "test", id)
	}
	rows, err := q.Query(ctx, `
		SELECT id, test_id, container_id, volume, note, position
		FROM container_requirements WHERE test_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var req ContainerRequirement
		if err := rows.Scan(&req.ID, &req.TestID, &req.ContainerID, &req.Volume, &req.Note, &req.Position); err != nil {
			return nil, err
		}
		t.Requirements = append(t.Requirements, req)
	}
	return t, rows.Err()
}

func (r *testRepoPG) ListByLab(ctx context.Context, labID uuid.UUID, activeOnly bool, limit, offset int) ([]*Test, int, error) {
	q := db.Conn(ctx, r.pool)
	where := ` WHERE lab_id = $1`
	if activeOnly {
		where += ` AND active`
	}
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM lab_tests`+where, labID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+testCols+` FROM lab_tests`+where+` ORDER BY code LIMIT $2 OFFSET $3`, labID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *testRepoPG) ReplaceRequirements(ctx context.Context, testID uuid.UUID, reqs []ContainerRequirement) error {
	q := db.Conn(ctx, r.pool)
	if _, err := q.Exec(ctx, `DELETE FROM container_requirements WHERE test_id = $1`, testID); err != nil {
		return err
	}
	for i := range reqs {
		reqs[i].ID = uuid.New()
		reqs[i].TestID = testID
		reqs[i].Position = i
		if _, err := q.Exec(ctx, `
			INSERT INTO container_requirements (id, test_id, container_id, volume, note, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			reqs[i].ID, testID, reqs[i].ContainerID, reqs[i].Volume, reqs[i].Note, i); err != nil {
			return fmt.Errorf("insert requirement %d: %w", i, err)
		}
	}
	return nil
}

// =========== TestProfile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

const profileCols = `id, lab_id, name, test_order, price, created_at`

func scanProfile(row pgx.Row) (*TestProfile, error) {
	var p TestProfile
	err := row.Scan(&p.ID, &p.LabID, &p.Name, &p.TestOrder, &p.Price, &p.CreatedAt)
	return &p, err
}

func (r *profileRepoPG) Create(ctx context.Context, p *TestProfile) error {
	p.ID = uuid.New()
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO test_profiles (id, lab_id, name, test_order, price)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		p.ID, p.LabID, p.Name, p.TestOrder, p.Price).Scan(&p.CreatedAt); err != nil {
		return err
	}
	return replaceMembers(ctx, db.Conn(ctx, r.pool), "test_profile_tests", "profile_id", "test_id", p.ID, p.TestIDs)
}

func (r *profileRepoPG) Update(ctx context.Context, p *TestProfile) error {
	q := db.Conn(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE test_profiles SET name = $2, test_order = $3, price = $4 WHERE id = $1`,
		p.ID, p.Name, p.TestOrder, p.Price)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("test profile", p.ID)
	}
	return replaceMembers(ctx, q, "test_profile_tests", "profile_id", "test_id", p.ID, p.TestIDs)
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TestProfile, error) {
	q := db.Conn(ctx, r.pool)
	p, err := scanProfile(q.QueryRow(ctx, `SELECT `+profileCols+` FROM test_profiles WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "test profile", id)
	}
	p.TestIDs, err = members(ctx, q, "test_profile_tests", "profile_id", "test_id", id)
	return p, err
}

func (r *profileRepoPG) ListByLab(ctx context.Context, labID uuid.UUID) ([]*TestProfile, error) {
	q := db.Conn(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+profileCols+` FROM test_profiles WHERE lab_id = $1 ORDER BY name`, labID)
	if err != nil {
		return nil, err
	}
	var items []*TestProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range items {
		if p.TestIDs, err = members(ctx, q, "test_profile_tests", "profile_id", "test_id", p.ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// =========== ServicePackage Repository ===========

type packageRepoPG struct{ pool *pgxpool.Pool }

func NewPackageRepoPG(pool *pgxpool.Pool) PackageRepository {
	return &packageRepoPG{pool: pool}
}

const packageCols = `id, lab_id, name, price, created_at, expired_at`

func scanPackage(row pgx.Row) (*ServicePackage, error) {
	var p ServicePackage
	err := row.Scan(&p.ID, &p.LabID, &p.Name, &p.Price, &p.CreatedAt, &p.ExpiredAt)
	return &p, err
}

func (r *packageRepoPG) Create(ctx context.Context, p *ServicePackage) error {
	p.ID = uuid.New()
	q := db.Conn(ctx, r.pool)
	if err := q.QueryRow(ctx, `
		INSERT INTO service_packages (id, lab_id, name, price, expired_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		p.ID, p.LabID, p.Name, p.Price, p.ExpiredAt).Scan(&p.CreatedAt); err != nil {
		return err
	}
	return r.replaceContents(ctx, q, p)
}

func (r *packageRepoPG) Update(ctx context.Context, p *ServicePackage) error {
	q := db.Conn(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE service_packages SET name = $2, price = $3, expired_at = $4 WHERE id = $1`,
		p.ID, p.Name, p.Price, p.ExpiredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("service package", p.ID)
	}
	return r.replaceContents(ctx, q, p)
}

func (r *packageRepoPG) replaceContents(ctx context.Context, q db.Querier, p *ServicePackage) error {
	if err := replaceMembers(ctx, q, "service_package_tests", "package_id", "test_id", p.ID, p.TestIDs); err != nil {
		return err
	}
	return replaceMembers(ctx, q, "service_package_profiles", "package_id", "profile_id", p.ID, p.ProfileIDs)
}

func (r *packageRepoPG) load(ctx context.Context, q db.Querier, p *ServicePackage) error {
	var err error
	if p.TestIDs, err = members(ctx, q, "service_package_tests", "package_id", "test_id", p.ID); err != nil {
		return err
	}
	p.ProfileIDs, err = members(ctx, q, "service_package_profiles", "package_id", "profile_id", p.ID)
	return err
}

func (r *packageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ServicePackage, error) {
	q := db.Conn(ctx, r.pool)
	p, err := scanPackage(q.QueryRow(ctx, `SELECT `+packageCols+` FROM service_packages WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "service package", id)
	}
	return p, r.load(ctx, q, p)
}

func (r *packageRepoPG) ListByLab(ctx context.Context, labID uuid.UUID) ([]*ServicePackage, error) {
	q := db.Conn(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+packageCols+` FROM service_packages WHERE lab_id = $1 ORDER BY created_at DESC`, labID)
	if err != nil {
		return nil, err
	}
	var items []*ServicePackage
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range items {
		if err := r.load(ctx, q, p); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// =========== membership helpers ===========

// members reads the ordered member ids of a join table. Table and column
// names are package constants, never request input.
func members(ctx context.Context, q db.Querier, table, ownerCol, memberCol string, ownerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY position`, memberCol, table, ownerCol), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func replaceMembers(ctx context.Context, q db.Querier, table, ownerCol, memberCol string, ownerID uuid.UUID, ids []uuid.UUID) error {
	if _, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerCol), ownerID); err != nil {
		return err
	}
	insert := fmt.Sprintf(`INSERT INTO %s (%s, %s, position) VALUES ($1, $2, $3)`, table, ownerCol, memberCol)
	for i, id := range ids {
		if _, err := q.Exec(ctx, insert, ownerID, id, i); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}
