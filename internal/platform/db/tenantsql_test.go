package db

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	sql  string
	args []interface{}
}

// recorder is a Querier that records statements instead of running them.
type recorder struct {
	calls    []call
	affected int64
	scan     func(dest ...interface{}) error
}

func (r *recorder) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	r.calls = append(r.calls, call{sql, args})
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(r.affected, 10)), nil
}

func (r *recorder) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	r.calls = append(r.calls, call{sql, args})
	return nil, nil
}

func (r *recorder) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	r.calls = append(r.calls, call{sql, args})
	return rowFunc(func(dest ...interface{}) error {
		if r.scan == nil {
			return pgx.ErrNoRows
		}
		return r.scan(dest...)
	})
}

type rowFunc func(dest ...interface{}) error

func (f rowFunc) Scan(dest ...interface{}) error { return f(dest...) }

func TestTenantQuery_RequiresPredicate(t *testing.T) {
	q := &recorder{}
	ctx := context.Background()

	_, err := TenantQuery(ctx, q, tenantA, "SELECT id FROM patients WHERE id = $2", uuid.New())
	assert.ErrorIs(t, err, ErrMissingTenantScope)

	_, err = TenantQuery(ctx, q, tenantA, "SELECT id FROM patients WHERE tenant_id = $10")
	assert.ErrorIs(t, err, ErrMissingTenantScope)

	_, err = TenantQuery(ctx, q, uuid.Nil, "SELECT id FROM patients WHERE tenant_id = $1")
	assert.ErrorIs(t, err, ErrMissingTenantScope)

	assert.Empty(t, q.calls, "rejected statements must not reach the database")
}

func TestTenantQuery_PredicateMustConstrain(t *testing.T) {
	for _, sql := range []string{
		"SELECT id FROM patients WHERE tenant_id = $1 OR TRUE",
		"SELECT id FROM patients WHERE TRUE OR tenant_id = $1",
		"SELECT id FROM patients WHERE (tenant_id = $1) OR id = $2",
		"SELECT id FROM patients /* tenant_id = $1 */",
		"SELECT id FROM patients -- tenant_id = $1",
		"SELECT id FROM patients WHERE note = 'tenant_id = $1'",
		"SELECT id FROM patients WHERE (tenant_id = $1",
	} {
		q := &recorder{}
		_, err := TenantQuery(context.Background(), q, tenantA, sql)
		assert.ErrorIs(t, err, ErrMissingTenantScope, sql)
		assert.Empty(t, q.calls, sql)
	}

	for _, sql := range []string{
		"SELECT id FROM patients WHERE tenant_id = $1 AND (first_name ILIKE $2 OR last_name ILIKE $2)",
		"SELECT id FROM patients p WHERE p.tenant_id = $1 AND deleted_at IS NULL -- live rows",
		"SELECT COUNT(*) FROM tasks WHERE id IN (SELECT task_id FROM task_links WHERE tenant_id = $1) AND (a OR b)",
		"SELECT id FROM patients WHERE (tenant_id = $1 AND status = 'a OR b')",
	} {
		_, err := TenantQuery(context.Background(), &recorder{}, tenantA, sql)
		assert.NoError(t, err, sql)
	}
}

func TestTenantQuery_BindsTenantFirst(t *testing.T) {
	q := &recorder{}
	id := uuid.New()

	_, err := TenantQuery(context.Background(), q, tenantA,
		"SELECT id FROM patients WHERE TENANT_ID=$1 AND id = $2", id)
	require.NoError(t, err)
	require.Len(t, q.calls, 1)
	assert.Equal(t, []interface{}{tenantA, id}, q.calls[0].args)
}

func TestTenantQueryRow_ScopeErrorOnScan(t *testing.T) {
	q := &recorder{}
	var n int
	err := TenantQueryRow(context.Background(), q, tenantA, "SELECT COUNT(*) FROM patients").Scan(&n)
	assert.ErrorIs(t, err, ErrMissingTenantScope)
}

func TestTenantInsert_BuildsStatement(t *testing.T) {
	q := &recorder{scan: func(dest ...interface{}) error { return nil }}
	var id uuid.UUID

	err := TenantInsert(context.Background(), q, tenantA, "patients",
		map[string]interface{}{"last_name": "Smith", "first_name": "Ann"}, "id", &id)
	require.NoError(t, err)
	require.Len(t, q.calls, 1)
	assert.Equal(t,
		"INSERT INTO patients (tenant_id, first_name, last_name) VALUES ($1, $2, $3) RETURNING id",
		q.calls[0].sql)
	assert.Equal(t, []interface{}{tenantA, "Ann", "Smith"}, q.calls[0].args)
}

func TestTenantInsert_RefusesCallerTenant(t *testing.T) {
	q := &recorder{}
	err := TenantInsert(context.Background(), q, tenantA, "patients",
		map[string]interface{}{"tenant_id": tenantB, "first_name": "Ann"}, "")
	require.Error(t, err)
	assert.Empty(t, q.calls)
}

func TestTenantInsert_RejectsBadIdentifiers(t *testing.T) {
	q := &recorder{}
	ctx := context.Background()

	err := TenantInsert(ctx, q, tenantA, "patients; DROP TABLE x", map[string]interface{}{"a": 1}, "")
	assert.Error(t, err)

	err = TenantInsert(ctx, q, tenantA, "patients", map[string]interface{}{"Name\"": 1}, "")
	assert.Error(t, err)

	err = TenantInsert(ctx, q, tenantA, "patients", map[string]interface{}{"first_name": "x"}, "id; --")
	assert.Error(t, err)
	assert.Empty(t, q.calls)
}

func TestTenantUpdate_ScopesByTenantAndID(t *testing.T) {
	q := &recorder{affected: 1}
	id := uuid.New()

	err := TenantUpdate(context.Background(), q, tenantA, "patients", id,
		map[string]interface{}{"status": "inactive"}, "")
	require.NoError(t, err)
	require.Len(t, q.calls, 1)
	assert.Equal(t,
		"UPDATE patients SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL",
		q.calls[0].sql)
	assert.Equal(t, []interface{}{tenantA, id, "inactive"}, q.calls[0].args)
}

func TestTenantUpdate_NotFound(t *testing.T) {
	q := &recorder{affected: 0}
	err := TenantUpdate(context.Background(), q, tenantA, "patients", uuid.New(),
		map[string]interface{}{"status": "inactive"}, "")
	assert.ErrorIs(t, err, ErrNotFound)

	q = &recorder{}
	var out string
	err = TenantUpdate(context.Background(), q, tenantA, "patients", uuid.New(),
		map[string]interface{}{"status": "inactive"}, "status", &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantUpdate_RefusesIDChange(t *testing.T) {
	q := &recorder{affected: 1}
	err := TenantUpdate(context.Background(), q, tenantA, "patients", uuid.New(),
		map[string]interface{}{"id": uuid.New()}, "")
	assert.Error(t, err)
	assert.Empty(t, q.calls)
}

func TestTenantDelete_SoftDeletes(t *testing.T) {
	q := &recorder{affected: 1}
	id := uuid.New()

	require.NoError(t, TenantDelete(context.Background(), q, tenantA, "tasks", id))
	assert.True(t, strings.HasPrefix(q.calls[0].sql, "UPDATE tasks SET deleted_at = NOW()"))
	assert.Equal(t, []interface{}{tenantA, id}, q.calls[0].args)

	q.affected = 0
	err := TenantDelete(context.Background(), q, tenantA, "tasks", id)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTenantUpsert_RequiresTenantInConflictTarget(t *testing.T) {
	q := &recorder{affected: 1}
	ctx := context.Background()

	err := TenantUpsert(ctx, q, tenantA, "gp_connect_settings",
		map[string]interface{}{"enabled": true}, []string{"ods_code"}, "")
	assert.ErrorIs(t, err, ErrMissingTenantScope)

	err = TenantUpsert(ctx, q, tenantA, "gp_connect_settings",
		map[string]interface{}{"enabled": true, "ods_code": "A12345"}, []string{"tenant_id"}, "")
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO gp_connect_settings (tenant_id, enabled, ods_code) VALUES ($1, $2, $3) ON CONFLICT (tenant_id) DO UPDATE SET enabled = EXCLUDED.enabled, ods_code = EXCLUDED.ods_code, updated_at = NOW() WHERE gp_connect_settings.deleted_at IS NULL",
		q.calls[0].sql)
}

func TestTenantUpsert_LeavesSoftDeletedRows(t *testing.T) {
	q := &recorder{affected: 0}
	err := TenantUpsert(context.Background(), q, tenantA, "patient_medical_history",
		map[string]interface{}{"external_id": "gp-1", "title": "Asthma"},
		[]string{"tenant_id", "external_id"}, "")
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, q.calls, 1)
	assert.NotContains(t, q.calls[0].sql, "deleted_at = NULL")
	assert.True(t, strings.HasSuffix(q.calls[0].sql, "WHERE patient_medical_history.deleted_at IS NULL"))
}

func TestTenantInsertIgnore_SkipsDuplicates(t *testing.T) {
	q := &recorder{affected: 1}
	ctx := context.Background()
	values := map[string]interface{}{"device_id": uuid.New(), "value": 72.0}

	inserted, err := TenantInsertIgnore(ctx, q, tenantA, "wearable_readings", values, []string{"tenant_id", "device_id"})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t,
		"INSERT INTO wearable_readings (tenant_id, device_id, value) VALUES ($1, $2, $3) ON CONFLICT (tenant_id, device_id) DO NOTHING",
		q.calls[0].sql)
	assert.Equal(t, tenantA, q.calls[0].args[0])

	q.affected = 0
	inserted, err = TenantInsertIgnore(ctx, q, tenantA, "wearable_readings", values, []string{"tenant_id", "device_id"})
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = TenantInsertIgnore(ctx, q, uuid.Nil, "wearable_readings", values, []string{"tenant_id"})
	assert.ErrorIs(t, err, ErrMissingTenantScope)
}

func TestFilter_Placeholders(t *testing.T) {
	f := NewFilter().
		Eq("status", "active").
		Eq("gender", "").
		Search("smi", "first_name", "last_name").
		Where("date_of_birth >= ?", "1990-01-01")

	assert.Equal(t,
		`tenant_id = $1 AND deleted_at IS NULL AND status = $2 AND (first_name ILIKE $3 ESCAPE '\' OR last_name ILIKE $3 ESCAPE '\') AND date_of_birth >= $4`,
		f.SQL())
	assert.Equal(t, []interface{}{"active", "%smi%", "1990-01-01"}, f.Args())

	clause, args := f.Paginate(20, 40)
	assert.Equal(t, "LIMIT $5 OFFSET $6", clause)
	assert.Equal(t, []interface{}{"active", "%smi%", "1990-01-01", 20, 40}, args)
	assert.Len(t, f.Args(), 3, "Paginate must not grow the filter")
}

func TestFilter_SearchEscapesWildcards(t *testing.T) {
	f := NewFilter().Search(`50%_off\`, "title")
	assert.Equal(t, []interface{}{`%50\%\_off\\%`}, f.Args())
	assert.Contains(t, f.SQL(), `title ILIKE $2 ESCAPE '\'`)

	_, err := TenantQuery(context.Background(), &recorder{}, tenantA, "SELECT id FROM tasks WHERE "+f.SQL())
	assert.NoError(t, err)
}

func TestFilter_AppendOnly(t *testing.T) {
	f := NewAppendOnlyFilter().Eq("action", "create")
	assert.Equal(t, "tenant_id = $1 AND action = $2", f.SQL())
}

func TestConstraintViolations(t *testing.T) {
	unique := fmtWrap(&pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(errors.New("boom")))
	assert.True(t, IsExclusionViolation(fmtWrap(&pgconn.PgError{Code: "23P01"})))
	assert.False(t, IsExclusionViolation(unique))
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("insert patient"), err)
}
