package patient

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/cache"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/kv"
	"github.com/careadmin/careadmin/pkg/civil"
)

// -- Mock Repository --

type mockRepo struct {
	store   map[uuid.UUID]*Patient
	reads   int
	failDup bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, tenantID uuid.UUID, p *Patient) error {
	if m.failDup {
		return &pgconn.PgError{Code: "23505"}
	}
	p.ID = uuid.New()
	p.TenantID = tenantID
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*Patient, error) {
	m.reads++
	p, ok := m.store[id]
	if !ok || p.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, tenantID uuid.UUID, p *Patient) error {
	if cur, ok := m.store[p.ID]; !ok || cur.TenantID != tenantID {
		return db.ErrNotFound
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	if p, ok := m.store[id]; !ok || p.TenantID != tenantID {
		return db.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	var r []*Patient
	for _, p := range m.store {
		if p.TenantID != tenantID || (f.Status != "" && p.Status != f.Status) {
			continue
		}
		r = append(r, p)
	}
	total := len(r)
	if len(r) > limit {
		r = r[:limit]
	}
	return r, total, nil
}

type mockRecorder struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (m *mockRecorder) Record(_ context.Context, e activity.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *mockRecorder) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}

var testTenant = uuid.MustParse("4c7f1d2e-8a3b-4e6f-9d0c-1b2a3c4d5e6f")

func tenantCtx() context.Context {
	return db.WithTenant(context.Background(), testTenant)
}

func validInput() Input {
	nhs := "9434765919"
	return Input{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: civil.Date{Year: 1985, Month: 12, Day: 10},
		Gender:      "female",
		NHSNumber:   &nhs,
	}
}

func newTestService() (*Service, *mockRepo, *mockRecorder) {
	repo := newMockRepo()
	rec := &mockRecorder{}
	svc := NewService(repo, nil, 0, rec)
	svc.today = func() civil.Date { return civil.Date{Year: 2026, Month: 3, Day: 1} }
	return svc, repo, rec
}

func newCachedService(t *testing.T) (*Service, *mockRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	svc, repo, _ := newTestService()
	svc.cache = cache.New(rdb, zerolog.Nop(), cache.Options{LocalTTL: -1})
	return svc, repo, mr
}

// -- Service Tests --

func TestCreate_Success(t *testing.T) {
	svc, _, rec := newTestService()
	p, err := svc.Create(tenantCtx(), validInput())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, testTenant, p.TenantID)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, []string{activity.ActionCreate}, rec.actions())
	assert.Equal(t, "Ada Lovelace", rec.entries[0].Details["name"])
}

func TestCreate_DefaultsGender(t *testing.T) {
	svc, _, _ := newTestService()
	in := validInput()
	in.Gender = ""
	p, err := svc.Create(tenantCtx(), in)
	require.NoError(t, err)
	assert.Equal(t, "unknown", p.Gender)
}

func TestCreate_RejectsMalformedNHSNumber(t *testing.T) {
	svc, _, rec := newTestService()
	for _, bad := range []string{"12345", "94347659190", "943476591X"} {
		in := validInput()
		in.NHSNumber = &bad
		_, err := svc.Create(tenantCtx(), in)
		ve, ok := apperr.AsValidation(err)
		require.True(t, ok, "expected validation error for %q", bad)
		assert.Contains(t, ve.Fields, "nhs_number")
	}
	assert.Empty(t, rec.actions())
}

func TestCreate_BlankNHSNumberIsOptional(t *testing.T) {
	svc, _, _ := newTestService()
	in := validInput()
	blank := ""
	in.NHSNumber = &blank
	p, err := svc.Create(tenantCtx(), in)
	require.NoError(t, err)
	assert.Nil(t, p.NHSNumber)
}

func TestCreate_BlankContactFieldsAreOptional(t *testing.T) {
	svc, _, _ := newTestService()
	in := validInput()
	blank := ""
	in.Email = &blank
	in.Phone = &blank
	p, err := svc.Create(tenantCtx(), in)
	require.NoError(t, err)
	assert.Nil(t, p.Email)
	assert.Nil(t, p.Phone)
}

func TestCreate_RequiredFields(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Create(tenantCtx(), Input{Gender: "robot"})
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "first_name")
	assert.Contains(t, ve.Fields, "last_name")
	assert.Contains(t, ve.Fields, "date_of_birth")
	assert.Contains(t, ve.Fields, "gender")
}

func TestCreate_FutureBirthDate(t *testing.T) {
	svc, _, _ := newTestService()
	in := validInput()
	in.DateOfBirth = civil.Date{Year: 2030, Month: 1, Day: 1}
	_, err := svc.Create(tenantCtx(), in)
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "must not be in the future", ve.Fields["date_of_birth"])
}

func TestCreate_DuplicateNHSNumberIsConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.failDup = true
	_, err := svc.Create(tenantCtx(), validInput())
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestGet_IsTenantScoped(t *testing.T) {
	svc, _, _ := newTestService()
	p, err := svc.Create(tenantCtx(), validInput())
	require.NoError(t, err)

	other := db.WithTenant(context.Background(), uuid.New())
	_, err = svc.Get(other, p.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestGet_ServesFromCacheWithinTTL(t *testing.T) {
	svc, repo, mr := newCachedService(t)
	p, err := svc.Create(tenantCtx(), validInput())
	require.NoError(t, err)

	first, err := svc.Get(tenantCtx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.reads)
	assert.True(t, mr.Exists(kv.PatientKey(testTenant, p.ID)))

	// a change behind the cache's back is not visible until invalidation
	repo.store[p.ID].FirstName = "Changed"
	second, err := svc.Get(tenantCtx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.reads)
	assert.Equal(t, first.FirstName, second.FirstName)
	assert.Equal(t, p.DateOfBirth, second.DateOfBirth)
}

func TestUpdate_InvalidatesCache(t *testing.T) {
	svc, repo, mr := newCachedService(t)
	p, err := svc.Create(tenantCtx(), validInput())
	require.NoError(t, err)
	_, err = svc.Get(tenantCtx(), p.ID)
	require.NoError(t, err)

	in := validInput()
	in.FirstName = "Augusta"
	_, err = svc.Update(tenantCtx(), p.ID, in)
	require.NoError(t, err)
	assert.False(t, mr.Exists(kv.PatientKey(testTenant, p.ID)))

	got, err := svc.Get(tenantCtx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Augusta", got.FirstName)
	assert.Equal(t, 3, repo.reads)
}

func TestGet_RedisDownFallsThrough(t *testing.T) {
	svc, repo, mr := newCachedService(t)
	p, err := svc.Create(tenantCtx(), validInput())
	require.NoError(t, err)

	mr.SetError("ERR simulated outage")
	for i := 0; i < 2; i++ {
		got, err := svc.Get(tenantCtx(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	}
	assert.Equal(t, 2, repo.reads)
}

func TestInvalidateTenant_DropsNamespace(t *testing.T) {
	svc, repo, _ := newCachedService(t)
	p, err := svc.Create(tenantCtx(), validInput())
	require.NoError(t, err)
	_, err = svc.Get(tenantCtx(), p.ID)
	require.NoError(t, err)

	svc.InvalidateTenant(context.Background(), testTenant)
	_, err = svc.Get(tenantCtx(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.reads)
}

func TestDelete_RecordsActivity(t *testing.T) {
	svc, _, rec := newTestService()
	p, err := svc.Create(tenantCtx(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(tenantCtx(), p.ID))
	assert.Equal(t, []string{activity.ActionCreate, activity.ActionDelete}, rec.actions())
	assert.ErrorIs(t, svc.Delete(tenantCtx(), p.ID), db.ErrNotFound)
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService()
	_, _, err := svc.List(tenantCtx(), ListFilter{Status: "asleep"}, 10, 0)
	_, ok := apperr.AsValidation(err)
	assert.True(t, ok)
}

func TestExport_RecordsActivity(t *testing.T) {
	svc, _, rec := newTestService()
	for i := 0; i < 3; i++ {
		_, err := svc.Create(tenantCtx(), validInput())
		require.NoError(t, err)
	}
	items, err := svc.Export(tenantCtx(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	last := rec.entries[len(rec.entries)-1]
	assert.Equal(t, activity.ActionExport, last.Action)
	assert.Equal(t, 3, last.Details["rows"])
	assert.Equal(t, false, last.Details["truncated"])
}
