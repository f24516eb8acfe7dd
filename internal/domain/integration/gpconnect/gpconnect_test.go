package gpconnect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careadmin/careadmin/internal/domain/medicalhistory"
	"github.com/careadmin/careadmin/internal/domain/patient"
	"github.com/careadmin/careadmin/internal/platform/activity"
	"github.com/careadmin/careadmin/internal/platform/apperr"
	"github.com/careadmin/careadmin/internal/platform/db"
	"github.com/careadmin/careadmin/internal/platform/queue"
)

type mockRepo struct {
	settings map[uuid.UUID]*Settings
	synced   map[uuid.UUID]time.Time
}

func (m *mockRepo) Get(_ context.Context, tenantID uuid.UUID) (*Settings, error) {
	st, ok := m.settings[tenantID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *mockRepo) Save(_ context.Context, tenantID uuid.UUID, s *Settings) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.TenantID = tenantID
	m.settings[tenantID] = s
	return nil
}

func (m *mockRepo) MarkSynced(_ context.Context, tenantID uuid.UUID, at time.Time) error {
	m.synced[tenantID] = at
	return nil
}

type mockPatients map[uuid.UUID]*patient.Patient

func (m mockPatients) GetByID(_ context.Context, tenantID, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m[id]
	if !ok || p.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	return p, nil
}

type fakeImporter struct {
	source  string
	entries []medicalhistory.ImportEntry
}

func (f *fakeImporter) Import(_ context.Context, _, _ uuid.UUID, source string, entries []medicalhistory.ImportEntry) (medicalhistory.ImportResult, error) {
	f.source, f.entries = source, entries
	return medicalhistory.ImportResult{Upserted: len(entries)}, nil
}

type fakeClient struct {
	nhsNumber string
	entries   []medicalhistory.ImportEntry
}

func (f *fakeClient) StructuredRecord(_ context.Context, _ *Settings, nhsNumber string) ([]medicalhistory.ImportEntry, error) {
	f.nhsNumber = nhsNumber
	return f.entries, nil
}

type mockRecorder struct{ entries []activity.Entry }

func (m *mockRecorder) Record(_ context.Context, e activity.Entry) { m.entries = append(m.entries, e) }

var testTenant = uuid.MustParse("9d0e1f2a-3b4c-4d5e-8f6a-7b8c9d0e1f2a")

func tenantCtx() context.Context { return db.WithTenant(context.Background(), testTenant) }

type fixture struct {
	svc      *Service
	repo     *mockRepo
	patients mockPatients
	importer *fakeImporter
	client   *fakeClient
	rec      *mockRecorder
	queue    *queue.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		repo:     &mockRepo{settings: map[uuid.UUID]*Settings{}, synced: map[uuid.UUID]time.Time{}},
		patients: mockPatients{},
		importer: &fakeImporter{},
		client:   &fakeClient{},
		rec:      &mockRecorder{},
		queue:    queue.New(rdb, time.Minute),
	}
	f.svc = NewService(f.repo, f.patients, f.importer, f.client, f.queue, f.rec, zerolog.Nop())
	return f
}

func strPtr(s string) *string { return &s }

func (f *fixture) enable(t *testing.T) {
	t.Helper()
	_, err := f.svc.UpdateSettings(tenantCtx(), SettingsInput{
		Enabled: true,
		ODSCode: strPtr("A81001"),
		ASID:    strPtr("918999198993"),
	})
	require.NoError(t, err)
}

func (f *fixture) patient(nhs *string) *patient.Patient {
	p := &patient.Patient{ID: uuid.New(), TenantID: testTenant, NHSNumber: nhs}
	f.patients[p.ID] = p
	return p
}

func TestUpdateSettings_EnabledRequiresIdentifiers(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateSettings(tenantCtx(), SettingsInput{Enabled: true})
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "ods_code")
	assert.Contains(t, ve.Fields, "asid")
}

func TestUpdateSettings_RejectsBadValues(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateSettings(tenantCtx(), SettingsInput{ASID: strPtr("not-numeric"), EndpointURL: strPtr("nope")})
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "asid")
	assert.Contains(t, ve.Fields, "endpoint_url")
}

func TestRequestSync_Disabled(t *testing.T) {
	f := newFixture(t)
	p := f.patient(strPtr("9434765919"))
	_, err := f.svc.RequestSync(tenantCtx(), p.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRequestSync_RequiresNHSNumber(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	p := f.patient(nil)
	_, err := f.svc.RequestSync(tenantCtx(), p.ID)
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "nhs_number")
}

func TestRequestSync_ImportsHistory(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	p := f.patient(strPtr("9434765919"))
	f.client.entries = []medicalhistory.ImportEntry{
		{ExternalID: "Condition/c1", Input: medicalhistory.Input{Category: "condition", Title: "Asthma"}},
	}

	queued, err := f.svc.RequestSync(tenantCtx(), p.ID)
	require.NoError(t, err)
	job, err := f.queue.Dequeue(context.Background(), Queue)
	require.NoError(t, err)
	assert.Equal(t, queued.ID, job.ID)
	assert.Equal(t, JobSync, job.Type)

	require.NoError(t, f.svc.HandleSync(context.Background(), job))
	assert.Equal(t, "9434765919", f.client.nhsNumber)
	assert.Equal(t, Source, f.importer.source)
	assert.Len(t, f.importer.entries, 1)
	assert.Contains(t, f.repo.synced, testTenant)

	last := f.rec.entries[len(f.rec.entries)-1]
	assert.Equal(t, activity.ActionSync, last.Action)
	assert.Equal(t, p.ID, *last.EntityID)
	assert.Equal(t, 1, last.Details["upserted"])
}

func TestHandleSync_DisabledSinceEnqueue(t *testing.T) {
	f := newFixture(t)
	f.enable(t)
	p := f.patient(strPtr("9434765919"))
	job, err := f.svc.RequestSync(tenantCtx(), p.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateSettings(tenantCtx(), SettingsInput{Enabled: false})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleSync(context.Background(), job))
	assert.Empty(t, f.client.nhsNumber)
	assert.NotContains(t, f.repo.synced, testTenant)
}

const bundleJSON = `{
  "resourceType": "Bundle",
  "entry": [
    {"resource": {"resourceType": "Condition", "id": "c1",
      "code": {"coding": [{"code": "195967001", "display": "Asthma"}]},
      "clinicalStatus": {"coding": [{"code": "active"}]},
      "severity": {"text": "Moderate"},
      "onsetDateTime": "2012-04-01T00:00:00+00:00",
      "note": [{"text": "Uses inhaler"}]}},
    {"resource": {"resourceType": "AllergyIntolerance", "id": "a1",
      "code": {"text": "Penicillin"},
      "clinicalStatus": {"coding": [{"code": "active"}]},
      "criticality": "high"}},
    {"resource": {"resourceType": "Immunization", "id": "i1",
      "vaccineCode": {"text": "Influenza"},
      "occurrenceDateTime": "2025-10-02"}},
    {"resource": {"resourceType": "Condition", "code": {"text": "No id"}}},
    {"resource": {"resourceType": "Observation", "id": "o1", "code": {"text": "BP"}}}
  ]
}`

func TestClient_StructuredRecord(t *testing.T) {
	c := NewClient("https://spine.example.com/gpconnect/")
	httpmock.ActivateNonDefault(c.client.GetClient())
	defer httpmock.DeactivateAndReset()

	var sentNHS string
	httpmock.RegisterResponder(http.MethodPost, "https://spine.example.com/gpconnect/Patient/$gpc.getstructuredrecord",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Ssp-From") != "918999198993" || req.Header.Get("Ssp-To") != "A81001" {
				return httpmock.NewStringResponse(http.StatusForbidden, ""), nil
			}
			raw, _ := io.ReadAll(req.Body)
			var body parameters
			if err := json.Unmarshal(raw, &body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			sentNHS = body.Parameter[0].ValueIdentifier.Value
			resp := httpmock.NewStringResponse(http.StatusOK, bundleJSON)
			resp.Header.Set("Content-Type", "application/fhir+json")
			return resp, nil
		})

	entries, err := c.StructuredRecord(context.Background(), &Settings{
		ODSCode: strPtr("A81001"),
		ASID:    strPtr("918999198993"),
	}, "9434765919")
	require.NoError(t, err)
	assert.Equal(t, "9434765919", sentNHS)
	require.Len(t, entries, 3)

	cond := entries[0]
	assert.Equal(t, "Condition/c1", cond.ExternalID)
	assert.Equal(t, "Asthma", cond.Input.Title)
	assert.Equal(t, "active", cond.Input.Status)
	assert.Equal(t, "moderate", *cond.Input.Severity)
	assert.Equal(t, "2012-04-01", cond.Input.OnsetDate.String())
	assert.Equal(t, "Uses inhaler", *cond.Input.Description)

	allergy := entries[1]
	assert.Equal(t, "allergy", allergy.Input.Category)
	assert.Equal(t, "severe", *allergy.Input.Severity)

	imm := entries[2]
	assert.Equal(t, "immunization", imm.Input.Category)
	assert.Equal(t, "resolved", imm.Input.Status)
}

func TestClient_EndpointOverrideAndNotFound(t *testing.T) {
	c := NewClient("https://spine.example.com")
	httpmock.ActivateNonDefault(c.client.GetClient())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://practice.example.com/fhir/Patient/$gpc.getstructuredrecord",
		httpmock.NewStringResponder(http.StatusNotFound, `{"resourceType":"OperationOutcome"}`))

	_, err := c.StructuredRecord(context.Background(),
		&Settings{EndpointURL: strPtr("https://practice.example.com/fhir")}, "9434765919")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
