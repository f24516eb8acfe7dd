package gpconnect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/careadmin/careadmin/internal/domain/medicalhistory"
	"github.com/careadmin/careadmin/pkg/civil"
)

const (
	interactionID = "urn:nhs:names:services:gpconnect:fhir:operation:gpc.getstructuredrecord-1"
	nhsNumberURI  = "https://fhir.nhs.uk/Id/nhs-number"
)

// ErrPatientNotFound is returned when the practice has no record for the
// NHS number.
var ErrPatientNotFound = errors.New("gp connect: patient not found at practice")

// RecordClient retrieves the structured record of one patient.
type RecordClient interface {
	StructuredRecord(ctx context.Context, st *Settings, nhsNumber string) ([]medicalhistory.ImportEntry, error)
}

type Client struct {
	client  *resty.Client
	baseURL string
}

// NewClient builds a client for the national spine proxy at baseURL. A
// tenant's endpoint_url overrides it per request.
func NewClient(baseURL string) *Client {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/fhir+json").
		SetHeader("Content-Type", "application/fhir+json").
		SetHeader("Ssp-InteractionID", interactionID)
	return &Client{client: client, baseURL: baseURL}
}

type parameter struct {
	Name            string      `json:"name"`
	ValueIdentifier *identifier `json:"valueIdentifier,omitempty"`
	ValueBoolean    *bool       `json:"valueBoolean,omitempty"`
}

type identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

type parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []parameter `json:"parameter"`
}

type codeable struct {
	Text   string `json:"text"`
	Coding []struct {
		Code    string `json:"code"`
		Display string `json:"display"`
	} `json:"coding"`
}

func (c codeable) label() string {
	if c.Text != "" {
		return c.Text
	}
	for _, cd := range c.Coding {
		if cd.Display != "" {
			return cd.Display
		}
	}
	return ""
}

func (c codeable) code() string {
	if len(c.Coding) > 0 {
		return c.Coding[0].Code
	}
	return ""
}

type note struct {
	Text string `json:"text"`
}

type resource struct {
	ResourceType       string   `json:"resourceType"`
	ID                 string   `json:"id"`
	Code               codeable `json:"code"`
	VaccineCode        codeable `json:"vaccineCode"`
	ClinicalStatus     codeable `json:"clinicalStatus"`
	Severity           codeable `json:"severity"`
	Criticality        string   `json:"criticality"`
	OnsetDateTime      string   `json:"onsetDateTime"`
	AbatementDateTime  string   `json:"abatementDateTime"`
	OccurrenceDateTime string   `json:"occurrenceDateTime"`
	Note               []note   `json:"note"`
}

type bundle struct {
	ResourceType string `json:"resourceType"`
	Entry        []struct {
		Resource resource `json:"resource"`
	} `json:"entry"`
}

func (c *Client) StructuredRecord(ctx context.Context, st *Settings, nhsNumber string) ([]medicalhistory.ImportEntry, error) {
	endpoint := c.baseURL
	if st.EndpointURL != nil {
		endpoint = *st.EndpointURL
	}
	if endpoint == "" {
		return nil, fmt.Errorf("gp connect endpoint is not configured")
	}
	yes := true
	body := parameters{
		ResourceType: "Parameters",
		Parameter: []parameter{
			{Name: "patientNHSNumber", ValueIdentifier: &identifier{System: nhsNumberURI, Value: nhsNumber}},
			{Name: "includeAllergies", ValueBoolean: &yes},
			{Name: "includeProblems", ValueBoolean: &yes},
			{Name: "includeImmunisations", ValueBoolean: &yes},
		},
	}

	var out bundle
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Ssp-TraceID", uuid.NewString()).
		SetBody(body).
		SetResult(&out)
	if st.ASID != nil {
		req.SetHeader("Ssp-From", *st.ASID)
	}
	if st.ODSCode != nil {
		req.SetHeader("Ssp-To", *st.ODSCode)
	}

	resp, err := req.Post(strings.TrimRight(endpoint, "/") + "/Patient/$gpc.getstructuredrecord")
	if err != nil {
		return nil, fmt.Errorf("gp connect request: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, ErrPatientNotFound
	case resp.IsError():
		return nil, fmt.Errorf("gp connect request: status %d", resp.StatusCode())
	}
	return toEntries(out), nil
}

// toEntries keeps the problem, allergy and immunisation resources of the
// bundle. Resources without an id or a label are dropped.
func toEntries(b bundle) []medicalhistory.ImportEntry {
	var out []medicalhistory.ImportEntry
	for _, e := range b.Entry {
		r := e.Resource
		var in medicalhistory.Input
		switch r.ResourceType {
		case "Condition":
			in = medicalhistory.Input{
				Category:     "condition",
				Title:        r.Code.label(),
				OnsetDate:    date(r.OnsetDateTime),
				ResolvedDate: date(r.AbatementDateTime),
				Severity:     severity(strings.ToLower(r.Severity.label())),
				Status:       status(r.ClinicalStatus.code()),
			}
		case "AllergyIntolerance":
			in = medicalhistory.Input{
				Category:  "allergy",
				Title:     r.Code.label(),
				OnsetDate: date(r.OnsetDateTime),
				Severity:  criticality(r.Criticality),
				Status:    status(r.ClinicalStatus.code()),
			}
		case "Immunization":
			in = medicalhistory.Input{
				Category:  "immunization",
				Title:     r.VaccineCode.label(),
				OnsetDate: date(r.OccurrenceDateTime),
				Status:    "resolved",
			}
		default:
			continue
		}
		if r.ID == "" || in.Title == "" {
			continue
		}
		if len(r.Note) > 0 && r.Note[0].Text != "" {
			note := r.Note[0].Text
			in.Description = &note
		}
		out = append(out, medicalhistory.ImportEntry{ExternalID: r.ResourceType + "/" + r.ID, Input: in})
	}
	return out
}

func date(s string) *civil.Date {
	if len(s) < 10 {
		return nil
	}
	d, err := civil.Parse(s[:10])
	if err != nil {
		return nil
	}
	return &d
}

func status(code string) string {
	switch code {
	case "active", "recurrence", "relapse":
		return "active"
	case "resolved", "remission":
		return "resolved"
	case "inactive":
		return "inactive"
	}
	return ""
}

func severity(s string) *string {
	switch s {
	case "mild", "moderate", "severe":
		return &s
	}
	return nil
}

func criticality(c string) *string {
	switch c {
	case "high":
		return severity("severe")
	case "low":
		return severity("mild")
	}
	return nil
}
