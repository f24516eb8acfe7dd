package appointment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careadmin/careadmin/internal/platform/response"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	e := echo.New()
	e.HTTPErrorHandler = response.ErrorHandler(zerolog.Nop(), nil)
	return NewHandler(svc), e
}

func newRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req = req.WithContext(tenantCtx())
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"0c2a0a3e-9b61-4d5c-8a0e-3f9a7e8d6c5b","care_professional_id":"` + professional.String() + `",
		"title":"Dressing change","start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T09:30:00Z","type":"home-visit"}`
	c, rec := newRequest(e, http.MethodPost, "/", body)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var env struct {
		Success bool        `json:"success"`
		Data    Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, "home-visit", env.Data.Type)
	assert.Equal(t, nineAM, env.Data.StartTime)
}

func TestHandler_Create_Overlap409(t *testing.T) {
	h, e := newTestHandler()
	_, err := h.svc.Create(tenantCtx(), booking(nineAM, 60))
	require.NoError(t, err)

	body := `{"patient_id":"0c2a0a3e-9b61-4d5c-8a0e-3f9a7e8d6c5b","care_professional_id":"` + professional.String() + `",
		"title":"Clash","start_time":"2026-03-02T09:15:00Z","end_time":"2026-03-02T09:45:00Z"}`
	c, rec := newRequest(e, http.MethodPost, "/", body)
	err = h.Create(c)
	require.Error(t, err)
	e.HTTPErrorHandler(err, c)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_List_Range(t *testing.T) {
	h, e := newTestHandler()
	_, err := h.svc.Create(tenantCtx(), booking(nineAM, 60))
	require.NoError(t, err)

	c, rec := newRequest(e, http.MethodGet, "/?from=2026-03-02&to=2026-03-03", "")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestHandler_List_BadParams(t *testing.T) {
	h, e := newTestHandler()
	for _, target := range []string{"/?from=yesterday", "/?patient_id=nope", "/?care_professional_id=42"} {
		c, _ := newRequest(e, http.MethodGet, target, "")
		err := h.List(c)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok, target)
		assert.Equal(t, http.StatusBadRequest, he.Code, target)
	}
}

func TestHandler_SetStatus(t *testing.T) {
	h, e := newTestHandler()
	a, err := h.svc.Create(tenantCtx(), booking(nineAM, 60))
	require.NoError(t, err)

	c, rec := newRequest(e, http.MethodPatch, "/", `{"status":"confirmed"}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	require.NoError(t, h.SetStatus(c))
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
}

func TestHandler_Delete_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newRequest(e, http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("bad")
	assert.Error(t, h.Delete(c))
}
