package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/validate"
)

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validate.New()
	return e
}

func TestHandler_CreateContainer(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.svc)
	e := newTestEcho()

	body := `{"name":"EDTA","max_volume":"3","number":1}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("lab_id")
	c.SetParamValues(env.lab.ID.String())

	if err := h.CreateContainer(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got SpecimenContainer
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.LabID != env.lab.ID || got.Number != 1 || got.MaxVolume.String() != "3" {
		t.Errorf("unexpected container %+v", got)
	}
}

func TestHandler_CreateContainer_BadNumber(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.svc)
	e := newTestEcho()

	body := `{"name":"EDTA","max_volume":"3","number":120}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("lab_id")
	c.SetParamValues(env.lab.ID.String())

	err := h.CreateContainer(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestHandler_GetTest_InvalidID(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.svc)
	e := newTestEcho()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetTest(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetProfile(t *testing.T) {
	env := newTestEnv(t)
	a := env.test(t, "A", 100)
	b := env.test(t, "B", 60)
	p := &TestProfile{LabID: env.lab.ID, Name: "Lipid", TestOrder: "B,A", TestIDs: []uuid.UUID{a.ID, b.ID}}
	if err := env.svc.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	h := NewHandler(env.svc)
	e := newTestEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Tests          []Test `json:"tests"`
		EffectivePrice string `json:"effective_price"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.EffectivePrice != "160.00" {
		t.Errorf("expected effective price 160.00, got %s", body.EffectivePrice)
	}
	if len(body.Tests) != 2 || body.Tests[0].Code != "B" {
		t.Errorf("expected tests ordered B,A, got %+v", body.Tests)
	}
}
