package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"okrtrack/internal/core/policy"
	"okrtrack/internal/core/tenant"
	"okrtrack/internal/infrastructure/http/v1/middleware"
	"okrtrack/internal/infrastructure/storage/postgres"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func (downDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("connection refused")
}

type guardStats postgres.GuardStats

func (g guardStats) Stats() postgres.GuardStats { return postgres.GuardStats(g) }

func TestHealth(t *testing.T) {
	h := NewHealthHandler(downDB{}, guardStats{}, policy.Default())
	r := gin.New()
	r.GET("/live", h.Live)
	r.GET("/ready", h.Ready)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

type fakeAdmin struct {
	orgs []*tenant.Organization
	err  error
}

var errTaken = errors.New("taken")

func (f *fakeAdmin) ListOrganizations(context.Context) ([]*tenant.Organization, error) {
	return f.orgs, f.err
}

func (f *fakeAdmin) CreateOrganization(_ context.Context, slug, name, plan string) (*tenant.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	org := &tenant.Organization{ID: uuid.New(), Slug: slug, Name: name}
	f.orgs = append(f.orgs, org)
	return org, nil
}

func adminRouter(admin *fakeAdmin) *gin.Engine {
	h := NewOrganizationHandler(NewBaseHandler(), admin, errTaken)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.GET("/organizations", h.List)
	r.POST("/organizations", h.Create)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestOrganizationHandler(t *testing.T) {
	admin := &fakeAdmin{}
	r := adminRouter(admin)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/organizations", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"limit":0,"offset":0}`, rec.Body.String())

	rec = post(r, "/organizations", `{"slug":"acme","name":"Acme"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"acme"`)

	rec = post(r, "/organizations", `{"slug":"acme"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	admin.err = errTaken
	rec = post(r, "/organizations", `{"slug":"acme","name":"Acme"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGoalHandler_MalformedIDIsNotFound(t *testing.T) {
	h := NewGoalHandler(NewBaseHandler(), nil)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	h.RegisterRoutes(r.Group(""))

	for _, path := range []string{"/goals/nope", "/goals/nope/key-results", "/key-results/nope/check-ins"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}
