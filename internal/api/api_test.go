package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"portfolio-backend/internal/api"
	"portfolio-backend/internal/auth"
	"portfolio-backend/internal/biz"
	"portfolio-backend/internal/data"
	"portfolio-backend/internal/service"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeVerifier accepts the tokens it knows.
type fakeVerifier map[string]*auth.UserInfo

func (f fakeVerifier) VerifyAccessToken(_ context.Context, raw string) (*auth.UserInfo, error) {
	if u, ok := f[raw]; ok {
		return u, nil
	}
	return nil, auth.ErrInvalidToken
}

const testNS = "https://portfolio.example.com/"

func newRouter(t *testing.T, limiter *api.ClientLimiter) (*mux.Router, *biz.ProjectUsecase, *biz.ContactUsecase) {
	t.Helper()
	db, err := data.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	contactUC := biz.NewContactUsecase(data.NewContactRepo(db))
	projectUC := biz.NewProjectUsecase(data.NewProjectRepo(db))
	verifier := fakeVerifier{
		"good": {Sub: "auth0|1", Name: "Ada", Email: "ada@example.com", Picture: "https://example.com/a.png"},
		"owner": {Sub: "auth0|2", Raw: map[string]any{
			"sub":                  "auth0|2",
			testNS + "permissions": []any{api.ReadMessagesPermission},
		}},
	}
	protect := auth.BearerMiddleware(verifier, logger)
	requireInbox := auth.RequirePermission(testNS, api.ReadMessagesPermission)
	inbox := func(next http.Handler) http.Handler { return protect(requireInbox(next)) }

	router := api.NewRouter(api.Handlers{
		Auth:    api.NewAuthHandler(protect),
		Contact: api.NewContactHandler(service.NewContactService(contactUC), limiter, inbox, logger),
		Project: api.NewProjectHandler(service.NewProjectService(projectUC), logger),
	}, logger)
	return router, projectUC, contactUC
}

func do(router http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func authRequest(endpoint, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/auth?endpoint="+endpoint, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthEndpoints(t *testing.T) {
	router, _, _ := newRouter(t, nil)

	tests := []struct {
		name     string
		endpoint string
		token    string
		status   int
		check    func(t *testing.T, body map[string]any)
	}{
		{"protected without token", "protected-content", "", http.StatusUnauthorized, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "No token provided", body["error"])
		}},
		{"protected with bad token", "protected-content", "forged", http.StatusUnauthorized, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "Invalid token", body["error"])
		}},
		{"protected with good token", "protected-content", "good", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Equal(t, true, body["success"])
			assert.Equal(t, api.ProtectedContent, body["content"])
		}},
		{"user data", "user-data", "good", http.StatusOK, func(t *testing.T, body map[string]any) {
			user := body["user"].(map[string]any)
			assert.Equal(t, "auth0|1", user["sub"])
			assert.Equal(t, "Ada", user["name"])
			assert.Equal(t, "https://example.com/a.png", user["picture"])
		}},
		{"user data without token", "user-data", "", http.StatusUnauthorized, nil},
		{"public data", "public-data", "", http.StatusOK, func(t *testing.T, body map[string]any) {
			assert.Equal(t, api.PublicMessage, body["message"])
		}},
		{"unknown endpoint", "nope", "good", http.StatusNotFound, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "Endpoint not found", body["error"])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(router, authRequest(tt.endpoint, tt.token))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get(api.RequestIDHeader))
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func contactForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestContact(t *testing.T) {
	router, _, contactUC := newRouter(t, nil)

	rec, body := do(router, contactForm(url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "message": {"<hi>"}}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Message sent successfully!", body["message"])

	rec, body = do(router, contactForm(url.Values{"name": {"Ada"}, "email": {"  "}, "message": {"x"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Please fill in all fields", body["message"])

	jsonReq := httptest.NewRequest(http.MethodPost, "/api/contact",
		strings.NewReader(`{"name":"Bob","email":"not-an-email","message":"x"}`))
	jsonReq.Header.Set("Content-Type", "application/json")
	rec, body = do(router, jsonReq)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please enter a valid email address", body["message"])

	rec, body = do(router, httptest.NewRequest(http.MethodGet, "/api/contact", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Invalid request method", body["message"])

	stored, err := contactUC.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "&lt;hi&gt;", stored[0].Message)
}

func TestContactInbox(t *testing.T) {
	router, _, _ := newRouter(t, nil)
	rec, _ := do(router, contactForm(url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "message": {"hello"}}))
	require.Equal(t, http.StatusOK, rec.Code)

	inbox := func(token string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/contact/messages?limit=5", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req
	}

	rec, body := do(router, inbox(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token provided", body["error"])

	rec, body = do(router, inbox("good"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions", body["error"])

	rec, body = do(router, inbox("owner"))
	require.Equal(t, http.StatusOK, rec.Code)
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].(map[string]any)["message"])
	assert.Equal(t, "ada@example.com", messages[0].(map[string]any)["email"])
}

func TestContact_RateLimited(t *testing.T) {
	router, _, _ := newRouter(t, api.NewClientLimiter(1, 2))
	form := url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "message": {"hi"}}

	for range 2 {
		rec, _ := do(router, contactForm(form))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := do(router, contactForm(form))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestClientLimiter_PerClient(t *testing.T) {
	l := api.NewClientLimiter(60, 1)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestProjects(t *testing.T) {
	router, projectUC, _ := newRouter(t, nil)

	rec, body := do(router, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Empty(t, body["projects"])

	ctx := context.Background()
	_, err := projectUC.Create(ctx, &biz.Project{Title: "Old", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = projectUC.Create(ctx, &biz.Project{Title: "New", Tags: []string{"go"}, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	rec, body = do(router, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	projects := body["projects"].([]any)
	require.Len(t, projects, 2)
	assert.Equal(t, "New", projects[0].(map[string]any)["title"])
	assert.Equal(t, []any{}, projects[1].(map[string]any)["tags"])
}

func TestProjectByID(t *testing.T) {
	router, projectUC, _ := newRouter(t, nil)
	id, err := projectUC.Create(context.Background(), &biz.Project{Title: "Portfolio", Tags: []string{"go"}})
	require.NoError(t, err)

	rec, body := do(router, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/projects/%d", id), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	project := body["project"].(map[string]any)
	assert.Equal(t, "Portfolio", project["title"])
	assert.Equal(t, []any{"go"}, project["tags"])

	rec, body = do(router, httptest.NewRequest(http.MethodGet, "/api/projects/9999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Project not found", body["message"])
}

func TestHealth(t *testing.T) {
	router, _, _ := newRouter(t, nil)
	rec, body := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

type failingProjects struct{}

func (failingProjects) ListProjects(context.Context) ([]api.ProjectInfo, error) {
	return nil, errors.New("disk on fire")
}

func (failingProjects) GetProject(context.Context, int64) (*api.ProjectInfo, error) {
	return nil, errors.New("disk on fire")
}

func TestProjects_StorageFailure(t *testing.T) {
	router := api.NewRouter(api.Handlers{Project: api.NewProjectHandler(failingProjects{}, zap.NewNop())}, zap.NewNop())
	rec, body := do(router, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
}
