package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"user-crud-service/internal/adapter/db/postgres"
	"user-crud-service/internal/adapter/gin/handler"
	"user-crud-service/internal/adapter/gin/middleware"
	"user-crud-service/internal/adapter/repository/instrumented"
	domain "user-crud-service/internal/domain/user"
	"user-crud-service/internal/usecase/user"
	"user-crud-service/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	router *gin.Engine
	repo   *postgres.UserRepoPG
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, postgres.Migrate(db))

	log := zaptest.NewLogger(t)
	repo := postgres.NewUserRepoPG(db, log)

	var r user.Repository = repo
	if opts.Metrics != nil {
		r = instrumented.NewUserRepository(repo, opts.Metrics)
	}
	h := handler.NewUserHandler(user.New(r, log), log)

	if opts.ServiceName == "" {
		opts.ServiceName = "user-crud-service"
	}
	return &testServer{router: SetupRouter(h, log, opts), repo: repo}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) count(t *testing.T) int {
	t.Helper()
	users, err := s.repo.List(context.Background())
	require.NoError(t, err)
	return len(users)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorMsg(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[handler.ErrorResponse](t, w).Error
}

func createUser(t *testing.T, s *testServer, name, email string) handler.UserResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/users", `{"name":"`+name+`","email":"`+email+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[handler.UserResponse](t, w)
}

func TestUsers_CreateThenGet(t *testing.T) {
	s := newTestServer(t, Options{})

	created := createUser(t, s, "John Doe", "john@example.com")
	assert.Equal(t, "John Doe", created.Name)
	assert.Equal(t, "john@example.com", created.Email)
	assert.NotEmpty(t, created.ID)

	w := s.do(t, http.MethodGet, "/users/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[handler.UserResponse](t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Name, got.Name)
	assert.Equal(t, created.Email, got.Email)
}

func TestUsers_CreateMissingFields(t *testing.T) {
	s := newTestServer(t, Options{})

	for _, body := range []string{`{"name":"John"}`, `{"email":"john@example.com"}`, `{"name":"","email":""}`, `{}`} {
		w := s.do(t, http.MethodPost, "/users", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "Name and email are required fields", errorMsg(t, w))
	}
	assert.Equal(t, 0, s.count(t))
}

func TestUsers_CreateDuplicateEmail(t *testing.T) {
	s := newTestServer(t, Options{})
	createUser(t, s, "John", "dup@example.com")

	w := s.do(t, http.MethodPost, "/users", `{"name":"Jane","email":"dup@example.com"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Email already exists", errorMsg(t, w))
	assert.Equal(t, 1, s.count(t))
}

func TestUsers_List(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"No users found","data":[]}`, w.Body.String())

	createUser(t, s, "A", "a@example.com")
	createUser(t, s, "B", "b@example.com")

	w = s.do(t, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[[]handler.UserResponse](t, w)
	assert.Len(t, users, 2)
}

func TestUsers_GetErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/users/"+domain.NewID(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", errorMsg(t, w))

	w = s.do(t, http.MethodGet, "/users/123", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid ID format", errorMsg(t, w))
}

func TestUsers_Update(t *testing.T) {
	s := newTestServer(t, Options{})
	john := createUser(t, s, "John", "john@example.com")
	jane := createUser(t, s, "Jane", "jane@example.com")

	t.Run("partial", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/users/"+john.ID, `{"name":"Johnny"}`)
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[handler.UserResponse](t, w)
		assert.Equal(t, "Johnny", got.Name)
		assert.Equal(t, "john@example.com", got.Email)
	})

	t.Run("empty body", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/users/"+john.ID, `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Request body cannot be empty", errorMsg(t, w))
	})

	t.Run("malformed id", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/users/xyz", `{"name":"X"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid ID format", errorMsg(t, w))
	})

	t.Run("not found", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/users/"+domain.NewID(), `{"name":"X"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("clearing a required field", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/users/"+john.ID, `{"name":""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, errorMsg(t, w), "name is required")
	})

	t.Run("email collision leaves original unchanged", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/users/"+jane.ID, `{"email":"john@example.com"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Email already exists", errorMsg(t, w))

		w = s.do(t, http.MethodGet, "/users/"+jane.ID, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "jane@example.com", decode[handler.UserResponse](t, w).Email)
	})
}

func TestUsers_Delete(t *testing.T) {
	s := newTestServer(t, Options{})
	created := createUser(t, s, "John", "john@example.com")

	w := s.do(t, http.MethodDelete, "/users/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"User deleted successfully"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/users/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/users/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/users/nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid ID format", errorMsg(t, w))
}

func TestUsers_BodyLimit(t *testing.T) {
	s := newTestServer(t, Options{MaxBodyBytes: 32})

	w := s.do(t, http.MethodPost, "/users", `{"name":"`+strings.Repeat("x", 64)+`","email":"a@b.c"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, s.count(t))
}

func TestUsers_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl := middleware.NewRateLimiter(client, middleware.RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		BurstCapacity:     2,
	}, zaptest.NewLogger(t))
	s := newTestServer(t, Options{RateLimiter: rl})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users", "").Code)

	w := s.do(t, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded", errorMsg(t, w))

	// operational endpoints are not limited
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "").Code)
}

func TestHealthAndReady(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	broken := pingFunc(func(context.Context) error { return errors.New("redis down") })

	s := newTestServer(t, Options{Ready: map[string]Pinger{"database": healthy}})
	w := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-crud-service")

	w = s.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"database":"ok"}}`, w.Body.String())

	s = newTestServer(t, Options{Ready: map[string]Pinger{"database": healthy, "redis": broken}})
	w = s.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"not_ready","checks":{"database":"ok","redis":"redis down"}}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := metrics.New(reg)
	s := newTestServer(t, Options{Metrics: prom, Gatherer: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	s.do(t, http.MethodGet, "/users", "")
	s.do(t, http.MethodGet, "/users/"+domain.NewID(), "")

	w := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `usersvc_http_requests_total{method="GET",route="/users",status="200"} 1`)
	assert.Contains(t, body, `usersvc_store_errors_total{class="not_found",op="get"} 1`)
}

func TestDocsAndFallbacks(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"swagger": "2.0"`)

	w = s.do(t, http.MethodGet, "/swagger/index.html", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", errorMsg(t, w))

	w = s.do(t, http.MethodPatch, "/users", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, Options{})
	w := s.do(t, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
