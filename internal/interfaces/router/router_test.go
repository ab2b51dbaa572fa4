package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nebs-backend/internal/config"
	"nebs-backend/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return &config.Config{
		Env:              config.EnvTest,
		Port:             "3000",
		DatabaseURI:      "sqlite://:memory:",
		LogLevel:         "error",
		RedisURL:         "redis://" + mr.Addr(),
		CORSOrigins:      []string{"http://localhost:3000"},
		RateLimitMax:     100,
		RateLimitWindow:  time.Minute,
		DBWaitTimeout:    time.Second,
		DBConnectTimeout: time.Second,
		AppModules:       []string{"api"},
		HealthAdminKey:   "secret",
		Upload: config.UploadConfig{
			Driver:      config.UploadLocal,
			Dir:         t.TempDir(),
			MaxFileSize: 1 << 20,
		},
	}
}

func setupApp(t *testing.T, cfg *config.Config) (*fiber.App, *database.Manager) {
	t.Helper()
	db := database.NewManager(database.Options{
		URI:       func() (string, error) { return cfg.DatabaseURI, nil },
		Connector: database.Dialer{AutoMigrate: true},
	})
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	app, rdb, err := CreateApp(context.Background(), cfg, db)
	require.NoError(t, err)
	if rdb != nil {
		t.Cleanup(func() { _ = rdb.Close() })
	}
	return app, db
}

func body(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestHealthRoutes(t *testing.T) {
	app, _ := setupApp(t, testConfig(t))

	for _, p := range []string{"/health", "/api/health"} {
		resp, err := app.Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		out := body(t, resp)
		assert.Equal(t, true, out["success"])
		assert.Equal(t, "Server is running", out["message"])
		assert.NotEmpty(t, out["timestamp"])
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	out := body(t, resp)
	deps := out["dependencies"].(map[string]interface{})
	assert.Equal(t, "disconnected", deps["database"].(map[string]interface{})["status"])
	assert.Equal(t, "connected", deps["redis"].(map[string]interface{})["status"])

	resp, err = app.Test(httptest.NewRequest("GET", "/health/reset?key=secret", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestNoticesLifecycleThroughRouter(t *testing.T) {
	app, db := setupApp(t, testConfig(t))

	payload, _ := json.Marshal(map[string]string{
		"targetDepartmentOrIndividual": "IT Department",
		"targetType":                   "department",
		"noticeTitle":                  "Maintenance",
		"noticeType":                   "General / Company-Wide",
		"noticeBody":                   "Saturday night",
	})
	req := httptest.NewRequest("POST", "/api/notices", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, database.Connected, db.State())
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))
	id := body(t, resp)["data"].(map[string]interface{})["_id"].(string)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/notices/"+id, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/notices", nil), -1)
	require.NoError(t, err)
	list := body(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), list["pagination"].(map[string]interface{})["total"])

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/notices/"+id, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	deps := body(t, resp)["dependencies"].(map[string]interface{})
	assert.Equal(t, "connected", deps["database"].(map[string]interface{})["status"])
}

func TestNoticesDatabaseUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseURI = "unknown://nowhere"
	app, db := setupApp(t, cfg)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/notices", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Database unavailable", body(t, resp)["message"])
	assert.Equal(t, database.Failed, db.State())

	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	app, _ := setupApp(t, testConfig(t))
	resp, err := app.Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	out := body(t, resp)
	assert.Equal(t, "Route /nope not found", out["message"])
	assert.Equal(t, false, out["success"])
}

func TestRateLimitOnAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitMax = 2
	app, _ := setupApp(t, cfg)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/notices", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest("GET", "/api/notices", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env = config.EnvProduction
	app, _ := setupApp(t, cfg)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "cross-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestStaticUploads(t *testing.T) {
	cfg := testConfig(t)
	app, _ := setupApp(t, cfg)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Upload.Dir, "a.txt"), []byte("hello"), 0o644))

	resp, err := app.Test(httptest.NewRequest("GET", "/uploads/a.txt", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "hello", string(b))
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := setupApp(t, testConfig(t))
	_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), `nebs_http_requests_total{method="GET",route="/health",status="200"}`)
	assert.Contains(t, string(b), "nebs_database_state 0")
}

func TestHandlerRewritesRequestURI(t *testing.T) {
	app, _ := setupApp(t, testConfig(t))
	h := Handler(app)

	req := httptest.NewRequest("GET", "/api/index?x=1", nil)
	req.URL.Path = "/health"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
