package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/regingest/internal/config"
	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/JonMunkholm/regingest/internal/database"
	"github.com/JonMunkholm/regingest/internal/source"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entity = "Agencia Nacional de Infraestructura"

const batch = `[
 {"title":"Resolución 1","created_at":"2024-05-02","entity":"Agencia Nacional de Infraestructura","external_link":"https://ani.gov.co/1.pdf"},
 {"title":"Resolución 2","created_at":"2024-05-03","entity":"Agencia Nacional de Infraestructura"},
 {"title":"","created_at":"2024-05-04","entity":"Agencia Nacional de Infraestructura"}
]`

func serverConfig() config.ServerConfig {
	return config.ServerConfig{MaxBodyBytes: 1 << 20}
}

func newTestService(t *testing.T, open core.Opener, opts core.Options) *core.Service {
	t.Helper()
	if open == nil {
		path := filepath.Join(t.TempDir(), "regs.db")
		open = func(ctx context.Context) (core.Store, error) {
			db, err := database.OpenSQLite(ctx, path)
			if err != nil {
				return nil, err
			}
			return db, nil
		}
	}
	catalog, err := core.DefaultCatalog()
	require.NoError(t, err)
	return core.NewService(catalog, open, nil, opts)
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHandleRun(t *testing.T) {
	srv := NewServer(newTestService(t, nil, core.Options{}), nil, serverConfig(), config.SecurityConfig{})
	h := srv.Router()

	rec, body := do(t, h, http.MethodPost, "/api/runs", "application/json", batch, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "inserted", body["outcome"])
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["records_scraped"])
	assert.EqualValues(t, 2, body["records_inserted"])
	assert.NotEmpty(t, body["run_id"])
	assert.Contains(t, body["message"], "New inserted: 2")

	rec, body = do(t, h, http.MethodPost, "/api/runs", "application/json", `{"records":`+batch+`}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "all_duplicates", body["outcome"])
	assert.Equal(t, false, body["success"])
	assert.EqualValues(t, 0, body["records_inserted"])
}

func TestHandleRun_CSV(t *testing.T) {
	srv := NewServer(newTestService(t, nil, core.Options{}), nil, serverConfig(), config.SecurityConfig{})

	csv := "title,created_at,entity\nDecree 9,2024-06-01," + entity + "\n"
	rec, body := do(t, srv.Router(), http.MethodPost, "/api/runs", "text/csv", csv, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, body["records_inserted"])
}

func TestHandleRun_BadRequests(t *testing.T) {
	srv := NewServer(newTestService(t, nil, core.Options{}), nil, serverConfig(), config.SecurityConfig{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "truncated json", body: `[{"title":`, wantStatus: http.StatusBadRequest, wantCode: "VAL002"},
		{name: "object without records", body: `{"other":1}`, wantStatus: http.StatusBadRequest, wantCode: "VAL002"},
		{name: "local source", body: `{"source":"/etc/passwd"}`, wantStatus: http.StatusBadRequest},
		{name: "both records and source", body: `{"records":[],"source":"s3://b/k.json"}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, srv.Router(), http.MethodPost, "/api/runs", "application/json", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, false, body["success"])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["code"])
			}
		})
	}
}

func TestHandleRun_BodyTooLarge(t *testing.T) {
	cfg := serverConfig()
	cfg.MaxBodyBytes = 16
	srv := NewServer(newTestService(t, nil, core.Options{}), nil, cfg, config.SecurityConfig{})

	rec, _ := do(t, srv.Router(), http.MethodPost, "/api/runs", "application/json", batch, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleRun_DatabaseDown(t *testing.T) {
	open := func(ctx context.Context) (core.Store, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	srv := NewServer(newTestService(t, open, core.Options{}), nil, serverConfig(), config.SecurityConfig{})

	rec, body := do(t, srv.Router(), http.MethodPost, "/api/runs", "application/json", batch, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "DB004", body["code"])
	assert.NotEmpty(t, body["run_id"])
}

func TestHandleRun_Busy(t *testing.T) {
	svc := newTestService(t, nil, core.Options{MaxConcurrent: 1, MaxWait: 10 * time.Millisecond})
	require.NoError(t, svc.Limiter().Acquire(context.Background()))
	defer svc.Limiter().Release()
	srv := NewServer(svc, nil, serverConfig(), config.SecurityConfig{})

	rec, body := do(t, srv.Router(), http.MethodPost, "/api/runs", "application/json", batch, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RUN001", body["code"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

type fakeObjects map[string]string

func (f fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestHandleRun_S3Source(t *testing.T) {
	reader := source.NewReader(source.Config{}).WithObjectGetter(fakeObjects{"scrapes/ani.json": batch})
	srv := NewServer(newTestService(t, nil, core.Options{}), reader, serverConfig(), config.SecurityConfig{})

	rec, body := do(t, srv.Router(), http.MethodPost, "/api/runs", "application/json", `{"source":"s3://scrapes/ani.json"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, body["records_inserted"])
}

func TestHandleValidate(t *testing.T) {
	srv := NewServer(newTestService(t, nil, core.Options{}), nil, serverConfig(), config.SecurityConfig{})

	rec, body := do(t, srv.Router(), http.MethodPost, "/api/validate", "application/json", batch, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["records"])
	assert.EqualValues(t, 2, body["valid"])
	assert.EqualValues(t, 1, body["invalid"])

	rejected := body["rejected"].([]any)
	require.Len(t, rejected, 1)
	row := rejected[0].(map[string]any)
	assert.EqualValues(t, 2, row["row"])
	assert.Equal(t, []any{"title: required field is empty"}, row["reasons"])
}

func TestAPIKeyAuth(t *testing.T) {
	security := config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}
	srv := NewServer(newTestService(t, nil, core.Options{}), nil, serverConfig(), security)
	h := srv.Router()

	rec, body := do(t, h, http.MethodPost, "/api/validate", "application/json", batch, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH001", body["code"])

	rec, body = do(t, h, http.MethodPost, "/api/validate", "application/json", batch, map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH002", body["code"])

	rec, _ = do(t, h, http.MethodPost, "/api/validate", "application/json", batch, map[string]string{"X-API-Key": "k2"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/validate", "application/json", batch, map[string]string{"Authorization": "Bearer k1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not behind auth")
}

func TestHealthAndStatus(t *testing.T) {
	srv := NewServer(newTestService(t, nil, core.Options{MaxConcurrent: 2}), nil, serverConfig(), config.SecurityConfig{})

	rec, body := do(t, srv.Router(), http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, entity, body["entity"])

	rec, body = do(t, srv.Router(), http.MethodGet, "/api/runs/status", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["max_concurrent"])
	assert.EqualValues(t, 2, body["available"])
}

func TestServeAndShutdown(t *testing.T) {
	srv := NewServer(newTestService(t, nil, core.Options{}), nil, serverConfig(), config.SecurityConfig{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}
