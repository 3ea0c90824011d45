package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/sdplabs/ingest/internal/audit"
	"github.com/sdplabs/ingest/internal/environments"
	"github.com/sdplabs/ingest/internal/objstore"
	"github.com/sdplabs/ingest/internal/pipeline"
	"github.com/sdplabs/ingest/internal/tabular"
	"github.com/sdplabs/ingest/internal/testutil"
	"github.com/sdplabs/ingest/internal/warehouse"
)

type fakeStore struct {
	mu       sync.Mutex
	prefixes map[string][]string
	objects  []objstore.ObjectInfo
	content  map[string][]byte
	writes   []string
	writeErr error
}

func (f *fakeStore) ListPrefixes(_ context.Context, _, prefix string) ([]string, error) {
	return f.prefixes[prefix], nil
}

func (f *fakeStore) ListObjects(_ context.Context, _, _ string) ([]objstore.ObjectInfo, error) {
	return f.objects, nil
}

func (f *fakeStore) ReadBytes(_ context.Context, _, key string) ([]byte, error) {
	data, ok := f.content[key]
	if !ok {
		return nil, objstore.ErrNotFound
	}
	return data, nil
}

func (f *fakeStore) WriteFile(_ context.Context, bucket, key, localPath string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("local file missing at write time: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, bucket+"/"+key)
	f.content[key] = data
	return nil
}

func (f *fakeStore) CreateUploadSession(_ context.Context, _, key, _ string) (string, error) {
	return "https://upload.example.com/session/" + key, nil
}

type fakeWarehouse struct {
	schema    warehouse.TableSchema
	schemaErr error
	loadRows  uint64
	loadErr   error
	loaded    []string
}

func (f *fakeWarehouse) GetSchema(_ context.Context, _ warehouse.Target) (warehouse.TableSchema, error) {
	return f.schema, f.schemaErr
}

func (f *fakeWarehouse) LoadColumnarFile(_ context.Context, target warehouse.Target, uri string, _ warehouse.LoadMode) (uint64, error) {
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	f.loaded = append(f.loaded, target.String()+"<-"+uri)
	return f.loadRows, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAudit) Append(_ context.Context, e audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) Query(_ context.Context, filter audit.Filter, limit int) ([]audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.Entry
	for _, e := range f.entries {
		if filter.User != "" && e.User != filter.User {
			continue
		}
		if filter.Product != "" && e.Product != filter.Product {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeTrigger struct {
	compileErr error
	invokeErr  error
	repos      []string
}

func (f *fakeTrigger) Compile(_ context.Context, repository, _ string) (string, error) {
	if f.compileErr != nil {
		return "", f.compileErr
	}
	f.repos = append(f.repos, repository)
	return "comp-1", nil
}

func (f *fakeTrigger) Invoke(_ context.Context, compilationID string) (pipeline.Invocation, error) {
	if f.invokeErr != nil {
		return pipeline.Invocation{}, f.invokeErr
	}
	return pipeline.Invocation{ID: "inv-" + compilationID, State: "RUNNING"}, nil
}

type testDeps struct {
	store     *fakeStore
	warehouse *fakeWarehouse
	audit     *fakeAudit
	trigger   *fakeTrigger
}

func newTestServer(t *testing.T, mutate func(cfg *Config, deps *testDeps)) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		store:     &fakeStore{prefixes: map[string][]string{}, content: map[string][]byte{}},
		warehouse: &fakeWarehouse{},
		audit:     &fakeAudit{},
		trigger:   &fakeTrigger{},
	}

	registry := environments.New([]environments.Environment{
		{ID: "pd", ProjectID: "proj-main", Buckets: []string{"sdp-pd-raw"}},
		{ID: "sap", ProjectID: "proj-sap", Buckets: []string{"sdp_cl_landing_stxh_zone"}},
	})

	clients := NewClientSet()
	clients.RegisterProject("proj-main", deps.store, deps.warehouse)
	clients.RegisterProject("proj-sap", deps.store, deps.warehouse)

	cfg := &Config{
		Logger:      testutil.NewLogger(),
		ListenAddr:  "127.0.0.1:0",
		VersionInfo: VersionInfo{Version: "test", Commit: "abc", Date: "2025-03-07"},
		Registry:    registry,
		Clients:     clients,
		Audit:       deps.audit,
		Pipeline:    deps.trigger,
		Clock:       clockwork.NewFakeClockAt(time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)),
	}
	if mutate != nil {
		mutate(cfg, deps)
	}

	s, err := New(cfg)
	require.NoError(t, err)
	return s, deps
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func multipartUpload(t *testing.T, target, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServer_HealthAndVersion(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok\n", rec.Body.String())

	rec = doJSON(t, s.Handler(), http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "test", body["version"])
}

func TestServer_Environments(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/environments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envs []environments.Environment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envs))
	require.Len(t, envs, 2)
	require.Equal(t, "pd", envs[0].ID)
}

func TestServer_ListProducts(t *testing.T) {
	t.Parallel()

	t.Run("missing params", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/products", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown environment", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/products?env_id=nope&bucket_name=sdp-pd-raw", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bucket from another environment", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/products?env_id=pd&bucket_name=sdp_cl_landing_stxh_zone", nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("lists root prefixes", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, nil)
		deps.store.prefixes[""] = []string{"sales", "stock"}

		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/products?env_id=pd&bucket_name=sdp-pd-raw", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, []any{"sales", "stock"}, body["data_products"])
	})
}

func TestServer_Upload(t *testing.T) {
	t.Parallel()

	csv := []byte("Código,Descripción\n1,foo\n2,bar\n")
	fields := map[string]string{
		"env_id":      "pd",
		"bucket_name": "sdp-pd-raw",
		"destination": "stock/items",
		"user":        "maria",
	}

	t.Run("success lands dated parquet", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, nil)

		req := multipartUpload(t, "/api/upload", "datos.csv", csv, fields)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		require.Equal(t, "stock/items/year=2025/month=03/day=07/data.parquet", body["object_path"])
		require.Equal(t, float64(2), body["rows"])
		// No schema available, so validation degrades to one warning.
		require.Len(t, body["warnings"], 1)

		require.Equal(t, []string{"sdp-pd-raw/stock/items/year=2025/month=03/day=07/data.parquet"}, deps.store.writes)
		require.Len(t, deps.audit.entries, 1)
		require.Equal(t, audit.SeverityInfo, deps.audit.entries[0].Severity)
		require.Equal(t, "maria", deps.audit.entries[0].User)
	})

	t.Run("blocking validation rejects and writes nothing", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, func(_ *Config, deps *testDeps) {
			deps.warehouse.schema = warehouse.TableSchema{
				"codigo":   {Name: "codigo", Type: "String", Mode: warehouse.ModeRequired},
				"faltante": {Name: "faltante", Type: "String", Mode: warehouse.ModeRequired},
				"opcional": {Name: "opcional", Type: "String", Mode: warehouse.ModeNullable},
			}
		})

		req := multipartUpload(t, "/api/upload", "datos.csv", csv, fields)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		require.NotEmpty(t, body["errors"])
		require.Empty(t, deps.store.writes)

		require.Len(t, deps.audit.entries, 1)
		require.Equal(t, audit.SeverityError, deps.audit.entries[0].Severity)
	})

	t.Run("validate=false skips the schema entirely", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, func(_ *Config, deps *testDeps) {
			deps.warehouse.schema = warehouse.TableSchema{
				"faltante": {Name: "faltante", Type: "String", Mode: warehouse.ModeRequired},
			}
		})

		f := map[string]string{}
		for k, v := range fields {
			f[k] = v
		}
		f["validate"] = "false"

		req := multipartUpload(t, "/api/upload", "datos.csv", csv, f)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, deps.store.writes, 1)
	})

	t.Run("unreadable file is a client error", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)

		req := multipartUpload(t, "/api/upload", "datos.parquet", []byte("not parquet"), fields)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Analyze(t *testing.T) {
	t.Parallel()

	csv := []byte("Año,Valor\n2024,10\n2025,\n")

	t.Run("step 1 reports file facts", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)

		req := multipartUpload(t, "/api/analyze", "ventas.csv", csv, map[string]string{"step": "1"})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "ventas.csv", body["file_name"])
		require.Equal(t, "CSV", body["file_type"])
		require.Equal(t, "07-03-2025", body["upload_date"])
	})

	t.Run("step 2 previews normalized columns", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)

		req := multipartUpload(t, "/api/analyze", "ventas.csv", csv, map[string]string{"step": "2"})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, float64(2), body["column_count"])
		require.Equal(t, float64(2), body["record_count"])

		columns := body["columns"].([]any)
		first := columns[0].(map[string]any)
		require.Equal(t, "anio", first["name"])

		// Delimited text never produces explicit nulls, only empty strings.
		preview := body["preview"].([]any)
		second := preview[1].(map[string]any)
		require.Equal(t, "", second["valor"])
	})

	t.Run("step 3 without target skips validation with a warning", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)

		req := multipartUpload(t, "/api/analyze", "ventas.csv", csv, map[string]string{"step": "3"})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Empty(t, body["errors"])
		require.Len(t, body["warnings"], 1)
	})

	t.Run("step 3 reconciles against the warehouse schema", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, func(_ *Config, deps *testDeps) {
			deps.warehouse.schema = warehouse.TableSchema{
				"anio":  {Name: "anio", Type: "String", Mode: warehouse.ModeRequired},
				"valor": {Name: "valor", Type: "String", Mode: warehouse.ModeRequired},
				"fecha": {Name: "fecha", Type: "Date", Mode: warehouse.ModeRequired},
			}
		})

		req := multipartUpload(t, "/api/analyze", "ventas.csv", csv, map[string]string{
			"step":        "3",
			"env_id":      "pd",
			"bucket_name": "sdp-pd-raw",
			"destination": "ventas/anual",
		})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "proj-main.sdp_ventas.tbl_anual", body["validated_against"])
		// fecha is REQUIRED but absent from the file.
		require.Len(t, body["errors"], 1)
	})
}

func TestServer_SaveData(t *testing.T) {
	t.Parallel()

	t.Run("writes a dated dataset version", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, nil)

		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/products/save-data", map[string]any{
			"env_id":       "pd",
			"bucket_name":  "sdp-pd-raw",
			"product_name": "stock",
			"table_name":   "items",
			"user":         "maria",
			"rows": []map[string]any{
				{"id": 1, "name": "foo"},
				{"id": 2, "name": nil},
			},
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		require.Equal(t, "stock/items/year=2025/month=03/day=07/data.parquet", body["path"])
		require.Len(t, deps.store.writes, 1)
		require.Len(t, deps.audit.entries, 1)
		require.Equal(t, "stock", deps.audit.entries[0].Product)
	})

	t.Run("round-trips rows that carry partition columns", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, nil)

		// preview-latest returns rows including the partition columns the
		// file stores; saving those rows back must not duplicate them.
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/products/save-data", map[string]any{
			"env_id":       "pd",
			"bucket_name":  "sdp-pd-raw",
			"product_name": "stock",
			"table_name":   "items",
			"user":         "maria",
			"rows": []map[string]any{
				{"id": 1, "name": "foo", "year": "2024", "month": "12", "day": "31"},
			},
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		key := "stock/items/year=2025/month=03/day=07/data.parquet"
		data, ok := deps.store.content[key]
		require.True(t, ok)

		tbl, err := tabular.Decode(data, "data.parquet")
		require.NoError(t, err)
		require.Equal(t, []string{"id", "name", "year", "month", "day"}, tbl.Columns)

		// The save date wins over whatever the rows carried.
		require.Len(t, tbl.Rows, 1)
		require.Equal(t, "2025", tbl.Rows[0][tbl.ColumnIndex("year")].Str)
		require.Equal(t, "03", tbl.Rows[0][tbl.ColumnIndex("month")].Str)
		require.Equal(t, "07", tbl.Rows[0][tbl.ColumnIndex("day")].Str)
	})
}

func TestServer_InitiateResumableUpload(t *testing.T) {
	t.Parallel()

	t.Run("requires an origin", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/initiate-resumable-upload", map[string]any{
			"env_id":      "pd",
			"bucket_name": "sdp-pd-raw",
			"destination": "stock/items",
			"fileName":    "big.csv",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("keeps the original filename in the final path", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)

		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{
			"env_id":      "pd",
			"bucket_name": "sdp-pd-raw",
			"destination": "stock/items",
			"fileName":    "big.csv",
		}))
		req := httptest.NewRequest(http.MethodPost, "/api/initiate-resumable-upload", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", "https://portal.example.com")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		require.Equal(t, "stock/items/year=2025/month=03/day=07/big.csv", body["finalPath"])
		require.True(t, strings.HasPrefix(body["sessionUrl"].(string), "https://upload.example.com/session/"))
	})
}

func TestServer_WarehouseLoad(t *testing.T) {
	t.Parallel()
	s, deps := newTestServer(t, func(_ *Config, deps *testDeps) {
		deps.warehouse.loadRows = 42
		deps.store.objects = []objstore.ObjectInfo{
			{Name: "stock/items/year=2025/month=03/day=06/data.parquet", CreatedAt: time.Date(2025, 3, 6, 9, 0, 0, 0, time.UTC)},
			{Name: "stock/items/year=2025/month=03/day=07/data.parquet", CreatedAt: time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)},
		}
	})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/warehouse/load", map[string]any{
		"env_id":      "pd",
		"bucket_name": "sdp-pd-raw",
		"destination": "stock/items",
		"user":        "maria",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, float64(42), body["rows_loaded"])
	require.Equal(t, "proj-main.sdp_stock.tbl_items", body["target"])

	require.Len(t, deps.warehouse.loaded, 1)
	require.Contains(t, deps.warehouse.loaded[0], "s3://sdp-pd-raw/stock/items/year=2025/month=03/day=07/data.parquet")
}

func TestServer_RunProductPipeline(t *testing.T) {
	t.Parallel()

	t.Run("triggers the product repository", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, nil)

		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/pipeline/run-product", map[string]any{
			"product_name": "Stock-de-Items",
			"project_id":   "proj-main",
			"user":         "maria",
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, []string{"df-stock-items"}, deps.trigger.repos)

		body := decodeBody(t, rec)
		details := body["details"].(map[string]any)
		require.Equal(t, "inv-comp-1", details["invocation_id"])
	})

	t.Run("unavailable without an orchestrator", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, func(cfg *Config, _ *testDeps) {
			cfg.Pipeline = nil
		})

		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/pipeline/run-product", map[string]any{
			"product_name": "stock",
			"project_id":   "proj-main",
		})
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestServer_Logs(t *testing.T) {
	t.Parallel()
	s, deps := newTestServer(t, nil)

	deps.audit.entries = []audit.Entry{
		{User: "maria", Product: "stock", Message: "file uploaded successfully"},
		{User: "pedro", Product: "ventas", Message: "file upload failed"},
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/logs/user/maria", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	logs := body["logs"].([]any)
	require.Len(t, logs, 1)
	require.Equal(t, "maria", logs[0].(map[string]any)["user"])

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/logs/product/ventas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	require.Len(t, body["logs"], 1)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/logs/user/maria?limit=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestServer_ErrorReporting swaps the package-level capture hook, so it must
// not run in parallel with other tests.
func TestServer_ErrorReporting(t *testing.T) {
	var captured []string
	orig := captureServerError
	captureServerError = func(message string) { captured = append(captured, message) }
	defer func() { captureServerError = orig }()

	s, _ := newTestServer(t, func(_ *Config, deps *testDeps) {
		deps.warehouse.loadErr = errors.New("cluster unreachable")
		deps.store.objects = []objstore.ObjectInfo{
			{Name: "stock/items/year=2025/month=03/day=07/data.parquet", CreatedAt: time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)},
		}
	})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/warehouse/load", map[string]any{
		"env_id":      "pd",
		"bucket_name": "sdp-pd-raw",
		"destination": "stock/items",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, captured, 1)
	require.Contains(t, captured[0], "cluster unreachable")

	// Client errors are not reported.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, captured, 1)
}

func TestServer_ProductSubresources(t *testing.T) {
	t.Parallel()

	t.Run("latest dataset", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, nil)
		deps.store.objects = []objstore.ObjectInfo{
			{Name: "stock/items/year=2025/month=03/day=07/data.parquet", CreatedAt: time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)},
		}

		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/products/stock/items/latest-dataset?env_id=pd&bucket_name=sdp-pd-raw", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "data.parquet", body["latest_dataset"])
	})

	t.Run("latest dataset with an empty product", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, nil)

		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/products/stock/items/latest-dataset?env_id=pd&bucket_name=sdp-pd-raw", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Nil(t, body["latest_dataset"])
	})

	t.Run("preview latest decodes the newest object", func(t *testing.T) {
		t.Parallel()
		s, deps := newTestServer(t, nil)
		key := "stock/items/year=2025/month=03/day=07/datos.csv"
		deps.store.objects = []objstore.ObjectInfo{
			{Name: key, CreatedAt: time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)},
		}
		deps.store.content[key] = []byte("id,name\n1,foo\n")

		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/products/stock/items/preview-latest?env_id=pd&bucket_name=sdp-pd-raw", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, true, body["exists"])
		require.Equal(t, "datos.csv", body["file_name"])
		require.Equal(t, float64(1), body["total_records"])
	})
}
