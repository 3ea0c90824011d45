package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sdplabs/ingest/internal/audit"
	"github.com/sdplabs/ingest/internal/environments"
	"github.com/sdplabs/ingest/internal/ingest"
	"github.com/sdplabs/ingest/internal/metrics"
	"github.com/sdplabs/ingest/internal/objstore"
	"github.com/sdplabs/ingest/internal/pipeline"
	"github.com/sdplabs/ingest/internal/tabular"
	"github.com/sdplabs/ingest/internal/warehouse"
)

// maxUploadBytes bounds in-memory multipart parsing.
const maxUploadBytes = 256 << 20 // 256MB

func (s *Server) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Registry.Environments())
}

// resolveProject validates the (environment, bucket) pair and returns the
// owning project. Unknown environments are a client error; buckets outside
// the environment are forbidden.
func (s *Server) resolveProject(w http.ResponseWriter, envID, bucket string) (string, bool) {
	if envID == "" || bucket == "" {
		s.writeError(w, http.StatusBadRequest, "env_id and bucket_name are required")
		return "", false
	}
	projectID, err := s.cfg.Registry.ProjectForBucket(envID, bucket)
	if err != nil {
		switch {
		case errors.Is(err, environments.ErrUnknownEnvironment):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, environments.ErrBucketNotAllowed):
			s.writeError(w, http.StatusForbidden, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return "", false
	}
	return projectID, true
}

func (s *Server) storeFor(w http.ResponseWriter, projectID string) (objstore.Store, bool) {
	store, err := s.cfg.Clients.Store(projectID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return store, true
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	envID := r.URL.Query().Get("env_id")
	bucket := r.URL.Query().Get("bucket_name")
	projectID, ok := s.resolveProject(w, envID, bucket)
	if !ok {
		return
	}
	store, ok := s.storeFor(w, projectID)
	if !ok {
		return
	}

	products, err := store.ListPrefixes(r.Context(), bucket, "")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing products: %v", err))
		return
	}
	if products == nil {
		products = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data_products": products})
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folderPath := chi.URLParam(r, "*")
	envID := r.URL.Query().Get("env_id")
	bucket := r.URL.Query().Get("bucket_name")
	projectID, ok := s.resolveProject(w, envID, bucket)
	if !ok {
		return
	}
	store, ok := s.storeFor(w, projectID)
	if !ok {
		return
	}

	tables, err := store.ListPrefixes(r.Context(), bucket, folderPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing folders under %q: %v", folderPath, err))
		return
	}
	if tables == nil {
		tables = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// handleProductSubresource dispatches the path-suffixed product reads, since
// product paths themselves contain slashes.
func (s *Server) handleProductSubresource(w http.ResponseWriter, r *http.Request) {
	wild := chi.URLParam(r, "*")
	switch {
	case strings.HasSuffix(wild, "/latest-dataset"):
		s.handleLatestDataset(w, r, strings.TrimSuffix(wild, "/latest-dataset"))
	case strings.HasSuffix(wild, "/preview-latest"):
		s.handlePreviewLatest(w, r, strings.TrimSuffix(wild, "/preview-latest"))
	default:
		s.writeError(w, http.StatusNotFound, "unknown product resource")
	}
}

func (s *Server) handleLatestDataset(w http.ResponseWriter, r *http.Request, productPath string) {
	envID := r.URL.Query().Get("env_id")
	bucket := r.URL.Query().Get("bucket_name")
	projectID, ok := s.resolveProject(w, envID, bucket)
	if !ok {
		return
	}
	store, ok := s.storeFor(w, projectID)
	if !ok {
		return
	}

	objects, err := store.ListObjects(r.Context(), bucket, productPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing %q: %v", productPath, err))
		return
	}

	latest, found := objstore.LatestObject(objects)
	if !found {
		s.writeJSON(w, http.StatusOK, map[string]any{"latest_dataset": nil})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"latest_dataset": path.Base(latest.Name)})
}

func (s *Server) handlePreviewLatest(w http.ResponseWriter, r *http.Request, productPath string) {
	envID := r.URL.Query().Get("env_id")
	bucket := r.URL.Query().Get("bucket_name")
	projectID, ok := s.resolveProject(w, envID, bucket)
	if !ok {
		return
	}
	store, ok := s.storeFor(w, projectID)
	if !ok {
		return
	}

	objects, err := store.ListObjects(r.Context(), bucket, productPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing %q: %v", productPath, err))
		return
	}
	latest, found := objstore.LatestObject(objects)
	if !found {
		s.writeJSON(w, http.StatusOK, map[string]any{"exists": false, "message": "no files found"})
		return
	}

	data, err := store.ReadBytes(r.Context(), bucket, latest.Name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("reading %q: %v", latest.Name, err))
		return
	}

	filename := path.Base(latest.Name)
	start := s.cfg.Clock.Now()
	tbl, err := tabular.Decode(data, filename)
	metrics.RecordDecode(fileExt(filename), s.cfg.Clock.Since(start), err)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"exists":    true,
			"file_name": filename,
			"error":     "file format could not be read",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"exists":        true,
		"file_name":     filename,
		"columns":       tbl.Columns,
		"rows":          rowsAsJSON(tbl),
		"total_records": len(tbl.Rows),
	})
}

type saveDataRequest struct {
	EnvID       string           `json:"env_id"`
	BucketName  string           `json:"bucket_name"`
	ProductName string           `json:"product_name"`
	TableName   string           `json:"table_name"`
	Rows        []map[string]any `json:"rows"`
	User        string           `json:"user"`
}

func (s *Server) handleSaveData(w http.ResponseWriter, r *http.Request) {
	var req saveDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.ProductName == "" || req.TableName == "" || req.Rows == nil {
		s.writeError(w, http.StatusBadRequest, "product_name, table_name and rows are required")
		return
	}
	projectID, ok := s.resolveProject(w, req.EnvID, req.BucketName)
	if !ok {
		return
	}
	store, ok := s.storeFor(w, projectID)
	if !ok {
		return
	}
	if req.User == "" {
		req.User = "anonymous"
	}

	productPath := req.ProductName + "/" + req.TableName
	now := s.cfg.Clock.Now().UTC()

	tbl := tableFromRows(req.Rows)
	// The written file physically carries its partition values.
	tbl.AddConstantColumn("year", fmt.Sprintf("%04d", now.Year()))
	tbl.AddConstantColumn("month", fmt.Sprintf("%02d", int(now.Month())))
	tbl.AddConstantColumn("day", fmt.Sprintf("%02d", now.Day()))

	entry := audit.Entry{
		User:     req.User,
		Product:  req.ProductName,
		Dataset:  req.TableName,
		Bucket:   req.BucketName,
		FileName: objstore.DefaultDataFileName,
	}

	tempPath, err := tabular.WriteParquetTemp(tbl, objstore.DefaultDataFileName)
	if err != nil {
		s.appendAudit(r, entry, audit.SeverityError, "manual dataset update failed", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("encoding dataset: %v", err))
		return
	}
	defer os.Remove(tempPath)

	objectPath := objstore.PartitionPath(productPath, now, objstore.DefaultDataFileName)
	if err := store.WriteFile(r.Context(), req.BucketName, objectPath, tempPath); err != nil {
		s.appendAudit(r, entry, audit.SeverityError, "manual dataset update failed", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("uploading dataset: %v", err))
		return
	}

	entry.ObjectPath = objectPath
	s.appendAudit(r, entry, audit.SeverityInfo, "full dataset updated manually", nil)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "dataset updated",
		"path":    objectPath,
	})
}

type resumableUploadRequest struct {
	EnvID       string `json:"env_id"`
	BucketName  string `json:"bucket_name"`
	Destination string `json:"destination"`
	FileName    string `json:"fileName"`
}

func (s *Server) handleInitiateResumableUpload(w http.ResponseWriter, r *http.Request) {
	var req resumableUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Destination == "" || req.FileName == "" {
		s.writeError(w, http.StatusBadRequest, "destination and fileName are required")
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		s.writeError(w, http.StatusBadRequest, "Origin header is required")
		return
	}
	projectID, ok := s.resolveProject(w, req.EnvID, req.BucketName)
	if !ok {
		return
	}
	store, ok := s.storeFor(w, projectID)
	if !ok {
		return
	}

	// Session objects keep the original filename under the date partition.
	finalPath := objstore.PartitionPath(req.Destination, s.cfg.Clock.Now().UTC(), req.FileName)

	product, dataset := splitLogicalPath(req.Destination)
	entry := audit.Entry{
		User:       "anonymous",
		Product:    product,
		Dataset:    dataset,
		Bucket:     req.BucketName,
		FileName:   req.FileName,
		ObjectPath: finalPath,
	}

	sessionURL, err := store.CreateUploadSession(r.Context(), req.BucketName, finalPath, origin)
	if err != nil {
		s.appendAudit(r, entry, audit.SeverityError, "failed to initiate resumable upload session", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("initiating upload session: %v", err))
		return
	}

	s.appendAudit(r, entry, audit.SeverityInfo, "resumable upload session initiated", nil)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessionUrl": sessionURL,
		"finalPath":  finalPath,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := s.readUploadedFile(w, r)
	if !ok {
		return
	}

	step := r.FormValue("step")
	if step == "" {
		step = "1"
	}

	switch step {
	case "1":
		now := s.cfg.Clock.Now()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"file_name":   filename,
			"size":        fmt.Sprintf("%.2f MB", float64(len(data))/(1<<20)),
			"file_type":   strings.ToUpper(fileExt(filename)),
			"upload_date": now.Format("02-01-2006"),
			"upload_time": now.Format("15:04"),
		})

	case "2":
		tbl, ok := s.decodeForAnalysis(w, data, filename)
		if !ok {
			return
		}
		columns := make([]map[string]string, len(tbl.Columns))
		for i, c := range tbl.Columns {
			// Cells are deliberately untyped text; type inference happens in
			// the warehouse, not here.
			columns[i] = map[string]string{"name": c, "type": "Text"}
		}
		preview := rowsAsJSON(tbl)
		if len(preview) > 5 {
			preview = preview[:5]
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"column_count": len(tbl.Columns),
			"record_count": len(tbl.Rows),
			"columns":      columns,
			"preview":      preview,
		})

	case "3":
		tbl, ok := s.decodeForAnalysis(w, data, filename)
		if !ok {
			return
		}
		s.analyzeAgainstWarehouse(w, r, tbl)

	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown step: %q", step))
	}
}

func (s *Server) analyzeAgainstWarehouse(w http.ResponseWriter, r *http.Request, tbl *tabular.Table) {
	envID := r.FormValue("env_id")
	bucket := r.FormValue("bucket_name")
	destination := r.FormValue("destination")
	if envID == "" || bucket == "" || destination == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"errors":   []string{},
			"warnings": []string{"validation skipped: env_id, bucket_name and destination are required"},
		})
		return
	}

	projectID, ok := s.resolveProject(w, envID, bucket)
	if !ok {
		return
	}

	product, dataset := splitLogicalPath(destination)
	target, err := warehouse.ResolveTarget(envID, projectID, bucket, product, dataset)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"errors":   []string{},
			"warnings": []string{fmt.Sprintf("validation skipped: %v", err)},
		})
		return
	}

	wh, err := s.cfg.Clients.Warehouse(projectID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	start := s.cfg.Clock.Now()
	schema, err := wh.GetSchema(r.Context(), target)
	metrics.RecordWarehouseQuery("get_schema", s.cfg.Clock.Since(start), err)
	if err != nil {
		s.log.Warn("schema fetch failed during analysis", "target", target.String(), "error", err)
		schema = nil
	}

	result := warehouse.Reconcile(tbl, schema)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"validated_against": target.String(),
		"errors":            emptyIfNil(result.Errors),
		"warnings":          emptyIfNil(result.Warnings),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := s.readUploadedFile(w, r)
	if !ok {
		return
	}

	envID := r.FormValue("env_id")
	bucket := r.FormValue("bucket_name")
	destination := r.FormValue("destination")
	if destination == "" {
		s.writeError(w, http.StatusBadRequest, "env_id, bucket_name and destination are required")
		return
	}
	user := r.FormValue("user")
	if user == "" {
		user = "anonymous"
	}
	validate := r.FormValue("validate") != "false"

	projectID, ok := s.resolveProject(w, envID, bucket)
	if !ok {
		return
	}
	store, ok := s.storeFor(w, projectID)
	if !ok {
		return
	}
	wh, err := s.cfg.Clients.Warehouse(projectID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ingestor, err := ingest.NewIngestor(&ingest.Config{
		Logger:         s.log,
		Store:          store,
		Warehouse:      wh,
		Audit:          s.cfg.Audit,
		Clock:          s.cfg.Clock,
		NormalizeCells: s.cfg.NormalizeCells,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := ingestor.Ingest(r.Context(), ingest.Request{
		Data:        data,
		Filename:    filename,
		EnvID:       envID,
		ProjectID:   projectID,
		Bucket:      bucket,
		Destination: destination,
		User:        user,
		Validate:    validate,
	})
	metrics.RecordUpload(envID, len(data), err)
	if err != nil {
		var verr *ingest.ValidationError
		switch {
		case errors.As(err, &verr):
			s.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":    "schema validation failed",
				"errors":   emptyIfNil(verr.Errors),
				"warnings": emptyIfNil(verr.Warnings),
			})
		case errors.Is(err, tabular.ErrUnsupportedFormat), errors.Is(err, tabular.ErrDecode):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("File %s uploaded to %s", result.ObjectPath, bucket),
		"object_path": result.ObjectPath,
		"warnings":    emptyIfNil(result.Warnings),
		"rows":        result.Rows,
	})
}

type warehouseLoadRequest struct {
	EnvID       string `json:"env_id"`
	BucketName  string `json:"bucket_name"`
	Destination string `json:"destination"`
	Mode        string `json:"mode"`
	User        string `json:"user"`
}

func (s *Server) handleWarehouseLoad(w http.ResponseWriter, r *http.Request) {
	var req warehouseLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Destination == "" {
		s.writeError(w, http.StatusBadRequest, "destination is required")
		return
	}
	mode := warehouse.LoadMode(strings.ToUpper(req.Mode))
	if mode == "" {
		mode = warehouse.LoadTruncate
	}
	if mode != warehouse.LoadTruncate && mode != warehouse.LoadAppend {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q", req.Mode))
		return
	}
	if req.User == "" {
		req.User = "anonymous"
	}

	projectID, ok := s.resolveProject(w, req.EnvID, req.BucketName)
	if !ok {
		return
	}
	store, ok := s.storeFor(w, projectID)
	if !ok {
		return
	}
	wh, err := s.cfg.Clients.Warehouse(projectID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	product, dataset := splitLogicalPath(req.Destination)
	target, err := warehouse.ResolveTarget(req.EnvID, projectID, req.BucketName, product, dataset)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	objects, err := store.ListObjects(r.Context(), req.BucketName, req.Destination)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing %q: %v", req.Destination, err))
		return
	}
	latest, found := objstore.LatestObject(objects)
	if !found {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no objects found under %q", req.Destination))
		return
	}
	if !strings.HasSuffix(latest.Name, ".parquet") {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("latest object %q is not a parquet file", latest.Name))
		return
	}

	entry := audit.Entry{
		User:       req.User,
		Product:    product,
		Dataset:    dataset,
		Bucket:     req.BucketName,
		FileName:   path.Base(latest.Name),
		ObjectPath: latest.Name,
	}

	uri := fmt.Sprintf("s3://%s/%s", req.BucketName, latest.Name)
	start := s.cfg.Clock.Now()
	rows, err := wh.LoadColumnarFile(r.Context(), target, uri, mode)
	metrics.RecordWarehouseQuery("load", s.cfg.Clock.Since(start), err)
	if err != nil {
		s.appendAudit(r, entry, audit.SeverityError, "warehouse load failed", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("loading into %s: %v", target, err))
		return
	}

	s.appendAudit(r, entry, audit.SeverityInfo, "warehouse load completed", nil)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"target":      target.String(),
		"rows_loaded": rows,
	})
}

type runProductRequest struct {
	ProductName string `json:"product_name"`
	ProjectID   string `json:"project_id"`
	User        string `json:"user"`
}

func (s *Server) handleRunProductPipeline(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pipeline == nil {
		s.writeError(w, http.StatusServiceUnavailable, "workflow orchestrator is not configured")
		return
	}

	var req runProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.ProductName == "" {
		s.writeError(w, http.StatusBadRequest, "product_name is required")
		return
	}
	if req.ProjectID == "" {
		s.writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.User == "" {
		req.User = "anonymous"
	}

	repo := pipeline.ResolveRepository(req.ProductName)
	entry := audit.Entry{
		User:    req.User,
		Product: req.ProductName,
	}

	inv, err := pipeline.RunAll(r.Context(), s.cfg.Pipeline, repo, pipeline.DefaultWorkspace)
	metrics.RecordPipelineRun(err)
	if err != nil {
		s.appendAudit(r, entry, audit.SeverityError, "pipeline trigger failed", err)
		captureServerError(fmt.Sprintf("pipeline trigger failed: %v", err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("running pipeline: %v", err),
		})
		return
	}

	s.appendAudit(r, entry, audit.SeverityInfo, "pipeline triggered", nil)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Run started for %q (repo %s)", req.ProductName, repo),
		"details": map[string]any{
			"invocation_id": inv.ID,
			"state":         inv.State,
			"repo":          repo,
			"workspace":     pipeline.DefaultWorkspace,
		},
	})
}

func (s *Server) handleLogsByUser(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	s.queryLogs(w, r, audit.Filter{User: user}, 5)
}

func (s *Server) handleLogsByProduct(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	s.queryLogs(w, r, audit.Filter{Product: product}, 50)
}

func (s *Server) queryLogs(w http.ResponseWriter, r *http.Request, filter audit.Filter, defaultLimit int) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.cfg.Audit.Query(r.Context(), filter, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("querying logs: %v", err))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

// readUploadedFile pulls the multipart "file" part fully into memory.
func (s *Server) readUploadedFile(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "could not parse multipart form")
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "no file provided")
		return nil, "", false
	}
	defer file.Close()

	if header.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "uploaded file has no name")
		return nil, "", false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not read uploaded file")
		return nil, "", false
	}
	return data, header.Filename, true
}

func (s *Server) decodeForAnalysis(w http.ResponseWriter, data []byte, filename string) (*tabular.Table, bool) {
	start := s.cfg.Clock.Now()
	tbl, err := tabular.Decode(data, filename)
	metrics.RecordDecode(fileExt(filename), s.cfg.Clock.Since(start), err)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	tbl.NormalizeColumns()
	return tbl, true
}

func (s *Server) appendAudit(r *http.Request, entry audit.Entry, severity audit.Severity, message string, cause error) {
	entry.Severity = severity
	entry.Message = message
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := s.cfg.Audit.Append(r.Context(), entry); err != nil {
		s.log.Error("failed to append audit entry", "error", err)
	}
}

// rowsAsJSON renders a table as a list of column-keyed objects, with explicit
// nulls preserved.
func rowsAsJSON(tbl *tabular.Table) []map[string]any {
	rows := make([]map[string]any, len(tbl.Rows))
	for i, row := range tbl.Rows {
		obj := make(map[string]any, len(tbl.Columns))
		for j, col := range tbl.Columns {
			if j >= len(row) || row[j].Null {
				obj[col] = nil
				continue
			}
			obj[col] = row[j].Str
		}
		rows[i] = obj
	}
	return rows
}

// tableFromRows rebuilds a table from column-keyed JSON rows. Column order is
// the sorted union of keys so repeated saves are deterministic. Rows read
// back from a landed file carry the partition columns the file stores; those
// keys are dropped so the injected constants stay the only copy.
func tableFromRows(rows []map[string]any) *tabular.Table {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			if isPartitionKey(k) {
				continue
			}
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	tbl := &tabular.Table{Columns: columns}
	for _, row := range rows {
		rec := make([]tabular.Value, len(columns))
		for j, col := range columns {
			v, ok := row[col]
			if !ok || v == nil {
				rec[j] = tabular.NullValue()
				continue
			}
			rec[j] = tabular.String(jsonValueString(v))
		}
		tbl.Rows = append(tbl.Rows, rec)
	}
	return tbl
}

func jsonValueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func isPartitionKey(k string) bool {
	switch strings.ToLower(k) {
	case "year", "month", "day":
		return true
	}
	return false
}

func splitLogicalPath(p string) (product, dataset string) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) > 0 {
		product = parts[0]
	}
	if len(parts) > 1 {
		dataset = parts[1]
	}
	return product, dataset
}

func fileExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
