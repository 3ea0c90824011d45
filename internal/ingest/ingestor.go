package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/sdplabs/ingest/internal/audit"
	"github.com/sdplabs/ingest/internal/metrics"
	"github.com/sdplabs/ingest/internal/objstore"
	"github.com/sdplabs/ingest/internal/tabular"
	"github.com/sdplabs/ingest/internal/warehouse"
)

// ValidationError carries the blocking findings that stopped an upload. The
// file was decoded but failed schema reconciliation; nothing was written.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed with %d blocking errors", len(e.Errors))
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Logger    *slog.Logger
	Store     objstore.Store
	Warehouse warehouse.Client
	Audit     audit.Log
	Clock     clockwork.Clock

	// NormalizeCells also folds cell values to ASCII, not only column names.
	// Source systems disagree on whether data should be touched, so this is
	// deployment configuration.
	NormalizeCells bool
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Store == nil {
		return fmt.Errorf("object store is required")
	}
	if c.Warehouse == nil {
		return fmt.Errorf("warehouse client is required")
	}
	if c.Audit == nil {
		return fmt.Errorf("audit log is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Request is one file to ingest into a partitioned table path.
type Request struct {
	Data     []byte
	Filename string

	EnvID       string
	ProjectID   string
	Bucket      string
	Destination string // logical table path, e.g. "sap/stxh"
	User        string

	// Validate runs schema reconciliation before writing; blocking findings
	// abort the upload.
	Validate bool
}

// Result reports where the file landed and any non-blocking findings.
type Result struct {
	ObjectPath string
	Warnings   []string
	Rows       int
	Columns    int
}

// Ingestor sequences decode, normalize, reconcile, re-encode and upload, and
// records exactly one audit entry per attempt.
type Ingestor struct {
	cfg *Config
}

func NewIngestor(cfg *Config) (*Ingestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Ingestor{cfg: cfg}, nil
}

// Ingest runs the full pipeline for one request. On any failure it appends a
// single error-severity audit entry and returns the failure; on success it
// appends a single info-severity entry carrying the landed object path.
func (i *Ingestor) Ingest(ctx context.Context, req Request) (*Result, error) {
	result, err := i.run(ctx, req)
	if err != nil {
		i.appendAudit(ctx, req, "", audit.SeverityError, "file upload failed", err)
		return nil, err
	}
	i.appendAudit(ctx, req, result.ObjectPath, audit.SeverityInfo, "file uploaded successfully", nil)
	return result, nil
}

func (i *Ingestor) run(ctx context.Context, req Request) (*Result, error) {
	if req.Destination == "" {
		return nil, fmt.Errorf("destination is required")
	}

	start := i.cfg.Clock.Now()
	tbl, err := tabular.Decode(req.Data, req.Filename)
	metrics.RecordDecode(fileExt(req.Filename), i.cfg.Clock.Since(start), err)
	if err != nil {
		return nil, err
	}

	tbl.NormalizeColumns()
	if i.cfg.NormalizeCells {
		tbl.NormalizeCells()
	}

	var warnings []string
	if req.Validate {
		result := i.reconcile(ctx, req, tbl)
		warnings = result.Warnings
		if result.Blocking() {
			return nil, &ValidationError{Errors: result.Errors, Warnings: result.Warnings}
		}
	}

	tempPath, err := tabular.WriteParquetTemp(tbl, req.Filename)
	if err != nil {
		return nil, fmt.Errorf("re-encoding %s: %w", req.Filename, err)
	}
	defer os.Remove(tempPath)

	objectPath := objstore.PartitionPath(req.Destination, i.cfg.Clock.Now().UTC(), objstore.DefaultDataFileName)
	if err := i.cfg.Store.WriteFile(ctx, req.Bucket, objectPath, tempPath); err != nil {
		return nil, fmt.Errorf("uploading to %s/%s: %w", req.Bucket, objectPath, err)
	}

	i.cfg.Logger.Info("file ingested",
		"user", req.User,
		"bucket", req.Bucket,
		"object_path", objectPath,
		"rows", len(tbl.Rows),
		"columns", len(tbl.Columns),
	)

	return &Result{
		ObjectPath: objectPath,
		Warnings:   warnings,
		Rows:       len(tbl.Rows),
		Columns:    len(tbl.Columns),
	}, nil
}

// reconcile fetches the target schema and compares. Any failure to even
// resolve or fetch the schema degrades to the unavailable-schema warning
// rather than blocking the upload.
func (i *Ingestor) reconcile(ctx context.Context, req Request, tbl *tabular.Table) warehouse.ReconcileResult {
	product, dataset := splitDestination(req.Destination)
	if dataset == "" {
		return warehouse.Reconcile(tbl, nil)
	}

	target, err := warehouse.ResolveTarget(req.EnvID, req.ProjectID, req.Bucket, product, dataset)
	if err != nil {
		i.cfg.Logger.Warn("could not resolve warehouse target", "destination", req.Destination, "error", err)
		return warehouse.Reconcile(tbl, nil)
	}

	start := i.cfg.Clock.Now()
	schema, err := i.cfg.Warehouse.GetSchema(ctx, target)
	metrics.RecordWarehouseQuery("get_schema", i.cfg.Clock.Since(start), err)
	if err != nil {
		i.cfg.Logger.Warn("could not fetch warehouse schema", "target", target.String(), "error", err)
		schema = nil
	}
	return warehouse.Reconcile(tbl, schema)
}

func (i *Ingestor) appendAudit(ctx context.Context, req Request, objectPath string, severity audit.Severity, message string, cause error) {
	product, dataset := splitDestination(req.Destination)
	entry := audit.Entry{
		Severity:   severity,
		Message:    message,
		User:       req.User,
		Product:    product,
		Dataset:    dataset,
		FileName:   req.Filename,
		Bucket:     req.Bucket,
		ObjectPath: objectPath,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := i.cfg.Audit.Append(ctx, entry); err != nil {
		// The upload already happened (or failed); losing the audit entry
		// must not change the response.
		i.cfg.Logger.Error("failed to append audit entry", "error", err)
	}
}

// splitDestination extracts the product and dataset from the first two
// segments of the logical path. Missing segments stay empty.
func splitDestination(destination string) (product, dataset string) {
	parts := strings.Split(strings.Trim(destination, "/"), "/")
	if len(parts) > 0 {
		product = parts[0]
	}
	if len(parts) > 1 {
		dataset = parts[1]
	}
	return product, dataset
}

func fileExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
