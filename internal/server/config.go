package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sdplabs/ingest/internal/audit"
	"github.com/sdplabs/ingest/internal/environments"
	"github.com/sdplabs/ingest/internal/pipeline"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger            *slog.Logger
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	Registry *environments.Registry
	Clients  *ClientSet
	Audit    audit.Log

	// Pipeline may be nil when no workflow orchestrator is deployed; the
	// run-product endpoint then reports the feature unavailable.
	Pipeline pipeline.Trigger

	Clock clockwork.Clock

	// NormalizeCells folds cell values to ASCII during ingestion, not only
	// column names.
	NormalizeCells bool

	// CORSOrigins lists the allowed browser origins. Empty allows any.
	CORSOrigins []string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Registry == nil {
		return errors.New("environment registry is required")
	}
	if cfg.Clients == nil {
		return errors.New("client set is required")
	}
	if cfg.Audit == nil {
		return errors.New("audit log is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}
