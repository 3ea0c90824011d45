package warehouse

import "context"

// LoadMode selects what happens to existing table content on load.
type LoadMode string

const (
	LoadTruncate LoadMode = "TRUNCATE"
	LoadAppend   LoadMode = "APPEND"
)

// Client is the warehouse surface the gateway needs: schema introspection for
// validation and bulk loads of landed columnar files.
type Client interface {
	// GetSchema returns the declared schema of the target table, or nil when
	// the table does not exist or cannot be read. A nil schema is not an
	// error; callers degrade to a warning.
	GetSchema(ctx context.Context, target Target) (TableSchema, error)

	// LoadColumnarFile loads a Parquet object from storage into the target
	// table and returns the number of rows loaded.
	LoadColumnarFile(ctx context.Context, target Target, storageURI string, mode LoadMode) (uint64, error)
}
