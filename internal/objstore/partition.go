package objstore

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DefaultDataFileName is the fixed object name written under every date
// partition so downstream table readers always find the same file.
const DefaultDataFileName = "data.parquet"

// PartitionPath builds the Hive-style date-partitioned object key for a
// logical table path, e.g. sap/stxh -> sap/stxh/year=2025/month=03/day=07/data.parquet.
func PartitionPath(logicalPath string, now time.Time, filename string) string {
	logicalPath = strings.Trim(path.Clean(logicalPath), "/")
	return fmt.Sprintf("%s/year=%04d/month=%02d/day=%02d/%s",
		logicalPath, now.Year(), int(now.Month()), now.Day(), filename)
}
