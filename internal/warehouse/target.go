package warehouse

import (
	"fmt"
	"regexp"
	"strings"
)

// identPattern is what ClickHouse accepts as an unquoted identifier. Dataset
// and table names are interpolated into DDL and load statements, so anything
// outside this set is rejected at resolution time.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Target is a fully-qualified warehouse table reference.
type Target struct {
	Project string
	Dataset string
	Table   string
}

func (t Target) String() string {
	return fmt.Sprintf("%s.%s.%s", t.Project, t.Dataset, t.Table)
}

// ResolveTarget maps storage-side names (bucket, product folder, table
// folder) to the warehouse naming convention of the environment. Storage uses
// hyphens where the warehouse requires underscores, so both folder names are
// rewritten first.
//
// The sap environment derives its dataset from the fourth underscore-separated
// bucket segment; pd datasets are named directly after the product folder.
func ResolveTarget(envID, projectID, bucket, product, table string) (Target, error) {
	product = strings.ReplaceAll(product, "-", "_")
	table = strings.ReplaceAll(table, "-", "_")

	var dataset string
	switch envID {
	case "sap":
		parts := strings.Split(bucket, "_")
		if len(parts) < 4 {
			return Target{}, fmt.Errorf("bucket %q does not follow the sap naming convention", bucket)
		}
		dataset = fmt.Sprintf("sdp_%s_ddo", parts[3])
	case "pd":
		dataset = fmt.Sprintf("sdp_%s", product)
	default:
		return Target{}, fmt.Errorf("no warehouse naming scheme for environment %q", envID)
	}

	tableName := fmt.Sprintf("tbl_%s", table)
	if !identPattern.MatchString(dataset) {
		return Target{}, fmt.Errorf("resolved dataset %q is not a valid identifier", dataset)
	}
	if !identPattern.MatchString(tableName) {
		return Target{}, fmt.Errorf("resolved table %q is not a valid identifier", tableName)
	}

	return Target{
		Project: projectID,
		Dataset: dataset,
		Table:   tableName,
	}, nil
}
