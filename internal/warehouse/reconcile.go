package warehouse

import (
	"fmt"
	"sort"

	"github.com/sdplabs/ingest/internal/tabular"
)

// partitionColumns are system-injected at write time and never part of the
// user's file, so they are excluded from reconciliation on both sides.
var partitionColumns = map[string]struct{}{
	"year":  {},
	"month": {},
	"day":   {},
}

// ReconcileResult splits schema mismatches into blocking errors and advisory
// warnings. Blocking errors must prevent the write; warnings never do.
type ReconcileResult struct {
	Errors   []string
	Warnings []string
}

// Blocking reports whether the result must stop the upload.
func (r ReconcileResult) Blocking() bool { return len(r.Errors) > 0 }

// Reconcile compares the decoded table against the declared schema. Both
// sides are compared through normalized column names, so casing and
// diacritics never cause spurious mismatches. A nil schema degrades to a
// single warning: validation being impossible must not hard-fail the upload.
//
// Output order is stable for a given input: schema-side findings sorted by
// column name first, then table-side extras sorted, then null violations.
func Reconcile(tbl *tabular.Table, schema TableSchema) ReconcileResult {
	if schema == nil {
		return ReconcileResult{
			Warnings: []string{"could not fetch the target table schema; structural validation was skipped"},
		}
	}

	// Normalized table column name back to its position in the table.
	tableCols := make(map[string]string, len(tbl.Columns))
	for _, c := range tbl.Columns {
		norm := tabular.NormalizeColumn(c)
		if _, partition := partitionColumns[norm]; partition {
			continue
		}
		tableCols[norm] = c
	}

	schemaCols := make(map[string]Column, len(schema))
	for name, col := range schema {
		norm := tabular.NormalizeColumn(name)
		if _, partition := partitionColumns[norm]; partition {
			continue
		}
		schemaCols[norm] = col
	}

	var result ReconcileResult

	for _, name := range sortedKeys(schemaCols) {
		if _, ok := tableCols[name]; ok {
			continue
		}
		if schemaCols[name].Mode == ModeRequired {
			result.Errors = append(result.Errors,
				fmt.Sprintf("required column %q is missing from the file", name))
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("column %q exists in the target table but not in the file; it will be null-filled", name))
		}
	}

	for _, name := range sortedKeys(tableCols) {
		if _, ok := schemaCols[name]; ok {
			continue
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("file carries extra column %q not present in the target table", name))
	}

	for _, name := range sortedKeys(schemaCols) {
		original, ok := tableCols[name]
		if !ok || schemaCols[name].Mode != ModeRequired {
			continue
		}
		if n := tbl.NullCount(original); n > 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("column %q does not accept nulls but the file has %d empty records", name, n))
		}
	}

	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
