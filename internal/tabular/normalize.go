package tabular

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeColumn folds a column name to a warehouse-safe ASCII slug:
// the enie digraph substitution, NFKD diacritic stripping, non-ASCII removal,
// then trim, lower-case and interior spaces to underscores. Idempotent.
func NormalizeColumn(s string) string {
	s = foldASCII(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

// NormalizeCell folds a cell value the same way as NormalizeColumn but keeps
// case and interior spaces: cell data is user content, not an identifier.
func NormalizeCell(s string) string {
	return strings.TrimSpace(foldASCII(s))
}

// foldASCII applies the n-tilde digraph substitution before Unicode
// decomposition; NFKD would otherwise collapse it to a bare "n" and lose the
// distinction warehouse column names rely on (anio vs ano).
func foldASCII(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsRune(s, 'ñ') {
		s = strings.ReplaceAll(s, "ñ", "ni")
	}
	if strings.ContainsRune(s, 'Ñ') {
		s = strings.ReplaceAll(s, "Ñ", "Ni")
	}
	s = norm.NFKD.String(s)
	return strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, s)
}
