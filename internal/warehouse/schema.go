package warehouse

// Mode is a column's nullability as declared by the warehouse.
type Mode string

const (
	ModeRequired Mode = "REQUIRED"
	ModeNullable Mode = "NULLABLE"
)

// Column is one declared column of a warehouse table. Type is opaque to
// validation; only Mode drives blocking decisions.
type Column struct {
	Name string
	Type string
	Mode Mode
}

// TableSchema maps a column name, as declared by the warehouse, to its
// declaration; Reconcile normalizes names on both sides before comparing.
// A nil schema means the table could not be found or read.
type TableSchema map[string]Column
