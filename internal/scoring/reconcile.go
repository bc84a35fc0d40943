// Package scoring aligns uploads to the model schema, scores them, and
// assigns risk tiers.
package scoring

import (
	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/model"
	"github.com/opensource-finance/fraudscope/internal/table"
)

// MissingFill is the value inserted for schema columns absent from an upload.
const MissingFill = "0"

// FeatureView is a schema-ordered projection of a table. Columns outside
// the schema stay in the table but are not visible through the view.
type FeatureView struct {
	Columns []string

	// Missing lists the schema columns that were zero-filled.
	Missing []string

	table   *table.Table
	indices []int
}

// Table returns the underlying table, including non-feature columns.
func (v *FeatureView) Table() *table.Table {
	return v.table
}

// Len returns the number of rows.
func (v *FeatureView) Len() int {
	return v.table.Len()
}

// Cell returns feature j of row i.
func (v *FeatureView) Cell(i, j int) string {
	return v.table.Rows[i][v.indices[j]]
}

// Reconcile inserts zero-filled columns for every schema feature missing from
// t, appending them to the table, and returns the feature view in schema order.
func Reconcile(t *table.Table, schema model.Schema) (*FeatureView, error) {
	if t == nil {
		return nil, &domain.SchemaError{Reason: "no table to reconcile", Expected: schema}
	}
	if len(schema) == 0 {
		return nil, &domain.SchemaError{Reason: "empty feature schema", Actual: t.Columns}
	}

	v := &FeatureView{
		Columns: append([]string(nil), schema...),
		table:   t,
		indices: make([]int, len(schema)),
	}
	for j, name := range schema {
		if !t.HasColumn(name) {
			t.AddColumn(name, MissingFill)
			v.Missing = append(v.Missing, name)
		}
		v.indices[j] = t.ColumnIndex(name)
	}
	return v, nil
}
