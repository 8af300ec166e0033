package dataset

import "time"

// ColumnType classifies how a declared column is parsed and encoded.
type ColumnType string

const (
	// TypeNumeric is a real-valued measurement (area, price).
	TypeNumeric ColumnType = "numeric"
	// TypeCount is a non-negative integer-valued column (bedrooms, floors).
	TypeCount ColumnType = "count"
	// TypeCategorical is a bounded-cardinality string column (location).
	TypeCategorical ColumnType = "categorical"
	// TypeBoolean is a yes/no flag column (parking).
	TypeBoolean ColumnType = "boolean"
)

// Column declares one expected dataset column. Min/Max, when non-nil,
// bound the accepted value range for numeric and count columns.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	Min  *float64   `json:"min,omitempty"`
	Max  *float64   `json:"max,omitempty"`
}

// Schema is the declared shape of an acceptable dataset: the feature
// columns in their canonical order plus the target column. A schema is
// pinned to a model version once training succeeds and never mutated.
type Schema struct {
	Features []Column `json:"features"`
	Target   Column   `json:"target"`
}

// Feature returns the declared feature column with the given name.
func (s Schema) Feature(name string) (Column, bool) {
	for _, c := range s.Features {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// FeatureNames returns the feature column names in schema order.
func (s Schema) FeatureNames() []string {
	names := make([]string, len(s.Features))
	for i, c := range s.Features {
		names[i] = c.Name
	}
	return names
}

func f(v float64) *float64 { return &v }

// HouseSchema is the declared schema for house price datasets.
func HouseSchema() Schema {
	maxYear := float64(time.Now().Year() + 1)
	return Schema{
		Features: []Column{
			{Name: "location", Type: TypeCategorical},
			{Name: "area", Type: TypeNumeric, Min: f(1)},
			{Name: "bedrooms", Type: TypeCount, Min: f(0), Max: f(50)},
			{Name: "bathrooms", Type: TypeCount, Min: f(0), Max: f(50)},
			{Name: "floors", Type: TypeCount, Min: f(1), Max: f(100)},
			{Name: "year_built", Type: TypeCount, Min: f(1800), Max: &maxYear},
			{Name: "parking", Type: TypeBoolean},
		},
		Target: Column{Name: "price", Type: TypeNumeric, Min: f(0)},
	}
}
