package dataset

import (
	"fmt"
	"math"
)

// DefaultMaxCategories bounds the distinct values accepted in a
// categorical column. More distinct values than this usually means a
// free-text or identifier column was mislabelled as categorical.
const DefaultMaxCategories = 50

// ValidationError reports a dataset that does not match the declared
// schema. Row is 1-based over data rows; 0 means a structural problem
// (e.g. a missing column).
type ValidationError struct {
	Column string
	Row    int
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Column == "":
		return fmt.Sprintf("invalid dataset: %s", e.Reason)
	case e.Row > 0:
		return fmt.Sprintf("invalid dataset: column %q row %d: %s", e.Column, e.Row, e.Reason)
	default:
		return fmt.Sprintf("invalid dataset: column %q: %s", e.Column, e.Reason)
	}
}

// Validator checks a raw dataset against a schema. It is a pure check:
// no values are modified and missing cells are allowed (the feature
// pipeline imputes them later).
type Validator struct {
	MaxCategories int
}

// NewValidator returns a Validator. maxCategories <= 0 selects the default.
func NewValidator(maxCategories int) *Validator {
	if maxCategories <= 0 {
		maxCategories = DefaultMaxCategories
	}
	return &Validator{MaxCategories: maxCategories}
}

// Validate confirms every schema column is present and every present
// value parses for its declared type. Columns not named by the schema
// are ignored. Returns *ValidationError on the first violation.
func (v *Validator) Validate(ds *Dataset, s Schema) error {
	cols := append(append([]Column{}, s.Features...), s.Target)

	for _, col := range cols {
		idx := ds.ColumnIndex(col.Name)
		if idx < 0 {
			return &ValidationError{Column: col.Name, Reason: "required column is missing"}
		}

		switch col.Type {
		case TypeCategorical:
			if err := v.checkCardinality(ds, col, idx); err != nil {
				return err
			}
		case TypeBoolean:
			for r, row := range ds.Rows {
				if IsMissing(row[idx]) {
					continue
				}
				if _, err := ParseBool(row[idx]); err != nil {
					return &ValidationError{Column: col.Name, Row: r + 1, Reason: fmt.Sprintf("%q is not a boolean", row[idx])}
				}
			}
		case TypeNumeric, TypeCount:
			for r, row := range ds.Rows {
				if IsMissing(row[idx]) {
					continue
				}
				n, err := ParseNumber(row[idx])
				if err != nil {
					return &ValidationError{Column: col.Name, Row: r + 1, Reason: fmt.Sprintf("%q is not a number", row[idx])}
				}
				if col.Type == TypeCount && n != math.Trunc(n) {
					return &ValidationError{Column: col.Name, Row: r + 1, Reason: fmt.Sprintf("%q is not a whole number", row[idx])}
				}
			}
		default:
			return &ValidationError{Column: col.Name, Reason: fmt.Sprintf("unknown column type %q", col.Type)}
		}
	}

	return nil
}

func (v *Validator) checkCardinality(ds *Dataset, col Column, idx int) error {
	distinct := make(map[string]struct{})
	for _, row := range ds.Rows {
		if IsMissing(row[idx]) {
			continue
		}
		distinct[row[idx]] = struct{}{}
		if len(distinct) > v.MaxCategories {
			return &ValidationError{
				Column: col.Name,
				Reason: fmt.Sprintf("more than %d distinct values; not a categorical column", v.MaxCategories),
			}
		}
	}
	return nil
}
