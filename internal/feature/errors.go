package feature

import "fmt"

// DataQualityError reports a dataset row that cannot be salvaged by
// imputation (e.g. a negative area or a missing target value).
// Row is 1-based over data rows.
type DataQualityError struct {
	Column string
	Row    int
	Reason string
}

func (e *DataQualityError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("bad data: column %q row %d: %s", e.Column, e.Row, e.Reason)
	}
	return fmt.Sprintf("bad data: column %q: %s", e.Column, e.Reason)
}

// SchemaMismatchError reports a prediction input that does not conform
// to the schema the active model was trained with.
type SchemaMismatchError struct {
	Field  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("input does not match model schema: field %q: %s", e.Field, e.Reason)
}
