// Package feature turns validated raw datasets into numeric feature
// matrices. The fitted pipeline (imputation statistics and categorical
// encodings) is persisted alongside each model version so predictions
// re-apply exactly the transform the model was trained with.
package feature

import (
	"fmt"
	"sort"

	"github.com/mezhov/houser/internal/dataset"
)

// UnknownIndex is the encoded value for a category never seen during
// fitting. Known categories are assigned indices starting at 1.
const UnknownIndex = 0

// Encoding maps a categorical value to its fitted index.
type Encoding map[string]int

// Index returns the fitted index for category, or UnknownIndex.
func (e Encoding) Index(category string) int {
	if idx, ok := e[category]; ok {
		return idx
	}
	return UnknownIndex
}

// Pipeline is a fitted cleaning and encoding transform. All fields are
// exported for JSON persistence with the model version.
type Pipeline struct {
	Schema    dataset.Schema      `json:"schema"`
	Medians   map[string]float64  `json:"medians"`
	Modes     map[string]string   `json:"modes"`
	Encodings map[string]Encoding `json:"encodings"`
}

// Fit derives imputation statistics and categorical encodings from a
// validated dataset. Categories are indexed in first-occurrence order,
// starting at 1; 0 stays reserved for unknown values.
func Fit(ds *dataset.Dataset, s dataset.Schema) (*Pipeline, error) {
	p := &Pipeline{
		Schema:    s,
		Medians:   make(map[string]float64),
		Modes:     make(map[string]string),
		Encodings: make(map[string]Encoding),
	}

	for _, col := range s.Features {
		values, ok := ds.Column(col.Name)
		if !ok {
			return nil, &DataQualityError{Column: col.Name, Reason: "column not present in dataset"}
		}

		switch col.Type {
		case dataset.TypeNumeric, dataset.TypeCount:
			med, ok := columnMedian(values)
			if !ok {
				return nil, &DataQualityError{Column: col.Name, Reason: "no usable values to impute from"}
			}
			p.Medians[col.Name] = med

		case dataset.TypeCategorical:
			mode, ok := columnMode(values)
			if !ok {
				return nil, &DataQualityError{Column: col.Name, Reason: "no usable values to impute from"}
			}
			p.Modes[col.Name] = mode
			p.Encodings[col.Name] = fitEncoding(values)

		case dataset.TypeBoolean:
			mode, ok := boolMode(values)
			if !ok {
				return nil, &DataQualityError{Column: col.Name, Reason: "no usable values to impute from"}
			}
			p.Modes[col.Name] = mode
		}
	}

	return p, nil
}

// Transform cleans and encodes every row, returning the feature matrix
// and the parallel target vector. Output has exactly one row per input
// row and no missing values.
func (p *Pipeline) Transform(ds *dataset.Dataset) (X [][]float64, y []float64, err error) {
	targetIdx := ds.ColumnIndex(p.Schema.Target.Name)
	if targetIdx < 0 {
		return nil, nil, &DataQualityError{Column: p.Schema.Target.Name, Reason: "target column not present"}
	}

	X = make([][]float64, 0, len(ds.Rows))
	y = make([]float64, 0, len(ds.Rows))

	for r, row := range ds.Rows {
		vec := make([]float64, len(p.Schema.Features))
		for j, col := range p.Schema.Features {
			idx := ds.ColumnIndex(col.Name)
			v, err := p.encodeValue(col, row[idx], r+1)
			if err != nil {
				return nil, nil, err
			}
			vec[j] = v
		}

		raw := row[targetIdx]
		if dataset.IsMissing(raw) {
			return nil, nil, &DataQualityError{Column: p.Schema.Target.Name, Row: r + 1, Reason: "target value is missing"}
		}
		target, perr := dataset.ParseNumber(raw)
		if perr != nil {
			return nil, nil, &DataQualityError{Column: p.Schema.Target.Name, Row: r + 1, Reason: fmt.Sprintf("%q is not a number", raw)}
		}
		if err := checkRange(p.Schema.Target, target, r+1); err != nil {
			return nil, nil, err
		}

		X = append(X, vec)
		y = append(y, target)
	}

	return X, y, nil
}

// TransformRecord re-applies the fitted transform to a single raw
// input record at prediction time. Every feature the schema declares
// must be present with a non-missing value; an unseen category maps to
// UnknownIndex rather than failing.
func (p *Pipeline) TransformRecord(rec map[string]string) ([]float64, error) {
	vec := make([]float64, len(p.Schema.Features))
	for j, col := range p.Schema.Features {
		raw, ok := rec[col.Name]
		if !ok || dataset.IsMissing(raw) {
			return nil, &SchemaMismatchError{Field: col.Name, Reason: "required attribute is missing"}
		}

		switch col.Type {
		case dataset.TypeCategorical:
			vec[j] = float64(p.Encodings[col.Name].Index(raw))

		case dataset.TypeBoolean:
			b, err := dataset.ParseBool(raw)
			if err != nil {
				return nil, &SchemaMismatchError{Field: col.Name, Reason: fmt.Sprintf("%q is not a boolean", raw)}
			}
			vec[j] = boolToFloat(b)

		default:
			n, err := dataset.ParseNumber(raw)
			if err != nil {
				return nil, &SchemaMismatchError{Field: col.Name, Reason: fmt.Sprintf("%q is not a number", raw)}
			}
			if !inRange(col, n) {
				return nil, &SchemaMismatchError{Field: col.Name, Reason: fmt.Sprintf("value %v is out of range", n)}
			}
			vec[j] = n
		}
	}
	return vec, nil
}

// encodeValue cleans and encodes one training cell, imputing missing
// values from the fitted statistics.
func (p *Pipeline) encodeValue(col dataset.Column, raw string, row int) (float64, error) {
	switch col.Type {
	case dataset.TypeCategorical:
		if dataset.IsMissing(raw) {
			raw = p.Modes[col.Name]
		}
		return float64(p.Encodings[col.Name].Index(raw)), nil

	case dataset.TypeBoolean:
		if dataset.IsMissing(raw) {
			raw = p.Modes[col.Name]
		}
		b, err := dataset.ParseBool(raw)
		if err != nil {
			return 0, &DataQualityError{Column: col.Name, Row: row, Reason: fmt.Sprintf("%q is not a boolean", raw)}
		}
		return boolToFloat(b), nil

	default:
		if dataset.IsMissing(raw) {
			return p.Medians[col.Name], nil
		}
		n, err := dataset.ParseNumber(raw)
		if err != nil {
			return 0, &DataQualityError{Column: col.Name, Row: row, Reason: fmt.Sprintf("%q is not a number", raw)}
		}
		if err := checkRange(col, n, row); err != nil {
			return 0, err
		}
		return n, nil
	}
}

func checkRange(col dataset.Column, v float64, row int) error {
	if !inRange(col, v) {
		return &DataQualityError{Column: col.Name, Row: row, Reason: fmt.Sprintf("value %v is out of range", v)}
	}
	return nil
}

func inRange(col dataset.Column, v float64) bool {
	if col.Min != nil && v < *col.Min {
		return false
	}
	if col.Max != nil && v > *col.Max {
		return false
	}
	return true
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// fitEncoding assigns indices to categories in first-occurrence order.
func fitEncoding(values []string) Encoding {
	enc := make(Encoding)
	next := UnknownIndex + 1
	for _, v := range values {
		if dataset.IsMissing(v) {
			continue
		}
		if _, ok := enc[v]; !ok {
			enc[v] = next
			next++
		}
	}
	return enc
}

// columnMedian computes the median over the present numeric values.
func columnMedian(values []string) (float64, bool) {
	var nums []float64
	for _, v := range values {
		if dataset.IsMissing(v) {
			continue
		}
		if n, err := dataset.ParseNumber(v); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return 0, false
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 0 {
		return (nums[mid-1] + nums[mid]) / 2, true
	}
	return nums[mid], true
}

// columnMode returns the most frequent present value; ties break on
// first occurrence.
func columnMode(values []string) (string, bool) {
	counts := make(map[string]int)
	var order []string
	for _, v := range values {
		if dataset.IsMissing(v) {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	if len(order) == 0 {
		return "", false
	}
	best := order[0]
	for _, v := range order {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best, true
}

// boolMode normalizes boolean spellings before taking the mode, so
// "1" and "true" count as the same value.
func boolMode(values []string) (string, bool) {
	trues, falses := 0, 0
	for _, v := range values {
		if dataset.IsMissing(v) {
			continue
		}
		b, err := dataset.ParseBool(v)
		if err != nil {
			continue
		}
		if b {
			trues++
		} else {
			falses++
		}
	}
	if trues == 0 && falses == 0 {
		return "", false
	}
	if trues >= falses {
		return "true", true
	}
	return "false", true
}
