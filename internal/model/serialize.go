package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func init() {
	gob.Register(&LinearRegression{})
	gob.Register(&RegressionTree{})
	gob.Register(&RandomForest{})
	gob.Register(&GradientBoosting{})
}

// artifact wraps the interface value so gob records the concrete type.
type artifact struct {
	R Regressor
}

// EncodeArtifact serializes a fitted regressor for registry storage.
func EncodeArtifact(r Regressor) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(artifact{R: r}); err != nil {
		return nil, fmt.Errorf("encoding model artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeArtifact restores a regressor serialized by EncodeArtifact.
func DecodeArtifact(data []byte) (Regressor, error) {
	var a artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("decoding model artifact: %w", err)
	}
	if a.R == nil {
		return nil, fmt.Errorf("decoding model artifact: empty payload")
	}
	return a.R, nil
}
