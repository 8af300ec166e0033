package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mezhov/houser/internal/dataset"
	"github.com/mezhov/houser/internal/feature"
	"github.com/mezhov/houser/internal/registry"
	"github.com/mezhov/houser/internal/training"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeDomainError maps pipeline errors onto HTTP statuses: malformed
// requests are 400, datasets that parse but cannot be trained on are
// 422, missing records are 404.
func writeDomainError(w http.ResponseWriter, err error) {
	var validation *dataset.ValidationError
	var mismatch *feature.SchemaMismatchError
	var quality *feature.DataQualityError
	var insufficient *training.InsufficientDataError

	switch {
	case errors.As(err, &validation):
		httpError(w, http.StatusBadRequest, "validation_error", "%v", validation)
	case errors.As(err, &mismatch):
		httpError(w, http.StatusBadRequest, "schema_mismatch", "%v", mismatch)
	case errors.As(err, &quality):
		httpError(w, http.StatusUnprocessableEntity, "data_quality_error", "%v", quality)
	case errors.As(err, &insufficient):
		httpError(w, http.StatusUnprocessableEntity, "insufficient_data", "%v", insufficient)
	case errors.Is(err, registry.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
