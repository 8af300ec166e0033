// Package api exposes the REST surface: dataset upload, training,
// model registry management and price predictions.
package api

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mezhov/houser/internal/dataset"
	"github.com/mezhov/houser/internal/ingest"
	"github.com/mezhov/houser/internal/predict"
	"github.com/mezhov/houser/internal/registry"
	"github.com/mezhov/houser/internal/training"
)

const maxUploadBodySize = 32 << 20 // 32MB
const maxRequestBodySize = 1 << 20 // 1MB

type Deps struct {
	Store     *registry.Store
	Ingestor  *ingest.Ingestor
	Runner    *training.Runner
	Predictor *predict.Predictor
	Token     string
}

// NewHandler builds the router. Every route except /health requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/datasets", handleUploadDataset(deps))
		r.Get("/datasets", handleListDatasets(deps))
		r.Get("/datasets/{id}", handleGetDataset(deps))

		r.Post("/train", handleTrain(deps))

		r.Get("/models", handleListModels(deps))
		r.Get("/models/active", handleGetActiveModel(deps))
		r.Get("/models/{id}", handleGetModel(deps))
		r.Post("/models/{id}/activate", handleActivateModel(deps))

		r.Post("/predict", handlePredict(deps))
		r.Get("/predictions", handleListPredictions(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// UploadRequest is the JSON form of a dataset upload. Content carries
// the CSV base64-encoded. Raw text/csv bodies are accepted too.
type UploadRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func handleUploadDataset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		name := "upload.csv"
		var csvData []byte

		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var req UploadRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
			if req.Content == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			csvData = decoded
			if req.Name != "" {
				name = req.Name
			}
		} else {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
				return
			}
			csvData = body
			if q := r.URL.Query().Get("name"); q != "" {
				name = q
			}
		}

		ds, err := deps.Ingestor.IngestCSV(name, csvData)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"id":        ds.ID,
			"name":      ds.Name,
			"row_count": ds.RowCount,
			"status":    "queued",
		})
	}
}

func handleListDatasets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		datasets, err := deps.Store.ListDatasets(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list datasets: %v", err)
			return
		}
		if datasets == nil {
			datasets = []registry.Dataset{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(datasets)
	}
}

// DatasetInfo is the detail view of one dataset: metadata plus its
// parsed column names.
type DatasetInfo struct {
	registry.Dataset
	Columns []string `json:"columns"`
}

func handleGetDataset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ds, err := deps.Store.GetDataset(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		info := DatasetInfo{Dataset: ds}
		if parsed, err := dataset.ParseCSV(ds.CSV); err == nil {
			info.Columns = parsed.Columns
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	}
}

// TrainRequest selects what to train. An empty dataset id means the
// most recent upload; empty algorithms means all candidates.
type TrainRequest struct {
	DatasetID  string   `json:"dataset_id"`
	Algorithms []string `json:"algorithms"`
}

func handleTrain(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req TrainRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		datasetID := req.DatasetID
		if datasetID == "" {
			latest, err := deps.Store.LatestDataset()
			if err != nil {
				writeDomainError(w, err)
				return
			}
			datasetID = latest.ID
		}

		version, err := deps.Runner.TrainDataset(r.Context(), datasetID, req.Algorithms)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		// The fresh version is now active by recency; refresh serving.
		if deps.Predictor != nil {
			if err := deps.Predictor.Reload(); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "reloading predictor: %v", err)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version)
	}
}

func handleListModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		versions, err := deps.Store.ListModelVersions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list models: %v", err)
			return
		}
		if versions == nil {
			versions = []registry.ModelVersion{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(versions)
	}
}

func handleGetActiveModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := deps.Store.GetActiveModelVersion()
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version)
	}
}

func handleGetModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		version, err := deps.Store.GetModelVersion(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version)
	}
}

func handleActivateModel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Store.ActivateModelVersion(id); err != nil {
			writeDomainError(w, err)
			return
		}
		if deps.Predictor != nil {
			if err := deps.Predictor.Reload(); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "reloading predictor: %v", err)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "activated", "id": id})
	}
}

// PredictRequest is one raw house record. Values stay strings; the
// fitted pipeline parses and encodes them.
type PredictRequest struct {
	Input map[string]string `json:"input"`
}

func handlePredict(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Input) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "input is required")
			return
		}

		result, err := deps.Predictor.Predict(req.Input)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleListPredictions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		predictions, err := deps.Store.ListPredictions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list predictions: %v", err)
			return
		}
		if predictions == nil {
			predictions = []registry.Prediction{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(predictions)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
