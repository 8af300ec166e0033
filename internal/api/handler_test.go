package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezhov/houser/internal/ingest"
	"github.com/mezhov/houser/internal/predict"
	"github.com/mezhov/houser/internal/registry"
	"github.com/mezhov/houser/internal/training"
)

const testToken = "test-token"

type testServer struct {
	srv   *httptest.Server
	store *registry.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := registry.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	trainer := training.New(training.Config{})
	runner := training.NewRunner(store, trainer, 0)
	handler := NewHandler(Deps{
		Store:     store,
		Ingestor:  ingest.New(store, nil),
		Runner:    runner,
		Predictor: predict.New(store, nil),
		Token:     testToken,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func houseCSV(n int) []byte {
	var b strings.Builder
	b.WriteString("location,area,bedrooms,bathrooms,floors,year_built,parking,price\n")
	locations := []string{"downtown", "suburb", "rural"}
	for i := 0; i < n; i++ {
		area := 800 + 37*i
		beds := 1 + i%4
		price := 120*area + 9000*beds + 40000
		fmt.Fprintf(&b, "%s,%d,%d,%d,%d,%d,%t,%d\n",
			locations[i%len(locations)], area, beds, 1+i%3, 1+i%2, 1960+i%60, i%2 == 0, price)
	}
	return []byte(b.String())
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/datasets")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/datasets", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadAndListDatasets(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/datasets?name=batch.csv", "text/csv", houseCSV(25))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	assert.Equal(t, "batch.csv", created["name"])
	assert.Equal(t, float64(25), created["row_count"])
	assert.Equal(t, "queued", created["status"])

	resp = ts.do(t, http.MethodGet, "/datasets", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]registry.Dataset](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "batch.csv", list[0].Name)

	resp = ts.do(t, http.MethodGet, "/datasets/"+list[0].ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[DatasetInfo](t, resp)
	assert.Contains(t, info.Columns, "price")
	assert.Contains(t, info.Columns, "location")
}

func TestUploadGarbage(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/datasets", "text/csv", []byte(""))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadUnknownDataset404(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/datasets/ghost", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrainAndServeModels(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/datasets", "text/csv", houseCSV(30))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	// Empty body trains the latest dataset.
	resp = ts.do(t, http.MethodPost, "/train", "application/json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	version := decode[registry.ModelVersion](t, resp)
	assert.NotEmpty(t, version.ID)
	assert.NotEmpty(t, version.Algorithm)

	resp = ts.do(t, http.MethodGet, "/models", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	models := decode[[]registry.ModelVersion](t, resp)
	require.Len(t, models, 1)

	resp = ts.do(t, http.MethodGet, "/models/active", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	active := decode[registry.ModelVersion](t, resp)
	assert.Equal(t, version.ID, active.ID)
}

func TestTrainNoDatasets(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/train", "application/json", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrainInsufficientData(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/datasets", "text/csv", houseCSV(5))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/train", "application/json", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestActivateUnknownModel(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/models/ghost/activate", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPredictFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/datasets", "text/csv", houseCSV(30))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	resp = ts.do(t, http.MethodPost, "/train", "application/json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	body, _ := json.Marshal(PredictRequest{Input: map[string]string{
		"location":   "downtown",
		"area":       "1200",
		"bedrooms":   "3",
		"bathrooms":  "2",
		"floors":     "1",
		"year_built": "1995",
		"parking":    "true",
	}})
	resp = ts.do(t, http.MethodPost, "/predict", "application/json", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[predict.Result](t, resp)
	assert.NotEmpty(t, result.ModelVersionID)
	assert.GreaterOrEqual(t, result.Price, 0.0)

	resp = ts.do(t, http.MethodGet, "/predictions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]registry.Prediction](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, result.ID, history[0].ID)
}

func TestPredictMissingField(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/datasets", "text/csv", houseCSV(30))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	resp = ts.do(t, http.MethodPost, "/train", "application/json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	body, _ := json.Marshal(PredictRequest{Input: map[string]string{"area": "1200"}})
	resp = ts.do(t, http.MethodPost, "/predict", "application/json", body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPredictNoModel(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(PredictRequest{Input: map[string]string{"area": "1200"}})
	resp := ts.do(t, http.MethodPost, "/predict", "application/json", body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
