package predict

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mezhov/houser/internal/dataset"
	"github.com/mezhov/houser/internal/feature"
	"github.com/mezhov/houser/internal/model"
	"github.com/mezhov/houser/internal/registry"
)

func openTestStore(t *testing.T) *registry.Store {
	t.Helper()
	s, err := registry.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSchema() dataset.Schema {
	min := func(v float64) *float64 { return &v }
	return dataset.Schema{
		Features: []dataset.Column{
			{Name: "area", Type: dataset.TypeNumeric, Min: min(1)},
			{Name: "location", Type: dataset.TypeCategorical},
		},
		Target: dataset.Column{Name: "price", Type: dataset.TypeNumeric, Min: min(0)},
	}
}

// trainVersion fits a linear model on price = 100*area + 5000*loc and
// stores it as a version. Returns the version id.
func trainVersion(t *testing.T, store *registry.Store, id string, trainedAt time.Time) string {
	t.Helper()

	csv := "area,location,price\n" +
		"1000,downtown,105000\n" +
		"1500,downtown,155000\n" +
		"2000,suburb,210000\n" +
		"1200,suburb,130000\n"
	ds, err := dataset.ParseCSV([]byte(csv))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}

	pipe, err := feature.Fit(ds, testSchema())
	if err != nil {
		t.Fatalf("fitting pipeline: %v", err)
	}
	X, y, err := pipe.Transform(ds)
	if err != nil {
		t.Fatalf("transforming fixture: %v", err)
	}

	reg := model.NewLinearRegression()
	if err := reg.Fit(X, y); err != nil {
		t.Fatalf("fitting model: %v", err)
	}

	pipeJSON, err := json.Marshal(pipe)
	if err != nil {
		t.Fatalf("encoding pipeline: %v", err)
	}
	artifact, err := model.EncodeArtifact(reg)
	if err != nil {
		t.Fatalf("encoding artifact: %v", err)
	}

	v := registry.ModelVersion{
		ID:           id,
		DatasetID:    "ds-fixture",
		Algorithm:    model.AlgorithmLinear,
		MAE:          100,
		R2:           0.99,
		PipelineJSON: string(pipeJSON),
		ScoresJSON:   "[]",
		Artifact:     artifact,
		TrainedAt:    trainedAt,
	}
	if err := store.SaveModelVersion(v); err != nil {
		t.Fatalf("saving version: %v", err)
	}
	return id
}

func TestPredictLoadsActiveVersion(t *testing.T) {
	store := openTestStore(t)
	trainVersion(t, store, "v1", time.Now().UTC())

	p := New(store, nil)
	res, err := p.Predict(map[string]string{"area": "1000", "location": "downtown"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ModelVersionID != "v1" {
		t.Errorf("served from version %s, want v1", res.ModelVersionID)
	}
	// The fixture is exactly linear, so the estimate should land close.
	if math.Abs(res.Price-105000) > 2000 {
		t.Errorf("price = %v, want near 105000", res.Price)
	}
	if res.ID == "" {
		t.Error("result should carry an id")
	}
}

func TestPredictUnknownCategoryServed(t *testing.T) {
	store := openTestStore(t)
	trainVersion(t, store, "v1", time.Now().UTC())

	p := New(store, nil)
	res, err := p.Predict(map[string]string{"area": "1000", "location": "atlantis"})
	if err != nil {
		t.Fatalf("unknown category should not fail: %v", err)
	}
	if res.Price < 0 {
		t.Errorf("price = %v, want non-negative", res.Price)
	}
}

func TestPredictMissingAttribute(t *testing.T) {
	store := openTestStore(t)
	trainVersion(t, store, "v1", time.Now().UTC())

	p := New(store, nil)
	_, err := p.Predict(map[string]string{"location": "downtown"})
	var mismatch *feature.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want SchemaMismatchError", err)
	}
	if mismatch.Field != "area" {
		t.Errorf("mismatch field = %q, want area", mismatch.Field)
	}
}

func TestPredictNoModel(t *testing.T) {
	store := openTestStore(t)

	p := New(store, nil)
	_, err := p.Predict(map[string]string{"area": "1000", "location": "downtown"})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestReloadFollowsActivation(t *testing.T) {
	store := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)
	trainVersion(t, store, "v1", base)
	trainVersion(t, store, "v2", base.Add(time.Minute))

	p := New(store, nil)
	if err := p.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := p.ActiveVersionID(); got != "v2" {
		t.Errorf("cached version = %s, want newest v2", got)
	}

	if err := store.ActivateModelVersion("v1"); err != nil {
		t.Fatalf("ActivateModelVersion: %v", err)
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("Reload after activate: %v", err)
	}
	if got := p.ActiveVersionID(); got != "v1" {
		t.Errorf("cached version = %s, want pinned v1", got)
	}
}

func TestPredictRecordsHistory(t *testing.T) {
	store := openTestStore(t)
	trainVersion(t, store, "v1", time.Now().UTC())

	p := New(store, nil)
	res, err := p.Predict(map[string]string{"area": "1500", "location": "suburb"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	history, err := store.ListPredictions(10, 0)
	if err != nil {
		t.Fatalf("ListPredictions: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	if history[0].ID != res.ID || history[0].Price != res.Price {
		t.Errorf("recorded %+v, want id=%s price=%v", history[0], res.ID, res.Price)
	}

	var input map[string]string
	if err := json.Unmarshal([]byte(history[0].InputJSON), &input); err != nil {
		t.Fatalf("decoding recorded input: %v", err)
	}
	if input["area"] != "1500" {
		t.Errorf("recorded input = %v", input)
	}
}
