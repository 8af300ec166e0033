package registry

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// migrations are not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_datasets_created", "idx_model_versions_trained", "idx_predictions_created", "idx_jobs_status_run_after"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := Dataset{
		ID:        "ds-001",
		Name:      "listings.csv",
		CSV:       []byte("location,price\na,1\n"),
		RowCount:  1,
		CreatedAt: now,
	}
	if err := s.SaveDataset(want); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	got, err := s.GetDataset("ds-001")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got.Name != want.Name || got.RowCount != want.RowCount || string(got.CSV) != string(want.CSV) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}

	if _, err := s.GetDataset("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing dataset error = %v, want ErrNotFound", err)
	}
}

func TestListDatasetsOmitsPayload(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		ds := Dataset{
			ID:        fmt.Sprintf("ds-%d", i),
			Name:      fmt.Sprintf("batch-%d.csv", i),
			CSV:       []byte("a,b\n1,2\n"),
			RowCount:  1,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveDataset(ds); err != nil {
			t.Fatalf("SaveDataset: %v", err)
		}
	}

	list, err := s.ListDatasets(10, 0)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("listed %d datasets, want 3", len(list))
	}
	if list[0].ID != "ds-2" {
		t.Errorf("newest first: got %s", list[0].ID)
	}
	if list[0].CSV != nil {
		t.Error("list should not carry CSV payloads")
	}

	latest, err := s.LatestDataset()
	if err != nil {
		t.Fatalf("LatestDataset: %v", err)
	}
	if latest.ID != "ds-2" || latest.CSV == nil {
		t.Errorf("LatestDataset = %+v, want ds-2 with payload", latest)
	}
}

func saveVersion(t *testing.T, s *Store, id string, trainedAt time.Time) {
	t.Helper()
	v := ModelVersion{
		ID:           id,
		DatasetID:    "ds-001",
		Algorithm:    "linear",
		MAE:          1234.5,
		R2:           0.91,
		PipelineJSON: `{"medians":{}}`,
		ScoresJSON:   `[]`,
		Artifact:     []byte{0x1, 0x2, 0x3},
		TrainedAt:    trainedAt,
	}
	if err := s.SaveModelVersion(v); err != nil {
		t.Fatalf("SaveModelVersion(%s): %v", id, err)
	}
}

func TestModelVersionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	saveVersion(t, s, "v1", now)

	got, err := s.GetModelVersion("v1")
	if err != nil {
		t.Fatalf("GetModelVersion: %v", err)
	}
	if got.Algorithm != "linear" || got.MAE != 1234.5 || got.R2 != 0.91 {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if len(got.Artifact) != 3 {
		t.Errorf("artifact length = %d, want 3", len(got.Artifact))
	}
	if !got.TrainedAt.Equal(now) {
		t.Errorf("trained_at = %v, want %v", got.TrainedAt, now)
	}
}

func TestActiveDefaultsToNewest(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetActiveModelVersion(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty registry active error = %v, want ErrNotFound", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	saveVersion(t, s, "v1", base)
	saveVersion(t, s, "v2", base.Add(time.Minute))

	active, err := s.GetActiveModelVersion()
	if err != nil {
		t.Fatalf("GetActiveModelVersion: %v", err)
	}
	if active.ID != "v2" {
		t.Errorf("active = %s, want v2 (most recent)", active.ID)
	}

	if _, pinned, err := s.ActiveModelVersionID(); err != nil || pinned {
		t.Errorf("no pin expected, got pinned=%v err=%v", pinned, err)
	}
}

func TestActivateAndRollback(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)
	saveVersion(t, s, "v1", base)
	saveVersion(t, s, "v2", base.Add(time.Minute))

	// Roll back to the older version.
	if err := s.ActivateModelVersion("v1"); err != nil {
		t.Fatalf("ActivateModelVersion: %v", err)
	}
	active, err := s.GetActiveModelVersion()
	if err != nil {
		t.Fatalf("GetActiveModelVersion: %v", err)
	}
	if active.ID != "v1" {
		t.Errorf("active = %s, want pinned v1", active.ID)
	}

	// Unknown version fails and leaves the pin untouched.
	if err := s.ActivateModelVersion("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("activating unknown version error = %v, want ErrNotFound", err)
	}
	active, err = s.GetActiveModelVersion()
	if err != nil {
		t.Fatalf("GetActiveModelVersion after failed activate: %v", err)
	}
	if active.ID != "v1" {
		t.Errorf("active after failed activate = %s, want v1", active.ID)
	}
}

func TestPredictionHistory(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		p := Prediction{
			ID:             fmt.Sprintf("p-%d", i),
			ModelVersionID: "v1",
			InputJSON:      `{"area":"1200"}`,
			Price:          200000 + float64(i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SavePrediction(p); err != nil {
			t.Fatalf("SavePrediction: %v", err)
		}
	}

	list, err := s.ListPredictions(2, 0)
	if err != nil {
		t.Fatalf("ListPredictions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d predictions, want 2", len(list))
	}
	if list[0].ID != "p-2" {
		t.Errorf("newest first: got %s", list[0].ID)
	}
}

func TestJobQueueClaimComplete(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "j1", Type: JobTypeTrain, PayloadJSON: `{"dataset_id":"ds-001"}`}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimNextJob([]string{JobTypeTrain})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil || claimed.ID != "j1" {
		t.Fatalf("claimed = %+v, want j1", claimed)
	}
	if claimed.Status != "running" {
		t.Errorf("claimed status = %q, want running", claimed.Status)
	}

	// The running job must not be claimable again.
	again, err := s.ClaimNextJob([]string{JobTypeTrain})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("claimed a running job: %+v", again)
	}

	if err := s.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if err := s.CompleteJob("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("completing unknown job error = %v, want ErrNotFound", err)
	}
}

func TestJobFailureBackoffAndExhaustion(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "j1", Type: JobTypeTrain, PayloadJSON: `{}`, MaxAttempts: 2}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if _, err := s.ClaimNextJob([]string{JobTypeTrain}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j1", "validation failed"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// First failure re-queues with backoff: pending but not yet runnable.
	var status, runAfter string
	if err := s.db.QueryRow(`SELECT status, run_after FROM jobs WHERE id = 'j1'`).Scan(&status, &runAfter); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "pending" {
		t.Errorf("status after first failure = %q, want pending", status)
	}
	ra, err := time.Parse(time.RFC3339, runAfter)
	if err != nil {
		t.Fatalf("parsing run_after: %v", err)
	}
	if !ra.After(time.Now().UTC()) {
		t.Error("run_after should be in the future after backoff")
	}

	// Second failure exhausts the attempt budget.
	if err := s.FailJob("j1", "validation failed again"); err != nil {
		t.Fatalf("second FailJob: %v", err)
	}
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j1'`).Scan(&status); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "failed" {
		t.Errorf("status after exhaustion = %q, want failed", status)
	}
}
