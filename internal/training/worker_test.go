package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

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

// houseCSV builds a valid dataset with n rows and a linear price.
func houseCSV(n int) []byte {
	var b strings.Builder
	b.WriteString("location,area,bedrooms,bathrooms,floors,year_built,parking,price\n")
	locations := []string{"downtown", "suburb", "rural"}
	for i := 0; i < n; i++ {
		area := 800 + 37*i
		beds := 1 + i%4
		baths := 1 + i%3
		floors := 1 + i%2
		year := 1960 + i%60
		parking := "false"
		if i%2 == 0 {
			parking = "true"
		}
		price := 120*area + 9000*beds + 40000
		fmt.Fprintf(&b, "%s,%d,%d,%d,%d,%d,%s,%d\n",
			locations[i%len(locations)], area, beds, baths, floors, year, parking, price)
	}
	return []byte(b.String())
}

func saveHouseDataset(t *testing.T, store *registry.Store, id string, rows int) {
	t.Helper()
	ds := registry.Dataset{
		ID:        id,
		Name:      "listings.csv",
		CSV:       houseCSV(rows),
		RowCount:  rows,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveDataset(ds); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
}

func TestRunnerTrainsAndRegisters(t *testing.T) {
	store := openTestStore(t)
	saveHouseDataset(t, store, "ds-1", 30)

	runner := NewRunner(store, New(Config{}), 0)
	version, err := runner.TrainDataset(context.Background(), "ds-1", nil)
	if err != nil {
		t.Fatalf("TrainDataset: %v", err)
	}
	if version.ID == "" || version.Algorithm == "" {
		t.Fatalf("incomplete version: %+v", version)
	}

	stored, err := store.GetModelVersion(version.ID)
	if err != nil {
		t.Fatalf("GetModelVersion: %v", err)
	}
	if stored.DatasetID != "ds-1" {
		t.Errorf("dataset_id = %s, want ds-1", stored.DatasetID)
	}
	if len(stored.Artifact) == 0 {
		t.Error("version has no artifact")
	}

	var scores []CandidateScore
	if err := json.Unmarshal([]byte(stored.ScoresJSON), &scores); err != nil {
		t.Fatalf("decoding scores: %v", err)
	}
	if len(scores) != 4 {
		t.Errorf("scored %d candidates, want 4", len(scores))
	}

	// The fresh version becomes active by recency.
	active, err := store.GetActiveModelVersion()
	if err != nil {
		t.Fatalf("GetActiveModelVersion: %v", err)
	}
	if active.ID != version.ID {
		t.Errorf("active = %s, want %s", active.ID, version.ID)
	}
}

func TestRunnerRejectsSmallDataset(t *testing.T) {
	store := openTestStore(t)
	saveHouseDataset(t, store, "ds-small", 10)

	runner := NewRunner(store, New(Config{}), 0)
	_, err := runner.TrainDataset(context.Background(), "ds-small", nil)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("error = %v, want InsufficientDataError", err)
	}
	if insufficient.Rows != 10 {
		t.Errorf("reported %d rows, want 10", insufficient.Rows)
	}
}

func TestRunnerUnknownDataset(t *testing.T) {
	store := openTestStore(t)
	runner := NewRunner(store, New(Config{}), 0)
	_, err := runner.TrainDataset(context.Background(), "ghost", nil)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestWorkerProcessesTrainJob(t *testing.T) {
	store := openTestStore(t)
	saveHouseDataset(t, store, "ds-1", 30)

	payload, _ := json.Marshal(TrainPayload{DatasetID: "ds-1"})
	job := registry.Job{ID: "j1", Type: registry.JobTypeTrain, PayloadJSON: string(payload)}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	notified := false
	runner := NewRunner(store, New(Config{}), 0)
	w := NewWorker(store, runner, func() { notified = true }, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce reported no job processed")
	}
	if !notified {
		t.Error("worker did not notify after success")
	}

	versions, err := store.ListModelVersions(10, 0)
	if err != nil {
		t.Fatalf("ListModelVersions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("registered %d versions, want 1", len(versions))
	}

	// Queue must be drained.
	done, err = w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if done {
		t.Error("queue should be empty after completion")
	}
}

type recordingJobStore struct {
	job       *registry.Job
	failedMsg string
	completed bool
}

func (r *recordingJobStore) ClaimNextJob(types []string) (*registry.Job, error) {
	j := r.job
	r.job = nil
	return j, nil
}

func (r *recordingJobStore) CompleteJob(id string) error { r.completed = true; return nil }

func (r *recordingJobStore) FailJob(id, msg string) error { r.failedMsg = msg; return nil }

func TestWorkerFailsBadPayload(t *testing.T) {
	store := openTestStore(t)
	runner := NewRunner(store, New(Config{}), 0)

	jobs := &recordingJobStore{job: &registry.Job{ID: "j1", Type: registry.JobTypeTrain, PayloadJSON: "{"}}
	w := NewWorker(jobs, runner, nil, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce should report the job as processed")
	}
	if jobs.completed {
		t.Error("bad payload must not complete the job")
	}
	if jobs.failedMsg == "" {
		t.Error("job failure was not recorded")
	}
}
