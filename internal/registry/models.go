package registry

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ModelVersion is one immutable trained model artifact plus its
// metadata. Retraining inserts a new version; rows are never updated.
type ModelVersion struct {
	ID           string    `json:"id"`
	DatasetID    string    `json:"dataset_id"`
	Algorithm    string    `json:"algorithm"`
	MAE          float64   `json:"mae"`
	R2           float64   `json:"r2"`
	PipelineJSON string    `json:"-"`
	ScoresJSON   string    `json:"scores,omitempty"`
	Artifact     []byte    `json:"-"`
	TrainedAt    time.Time `json:"trained_at"`
}

// Dataset is an uploaded CSV kept verbatim so training and scheduled
// retraining always run against the original source data.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CSV       []byte    `json:"-"`
	RowCount  int       `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Prediction is one served estimate, recorded for history.
type Prediction struct {
	ID             string    `json:"id"`
	ModelVersionID string    `json:"model_version_id"`
	InputJSON      string    `json:"input"`
	Price          float64   `json:"price"`
	CreatedAt      time.Time `json:"created_at"`
}

// Job is a queued unit of background work.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// JobTypeTrain trains a stored dataset and registers the result.
const JobTypeTrain = "train_dataset"
