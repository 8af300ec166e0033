package registry

import (
	"database/sql"
	"fmt"
	"time"
)

const activeVersionKey = "active_model_version"

// SaveModelVersion stores an immutable model version.
func (s *Store) SaveModelVersion(v ModelVersion) error {
	_, err := s.db.Exec(`
		INSERT INTO model_versions (id, dataset_id, algorithm, mae, r2, pipeline_json, scores_json, artifact, trained_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.DatasetID, v.Algorithm, v.MAE, v.R2, v.PipelineJSON, v.ScoresJSON, v.Artifact,
		v.TrainedAt.UTC().Format(time.RFC3339),
	)
	return err
}

const versionColumns = `id, dataset_id, algorithm, mae, r2, pipeline_json, scores_json, artifact, trained_at`

func scanModelVersion(row interface{ Scan(...any) error }) (ModelVersion, error) {
	var v ModelVersion
	var trainedAt string
	err := row.Scan(&v.ID, &v.DatasetID, &v.Algorithm, &v.MAE, &v.R2, &v.PipelineJSON, &v.ScoresJSON, &v.Artifact, &trainedAt)
	if err == sql.ErrNoRows {
		return ModelVersion{}, ErrNotFound
	}
	if err != nil {
		return ModelVersion{}, err
	}
	t, err := time.Parse(time.RFC3339, trainedAt)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("parsing trained_at: %w", err)
	}
	v.TrainedAt = t
	return v, nil
}

// GetModelVersion fetches one version by id.
func (s *Store) GetModelVersion(id string) (ModelVersion, error) {
	row := s.db.QueryRow(`SELECT `+versionColumns+` FROM model_versions WHERE id = ?`, id)
	return scanModelVersion(row)
}

// ListModelVersions returns versions, most recently trained first.
func (s *Store) ListModelVersions(limit, offset int) ([]ModelVersion, error) {
	rows, err := s.db.Query(`
		SELECT `+versionColumns+` FROM model_versions
		ORDER BY trained_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ModelVersion
	for rows.Next() {
		v, err := scanModelVersion(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

// GetActiveModelVersion returns the explicitly activated version if an
// operator pinned one, otherwise the most recently trained version.
// ErrNotFound means no model has been trained yet.
func (s *Store) GetActiveModelVersion() (ModelVersion, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, activeVersionKey).Scan(&id)
	if err == nil {
		return s.GetModelVersion(id)
	}
	if err != sql.ErrNoRows {
		return ModelVersion{}, err
	}

	row := s.db.QueryRow(`SELECT ` + versionColumns + ` FROM model_versions ORDER BY trained_at DESC, id DESC LIMIT 1`)
	return scanModelVersion(row)
}

// ActiveModelVersionID returns the pinned version id, if any.
func (s *Store) ActiveModelVersionID() (string, bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, activeVersionKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// ActivateModelVersion pins the active pointer to an existing version.
// Unknown id fails with ErrNotFound and leaves the pointer untouched.
func (s *Store) ActivateModelVersion(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning activate transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM model_versions WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		activeVersionKey, id, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}
