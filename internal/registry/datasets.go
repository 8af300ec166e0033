package registry

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveDataset stores an uploaded CSV verbatim.
func (s *Store) SaveDataset(d Dataset) error {
	_, err := s.db.Exec(`
		INSERT INTO datasets (id, name, csv, row_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.CSV, d.RowCount, d.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetDataset fetches one dataset by id, including its CSV payload.
func (s *Store) GetDataset(id string) (Dataset, error) {
	var d Dataset
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, name, csv, row_count, created_at FROM datasets WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.CSV, &d.RowCount, &createdAt)
	if err == sql.ErrNoRows {
		return Dataset{}, ErrNotFound
	}
	if err != nil {
		return Dataset{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Dataset{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

// LatestDataset returns the most recently uploaded dataset.
func (s *Store) LatestDataset() (Dataset, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM datasets ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return Dataset{}, ErrNotFound
	}
	if err != nil {
		return Dataset{}, err
	}
	return s.GetDataset(id)
}

// ListDatasets returns dataset metadata (CSV payloads omitted), most
// recent first.
func (s *Store) ListDatasets(limit, offset int) ([]Dataset, error) {
	rows, err := s.db.Query(`
		SELECT id, name, row_count, created_at FROM datasets
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Dataset
	for rows.Next() {
		var d Dataset
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Name, &d.RowCount, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// SavePrediction appends one served estimate to the history.
func (s *Store) SavePrediction(p Prediction) error {
	_, err := s.db.Exec(`
		INSERT INTO predictions (id, model_version_id, input_json, price, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.ModelVersionID, p.InputJSON, p.Price, p.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListPredictions returns prediction history, most recent first.
func (s *Store) ListPredictions(limit, offset int) ([]Prediction, error) {
	rows, err := s.db.Query(`
		SELECT id, model_version_id, input_json, price, created_at FROM predictions
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Prediction
	for rows.Next() {
		var p Prediction
		var createdAt string
		if err := rows.Scan(&p.ID, &p.ModelVersionID, &p.InputJSON, &p.Price, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		p.CreatedAt = t
		results = append(results, p)
	}
	return results, rows.Err()
}
