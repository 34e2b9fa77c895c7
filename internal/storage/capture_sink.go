package storage

import (
	"html-loader/pkg/models"
	"log"
)

// CaptureSink saves capture records to Postgres.
type CaptureSink struct {
	*Storage
}

func (s *CaptureSink) Save(batch []models.CaptureRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO captures (tab_id, url, title, size_bytes, status, error, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		_, err := stmt.Exec(
			string(r.Tab),
			r.URL,
			r.Title,
			r.Size,
			string(r.Status),
			r.Error,
			r.CapturedAt,
		)
		if err != nil {
			log.Printf("Error saving capture of %s: %v", r.URL, err)
		}
	}

	return tx.Commit()
}
