package storage

import (
	"database/sql"
	"fmt"
	_ "github.com/jackc/pgx/v4/stdlib" // Import the driver
	"log"
	"time"
)

type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// WaitForDB opens the database and pings it until it answers or the
// attempts run out.
func WaitForDB(url string, attempts int, delay time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	for i := 0; i < attempts; i++ {
		if err = db.Ping(); err == nil {
			log.Println("Connected to Database!")
			return db, nil
		}
		log.Printf("Waiting for DB... (%v)", err)
		time.Sleep(delay)
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to DB after %d attempts: %w", attempts, err)
}

// EnsureSchema creates the captures table if it does not exist yet.
func (s *Storage) EnsureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS captures (
			id          BIGSERIAL PRIMARY KEY,
			tab_id      TEXT NOT NULL,
			url         TEXT NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			size_bytes  INTEGER NOT NULL,
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			captured_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}
