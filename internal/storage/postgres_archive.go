package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	"github.com/sahasuman343/Track-n-Ride/internal/models"
)

type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresArchive{db: db}, nil
}

func (p *PostgresArchive) SaveRide(r *models.Ride) error {
	_, err := p.db.Exec(`INSERT INTO rides(id, name, admin_session_id, destination, created_at, updated_at) VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Name, r.AdminSessionID, nullableJSON(r.Destination), r.CreatedAt, time.Now())
	return err
}

func (p *PostgresArchive) UpdateDestination(rideID string, dest json.RawMessage) error {
	_, err := p.db.Exec(`UPDATE rides SET destination=$1, updated_at=$2 WHERE id=$3`,
		nullableJSON(dest), time.Now(), rideID)
	return err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
