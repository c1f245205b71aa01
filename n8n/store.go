package n8n

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Registration binds an N8N workflow to the event categories it wants
// delivered to its webhook URL.
type Registration struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflowId"`
	WebhookURL string    `json:"webhookUrl"`
	Events     []string  `json:"events"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists webhook registrations in sqlite so they survive
// restarts. It is constructor-injected into whatever needs it; there is
// no package-level registry.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS registrations (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	webhook_url TEXT NOT NULL,
	events      TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_registrations_workflow ON registrations(workflow_id);
`

// OpenStore opens (creating if needed) the registration database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save inserts a registration, assigning an id when absent.
func (s *Store) Save(ctx context.Context, reg *Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
	}
	events, err := json.Marshal(reg.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO registrations (id, workflow_id, webhook_url, events, created_at) VALUES (?, ?, ?, ?, ?)`,
		reg.ID, reg.WorkflowID, reg.WebhookURL, string(events), reg.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save registration: %w", err)
	}
	return nil
}

// Get fetches a registration by id. A missing id returns (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Registration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, webhook_url, events, created_at FROM registrations WHERE id = ?`, id)
	reg, err := scanRegistration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return reg, err
}

// List returns all registrations, newest first.
func (s *Store) List(ctx context.Context) ([]*Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, webhook_url, events, created_at FROM registrations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Delete removes a registration, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*Registration, error) {
	var reg Registration
	var events string
	var createdAt int64
	if err := row.Scan(&reg.ID, &reg.WorkflowID, &reg.WebhookURL, &events, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(events), &reg.Events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	reg.CreatedAt = time.Unix(createdAt, 0)
	return &reg, nil
}
