package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jo-hoe/reelsmith/internal/common"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		request_json TEXT NOT NULL,
		status TEXT NOT NULL,
		result_url TEXT,
		error_message TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateJob(rec *JobRecord) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if rec.ID == "" {
		return errors.New("record.ID is required")
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	reqJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO jobs (id, request_json, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, string(reqJSON), string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkProcessing moves a pending record to processing. A record that already
// left pending is not touched, keeping the transition monotonic.
func (s *SQLiteStore) MarkProcessing(id string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(StatusProcessing), at.UTC().Format(time.RFC3339Nano), id, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// SaveResult writes the completed terminal state. The status guard makes the
// write a no-op when the record already reached a terminal state, so the
// terminal outcome is reported exactly once.
func (s *SQLiteStore) SaveResult(id string, resultURL string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE jobs
		SET status = ?, result_url = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(StatusCompleted), resultURL, at.UTC().Format(time.RFC3339Nano),
		id, string(StatusCompleted), string(StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// SaveError writes the failed terminal state, with the same terminal guard
// as SaveResult.
func (s *SQLiteStore) SaveError(id string, errMsg string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE jobs
		SET status = ?, error_message = ?, result_url = NULL, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(StatusFailed), errMsg, at.UTC().Format(time.RFC3339Nano),
		id, string(StatusCompleted), string(StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("save error: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(id string) (*JobRecord, error) {
	row := s.db.QueryRow(`SELECT id, request_json, status, result_url, error_message, created_at, updated_at
		FROM jobs WHERE id = ?`, id)

	var rec JobRecord
	var reqJSON, status, created, updated string
	var resultURL, errMsg sql.NullString

	if err := row.Scan(&rec.ID, &reqJSON, &status, &resultURL, &errMsg, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal([]byte(reqJSON), &rec.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	rec.Status = Status(status)
	if resultURL.Valid {
		v := resultURL.String
		rec.ResultURL = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		rec.ErrorMsg = &v
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}

	return &rec, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
