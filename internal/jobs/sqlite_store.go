package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forPelevin/clipforge/internal/types"
)

// Store persists job records. The registry is the authority for live reads;
// the store exists so records survive restarts.
type Store interface {
	SaveJob(job Job) error
	DeleteJob(id string) error
	LoadJobs() ([]Job, error)
	Close() error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY under concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
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
		status TEXT NOT NULL,
		progress TEXT NOT NULL,
		message TEXT,
		source_url TEXT,
		source_file TEXT,
		config_json TEXT NOT NULL,
		clips_json TEXT,
		clip_failures_json TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// SaveJob upserts the full record. Insert order (rowid) preserves creation
// order for LoadJobs.
func (s *SQLiteStore) SaveJob(job Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	clips, err := json.Marshal(job.Clips)
	if err != nil {
		return fmt.Errorf("marshal clips: %w", err)
	}
	clipFailures, err := json.Marshal(job.ClipFailures)
	if err != nil {
		return fmt.Errorf("marshal clip failures: %w", err)
	}
	var completed *string
	if !job.CompletedAt.IsZero() {
		ts := job.CompletedAt.UTC().Format(time.RFC3339Nano)
		completed = &ts
	}

	_, err = s.db.Exec(
		`INSERT INTO jobs (id, status, progress, message, source_url, source_file, config_json, clips_json, clip_failures_json, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			message = excluded.message,
			clips_json = excluded.clips_json,
			clip_failures_json = excluded.clip_failures_json,
			completed_at = excluded.completed_at`,
		job.ID, string(job.Status), job.Progress, job.Message,
		job.SourceURL, job.SourceFile, string(cfg), string(clips), string(clipFailures),
		job.CreatedAt.UTC().Format(time.RFC3339Nano), completed,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteJob(id string) error {
	if _, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// LoadJobs returns all persisted jobs in creation order.
func (s *SQLiteStore) LoadJobs() ([]Job, error) {
	rows, err := s.db.Query(`SELECT id, status, progress, message, source_url, source_file, config_json, clips_json, clip_failures_json, created_at, completed_at
		FROM jobs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var job Job
		var status string
		var message, sourceURL, sourceFile, clips, clipFailures, completed sql.NullString
		var cfg, created string
		if err := rows.Scan(&job.ID, &status, &job.Progress, &message, &sourceURL, &sourceFile, &cfg, &clips, &clipFailures, &created, &completed); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Status = Status(status)
		job.Message = message.String
		job.SourceURL = sourceURL.String
		job.SourceFile = sourceFile.String
		if err := json.Unmarshal([]byte(cfg), &job.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config for %s: %w", job.ID, err)
		}
		if clips.Valid && clips.String != "" {
			if err := json.Unmarshal([]byte(clips.String), &job.Clips); err != nil {
				job.Clips = []types.Clip{}
			}
		}
		if clipFailures.Valid && clipFailures.String != "" {
			if err := json.Unmarshal([]byte(clipFailures.String), &job.ClipFailures); err != nil {
				job.ClipFailures = nil
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			job.CreatedAt = t
		}
		if completed.Valid {
			if t, err := time.Parse(time.RFC3339Nano, completed.String); err == nil {
				job.CompletedAt = t
			}
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
