// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/aloha/pkg/a2a"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements Store on top of a SQL database. Task status,
// history and artifacts are stored as JSON columns so the schema stays
// stable as the protocol types evolve.
type SQLStore struct {
	db      *sql.DB
	dialect string

	// Serializes read-modify-write cycles. Single-process guard only.
	mu sync.Mutex
}

type taskRow struct {
	ID            string
	ContextID     string
	StatusJSON    string
	HistoryJSON   string
	ArtifactsJSON string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	// Separate statements for table and indexes for SQLite compatibility.
	createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS a2a_tasks (
    id VARCHAR(255) PRIMARY KEY,
    context_id VARCHAR(255) NOT NULL,
    status_json TEXT NOT NULL,
    history_json TEXT,
    artifacts_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	createTasksContextIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_a2a_tasks_context_id ON a2a_tasks(context_id)`

	createTasksUpdatedAtIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_a2a_tasks_updated_at ON a2a_tasks(updated_at)`
)

// NewSQLStore creates a SQL-backed Store. The db connection should be
// shared with other services using the same database to prevent SQLite
// "database is locked" errors.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	normalized := dialect
	if dialect == "sqlite3" {
		normalized = "sqlite"
	}

	switch normalized {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: normalized}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createTasksTableSQL); err != nil {
		return fmt.Errorf("failed to create a2a_tasks table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createTasksContextIndexSQL); err != nil {
		return fmt.Errorf("failed to create context_id index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createTasksUpdatedAtIndexSQL); err != nil {
		return fmt.Errorf("failed to create updated_at index: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	slog.Debug("SQLStore.Get", "taskID", taskID)

	query := `
SELECT id, context_id, status_json, history_json, artifacts_json, created_at, updated_at
FROM a2a_tasks
WHERE id = ?
`
	if s.dialect == "postgres" {
		query = `
SELECT id, context_id, status_json, history_json, artifacts_json, created_at, updated_at
FROM a2a_tasks
WHERE id = $1
`
	}

	var row taskRow
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&row.ID, &row.ContextID, &row.StatusJSON,
		&row.HistoryJSON, &row.ArtifactsJSON,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		slog.Error("SQLStore.Get: query error", "taskID", taskID, "error", err)
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	return rowToTask(&row)
}

// Put implements Store using an upsert per dialect.
func (s *SQLStore) Put(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}

	row, err := taskToRow(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	query := `
INSERT INTO a2a_tasks (id, context_id, status_json, history_json, artifacts_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    context_id = VALUES(context_id),
    status_json = VALUES(status_json),
    history_json = VALUES(history_json),
    artifacts_json = VALUES(artifacts_json),
    updated_at = VALUES(updated_at)
`
	switch s.dialect {
	case "postgres":
		query = `
INSERT INTO a2a_tasks (id, context_id, status_json, history_json, artifacts_json, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    context_id = EXCLUDED.context_id,
    status_json = EXCLUDED.status_json,
    history_json = EXCLUDED.history_json,
    artifacts_json = EXCLUDED.artifacts_json,
    updated_at = EXCLUDED.updated_at
`
	case "sqlite":
		// ON CONFLICT upsert preserves created_at, unlike INSERT OR REPLACE.
		query = `
INSERT INTO a2a_tasks (id, context_id, status_json, history_json, artifacts_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    context_id = excluded.context_id,
    status_json = excluded.status_json,
    history_json = excluded.history_json,
    artifacts_json = excluded.artifacts_json,
    updated_at = excluded.updated_at
`
	}

	_, err = s.db.ExecContext(ctx, query,
		row.ID, row.ContextID, row.StatusJSON,
		row.HistoryJSON, row.ArtifactsJSON,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// SetStatus implements Store.
func (s *SQLStore) SetStatus(ctx context.Context, taskID string, status a2a.TaskStatus) error {
	return s.update(ctx, taskID, func(t *a2a.Task) error {
		if t.Status.State.IsTerminal() {
			return ErrTaskFinal
		}
		t.Status = status
		return nil
	})
}

// AppendHistory implements Store.
func (s *SQLStore) AppendHistory(ctx context.Context, taskID string, message a2a.Message) error {
	return s.update(ctx, taskID, func(t *a2a.Task) error {
		t.History = append(t.History, message)
		return nil
	})
}

// AppendArtifact implements Store.
func (s *SQLStore) AppendArtifact(ctx context.Context, taskID string, artifact a2a.Artifact) error {
	return s.update(ctx, taskID, func(t *a2a.Task) error {
		if t.Status.State.IsTerminal() {
			return ErrTaskFinal
		}
		t.Artifacts = append(t.Artifacts, artifact)
		return nil
	})
}

func (s *SQLStore) update(ctx context.Context, taskID string, mutate func(*a2a.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if err := mutate(t); err != nil {
		return err
	}
	return s.Put(ctx, t)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func taskToRow(task *a2a.Task) (*taskRow, error) {
	now := time.Now()

	statusJSON, err := json.Marshal(task.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}

	historyJSON := []byte("[]")
	if len(task.History) > 0 {
		historyJSON, err = json.Marshal(task.History)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}
	}

	artifactsJSON := []byte("[]")
	if len(task.Artifacts) > 0 {
		artifactsJSON, err = json.Marshal(task.Artifacts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal artifacts: %w", err)
		}
	}

	return &taskRow{
		ID:            task.ID,
		ContextID:     task.ContextID,
		StatusJSON:    string(statusJSON),
		HistoryJSON:   string(historyJSON),
		ArtifactsJSON: string(artifactsJSON),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func rowToTask(row *taskRow) (*a2a.Task, error) {
	t := &a2a.Task{
		Kind:      "task",
		ID:        row.ID,
		ContextID: row.ContextID,
	}

	if row.StatusJSON == "" {
		return nil, fmt.Errorf("status_json is required but was empty")
	}
	if err := json.Unmarshal([]byte(row.StatusJSON), &t.Status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	if row.HistoryJSON != "" && row.HistoryJSON != "[]" {
		if err := json.Unmarshal([]byte(row.HistoryJSON), &t.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}

	if row.ArtifactsJSON != "" && row.ArtifactsJSON != "[]" {
		if err := json.Unmarshal([]byte(row.ArtifactsJSON), &t.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
		}
	}

	return t, nil
}

// Compile-time interface compliance check
var _ Store = (*SQLStore)(nil)
