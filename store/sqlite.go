package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"maestro/memory"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    status TEXT DEFAULT 'running',
    config_json TEXT,
    answer TEXT,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_tasks (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    description TEXT NOT NULL,
    status TEXT DEFAULT 'pending',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_subtasks (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL REFERENCES run_tasks(id),
    description TEXT NOT NULL,
    clusters_json TEXT,
    status TEXT DEFAULT 'pending',
    result_summary TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_run_subtasks_task ON run_subtasks(task_id);

CREATE TABLE IF NOT EXISTS run_events (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    event_type TEXT NOT NULL,
    data_json TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);

CREATE TABLE IF NOT EXISTS patterns (
    task_type TEXT PRIMARY KEY,
    examples_json TEXT NOT NULL,
    usage_count INTEGER DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Runs:     &SQLiteRunStore{db: db},
		Events:   &SQLiteEventStore{db: db},
		Patterns: &SQLitePatternStore{db: db},
		closer:   db.Close,
	}, nil
}

func generateID() string {
	return uuid.New().String()
}

// =============================================================================
// SQLiteRunStore
// =============================================================================

type SQLiteRunStore struct {
	db *sql.DB
}

func (s *SQLiteRunStore) CreateRun(query, configJSON string) (string, error) {
	id := generateID()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, query, config_json) VALUES (?, ?, ?)`,
		id, query, configJSON,
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

func (s *SQLiteRunStore) UpdateRunStatus(id, status string) error {
	var err error
	if status == "done" || status == "failed" {
		_, err = s.db.Exec(`UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	} else {
		_, err = s.db.Exec(`UPDATE runs SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) SetRunAnswer(id, answer string) error {
	if _, err := s.db.Exec(`UPDATE runs SET answer = ? WHERE id = ?`, answer, id); err != nil {
		return fmt.Errorf("set run answer: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) CreateTask(runID, description string) (string, error) {
	id := generateID()
	_, err := s.db.Exec(
		`INSERT INTO run_tasks (id, run_id, description) VALUES (?, ?, ?)`,
		id, runID, description,
	)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return id, nil
}

func (s *SQLiteRunStore) UpdateTaskStatus(id, status string) error {
	var err error
	if status == "done" || status == "failed" {
		_, err = s.db.Exec(`UPDATE run_tasks SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	} else {
		_, err = s.db.Exec(`UPDATE run_tasks SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) CreateSubtask(taskID, description, clustersJSON string) (string, error) {
	id := generateID()
	_, err := s.db.Exec(
		`INSERT INTO run_subtasks (id, task_id, description, clusters_json) VALUES (?, ?, ?, ?)`,
		id, taskID, description, clustersJSON,
	)
	if err != nil {
		return "", fmt.Errorf("create subtask: %w", err)
	}
	return id, nil
}

func (s *SQLiteRunStore) UpdateSubtaskStatus(id, status string, resultSummary *string) error {
	_, err := s.db.Exec(
		`UPDATE run_subtasks SET status = ?, result_summary = COALESCE(?, result_summary) WHERE id = ?`,
		status, resultSummary, id,
	)
	if err != nil {
		return fmt.Errorf("update subtask status: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) GetTasksByRun(runID string) ([]TaskRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, description, status, created_at, finished_at FROM run_tasks WHERE run_id = ? ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var finished sql.NullTime
		if err := rows.Scan(&t.ID, &t.RunID, &t.Description, &t.Status, &t.CreatedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if finished.Valid {
			t.FinishedAt = &finished.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteRunStore) GetSubtasksByTask(taskID string) ([]SubtaskRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, description, clusters_json, status, result_summary, created_at FROM run_subtasks WHERE task_id = ? ORDER BY created_at`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("get subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []SubtaskRecord
	for rows.Next() {
		var st SubtaskRecord
		var clusters, summary sql.NullString
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Description, &clusters, &st.Status, &summary, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		st.ClustersJSON = clusters.String
		if summary.Valid {
			st.ResultSummary = &summary.String
		}
		subtasks = append(subtasks, st)
	}
	return subtasks, rows.Err()
}

func (s *SQLiteRunStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, query, status, answer, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var answer sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Query, &r.Status, &answer, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if answer.Valid {
			r.Answer = &answer.String
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// SQLiteEventStore
// =============================================================================

type SQLiteEventStore struct {
	db *sql.DB
}

func (s *SQLiteEventStore) StoreEvent(runID, eventType, dataJSON string) (string, error) {
	id := generateID()
	_, err := s.db.Exec(
		`INSERT INTO run_events (id, run_id, event_type, data_json) VALUES (?, ?, ?, ?)`,
		id, runID, eventType, dataJSON,
	)
	if err != nil {
		return "", fmt.Errorf("store event: %w", err)
	}
	return id, nil
}

func (s *SQLiteEventStore) GetEventsByRun(runID string) ([]RunEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, event_type, data_json, created_at FROM run_events WHERE run_id = ? ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var data sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.DataJSON = data.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// SQLitePatternStore
// =============================================================================

type SQLitePatternStore struct {
	db *sql.DB
}

func (s *SQLitePatternStore) SavePattern(p memory.Pattern) error {
	examplesJSON, err := json.Marshal(p.Examples)
	if err != nil {
		return fmt.Errorf("marshal examples: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO patterns (task_type, examples_json, usage_count, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(task_type) DO UPDATE SET examples_json = excluded.examples_json, usage_count = excluded.usage_count, updated_at = excluded.updated_at`,
		p.TaskType, string(examplesJSON), p.UsageCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save pattern: %w", err)
	}
	return nil
}

func (s *SQLitePatternStore) LoadPatterns() ([]memory.Pattern, error) {
	rows, err := s.db.Query(`SELECT task_type, examples_json, usage_count FROM patterns ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	defer rows.Close()

	var patterns []memory.Pattern
	for rows.Next() {
		var p memory.Pattern
		var examplesJSON string
		if err := rows.Scan(&p.TaskType, &examplesJSON, &p.UsageCount); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(examplesJSON), &p.Examples); err != nil {
			return nil, fmt.Errorf("unmarshal examples for '%s': %w", p.TaskType, err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (s *SQLitePatternStore) DeletePattern(taskType string) error {
	if _, err := s.db.Exec(`DELETE FROM patterns WHERE task_type = ?`, taskType); err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	return nil
}
