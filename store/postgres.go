package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maestro/memory"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    status TEXT DEFAULT 'running',
    config_json TEXT,
    answer TEXT,
    started_at TIMESTAMPTZ DEFAULT now(),
    finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_tasks (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    description TEXT NOT NULL,
    status TEXT DEFAULT 'pending',
    created_at TIMESTAMPTZ DEFAULT now(),
    finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_subtasks (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL REFERENCES run_tasks(id),
    description TEXT NOT NULL,
    clusters_json TEXT,
    status TEXT DEFAULT 'pending',
    result_summary TEXT,
    created_at TIMESTAMPTZ DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_run_subtasks_task ON run_subtasks(task_id);

CREATE TABLE IF NOT EXISTS run_events (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    event_type TEXT NOT NULL,
    data_json TEXT,
    created_at TIMESTAMPTZ DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);

CREATE TABLE IF NOT EXISTS patterns (
    task_type TEXT PRIMARY KEY,
    examples_json TEXT NOT NULL,
    usage_count INTEGER DEFAULT 0,
    updated_at TIMESTAMPTZ DEFAULT now()
);
`

// NewPostgresBundle creates a Bundle backed by PostgreSQL at the given DSN.
func NewPostgresBundle(ctx context.Context, dsn string) (*Bundle, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Runs:     &PostgresRunStore{pool: pool},
		Events:   &PostgresEventStore{pool: pool},
		Patterns: &PostgresPatternStore{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

// =============================================================================
// PostgresRunStore
// =============================================================================

type PostgresRunStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresRunStore) CreateRun(query, configJSON string) (string, error) {
	id := generateID()
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO runs (id, query, config_json) VALUES ($1, $2, $3)`,
		id, query, configJSON,
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

func (s *PostgresRunStore) UpdateRunStatus(id, status string) error {
	var err error
	ctx := context.Background()
	if status == "done" || status == "failed" {
		_, err = s.pool.Exec(ctx, `UPDATE runs SET status = $1, finished_at = now() WHERE id = $2`, status, id)
	} else {
		_, err = s.pool.Exec(ctx, `UPDATE runs SET status = $1 WHERE id = $2`, status, id)
	}
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) SetRunAnswer(id, answer string) error {
	_, err := s.pool.Exec(context.Background(), `UPDATE runs SET answer = $1 WHERE id = $2`, answer, id)
	if err != nil {
		return fmt.Errorf("set run answer: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) CreateTask(runID, description string) (string, error) {
	id := generateID()
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO run_tasks (id, run_id, description) VALUES ($1, $2, $3)`,
		id, runID, description,
	)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return id, nil
}

func (s *PostgresRunStore) UpdateTaskStatus(id, status string) error {
	var err error
	ctx := context.Background()
	if status == "done" || status == "failed" {
		_, err = s.pool.Exec(ctx, `UPDATE run_tasks SET status = $1, finished_at = now() WHERE id = $2`, status, id)
	} else {
		_, err = s.pool.Exec(ctx, `UPDATE run_tasks SET status = $1 WHERE id = $2`, status, id)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) CreateSubtask(taskID, description, clustersJSON string) (string, error) {
	id := generateID()
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO run_subtasks (id, task_id, description, clusters_json) VALUES ($1, $2, $3, $4)`,
		id, taskID, description, clustersJSON,
	)
	if err != nil {
		return "", fmt.Errorf("create subtask: %w", err)
	}
	return id, nil
}

func (s *PostgresRunStore) UpdateSubtaskStatus(id, status string, resultSummary *string) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE run_subtasks SET status = $1, result_summary = COALESCE($2, result_summary) WHERE id = $3`,
		status, resultSummary, id,
	)
	if err != nil {
		return fmt.Errorf("update subtask status: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) GetTasksByRun(runID string) ([]TaskRecord, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, run_id, description, status, created_at, finished_at FROM run_tasks WHERE run_id = $1 ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var finished *time.Time
		if err := rows.Scan(&t.ID, &t.RunID, &t.Description, &t.Status, &t.CreatedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.FinishedAt = finished
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresRunStore) GetSubtasksByTask(taskID string) ([]SubtaskRecord, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, task_id, description, clusters_json, status, result_summary, created_at FROM run_subtasks WHERE task_id = $1 ORDER BY created_at`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("get subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []SubtaskRecord
	for rows.Next() {
		var st SubtaskRecord
		var clusters, summary *string
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Description, &clusters, &st.Status, &summary, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		if clusters != nil {
			st.ClustersJSON = *clusters
		}
		st.ResultSummary = summary
		subtasks = append(subtasks, st)
	}
	return subtasks, rows.Err()
}

func (s *PostgresRunStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, query, status, answer, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Query, &r.Status, &r.Answer, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// PostgresEventStore
// =============================================================================

type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresEventStore) StoreEvent(runID, eventType, dataJSON string) (string, error) {
	id := generateID()
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO run_events (id, run_id, event_type, data_json) VALUES ($1, $2, $3, $4)`,
		id, runID, eventType, dataJSON,
	)
	if err != nil {
		return "", fmt.Errorf("store event: %w", err)
	}
	return id, nil
}

func (s *PostgresEventStore) GetEventsByRun(runID string) ([]RunEvent, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, run_id, event_type, data_json, created_at FROM run_events WHERE run_id = $1 ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var data *string
		if err := rows.Scan(&e.ID, &e.RunID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if data != nil {
			e.DataJSON = *data
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// PostgresPatternStore
// =============================================================================

type PostgresPatternStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresPatternStore) SavePattern(p memory.Pattern) error {
	examplesJSON, err := json.Marshal(p.Examples)
	if err != nil {
		return fmt.Errorf("marshal examples: %w", err)
	}
	_, err = s.pool.Exec(context.Background(),
		`INSERT INTO patterns (task_type, examples_json, usage_count, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (task_type) DO UPDATE SET examples_json = EXCLUDED.examples_json, usage_count = EXCLUDED.usage_count, updated_at = now()`,
		p.TaskType, string(examplesJSON), p.UsageCount,
	)
	if err != nil {
		return fmt.Errorf("save pattern: %w", err)
	}
	return nil
}

func (s *PostgresPatternStore) LoadPatterns() ([]memory.Pattern, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT task_type, examples_json, usage_count FROM patterns ORDER BY updated_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	defer rows.Close()

	patterns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Pattern, error) {
		var p memory.Pattern
		var examplesJSON string
		if err := row.Scan(&p.TaskType, &examplesJSON, &p.UsageCount); err != nil {
			return p, err
		}
		if err := json.Unmarshal([]byte(examplesJSON), &p.Examples); err != nil {
			return p, fmt.Errorf("unmarshal examples for '%s': %w", p.TaskType, err)
		}
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect patterns: %w", err)
	}
	return patterns, nil
}

func (s *PostgresPatternStore) DeletePattern(taskType string) error {
	_, err := s.pool.Exec(context.Background(), `DELETE FROM patterns WHERE task_type = $1`, taskType)
	if err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	return nil
}
