package store

import (
	"time"

	"maestro/memory"
)

// Bundle holds all stores for tracking coordination runs.
type Bundle struct {
	Runs     RunStore
	Events   EventStore
	Patterns PatternStore
	closer   func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// RunStore tracks coordination runs and their task/subtask hierarchy
type RunStore interface {
	CreateRun(query, configJSON string) (id string, err error)
	UpdateRunStatus(id, status string) error
	SetRunAnswer(id, answer string) error
	CreateTask(runID, description string) (id string, err error)
	UpdateTaskStatus(id, status string) error
	CreateSubtask(taskID, description, clustersJSON string) (id string, err error)
	UpdateSubtaskStatus(id, status string, resultSummary *string) error
	GetTasksByRun(runID string) ([]TaskRecord, error)
	GetSubtasksByTask(taskID string) ([]SubtaskRecord, error)
	ListRuns(limit int) ([]RunRecord, error)
}

// RunRecord describes one coordination run
type RunRecord struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Status     string     `json:"status"`
	Answer     *string    `json:"answer,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// TaskRecord is one planner-created task within a run
type TaskRecord struct {
	ID          string     `json:"id"`
	RunID       string     `json:"runId"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// SubtaskRecord is one executor-dispatched subtask within a task
type SubtaskRecord struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"taskId"`
	Description   string    `json:"description"`
	ClustersJSON  string    `json:"clustersJson"`
	Status        string    `json:"status"`
	ResultSummary *string   `json:"resultSummary,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// EventStore records the append-only event log of a run
type EventStore interface {
	StoreEvent(runID, eventType, dataJSON string) (id string, err error)
	GetEventsByRun(runID string) ([]RunEvent, error)
}

// RunEvent is a single logged event within a run
type RunEvent struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	EventType string    `json:"eventType"`
	DataJSON  string    `json:"dataJson"`
	CreatedAt time.Time `json:"createdAt"`
}

// PatternStore persists pattern memory across processes. It satisfies
// memory.Persister.
type PatternStore interface {
	SavePattern(p memory.Pattern) error
	LoadPatterns() ([]memory.Pattern, error)
	DeletePattern(taskType string) error
}
