package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"maestro/memory"
)

// NewMemoryBundle creates a Bundle backed by in-process maps. Used when no
// storage block is configured and for tests.
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Runs:     NewMemoryRunStore(),
		Events:   NewMemoryEventStore(),
		Patterns: NewMemoryPatternStore(),
	}
}

// =============================================================================
// MemoryRunStore
// =============================================================================

type MemoryRunStore struct {
	mu       sync.RWMutex
	runs     map[string]*RunRecord
	tasks    map[string]*TaskRecord
	subtasks map[string]*SubtaskRecord
	seq      int
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs:     make(map[string]*RunRecord),
		tasks:    make(map[string]*TaskRecord),
		subtasks: make(map[string]*SubtaskRecord),
	}
}

// nextTime produces strictly increasing timestamps so ordering by creation
// time is stable even within one clock tick.
func (s *MemoryRunStore) nextTime() time.Time {
	s.seq++
	return time.Now().UTC().Add(time.Duration(s.seq) * time.Microsecond)
}

func (s *MemoryRunStore) CreateRun(query, configJSON string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := generateID()
	s.runs[id] = &RunRecord{
		ID:        id,
		Query:     query,
		Status:    "running",
		StartedAt: s.nextTime(),
	}
	return id, nil
}

func (s *MemoryRunStore) UpdateRunStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run '%s' not found", id)
	}
	r.Status = status
	if status == "done" || status == "failed" {
		now := time.Now().UTC()
		r.FinishedAt = &now
	}
	return nil
}

func (s *MemoryRunStore) SetRunAnswer(id, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run '%s' not found", id)
	}
	r.Answer = &answer
	return nil
}

func (s *MemoryRunStore) CreateTask(runID, description string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return "", fmt.Errorf("run '%s' not found", runID)
	}
	id := generateID()
	s.tasks[id] = &TaskRecord{
		ID:          id,
		RunID:       runID,
		Description: description,
		Status:      "pending",
		CreatedAt:   s.nextTime(),
	}
	return id, nil
}

func (s *MemoryRunStore) UpdateTaskStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task '%s' not found", id)
	}
	t.Status = status
	if status == "done" || status == "failed" {
		now := time.Now().UTC()
		t.FinishedAt = &now
	}
	return nil
}

func (s *MemoryRunStore) CreateSubtask(taskID, description, clustersJSON string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return "", fmt.Errorf("task '%s' not found", taskID)
	}
	id := generateID()
	s.subtasks[id] = &SubtaskRecord{
		ID:           id,
		TaskID:       taskID,
		Description:  description,
		ClustersJSON: clustersJSON,
		Status:       "pending",
		CreatedAt:    s.nextTime(),
	}
	return id, nil
}

func (s *MemoryRunStore) UpdateSubtaskStatus(id, status string, resultSummary *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subtasks[id]
	if !ok {
		return fmt.Errorf("subtask '%s' not found", id)
	}
	st.Status = status
	if resultSummary != nil {
		st.ResultSummary = resultSummary
	}
	return nil
}

func (s *MemoryRunStore) GetTasksByRun(runID string) ([]TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []TaskRecord
	for _, t := range s.tasks {
		if t.RunID == runID {
			tasks = append(tasks, *t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

func (s *MemoryRunStore) GetSubtasksByTask(taskID string) ([]SubtaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subtasks []SubtaskRecord
	for _, st := range s.subtasks {
		if st.TaskID == taskID {
			subtasks = append(subtasks, *st)
		}
	}
	sort.Slice(subtasks, func(i, j int) bool { return subtasks[i].CreatedAt.Before(subtasks[j].CreatedAt) })
	return subtasks, nil
}

func (s *MemoryRunStore) ListRuns(limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var runs []RunRecord
	for _, r := range s.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// =============================================================================
// MemoryEventStore
// =============================================================================

type MemoryEventStore struct {
	mu     sync.RWMutex
	events []RunEvent
	seq    int
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

func (s *MemoryEventStore) StoreEvent(runID, eventType, dataJSON string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := generateID()
	s.events = append(s.events, RunEvent{
		ID:        id,
		RunID:     runID,
		EventType: eventType,
		DataJSON:  dataJSON,
		CreatedAt: time.Now().UTC().Add(time.Duration(s.seq) * time.Microsecond),
	})
	return id, nil
}

func (s *MemoryEventStore) GetEventsByRun(runID string) ([]RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RunEvent
	for _, e := range s.events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// MemoryPatternStore
// =============================================================================

type MemoryPatternStore struct {
	mu       sync.RWMutex
	patterns map[string]memory.Pattern
	order    []string
}

func NewMemoryPatternStore() *MemoryPatternStore {
	return &MemoryPatternStore{patterns: make(map[string]memory.Pattern)}
}

func (s *MemoryPatternStore) SavePattern(p memory.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patterns[p.TaskType]; !ok {
		s.order = append(s.order, p.TaskType)
	}
	s.patterns[p.TaskType] = p
	return nil
}

func (s *MemoryPatternStore) LoadPatterns() ([]memory.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]memory.Pattern, 0, len(s.patterns))
	for _, taskType := range s.order {
		if p, ok := s.patterns[taskType]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryPatternStore) DeletePattern(taskType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.patterns, taskType)
	for i, t := range s.order {
		if t == taskType {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
