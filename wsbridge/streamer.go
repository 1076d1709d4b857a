package wsbridge

import (
	"fmt"
	"log"
	"sync"
	"time"

	"maestro/streamers"
)

// RunEventHandler implements streamers.RunHandler by sending every run event
// over the WebSocket connection that requested the run.
type RunEventHandler struct {
	conn *Conn

	mu      sync.Mutex
	runID   string
	runIDCh chan string
}

// NewRunEventHandler creates a WebSocket-backed run handler.
func NewRunEventHandler(conn *Conn) *RunEventHandler {
	return &RunEventHandler{
		conn:    conn,
		runIDCh: make(chan string, 1),
	}
}

// RunID returns the run ID (available after RunStarted fires).
func (h *RunEventHandler) RunID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runID
}

// WaitForRunID blocks until RunStarted fires and the run ID is known, or
// times out.
func (h *RunEventHandler) WaitForRunID(timeout time.Duration) (string, error) {
	select {
	case id := <-h.runIDCh:
		return id, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("timeout waiting for run to start")
	}
}

func (h *RunEventHandler) sendEvent(eventType string, data any) {
	h.mu.Lock()
	runID := h.runID
	h.mu.Unlock()

	env, err := NewEvent(TypeRunEvent, &RunEventPayload{
		RunID:     runID,
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		log.Printf("RunEventHandler: marshal event: %v", err)
		return
	}
	if err := h.conn.SendEvent(env); err != nil {
		log.Printf("RunEventHandler: send event: %v", err)
	}
}

func (h *RunEventHandler) RunStarted(runID string, query string) {
	h.mu.Lock()
	h.runID = runID
	h.mu.Unlock()

	select {
	case h.runIDCh <- runID:
	default:
	}

	h.sendEvent("run_started", map[string]any{"query": query})
}

func (h *RunEventHandler) PlanCreated(runID string, taskDescriptions []string) {
	h.sendEvent("plan_created", map[string]any{"tasks": taskDescriptions})
}

func (h *RunEventHandler) RunCompleted(runID string, status string, answer string) {
	h.sendEvent("run_completed", map[string]any{"status": status, "answer": answer})
}

func (h *RunEventHandler) TaskStarted(taskID string, description string) {
	h.sendEvent("task_started", map[string]any{"taskId": taskID, "description": description})
}

func (h *RunEventHandler) TaskCompleted(taskID string, description string) {
	h.sendEvent("task_completed", map[string]any{"taskId": taskID, "description": description})
}

func (h *RunEventHandler) TaskFailed(taskID string, description string, reason string) {
	h.sendEvent("task_failed", map[string]any{"taskId": taskID, "description": description, "reason": reason})
}

func (h *RunEventHandler) SubtaskStarted(subtaskID string, description string, clusters []string) {
	h.sendEvent("subtask_started", map[string]any{"subtaskId": subtaskID, "description": description, "clusters": clusters})
}

func (h *RunEventHandler) SubtaskCompleted(subtaskID string, status string, summary string) {
	h.sendEvent("subtask_completed", map[string]any{"subtaskId": subtaskID, "status": status, "summary": summary})
}

func (h *RunEventHandler) ClustersSelected(subtaskID string, clusters []string, provenance string) {
	h.sendEvent("clusters_selected", map[string]any{"subtaskId": subtaskID, "clusters": clusters, "provenance": provenance})
}

func (h *RunEventHandler) StagnationDetected(subtaskID string, attempts int) {
	h.sendEvent("stagnation_detected", map[string]any{"subtaskId": subtaskID, "attempts": attempts})
}

func (h *RunEventHandler) JudgeVerdict(subtaskID string, verdict string, reason string) {
	h.sendEvent("judge_verdict", map[string]any{"subtaskId": subtaskID, "verdict": verdict, "reason": reason})
}

func (h *RunEventHandler) PatternRecorded(taskType string, actionCount int) {
	h.sendEvent("pattern_recorded", map[string]any{"taskType": taskType, "actionCount": actionCount})
}

func (h *RunEventHandler) ExecutorHandler() streamers.ChatHandler {
	return &wsExecutorHandler{parent: h}
}
