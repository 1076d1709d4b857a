package streamers

import (
	"encoding/json"
	"log"
	"sync"

	"maestro/store"
)

// StoringRunHandler is a RunHandler decorator that persists every event to
// the EventStore, then delegates to an inner handler (e.g. CLI or WebSocket).
type StoringRunHandler struct {
	inner  RunHandler
	events store.EventStore

	mu    sync.Mutex
	runID string
}

// NewStoringRunHandler wraps an existing RunHandler with event persistence.
func NewStoringRunHandler(inner RunHandler, events store.EventStore) *StoringRunHandler {
	return &StoringRunHandler{inner: inner, events: events}
}

// storeEvent persists an event, logging (not failing) on error.
func (h *StoringRunHandler) storeEvent(eventType string, data map[string]any) {
	h.mu.Lock()
	runID := h.runID
	h.mu.Unlock()
	if runID == "" {
		return
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		log.Printf("StoringRunHandler: marshal event data: %v", err)
		return
	}

	if _, err := h.events.StoreEvent(runID, eventType, string(dataJSON)); err != nil {
		log.Printf("StoringRunHandler: store event: %v", err)
	}
}

func (h *StoringRunHandler) RunStarted(runID string, query string) {
	h.mu.Lock()
	h.runID = runID
	h.mu.Unlock()

	h.storeEvent("run_started", map[string]any{"query": query})
	h.inner.RunStarted(runID, query)
}

func (h *StoringRunHandler) PlanCreated(runID string, taskDescriptions []string) {
	h.storeEvent("plan_created", map[string]any{"tasks": taskDescriptions})
	h.inner.PlanCreated(runID, taskDescriptions)
}

func (h *StoringRunHandler) RunCompleted(runID string, status string, answer string) {
	h.storeEvent("run_completed", map[string]any{"status": status, "answer": answer})
	h.inner.RunCompleted(runID, status, answer)
}

func (h *StoringRunHandler) TaskStarted(taskID string, description string) {
	h.storeEvent("task_started", map[string]any{"task_id": taskID, "description": description})
	h.inner.TaskStarted(taskID, description)
}

func (h *StoringRunHandler) TaskCompleted(taskID string, description string) {
	h.storeEvent("task_completed", map[string]any{"task_id": taskID, "description": description})
	h.inner.TaskCompleted(taskID, description)
}

func (h *StoringRunHandler) TaskFailed(taskID string, description string, reason string) {
	h.storeEvent("task_failed", map[string]any{"task_id": taskID, "description": description, "reason": reason})
	h.inner.TaskFailed(taskID, description, reason)
}

func (h *StoringRunHandler) SubtaskStarted(subtaskID string, description string, clusters []string) {
	h.storeEvent("subtask_started", map[string]any{"subtask_id": subtaskID, "description": description, "clusters": clusters})
	h.inner.SubtaskStarted(subtaskID, description, clusters)
}

func (h *StoringRunHandler) SubtaskCompleted(subtaskID string, status string, summary string) {
	h.storeEvent("subtask_completed", map[string]any{"subtask_id": subtaskID, "status": status, "summary": summary})
	h.inner.SubtaskCompleted(subtaskID, status, summary)
}

func (h *StoringRunHandler) ClustersSelected(subtaskID string, clusters []string, provenance string) {
	h.storeEvent("clusters_selected", map[string]any{"subtask_id": subtaskID, "clusters": clusters, "provenance": provenance})
	h.inner.ClustersSelected(subtaskID, clusters, provenance)
}

func (h *StoringRunHandler) StagnationDetected(subtaskID string, attempts int) {
	h.storeEvent("stagnation_detected", map[string]any{"subtask_id": subtaskID, "attempts": attempts})
	h.inner.StagnationDetected(subtaskID, attempts)
}

func (h *StoringRunHandler) JudgeVerdict(subtaskID string, verdict string, reason string) {
	h.storeEvent("judge_verdict", map[string]any{"subtask_id": subtaskID, "verdict": verdict, "reason": reason})
	h.inner.JudgeVerdict(subtaskID, verdict, reason)
}

func (h *StoringRunHandler) PatternRecorded(taskType string, actionCount int) {
	h.storeEvent("pattern_recorded", map[string]any{"task_type": taskType, "action_count": actionCount})
	h.inner.PatternRecorded(taskType, actionCount)
}

func (h *StoringRunHandler) ExecutorHandler() ChatHandler {
	return &storingChatHandler{
		inner:  h.inner.ExecutorHandler(),
		parent: h,
	}
}

// =============================================================================
// storingChatHandler wraps ChatHandler for executor-level events
// =============================================================================

type storingChatHandler struct {
	inner  ChatHandler
	parent *StoringRunHandler
}

func (c *storingChatHandler) Welcome(agentName string, modelName string) {
	c.inner.Welcome(agentName, modelName)
}

func (c *storingChatHandler) AwaitClientAnswer() (string, error) {
	return c.inner.AwaitClientAnswer()
}

func (c *storingChatHandler) Goodbye() {
	c.inner.Goodbye()
}

func (c *storingChatHandler) Error(err error) {
	c.parent.storeEvent("executor_error", map[string]any{"error": err.Error()})
	c.inner.Error(err)
}

func (c *storingChatHandler) Thinking() {
	c.parent.storeEvent("executor_thinking", map[string]any{})
	c.inner.Thinking()
}

func (c *storingChatHandler) CallingTool(toolName string, payload string) {
	c.parent.storeEvent("executor_calling_tool", map[string]any{"tool": toolName, "payload": payload})
	c.inner.CallingTool(toolName, payload)
}

func (c *storingChatHandler) ToolComplete(toolName string) {
	c.parent.storeEvent("executor_tool_complete", map[string]any{"tool": toolName})
	c.inner.ToolComplete(toolName)
}

func (c *storingChatHandler) PublishReasoningChunk(chunk string) {
	// Reasoning chunks are high-volume; we don't store individual chunks.
	c.inner.PublishReasoningChunk(chunk)
}

func (c *storingChatHandler) FinishReasoning() {
	c.inner.FinishReasoning()
}

func (c *storingChatHandler) PublishAnswerChunk(chunk string) {
	// Answer chunks are high-volume; we don't store individual chunks.
	c.inner.PublishAnswerChunk(chunk)
}

func (c *storingChatHandler) FinishAnswer() {
	c.parent.storeEvent("executor_answer", map[string]any{})
	c.inner.FinishAnswer()
}
