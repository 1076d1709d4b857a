package wsbridge

import (
	"strings"
	"sync"
)

// wsExecutorHandler implements streamers.ChatHandler for executor output.
// Individual stream chunks are not forwarded; the accumulated answer is sent
// as a single event when it completes.
type wsExecutorHandler struct {
	parent *RunEventHandler

	mu     sync.Mutex
	answer strings.Builder
}

func (c *wsExecutorHandler) Welcome(agentName string, modelName string) {}

func (c *wsExecutorHandler) AwaitClientAnswer() (string, error) {
	return "", nil
}

func (c *wsExecutorHandler) Goodbye() {}

func (c *wsExecutorHandler) Error(err error) {
	c.parent.sendEvent("executor_error", map[string]any{"error": err.Error()})
}

func (c *wsExecutorHandler) Thinking() {
	c.parent.sendEvent("executor_thinking", nil)
}

func (c *wsExecutorHandler) CallingTool(toolName string, payload string) {
	c.parent.sendEvent("executor_calling_tool", map[string]any{"tool": toolName, "payload": payload})
}

func (c *wsExecutorHandler) ToolComplete(toolName string) {
	c.parent.sendEvent("executor_tool_complete", map[string]any{"tool": toolName})
}

func (c *wsExecutorHandler) PublishReasoningChunk(chunk string) {
	// High-volume streaming chunks are not sent over WS individually
}

func (c *wsExecutorHandler) FinishReasoning() {}

func (c *wsExecutorHandler) PublishAnswerChunk(chunk string) {
	c.mu.Lock()
	c.answer.WriteString(chunk)
	c.mu.Unlock()
}

func (c *wsExecutorHandler) FinishAnswer() {
	c.mu.Lock()
	answer := c.answer.String()
	c.answer.Reset()
	c.mu.Unlock()
	if answer != "" {
		c.parent.sendEvent("executor_answer", map[string]any{"answer": answer})
	}
}
