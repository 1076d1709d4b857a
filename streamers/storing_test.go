package streamers_test

import (
	"errors"

	"maestro/store"
	"maestro/streamers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// nullRunHandler is an inner handler that does nothing.
type nullRunHandler struct {
	chat nullChatHandler
}

func (h *nullRunHandler) RunStarted(runID, query string)                       {}
func (h *nullRunHandler) PlanCreated(runID string, taskDescriptions []string)  {}
func (h *nullRunHandler) RunCompleted(runID, status, answer string)            {}
func (h *nullRunHandler) TaskStarted(taskID, description string)               {}
func (h *nullRunHandler) TaskCompleted(taskID, description string)             {}
func (h *nullRunHandler) TaskFailed(taskID, description, reason string)        {}
func (h *nullRunHandler) SubtaskStarted(subtaskID, description string, clusters []string) {}
func (h *nullRunHandler) SubtaskCompleted(subtaskID, status, summary string)   {}
func (h *nullRunHandler) ClustersSelected(subtaskID string, clusters []string, provenance string) {
}
func (h *nullRunHandler) StagnationDetected(subtaskID string, attempts int)   {}
func (h *nullRunHandler) JudgeVerdict(subtaskID, verdict, reason string)      {}
func (h *nullRunHandler) PatternRecorded(taskType string, actionCount int)    {}
func (h *nullRunHandler) ExecutorHandler() streamers.ChatHandler              { return &h.chat }

type nullChatHandler struct{}

func (nullChatHandler) Welcome(agentName, modelName string)  {}
func (nullChatHandler) AwaitClientAnswer() (string, error)   { return "", nil }
func (nullChatHandler) Goodbye()                             {}
func (nullChatHandler) Error(err error)                      {}
func (nullChatHandler) Thinking()                            {}
func (nullChatHandler) CallingTool(toolName, payload string) {}
func (nullChatHandler) ToolComplete(toolName string)         {}
func (nullChatHandler) PublishReasoningChunk(chunk string)   {}
func (nullChatHandler) FinishReasoning()                     {}
func (nullChatHandler) PublishAnswerChunk(chunk string)      {}
func (nullChatHandler) FinishAnswer()                        {}

var _ = Describe("StoringRunHandler", func() {
	var (
		events  *store.MemoryEventStore
		handler *streamers.StoringRunHandler
	)

	BeforeEach(func() {
		events = store.NewMemoryEventStore()
		handler = streamers.NewStoringRunHandler(&nullRunHandler{}, events)
	})

	eventTypes := func(runID string) []string {
		stored, err := events.GetEventsByRun(runID)
		Expect(err).NotTo(HaveOccurred())
		out := make([]string, len(stored))
		for i, e := range stored {
			out[i] = e.EventType
		}
		return out
	}

	It("persists the run lifecycle in order", func() {
		handler.RunStarted("run-1", "find the answer")
		handler.PlanCreated("run-1", []string{"task one"})
		handler.TaskStarted("t1", "task one")
		handler.SubtaskStarted("s1", "step one", []string{"WEB"})
		handler.ClustersSelected("s1", []string{"WEB"}, "model")
		handler.SubtaskCompleted("s1", "done", "found it")
		handler.TaskCompleted("t1", "task one")
		handler.RunCompleted("run-1", "done", "the answer")

		Expect(eventTypes("run-1")).To(Equal([]string{
			"run_started",
			"plan_created",
			"task_started",
			"subtask_started",
			"clusters_selected",
			"subtask_completed",
			"task_completed",
			"run_completed",
		}))
	})

	It("serializes event data as JSON", func() {
		handler.RunStarted("run-1", "q")
		handler.JudgeVerdict("s1", "rewrite", "looping on the same action")

		stored, _ := events.GetEventsByRun("run-1")
		Expect(stored[1].DataJSON).To(MatchJSON(`{"subtask_id": "s1", "verdict": "rewrite", "reason": "looping on the same action"}`))
	})

	It("drops events before a run has started", func() {
		handler.TaskStarted("t1", "early")
		handler.RunStarted("run-1", "q")

		Expect(eventTypes("run-1")).To(Equal([]string{"run_started"}))
	})

	It("stores executor-level events through the chat handler", func() {
		handler.RunStarted("run-1", "q")
		chat := handler.ExecutorHandler()
		chat.Thinking()
		chat.CallingTool("calculator", `{"expression": "2+2"}`)
		chat.ToolComplete("calculator")
		chat.PublishAnswerChunk("4")
		chat.FinishAnswer()
		chat.Error(errors.New("tool exploded"))

		Expect(eventTypes("run-1")).To(Equal([]string{
			"run_started",
			"executor_thinking",
			"executor_calling_tool",
			"executor_tool_complete",
			"executor_answer",
			"executor_error",
		}))
	})
})
