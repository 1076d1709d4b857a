package streamers

// ChatHandler defines the interface for handling chat I/O
// Different implementations can handle stdout/stdin, SSE, websocket, etc.
type ChatHandler interface {
	// Welcome displays the initial welcome message when chat starts
	Welcome(agentName string, modelName string)

	// AwaitClientAnswer prompts for and reads user input, returns the input and any error
	AwaitClientAnswer() (string, error)

	// Goodbye displays the farewell message when chat ends
	Goodbye()

	// Error displays an error message
	Error(err error)

	// Thinking is called when the agent starts processing
	Thinking()

	// CallingTool is called when the agent invokes a tool
	CallingTool(toolName string, payload string)

	// ToolComplete is called when a tool finishes execution
	ToolComplete(toolName string)

	// PublishReasoningChunk is called for each chunk of the REASONING as it streams
	PublishReasoningChunk(chunk string)

	// FinishReasoning is called when the REASONING block is complete
	FinishReasoning()

	// PublishAnswerChunk is called for each chunk of the ANSWER as it streams
	PublishAnswerChunk(chunk string)

	// FinishAnswer is called when the answer is complete (to print newlines, stop spinner, etc)
	FinishAnswer()
}

// RunHandler defines the interface for handling coordination run events
type RunHandler interface {
	// Run lifecycle
	RunStarted(runID string, query string)
	PlanCreated(runID string, taskDescriptions []string)
	RunCompleted(runID string, status string, answer string)

	// Task lifecycle
	TaskStarted(taskID string, description string)
	TaskCompleted(taskID string, description string)
	TaskFailed(taskID string, description string, reason string)

	// Subtask lifecycle
	SubtaskStarted(subtaskID string, description string, clusters []string)
	SubtaskCompleted(subtaskID string, status string, summary string)
	ClustersSelected(subtaskID string, clusters []string, provenance string)

	// Escalation events
	StagnationDetected(subtaskID string, attempts int)
	JudgeVerdict(subtaskID string, verdict string, reason string)
	PatternRecorded(taskType string, actionCount int)

	// ExecutorHandler returns the ChatHandler used for streaming executor output
	ExecutorHandler() ChatHandler
}
