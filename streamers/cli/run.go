package cli

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"maestro/streamers"
)

// RunHandler implements streamers.RunHandler for CLI output
type RunHandler struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
}

// NewRunHandler creates a new CLI run handler
func NewRunHandler() *RunHandler {
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	return &RunHandler{renderer: renderer}
}

func (s *RunHandler) RunStarted(runID string, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Run: %s ===%s\n", ColorBold, ColorCyan, truncate(query, 100), ColorReset)
	fmt.Printf("%sRun ID: %s%s\n\n", ColorGray, runID, ColorReset)
}

func (s *RunHandler) PlanCreated(runID string, taskDescriptions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%sPlan:%s\n", ColorBold, ColorReset)
	for i, desc := range taskDescriptions {
		fmt.Printf("%s  %d. %s%s\n", ColorGray, i+1, desc, ColorReset)
	}
	fmt.Println()
}

func (s *RunHandler) RunCompleted(runID string, status string, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	color := ColorGreen
	if status != "done" {
		color = ColorRed
	}
	fmt.Printf("\n%s%s=== Run %s ===%s\n", ColorBold, color, status, ColorReset)
	if answer == "" {
		return
	}

	// Render the final answer as markdown
	rendered := answer
	if s.renderer != nil {
		if out, err := s.renderer.Render(answer); err == nil {
			rendered = strings.TrimSpace(out)
		}
	}
	fmt.Printf("%s\n", rendered)
}

func (s *RunHandler) TaskStarted(taskID string, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s--- Task: %s ---%s\n", ColorBold, ColorCyan, truncate(description, 100), ColorReset)
}

func (s *RunHandler) TaskCompleted(taskID string, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s[Task completed: %s]%s\n", ColorBold, ColorGreen, truncate(description, 80), ColorReset)
}

func (s *RunHandler) TaskFailed(taskID string, description string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s[Task FAILED: %s (%s)]%s\n", ColorBold, ColorRed, truncate(description, 80), reason, ColorReset)
}

func (s *RunHandler) SubtaskStarted(subtaskID string, description string, clusters []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n  %s> %s%s\n", ColorBold, truncate(description, 90), ColorReset)
	if len(clusters) > 0 {
		fmt.Printf("  %sclusters: %s%s\n", ColorGray, strings.Join(clusters, ", "), ColorReset)
	}
}

func (s *RunHandler) SubtaskCompleted(subtaskID string, status string, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	color := ColorGreen
	if status != "done" {
		color = ColorRed
	}
	fmt.Printf("  %s[%s]%s %s\n", color, status, ColorReset, truncate(summary, 120))
}

func (s *RunHandler) ClustersSelected(subtaskID string, clusters []string, provenance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  %sselected %s (%s)%s\n", ColorGray, strings.Join(clusters, ", "), provenance, ColorReset)
}

func (s *RunHandler) StagnationDetected(subtaskID string, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  %s%sStagnation after %d attempts, escalating to judge...%s\n", ColorBold, ColorOrange, attempts, ColorReset)
}

func (s *RunHandler) JudgeVerdict(subtaskID string, verdict string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  %sJudge: %s (%s)%s\n", ColorOrange, verdict, truncate(reason, 100), ColorReset)
}

func (s *RunHandler) PatternRecorded(taskType string, actionCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("  %sRemembered %d-step pattern for '%s'%s\n", ColorGray, actionCount, taskType, ColorReset)
}

func (s *RunHandler) ExecutorHandler() streamers.ChatHandler {
	return &executorHandler{mu: &s.mu}
}

// truncate shortens a string to max length, adding ellipsis if needed
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// executorHandler implements streamers.ChatHandler for executor runs
// Shows executor output indented in light brown
type executorHandler struct {
	mu               *sync.Mutex
	reasoningStarted bool
	answerBuffer     strings.Builder
}

func (s *executorHandler) Welcome(agentName, modelName string) {
	// Not used during runs
}

func (s *executorHandler) AwaitClientAnswer() (string, error) {
	// Not used during runs - the executor works autonomously
	return "", nil
}

func (s *executorHandler) Goodbye() {
	// Not used during runs
}

func (s *executorHandler) Error(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s    [executor] Error: %v%s\n", ColorLightBrown, err, ColorReset)
}

func (s *executorHandler) Thinking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s    [executor] Thinking...%s\n", ColorLightBrown, ColorReset)
}

func (s *executorHandler) CallingTool(toolName, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s    [executor] Calling %s...%s\n", ColorLightBrown, toolName, ColorReset)
}

func (s *executorHandler) ToolComplete(toolName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s    [executor] %s complete%s\n", ColorLightBrown, toolName, ColorReset)
}

func (s *executorHandler) PublishReasoningChunk(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reasoningStarted {
		fmt.Printf("%s    [executor] Reasoning: ", ColorLightBrown)
		s.reasoningStarted = true
	}
	fmt.Printf("%s%s", ColorItalic, chunk)
}

func (s *executorHandler) FinishReasoning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reasoningStarted {
		fmt.Printf("%s\n", ColorReset)
		s.reasoningStarted = false
	}
}

func (s *executorHandler) PublishAnswerChunk(chunk string) {
	s.answerBuffer.WriteString(chunk)
}

func (s *executorHandler) FinishAnswer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	answer := s.answerBuffer.String()
	if answer != "" {
		fmt.Printf("%s    [executor] Answer: %s%s\n", ColorLightBrown, truncate(answer, 200), ColorReset)
	}
	s.answerBuffer.Reset()
}
