package agent

import (
	"context"

	"maestro/aitools"
	"maestro/cluster"
	"maestro/config"
	"maestro/llm"
	"maestro/memory"
	"maestro/streamers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingRunHandler captures escalation events for assertions.
type recordingRunHandler struct {
	stagnationAttempts []int
	verdicts           []string
	completedStatuses  []string
	completedSummaries []string
}

func (h *recordingRunHandler) RunStarted(runID, query string)                          {}
func (h *recordingRunHandler) PlanCreated(runID string, taskDescriptions []string)     {}
func (h *recordingRunHandler) RunCompleted(runID, status, answer string)               {}
func (h *recordingRunHandler) TaskStarted(taskID, description string)                  {}
func (h *recordingRunHandler) TaskCompleted(taskID, description string)                {}
func (h *recordingRunHandler) TaskFailed(taskID, description, reason string)           {}
func (h *recordingRunHandler) SubtaskStarted(id, description string, clusters []string)         {}
func (h *recordingRunHandler) ClustersSelected(id string, clusters []string, provenance string) {}
func (h *recordingRunHandler) PatternRecorded(taskType string, actionCount int)                 {}

func (h *recordingRunHandler) SubtaskCompleted(id, status, summary string) {
	h.completedStatuses = append(h.completedStatuses, status)
	h.completedSummaries = append(h.completedSummaries, summary)
}

func (h *recordingRunHandler) StagnationDetected(id string, attempts int) {
	h.stagnationAttempts = append(h.stagnationAttempts, attempts)
}

func (h *recordingRunHandler) JudgeVerdict(id, verdict, reason string) {
	h.verdicts = append(h.verdicts, verdict)
}

func (h *recordingRunHandler) ExecutorHandler() streamers.ChatHandler {
	return silentChatHandler{}
}

var _ = Describe("Coordinator subtask loop", func() {
	var (
		planner  *scriptedProvider
		handler  *recordingRunHandler
		registry *cluster.Registry
	)

	// one planner round-trip each for cluster selection, instruction
	// formulation, and evaluation
	attemptResponses := func() []string {
		return []string{
			`{"clusters": ["MATH"], "reasoning": "arithmetic"}`,
			`{"instruction": "use the calculator"}`,
			`{"completed": "retry", "reason": "no figure yet", "new_information": true}`,
		}
	}

	newCoordinator := func(plannerResponses []string, executorResponses []string) *Coordinator {
		planner = &scriptedProvider{responses: plannerResponses}
		handler = &recordingRunHandler{}
		cfg := &config.CoordinatorConfig{}
		cfg.Defaults()
		executor := &Executor{
			provider:  &scriptedProvider{responses: executorResponses},
			model:     "test-model",
			registry:  registry,
			artifacts: aitools.NewArtifactStore(),
			capture:   aitools.DefaultCaptureConfig(),
			streamer:  silentChatHandler{},
		}
		return &Coordinator{
			cfg:         cfg,
			session:     llm.NewSession(planner, "test-model"),
			provider:    planner,
			model:       "test-model",
			executor:    executor,
			registry:    registry,
			window:      cluster.NewSelectionWindow(cfg.WindowCapacity),
			patterns:    memory.New(),
			handler:     handler,
			shared:      NewSharedContext(DefaultContextWindow),
			plannerTemp: DefaultPlannerTemperature,
			judgeTemp:   DefaultJudgeTemperature,
		}
	}

	BeforeEach(func() {
		registry = cluster.NewRegistry()
		Expect(registry.Register(&echoTool{name: "calculator", output: "4"}, cluster.Math)).To(Succeed())
	})

	It("escalates a stuck subtask to the judge before the retry budget ends it", func() {
		// four attempts repeating the identical action, then one judge call
		var plannerScript []string
		for i := 0; i < 4; i++ {
			plannerScript = append(plannerScript, attemptResponses()...)
		}
		plannerScript = append(plannerScript, `EXTERNAL JUDGE ANALYSIS: {"verdict": "fail_subtask", "reason": "the approach is stuck"}`)

		var executorScript []string
		for i := 0; i < 4; i++ {
			executorScript = append(executorScript,
				"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"2+2\"}</ACTION_INPUT>",
				"<ANSWER>still 4</ANSWER>",
			)
		}

		c := newCoordinator(plannerScript, executorScript)
		st := newSubtask("compute the figure")
		task := &Task{Description: "get the number", Subtasks: []*Subtask{st}}

		outcome, err := c.runSubtask(context.Background(), task, st, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(subtaskFailed))

		Expect(handler.stagnationAttempts).To(Equal([]int{4}))
		Expect(handler.verdicts).To(Equal([]string{"fail_subtask"}))
		Expect(st.judged).To(BeTrue())
		Expect(st.Status).To(Equal(StatusFailed))
		Expect(st.ResultSummary).To(Equal("the approach is stuck"))
		Expect(st.ResultSummary).NotTo(ContainSubstring("retry limit"))
		Expect(planner.responses).To(BeEmpty())
	})

	It("ends a progressing subtask at the retry limit without a judge pass", func() {
		var plannerScript []string
		for i := 0; i < 3; i++ {
			plannerScript = append(plannerScript, attemptResponses()...)
		}

		// a different action every attempt keeps the streak at zero
		executorScript := []string{
			"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"1\"}</ACTION_INPUT>",
			"<ANSWER>one</ANSWER>",
			"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"2\"}</ACTION_INPUT>",
			"<ANSWER>two</ANSWER>",
			"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"3\"}</ACTION_INPUT>",
			"<ANSWER>three</ANSWER>",
		}

		c := newCoordinator(plannerScript, executorScript)
		st := newSubtask("compute the figure")
		task := &Task{Description: "get the number", Subtasks: []*Subtask{st}}

		outcome, err := c.runSubtask(context.Background(), task, st, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(subtaskFailed))

		Expect(handler.stagnationAttempts).To(BeEmpty())
		Expect(handler.verdicts).To(BeEmpty())
		Expect(st.judged).To(BeFalse())
		Expect(st.ResultSummary).To(Equal("retry limit reached after 3 attempts"))
	})

	It("lets the judge rewrite the remaining plan for a stuck subtask", func() {
		var plannerScript []string
		for i := 0; i < 4; i++ {
			plannerScript = append(plannerScript, attemptResponses()...)
		}
		plannerScript = append(plannerScript, `EXTERNAL JUDGE ANALYSIS: {"verdict": "rewrite", "reason": "wrong tool for the job", "subtasks": ["read the figure from report.csv"]}`)

		var executorScript []string
		for i := 0; i < 4; i++ {
			executorScript = append(executorScript,
				"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"2+2\"}</ACTION_INPUT>",
				"<ANSWER>still 4</ANSWER>",
			)
		}

		c := newCoordinator(plannerScript, executorScript)
		st := newSubtask("compute the figure")
		task := &Task{Description: "get the number", Subtasks: []*Subtask{st}}

		outcome, err := c.runSubtask(context.Background(), task, st, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(subtaskRewritten))

		Expect(handler.verdicts).To(Equal([]string{"rewrite"}))
		Expect(task.Subtasks).To(HaveLen(1))
		Expect(task.Subtasks[0].Description).To(Equal("read the figure from report.csv"))
	})
})
