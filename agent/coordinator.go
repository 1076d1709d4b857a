package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"maestro/agent/internal/prompts"
	"maestro/cluster"
	"maestro/config"
	"maestro/decode"
	"maestro/llm"
	"maestro/memory"
	"maestro/store"
	"maestro/streamers"
)

// Default temperatures for the three model roles. Planner creativity wants
// diversity, executor determinism wants literal instruction-following, judge
// passes sit in between. All three are independent configuration values.
const (
	DefaultPlannerTemperature = 0.4
	DefaultJudgeTemperature   = 0.2
)

// Task and subtask lifecycle statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDispatched = "dispatched"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Subtask is one executor-sized step within a task
type Subtask struct {
	ID            string
	Description   string
	Status        string
	Clusters      []cluster.Name
	ResultSummary string

	attempts      int
	stagnation    int      // consecutive non-progressing evaluations
	judged        bool     // the single judge pass has been spent
	lastSignature []string // previous attempt's action signatures
	feedback      string   // carried into the next attempt's instruction
	storeID       string
}

// Task is one planner-created unit of the plan
type Task struct {
	ID          string
	Description string
	Status      string
	Subtasks    []*Subtask

	subtaskRevisions int
	actionLog        []string
	failReason       string
	storeID          string
}

// RunReport is what a completed coordination run hands back to the caller.
// It is always a synthesized answer or a structured failure report, never a
// raw model dump.
type RunReport struct {
	RunID         string
	Status        string
	Answer        string
	Tasks         []*Task
	FailureReason string
}

// CoordinatorOptions holds configuration for creating a coordinator
type CoordinatorOptions struct {
	// Config is the loaded configuration
	Config *config.Config
	// PlannerModel is the model key for planner and judge calls
	PlannerModel string
	// ExecutorModel is the model key for executor calls
	ExecutorModel string
	// Registry holds the clustered tool set
	Registry *cluster.Registry
	// Handler receives run events
	Handler streamers.RunHandler
	// Bundle persists runs, events, and patterns (optional)
	Bundle *store.Bundle
	// Events receives debug events (optional)
	Events EventLogger
	// DebugFile enables raw model traffic logging (optional)
	DebugFile string
	// TurnLogFile enables per-turn JSONL session snapshots (optional). The
	// executor writes its own snapshots next to it.
	TurnLogFile string
}

// Coordinator drives the coordination loop: plan, select clusters, dispatch
// to the executor, evaluate, escalate. One coordinator owns one
// SharedContext, one selection window, and one executor; none of them are
// safe to share across concurrent runs.
type Coordinator struct {
	cfg          *config.CoordinatorConfig
	session      *llm.Session
	provider     llm.Provider
	ownsProvider bool
	model        string
	executor     *Executor
	registry     *cluster.Registry
	window       *cluster.SelectionWindow
	patterns     *memory.Memory
	bundle       *store.Bundle
	handler      streamers.RunHandler
	events       EventLogger
	shared       *SharedContext
	turnLogger   *llm.TurnLogger

	plannerTemp float64
	judgeTemp   float64

	iterations    int
	todoRevisions int
}

// NewCoordinator creates a coordinator and its executor
func NewCoordinator(ctx context.Context, opts CoordinatorOptions) (*Coordinator, error) {
	coordCfg := opts.Config.Coordinator
	if coordCfg == nil {
		coordCfg = &config.CoordinatorConfig{}
		coordCfg.Defaults()
	}

	modelConfig, actualModel, err := resolveModel(opts.Config, opts.PlannerModel)
	if err != nil {
		return nil, fmt.Errorf("resolving planner model: %w", err)
	}
	if modelConfig.APIKey == "" {
		return nil, fmt.Errorf("API key not set for model '%s'", modelConfig.Name)
	}

	provider, ownsProvider, err := createProvider(ctx, modelConfig)
	if err != nil {
		return nil, fmt.Errorf("creating planner provider: %w", err)
	}

	plannerTemp := coordCfg.PlannerTemperature
	if plannerTemp < DefaultPlannerTemperature {
		plannerTemp = DefaultPlannerTemperature
	}

	session := llm.NewSession(provider, actualModel, prompts.GetPlannerPrompt())
	session.SetTemperature(plannerTemp)
	if opts.DebugFile != "" {
		if err := session.EnableDebug(opts.DebugFile); err != nil {
			fmt.Printf("Warning: could not enable debug logging: %v\n", err)
		}
	}

	var turnLogger *llm.TurnLogger
	executorTurnLog := ""
	if opts.TurnLogFile != "" {
		if tl, err := llm.NewTurnLogger(opts.TurnLogFile); err == nil {
			turnLogger = tl
		}
		executorTurnLog = derivedTurnLogFile(opts.TurnLogFile, "executor")
	}

	executorModel := opts.ExecutorModel
	if executorModel == "" {
		executorModel = opts.PlannerModel
	}
	executor, err := NewExecutor(ctx, ExecutorOptions{
		Config:      opts.Config,
		ModelKey:    executorModel,
		Registry:    opts.Registry,
		Streamer:    opts.Handler.ExecutorHandler(),
		Events:      opts.Events,
		TurnLogFile: executorTurnLog,
	})
	if err != nil {
		if turnLogger != nil {
			turnLogger.Close()
		}
		if ownsProvider {
			if closer, ok := provider.(interface{ Close() }); ok {
				closer.Close()
			}
		}
		return nil, err
	}

	memOpts := []memory.Option{}
	if opts.Bundle != nil && opts.Bundle.Patterns != nil {
		memOpts = append(memOpts, memory.WithPersister(opts.Bundle.Patterns))
	}

	return &Coordinator{
		cfg:          coordCfg,
		session:      session,
		provider:     provider,
		ownsProvider: ownsProvider,
		model:        actualModel,
		executor:     executor,
		registry:     opts.Registry,
		window:       cluster.NewSelectionWindow(coordCfg.WindowCapacity),
		patterns:     memory.New(memOpts...),
		bundle:       opts.Bundle,
		handler:      opts.Handler,
		events:       opts.Events,
		shared:       NewSharedContext(DefaultContextWindow),
		turnLogger:   turnLogger,
		plannerTemp:  plannerTemp,
		judgeTemp:    DefaultJudgeTemperature,
	}, nil
}

// Close releases the coordinator's resources
func (c *Coordinator) Close() {
	c.executor.Close()
	if c.turnLogger != nil {
		c.turnLogger.Close()
	}
	if c.session != nil {
		c.session.Close()
	}
	if c.ownsProvider {
		if closer, ok := c.provider.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// errCeiling signals the global iteration ceiling was reached. It is handled
// inside Run and never escapes to callers.
var errCeiling = fmt.Errorf("iteration ceiling reached")

// Run coordinates one user query to completion. It returns a report with a
// synthesized answer or a failure description; only infrastructure failures
// return an error.
func (c *Coordinator) Run(ctx context.Context, query string) (*RunReport, error) {
	c.iterations = 0
	c.todoRevisions = 0
	c.window.Reset()
	c.shared = NewSharedContext(DefaultContextWindow)

	runID, err := c.createRunRecord(query)
	if err != nil {
		return nil, err
	}
	if c.events != nil {
		c.events = newContextEventLogger(c.events, map[string]any{"run_id": runID})
	}
	c.handler.RunStarted(runID, query)
	c.updateRunStatus(runID, StatusInProgress)

	report := &RunReport{RunID: runID, Tasks: []*Task{}}

	descriptions, err := c.createTasks(ctx, query)
	if err != nil {
		c.updateRunStatus(runID, StatusFailed)
		return nil, err
	}
	for _, desc := range descriptions {
		report.Tasks = append(report.Tasks, &Task{ID: uuid.New().String(), Description: desc, Status: StatusPending})
	}
	c.handler.PlanCreated(runID, descriptions)

	ceilingHit := false
	for _, task := range report.Tasks {
		if ceilingHit {
			task.Status = StatusFailed
			task.failReason = "run stopped at iteration ceiling"
			continue
		}
		if err := c.runTask(ctx, runID, task); err != nil {
			if err == errCeiling {
				ceilingHit = true
				task.Status = StatusFailed
				task.failReason = "run stopped at iteration ceiling"
				continue
			}
			c.updateRunStatus(runID, StatusFailed)
			return nil, err
		}
	}

	answer, err := c.synthesizeAnswer(ctx, query, report.Tasks)
	if err != nil {
		c.updateRunStatus(runID, StatusFailed)
		return nil, err
	}
	report.Answer = answer

	report.Status = StatusDone
	for _, task := range report.Tasks {
		if task.Status != StatusDone {
			report.Status = StatusFailed
			report.FailureReason = fmt.Sprintf("task '%s' failed: %s", task.Description, task.failReason)
			break
		}
	}

	if c.bundle != nil {
		if err := c.bundle.Runs.SetRunAnswer(runID, answer); err != nil {
			c.logStoreError("set_run_answer", err)
		}
	}
	c.updateRunStatus(runID, report.Status)
	c.handler.RunCompleted(runID, report.Status, answer)
	return report, nil
}

// =============================================================================
// Task loop
// =============================================================================

func (c *Coordinator) runTask(ctx context.Context, runID string, task *Task) error {
	task.Status = StatusInProgress
	if c.bundle != nil {
		id, err := c.bundle.Runs.CreateTask(runID, task.Description)
		if err != nil {
			c.logStoreError("create_task", err)
		} else {
			task.storeID = id
		}
		c.updateTaskStatus(task, StatusInProgress)
	}
	c.handler.TaskStarted(task.ID, task.Description)

	hint := c.patterns.FindSimilar(task.Description)
	subtasks, err := c.createSubtasks(ctx, task, hint, nil)
	if err != nil {
		return err
	}
	task.Subtasks = subtasks

	for {
		failed, err := c.driveSubtasks(ctx, task)
		if err != nil {
			if err == errCeiling {
				c.finishTask(task, StatusFailed, "run stopped at iteration ceiling")
				return errCeiling
			}
			return err
		}
		if failed == nil {
			break
		}

		// Escalation ladder: revise the subtask plan, then revise the task
		// itself, then give up on this task and let the run continue.
		if task.subtaskRevisions < c.cfg.TaskRevisionLimit {
			task.subtaskRevisions++
			revised, err := c.createSubtasks(ctx, task, nil, failed)
			if err != nil {
				return err
			}
			task.Subtasks = append(completedOf(task.Subtasks), revised...)
			continue
		}
		if c.todoRevisions < c.cfg.TodoRevisionLimit {
			c.todoRevisions++
			if err := c.reviseTask(ctx, task, failed); err != nil {
				return err
			}
			continue
		}

		c.finishTask(task, StatusFailed, failed.ResultSummary)
		c.handler.TaskFailed(task.ID, task.Description, failed.ResultSummary)
		return nil
	}

	// All subtasks done; confirm the objective before declaring success
	achieved, reason, err := c.validateObjective(ctx, task)
	if err != nil {
		return err
	}
	if !achieved {
		c.finishTask(task, StatusFailed, reason)
		c.handler.TaskFailed(task.ID, task.Description, reason)
		return nil
	}

	taskType := memory.Classify(task.Description)
	c.patterns.Record(taskType, task.actionLog)
	c.handler.PatternRecorded(taskType, len(task.actionLog))

	c.finishTask(task, StatusDone, "")
	c.handler.TaskCompleted(task.ID, task.Description)
	return nil
}

// driveSubtasks runs pending subtasks in order. It returns the first subtask
// that ended failed, or nil when everything finished done.
func (c *Coordinator) driveSubtasks(ctx context.Context, task *Task) (*Subtask, error) {
	for i := 0; i < len(task.Subtasks); i++ {
		st := task.Subtasks[i]
		if st.Status == StatusDone || st.Status == StatusFailed {
			continue
		}

		outcome, err := c.runSubtask(ctx, task, st, i)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case subtaskDone:
			continue
		case subtaskFailed:
			return st, nil
		case subtaskFailTask:
			return st, nil
		case subtaskRewritten:
			// the judge replaced the remaining plan; restart from the
			// first pending subtask
			i = -1
		}
	}

	for _, st := range task.Subtasks {
		if st.Status == StatusFailed {
			return st, nil
		}
	}
	return nil, nil
}

type subtaskOutcome int

const (
	subtaskDone subtaskOutcome = iota
	subtaskFailed
	subtaskFailTask
	subtaskRewritten
)

func (c *Coordinator) runSubtask(ctx context.Context, task *Task, st *Subtask, index int) (subtaskOutcome, error) {
	// A stagnation streak extends the retry budget until the judge has seen
	// the subtask: the loop must not end on "retry limit reached" while a
	// streak is still short of the threshold. The extension is bounded by the
	// global iteration ceiling.
	for st.attempts < c.cfg.SubtaskRetryLimit || (!st.judged && st.stagnation > 0 && st.stagnation < c.cfg.StagnationThreshold) {
		c.iterations++
		if c.iterations > c.cfg.MaxIterations {
			return subtaskFailed, errCeiling
		}
		st.attempts++

		selected, provenance, err := c.selectClusters(ctx, st)
		if err != nil {
			return subtaskFailed, err
		}
		st.Clusters = selected
		merged := c.window.Merge(selected)
		c.window.Push(selected)
		c.handler.ClustersSelected(st.ID, clusterStrings(selected), provenance)

		instruction, err := c.formulateInstruction(ctx, task, st)
		if err != nil {
			return subtaskFailed, err
		}

		st.Status = StatusDispatched
		c.recordSubtaskDispatch(task, st)
		c.handler.SubtaskStarted(st.ID, st.Description, clusterStrings(merged))

		result, err := c.executor.Run(ctx, instruction, merged, DefaultExecutorTemperature, DefaultMaxRounds)
		if err != nil {
			return subtaskFailed, err
		}
		c.shared.RecordActions(result.Actions)

		// An executor question does not consume stagnation budget; answer
		// it and retry with the clarification attached
		if result.Question != "" {
			answer, err := c.answerExecutorQuestion(ctx, task, st, result.Question)
			if err != nil {
				return subtaskFailed, err
			}
			st.feedback = fmt.Sprintf("The executor asked: %s\nClarification: %s", result.Question, answer)
			st.attempts--
			continue
		}

		eval, err := c.evaluate(ctx, st, result)
		if err != nil {
			return subtaskFailed, err
		}

		sigs := actionSignatures(result.Actions)
		if !progressed(sigs, st.lastSignature) || !eval.newInformation {
			st.stagnation++
		} else {
			st.stagnation = 0
		}
		st.lastSignature = sigs

		if eval.status == StatusDone {
			st.Status = StatusDone
			st.ResultSummary = summaryOf(result, eval.reason)
			task.actionLog = append(task.actionLog, sigs...)
			c.finishSubtask(st)
			c.handler.SubtaskCompleted(st.ID, StatusDone, st.ResultSummary)
			return subtaskDone, nil
		}

		// Exactly one judge pass per subtask, triggered by the stagnation
		// threshold
		if st.stagnation >= c.cfg.StagnationThreshold && !st.judged {
			st.judged = true
			c.handler.StagnationDetected(st.ID, st.attempts)
			outcome, err := c.judgePass(ctx, task, st, index, result)
			if err != nil {
				return subtaskFailed, err
			}
			// the verdict always resolves the subtask
			return outcome, nil
		}

		if eval.status == StatusFailed {
			st.Status = StatusFailed
			st.ResultSummary = eval.reason
			c.finishSubtask(st)
			c.handler.SubtaskCompleted(st.ID, StatusFailed, eval.reason)
			return subtaskFailed, nil
		}

		// retry with the evaluation's reason as feedback
		st.feedback = eval.reason
	}

	st.Status = StatusFailed
	st.ResultSummary = fmt.Sprintf("retry limit reached after %d attempts", st.attempts)
	c.finishSubtask(st)
	c.handler.SubtaskCompleted(st.ID, StatusFailed, st.ResultSummary)
	return subtaskFailed, nil
}

// =============================================================================
// Planner call sites
// =============================================================================

// derivedTurnLogFile places a sibling turn log next to the planner's, so
// planner and executor transcripts stay separable.
func derivedTurnLogFile(base, role string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + role + ext
}

// logTurn snapshots the planner session after a turn. The action label names
// what the turn was asked to produce.
func (c *Coordinator) logTurn(action string) {
	if c.turnLogger != nil {
		c.turnLogger.LogTurn(action, c.session.SnapshotMessages())
	}
}

// askPlanner sends a prompt and decodes the response. A decode failure gets
// exactly one bounded re-ask with a hint before the failure propagates.
func (c *Coordinator) askPlanner(ctx context.Context, prompt string, expected []string) (map[string]any, decode.Provenance, error) {
	resp, err := c.session.Send(ctx, prompt)
	if err != nil {
		return nil, "", &InfrastructureFailure{Stage: "planner", Err: err}
	}
	c.shared.AddExchange(prompt, resp.Content)
	c.logTurn(strings.Join(expected, ","))

	dec := &decode.Decoder{ExpectedFields: expected}
	result, derr := dec.Decode(resp.Content)
	if derr == nil {
		return result.Value, result.Provenance, nil
	}

	reask := fmt.Sprintf("Your previous response was not understood. Respond again with ONLY a JSON object containing the fields: %s", strings.Join(expected, ", "))
	resp, err = c.session.Send(ctx, reask)
	if err != nil {
		return nil, "", &InfrastructureFailure{Stage: "planner", Err: err}
	}
	c.logTurn(strings.Join(expected, ","))
	result, derr = dec.Decode(resp.Content)
	if derr == nil {
		return result.Value, result.Provenance, nil
	}
	return nil, "", derr
}

func (c *Coordinator) createTasks(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(`%s

Break the following query into a short ordered list of tasks. Each task is a
self-contained objective the executor can work toward.

Examples:
Query: "Find the creator of Python and report their birth year"
{"tasks": ["Search the web for the creator of Python", "Find the creator's birth year", "Report the name and birth year"], "reasoning": "search, then extract, then report"}

Query: "What is 15%% of 2300?"
{"tasks": ["Calculate 15 percent of 2300"], "reasoning": "single calculation"}

Query: %q

Respond with fields: tasks, reasoning.`, c.shared.Snapshot(), query)

	value, _, err := c.askPlanner(ctx, prompt, []string{"tasks", "reasoning"})
	if err != nil {
		if _, ok := err.(*InfrastructureFailure); ok {
			return nil, err
		}
		// unable to decode a plan even after the re-ask; fall back to
		// treating the whole query as one task
		return []string{query}, nil
	}

	tasks := stringList(value["tasks"])
	if len(tasks) == 0 {
		return []string{query}, nil
	}
	return tasks, nil
}

// createSubtasks decomposes a task. hint carries a remembered action
// sequence; failed carries the subtask whose failure forced a revision.
func (c *Coordinator) createSubtasks(ctx context.Context, task *Task, hint []string, failed *Subtask) ([]*Subtask, error) {
	var sb strings.Builder
	sb.WriteString(c.shared.Snapshot())
	sb.WriteString("\n\nBreak this task into subtasks. Each subtask should map to roughly one tool invocation.\n\n")
	sb.WriteString("Examples:\n")
	sb.WriteString(`Task: "Search the web for the creator of Python"` + "\n")
	sb.WriteString(`{"subtasks": ["Open a search engine", "Search for 'creator of Python programming language'", "Extract the name from the results"]}` + "\n\n")
	sb.WriteString(`Task: "Calculate 15 percent of 2300"` + "\n")
	sb.WriteString(`{"subtasks": ["Calculate 2300 * 0.15"]}` + "\n\n")

	if len(hint) > 0 {
		sb.WriteString(fmt.Sprintf("A similar task previously succeeded with this action sequence, bias toward it:\n%s\n\n", strings.Join(hint, "\n")))
	}
	if failed != nil {
		sb.WriteString(fmt.Sprintf("A previous plan failed at subtask %q (%s). Produce a revised plan that approaches the remaining work differently.\n\n", failed.Description, failed.ResultSummary))
	}

	sb.WriteString(fmt.Sprintf("Task: %q\n\nRespond with fields: subtasks.", task.Description))

	value, _, err := c.askPlanner(ctx, sb.String(), []string{"subtasks"})
	if err != nil {
		if _, ok := err.(*InfrastructureFailure); ok {
			return nil, err
		}
		return []*Subtask{newSubtask(task.Description)}, nil
	}

	descriptions := stringList(value["subtasks"])
	if len(descriptions) == 0 {
		return []*Subtask{newSubtask(task.Description)}, nil
	}
	subtasks := make([]*Subtask, len(descriptions))
	for i, desc := range descriptions {
		subtasks[i] = newSubtask(desc)
	}
	return subtasks, nil
}

func (c *Coordinator) selectClusters(ctx context.Context, st *Subtask) ([]cluster.Name, string, error) {
	prompt := fmt.Sprintf(`Select the minimal set of tool clusters needed for this subtask.

Examples:
Subtask: "Search for 'creator of Python'"
{"clusters": ["WEB"], "reasoning": "web search only"}

Subtask: "Calculate the average of the extracted figures"
{"clusters": ["MATH"], "reasoning": "pure arithmetic"}

Subtask: "Read sales.csv and summarize the totals"
{"clusters": ["DATA", "TEXT"], "reasoning": "file read then summarization"}

Subtask: %q

Respond with fields: clusters, reasoning.`, st.Description)

	value, provenance, err := c.askPlanner(ctx, prompt, []string{"clusters", "reasoning"})
	if err != nil {
		if _, ok := err.(*InfrastructureFailure); ok {
			return nil, "", err
		}
		// planner never produced a decodable selection; fall back to the
		// keyword ranking
		if suggested := cluster.Suggest(st.Description); len(suggested) > 0 {
			return suggested[:1], "suggest", nil
		}
		return []cluster.Name{cluster.Web}, "default", nil
	}

	var selected []cluster.Name
	for _, raw := range stringList(value["clusters"]) {
		name := cluster.Name(strings.ToUpper(strings.TrimSpace(raw)))
		// tolerate hallucinated cluster names by dropping them
		if cluster.Valid(name) {
			selected = append(selected, name)
		}
	}
	if len(selected) == 0 {
		if suggested := cluster.Suggest(st.Description); len(suggested) > 0 {
			return suggested[:1], "suggest", nil
		}
		return []cluster.Name{cluster.Web}, "default", nil
	}
	return selected, string(provenance), nil
}

func (c *Coordinator) formulateInstruction(ctx context.Context, task *Task, st *Subtask) (string, error) {
	var state strings.Builder
	state.WriteString(c.shared.Snapshot())
	if st.feedback != "" {
		state.WriteString("\nFeedback from the previous attempt: ")
		state.WriteString(st.feedback)
		st.feedback = ""
	}

	prompt := fmt.Sprintf(`%s

Write the exact instruction the executor should carry out for this subtask.
The executor sees only your instruction and its tools, so include every
concrete detail it needs.

Examples:
Subtask: "Search for 'creator of Python'"
{"instruction": "Use the web search tool to search for 'creator of Python programming language' and report the name in the top results"}

Subtask: "Calculate 2300 * 0.15"
{"instruction": "Use the calculator tool to evaluate 2300 * 0.15 and report the result"}

Task: %q
Subtask: %q

Respond with fields: instruction.`, state.String(), task.Description, st.Description)

	value, _, err := c.askPlanner(ctx, prompt, []string{"instruction"})
	if err != nil {
		if _, ok := err.(*InfrastructureFailure); ok {
			return "", err
		}
		return st.Description, nil
	}
	if instruction, ok := value["instruction"].(string); ok && instruction != "" {
		return instruction, nil
	}
	return st.Description, nil
}

type evaluation struct {
	status         string // done | failed | retry
	reason         string
	newInformation bool
}

func (c *Coordinator) evaluate(ctx context.Context, st *Subtask, result *ExecutionResult) (*evaluation, error) {
	actions := strings.Join(actionSummaries(result.Actions), "\n")
	if actions == "" {
		actions = "(no actions taken)"
	}

	prompt := fmt.Sprintf(`Evaluate whether this subtask's objective was met.

Examples:
Objective: "Search for 'creator of Python'"; answer reports "Guido van Rossum"
{"completed": "done", "reason": "name found", "new_information": true}

Objective: "Open the pricing page"; every action failed with a 404
{"completed": "retry", "reason": "page not found, try the site search instead", "new_information": false}

Objective: %q
Actions taken:
%s
Executor answer: %q
Executor reported success: %v

Respond with fields: completed (done|failed|retry), reason, new_information (true|false).`,
		st.Description, actions, result.Answer, result.Success)

	value, _, err := c.askPlanner(ctx, prompt, []string{"completed", "reason", "new_information"})
	if err != nil {
		if _, ok := err.(*InfrastructureFailure); ok {
			return nil, err
		}
		// undecodable evaluation: trust the executor's own success flag
		if result.Success {
			return &evaluation{status: StatusDone, reason: result.Answer, newInformation: true}, nil
		}
		return &evaluation{status: "retry", reason: "evaluation was undecodable", newInformation: false}, nil
	}

	eval := &evaluation{newInformation: true}
	switch strings.ToLower(stringValue(value["completed"])) {
	case "done", "yes", "true", "completed", "success":
		eval.status = StatusDone
	case "failed", "no", "false":
		eval.status = StatusFailed
	default:
		eval.status = "retry"
	}
	eval.reason = stringValue(value["reason"])
	switch v := value["new_information"].(type) {
	case bool:
		eval.newInformation = v
	case string:
		eval.newInformation = strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return eval, nil
}

func (c *Coordinator) validateObjective(ctx context.Context, task *Task) (bool, string, error) {
	var summaries []string
	for _, st := range task.Subtasks {
		summaries = append(summaries, fmt.Sprintf("- %s [%s] %s", st.Description, st.Status, st.ResultSummary))
	}

	prompt := fmt.Sprintf(`All subtasks of this task finished. Confirm the task objective itself was achieved.

Task: %q
Subtask results:
%s

Respond with fields: achieved (true|false), reason.`, task.Description, strings.Join(summaries, "\n"))

	value, _, err := c.askPlanner(ctx, prompt, []string{"achieved", "reason"})
	if err != nil {
		if _, ok := err.(*InfrastructureFailure); ok {
			return false, "", err
		}
		// undecodable validation defaults to trusting the subtask results
		return true, "", nil
	}

	achieved := false
	switch v := value["achieved"].(type) {
	case bool:
		achieved = v
	case string:
		achieved = strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return achieved, stringValue(value["reason"]), nil
}

func (c *Coordinator) answerExecutorQuestion(ctx context.Context, task *Task, st *Subtask, question string) (string, error) {
	prompt := fmt.Sprintf(`%s

The executor working on subtask %q (task %q) asked:
%s

Answer concisely with the information it needs. Respond in plain prose.`,
		c.shared.Snapshot(), st.Description, task.Description, question)

	resp, err := c.session.Send(ctx, prompt)
	if err != nil {
		return "", &InfrastructureFailure{Stage: "planner", Err: err}
	}
	c.shared.AddExchange(prompt, resp.Content)
	return strings.TrimSpace(resp.Content), nil
}

func (c *Coordinator) synthesizeAnswer(ctx context.Context, query string, tasks []*Task) (string, error) {
	var sb strings.Builder
	for _, task := range tasks {
		sb.WriteString(fmt.Sprintf("Task: %s [%s]\n", task.Description, task.Status))
		for _, st := range task.Subtasks {
			if st.ResultSummary != "" {
				sb.WriteString(fmt.Sprintf("  - %s: %s\n", st.Description, st.ResultSummary))
			}
		}
		if task.failReason != "" {
			sb.WriteString(fmt.Sprintf("  failure: %s\n", task.failReason))
		}
	}

	prompt := fmt.Sprintf(`The run is over. Write the final answer for the user.

Original query: %q

Results:
%s

If tasks failed, say plainly which objective could not be completed and why.
Respond in plain prose, no JSON.`, query, sb.String())

	resp, err := c.session.Send(ctx, prompt)
	if err != nil {
		return "", &InfrastructureFailure{Stage: "planner", Err: err}
	}
	return strings.TrimSpace(resp.Content), nil
}

// =============================================================================
// Judge pass
// =============================================================================

// judgeMarker opens every judge response; text after it up to the JSON is
// the judge's analysis.
const judgeMarker = "EXTERNAL JUDGE ANALYSIS:"

func (c *Coordinator) judgePass(ctx context.Context, task *Task, st *Subtask, index int, lastResult *ExecutionResult) (subtaskOutcome, error) {
	judge := llm.NewSession(c.provider, c.model, prompts.GetJudgePrompt())
	judge.SetTemperature(c.judgeTemp)
	defer judge.Close()

	var remaining []string
	for _, s := range task.Subtasks[index:] {
		remaining = append(remaining, s.Description)
	}

	prompt := fmt.Sprintf(`Task: %q
Stuck subtask: %q (attempt %d, %d consecutive non-progressing evaluations)
Remaining subtasks: %s
Last attempt's actions:
%s
Last executor answer: %q`,
		task.Description, st.Description, st.attempts, st.stagnation,
		strings.Join(remaining, "; "),
		strings.Join(actionSummaries(lastResult.Actions), "\n"),
		lastResult.Answer)

	resp, err := judge.Send(ctx, prompt)
	if err != nil {
		return subtaskFailed, &InfrastructureFailure{Stage: "judge", Err: err}
	}
	if c.turnLogger != nil {
		c.turnLogger.LogTurn("judge", judge.SnapshotMessages())
	}

	content := resp.Content
	if idx := strings.Index(content, judgeMarker); idx >= 0 {
		content = content[idx+len(judgeMarker):]
	}

	dec := &decode.Decoder{ExpectedFields: []string{"verdict", "reason"}}
	result, derr := dec.Decode(content)
	if derr != nil {
		// an unreadable judge cannot rescue the subtask
		c.handler.JudgeVerdict(st.ID, "fail_subtask", "judge response was undecodable")
		st.Status = StatusFailed
		st.ResultSummary = "stagnation: judge response was undecodable"
		c.finishSubtask(st)
		return subtaskFailed, nil
	}

	verdict := strings.ToLower(stringValue(result.Value["verdict"]))
	reason := stringValue(result.Value["reason"])
	c.handler.JudgeVerdict(st.ID, verdict, reason)

	switch verdict {
	case "rewrite":
		rewritten := stringList(result.Value["subtasks"])
		old := append([]string{st.Description}, remainingDescriptions(task.Subtasks[index:])...)
		if len(rewritten) == 0 || subtasksTooSimilar(old, rewritten) {
			// a rewrite that restates the failed plan escalates instead
			st.Status = StatusFailed
			st.ResultSummary = "stagnation: judge rewrite was too similar to the failed plan"
			c.finishSubtask(st)
			return subtaskFailed, nil
		}
		replacement := make([]*Subtask, len(rewritten))
		for i, desc := range rewritten {
			replacement[i] = newSubtask(desc)
		}
		task.Subtasks = append(task.Subtasks[:index], replacement...)
		return subtaskRewritten, nil

	case "fail_task":
		st.Status = StatusFailed
		st.ResultSummary = reason
		c.finishSubtask(st)
		task.failReason = reason
		return subtaskFailTask, nil

	default: // fail_subtask
		st.Status = StatusFailed
		st.ResultSummary = reason
		c.finishSubtask(st)
		return subtaskFailed, nil
	}
}

// reviseTask asks the planner for a fresh formulation of a task whose
// subtask plans kept failing, then rebuilds its subtasks.
func (c *Coordinator) reviseTask(ctx context.Context, task *Task, failed *Subtask) error {
	prompt := fmt.Sprintf(`The task below failed repeatedly at subtask %q (%s).
Rewrite the task objective so the remaining goal stays the same but the
approach can differ.

Task: %q

Respond with fields: task.`, failed.Description, failed.ResultSummary, task.Description)

	value, _, err := c.askPlanner(ctx, prompt, []string{"task"})
	if err != nil {
		if _, ok := err.(*InfrastructureFailure); ok {
			return err
		}
		// keep the original description; the fresh subtask plan still helps
	} else if revised := stringValue(value["task"]); revised != "" {
		task.Description = revised
	}

	subtasks, err := c.createSubtasks(ctx, task, nil, failed)
	if err != nil {
		return err
	}
	task.Subtasks = append(completedOf(task.Subtasks), subtasks...)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func newSubtask(description string) *Subtask {
	return &Subtask{ID: uuid.New().String(), Description: description, Status: StatusPending}
}

func completedOf(subtasks []*Subtask) []*Subtask {
	var out []*Subtask
	for _, st := range subtasks {
		if st.Status == StatusDone {
			out = append(out, st)
		}
	}
	return out
}

func remainingDescriptions(subtasks []*Subtask) []string {
	var out []string
	for _, st := range subtasks {
		out = append(out, st.Description)
	}
	return out
}

func actionSignatures(actions []ActionRecord) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Signature()
	}
	return out
}

func actionSummaries(actions []ActionRecord) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		status := "ok"
		if !a.OK {
			status = "FAILED"
		}
		out[i] = fmt.Sprintf("- %s(%s) [%s] %s", a.Tool, truncate(a.Input, 80), status, truncate(a.Output, 120))
	}
	return out
}

// progressed reports whether the current action signatures show new work
// compared to the previous attempt. An identical list or a strict subset of
// the previous attempt counts as no progress.
func progressed(current, previous []string) bool {
	if previous == nil {
		return true
	}
	if len(current) == 0 {
		return false
	}
	prev := make(map[string]bool, len(previous))
	for _, sig := range previous {
		prev[sig] = true
	}
	for _, sig := range current {
		if !prev[sig] {
			return true
		}
	}
	return false
}

// subtasksTooSimilar reports whether a rewritten plan is effectively the
// failed plan restated: the first subtask is identical, or at least 70% of
// the new subtasks closely match an old one.
func subtasksTooSimilar(old, rewritten []string) bool {
	if len(rewritten) == 0 {
		return true
	}
	if len(old) > 0 && normalizeDescription(old[0]) == normalizeDescription(rewritten[0]) {
		return true
	}

	matched := 0
	for _, n := range rewritten {
		for _, o := range old {
			if descriptionOverlap(n, o) >= 0.7 {
				matched++
				break
			}
		}
	}
	return float64(matched)/float64(len(rewritten)) >= 0.7
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// descriptionOverlap is the Jaccard similarity of the two descriptions'
// lowercase word sets.
func descriptionOverlap(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func summaryOf(result *ExecutionResult, reason string) string {
	if result.Answer != "" {
		return truncate(result.Answer, 300)
	}
	return reason
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func clusterStrings(names []cluster.Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

// =============================================================================
// Store plumbing. Persistence never fails a run.
// =============================================================================

func (c *Coordinator) createRunRecord(query string) (string, error) {
	if c.bundle == nil {
		return uuid.New().String(), nil
	}
	cfgJSON, _ := json.Marshal(map[string]any{
		"max_iterations":       c.cfg.MaxIterations,
		"stagnation_threshold": c.cfg.StagnationThreshold,
		"window_capacity":      c.cfg.WindowCapacity,
	})
	id, err := c.bundle.Runs.CreateRun(query, string(cfgJSON))
	if err != nil {
		return "", fmt.Errorf("creating run record: %w", err)
	}
	return id, nil
}

func (c *Coordinator) updateRunStatus(runID, status string) {
	if c.bundle == nil {
		return
	}
	if err := c.bundle.Runs.UpdateRunStatus(runID, status); err != nil {
		c.logStoreError("update_run_status", err)
	}
}

func (c *Coordinator) updateTaskStatus(task *Task, status string) {
	if c.bundle == nil || task.storeID == "" {
		return
	}
	if err := c.bundle.Runs.UpdateTaskStatus(task.storeID, status); err != nil {
		c.logStoreError("update_task_status", err)
	}
}

func (c *Coordinator) finishTask(task *Task, status, reason string) {
	task.Status = status
	if reason != "" {
		task.failReason = reason
	}
	c.updateTaskStatus(task, status)
}

func (c *Coordinator) recordSubtaskDispatch(task *Task, st *Subtask) {
	if c.bundle == nil || task.storeID == "" || st.storeID != "" {
		return
	}
	clustersJSON, _ := json.Marshal(clusterStrings(st.Clusters))
	id, err := c.bundle.Runs.CreateSubtask(task.storeID, st.Description, string(clustersJSON))
	if err != nil {
		c.logStoreError("create_subtask", err)
		return
	}
	st.storeID = id
}

func (c *Coordinator) finishSubtask(st *Subtask) {
	if c.bundle == nil || st.storeID == "" {
		return
	}
	var summary *string
	if st.ResultSummary != "" {
		summary = &st.ResultSummary
	}
	if err := c.bundle.Runs.UpdateSubtaskStatus(st.storeID, st.Status, summary); err != nil {
		c.logStoreError("update_subtask_status", err)
	}
}

func (c *Coordinator) logStoreError(op string, err error) {
	if c.events == nil {
		return
	}
	errType, _ := classifyError(err)
	c.events.LogEvent("store_error", map[string]any{"op": op, "error": err.Error(), "type": errType})
}
