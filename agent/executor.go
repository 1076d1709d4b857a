package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"maestro/agent/internal/prompts"
	"maestro/aitools"
	"maestro/cluster"
	"maestro/config"
	"maestro/llm"
	"maestro/streamers"
)

// DefaultExecutorTemperature biases the executor toward literal
// instruction-following.
const DefaultExecutorTemperature = 0.1

// DefaultMaxRounds bounds the executor's tool-call loop per run.
const DefaultMaxRounds = 10

// ActionRecord is one concrete tool invocation taken during a run.
type ActionRecord struct {
	Tool   string
	Input  string
	Output string
	OK     bool
}

// Signature identifies the invocation for progress comparison across
// attempts. Output is excluded so a retried call with the same arguments
// counts as the same action.
func (a ActionRecord) Signature() string {
	return a.Tool + "(" + a.Input + ")"
}

// ExecutionResult is what one executor run produced.
type ExecutionResult struct {
	Answer   string
	Actions  []ActionRecord
	Success  bool
	Question string // set when the executor asked the planner instead of finishing
}

// Executor wraps the tool-executing model. It holds the currently loaded
// tool set and swaps tools plus their advertised schemas together whenever
// the requested cluster set changes, so the model never sees schemas for
// tools that are no longer loaded.
type Executor struct {
	provider     llm.Provider
	ownsProvider bool
	model        string
	registry     *cluster.Registry
	artifacts    *aitools.ArtifactStore
	capture      aitools.CaptureConfig
	streamer     streamers.ChatHandler
	events       EventLogger
	debugFile    string
	turnLogger   *llm.TurnLogger

	// loaded tool set, keyed by the sorted cluster names. The session is
	// rebuilt together with the tool map so prompt and tools cannot drift.
	loadedKey string
	tools     map[string]aitools.Tool
	order     []aitools.Tool
	session   *llm.Session
}

// ExecutorOptions holds configuration for creating an executor
type ExecutorOptions struct {
	Config   *config.Config
	ModelKey string
	Registry *cluster.Registry
	Streamer streamers.ChatHandler
	Events   EventLogger
	// DebugFile enables raw model traffic logging to the given file
	DebugFile string
	// TurnLogFile enables per-turn JSONL session snapshots
	TurnLogFile string
}

// NewExecutor creates an executor bound to one registry. One executor serves
// exactly one coordination flow; the loaded tool set is mutable state that
// must not be shared across concurrent runs.
func NewExecutor(ctx context.Context, opts ExecutorOptions) (*Executor, error) {
	modelConfig, actualModel, err := resolveModel(opts.Config, opts.ModelKey)
	if err != nil {
		return nil, fmt.Errorf("resolving executor model: %w", err)
	}
	if modelConfig.APIKey == "" {
		return nil, fmt.Errorf("API key not set for model '%s'", modelConfig.Name)
	}

	provider, ownsProvider, err := createProvider(ctx, modelConfig)
	if err != nil {
		return nil, fmt.Errorf("creating executor provider: %w", err)
	}

	var turnLogger *llm.TurnLogger
	if opts.TurnLogFile != "" {
		if tl, err := llm.NewTurnLogger(opts.TurnLogFile); err == nil {
			turnLogger = tl
		}
	}

	return &Executor{
		provider:     provider,
		ownsProvider: ownsProvider,
		model:        actualModel,
		registry:     opts.Registry,
		artifacts:    aitools.NewArtifactStore(),
		capture:      aitools.DefaultCaptureConfig(),
		streamer:     opts.Streamer,
		events:       opts.Events,
		debugFile:    opts.DebugFile,
		turnLogger:   turnLogger,
	}, nil
}

// Artifacts exposes the run's artifact store for inspection after execution.
func (e *Executor) Artifacts() *aitools.ArtifactStore {
	return e.artifacts
}

// clusterKey produces a canonical identity for a cluster set
func clusterKey(clusters []cluster.Name) string {
	names := make([]string, len(clusters))
	for i, c := range clusters {
		names[i] = string(c)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// loadTools swaps in the tool set for the given clusters. Tool map, tool
// order, and the session whose system prompt advertises the schemas are all
// replaced in one step. An identical cluster set skips the swap and keeps
// the session; Run clears its history either way, so skip and swap start
// from the same state.
func (e *Executor) loadTools(clusters []cluster.Name) {
	key := clusterKey(clusters)
	if key == e.loadedKey && e.session != nil {
		return
	}

	selected := e.registry.Tools(clusters...)
	order := make([]aitools.Tool, 0, len(selected)+1)
	tools := make(map[string]aitools.Tool, len(selected)+1)
	for _, t := range selected {
		order = append(order, t)
		tools[t.ToolName()] = t
	}

	// fetch_artifact is always loaded so captured results stay reachable
	fetch := &aitools.FetchArtifactTool{Store: e.artifacts}
	order = append(order, fetch)
	tools[fetch.ToolName()] = fetch

	session := llm.NewSession(e.provider, e.model, prompts.GetExecutorPrompt(order))
	session.SetStopSequences([]string{"___STOP___"})
	session.SetTemperature(DefaultExecutorTemperature)
	if e.debugFile != "" {
		if err := session.EnableDebug(e.debugFile); err != nil {
			fmt.Printf("Warning: could not enable debug logging: %v\n", err)
		}
	}

	e.loadedKey = key
	e.tools = tools
	e.order = order
	e.session = session
}

// Run executes one instruction with the tools of the given clusters. The
// temperature override lasts exactly one run; the prior session temperature
// is restored on every exit path. Tool failures become failed action records
// and the loop continues; only backend failures return an error.
func (e *Executor) Run(ctx context.Context, instruction string, clusters []cluster.Name, temperature float64, maxRounds int) (*ExecutionResult, error) {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	e.loadTools(clusters)
	// every run starts from a fresh transcript; cross-run state travels
	// through the instruction, not the session
	e.session.ClearHistory()

	restore := e.session.WithTemperature(temperature)
	defer restore()

	result := &ExecutionResult{}
	currentInput := instruction

	for round := 0; round < maxRounds; round++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		parser := NewMessageParser(e.streamer)

		llmStart := time.Now()
		_, err := e.session.SendStream(ctx, currentInput, func(chunk llm.StreamChunk) {
			if chunk.Content != "" {
				parser.ProcessChunk(chunk.Content)
			}
		})
		parser.Finish()

		if err != nil {
			return nil, &InfrastructureFailure{Stage: "executor", Err: err}
		}

		if e.turnLogger != nil {
			e.turnLogger.LogTurn(parser.GetAction(), e.session.SnapshotMessages())
		}

		if e.events != nil {
			e.events.LogEvent("executor_llm_end", map[string]any{
				"round":       round + 1,
				"duration_ms": time.Since(llmStart).Milliseconds(),
			})
		}

		// A question to the planner ends the run; the coordinator decides
		// how to answer it
		if q := parser.GetQuestion(); q != "" {
			result.Question = q
			return result, nil
		}

		if answer := parser.GetAnswer(); answer != "" {
			result.Answer = answer
		}

		action := parser.GetAction()
		if action == "" {
			result.Success = result.Answer != ""
			return result, nil
		}

		actionInput := parser.GetActionInput()
		e.streamer.CallingTool(action, actionInput)

		tool := e.tools[action]
		if tool == nil {
			e.streamer.ToolComplete(action)
			output := fmt.Sprintf("Error: Tool '%s' not found. Available tools: %s", action, strings.Join(e.toolNames(), ", "))
			e.streamer.Error(&ToolExecutionFailure{Tool: action, Output: output})
			result.Actions = append(result.Actions, ActionRecord{Tool: action, Input: actionInput, Output: output, OK: false})
			currentInput = fmt.Sprintf("<OBSERVATION>\n%s\n</OBSERVATION>", output)
			continue
		}

		output := tool.Call(actionInput)
		e.streamer.ToolComplete(action)

		ok := !strings.HasPrefix(output, "Error:")
		if !ok {
			e.streamer.Error(&ToolExecutionFailure{Tool: action, Output: output})
		}
		result.Actions = append(result.Actions, ActionRecord{Tool: action, Input: actionInput, Output: output, OK: ok})

		if e.events != nil {
			e.events.LogEvent("executor_tool_call", map[string]any{
				"tool": action,
				"ok":   ok,
			})
		}

		captured := e.artifacts.Capture(e.capture, action, output)
		currentInput = fmt.Sprintf("<OBSERVATION>\n%s\n</OBSERVATION>", captured)
	}

	// round budget exhausted without a final answer
	result.Success = false
	return result, nil
}

func (e *Executor) toolNames() []string {
	names := make([]string, 0, len(e.order))
	for _, t := range e.order {
		names = append(names, t.ToolName())
	}
	return names
}

// Close releases the executor's resources
func (e *Executor) Close() {
	if e.turnLogger != nil {
		e.turnLogger.Close()
	}
	if e.session != nil {
		e.session.Close()
	}
	if e.ownsProvider {
		if closer, ok := e.provider.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
