package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"maestro/aitools"
	"maestro/cluster"
	"maestro/llm"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// scriptedProvider plays back canned responses and records every request.
type scriptedProvider struct {
	responses []string
	requests  []*llm.ChatRequest
}

func (p *scriptedProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	next, err := p.next()
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Content: next}, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	p.requests = append(p.requests, req)
	next, err := p.next()
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Content: next}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) next() (string, error) {
	if len(p.responses) == 0 {
		return "", fmt.Errorf("script exhausted")
	}
	next := p.responses[0]
	p.responses = p.responses[1:]
	return next, nil
}

// echoTool returns a fixed output for any input.
type echoTool struct {
	name   string
	output string
}

func (t *echoTool) ToolName() string                  { return t.name }
func (t *echoTool) ToolDescription() string           { return "returns " + t.output }
func (t *echoTool) ToolPayloadSchema() aitools.Schema { return aitools.Schema{} }
func (t *echoTool) Call(params string) string         { return t.output }

type silentChatHandler struct{}

func (silentChatHandler) Welcome(agentName, modelName string)  {}
func (silentChatHandler) AwaitClientAnswer() (string, error)   { return "", nil }
func (silentChatHandler) Goodbye()                             {}
func (silentChatHandler) Error(err error)                      {}
func (silentChatHandler) Thinking()                            {}
func (silentChatHandler) CallingTool(toolName, payload string) {}
func (silentChatHandler) ToolComplete(toolName string)         {}
func (silentChatHandler) PublishReasoningChunk(chunk string)   {}
func (silentChatHandler) FinishReasoning()                     {}
func (silentChatHandler) PublishAnswerChunk(chunk string)      {}
func (silentChatHandler) FinishAnswer()                        {}

// failureStreamer records errors surfaced through the chat handler.
type failureStreamer struct {
	silentChatHandler
	failures []error
}

func (s *failureStreamer) Error(err error) { s.failures = append(s.failures, err) }

var _ = Describe("Executor", func() {
	var (
		provider *scriptedProvider
		registry *cluster.Registry
		executor *Executor
	)

	newExecutor := func(responses ...string) *Executor {
		provider = &scriptedProvider{responses: responses}
		return &Executor{
			provider:  provider,
			model:     "test-model",
			registry:  registry,
			artifacts: aitools.NewArtifactStore(),
			capture:   aitools.DefaultCaptureConfig(),
			streamer:  silentChatHandler{},
		}
	}

	BeforeEach(func() {
		registry = cluster.NewRegistry()
		Expect(registry.Register(&echoTool{name: "calculator", output: "4"}, cluster.Math)).To(Succeed())
	})

	It("runs a tool round and finishes on the answer", func() {
		executor = newExecutor(
			"<REASONING>\nneed to compute\n</REASONING><ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"2+2\"}</ACTION_INPUT>",
			"<ANSWER>\nThe result is 4.\n</ANSWER>",
		)

		result, err := executor.Run(context.Background(), "what is 2+2?", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Answer).To(Equal("The result is 4."))
		Expect(result.Actions).To(HaveLen(1))
		Expect(result.Actions[0].Tool).To(Equal("calculator"))
		Expect(result.Actions[0].OK).To(BeTrue())

		// the tool output goes back to the model as an observation
		Expect(provider.requests).To(HaveLen(2))
		secondRound := provider.requests[1].Messages
		Expect(secondRound[len(secondRound)-1].Content).To(Equal("<OBSERVATION>\n4\n</OBSERVATION>"))
	})

	It("records an unknown tool as a failed action and continues", func() {
		executor = newExecutor(
			"<ACTION>ghost</ACTION><ACTION_INPUT>{}</ACTION_INPUT>",
			"<ANSWER>giving up on that tool</ANSWER>",
		)

		result, err := executor.Run(context.Background(), "use the ghost tool", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Actions).To(HaveLen(1))
		Expect(result.Actions[0].OK).To(BeFalse())
		Expect(result.Actions[0].Output).To(ContainSubstring("not found"))
		Expect(result.Success).To(BeTrue())
	})

	It("surfaces a planner question instead of finishing", func() {
		executor = newExecutor("<ASK_PLANNER>\nWhich account should I use?\n</ASK_PLANNER>")

		result, err := executor.Run(context.Background(), "log in", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Question).To(Equal("Which account should I use?"))
		Expect(result.Success).To(BeFalse())
	})

	It("stops unsuccessfully when the round budget runs out", func() {
		executor = newExecutor(
			"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"1\"}</ACTION_INPUT>",
			"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"2\"}</ACTION_INPUT>",
		)

		result, err := executor.Run(context.Background(), "loop forever", []cluster.Name{cluster.Math}, 0.1, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeFalse())
		Expect(result.Actions).To(HaveLen(2))
	})

	It("wraps backend failures as infrastructure failures", func() {
		executor = newExecutor() // empty script, stream creation fails

		_, err := executor.Run(context.Background(), "anything", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).To(HaveOccurred())
		var infra *InfrastructureFailure
		Expect(errors.As(err, &infra)).To(BeTrue())
		Expect(infra.Stage).To(Equal("executor"))
	})

	It("restores the session temperature after a run", func() {
		executor = newExecutor("<ANSWER>done</ANSWER>")

		_, err := executor.Run(context.Background(), "quick", []cluster.Name{cluster.Math}, 0.9, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(provider.requests[0].Temperature).To(Equal(0.9))
		Expect(executor.session.Temperature()).To(Equal(DefaultExecutorTemperature))
	})

	It("surfaces a failed tool call to the chat handler", func() {
		Expect(registry.Register(&echoTool{name: "divider", output: "Error: division by zero"}, cluster.Math)).To(Succeed())
		executor = newExecutor(
			"<ACTION>divider</ACTION><ACTION_INPUT>{\"a\": 1, \"b\": 0}</ACTION_INPUT>",
			"<ANSWER>cannot divide by zero</ANSWER>",
		)
		streamer := &failureStreamer{}
		executor.streamer = streamer

		result, err := executor.Run(context.Background(), "divide 1 by 0", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Actions[0].OK).To(BeFalse())

		Expect(streamer.failures).To(HaveLen(1))
		var toolErr *ToolExecutionFailure
		Expect(errors.As(streamer.failures[0], &toolErr)).To(BeTrue())
		Expect(toolErr.Tool).To(Equal("divider"))
		Expect(toolErr.Error()).To(ContainSubstring("division by zero"))
	})

	It("writes one session snapshot per turn when turn logging is enabled", func() {
		executor = newExecutor(
			"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"2+2\"}</ACTION_INPUT>",
			"<ANSWER>done</ANSWER>",
		)
		logFile := filepath.Join(GinkgoT().TempDir(), "turns.jsonl")
		tl, err := llm.NewTurnLogger(logFile)
		Expect(err).NotTo(HaveOccurred())
		executor.turnLogger = tl

		_, err = executor.Run(context.Background(), "what is 2+2?", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		executor.Close()

		data, err := os.ReadFile(logFile)
		Expect(err).NotTo(HaveOccurred())
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(ContainSubstring(`"action":"calculator"`))
		Expect(lines[1]).To(ContainSubstring(`"turn":2`))
	})

	It("starts every run from a fresh transcript", func() {
		executor = newExecutor(
			"<ACTION>calculator</ACTION><ACTION_INPUT>{\"expression\": \"2+2\"}</ACTION_INPUT>",
			"<ANSWER>one</ANSWER>",
			"<ANSWER>two</ANSWER>",
		)

		_, err := executor.Run(context.Background(), "first", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())

		_, err = executor.Run(context.Background(), "second", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())

		// system prompt plus the new instruction, nothing from the first run
		msgs := provider.requests[2].Messages
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[len(msgs)-1].Content).To(Equal("second"))
		for _, m := range msgs {
			Expect(m.Content).NotTo(ContainSubstring("<OBSERVATION>"))
		}
	})

	It("keeps the session when the cluster set is unchanged", func() {
		executor = newExecutor("<ANSWER>one</ANSWER>", "<ANSWER>two</ANSWER>")

		_, err := executor.Run(context.Background(), "first", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		first := executor.session

		_, err = executor.Run(context.Background(), "second", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(executor.session).To(BeIdenticalTo(first))
	})

	It("rebuilds the session when the cluster set changes", func() {
		Expect(registry.Register(&echoTool{name: "get", output: "ok"}, cluster.Web)).To(Succeed())
		executor = newExecutor("<ANSWER>one</ANSWER>", "<ANSWER>two</ANSWER>")

		_, err := executor.Run(context.Background(), "first", []cluster.Name{cluster.Math}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		first := executor.session

		_, err = executor.Run(context.Background(), "second", []cluster.Name{cluster.Web}, 0.1, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(executor.session).NotTo(BeIdenticalTo(first))
	})
})
