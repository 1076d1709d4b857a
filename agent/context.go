package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultContextWindow is how many recent planner exchanges are kept.
const DefaultContextWindow = 3

// Exchange is one planner prompt/response pair retained in the context
// window.
type Exchange struct {
	Prompt   string
	Response string
}

// SharedContext is the per-run mutable state the coordinator threads through
// every planner call: a bounded window of recent exchanges plus a snapshot
// of externally observable state. Exactly one coordinator owns an instance;
// it is never shared across concurrent runs.
type SharedContext struct {
	capacity  int
	exchanges []Exchange

	LastAction      string
	ExtractedData   map[string]string
	VisitedPages    []string
	CurrentLocation string
	CurrentTitle    string
}

// NewSharedContext creates a context with the given exchange window
// capacity. A capacity below one falls back to the default.
func NewSharedContext(capacity int) *SharedContext {
	if capacity < 1 {
		capacity = DefaultContextWindow
	}
	return &SharedContext{
		capacity:      capacity,
		ExtractedData: make(map[string]string),
	}
}

// AddExchange records a planner exchange, dropping the oldest when the
// window is full.
func (c *SharedContext) AddExchange(prompt, response string) {
	c.exchanges = append(c.exchanges, Exchange{Prompt: prompt, Response: response})
	if len(c.exchanges) > c.capacity {
		c.exchanges = c.exchanges[1:]
	}
}

// RecordActions refreshes the external-state snapshot from an executor run's
// action list.
func (c *SharedContext) RecordActions(actions []ActionRecord) {
	for _, a := range actions {
		c.LastAction = a.Signature()
		if !a.OK {
			continue
		}

		// Track page movement from web tool arguments
		var args map[string]any
		if json.Unmarshal([]byte(a.Input), &args) == nil {
			if url, ok := args["url"].(string); ok && url != "" {
				c.CurrentLocation = url
				c.VisitedPages = appendUnique(c.VisitedPages, url)
			}
		}

		// Short successful outputs are worth keeping verbatim
		if len(a.Output) > 0 && len(a.Output) <= 200 {
			c.ExtractedData[a.Tool] = a.Output
		}
	}
}

// Snapshot renders the external state and recent history for inclusion in a
// planner prompt.
func (c *SharedContext) Snapshot() string {
	var sb strings.Builder
	sb.WriteString("## Current State\n")

	if c.LastAction != "" {
		sb.WriteString(fmt.Sprintf("Last action: %s\n", c.LastAction))
	}
	if c.CurrentLocation != "" {
		sb.WriteString(fmt.Sprintf("Current location: %s\n", c.CurrentLocation))
	}
	if c.CurrentTitle != "" {
		sb.WriteString(fmt.Sprintf("Current page title: %s\n", c.CurrentTitle))
	}
	if len(c.VisitedPages) > 0 {
		sb.WriteString(fmt.Sprintf("Visited pages: %s\n", strings.Join(c.VisitedPages, ", ")))
	}
	if len(c.ExtractedData) > 0 {
		sb.WriteString("Extracted data:\n")
		for tool, data := range c.ExtractedData {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", tool, data))
		}
	}

	if len(c.exchanges) > 0 {
		sb.WriteString("\n## Recent Exchanges\n")
		for _, ex := range c.exchanges {
			sb.WriteString(fmt.Sprintf("Q: %s\nA: %s\n", truncate(ex.Prompt, 200), truncate(ex.Response, 200)))
		}
	}

	return sb.String()
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
