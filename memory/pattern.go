// Package memory keeps successful action sequences keyed by a coarse task
// type so the planner can reuse known-good plans as hints.
package memory

import (
	"sort"
	"strings"
)

// Pattern is one remembered task type with its recent action sequences.
type Pattern struct {
	TaskType   string     `json:"taskType"`
	Examples   [][]string `json:"examples"`
	UsageCount int        `json:"usageCount"`
	seq        int        // insertion order, breaks eviction ties
}

const (
	// DefaultTableCap bounds the number of distinct task types kept.
	DefaultTableCap = 10
	// DefaultExampleCap bounds the examples kept per task type.
	DefaultExampleCap = 5
)

// classification rules, checked in priority order; first hit wins.
var taskTypeRules = []struct {
	taskType string
	keywords []string
}{
	{"web_search", []string{"search", "google", "find", "look for", "browse"}},
	{"form_login", []string{"login"}},
	{"form_fill", []string{"form", "fill", "submit"}},
	{"data_extract", []string{"extract", "scrape", "get data", "file", "csv", "read"}},
	{"web_navigation", []string{"click", "navigate", "open"}},
	{"math", []string{"calculate", "compute"}},
}

// Classify maps a task description to a task type. Pure function; no match
// yields "other".
func Classify(description string) string {
	lower := strings.ToLower(description)
	for _, rule := range taskTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.taskType
			}
		}
	}
	return "other"
}

// Persister stores patterns durably. The zero Memory works without one.
type Persister interface {
	SavePattern(p Pattern) error
	LoadPatterns() ([]Pattern, error)
	DeletePattern(taskType string) error
}

// Memory is the in-process pattern table. Not safe for concurrent use; one
// coordinator owns one Memory.
type Memory struct {
	tableCap   int
	exampleCap int
	patterns   []*Pattern
	nextSeq    int
	persister  Persister
}

// Option configures a Memory.
type Option func(*Memory)

// WithCaps overrides the table and per-entry example caps.
func WithCaps(tableCap, exampleCap int) Option {
	return func(m *Memory) {
		if tableCap > 0 {
			m.tableCap = tableCap
		}
		if exampleCap > 0 {
			m.exampleCap = exampleCap
		}
	}
}

// WithPersister attaches durable storage. Existing patterns are loaded
// eagerly; load errors leave the table empty rather than failing.
func WithPersister(p Persister) Option {
	return func(m *Memory) { m.persister = p }
}

// New creates a pattern memory with the default caps.
func New(opts ...Option) *Memory {
	m := &Memory{tableCap: DefaultTableCap, exampleCap: DefaultExampleCap}
	for _, opt := range opts {
		opt(m)
	}
	if m.persister != nil {
		if loaded, err := m.persister.LoadPatterns(); err == nil {
			for i := range loaded {
				p := loaded[i]
				p.seq = m.nextSeq
				m.nextSeq++
				m.patterns = append(m.patterns, &p)
			}
		}
	}
	return m
}

// Record appends an action sequence under taskType, bumping its usage
// count. The example list keeps the most recent entries up to the example
// cap; when the table exceeds its cap the globally least-used entry is
// evicted, oldest first on ties.
func (m *Memory) Record(taskType string, actions []string) {
	seq := make([]string, len(actions))
	copy(seq, actions)

	var entry *Pattern
	for _, p := range m.patterns {
		if p.TaskType == taskType {
			entry = p
			break
		}
	}
	if entry == nil {
		entry = &Pattern{TaskType: taskType, seq: m.nextSeq}
		m.nextSeq++
		m.patterns = append(m.patterns, entry)
	}

	entry.Examples = append(entry.Examples, seq)
	if len(entry.Examples) > m.exampleCap {
		entry.Examples = entry.Examples[len(entry.Examples)-m.exampleCap:]
	}
	entry.UsageCount++

	if len(m.patterns) > m.tableCap {
		m.evictLeastUsed()
	}

	if m.persister != nil {
		_ = m.persister.SavePattern(*entry)
	}
}

func (m *Memory) evictLeastUsed() {
	victim := 0
	for i, p := range m.patterns {
		v := m.patterns[victim]
		if p.UsageCount < v.UsageCount || (p.UsageCount == v.UsageCount && p.seq < v.seq) {
			victim = i
		}
	}
	evicted := m.patterns[victim]
	m.patterns = append(m.patterns[:victim], m.patterns[victim+1:]...)
	if m.persister != nil {
		_ = m.persister.DeletePattern(evicted.TaskType)
	}
}

// FindSimilar classifies the description and returns the most recently
// recorded example for that task type. A nil return means no pattern
// exists, which is the common case and not an error.
func (m *Memory) FindSimilar(description string) []string {
	taskType := Classify(description)
	for _, p := range m.patterns {
		if p.TaskType != taskType {
			continue
		}
		if len(p.Examples) == 0 {
			return nil
		}
		latest := p.Examples[len(p.Examples)-1]
		out := make([]string, len(latest))
		copy(out, latest)
		return out
	}
	return nil
}

// Len returns the number of distinct task types stored.
func (m *Memory) Len() int {
	return len(m.patterns)
}

// Usage returns the usage count for a task type, zero when absent.
func (m *Memory) Usage(taskType string) int {
	for _, p := range m.patterns {
		if p.TaskType == taskType {
			return p.UsageCount
		}
	}
	return 0
}

// Types returns the stored task types sorted by usage, most used first.
func (m *Memory) Types() []string {
	sorted := make([]*Pattern, len(m.patterns))
	copy(sorted, m.patterns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].UsageCount > sorted[j].UsageCount })
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = p.TaskType
	}
	return out
}
