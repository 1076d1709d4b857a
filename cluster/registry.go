package cluster

import (
	"fmt"
	"sort"
	"strings"

	"maestro/aitools"
)

// Name identifies one of the fixed tool clusters.
type Name string

const (
	Web           Name = "WEB"
	Math          Name = "MATH"
	Data          Name = "DATA"
	Text          Name = "TEXT"
	Communication Name = "COMMUNICATION"
	System        Name = "SYSTEM"
	Code          Name = "CODE"
)

// Definition describes a cluster for model-facing prompts and for the
// keyword fallback in Suggest.
type Definition struct {
	Description string
	Keywords    []string
}

// Definitions holds the fixed cluster set. The set itself never changes at
// runtime; only tool membership does.
var Definitions = map[Name]Definition{
	Math: {
		Description: "Mathematical operations, calculations, statistics",
		Keywords:    []string{"calculate", "math", "number", "equation", "compute", "sum", "average", "statistics"},
	},
	Web: {
		Description: "Web browsing, navigation, clicking, form filling",
		Keywords:    []string{"web", "browser", "click", "navigate", "url", "page", "link", "website"},
	},
	Data: {
		Description: "File operations, data analysis, CSV/JSON processing",
		Keywords:    []string{"file", "data", "csv", "json", "read", "write", "analyze", "process", "parse"},
	},
	Text: {
		Description: "Text processing, NLP, translation, summarization",
		Keywords:    []string{"text", "translate", "summarize", "language", "words", "paragraph", "document"},
	},
	Communication: {
		Description: "Email, messaging, notifications, API calls",
		Keywords:    []string{"email", "send", "message", "notify", "api", "request", "post", "fetch"},
	},
	System: {
		Description: "System operations, file system, commands, datetime",
		Keywords:    []string{"system", "command", "execute", "datetime", "time", "date", "directory", "path"},
	},
	Code: {
		Description: "Programming, code generation, debugging",
		Keywords:    []string{"code", "programming", "function", "script", "debug", "compile"},
	},
}

// Names returns the cluster names in a stable order.
func Names() []Name {
	names := make([]Name, 0, len(Definitions))
	for n := range Definitions {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Valid reports whether name is a defined cluster.
func Valid(name Name) bool {
	_, ok := Definitions[name]
	return ok
}

// Description returns the prompt-facing description for a cluster, or ""
// for an unknown name.
func Description(name Name) string {
	return Definitions[name].Description
}

// Registry maps tools into clusters. A tool may belong to several clusters;
// registration is idempotent per (tool, cluster) pair. Lookup order is
// deterministic: clusters in the order requested, tools in registration
// order within each cluster.
type Registry struct {
	members map[Name][]aitools.Tool
	// reverse index: tool name -> clusters it belongs to
	toolClusters map[string]map[Name]bool
}

// NewRegistry returns an empty registry over the fixed cluster set.
func NewRegistry() *Registry {
	return &Registry{
		members:      make(map[Name][]aitools.Tool),
		toolClusters: make(map[string]map[Name]bool),
	}
}

// Register adds a tool to one or more clusters. Registering the same tool
// in the same cluster twice is a no-op. An unknown cluster name or an empty
// cluster list is a configuration error.
func (r *Registry) Register(tool aitools.Tool, clusters ...Name) error {
	if len(clusters) == 0 {
		return fmt.Errorf("tool '%s': %w: no cluster assignment", tool.ToolName(), ErrConfiguration)
	}

	name := tool.ToolName()
	for _, c := range clusters {
		if !Valid(c) {
			return fmt.Errorf("tool '%s': %w: unknown cluster '%s' (valid: %v)", name, ErrConfiguration, c, Names())
		}
		if r.toolClusters[name][c] {
			continue
		}
		r.members[c] = append(r.members[c], tool)
		if r.toolClusters[name] == nil {
			r.toolClusters[name] = make(map[Name]bool)
		}
		r.toolClusters[name][c] = true
	}
	return nil
}

// Tools returns the union of the given clusters' tools, deduplicated by
// tool name, in first-encountered order. Unknown clusters contribute
// nothing.
func (r *Registry) Tools(clusters ...Name) []aitools.Tool {
	seen := make(map[string]bool)
	var out []aitools.Tool

	for _, c := range clusters {
		for _, tool := range r.members[c] {
			if seen[tool.ToolName()] {
				continue
			}
			seen[tool.ToolName()] = true
			out = append(out, tool)
		}
	}
	return out
}

// ClustersOf returns the clusters a tool was registered in, sorted.
func (r *Registry) ClustersOf(toolName string) []Name {
	set := r.toolClusters[toolName]
	if len(set) == 0 {
		return nil
	}
	names := make([]Name, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Count returns the number of tools registered in a cluster.
func (r *Registry) Count(cluster Name) int {
	return len(r.members[cluster])
}

// Reset clears tool membership for the given clusters, or for every
// cluster when none are named, repairing the reverse index as it goes.
// Cluster definitions are untouched.
func (r *Registry) Reset(clusters ...Name) {
	if len(clusters) == 0 {
		r.members = make(map[Name][]aitools.Tool)
		r.toolClusters = make(map[string]map[Name]bool)
		return
	}
	for _, c := range clusters {
		for _, tool := range r.members[c] {
			set := r.toolClusters[tool.ToolName()]
			delete(set, c)
			if len(set) == 0 {
				delete(r.toolClusters, tool.ToolName())
			}
		}
		delete(r.members, c)
	}
}

// Suggest ranks clusters by keyword hits against the task text. It is the
// deterministic fallback used when no model selection is available.
func Suggest(task string) []Name {
	lower := strings.ToLower(task)

	type scored struct {
		name  Name
		score int
	}
	var hits []scored
	for _, name := range Names() {
		score := 0
		for _, kw := range Definitions[name].Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{name, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]Name, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}
