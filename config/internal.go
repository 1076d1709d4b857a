package config

import "strings"

// ReservedPluginNamespaces are plugin names reserved for internal tools
var ReservedPluginNamespaces = []string{"bash", "http", "math", "time", "text", "file"}

// InternalPluginTools maps internal plugin namespaces to their tools
// These are accessed as plugins.bash.bash, plugins.http.get, etc.
var InternalPluginTools = map[string][]string{
	"bash": {"bash"},
	"http": {"get", "post", "delete"},
	"math": {"calculator", "stats"},
	"time": {"datetime"},
	"text": {"analysis", "summarize"},
	"file": {"read", "write", "csv_preview", "json_query"},
}

// InternalToolClusters maps internal plugin namespaces to the cluster names
// their tools register under.
var InternalToolClusters = map[string][]string{
	"bash": {"SYSTEM", "CODE"},
	"http": {"WEB"},
	"math": {"MATH"},
	"time": {"SYSTEM"},
	"text": {"TEXT"},
	"file": {"DATA"},
}

// IsReservedPluginNamespace checks if a plugin name is reserved for internal tools
func IsReservedPluginNamespace(name string) bool {
	for _, n := range ReservedPluginNamespaces {
		if n == name {
			return true
		}
	}
	return false
}

// IsInternalPluginTool checks if a tool reference (e.g., "plugins.http.get") is an internal tool
func IsInternalPluginTool(ref string) bool {
	parts := strings.Split(ref, ".")
	if len(parts) != 3 || parts[0] != "plugins" {
		return false
	}
	pluginName := parts[1]
	toolName := parts[2]

	tools, ok := InternalPluginTools[pluginName]
	if !ok {
		return false
	}
	for _, t := range tools {
		if t == toolName {
			return true
		}
	}
	return false
}

// IsInternalTool checks if a bare tool name collides with an internal tool
func IsInternalTool(name string) bool {
	for _, tools := range InternalPluginTools {
		for _, t := range tools {
			if t == name {
				return true
			}
		}
	}
	return false
}
