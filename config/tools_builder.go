package config

import (
	"strings"

	"maestro/aitools"
	"maestro/cluster"
)

// ToolBinding pairs a runnable tool with the clusters it registers under
type ToolBinding struct {
	Ref      string
	Tool     aitools.Tool
	Clusters []cluster.Name
}

// BuildToolBindings collects every tool the config makes available: internal
// tools, custom tools, and external plugin tools. Each binding carries the
// cluster names the tool belongs to.
func (c *Config) BuildToolBindings() []ToolBinding {
	var bindings []ToolBinding

	// Internal tools, grouped by namespace
	for namespace, toolNames := range InternalPluginTools {
		clusters := toClusterNames(InternalToolClusters[namespace])
		for _, toolName := range toolNames {
			ref := "plugins." + namespace + "." + toolName
			tool := GetInternalPluginTool(ref)
			if tool == nil {
				continue
			}
			bindings = append(bindings, ToolBinding{Ref: ref, Tool: tool, Clusters: clusters})
		}
	}

	// Custom tools declared in HCL
	for i := range c.CustomTools {
		ct := &c.CustomTools[i]
		tool := ct.ToToolWithPlugins(c.LoadedPlugins)
		if tool == nil {
			continue
		}
		bindings = append(bindings, ToolBinding{
			Ref:      "tools." + ct.Name,
			Tool:     tool,
			Clusters: toClusterNames(ct.Clusters),
		})
	}

	// External plugin tools; cluster assignment comes from the plugin itself
	for pluginName, client := range c.LoadedPlugins {
		infos, err := client.ListTools()
		if err != nil {
			continue
		}
		for _, info := range infos {
			tool, err := client.GetTool(info.Name)
			if err != nil {
				continue
			}
			clusters := toClusterNames(info.Clusters)
			if len(clusters) == 0 {
				clusters = []cluster.Name{cluster.Web}
			}
			bindings = append(bindings, ToolBinding{
				Ref:      "plugins." + pluginName + "." + info.Name,
				Tool:     tool,
				Clusters: clusters,
			})
		}
	}

	return bindings
}

// BuildRegistry registers every configured tool into a fresh cluster registry
func (c *Config) BuildRegistry() (*cluster.Registry, error) {
	reg := cluster.NewRegistry()
	for _, b := range c.BuildToolBindings() {
		if err := reg.Register(b.Tool, b.Clusters...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func toClusterNames(names []string) []cluster.Name {
	out := make([]cluster.Name, 0, len(names))
	for _, n := range names {
		out = append(out, cluster.Name(strings.ToUpper(n)))
	}
	return out
}

// GetInternalPluginTool returns the aitools.Tool for an internal plugin tool reference
func GetInternalPluginTool(ref string) aitools.Tool {
	switch ref {
	case "plugins.bash.bash":
		return &aitools.BashTool{}
	case "plugins.http.get":
		return &aitools.HTTPGetTool{}
	case "plugins.http.post":
		return &aitools.HTTPPostTool{}
	case "plugins.http.delete":
		return &aitools.HTTPDeleteTool{}
	case "plugins.math.calculator":
		return &aitools.CalculatorTool{}
	case "plugins.math.stats":
		return &aitools.StatsTool{}
	case "plugins.time.datetime":
		return &aitools.DateTimeTool{}
	case "plugins.text.analysis":
		return &aitools.TextAnalysisTool{}
	case "plugins.text.summarize":
		return &aitools.SummarizeTool{}
	case "plugins.file.read":
		return &aitools.ReadFileTool{}
	case "plugins.file.write":
		return &aitools.WriteFileTool{}
	case "plugins.file.csv_preview":
		return &aitools.CSVPreviewTool{}
	case "plugins.file.json_query":
		return &aitools.JSONQueryTool{}
	default:
		return nil
	}
}
