package wsbridge

import (
	"maestro/aitools"
	"maestro/cluster"
	"maestro/config"
)

// InstanceInfo is a JSON-safe snapshot of the instance configuration for
// gateway clients.
type InstanceInfo struct {
	Models      []ModelInfo    `json:"models,omitempty"`
	Clusters    []ClusterInfo  `json:"clusters,omitempty"`
	Plugins     []PluginInfo   `json:"plugins,omitempty"`
	Variables   []VariableInfo `json:"variables,omitempty"`
	Coordinator *LimitsInfo    `json:"coordinator,omitempty"`
}

// ModelInfo describes one configured model
type ModelInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// ClusterInfo describes one tool cluster and the tools registered in it
type ClusterInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Tools       []WireToolInfo `json:"tools,omitempty"`
}

// WireToolInfo describes one tool
type WireToolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *ToolSchema `json:"parameters,omitempty"`
}

// ToolSchema mirrors a tool's input schema
type ToolSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties,omitempty"`
	Required   []string                `json:"required,omitempty"`
}

// ToolProperty is one schema property
type ToolProperty struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Required    []string                `json:"required,omitempty"`
	Items       *ToolProperty           `json:"items,omitempty"`
	Properties  map[string]ToolProperty `json:"properties,omitempty"`
}

// PluginInfo describes one external plugin
type PluginInfo struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Version string `json:"version"`
	Loaded  bool   `json:"loaded"`
}

// VariableInfo describes one configured variable (values stay local)
type VariableInfo struct {
	Name   string `json:"name"`
	Secret bool   `json:"secret"`
}

// LimitsInfo exposes the coordinator's escalation limits
type LimitsInfo struct {
	WindowCapacity      int `json:"windowCapacity"`
	StagnationThreshold int `json:"stagnationThreshold"`
	MaxIterations       int `json:"maxIterations"`
	SubtaskRetryLimit   int `json:"subtaskRetryLimit"`
	TaskRevisionLimit   int `json:"taskRevisionLimit"`
	TodoRevisionLimit   int `json:"todoRevisionLimit"`
}

// ConfigToInstanceInfo converts the HCL-based config into a JSON-safe
// InstanceInfo.
func ConfigToInstanceInfo(cfg *config.Config) InstanceInfo {
	info := InstanceInfo{}

	for _, m := range cfg.Models {
		model := ""
		if len(m.AllowedModels) > 0 {
			model = m.AllowedModels[0]
		}
		info.Models = append(info.Models, ModelInfo{
			Name:     m.Name,
			Provider: string(m.Provider),
			Model:    model,
		})
	}

	// Cluster membership comes from the same bindings the coordinator uses
	byCluster := make(map[cluster.Name][]WireToolInfo)
	for _, binding := range cfg.BuildToolBindings() {
		ti := aitoolToWireToolInfo(binding.Tool)
		for _, name := range binding.Clusters {
			byCluster[name] = append(byCluster[name], ti)
		}
	}
	for _, name := range cluster.Names() {
		info.Clusters = append(info.Clusters, ClusterInfo{
			Name:        string(name),
			Description: cluster.Description(name),
			Tools:       byCluster[name],
		})
	}

	for _, p := range cfg.Plugins {
		_, loaded := cfg.LoadedPlugins[p.Name]
		info.Plugins = append(info.Plugins, PluginInfo{
			Name:    p.Name,
			Source:  p.Source,
			Version: p.Version,
			Loaded:  loaded,
		})
	}

	for _, v := range cfg.Variables {
		info.Variables = append(info.Variables, VariableInfo{
			Name:   v.Name,
			Secret: v.Secret,
		})
	}

	if cfg.Coordinator != nil {
		info.Coordinator = &LimitsInfo{
			WindowCapacity:      cfg.Coordinator.WindowCapacity,
			StagnationThreshold: cfg.Coordinator.StagnationThreshold,
			MaxIterations:       cfg.Coordinator.MaxIterations,
			SubtaskRetryLimit:   cfg.Coordinator.SubtaskRetryLimit,
			TaskRevisionLimit:   cfg.Coordinator.TaskRevisionLimit,
			TodoRevisionLimit:   cfg.Coordinator.TodoRevisionLimit,
		}
	}

	return info
}

func aitoolToWireToolInfo(t aitools.Tool) WireToolInfo {
	return WireToolInfo{
		Name:        t.ToolName(),
		Description: t.ToolDescription(),
		Parameters:  convertSchema(t.ToolPayloadSchema()),
	}
}

func convertSchema(s aitools.Schema) *ToolSchema {
	if len(s.Properties) == 0 {
		return nil
	}
	ts := &ToolSchema{
		Type:       string(s.Type),
		Properties: make(map[string]ToolProperty, len(s.Properties)),
		Required:   s.Required,
	}
	for name, prop := range s.Properties {
		ts.Properties[name] = convertProperty(prop)
	}
	return ts
}

func convertProperty(p aitools.Property) ToolProperty {
	tp := ToolProperty{
		Type:        string(p.Type),
		Description: p.Description,
		Required:    p.Required,
	}
	if p.Items != nil {
		items := convertProperty(*p.Items)
		tp.Items = &items
	}
	if len(p.Properties) > 0 {
		tp.Properties = make(map[string]ToolProperty, len(p.Properties))
		for name, nested := range p.Properties {
			tp.Properties[name] = convertProperty(nested)
		}
	}
	return tp
}
