package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"maestro/cluster"
	"maestro/plugin"
)

// Config holds all configuration
type Config struct {
	Models      []Model            `hcl:"model,block"`
	Variables   []Variable         `hcl:"variable,block"`
	CustomTools []CustomTool       `hcl:"tool,block"`
	Plugins     []Plugin           `hcl:"plugin,block"`
	Coordinator *CoordinatorConfig `hcl:"coordinator,block"`
	Storage     *StorageConfig     `hcl:"storage,block"`

	// LoadedPlugins holds the loaded plugin clients, keyed by plugin name
	LoadedPlugins map[string]*plugin.PluginClient `hcl:"-"`
	// PluginWarnings holds warnings for plugins that could not be loaded
	PluginWarnings []string `hcl:"-"`
	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value `hcl:"-"`
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
	}

	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	for _, p := range c.Plugins {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("plugin '%s': %w", p.Name, err)
		}
	}

	if c.Coordinator != nil {
		if err := c.Coordinator.Validate(); err != nil {
			return fmt.Errorf("coordinator: %w", err)
		}
	}

	// Validate custom tools and check for reserved name conflicts
	for _, t := range c.CustomTools {
		if err := t.Validate(); err != nil {
			return err
		}
		if IsInternalTool(t.Name) {
			return fmt.Errorf("custom tool '%s': name conflicts with internal tool", t.Name)
		}
		for _, cl := range t.Clusters {
			if !cluster.Valid(cluster.Name(cl)) {
				return fmt.Errorf("custom tool '%s': unknown cluster '%s'. Valid clusters: %v", t.Name, cl, cluster.Names())
			}
		}
	}

	return nil
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	return loadFromFiles(files)
}

// parsedBlocks holds all blocks extracted from a file in one pass
type parsedBlocks struct {
	Variables    []*hcl.Block
	Models       []*hcl.Block
	Tools        []*hcl.Block
	Plugins      []*hcl.Block
	Coordinators []*hcl.Block
	Storages     []*hcl.Block
}

// loadFromFiles implements staged loading: variables → plugins → models → tools
func loadFromFiles(files []string) (*Config, error) {
	// Parse all files and extract all block types in a single pass
	parser := hclparse.NewParser()
	var allParsedBlocks []parsedBlocks

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("[1] parse %s: %w", file, diags)
		}

		// Extract all known block types in one PartialContent call
		content, _, diags := hclFile.Body.PartialContent(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{
				{Type: "variable", LabelNames: []string{"name"}},
				{Type: "model", LabelNames: []string{"name"}},
				{Type: "tool", LabelNames: []string{"name"}},
				{Type: "plugin", LabelNames: []string{"name"}},
				{Type: "coordinator"},
				{Type: "storage"},
			},
		})
		if diags.HasErrors() {
			return nil, fmt.Errorf("[2] partial content %s: %w", file, diags)
		}

		var pb parsedBlocks
		for _, block := range content.Blocks {
			switch block.Type {
			case "variable":
				pb.Variables = append(pb.Variables, block)
			case "model":
				pb.Models = append(pb.Models, block)
			case "tool":
				pb.Tools = append(pb.Tools, block)
			case "plugin":
				pb.Plugins = append(pb.Plugins, block)
			case "coordinator":
				pb.Coordinators = append(pb.Coordinators, block)
			case "storage":
				pb.Storages = append(pb.Storages, block)
			}
		}
		allParsedBlocks = append(allParsedBlocks, pb)
	}

	// Stage 1: Load variables (no context needed)
	var allVars []Variable
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Variables {
			var v Variable
			v.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, nil, &v)
			if diags.HasErrors() {
				return nil, fmt.Errorf("[3] decode variable %s: %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}

	// Build vars context
	varsCtx, resolvedVars := buildVarsContext(allVars)

	// Stage 2: Load plugins (with vars context - load early so tools can reference them)
	var allPlugins []Plugin
	var pluginWarnings []string
	loadedPlugins := make(map[string]*plugin.PluginClient)

	for _, pb := range allParsedBlocks {
		for _, block := range pb.Plugins {
			p, err := parsePluginBlock(block, varsCtx)
			if err != nil {
				return nil, err
			}
			allPlugins = append(allPlugins, *p)

			// Try to load the plugin (passes source for auto-download if not found locally)
			client, err := plugin.LoadPlugin(p.Name, p.Version, p.Source)
			if err != nil {
				pluginWarnings = append(pluginWarnings, fmt.Sprintf("plugin '%s' (version %s): %v", p.Name, p.Version, err))
			} else {
				if len(p.Settings) > 0 {
					if err := client.Configure(p.Settings); err != nil {
						pluginWarnings = append(pluginWarnings, fmt.Sprintf("plugin '%s' configure: %v", p.Name, err))
						client.Close()
						continue
					}
				}
				loadedPlugins[p.Name] = client
			}
		}
	}

	// Build plugins context for HCL evaluation
	pluginsCtx := buildPluginsContext(varsCtx, loadedPlugins)

	// Stage 3: Load models (with vars + plugins context)
	var allModels []Model
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Models {
			var m Model
			m.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, pluginsCtx, &m)
			if diags.HasErrors() {
				return nil, diags
			}
			allModels = append(allModels, m)
		}
	}

	// Build models context (add to plugins context)
	modelsCtx := buildModelsContext(pluginsCtx, allModels)

	// Stage 4: Load custom tools (with vars + models + plugins context, plus dynamic field parsing)
	var allTools []CustomTool
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Tools {
			tool, err := parseToolBlock(block, modelsCtx, loadedPlugins)
			if err != nil {
				return nil, err
			}
			allTools = append(allTools, *tool)
		}
	}

	// Coordinator and storage blocks are plain attribute sets
	var coordinator *CoordinatorConfig
	var storage *StorageConfig
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Coordinators {
			if coordinator != nil {
				return nil, fmt.Errorf("duplicate coordinator block")
			}
			var cc CoordinatorConfig
			diags := gohcl.DecodeBody(block.Body, varsCtx, &cc)
			if diags.HasErrors() {
				return nil, fmt.Errorf("[4] decode coordinator: %w", diags)
			}
			coordinator = &cc
		}
		for _, block := range pb.Storages {
			if storage != nil {
				return nil, fmt.Errorf("duplicate storage block")
			}
			var sc StorageConfig
			diags := gohcl.DecodeBody(block.Body, varsCtx, &sc)
			if diags.HasErrors() {
				return nil, fmt.Errorf("[5] decode storage: %w", diags)
			}
			storage = &sc
		}
	}
	if coordinator == nil {
		coordinator = &CoordinatorConfig{}
	}
	coordinator.Defaults()
	if storage != nil {
		storage.Defaults()
	}

	return &Config{
		Variables:      allVars,
		Models:         allModels,
		CustomTools:    allTools,
		Plugins:        allPlugins,
		Coordinator:    coordinator,
		Storage:        storage,
		LoadedPlugins:  loadedPlugins,
		PluginWarnings: pluginWarnings,
		ResolvedVars:   resolvedVars,
	}, nil
}

// inputFieldBlock is used for parsing input field blocks
type inputFieldBlock struct {
	Name        string `hcl:"name,label"`
	Type        string `hcl:"type"`
	Description string `hcl:"description,optional"`
	Required    bool   `hcl:"required,optional"`
}

// inputsBlock is used for parsing the inputs block
type inputsBlock struct {
	Fields []inputFieldBlock `hcl:"field,block"`
}

// parseToolBlock parses a single tool block with dynamic fields based on implemented tool schema
func parseToolBlock(block *hcl.Block, baseCtx *hcl.EvalContext, loadedPlugins map[string]*plugin.PluginClient) (*CustomTool, error) {
	toolName := block.Labels[0]

	// Parse the tool block content: static fields (implements, clusters, description) + inputs block + dynamic fields
	toolContent, remainBody, diags := block.Body.PartialContent(&hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "implements", Required: true},
			{Name: "clusters", Required: true},
			{Name: "description"},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "inputs"},
		},
	})
	if diags.HasErrors() {
		return nil, diags
	}

	// Get implements attribute
	implementsAttr := toolContent.Attributes["implements"]
	implementsVal, diags := implementsAttr.Expr.Value(baseCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	implements := implementsVal.AsString()

	// Get clusters attribute (list of cluster names this tool registers under)
	clustersVal, diags := toolContent.Attributes["clusters"].Expr.Value(baseCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	var clusters []string
	if !clustersVal.CanIterateElements() {
		return nil, fmt.Errorf("tool '%s': clusters must be a list of cluster names", toolName)
	}
	for it := clustersVal.ElementIterator(); it.Next(); {
		_, v := it.Element()
		clusters = append(clusters, v.AsString())
	}
	if len(clusters) == 0 {
		return nil, fmt.Errorf("tool '%s': clusters must name at least one cluster", toolName)
	}

	// Get optional description
	var description string
	if descAttr, ok := toolContent.Attributes["description"]; ok {
		descVal, diags := descAttr.Expr.Value(baseCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		description = descVal.AsString()
	}

	tool := &CustomTool{
		Name:        toolName,
		Implements:  implements,
		Clusters:    clusters,
		Description: description,
		Inputs:      nil,
		FieldExprs:  make(map[string]hcl.Expression),
	}

	// Get the implemented tool's schema (supports both internal and plugin tools)
	implTool := tool.GetImplementedToolWithPlugins(loadedPlugins)
	if implTool == nil {
		return nil, fmt.Errorf("tool '%s': unknown implemented tool '%s'", toolName, implements)
	}

	// Parse inputs block if present
	for _, blk := range toolContent.Blocks {
		if blk.Type == "inputs" {
			var parsedInputs inputsBlock
			diags := gohcl.DecodeBody(blk.Body, nil, &parsedInputs)
			if diags.HasErrors() {
				return nil, diags
			}

			tool.Inputs = &InputsSchema{}
			for _, f := range parsedInputs.Fields {
				tool.Inputs.Fields = append(tool.Inputs.Fields, InputField{
					Name:        f.Name,
					Type:        f.Type,
					Description: f.Description,
					Required:    f.Required,
				})
			}
		}
	}

	// Build eval context with inputs placeholder to validate expressions
	inputsType := tool.BuildInputsCtyType()
	toolCtx := BuildFieldsEvalContext(baseCtx, inputsType)

	// Get the remaining attributes (dynamic fields from the implemented tool's schema)
	implSchema := implTool.ToolPayloadSchema()
	var attrSchemas []hcl.AttributeSchema
	for propName := range implSchema.Properties {
		attrSchemas = append(attrSchemas, hcl.AttributeSchema{Name: propName})
	}

	remainContent, _, diags := remainBody.PartialContent(&hcl.BodySchema{
		Attributes: attrSchemas,
	})
	if diags.HasErrors() {
		return nil, diags
	}

	for attrName, attr := range remainContent.Attributes {
		// Verify this is a valid field from the implemented tool's schema
		if _, ok := implSchema.Properties[attrName]; !ok {
			return nil, fmt.Errorf("tool '%s': unknown field '%s' - not part of '%s' tool schema", toolName, attrName, implements)
		}

		// Validate the expression can be evaluated (with unknown inputs)
		_, diags := attr.Expr.Value(toolCtx)
		if diags.HasErrors() {
			return nil, diags
		}

		// Store the expression for runtime evaluation
		tool.FieldExprs[attrName] = attr.Expr
	}

	return tool, nil
}

// buildVarsContext creates context with just vars
func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value) {
	varsMap := make(map[string]cty.Value)
	fileVars, _ := LoadVarsFromFile()
	for _, v := range vars {
		if val, ok := fileVars[v.Name]; ok {
			varsMap[v.Name] = cty.StringVal(val)
		} else if v.Default != "" {
			varsMap[v.Name] = cty.StringVal(v.Default)
		} else {
			varsMap[v.Name] = cty.StringVal("")
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(varsMap),
		},
	}, varsMap
}

// buildModelsContext adds models to existing context
func buildModelsContext(ctx *hcl.EvalContext, models []Model) *hcl.EvalContext {
	modelsMap := make(map[string]cty.Value)
	for _, m := range models {
		providerModels := make(map[string]cty.Value)
		for _, modelKey := range m.AllowedModels {
			providerModels[modelKey] = cty.StringVal(modelKey)
		}
		modelsMap[m.Name] = cty.ObjectVal(providerModels)
	}

	// Copy existing vars and add models
	newVars := make(map[string]cty.Value)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars["models"] = cty.ObjectVal(modelsMap)

	return &hcl.EvalContext{
		Variables: newVars,
	}
}

// buildPluginsContext adds plugins namespace to existing context
// Creates plugins.{plugin_name}.{tool_name} references
// Includes both internal tools (bash, http, math, ...) and external plugins
func buildPluginsContext(ctx *hcl.EvalContext, loadedPlugins map[string]*plugin.PluginClient) *hcl.EvalContext {
	pluginsMap := make(map[string]cty.Value)

	// Add internal plugin namespaces
	for namespace, tools := range InternalPluginTools {
		toolsMap := make(map[string]cty.Value)
		for _, toolName := range tools {
			toolsMap[toolName] = cty.StringVal(fmt.Sprintf("plugins.%s.%s", namespace, toolName))
		}
		// Add "all" marker that expands to all tools from this plugin
		toolsMap["all"] = cty.StringVal(fmt.Sprintf("plugins.%s.all", namespace))
		pluginsMap[namespace] = cty.ObjectVal(toolsMap)
	}

	// Add external plugins
	for pluginName, client := range loadedPlugins {
		toolsMap := make(map[string]cty.Value)
		tools, err := client.ListTools()
		if err == nil {
			for _, t := range tools {
				toolsMap[t.Name] = cty.StringVal(fmt.Sprintf("plugins.%s.%s", pluginName, t.Name))
			}
		}
		toolsMap["all"] = cty.StringVal(fmt.Sprintf("plugins.%s.all", pluginName))
		pluginsMap[pluginName] = cty.ObjectVal(toolsMap)
	}

	// Copy existing vars and add plugins
	newVars := make(map[string]cty.Value)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars["plugins"] = cty.ObjectVal(pluginsMap)

	return &hcl.EvalContext{
		Variables: newVars,
	}
}

// parsePluginBlock parses a plugin block with optional settings
func parsePluginBlock(block *hcl.Block, ctx *hcl.EvalContext) (*Plugin, error) {
	pluginName := block.Labels[0]

	pluginContent, _, diags := block.Body.PartialContent(&hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "source", Required: true},
			{Name: "version", Required: true},
		},
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "settings"},
		},
	})
	if diags.HasErrors() {
		return nil, fmt.Errorf("plugin '%s': %w", pluginName, diags)
	}

	sourceVal, diags := pluginContent.Attributes["source"].Expr.Value(ctx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("plugin '%s': %w", pluginName, diags)
	}

	versionVal, diags := pluginContent.Attributes["version"].Expr.Value(ctx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("plugin '%s': %w", pluginName, diags)
	}

	p := &Plugin{
		Name:     pluginName,
		Source:   sourceVal.AsString(),
		Version:  versionVal.AsString(),
		Settings: make(map[string]string),
	}

	// Parse settings block if present
	for _, settingsBlock := range pluginContent.Blocks {
		if settingsBlock.Type != "settings" {
			continue
		}
		attrs, diags := settingsBlock.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("plugin '%s' settings: %w", pluginName, diags)
		}

		for name, attr := range attrs {
			val, diags := attr.Expr.Value(ctx)
			if diags.HasErrors() {
				return nil, fmt.Errorf("plugin '%s' setting '%s': %w", pluginName, name, diags)
			}
			switch {
			case val.Type() == cty.String:
				p.Settings[name] = val.AsString()
			case val.Type() == cty.Bool:
				p.Settings[name] = fmt.Sprintf("%v", val.True())
			case val.Type() == cty.Number:
				p.Settings[name] = val.AsBigFloat().String()
			default:
				p.Settings[name] = val.GoString()
			}
		}
	}

	return p, nil
}
