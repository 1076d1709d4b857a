package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"maestro/aitools"
	"maestro/cluster"
)

//go:embed planner.md
var plannerPromptTemplate string

//go:embed executor.md
var executorPromptTemplate string

//go:embed judge.md
var judgePromptTemplate string

// GetPlannerPrompt returns the planner system prompt with the cluster
// catalog injected
func GetPlannerPrompt() string {
	return strings.Replace(plannerPromptTemplate, "{{CLUSTERS}}", formatClusters(), 1)
}

// GetExecutorPrompt returns the executor system prompt with the active tool
// set injected. The prompt is rebuilt whenever the tool set changes so the
// advertised schemas always match the tools actually loaded.
func GetExecutorPrompt(tools []aitools.Tool) string {
	return strings.Replace(executorPromptTemplate, "{{TOOLS}}", FormatTools(tools), 1)
}

// GetJudgePrompt returns the judge system prompt
func GetJudgePrompt() string {
	return judgePromptTemplate
}

// formatClusters renders the cluster catalog for the planner prompt
func formatClusters() string {
	var sb strings.Builder
	for _, name := range cluster.Names() {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", name, cluster.Description(name)))
	}
	return sb.String()
}

// FormatTools formats the tool list into a readable string for the prompt
func FormatTools(tools []aitools.Tool) string {
	if len(tools) == 0 {
		return "NO TOOLS AVAILABLE"
	}

	var sb strings.Builder
	for _, tool := range tools {
		sb.WriteString(fmt.Sprintf("### %s\n\n", tool.ToolName()))
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.ToolDescription()))
		sb.WriteString(fmt.Sprintf("**Input Schema:**\n```json\n%s\n```\n\n", tool.ToolPayloadSchema().String()))
	}
	return sb.String()
}
