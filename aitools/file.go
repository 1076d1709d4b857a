package aitools

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadFileTool reads a text file from disk
type ReadFileTool struct{}

func (t *ReadFileTool) ToolName() string {
	return "read_file"
}

func (t *ReadFileTool) ToolDescription() string {
	return "Reads a text file and returns its contents."
}

func (t *ReadFileTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"path": {
				Type:        TypeString,
				Description: "Path of the file to read",
			},
		},
		Required: []string{"path"},
	}
}

type filePathParams struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Call(params string) string {
	var p filePathParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if p.Path == "" {
		return "Error: path is required"
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}

// WriteFileTool writes content to a file
type WriteFileTool struct{}

func (t *WriteFileTool) ToolName() string {
	return "write_file"
}

func (t *WriteFileTool) ToolDescription() string {
	return "Writes content to a file, creating parent directories as needed. Overwrites any existing file."
}

func (t *WriteFileTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"path": {
				Type:        TypeString,
				Description: "Path of the file to write",
			},
			"content": {
				Type:        TypeString,
				Description: "Content to write",
			},
		},
		Required: []string{"path", "content"},
	}
}

type writeFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Call(params string) string {
	var p writeFileParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if p.Path == "" {
		return "Error: path is required"
	}

	if dir := filepath.Dir(p.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "Error: " + err.Error()
		}
	}
	if err := os.WriteFile(p.Path, []byte(p.Content), 0644); err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(p.Content), p.Path)
}

// CSVPreviewTool inspects a CSV file
type CSVPreviewTool struct{}

func (t *CSVPreviewTool) ToolName() string {
	return "csv_preview"
}

func (t *CSVPreviewTool) ToolDescription() string {
	return "Reads a CSV file and returns its header, row count, and the first rows."
}

func (t *CSVPreviewTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"path": {
				Type:        TypeString,
				Description: "Path of the CSV file",
			},
			"rows": {
				Type:        TypeInteger,
				Description: "How many data rows to show (default 10)",
			},
		},
		Required: []string{"path"},
	}
}

type csvPreviewParams struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

func (t *CSVPreviewTool) Call(params string) string {
	var p csvPreviewParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if p.Path == "" {
		return "Error: path is required"
	}

	f, err := os.Open(p.Path)
	if err != nil {
		return "Error: " + err.Error()
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return "Error: failed to parse CSV - " + err.Error()
	}
	if len(records) == 0 {
		return "File is empty"
	}

	limit := p.Rows
	if limit <= 0 {
		limit = 10
	}
	dataRows := records[1:]
	if limit > len(dataRows) {
		limit = len(dataRows)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "columns: %s\nrows: %d\n", strings.Join(records[0], ", "), len(dataRows))
	for _, row := range dataRows[:limit] {
		b.WriteString(strings.Join(row, ", "))
		b.WriteString("\n")
	}
	if len(dataRows) > limit {
		fmt.Fprintf(&b, "... %d more rows", len(dataRows)-limit)
	}
	return b.String()
}

// JSONQueryTool extracts a value from a JSON file by dotted path
type JSONQueryTool struct{}

func (t *JSONQueryTool) ToolName() string {
	return "json_query"
}

func (t *JSONQueryTool) ToolDescription() string {
	return "Reads a JSON file and returns the value at a dotted key path, e.g. 'items.0.name'. Omit the path to list top-level keys."
}

func (t *JSONQueryTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"path": {
				Type:        TypeString,
				Description: "Path of the JSON file",
			},
			"query": {
				Type:        TypeString,
				Description: "Dotted key path into the document (array indices are numeric)",
			},
		},
		Required: []string{"path"},
	}
}

type jsonQueryParams struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

func (t *JSONQueryTool) Call(params string) string {
	var p jsonQueryParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if p.Path == "" {
		return "Error: path is required"
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return "Error: " + err.Error()
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "Error: invalid JSON - " + err.Error()
	}

	if p.Query == "" {
		if obj, ok := doc.(map[string]any); ok {
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			out, _ := json.Marshal(keys)
			return "Top-level keys: " + string(out)
		}
	}

	current := doc
	for _, part := range strings.Split(p.Query, ".") {
		if part == "" {
			continue
		}
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return fmt.Sprintf("Error: key '%s' not found", part)
			}
			current = v
		case []any:
			idx := 0
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil {
				return fmt.Sprintf("Error: '%s' is not a valid array index", part)
			}
			if idx < 0 || idx >= len(node) {
				return fmt.Sprintf("Error: index %d out of range (length %d)", idx, len(node))
			}
			current = node[idx]
		default:
			return fmt.Sprintf("Error: cannot descend into scalar at '%s'", part)
		}
	}

	out, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(out)
}
