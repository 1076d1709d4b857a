package aitools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Artifact holds an oversized tool result kept out of the model context.
// The executor advertises the ID and a sample instead of the full payload.
type Artifact struct {
	ID       string
	ToolName string
	Raw      string
	Items    []any // non-nil when the payload parsed as a JSON array
}

// ArtifactStore keeps captured artifacts for the life of one run.
type ArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
	order     []string
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{artifacts: make(map[string]*Artifact)}
}

func (s *ArtifactStore) Put(toolName, raw string, items []any) *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &Artifact{
		ID:       "artifact_" + uuid.New().String()[:8],
		ToolName: toolName,
		Raw:      raw,
		Items:    items,
	}
	s.artifacts[a.ID] = a
	s.order = append(s.order, a.ID)
	return a
}

func (s *ArtifactStore) Get(id string) (*Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[id]
	return a, ok
}

// List returns artifact IDs in capture order.
func (s *ArtifactStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// CaptureConfig sets the thresholds for artifact capture.
type CaptureConfig struct {
	ByteThreshold int // payload size before text/object capture
	ItemThreshold int // array length before capture regardless of bytes
	SampleItems   int // array items shown in the summary
	PreviewBytes  int // text bytes shown in the summary
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		ByteThreshold: 8192,
		ItemThreshold: 20,
		SampleItems:   5,
		PreviewBytes:  500,
	}
}

// Capture stores a result when it crosses the thresholds and returns the
// summary the model should see instead. Small results pass through
// untouched.
func (s *ArtifactStore) Capture(cfg CaptureConfig, toolName, result string) string {
	var arr []any
	if json.Unmarshal([]byte(result), &arr) == nil && len(arr) >= cfg.ItemThreshold {
		a := s.Put(toolName, result, arr)
		n := cfg.SampleItems
		if len(arr) < n {
			n = len(arr)
		}
		sample, _ := json.MarshalIndent(arr[:n], "", "  ")
		return fmt.Sprintf("%s\n\n[artifact %s: %d items total, showing %d]", sample, a.ID, len(arr), n)
	}

	if len(result) < cfg.ByteThreshold {
		return result
	}

	a := s.Put(toolName, result, nil)
	n := cfg.PreviewBytes
	if len(result) < n {
		n = len(result)
	}
	return fmt.Sprintf("%s...\n\n[artifact %s: %d bytes total, showing %d]", result[:n], a.ID, len(result), n)
}

// FetchArtifactTool lets the executor retrieve a slice of a captured
// artifact by ID.
type FetchArtifactTool struct {
	Store *ArtifactStore
}

func (t *FetchArtifactTool) ToolName() string {
	return "fetch_artifact"
}

func (t *FetchArtifactTool) ToolDescription() string {
	return "Retrieves part of a previously captured artifact by its ID. Use offset and limit to page through array items."
}

func (t *FetchArtifactTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"id": {
				Type:        TypeString,
				Description: "The artifact ID, e.g. artifact_ab12cd34",
			},
			"offset": {
				Type:        TypeInteger,
				Description: "Start index for array artifacts (default 0)",
			},
			"limit": {
				Type:        TypeInteger,
				Description: "Max items to return for array artifacts (default 20)",
			},
		},
		Required: []string{"id"},
	}
}

type fetchArtifactParams struct {
	ID     string `json:"id"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

func (t *FetchArtifactTool) Call(params string) string {
	var p fetchArtifactParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	a, ok := t.Store.Get(p.ID)
	if !ok {
		return fmt.Sprintf("Error: no artifact with id '%s' (known: %v)", p.ID, t.Store.List())
	}

	if a.Items == nil {
		return a.Raw
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	start := p.Offset
	if start < 0 || start >= len(a.Items) {
		return fmt.Sprintf("Error: offset %d out of range (artifact has %d items)", p.Offset, len(a.Items))
	}
	end := start + limit
	if end > len(a.Items) {
		end = len(a.Items)
	}
	out, err := json.MarshalIndent(a.Items[start:end], "", "  ")
	if err != nil {
		return "Error: failed to encode items - " + err.Error()
	}
	return string(out)
}
