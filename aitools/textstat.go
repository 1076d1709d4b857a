package aitools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TextAnalysisTool summarizes basic statistics of a text
type TextAnalysisTool struct{}

func (t *TextAnalysisTool) ToolName() string {
	return "text_analysis"
}

func (t *TextAnalysisTool) ToolDescription() string {
	return "Analyzes a text: character, word, and sentence counts plus the most frequent words."
}

func (t *TextAnalysisTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"text": {
				Type:        TypeString,
				Description: "The text to analyze",
			},
			"top_words": {
				Type:        TypeInteger,
				Description: "How many of the most frequent words to list (default 5)",
			},
		},
		Required: []string{"text"},
	}
}

type textAnalysisParams struct {
	Text     string `json:"text"`
	TopWords int    `json:"top_words"`
}

func (t *TextAnalysisTool) Call(params string) string {
	var p textAnalysisParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if strings.TrimSpace(p.Text) == "" {
		return "Error: text is required"
	}

	words := strings.Fields(p.Text)
	sentences := 0
	for _, r := range p.Text {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 && len(words) > 0 {
		sentences = 1
	}

	freq := make(map[string]int)
	for _, w := range words {
		cleaned := strings.ToLower(strings.Trim(w, ".,!?;:\"'()[]"))
		if len(cleaned) < 3 {
			continue
		}
		freq[cleaned]++
	}

	type wordCount struct {
		word  string
		count int
	}
	counts := make([]wordCount, 0, len(freq))
	for w, c := range freq {
		counts = append(counts, wordCount{w, c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].word < counts[j].word
	})

	top := p.TopWords
	if top <= 0 {
		top = 5
	}
	if top > len(counts) {
		top = len(counts)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "characters: %d\nwords: %d\nsentences: %d\n", len(p.Text), len(words), sentences)
	if top > 0 {
		b.WriteString("top words:")
		for _, wc := range counts[:top] {
			fmt.Fprintf(&b, " %s(%d)", wc.word, wc.count)
		}
	}
	return b.String()
}

// SummarizeTool extracts the leading sentences of a text
type SummarizeTool struct{}

func (t *SummarizeTool) ToolName() string {
	return "summarize"
}

func (t *SummarizeTool) ToolDescription() string {
	return "Extracts the first N sentences of a text as a quick summary."
}

func (t *SummarizeTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"text": {
				Type:        TypeString,
				Description: "The text to summarize",
			},
			"sentences": {
				Type:        TypeInteger,
				Description: "How many sentences to keep (default 3)",
			},
		},
		Required: []string{"text"},
	}
}

type summarizeParams struct {
	Text      string `json:"text"`
	Sentences int    `json:"sentences"`
}

func (t *SummarizeTool) Call(params string) string {
	var p summarizeParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if strings.TrimSpace(p.Text) == "" {
		return "Error: text is required"
	}

	limit := p.Sentences
	if limit <= 0 {
		limit = 3
	}

	var out strings.Builder
	count := 0
	for _, r := range p.Text {
		out.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			count++
			if count >= limit {
				break
			}
		}
	}
	return strings.TrimSpace(out.String())
}
