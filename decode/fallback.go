package decode

import (
	"fmt"
	"regexp"
	"strings"
)

// clusterTokens are the cluster names the heuristic tier recognizes when
// asked for a "clusters" field.
var clusterTokens = []string{"WEB", "MATH", "DATA", "TEXT", "COMMUNICATION", "SYSTEM", "CODE"}

var (
	reasoningRe   = regexp.MustCompile(`(?i)reason(?:ing)?[:\s]+([^\n]+)`)
	instructionRe = regexp.MustCompile(`(?i)instruction[:\s]+([^\n]+)`)
)

// generic "field: value" / "field is value" / `field "value"` forms; the
// value is the nearest single token after the field name.
const fieldValuePattern = `(?i)%s\s*(?::|\bis\b)?\s*"?([\w.-]+)"?`

var positiveWords = []string{"yes", "completed", "success", "done", "achieved", "true", "correct"}
var negativeWords = []string{"no", "not", "failed", "error", "incomplete", "false", "missing"}

// extractFields builds a best-effort mapping from free text for the
// expected fields. Fields with well-known semantics (clusters,
// instruction, boolean outcomes) get dedicated handling; everything else
// falls back to a name-then-value scan. An empty map means extraction
// found nothing and the decode as a whole fails.
func extractFields(content string, expected []string) map[string]any {
	out := make(map[string]any)

	for _, field := range expected {
		switch strings.ToLower(field) {
		case "clusters":
			out[field] = extractClusters(content)
		case "completed", "achieved", "success":
			out[field] = extractSentiment(content)
		case "instruction":
			if v, ok := extractInstruction(content); ok {
				out[field] = v
			}
		case "reasoning", "reason":
			if m := reasoningRe.FindStringSubmatch(content); m != nil {
				out[field] = strings.TrimSpace(m[1])
			}
		default:
			if v, ok := extractGeneric(content, field); ok {
				out[field] = v
			}
		}
	}
	return out
}

// extractClusters scans for known cluster names; an empty scan defaults to
// WEB so the coordinator can still make progress.
func extractClusters(content string) []any {
	upper := strings.ToUpper(content)
	var found []any
	for _, name := range clusterTokens {
		if containsWord(upper, name) {
			found = append(found, name)
		}
	}
	if len(found) == 0 {
		found = []any{"WEB"}
	}
	return found
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(s[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(s) || !isWordChar(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isWordChar(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_'
}

// extractInstruction prefers a labeled "instruction:" line, then the first
// substantive line of the response.
func extractInstruction(content string) (string, bool) {
	if m := instructionRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 10 {
			return line, true
		}
	}
	return "", false
}

// extractSentiment counts positive versus negative outcome words.
func extractSentiment(content string) bool {
	lower := strings.ToLower(content)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}
	return pos > neg
}

func extractGeneric(content, field string) (string, bool) {
	re, err := regexp.Compile(fmt.Sprintf(fieldValuePattern, regexp.QuoteMeta(field)))
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	if v == "" {
		return "", false
	}
	return v, true
}
