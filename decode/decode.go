// Package decode recovers structured decisions from language model output.
// Small models routinely wrap JSON in prose or code fences, drop closing
// braces, or answer in plain text, so decoding runs through ordered tiers
// from strict to heuristic. The first tier that yields an object carrying
// at least one expected field wins, and the result is tagged with the tier
// it came from so callers can weigh heuristic results accordingly.
package decode

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Provenance names the tier that produced a decoded value.
type Provenance string

const (
	ProvenanceDirect    Provenance = "direct"
	ProvenanceFenced    Provenance = "fenced"
	ProvenanceScan      Provenance = "scan"
	ProvenanceRepair    Provenance = "repair"
	ProvenanceHeuristic Provenance = "heuristic"
)

// Result is a decoded field mapping plus where it came from.
type Result struct {
	Value      map[string]any
	Provenance Provenance
}

// Failure reports that every tier was exhausted without producing a usable
// object.
type Failure struct {
	Tried []Provenance
	Raw   string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("no decodable decision after tiers %v", f.Tried)
}

// maxRepairableBraces bounds structural repair: one or two missing closing
// braces can be appended safely, more indicates the payload is garbage.
const maxRepairableBraces = 2

// Decoder decodes one response shape. ExpectedFields gates tier success
// and drives the heuristic tier; with no expected fields any parsed object
// is accepted and the heuristic tier is skipped.
type Decoder struct {
	ExpectedFields []string
}

// Decode runs the tiers in order and returns the first acceptable result.
func (d *Decoder) Decode(raw string) (*Result, error) {
	content := strings.TrimSpace(raw)
	var tried []Provenance

	tried = append(tried, ProvenanceDirect)
	if v, ok := d.accept(content); ok {
		return &Result{Value: v, Provenance: ProvenanceDirect}, nil
	}

	tried = append(tried, ProvenanceFenced)
	if fenced, ok := extractFenced(content); ok {
		if v, ok := d.accept(fenced); ok {
			return &Result{Value: v, Provenance: ProvenanceFenced}, nil
		}
	}

	tried = append(tried, ProvenanceScan)
	candidates := scanCandidates(content)
	scanHit := false
	var scanValue map[string]any
	for _, cand := range candidates {
		if v, ok := d.accept(cand); ok {
			scanHit = true
			scanValue = v
			break
		}
	}
	if scanHit {
		return &Result{Value: scanValue, Provenance: ProvenanceScan}, nil
	}

	tried = append(tried, ProvenanceRepair)
	if repaired, ok := repair(content); ok {
		if v, ok := d.accept(repaired); ok {
			return &Result{Value: v, Provenance: ProvenanceRepair}, nil
		}
	}

	if len(d.ExpectedFields) > 0 {
		tried = append(tried, ProvenanceHeuristic)
		if v := extractFields(content, d.ExpectedFields); len(v) > 0 {
			return &Result{Value: v, Provenance: ProvenanceHeuristic}, nil
		}
	}

	return nil, &Failure{Tried: tried, Raw: raw}
}

// accept parses s as a JSON object and checks that at least one expected
// field is present when expectations were given.
func (d *Decoder) accept(s string) (map[string]any, bool) {
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	if len(d.ExpectedFields) == 0 {
		return v, true
	}
	for _, field := range d.ExpectedFields {
		if _, ok := v[field]; ok {
			return v, true
		}
	}
	return nil, false
}

// extractFenced pulls the body of the first ```json (or bare ```) fence.
func extractFenced(content string) (string, bool) {
	for _, marker := range []string{"```json", "```"} {
		idx := strings.Index(content, marker)
		if idx < 0 {
			continue
		}
		rest := content[idx+len(marker):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
		// unterminated fence, take the remainder
		return strings.TrimSpace(rest), true
	}
	return "", false
}

// scanCandidates finds balanced-brace regions in order of appearance,
// tolerating nested objects, and skipping braces inside string literals.
func scanCandidates(content string) []string {
	var out []string
	runes := []rune(content)

	for i := 0; i < len(runes); i++ {
		if runes[i] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		end := -1
		for j := i; j < len(runes); j++ {
			c := runes[j]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case c == '{' && !inString:
				depth++
			case c == '}' && !inString:
				depth--
				if depth == 0 {
					end = j
				}
			}
			if end >= 0 {
				break
			}
		}
		if end >= 0 {
			out = append(out, string(runes[i:end+1]))
			i = end
		}
	}
	return out
}

var (
	bareKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_-]*)(\s*:)`)
	bareValueRe = regexp.MustCompile(`([:\[,]\s*)([A-Za-z_][A-Za-z0-9_-]*)(\s*[,}\]])`)
)

// repair applies one bounded pass of deterministic fixes to the region
// starting at the first '{': close an unterminated string when the quote
// count is odd, append the closing-brace deficit, and quote bare keys and
// bare word values. It never iterates; callers parse the output once.
func repair(content string) (string, bool) {
	start := strings.Index(content, "{")
	if start < 0 {
		return "", false
	}
	target := strings.TrimSpace(content[start:])

	if strings.Count(target, `"`)%2 == 1 {
		target += `"`
	}

	deficit := strings.Count(target, "{") - strings.Count(target, "}")
	if deficit < 0 || deficit > maxRepairableBraces {
		return "", false
	}
	target += strings.Repeat("}", deficit)

	target = bareKeyRe.ReplaceAllString(target, `$1"$2"$3`)
	target = bareValueRe.ReplaceAllStringFunc(target, func(m string) string {
		sub := bareValueRe.FindStringSubmatch(m)
		switch sub[2] {
		case "true", "false", "null":
			return m
		}
		return sub[1] + `"` + sub[2] + `"` + sub[3]
	})
	return target, true
}
