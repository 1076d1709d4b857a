package aitools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// CalculatorTool evaluates arithmetic expressions
type CalculatorTool struct{}

func (t *CalculatorTool) ToolName() string {
	return "calculator"
}

func (t *CalculatorTool) ToolDescription() string {
	return "Evaluates an arithmetic expression with +, -, *, /, %, ^, parentheses, and the functions sqrt, abs, round, floor, ceil."
}

func (t *CalculatorTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"expression": {
				Type:        TypeString,
				Description: "The expression to evaluate, e.g. (2 + 3) * sqrt(16)",
			},
		},
		Required: []string{"expression"},
	}
}

type calculatorParams struct {
	Expression string `json:"expression"`
}

func (t *CalculatorTool) Call(params string) string {
	var p calculatorParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if strings.TrimSpace(p.Expression) == "" {
		return "Error: expression is required"
	}

	result, err := evalExpression(p.Expression)
	if err != nil {
		return "Error: " + err.Error()
	}

	return strconv.FormatFloat(result, 'f', -1, 64)
}

// StatsTool computes summary statistics over a list of numbers
type StatsTool struct{}

func (t *StatsTool) ToolName() string {
	return "stats"
}

func (t *StatsTool) ToolDescription() string {
	return "Computes count, sum, mean, min, max, and median for a list of numbers."
}

func (t *StatsTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"numbers": {
				Type:        TypeArray,
				Description: "The numbers to summarize",
				Items:       &Property{Type: TypeNumber},
			},
		},
		Required: []string{"numbers"},
	}
}

type statsParams struct {
	Numbers []float64 `json:"numbers"`
}

func (t *StatsTool) Call(params string) string {
	var p statsParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if len(p.Numbers) == 0 {
		return "Error: numbers is required and must be non-empty"
	}

	sorted := make([]float64, len(p.Numbers))
	copy(sorted, p.Numbers)
	sort.Float64s(sorted)

	sum := 0.0
	for _, n := range sorted {
		sum += n
	}
	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	return fmt.Sprintf("count: %d\nsum: %g\nmean: %g\nmin: %g\nmax: %g\nmedian: %g",
		len(sorted), sum, sum/float64(len(sorted)), sorted[0], sorted[len(sorted)-1], median)
}

// expression evaluation: a small recursive descent parser over
// precedence levels add/sub -> mul/div/mod -> power -> unary -> primary.

type exprParser struct {
	input []rune
	pos   int
}

func evalExpression(expr string) (float64, error) {
	p := &exprParser{input: []rune(expr)}
	v, err := p.parseAddSub()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character '%c' at position %d", p.input[p.pos], p.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("expression result is not a finite number")
	}
	return v, nil
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() rune {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseAddSub() (float64, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseMulDiv()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseMulDiv()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseMulDiv() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if p.peek() == '^' {
		p.pos++
		// right associative
		exp, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary()
}

var calcFuncs = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"round": math.Round,
	"floor": math.Floor,
	"ceil":  math.Ceil,
}

func (p *exprParser) parsePrimary() (float64, error) {
	c := p.peek()

	if c == '(' {
		p.pos++
		v, err := p.parseAddSub()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	if c >= 'a' && c <= 'z' {
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] >= 'a' && p.input[p.pos] <= 'z' {
			p.pos++
		}
		name := string(p.input[start:p.pos])
		if name == "pi" {
			return math.Pi, nil
		}
		fn, ok := calcFuncs[name]
		if !ok {
			return 0, fmt.Errorf("unknown function '%s'", name)
		}
		if p.peek() != '(' {
			return 0, fmt.Errorf("expected '(' after '%s'", name)
		}
		p.pos++
		arg, err := p.parseAddSub()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis after '%s' argument", name)
		}
		p.pos++
		return fn(arg), nil
	}

	if c >= '0' && c <= '9' || c == '.' {
		start := p.pos
		for p.pos < len(p.input) {
			d := p.input[p.pos]
			if d >= '0' && d <= '9' || d == '.' {
				p.pos++
				continue
			}
			break
		}
		v, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number '%s'", string(p.input[start:p.pos]))
		}
		return v, nil
	}

	if c == 0 {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	return 0, fmt.Errorf("unexpected character '%c' at position %d", c, p.pos)
}
