package aitools

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateTimeTool reports the current date/time and does simple date math
type DateTimeTool struct{}

func (t *DateTimeTool) ToolName() string {
	return "datetime"
}

func (t *DateTimeTool) ToolDescription() string {
	return "Returns the current date and time, optionally offset by a duration (e.g. '72h', '-30m') and formatted in a named timezone."
}

func (t *DateTimeTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"offset": {
				Type:        TypeString,
				Description: "Optional Go duration to add to now, e.g. '24h' or '-15m'",
			},
			"timezone": {
				Type:        TypeString,
				Description: "Optional IANA timezone name, e.g. 'America/New_York' (default UTC)",
			},
		},
	}
}

type dateTimeParams struct {
	Offset   string `json:"offset"`
	Timezone string `json:"timezone"`
}

func (t *DateTimeTool) Call(params string) string {
	var p dateTimeParams
	if params != "" {
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "Error: invalid parameters - " + err.Error()
		}
	}

	now := time.Now().UTC()

	if p.Offset != "" {
		d, err := time.ParseDuration(p.Offset)
		if err != nil {
			return "Error: invalid offset - " + err.Error()
		}
		now = now.Add(d)
	}

	loc := time.UTC
	if p.Timezone != "" {
		l, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return "Error: unknown timezone - " + err.Error()
		}
		loc = l
	}

	local := now.In(loc)
	return fmt.Sprintf("%s (%s, %s)", local.Format("2006-01-02 15:04:05 MST"), local.Weekday(), loc.String())
}
