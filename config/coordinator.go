package config

import "fmt"

// CoordinatorConfig tunes the coordination loop. All fields are optional;
// zero values are replaced by Defaults.
type CoordinatorConfig struct {
	// PlannerTemperature is the sampling temperature for planning calls.
	// Values below 0.4 are raised to 0.4 at runtime.
	PlannerTemperature float64 `hcl:"planner_temperature,optional"`
	// WindowCapacity is how many recent cluster selections are remembered
	WindowCapacity int `hcl:"window_capacity,optional"`
	// StagnationThreshold is how many consecutive non-progressing
	// evaluations trigger the external judge
	StagnationThreshold int `hcl:"stagnation_threshold,optional"`
	// MaxIterations is the global ceiling on coordination iterations
	MaxIterations int `hcl:"max_iterations,optional"`

	SubtaskRetryLimit int `hcl:"subtask_retry_limit,optional"`
	TaskRevisionLimit int `hcl:"task_revision_limit,optional"`
	TodoRevisionLimit int `hcl:"todo_revision_limit,optional"`
}

// Defaults fills in default values for unset fields
func (c *CoordinatorConfig) Defaults() {
	if c.WindowCapacity <= 0 {
		c.WindowCapacity = 2
	}
	if c.StagnationThreshold <= 0 {
		c.StagnationThreshold = 3
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 15
	}
	if c.SubtaskRetryLimit <= 0 {
		c.SubtaskRetryLimit = 3
	}
	if c.TaskRevisionLimit <= 0 {
		c.TaskRevisionLimit = 2
	}
	if c.TodoRevisionLimit <= 0 {
		c.TodoRevisionLimit = 1
	}
}

// Validate checks that the coordinator configuration is sane
func (c *CoordinatorConfig) Validate() error {
	if c.PlannerTemperature < 0 || c.PlannerTemperature > 1 {
		return fmt.Errorf("planner_temperature must be between 0 and 1")
	}
	return nil
}
