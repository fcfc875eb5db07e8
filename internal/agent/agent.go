// Package agent defines the task execution contract and the engines that
// implement it.
package agent

import "strings"

// Task is a single unit of work handed to an engine.
type Task struct {
	Text        string
	Model       string
	Temperature float64
}

// StepOutcome is the result of one intermediate action taken by an engine.
// Err is empty for successful steps.
type StepOutcome struct {
	Content string
	Err     string
}

// Result is what an engine produced for a task. A Result may carry step
// errors even when the engine itself returned no error; callers decide how
// to report those.
type Result struct {
	Final string
	Steps []StepOutcome
}

// StepErrors collects the error messages of failed steps in order.
func (r *Result) StepErrors() []string {
	var errs []string
	for _, step := range r.Steps {
		if step.Err != "" {
			errs = append(errs, step.Err)
		}
	}
	return errs
}

func (r *Result) String() string {
	if r.Final != "" {
		return r.Final
	}
	var parts []string
	for _, step := range r.Steps {
		if step.Content != "" {
			parts = append(parts, step.Content)
		}
	}
	return strings.Join(parts, "\n")
}
