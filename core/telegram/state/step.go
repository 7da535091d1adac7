package state

import (
	"context"
	"fmt"
)

// StepKind tags a step as a question or an input check.
type StepKind uint8

const (
	// Prompt emits a question and never consumes input.
	Prompt StepKind = iota + 1
	// Validate consumes the pending input.
	Validate
)

func (k StepKind) String() string {
	switch k {
	case Prompt:
		return "prompt"
	case Validate:
		return "validate"
	}
	return "unknown"
}

// PromptFunc builds the question for a Prompt step.
type PromptFunc func(ctx context.Context, collected Values) (Reply, error)

// ValidateFunc checks input for a Validate step. It sees a copy of the collected values.
type ValidateFunc func(ctx context.Context, input string, collected Values) Result

// Step is one stage of a process.
type Step struct {
	Kind  StepKind
	Name  string
	Ask   PromptFunc
	Check ValidateFunc
}

// Ask returns a Prompt step with a fixed question.
func Ask(name, text string, menu ...[]string) Step {
	r := Reply{Text: text, Menu: menu}
	return Step{
		Kind: Prompt,
		Name: name,
		Ask: func(context.Context, Values) (Reply, error) {
			return r, nil
		},
	}
}

// AskFunc returns a Prompt step whose question depends on earlier answers.
func AskFunc(name string, fn PromptFunc) Step {
	return Step{Kind: Prompt, Name: name, Ask: fn}
}

// Check returns a Validate step.
func Check(name string, fn ValidateFunc) Step {
	return Step{Kind: Validate, Name: name, Check: fn}
}

// Result is the outcome of a Validate step.
type Result struct {
	accepted bool
	key      string
	value    any
	retry    string
	err      error
}

// Accepted stores value under key and advances the process.
// An empty key advances without storing anything.
func Accepted(key string, value any) Result {
	return Result{accepted: true, key: key, value: value}
}

// Retry keeps the process on the current step and re-asks, showing message first when set.
func Retry(message string) Result {
	return Result{retry: message}
}

// Fail aborts the process with err. Use it for collaborator failures, not
// for input the user can correct.
func Fail(err error) Result {
	return Result{err: err}
}

// IsAccepted reports whether the input was accepted.
func (r Result) IsAccepted() bool { return r.accepted }

// Key returns the collected key of an accepted result.
func (r Result) Key() string { return r.key }

// Value returns the collected value of an accepted result.
func (r Result) Value() any { return r.value }

// Message returns the retry hint.
func (r Result) Message() string { return r.retry }

// Err returns the failure of a Fail result.
func (r Result) Err() error { return r.err }

// StepError reports a failure inside a step handler or the completion handler.
type StepError struct {
	Process string
	Step    string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("process %s: step %s: %v", e.Process, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Code classifies the error for handler summaries.
func (e *StepError) Code() string { return "STEP_FAILED" }
