package state

import (
	"context"
	"errors"
)

// DefaultCancelKeyword aborts a cancelable process.
const DefaultCancelKeyword = "отмена"

var (
	// ErrNotActive is returned when input is executed against a finished process.
	ErrNotActive = errors.New("state: process is not active")
	// ErrMissingHandler marks a step declared without its handler.
	ErrMissingHandler = errors.New("state: step has no handler")
)

// Status is the lifecycle state of a process.
type Status uint8

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusCancelled
	// StatusAborted means a step or the completion handler failed.
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

// Definition declares a process: its steps and what to do with the answers.
type Definition struct {
	Name       string
	Steps      []Step
	Cancelable bool
	// Complete receives the collected values once every step succeeded.
	Complete func(ctx context.Context, collected Values) error
}

// Replier sends a reply to the process owner.
type Replier interface {
	Reply(ctx context.Context, r Reply) error
}

// ProcessOption customizes a Process.
type ProcessOption func(*Process)

// WithCancelKeyword overrides DefaultCancelKeyword. The keyword is compared after Fold.
func WithCancelKeyword(word string) ProcessOption {
	return func(p *Process) {
		if w := Fold(word); w != "" {
			p.cancelWord = w
		}
	}
}

// Process runs a Definition for one owner.
type Process struct {
	def        Definition
	out        Replier
	cancelWord string

	cursor    int
	active    bool
	status    Status
	collected Values
	pending   string
}

// NewProcess prepares def for execution; nothing runs until Start.
func NewProcess(def Definition, out Replier, opts ...ProcessOption) *Process {
	p := &Process{
		def:        def,
		out:        out,
		cancelWord: DefaultCancelKeyword,
		collected:  Values{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the definition name.
func (p *Process) Name() string { return p.def.Name }

// Active reports whether the process is waiting for input.
func (p *Process) Active() bool { return p.active }

// Cancelable reports whether the cancel keyword may stop the process.
func (p *Process) Cancelable() bool { return p.def.Cancelable }

// Cursor returns the index of the current step.
func (p *Process) Cursor() int { return p.cursor }

// Status returns the lifecycle state.
func (p *Process) Status() Status { return p.status }

// Collected returns a copy of the values gathered so far.
func (p *Process) Collected() Values { return p.collected.Clone() }

// IsCancel reports whether text is the cancel keyword.
func (p *Process) IsCancel(text string) bool {
	return Fold(text) == p.cancelWord
}

// Start resets the process and runs the leading prompts.
func (p *Process) Start(ctx context.Context) error {
	p.cursor = 0
	p.active = true
	p.status = StatusRunning
	p.collected = Values{}
	p.pending = ""
	return p.advance(ctx)
}

// UpdateInput stores text as the pending answer. When text is the cancel keyword and
// the process is cancelable, the process is reset and true is returned; the caller
// is expected to acknowledge the cancellation.
func (p *Process) UpdateInput(text string) bool {
	p.pending = text
	if p.active && p.def.Cancelable && p.IsCancel(text) {
		p.Cancel()
		return true
	}
	return false
}

// Cancel stops the process and discards collected values.
func (p *Process) Cancel() {
	p.active = false
	p.cursor = 0
	p.collected = Values{}
	p.pending = ""
	p.status = StatusCancelled
}

// Execute runs the current step against the pending input.
func (p *Process) Execute(ctx context.Context) error {
	if !p.active {
		return ErrNotActive
	}
	steps := p.def.Steps
	if p.cursor >= len(steps) {
		return p.complete(ctx)
	}
	step := steps[p.cursor]
	if step.Kind != Validate {
		return p.advance(ctx)
	}
	if step.Check == nil {
		return p.abort(step.Name, ErrMissingHandler)
	}

	input := p.pending
	p.pending = ""
	res := step.Check(ctx, input, p.collected.Clone())
	if res.err != nil {
		return p.abort(step.Name, res.err)
	}
	if !res.accepted {
		return p.retry(ctx, res.retry)
	}
	if res.key != "" {
		p.collected[res.key] = res.value
	}
	p.cursor++
	return p.advance(ctx)
}

// advance runs consecutive prompts from the cursor and completes the chain when exhausted.
func (p *Process) advance(ctx context.Context) error {
	steps := p.def.Steps
	for p.cursor < len(steps) && steps[p.cursor].Kind == Prompt {
		if err := p.prompt(ctx, steps[p.cursor]); err != nil {
			return err
		}
		p.cursor++
	}
	if p.cursor >= len(steps) {
		return p.complete(ctx)
	}
	return nil
}

func (p *Process) retry(ctx context.Context, hint string) error {
	if hint != "" {
		if err := p.send(ctx, Reply{Text: hint}); err != nil {
			return p.abort(p.def.Steps[p.cursor].Name, err)
		}
	}
	if p.cursor > 0 {
		if prev := p.def.Steps[p.cursor-1]; prev.Kind == Prompt {
			return p.prompt(ctx, prev)
		}
	}
	return nil
}

func (p *Process) prompt(ctx context.Context, step Step) error {
	if step.Ask == nil {
		return p.abort(step.Name, ErrMissingHandler)
	}
	reply, err := step.Ask(ctx, p.collected.Clone())
	if err != nil {
		return p.abort(step.Name, err)
	}
	if err := p.send(ctx, reply); err != nil {
		return p.abort(step.Name, err)
	}
	return nil
}

func (p *Process) complete(ctx context.Context) error {
	if p.def.Complete != nil {
		if err := p.def.Complete(ctx, p.collected.Clone()); err != nil {
			return p.abort("complete", err)
		}
	}
	p.active = false
	p.pending = ""
	p.status = StatusCompleted
	return nil
}

func (p *Process) abort(step string, err error) error {
	p.active = false
	p.cursor = 0
	p.collected = Values{}
	p.pending = ""
	p.status = StatusAborted
	return &StepError{Process: p.def.Name, Step: step, Err: err}
}

func (p *Process) send(ctx context.Context, r Reply) error {
	if p.out == nil || (r.Text == "" && r.Document == "") {
		return nil
	}
	return p.out.Reply(ctx, r)
}
