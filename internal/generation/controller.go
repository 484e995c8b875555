// Package generation turns the current inputs into a batch of generation
// tasks, runs them concurrently and lets any single task be retried.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"photostudio/internal/domain"
)

// Options configures a Controller.
type Options struct {
	Generator Generator
	Notifier  domain.Notifier
	Logger    zerolog.Logger
	// Concurrency bounds simultaneous remote calls of one submit. Zero or
	// less means one goroutine per task.
	Concurrency int
	// CallTimeout bounds a single remote call. Zero disables the bound.
	CallTimeout time.Duration
}

// Controller owns the current batch. Completions are merged by task ID and
// only applied while the batch generation and the task attempt still match
// the values captured when the call started.
type Controller struct {
	generator   Generator
	notifier    domain.Notifier
	logger      zerolog.Logger
	concurrency int
	callTimeout time.Duration

	mu         sync.Mutex
	generation uint64
	tasks      []*Task
	busy       bool
}

// NewController constructs a Controller. Generator is required.
func NewController(opts Options) (*Controller, error) {
	if opts.Generator == nil {
		return nil, errors.New("generation: generator is required")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = domain.NotifierFunc(func(domain.Notification) {})
	}
	return &Controller{
		generator:   opts.Generator,
		notifier:    notifier,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
		callTimeout: opts.CallTimeout,
	}, nil
}

// Run tracks the remote calls started by one Submit or Retry.
type Run struct {
	Generation uint64
	TaskIDs    []string
	done       chan struct{}
}

// Done is closed once every task of the run has resolved.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run resolves or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrStaleInputs is returned by SubmitIf when the inputs it was given were
// replaced before the batch could be installed.
var ErrStaleInputs = errors.New("generation: inputs changed before submit")

type job struct {
	id          string
	attempt     int
	instruction string
	inputs      []string
	retry       bool
}

// Submit validates the inputs, installs a new batch of pending tasks and
// starts one remote call per task. With references, one task per reference
// combines all primaries with that reference; without, a single base task
// uses the primaries alone. The returned Run resolves when all tasks have.
// Remote calls are detached from ctx cancellation.
func (c *Controller) Submit(ctx context.Context, primary, references []string, instruction string) (*Run, error) {
	return c.SubmitIf(ctx, nil, primary, references, instruction)
}

// SubmitIf is Submit guarded by current, which is evaluated under the
// controller lock immediately before the batch is installed. When it
// reports false nothing changes and ErrStaleInputs is returned. current must
// not block or call back into the controller.
func (c *Controller) SubmitIf(ctx context.Context, current func() bool, primary, references []string, instruction string) (*Run, error) {
	primary = nonEmpty(primary)
	references = nonEmpty(references)

	if len(primary) == 0 {
		return nil, c.reject(FieldPrimaryImage, "Please upload a photo to Module 1.")
	}
	if strings.TrimSpace(instruction) == "" {
		return nil, c.reject(FieldInstruction, "Please enter a style prompt.")
	}

	var tasks []*Task
	if len(references) > 0 {
		tasks = make([]*Task, len(references))
		for i, ref := range references {
			inputs := append(append(make([]string, 0, len(primary)+1), primary...), ref)
			tasks[i] = &Task{ID: ReferenceTaskID(i + 1), Status: StatusPending, Instruction: instruction, Inputs: inputs}
		}
	} else {
		tasks = []*Task{{ID: BaseTaskID, Status: StatusPending, Instruction: instruction, Inputs: append([]string(nil), primary...)}}
	}

	jobs := make([]job, len(tasks))
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		jobs[i] = job{id: t.ID, instruction: t.Instruction, inputs: append([]string(nil), t.Inputs...)}
		ids[i] = t.ID
	}

	c.mu.Lock()
	if current != nil && !current() {
		c.mu.Unlock()
		return nil, ErrStaleInputs
	}
	c.generation++
	gen := c.generation
	c.tasks = tasks
	c.busy = true
	c.mu.Unlock()

	c.logger.Info().
		Uint64("generation", gen).
		Int("tasks", len(tasks)).
		Int("primary_images", len(primary)).
		Int("reference_images", len(references)).
		Msg("generation: batch submitted")

	run := &Run{Generation: gen, TaskIDs: ids, done: make(chan struct{})}
	base := context.WithoutCancel(ctx)
	go func() {
		defer close(run.done)
		eg := new(errgroup.Group)
		if c.concurrency > 0 {
			eg.SetLimit(c.concurrency)
		}
		for _, j := range jobs {
			eg.Go(func() error {
				c.execute(base, gen, j)
				return nil
			})
		}
		_ = eg.Wait()
		c.finishSubmit(gen)
	}()
	return run, nil
}

// Retry resets the task at index to pending and issues a new call for it.
// Inputs are rebuilt from the current primaries plus, for reference tasks,
// the reference currently at the encoded position; when that reference is
// gone the primaries are used alone. The instruction stored on the task is
// reused. It reports false and does nothing when index does not exist or
// there is no primary image.
func (c *Controller) Retry(ctx context.Context, index int, primary, references []string) (*Run, bool) {
	primary = nonEmpty(primary)
	references = nonEmpty(references)
	if len(primary) == 0 {
		return nil, false
	}

	c.mu.Lock()
	if index < 0 || index >= len(c.tasks) {
		c.mu.Unlock()
		return nil, false
	}
	t := c.tasks[index]
	inputs := append([]string(nil), primary...)
	if pos, ok := ReferencePosition(t.ID); ok && pos <= len(references) {
		inputs = append(inputs, references[pos-1])
	}
	t.Status = StatusPending
	t.Result = ""
	t.Error = ""
	t.Attempt++
	t.Inputs = inputs
	j := job{id: t.ID, attempt: t.Attempt, instruction: t.Instruction, inputs: append([]string(nil), inputs...), retry: true}
	gen := c.generation
	c.mu.Unlock()

	c.logger.Info().
		Uint64("generation", gen).
		Str("task_id", j.id).
		Int("attempt", j.attempt).
		Msg("generation: task retried")

	run := &Run{Generation: gen, TaskIDs: []string{j.id}, done: make(chan struct{})}
	base := context.WithoutCancel(ctx)
	go func() {
		defer close(run.done)
		c.execute(base, gen, j)
	}()
	return run, true
}

// Reset discards the current batch. Calls still in flight for it are
// dropped when they complete.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tasks) == 0 && !c.busy {
		return
	}
	c.generation++
	c.tasks = nil
	c.busy = false
}

// Snapshot returns a deep copy of the current batch.
func (c *Controller) Snapshot() Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := Batch{Generation: c.generation, Busy: c.busy, Tasks: make([]Task, len(c.tasks))}
	for i, t := range c.tasks {
		b.Tasks[i] = t.clone()
	}
	return b
}

// Task returns a copy of the task at index.
func (c *Controller) Task(index int) (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.tasks) {
		return Task{}, false
	}
	return c.tasks[index].clone(), true
}

func (c *Controller) execute(ctx context.Context, gen uint64, j job) {
	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	result, err := c.call(callCtx, j)
	if err != nil {
		err = &GenerationError{TaskID: j.id, Err: err}
	}

	if !c.complete(gen, j, result, err) {
		c.logger.Debug().
			Uint64("generation", gen).
			Str("task_id", j.id).
			Int("attempt", j.attempt).
			Msg("generation: discarded stale completion")
		return
	}

	if err != nil {
		c.logger.Warn().Err(err).Uint64("generation", gen).Str("task_id", j.id).Msg("generation: task failed")
		msg := fmt.Sprintf("Generation for %q failed. Use retry to try again.", j.id)
		if j.retry {
			msg = fmt.Sprintf("Oops! Regeneration for %q failed.", j.id)
		}
		c.notifier.Notify(domain.Notification{Kind: domain.NotificationGeneration, Message: msg, CreatedAt: time.Now()})
		return
	}
	c.logger.Debug().Uint64("generation", gen).Str("task_id", j.id).Msg("generation: task succeeded")
}

// call turns a generator panic into a task failure.
func (c *Controller) call(ctx context.Context, j job) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	result, err = c.generator.Generate(ctx, strings.TrimSpace(j.instruction), j.inputs)
	if err == nil && result == "" {
		err = errors.New("empty result")
	}
	return result, err
}

func (c *Controller) complete(gen uint64, j job, result string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	var t *Task
	for _, candidate := range c.tasks {
		if candidate.ID == j.id {
			t = candidate
			break
		}
	}
	if t == nil || t.Attempt != j.attempt {
		return false
	}
	if err != nil {
		t.Status = StatusFailed
		t.Result = ""
		t.Error = err.Error()
		return true
	}
	t.Status = StatusSucceeded
	t.Result = result
	t.Error = ""
	return true
}

func (c *Controller) finishSubmit(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		c.busy = false
	}
}

func (c *Controller) reject(field, message string) error {
	c.notifier.Notify(domain.Notification{Kind: domain.NotificationValidation, Message: message, CreatedAt: time.Now()})
	return &ValidationError{Field: field, Message: message}
}

func nonEmpty(images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if img != "" {
			out = append(out, img)
		}
	}
	return out
}
