package generation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Status enumerates the lifecycle of a generation task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// BaseTaskID labels the single task of a batch without references.
const BaseTaskID = "base"

const referencePrefix = "ref-"

// ReferenceTaskID labels the task combining the primaries with the
// reference at 1-based position pos.
func ReferenceTaskID(pos int) string {
	return referencePrefix + strconv.Itoa(pos)
}

// ReferencePosition extracts the 1-based reference position from a task ID.
func ReferencePosition(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, referencePrefix)
	if !ok {
		return 0, false
	}
	pos, err := strconv.Atoi(rest)
	if err != nil || pos < 1 {
		return 0, false
	}
	return pos, true
}

// Task is one requested output image.
type Task struct {
	ID          string   `json:"id"`
	Status      Status   `json:"status"`
	Result      string   `json:"result,omitempty"`
	Instruction string   `json:"instruction"`
	Inputs      []string `json:"-"`
	Attempt     int      `json:"attempt"`
	Error       string   `json:"error,omitempty"`
}

func (t Task) clone() Task {
	t.Inputs = append([]string(nil), t.Inputs...)
	return t
}

// Batch is a read-only snapshot of the tasks created by one submit.
type Batch struct {
	Generation uint64 `json:"generation"`
	Tasks      []Task `json:"tasks"`
	// Busy stays true until every task of the submit that created this batch
	// has resolved. Retries do not set it.
	Busy bool `json:"busy"`
}

// Progress returns the percentage of tasks that are no longer pending.
func (b Batch) Progress() int {
	if len(b.Tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range b.Tasks {
		if t.Status != StatusPending {
			done++
		}
	}
	return done * 100 / len(b.Tasks)
}

// Generator is the remote image-generation collaborator. Images and the
// result are encoded data URLs.
type Generator interface {
	Generate(ctx context.Context, instruction string, images []string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, instruction string, images []string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, instruction string, images []string) (string, error) {
	return f(ctx, instruction, images)
}

// ValidationError reports a submit with a missing input.
type ValidationError struct {
	Field   string
	Message string
}

const (
	FieldPrimaryImage = "primary_image"
	FieldInstruction  = "instruction"
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("generation: invalid %s: %s", e.Field, e.Message)
}

// GenerationError wraps a failed remote call for one task.
type GenerationError struct {
	TaskID string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation: task %s: %v", e.TaskID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
