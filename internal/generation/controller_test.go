package generation

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"photostudio/internal/domain"
)

type reply struct {
	result string
	err    error
}

type pendingCall struct {
	instruction string
	images      []string
	reply       chan reply
}

func (p *pendingCall) succeed(result string) { p.reply <- reply{result: result} }
func (p *pendingCall) fail(err error)        { p.reply <- reply{err: err} }

// blockingGenerator hands every call to the test, which decides when and
// how it completes.
type blockingGenerator struct {
	calls chan *pendingCall
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{calls: make(chan *pendingCall, 16)}
}

func (g *blockingGenerator) Generate(ctx context.Context, instruction string, images []string) (string, error) {
	pc := &pendingCall{instruction: instruction, images: images, reply: make(chan reply, 1)}
	g.calls <- pc
	select {
	case r := <-pc.reply:
		return r.result, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *blockingGenerator) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case pc := <-g.calls:
		return pc
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for generator call")
		return nil
	}
}

// nextFor collects n calls and indexes them by their last input image.
func (g *blockingGenerator) nextFor(t *testing.T, n int) map[string]*pendingCall {
	t.Helper()
	out := make(map[string]*pendingCall, n)
	for i := 0; i < n; i++ {
		pc := g.next(t)
		out[pc.images[len(pc.images)-1]] = pc
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (r *recordingNotifier) Notify(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.items...)
}

func newTestController(t *testing.T, gen Generator) (*Controller, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	c, err := NewController(Options{Generator: gen, Notifier: notifier, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewController returned error: %v", err)
	}
	return c, notifier
}

func waitRun(t *testing.T, run *Run) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		t.Fatalf("run did not resolve: %v", err)
	}
}

func TestNewControllerRequiresGenerator(t *testing.T) {
	if _, err := NewController(Options{}); err == nil {
		t.Fatalf("expected error without generator")
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name        string
		primary     []string
		instruction string
		field       string
	}{
		{name: "empty instruction", primary: []string{"P"}, instruction: "   ", field: FieldInstruction},
		{name: "missing primary", primary: []string{""}, instruction: "noir style", field: FieldPrimaryImage},
		{name: "both missing reports primary", primary: nil, instruction: "", field: FieldPrimaryImage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, notifier := newTestController(t, newBlockingGenerator())
			run, err := c.Submit(context.Background(), tc.primary, []string{"R"}, tc.instruction)
			if run != nil {
				t.Fatalf("expected no run")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("Field = %q, want %q", verr.Field, tc.field)
			}
			snap := c.Snapshot()
			if len(snap.Tasks) != 0 || snap.Generation != 0 || snap.Busy {
				t.Fatalf("validation failure changed state: %+v", snap)
			}
			notes := notifier.all()
			if len(notes) != 1 || notes[0].Kind != domain.NotificationValidation {
				t.Fatalf("expected one validation notification, got %+v", notes)
			}
		})
	}
}

func TestSubmitStandardMode(t *testing.T) {
	gen := newBlockingGenerator()
	c, _ := newTestController(t, gen)

	run, err := c.Submit(context.Background(), []string{"P1", "", "P2"}, []string{"", ""}, "  watercolor  ")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != BaseTaskID || snap.Tasks[0].Status != StatusPending {
		t.Fatalf("unexpected batch: %+v", snap.Tasks)
	}
	if !snap.Busy {
		t.Fatalf("expected busy while task pending")
	}

	call := gen.next(t)
	if call.instruction != "watercolor" {
		t.Fatalf("instruction = %q, want trimmed", call.instruction)
	}
	if !reflect.DeepEqual(call.images, []string{"P1", "P2"}) {
		t.Fatalf("images = %#v", call.images)
	}
	call.succeed("OUT")
	waitRun(t, run)

	snap = c.Snapshot()
	if snap.Busy {
		t.Fatalf("expected idle after resolution")
	}
	task := snap.Tasks[0]
	if task.Status != StatusSucceeded || task.Result != "OUT" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.Instruction != "  watercolor  " {
		t.Fatalf("stored instruction = %q", task.Instruction)
	}
	if snap.Progress() != 100 {
		t.Fatalf("Progress() = %d", snap.Progress())
	}
}

func TestSubmitCombinationModeResolvesOutOfOrder(t *testing.T) {
	gen := newBlockingGenerator()
	c, notifier := newTestController(t, gen)

	run, err := c.Submit(context.Background(), []string{"P"}, []string{"R1", "R2"}, "noir style")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	snap := c.Snapshot()
	if got := []string{snap.Tasks[0].ID, snap.Tasks[1].ID}; !reflect.DeepEqual(got, []string{"ref-1", "ref-2"}) {
		t.Fatalf("task ids = %#v", got)
	}
	for _, task := range snap.Tasks {
		if task.Status != StatusPending {
			t.Fatalf("task %s not pending: %s", task.ID, task.Status)
		}
	}

	calls := gen.nextFor(t, 2)
	if !reflect.DeepEqual(calls["R1"].images, []string{"P", "R1"}) || !reflect.DeepEqual(calls["R2"].images, []string{"P", "R2"}) {
		t.Fatalf("unexpected inputs: %#v / %#v", calls["R1"].images, calls["R2"].images)
	}

	calls["R2"].succeed("OUT-2")
	deadline := time.Now().Add(2 * time.Second)
	for c.Snapshot().Tasks[1].Status != StatusSucceeded {
		if time.Now().After(deadline) {
			t.Fatalf("ref-2 did not resolve")
		}
		time.Sleep(5 * time.Millisecond)
	}
	mid := c.Snapshot()
	if mid.Tasks[0].Status != StatusPending || !mid.Busy || mid.Progress() != 50 {
		t.Fatalf("sibling disturbed or busy cleared early: %+v", mid)
	}

	calls["R1"].succeed("OUT-1")
	waitRun(t, run)

	snap = c.Snapshot()
	if snap.Tasks[0].Result != "OUT-1" || snap.Tasks[1].Result != "OUT-2" {
		t.Fatalf("results mismatched: %+v", snap.Tasks)
	}
	for _, task := range snap.Tasks {
		if task.Status != StatusSucceeded {
			t.Fatalf("task %s = %s", task.ID, task.Status)
		}
	}
	if len(notifier.all()) != 0 {
		t.Fatalf("unexpected notifications: %+v", notifier.all())
	}
}

func TestFailureOnlyAffectsOwnTask(t *testing.T) {
	gen := newBlockingGenerator()
	c, notifier := newTestController(t, gen)

	run, err := c.Submit(context.Background(), []string{"P"}, []string{"R1", "R2"}, "noir style")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	calls := gen.nextFor(t, 2)
	calls["R1"].succeed("OUT-1")
	calls["R2"].fail(errors.New("quota exceeded"))
	waitRun(t, run)

	snap := c.Snapshot()
	if snap.Tasks[0].Status != StatusSucceeded || snap.Tasks[1].Status != StatusFailed {
		t.Fatalf("unexpected statuses: %+v", snap.Tasks)
	}
	if snap.Tasks[1].Result != "" || !strings.Contains(snap.Tasks[1].Error, "quota exceeded") {
		t.Fatalf("failed task = %+v", snap.Tasks[1])
	}
	notes := notifier.all()
	if len(notes) != 1 || notes[0].Kind != domain.NotificationGeneration {
		t.Fatalf("expected one generation notification, got %+v", notes)
	}
}

func TestRetryRecomputesInputsAndKeepsSiblings(t *testing.T) {
	gen := newBlockingGenerator()
	c, notifier := newTestController(t, gen)

	run, _ := c.Submit(context.Background(), []string{"P"}, []string{"R1", "R2"}, "noir style")
	calls := gen.nextFor(t, 2)
	calls["R1"].succeed("OUT-1")
	calls["R2"].fail(errors.New("boom"))
	waitRun(t, run)

	before := c.Snapshot()
	retry, ok := c.Retry(context.Background(), 1, []string{"P-new"}, []string{"R1", "R2-new"})
	if !ok {
		t.Fatalf("Retry reported no-op")
	}
	mid := c.Snapshot()
	if mid.Tasks[1].Status != StatusPending || mid.Tasks[1].Attempt != 1 {
		t.Fatalf("retried task not pending: %+v", mid.Tasks[1])
	}
	if mid.Busy {
		t.Fatalf("retry should not mark batch busy")
	}
	if !reflect.DeepEqual(mid.Tasks[0], before.Tasks[0]) {
		t.Fatalf("sibling changed on retry: %+v vs %+v", mid.Tasks[0], before.Tasks[0])
	}

	call := gen.next(t)
	if !reflect.DeepEqual(call.images, []string{"P-new", "R2-new"}) {
		t.Fatalf("retry inputs = %#v", call.images)
	}
	if call.instruction != "noir style" {
		t.Fatalf("retry instruction = %q", call.instruction)
	}
	call.fail(errors.New("still broken"))
	waitRun(t, retry)

	after := c.Snapshot()
	if !reflect.DeepEqual(after.Tasks[0], before.Tasks[0]) {
		t.Fatalf("sibling changed after retry: %+v vs %+v", after.Tasks[0], before.Tasks[0])
	}
	if after.Tasks[1].Status != StatusFailed {
		t.Fatalf("retried task status = %s", after.Tasks[1].Status)
	}
	notes := notifier.all()
	last := notes[len(notes)-1]
	if last.Message != `Oops! Regeneration for "ref-2" failed.` {
		t.Fatalf("notification = %q", last.Message)
	}
}

func TestRetryRegeneratesSucceededTask(t *testing.T) {
	gen := newBlockingGenerator()
	c, _ := newTestController(t, gen)

	run, _ := c.Submit(context.Background(), []string{"P"}, nil, "oil painting")
	gen.next(t).succeed("OUT-1")
	waitRun(t, run)

	retry, ok := c.Retry(context.Background(), 0, []string{"P"}, nil)
	if !ok {
		t.Fatalf("Retry reported no-op")
	}
	if task, _ := c.Task(0); task.Status != StatusPending || task.Result != "" {
		t.Fatalf("regenerated task = %+v", task)
	}
	gen.next(t).succeed("OUT-2")
	waitRun(t, retry)
	if task, _ := c.Task(0); task.Status != StatusSucceeded || task.Result != "OUT-2" {
		t.Fatalf("regenerated task = %+v", task)
	}
}

func TestRetryFallsBackToPrimaryWhenReferenceGone(t *testing.T) {
	gen := newBlockingGenerator()
	c, _ := newTestController(t, gen)

	run, _ := c.Submit(context.Background(), []string{"P"}, []string{"R1", "R2"}, "noir style")
	calls := gen.nextFor(t, 2)
	calls["R1"].succeed("OUT-1")
	calls["R2"].fail(errors.New("boom"))
	waitRun(t, run)

	retry, ok := c.Retry(context.Background(), 1, []string{"P"}, []string{"R1"})
	if !ok {
		t.Fatalf("Retry reported no-op")
	}
	call := gen.next(t)
	if !reflect.DeepEqual(call.images, []string{"P"}) {
		t.Fatalf("retry inputs = %#v, want primary only", call.images)
	}
	call.succeed("OUT-2")
	waitRun(t, retry)
}

func TestRetryNoOps(t *testing.T) {
	gen := newBlockingGenerator()
	c, _ := newTestController(t, gen)

	if _, ok := c.Retry(context.Background(), 0, []string{"P"}, nil); ok {
		t.Fatalf("retry without batch should be a no-op")
	}
	run, _ := c.Submit(context.Background(), []string{"P"}, nil, "noir")
	gen.next(t).fail(errors.New("boom"))
	waitRun(t, run)

	if _, ok := c.Retry(context.Background(), 5, []string{"P"}, nil); ok {
		t.Fatalf("retry past the end should be a no-op")
	}
	if _, ok := c.Retry(context.Background(), 0, []string{""}, nil); ok {
		t.Fatalf("retry without primary should be a no-op")
	}
	if task, _ := c.Task(0); task.Status != StatusFailed {
		t.Fatalf("no-op retry changed task: %+v", task)
	}
}

func TestStaleSubmitCompletionIsDiscarded(t *testing.T) {
	gen := newBlockingGenerator()
	c, notifier := newTestController(t, gen)

	first, _ := c.Submit(context.Background(), []string{"P"}, nil, "first")
	firstCall := gen.next(t)

	second, _ := c.Submit(context.Background(), []string{"P"}, nil, "second")
	secondCall := gen.next(t)

	firstCall.fail(errors.New("late failure"))
	waitRun(t, first)

	snap := c.Snapshot()
	if snap.Generation != second.Generation {
		t.Fatalf("generation = %d, want %d", snap.Generation, second.Generation)
	}
	if snap.Tasks[0].Status != StatusPending || snap.Tasks[0].Instruction != "second" {
		t.Fatalf("stale completion leaked: %+v", snap.Tasks[0])
	}
	if !snap.Busy {
		t.Fatalf("stale run cleared busy flag of the newer batch")
	}
	if len(notifier.all()) != 0 {
		t.Fatalf("stale failure raised notification: %+v", notifier.all())
	}

	secondCall.succeed("OUT")
	waitRun(t, second)
	if task, _ := c.Task(0); task.Result != "OUT" {
		t.Fatalf("second batch result = %+v", task)
	}
}

func TestStaleAttemptCompletionIsDiscarded(t *testing.T) {
	gen := newBlockingGenerator()
	c, _ := newTestController(t, gen)

	run, _ := c.Submit(context.Background(), []string{"P"}, nil, "noir")
	original := gen.next(t)

	retry, ok := c.Retry(context.Background(), 0, []string{"P"}, nil)
	if !ok {
		t.Fatalf("Retry reported no-op")
	}
	retried := gen.next(t)

	original.succeed("OLD")
	waitRun(t, run)
	if task, _ := c.Task(0); task.Status != StatusPending {
		t.Fatalf("superseded attempt applied: %+v", task)
	}

	retried.succeed("NEW")
	waitRun(t, retry)
	if task, _ := c.Task(0); task.Result != "NEW" {
		t.Fatalf("task = %+v", task)
	}
}

func TestResetDiscardsBatch(t *testing.T) {
	gen := newBlockingGenerator()
	c, _ := newTestController(t, gen)

	run, _ := c.Submit(context.Background(), []string{"P"}, nil, "noir")
	call := gen.next(t)
	c.Reset()

	snap := c.Snapshot()
	if len(snap.Tasks) != 0 || snap.Busy {
		t.Fatalf("reset left state: %+v", snap)
	}
	call.succeed("OUT")
	waitRun(t, run)
	if snap := c.Snapshot(); len(snap.Tasks) != 0 {
		t.Fatalf("completion resurrected batch: %+v", snap)
	}
}

func TestSubmitIfRefusesStaleInputs(t *testing.T) {
	gen := newBlockingGenerator()
	c, notifier := newTestController(t, gen)

	run, err := c.SubmitIf(context.Background(), func() bool { return false }, []string{"P"}, []string{"R"}, "noir")
	if !errors.Is(err, ErrStaleInputs) || run != nil {
		t.Fatalf("SubmitIf = %v, %v; want ErrStaleInputs", run, err)
	}
	if snap := c.Snapshot(); len(snap.Tasks) != 0 || snap.Busy || snap.Generation != 0 {
		t.Fatalf("stale submit changed state: %+v", snap)
	}
	if notes := notifier.all(); len(notes) != 0 {
		t.Fatalf("stale submit raised notifications: %+v", notes)
	}
	select {
	case pc := <-gen.calls:
		t.Fatalf("stale submit called the generator: %+v", pc)
	default:
	}

	run, err = c.SubmitIf(context.Background(), func() bool { return true }, []string{"P"}, nil, "noir")
	if err != nil {
		t.Fatalf("SubmitIf returned error: %v", err)
	}
	gen.next(t).succeed("OUT")
	waitRun(t, run)
	if task, _ := c.Task(0); task.Status != StatusSucceeded {
		t.Fatalf("task = %+v", task)
	}
}

func TestGeneratorPanicFailsTask(t *testing.T) {
	c, _ := newTestController(t, GeneratorFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		panic("kaboom")
	}))
	run, err := c.Submit(context.Background(), []string{"P"}, nil, "noir")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	waitRun(t, run)
	task, _ := c.Task(0)
	if task.Status != StatusFailed || !strings.Contains(task.Error, "kaboom") {
		t.Fatalf("task = %+v", task)
	}
}

func TestConcurrencyLimitStillResolvesAll(t *testing.T) {
	var mu sync.Mutex
	inflight, peak := 0, 0
	gen := GeneratorFunc(func(ctx context.Context, instruction string, images []string) (string, error) {
		mu.Lock()
		inflight++
		peak = max(peak, inflight)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
		return "OUT:" + images[len(images)-1], nil
	})
	c, err := NewController(Options{Generator: gen, Logger: zerolog.Nop(), Concurrency: 2})
	if err != nil {
		t.Fatalf("NewController returned error: %v", err)
	}
	refs := []string{"R1", "R2", "R3", "R4", "R5"}
	run, err := c.Submit(context.Background(), []string{"P"}, refs, "noir")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	waitRun(t, run)

	snap := c.Snapshot()
	if len(snap.Tasks) != len(refs) {
		t.Fatalf("tasks = %d, want %d", len(snap.Tasks), len(refs))
	}
	for i, task := range snap.Tasks {
		if task.Result != "OUT:"+refs[i] {
			t.Fatalf("task %s result = %q", task.ID, task.Result)
		}
	}
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestReferencePosition(t *testing.T) {
	tests := []struct {
		id   string
		pos  int
		isOK bool
	}{
		{id: "ref-1", pos: 1, isOK: true},
		{id: "ref-12", pos: 12, isOK: true},
		{id: "ref-0"},
		{id: "ref-x"},
		{id: BaseTaskID},
	}
	for _, tc := range tests {
		pos, ok := ReferencePosition(tc.id)
		if pos != tc.pos || ok != tc.isOK {
			t.Fatalf("ReferencePosition(%q) = %d, %v", tc.id, pos, ok)
		}
	}
}
