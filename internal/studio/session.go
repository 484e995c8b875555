// Package studio owns the per-user editing state: the two upload modules,
// the style instruction, the current notification and the generation batch.
package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"photostudio/internal/domain"
	"photostudio/internal/generation"
	"photostudio/internal/imagecodec"
	"photostudio/internal/slots"
	"photostudio/internal/templates"
)

// Module selects one of the two upload grids.
type Module string

const (
	ModulePrimary   Module = "primary"
	ModuleReference Module = "reference"
)

// ParseModule accepts the module name or its grid number.
func ParseModule(s string) (Module, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", "1", "module1", "m1":
		return ModulePrimary, nil
	case "reference", "2", "module2", "m2":
		return ModuleReference, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidModule, s)
	}
}

func (m Module) capacity() int {
	if m == ModulePrimary {
		return slots.PrimaryCapacity
	}
	return slots.ReferenceCapacity
}

const uploadFailedMessage = "An image couldn't be processed. Please try another file."

// Options configures a Session.
type Options struct {
	Codec       *imagecodec.Codec
	Generator   generation.Generator
	Templates   *templates.Catalog
	Logger      zerolog.Logger
	Concurrency int
	CallTimeout time.Duration
}

// UploadMarker flags a slot whose upload is still being processed.
type UploadMarker struct {
	Module Module `json:"module"`
	Index  int    `json:"index"`
}

// Session is the state behind one studio view. It is safe for concurrent
// use.
type Session struct {
	ID string

	codec      *imagecodec.Codec
	catalog    *templates.Catalog
	controller *generation.Controller
	logger     zerolog.Logger

	// inputsVersion counts image changes. It is written with mu held and
	// read lock-free by the submit guard.
	inputsVersion atomic.Uint64
	// beforeSubmit runs between reading the inputs and submitting them.
	beforeSubmit func()

	mu           sync.Mutex
	primary      slots.Collection
	references   slots.Collection
	instruction  string
	uploading    map[UploadMarker]int
	notification *domain.Notification
	createdAt    time.Time
	updatedAt    time.Time
}

// NewSession creates an empty session.
func NewSession(id string, opts Options) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("studio: session id is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("studio: codec is required")
	}
	now := time.Now().UTC()
	s := &Session{
		ID:         id,
		codec:      opts.Codec,
		catalog:    opts.Templates,
		logger:     opts.Logger.With().Str("session_id", id).Logger(),
		primary:    slots.New(),
		references: slots.New(),
		uploading:  make(map[UploadMarker]int),
		createdAt:  now,
		updatedAt:  now,
	}
	controller, err := generation.NewController(generation.Options{
		Generator:   opts.Generator,
		Notifier:    s,
		Logger:      s.logger,
		Concurrency: opts.Concurrency,
		CallTimeout: opts.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	s.controller = controller
	return s, nil
}

// Notify records n as the current notification, replacing any previous one.
func (s *Session) Notify(n domain.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.notification = &n
	s.mu.Unlock()
}

// DismissNotification clears the current notification.
func (s *Session) DismissNotification() {
	s.mu.Lock()
	s.notification = nil
	s.mu.Unlock()
}

// Upload decodes and squares every file in parallel, then commits them in
// one update. The primary module keeps only the first file and replaces its
// image. The reference module fills empty slots from index onward. Any
// image change discards the current batch. When a file cannot be processed
// nothing is committed and a notification is raised.
func (s *Session) Upload(ctx context.Context, module Module, index int, files []io.Reader) error {
	if len(files) == 0 {
		return domain.ErrNoImages
	}
	if module == ModulePrimary {
		files = files[:1]
	}

	s.mu.Lock()
	if err := s.checkSlot(module, index); err != nil {
		s.mu.Unlock()
		return err
	}
	marker := UploadMarker{Module: module, Index: index}
	s.uploading[marker]++
	s.notification = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.uploading[marker]--; s.uploading[marker] <= 0 {
			delete(s.uploading, marker)
		}
		s.mu.Unlock()
	}()

	images := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			img, err := s.codec.EncodeAndCrop(gctx, f, imagecodec.Square)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		kind := domain.NotificationDecode
		var cropErr *imagecodec.CropError
		if errors.As(err, &cropErr) {
			kind = domain.NotificationCrop
		}
		s.logger.Warn().Err(err).Str("module", string(module)).Int("index", index).Msg("studio: upload failed")
		s.Notify(domain.Notification{Kind: kind, Message: uploadFailedMessage})
		return err
	}

	s.mu.Lock()
	if module == ModulePrimary {
		s.primary = slots.ReplaceSingle(images[0])
	} else {
		s.references = slots.AssignBatch(s.references, index, images, slots.ReferenceCapacity)
	}
	s.imagesChanged()
	s.mu.Unlock()

	s.logger.Info().Str("module", string(module)).Int("index", index).Int("files", len(files)).Msg("studio: images uploaded")
	return nil
}

// RemoveImage empties the slot at index. Removing the primary image leaves
// one empty slot; an emptied reference module also resets to one slot. The
// current batch is discarded.
func (s *Session) RemoveImage(module Module, index int) error {
	s.mu.Lock()
	if err := s.checkSlot(module, index); err != nil {
		s.mu.Unlock()
		return err
	}
	if module == ModulePrimary {
		s.primary = slots.Remove(s.primary, index, slots.PrimaryCapacity)
	} else {
		s.references = slots.Remove(s.references, index, slots.ReferenceCapacity)
	}
	s.imagesChanged()
	s.mu.Unlock()
	return nil
}

// AddSlot appends an empty reference slot. It reports false when the
// module is already at capacity.
func (s *Session) AddSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := slots.AddEmptySlot(s.references, slots.ReferenceCapacity)
	if len(next) == len(s.references) {
		return false
	}
	s.references = next
	s.touch()
	return true
}

// SetInstruction replaces the live style instruction. Tasks already created
// keep the instruction they were created with.
func (s *Session) SetInstruction(text string) {
	s.mu.Lock()
	s.instruction = text
	s.touch()
	s.mu.Unlock()
}

// ApplyTemplate copies the template prompt into the instruction.
func (s *Session) ApplyTemplate(id string) (templates.Template, error) {
	if s.catalog == nil {
		return templates.Template{}, domain.ErrTemplateNotFound
	}
	t, err := s.catalog.Lookup(id)
	if err != nil {
		return templates.Template{}, err
	}
	s.SetInstruction(t.Prompt)
	return t, nil
}

const maxSubmitAttempts = 3

// Generate submits the current images and instruction as a new batch. If
// the images change while the batch is being built, the submit starts over
// with the new images so a batch never outlives the inputs it was made from.
func (s *Session) Generate(ctx context.Context) (*generation.Run, error) {
	s.DismissNotification()
	for range maxSubmitAttempts {
		s.mu.Lock()
		primary, references, instruction := s.primary.Filled(), s.references.Filled(), s.instruction
		version := s.inputsVersion.Load()
		s.mu.Unlock()

		if s.beforeSubmit != nil {
			s.beforeSubmit()
		}
		run, err := s.controller.SubmitIf(ctx, func() bool {
			return s.inputsVersion.Load() == version
		}, primary, references, instruction)
		if !errors.Is(err, generation.ErrStaleInputs) {
			return run, err
		}
		s.logger.Debug().Msg("studio: images changed during submit, retrying")
	}
	return nil, generation.ErrStaleInputs
}

// Regenerate retries the result at index with the current images.
func (s *Session) Regenerate(ctx context.Context, index int) (*generation.Run, error) {
	primary, references, _ := s.inputs()
	s.DismissNotification()
	run, ok := s.controller.Retry(ctx, index, primary, references)
	if !ok {
		return nil, domain.ErrResultNotFound
	}
	return run, nil
}

// Batch returns a snapshot of the current generation batch.
func (s *Session) Batch() generation.Batch {
	return s.controller.Snapshot()
}

// Reset discards the current batch.
func (s *Session) Reset() {
	s.controller.Reset()
}

// View is a read-only snapshot of a session.
type View struct {
	ID           string               `json:"id"`
	Primary      slots.Collection     `json:"primary"`
	References   slots.Collection     `json:"references"`
	Instruction  string               `json:"instruction"`
	Uploading    []UploadMarker       `json:"uploading"`
	Notification *domain.Notification `json:"notification,omitempty"`
	Batch        generation.Batch     `json:"batch"`
	Progress     int                  `json:"progress"`
	CanGenerate  bool                 `json:"can_generate"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// View returns a snapshot of the session state.
func (s *Session) View() View {
	batch := s.controller.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:          s.ID,
		Primary:     s.primary.Clone(),
		References:  s.references.Clone(),
		Instruction: s.instruction,
		Uploading:   make([]UploadMarker, 0, len(s.uploading)),
		Batch:       batch,
		Progress:    batch.Progress(),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
	for m := range s.uploading {
		v.Uploading = append(v.Uploading, m)
	}
	sort.Slice(v.Uploading, func(i, j int) bool {
		if v.Uploading[i].Module != v.Uploading[j].Module {
			return v.Uploading[i].Module < v.Uploading[j].Module
		}
		return v.Uploading[i].Index < v.Uploading[j].Index
	})
	if s.notification != nil {
		n := *s.notification
		v.Notification = &n
	}
	v.CanGenerate = s.primary.HasImage() && strings.TrimSpace(s.instruction) != "" && len(v.Uploading) == 0 && !batch.Busy
	return v
}

func (s *Session) inputs() (primary, references []string, instruction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary.Filled(), s.references.Filled(), s.instruction
}

// checkSlot must be called with s.mu held.
func (s *Session) checkSlot(module Module, index int) error {
	var current slots.Collection
	switch module {
	case ModulePrimary:
		current = s.primary
	case ModuleReference:
		current = s.references
	default:
		return domain.ErrInvalidModule
	}
	if index < 0 || index >= len(current) || index >= module.capacity() {
		return fmt.Errorf("%w: %s slot %d", domain.ErrSlotOutOfRange, module, index)
	}
	return nil
}

// imagesChanged must be called with s.mu held. The version is bumped before
// the reset so a concurrent submit either sees the change or is cleared.
func (s *Session) imagesChanged() {
	s.inputsVersion.Add(1)
	s.controller.Reset()
	s.touch()
}

// touch must be called with s.mu held.
func (s *Session) touch() {
	s.updatedAt = time.Now().UTC()
}

var _ domain.Notifier = (*Session)(nil)
