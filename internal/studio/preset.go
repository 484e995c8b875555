package studio

import (
	"fmt"
	"strings"
	"time"

	"photostudio/internal/domain"
	"photostudio/internal/slots"
)

// PresetKind selects which part of a session a preset captures.
type PresetKind string

const (
	// PresetPhoto captures both image modules.
	PresetPhoto PresetKind = "photo"
	// PresetStyle captures the instruction.
	PresetStyle PresetKind = "style"
	// PresetGlobal captures images and instruction.
	PresetGlobal PresetKind = "global"
)

// ParsePresetKind validates a kind name.
func ParsePresetKind(s string) (PresetKind, error) {
	switch k := PresetKind(strings.ToLower(strings.TrimSpace(s))); k {
	case PresetPhoto, PresetStyle, PresetGlobal:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidPreset, s)
	}
}

func (k PresetKind) hasImages() bool { return k == PresetPhoto || k == PresetGlobal }

func (k PresetKind) hasInstruction() bool { return k == PresetStyle || k == PresetGlobal }

// Preset is a saved set of inputs that can be applied to any session.
type Preset struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Kind        PresetKind       `json:"kind"`
	Primary     slots.Collection `json:"primary,omitempty"`
	References  slots.Collection `json:"references,omitempty"`
	Instruction string           `json:"instruction,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Capture copies the parts of the session selected by kind into a preset.
func (s *Session) Capture(id, name string, kind PresetKind) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, fmt.Errorf("%w: name is required", domain.ErrInvalidPreset)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Preset{ID: id, Name: name, Kind: kind, CreatedAt: time.Now().UTC()}
	if kind.hasImages() {
		if !s.primary.HasImage() && !s.references.HasImage() {
			return Preset{}, fmt.Errorf("%w: session has no images", domain.ErrInvalidPreset)
		}
		p.Primary = s.primary.Clone()
		p.References = s.references.Clone()
	}
	if kind.hasInstruction() {
		if strings.TrimSpace(s.instruction) == "" {
			return Preset{}, fmt.Errorf("%w: session has no instruction", domain.ErrInvalidPreset)
		}
		p.Instruction = s.instruction
	}
	return p, nil
}

// Apply loads the preset into the session. Presets carrying images replace
// both modules and discard the current batch.
func (s *Session) Apply(p Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Kind.hasImages() {
		s.primary = normalizePrimary(p.Primary)
		s.references = normalizeReferences(p.References)
		s.imagesChanged()
	}
	if p.Kind.hasInstruction() {
		s.instruction = p.Instruction
	}
	s.touch()
}

func normalizePrimary(c slots.Collection) slots.Collection {
	if len(c) == 0 || c[0] == slots.Empty {
		return slots.New()
	}
	return slots.ReplaceSingle(c[0])
}

func normalizeReferences(c slots.Collection) slots.Collection {
	if len(c) == 0 {
		return slots.New()
	}
	out := c.Clone()
	if len(out) > slots.ReferenceCapacity {
		out = out[:slots.ReferenceCapacity]
	}
	return out
}
