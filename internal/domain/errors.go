package domain

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrPresetNotFound   = errors.New("preset not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrInvalidModule    = errors.New("invalid module")
	ErrSlotOutOfRange   = errors.New("slot out of range")
	ErrResultNotFound   = errors.New("result not found")
	ErrResultNotReady   = errors.New("result not ready")
	ErrNoImages         = errors.New("no images supplied")
	ErrInvalidPreset    = errors.New("invalid preset")
)
