package domain

import "time"

// NotificationKind classifies a transient user-facing message.
type NotificationKind string

const (
	NotificationValidation NotificationKind = "validation"
	NotificationDecode     NotificationKind = "decode"
	NotificationCrop       NotificationKind = "crop"
	NotificationGeneration NotificationKind = "generation"
)

// Notification is a dismissible message shown to the user after a failure.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// Notifier receives notifications raised by the studio components.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }
