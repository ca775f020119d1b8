package app

import "time"

// NotificationVariant selects how a notification is surfaced.
type NotificationVariant string

// NotificationVariant values.
const (
	VariantDefault     NotificationVariant = "default"
	VariantSuccess     NotificationVariant = "success"
	VariantDestructive NotificationVariant = "destructive"
)

// Notification is one user-facing outcome message.
type Notification struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Variant     NotificationVariant `json:"variant"`
	At          time.Time           `json:"at"`
}

// Notifier receives user-facing outcome messages.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f.
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// discardNotifier drops notifications.
type discardNotifier struct{}

func (discardNotifier) Notify(Notification) {}
