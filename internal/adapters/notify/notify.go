// Package notify provides notification sinks for optimistic-mutation outcomes.
package notify

import (
	"sync"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/labbook/internal/app"
)

// DefaultRingSize bounds the recorder when no size is configured.
const DefaultRingSize = 100

// LogNotifier writes each notification as one structured log line.
type LogNotifier struct {
	logger *charmLog.Logger
}

// NewLogNotifier constructs a log sink. A nil logger uses the charm default logger.
func NewLogNotifier(logger *charmLog.Logger) *LogNotifier {
	if logger == nil {
		logger = charmLog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs destructive notifications at warn level and the rest at info.
func (n *LogNotifier) Notify(notification app.Notification) {
	keyvals := []any{"variant", string(notification.Variant)}
	if notification.Description != "" {
		keyvals = append(keyvals, "detail", notification.Description)
	}
	if notification.Variant == app.VariantDestructive {
		n.logger.Warn(notification.Title, keyvals...)
		return
	}
	n.logger.Info(notification.Title, keyvals...)
}

// Recorder keeps the most recent notifications in a fixed-size ring.
type Recorder struct {
	mu    sync.Mutex
	ring  []app.Notification
	next  int
	count int
}

// NewRecorder constructs a recorder holding at most size notifications.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Recorder{ring: make([]app.Notification, size)}
}

// Notify stores one notification, evicting the oldest when full.
func (r *Recorder) Notify(notification app.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.next] = notification
	r.next = (r.next + 1) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	}
}

// Recent returns up to limit notifications, newest first. A non-positive limit returns all.
func (r *Recorder) Recent(limit int) []app.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]app.Notification, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.ring)) % len(r.ring)
		out = append(out, r.ring[idx])
	}
	return out
}

// Fanout delivers each notification to every wrapped notifier in order.
type Fanout []app.Notifier

// Notify forwards notification to all non-nil notifiers.
func (f Fanout) Notify(notification app.Notification) {
	for _, notifier := range f {
		if notifier != nil {
			notifier.Notify(notification)
		}
	}
}
