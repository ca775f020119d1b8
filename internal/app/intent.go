package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultCommitTimeout is the deadline raced against a store commit.
const DefaultCommitTimeout = 8 * time.Second

// IntentState is the lifecycle position of an optimistic mutation.
type IntentState string

// IntentState values.
const (
	IntentTentative  IntentState = "tentative"
	IntentCommitted  IntentState = "committed"
	IntentRolledBack IntentState = "rolled_back"
)

// Intent records one optimistic mutation and how it ended.
type Intent struct {
	Key        string      `json:"key"`
	State      IntentState `json:"state"`
	Err        error       `json:"-"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Intents runs optimistic mutations, at most one per key at a time.
type Intents struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
	timeout  time.Duration
	clock    Clock
}

// NewIntents constructs a coordinator. A non-positive timeout selects DefaultCommitTimeout.
func NewIntents(timeout time.Duration, clock Clock) *Intents {
	if timeout <= 0 {
		timeout = DefaultCommitTimeout
	}
	if clock == nil {
		clock = time.Now
	}
	return &Intents{
		inFlight: map[string]struct{}{},
		timeout:  timeout,
		clock:    clock,
	}
}

// InFlight reports whether key has an outstanding mutation.
func (i *Intents) InFlight(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.inFlight[key]
	return ok
}

// Run applies the tentative state, then races commit against the timeout.
// On commit failure or timeout revert runs and the intent ends rolled back.
// A second Run for a key that is still outstanding returns ErrOperationInFlight without side effects.
func (i *Intents) Run(ctx context.Context, key string, apply func(), commit func(context.Context) error, revert func()) (Intent, error) {
	if !i.acquire(key) {
		return Intent{Key: key}, fmt.Errorf("%w: %s", ErrOperationInFlight, key)
	}
	defer i.release(key)

	intent := Intent{Key: key, State: IntentTentative, StartedAt: i.clock().UTC()}
	if apply != nil {
		apply()
	}

	commitCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- commit(commitCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-commitCtx.Done():
		err = commitCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrCommitTimeout, i.timeout)
		}
	}

	intent.FinishedAt = i.clock().UTC()
	if err != nil {
		if revert != nil {
			revert()
		}
		intent.State = IntentRolledBack
		intent.Err = err
		return intent, err
	}
	intent.State = IntentCommitted
	return intent, nil
}

func (i *Intents) acquire(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.inFlight[key]; ok {
		return false
	}
	i.inFlight[key] = struct{}{}
	return true
}

func (i *Intents) release(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.inFlight, key)
}
