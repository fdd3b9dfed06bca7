package fake

import (
	"context"
	"sync"
	"time"

	"github.com/bennjii/reseda/internal/connection"
)

var _ connection.TimeRecorder = (*TimeRecorder)(nil)

// TimeRecorder keeps the attempt times it is given.
type TimeRecorder struct {
	mu        sync.Mutex
	started   map[string]time.Time
	completed map[string]time.Time
}

func NewTimeRecorder() *TimeRecorder {
	return &TimeRecorder{started: make(map[string]time.Time), completed: make(map[string]time.Time)}
}

func (r *TimeRecorder) MarkStarted(_ context.Context, id string, at time.Time) {
	r.mu.Lock()
	r.started[id] = at
	r.mu.Unlock()
}

func (r *TimeRecorder) MarkCompleted(_ context.Context, id string, at time.Time) {
	r.mu.Lock()
	r.completed[id] = at
	r.mu.Unlock()
}

// Started returns the recorded start time of id.
func (r *TimeRecorder) Started(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.started[id]
	return at, ok
}

// Completed returns the recorded completion time of id.
func (r *TimeRecorder) Completed(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.completed[id]
	return at, ok
}
