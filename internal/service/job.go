package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pizza-nz/ticket-printer/internal/clock"
	"github.com/pizza-nz/ticket-printer/internal/models"
)

type jobState int

const (
	stateIdle jobState = iota
	stateConnecting
	stateStatusCheck
	stateRendering
	stateFaulted
	stateClosing
	stateResponded
)

func (s jobState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateStatusCheck:
		return "status_check"
	case stateRendering:
		return "rendering"
	case stateFaulted:
		return "faulted"
	case stateClosing:
		return "closing"
	case stateResponded:
		return "responded"
	default:
		return "unknown"
	}
}

// job tracks one print request. Its outcome is decided exactly once: the
// status deadline, the status worker and request cancellation all race to
// settle it and every settle after the first is a no-op.
type job struct {
	id uuid.UUID

	mu       sync.Mutex
	state    jobState
	settled  bool
	outcome  *models.PrintError
	deadline *clock.Timer

	done chan struct{}
}

func newJob() *job {
	return &job{
		id:   uuid.New(),
		done: make(chan struct{}),
	}
}

func (j *job) State() jobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// advance moves the job from one state to the next. It reports false, and
// changes nothing, if the job is settled or not in from.
func (j *job) advance(from, to jobState) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.settled || j.state != from {
		return false
	}
	j.state = to
	if to == stateRendering {
		j.deadline.Stop()
	}
	return true
}

// armDeadline settles the job with expired unless the status check
// finishes within d.
func (j *job) armDeadline(c clock.Clock, d time.Duration, expired *models.PrintError) {
	timer := c.AfterFunc(d, func() {
		j.settle(expired, stateStatusCheck)
	})

	j.mu.Lock()
	j.deadline = timer
	j.mu.Unlock()
}

// settle records the outcome, nil for success, and wakes the waiter. With
// states given, it only applies while the job is in one of them. It
// reports whether this call decided the outcome.
func (j *job) settle(perr *models.PrintError, states ...jobState) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.settled {
		return false
	}
	if len(states) > 0 && !j.inLocked(states) {
		return false
	}

	j.settled = true
	j.outcome = perr
	if perr != nil {
		j.state = stateFaulted
	}
	j.deadline.Stop()
	close(j.done)
	return true
}

func (j *job) inLocked(states []jobState) bool {
	for _, s := range states {
		if j.state == s {
			return true
		}
	}
	return false
}

// enter moves a settled job through closing and responded.
func (j *job) enter(s jobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// Outcome returns the settled outcome.
func (j *job) Outcome() *models.PrintError {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcome
}
