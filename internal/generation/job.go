// Package generation sequences AI-assisted card generation jobs.
//
// A job walks the slots of one instruct-format template in order, calling
// the selected text backend for each text field and the image backend for
// the portrait slot. Earlier slot outputs feed later slots' placeholder
// resolution. Transient backend failures are retried with bounded
// exponential backoff; whatever happens, draft values produced before a
// failure or cancellation stay inspectable.
package generation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

var (
	// ErrJobAlreadyRunning rejects a second concurrent job on the same
	// card. Cancel the active one first; jobs are never queued.
	ErrJobAlreadyRunning = errors.New("a generation job is already running for this card")
	// ErrJobCancelled is the terminal error of a cancelled job. The draft
	// accumulated before cancellation stays readable through Status.
	ErrJobCancelled = errors.New("generation job cancelled")
)

// State is a job lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// Draft is the accumulated output of a job: generated field values plus
// the portrait bytes, if the template's portrait slot ran.
type Draft struct {
	Values   map[types.Field]string
	Portrait []byte
}

// MergeReport says what a draft merge actually touched. Fields the user
// edited after the job started are skipped, never clobbered.
type MergeReport struct {
	Applied         []types.Field
	Skipped         []types.Field
	PortraitApplied bool
}

// CardTarget is the orchestrator's view of the live card. The editor
// facade implements it; merges and snapshots go through its single
// mutation point.
type CardTarget interface {
	// Snapshot returns a copy of the current card data for rendering.
	Snapshot() types.CardData
	// ApplyDraft merges draft values into the card, skipping any field
	// the user edited after startedAt, and any non-empty field when
	// onlyFillEmpty is set.
	ApplyDraft(draft Draft, startedAt time.Time, onlyFillEmpty bool) MergeReport
}

// Status is a point-in-time snapshot of a job, safe to hand to callers.
type Status struct {
	ID        uuid.UUID
	State     State
	SlotIndex int
	SlotField types.Field
	Err       error
	Draft     Draft
	Merge     MergeReport
}

// Job is one in-flight or finished generation run. All fields behind mu;
// callers observe it only through Status, Cancel, and Done.
type Job struct {
	id        uuid.UUID
	startedAt time.Time

	mu        sync.Mutex
	state     State
	slotIndex int
	slotField types.Field
	err       error
	draft     Draft
	merge     MergeReport
	cancelled bool

	done chan struct{}
}

func newJob() *Job {
	return &Job{
		id:        uuid.New(),
		startedAt: time.Now(),
		state:     StatePending,
		draft:     Draft{Values: map[types.Field]string{}},
		done:      make(chan struct{}),
	}
}

// ID returns the job handle identifier.
func (j *Job) ID() uuid.UUID { return j.id }

// Cancel requests cooperative cancellation. The job notices at the next
// slot boundary; an in-flight backend call is not aborted, but its result
// is discarded when it arrives.
func (j *Job) Cancel() {
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Status returns a snapshot of the job, including a copy of the draft so
// partial results stay inspectable after failure or cancellation.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	values := make(map[types.Field]string, len(j.draft.Values))
	for k, v := range j.draft.Values {
		values[k] = v
	}
	return Status{
		ID:        j.id,
		State:     j.state,
		SlotIndex: j.slotIndex,
		SlotField: j.slotField,
		Err:       j.err,
		Draft:     Draft{Values: values, Portrait: j.draft.Portrait},
		Merge:     j.merge,
	}
}

func (j *Job) isCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

func (j *Job) enterSlot(index int, field types.Field) {
	j.mu.Lock()
	j.state = StateRunning
	j.slotIndex = index
	j.slotField = field
	j.mu.Unlock()
}

func (j *Job) storeValue(field types.Field, value string) {
	j.mu.Lock()
	j.draft.Values[field] = value
	j.mu.Unlock()
}

func (j *Job) storePortrait(raw []byte) {
	j.mu.Lock()
	j.draft.Portrait = raw
	j.mu.Unlock()
}

// draftCopy returns the values map for template resolution.
func (j *Job) draftCopy() map[types.Field]string {
	j.mu.Lock()
	defer j.mu.Unlock()
	values := make(map[types.Field]string, len(j.draft.Values))
	for k, v := range j.draft.Values {
		values[k] = v
	}
	return values
}

func (j *Job) finish(state State, err error) {
	j.mu.Lock()
	j.state = state
	j.err = err
	j.mu.Unlock()
	close(j.done)
}

func (j *Job) finishComplete(report MergeReport) {
	j.mu.Lock()
	j.state = StateComplete
	j.merge = report
	j.mu.Unlock()
	close(j.done)
}
