package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/candre23/AI-CharCard-Editor/internal/models"
	"github.com/candre23/AI-CharCard-Editor/internal/prompt"
	"github.com/candre23/AI-CharCard-Editor/internal/types"
	"github.com/candre23/AI-CharCard-Editor/internal/utils"
)

// Options configures one generation job.
type Options struct {
	// Format selects the instruct-format template.
	Format string
	// TextBackend handles every text slot.
	TextBackend models.TextBackend
	// ImageBackend handles the portrait slot. Nil skips it.
	ImageBackend models.ImageBackend

	// Overrides are extra placeholder values, e.g. the creator "brief".
	// They outrank both draft values and card fields.
	Overrides map[string]string
	// OnlyFillEmpty keeps the merge away from fields that already have
	// text, regardless of edit timestamps.
	OnlyFillEmpty bool

	MaxTokens   int
	Temperature float64
	TopP        float64

	ImageWidth     int
	ImageHeight    int
	NegativePrompt string

	// RetryAttempts caps retries of a transient failure per slot.
	// Zero means 3.
	RetryAttempts int
	// InitialBackoff seeds the exponential backoff. Zero means 500ms.
	InitialBackoff time.Duration
}

// Runner starts and tracks generation jobs, enforcing the one-active-job
// rule per card target.
type Runner struct {
	mu     sync.Mutex
	active map[CardTarget]*Job
}

// NewRunner creates an empty Runner.
func NewRunner() *Runner {
	return &Runner{active: map[CardTarget]*Job{}}
}

// Start validates the request and launches the job on its own goroutine.
// Template lookup failures and the already-running rule surface here,
// synchronously; everything after that is reported through Job.Status.
func (r *Runner) Start(ctx context.Context, target CardTarget, opts Options) (*Job, error) {
	if opts.TextBackend == nil {
		return nil, fmt.Errorf("text backend is required")
	}
	tmpl, err := prompt.Lookup(opts.Format)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if current, ok := r.active[target]; ok && !current.Status().State.Terminal() {
		r.mu.Unlock()
		return nil, ErrJobAlreadyRunning
	}
	job := newJob()
	r.active[target] = job
	r.mu.Unlock()

	go r.run(ctx, job, tmpl, target, opts)
	return job, nil
}

// release drops a finished job from the active map. The identity check
// keeps it from removing a newer job started against the same target.
func (r *Runner) release(target CardTarget, job *Job) {
	r.mu.Lock()
	if r.active[target] == job {
		delete(r.active, target)
	}
	r.mu.Unlock()
}

func (r *Runner) run(ctx context.Context, job *Job, tmpl *prompt.GenerationTemplate, target CardTarget, opts Options) {
	defer r.release(target, job)
	for i, slot := range tmpl.Slots {
		if job.isCancelled() {
			slog.Info("generation job cancelled", "job", job.ID(), "slot", slot.Field)
			job.finish(StateCancelled, ErrJobCancelled)
			return
		}
		job.enterSlot(i, slot.Field)

		card := target.Snapshot()
		rendered, err := tmpl.RenderSlot(i, &card, job.draftCopy(), opts.Overrides)
		if err != nil {
			job.finish(StateFailed, fmt.Errorf("slot %s: %w", slot.Field, err))
			return
		}

		if slot.Field == types.FieldPortrait {
			if opts.ImageBackend == nil {
				continue
			}
			raw, err := r.callImage(ctx, job, opts, rendered)
			if job.isCancelled() {
				// A result that arrives after cancellation is discarded,
				// never merged.
				slog.Info("discarding result of cancelled portrait call", "job", job.ID())
				job.finish(StateCancelled, ErrJobCancelled)
				return
			}
			if err != nil {
				job.finish(StateFailed, fmt.Errorf("slot %s: %w", slot.Field, err))
				return
			}
			job.storePortrait(raw)
			continue
		}

		text, err := r.callText(ctx, job, opts, rendered)
		if job.isCancelled() {
			slog.Info("discarding result of cancelled text call", "job", job.ID(), "slot", slot.Field)
			job.finish(StateCancelled, ErrJobCancelled)
			return
		}
		if err != nil {
			job.finish(StateFailed, fmt.Errorf("slot %s: %w", slot.Field, err))
			return
		}
		job.storeValue(slot.Field, utils.CleanFieldText(text))
	}

	report := target.ApplyDraft(job.Status().Draft, job.startedAt, opts.OnlyFillEmpty)
	for _, field := range report.Skipped {
		slog.Info("merge skipped user-edited field", "job", job.ID(), "field", field)
	}
	job.finishComplete(report)
}

func (r *Runner) callText(ctx context.Context, job *Job, opts Options, rendered string) (string, error) {
	req := models.TextRequest{
		Prompt:      rendered,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}

	var resp models.TextResponse
	err := r.withRetry(ctx, job, opts, func() error {
		var callErr error
		resp, callErr = opts.TextBackend.GenerateText(ctx, req)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (r *Runner) callImage(ctx context.Context, job *Job, opts Options, rendered string) ([]byte, error) {
	req := models.ImageRequest{
		Prompt:   rendered,
		Negative: opts.NegativePrompt,
		Width:    opts.ImageWidth,
		Height:   opts.ImageHeight,
	}

	var raw []byte
	err := r.withRetry(ctx, job, opts, func() error {
		var callErr error
		raw, callErr = opts.ImageBackend.GenerateImage(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// withRetry runs call, retrying transient backend errors with bounded
// exponential backoff. Fatal errors and context cancellation stop
// immediately.
func (r *Runner) withRetry(ctx context.Context, job *Job, opts Options, call func() error) error {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initial
	expo.MaxInterval = 20 * time.Second

	attempt := 0
	operation := func() error {
		attempt++
		err := call()
		if err == nil {
			return nil
		}
		if !models.IsTransient(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("transient backend error, will retry", "job", job.ID(), "attempt", attempt, "error", err.Error())
		return err
	}
	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts)), ctx))
}
