package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/candre23/AI-CharCard-Editor/internal/models"
	"github.com/candre23/AI-CharCard-Editor/internal/prompt"
	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

const testFormat = "runner-test"

var registerTestTemplate sync.Once

func setupTemplate(t *testing.T) {
	t.Helper()
	registerTestTemplate.Do(func() {
		err := prompt.Register(&prompt.GenerationTemplate{
			Format: testFormat,
			Slots: []prompt.Slot{
				{Field: types.FieldDescription, Body: "describe {{.name}}"},
				{Field: types.FieldPersonality, Body: "personality given {{.description}}"},
				{Field: types.FieldPortrait, Body: "portrait of {{.description}}"},
			},
		})
		if err != nil {
			panic(err)
		}
	})
}

type reply struct {
	text string
	err  error
}

// fakeTextBackend replays a scripted sequence of replies; the last one
// repeats. The optional channels let a test hold a call in flight.
type fakeTextBackend struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	script  []reply

	started chan struct{}
	release chan struct{}
}

func (f *fakeTextBackend) Name() string { return "fake-text" }

func (f *fakeTextBackend) GenerateText(ctx context.Context, req models.TextRequest) (models.TextResponse, error) {
	f.mu.Lock()
	index := f.calls
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	if len(f.script) == 0 {
		return models.TextResponse{Text: "generated", FinishReason: "stop"}, nil
	}
	if index >= len(f.script) {
		index = len(f.script) - 1
	}
	r := f.script[index]
	if r.err != nil {
		return models.TextResponse{}, r.err
	}
	return models.TextResponse{Text: r.text, FinishReason: "stop"}, nil
}

func (f *fakeTextBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeImageBackend struct {
	raw []byte
	err error
}

func (f *fakeImageBackend) Name() string { return "fake-image" }

func (f *fakeImageBackend) GenerateImage(ctx context.Context, req models.ImageRequest) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

// fakeTarget applies every draft value and records the merge arguments.
type fakeTarget struct {
	mu            sync.Mutex
	card          types.CardData
	applies       int
	gotOnlyEmpty  bool
	gotPortrait   bool
	mergedStarted time.Time
}

func (f *fakeTarget) Snapshot() types.CardData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.card
}

func (f *fakeTarget) ApplyDraft(draft Draft, startedAt time.Time, onlyFillEmpty bool) MergeReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies++
	f.gotOnlyEmpty = onlyFillEmpty
	f.mergedStarted = startedAt

	var report MergeReport
	for _, field := range types.TextFields() {
		value, ok := draft.Values[field]
		if !ok {
			continue
		}
		f.card.SetFieldValue(field, value)
		report.Applied = append(report.Applied, field)
	}
	if len(draft.Portrait) > 0 {
		f.gotPortrait = true
		report.PortraitApplied = true
	}
	return report
}

func (f *fakeTarget) applyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applies
}

func waitDone(t *testing.T, job *Job) Status {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish in time")
	}
	return job.Status()
}

func transientErr() error {
	return &models.BackendError{Backend: "fake-text", Status: 503, Transient: true, Err: errors.New("overloaded")}
}

func fatalErr() error {
	return &models.BackendError{Backend: "fake-text", Status: 401, Transient: false, Err: errors.New("bad key")}
}

func TestRunnerCompletesAndMerges(t *testing.T) {
	setupTemplate(t)
	backend := &fakeTextBackend{script: []reply{
		{text: "a silver-haired bard"},
		{text: "```\nwitty and restless\n```"},
	}}
	image := &fakeImageBackend{raw: []byte{1, 2, 3}}
	target := &fakeTarget{card: types.CardData{Name: "Aria"}}

	job, err := NewRunner().Start(context.Background(), target, Options{
		Format:       testFormat,
		TextBackend:  backend,
		ImageBackend: image,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status := waitDone(t, job)
	if status.State != StateComplete {
		t.Fatalf("expected complete, got %s (%v)", status.State, status.Err)
	}
	if target.applyCount() != 1 {
		t.Fatalf("expected exactly one merge, got %d", target.applyCount())
	}
	snap := target.Snapshot()
	if snap.Description != "a silver-haired bard" {
		t.Fatalf("unexpected description: %q", snap.Description)
	}
	if snap.Personality != "witty and restless" {
		t.Fatalf("code fences must be stripped before merge: %q", snap.Personality)
	}
	if !target.gotPortrait || !status.Merge.PortraitApplied {
		t.Fatal("expected portrait to be generated and merged")
	}
	// Slot two renders against the draft produced by slot one.
	if backend.prompts[1] != "personality given a silver-haired bard" {
		t.Fatalf("later slots must see earlier draft values: %q", backend.prompts[1])
	}
}

func TestRunnerSkipsPortraitWithoutImageBackend(t *testing.T) {
	setupTemplate(t)
	backend := &fakeTextBackend{}
	target := &fakeTarget{}

	job, err := NewRunner().Start(context.Background(), target, Options{
		Format:      testFormat,
		TextBackend: backend,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	status := waitDone(t, job)
	if status.State != StateComplete {
		t.Fatalf("expected complete, got %s (%v)", status.State, status.Err)
	}
	if len(status.Draft.Portrait) != 0 || status.Merge.PortraitApplied {
		t.Fatal("portrait slot must be skipped without an image backend")
	}
}

func TestRunnerFailureKeepsPartialDraft(t *testing.T) {
	setupTemplate(t)
	backend := &fakeTextBackend{script: []reply{
		{text: "a silver-haired bard"},
		{err: fatalErr()},
	}}
	target := &fakeTarget{}

	job, err := NewRunner().Start(context.Background(), target, Options{
		Format:      testFormat,
		TextBackend: backend,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status := waitDone(t, job)
	if status.State != StateFailed {
		t.Fatalf("expected failed, got %s", status.State)
	}
	if status.SlotField != types.FieldPersonality {
		t.Fatalf("expected failure at personality slot, got %s", status.SlotField)
	}
	if status.Draft.Values[types.FieldDescription] != "a silver-haired bard" {
		t.Fatalf("partial draft must survive failure: %#v", status.Draft.Values)
	}
	if target.applyCount() != 0 {
		t.Fatal("failed jobs must never merge")
	}
}

func TestRunnerRetriesTransientErrors(t *testing.T) {
	setupTemplate(t)
	backend := &fakeTextBackend{script: []reply{
		{err: transientErr()},
		{err: transientErr()},
		{text: "third time lucky"},
	}}
	target := &fakeTarget{}

	job, err := NewRunner().Start(context.Background(), target, Options{
		Format:         testFormat,
		TextBackend:    backend,
		RetryAttempts:  3,
		InitialBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status := waitDone(t, job)
	if status.State != StateComplete {
		t.Fatalf("expected complete after retries, got %s (%v)", status.State, status.Err)
	}
	if status.Draft.Values[types.FieldDescription] != "third time lucky" {
		t.Fatalf("unexpected description: %#v", status.Draft.Values)
	}
}

func TestRunnerRetryExhaustion(t *testing.T) {
	setupTemplate(t)
	backend := &fakeTextBackend{script: []reply{{err: transientErr()}}}
	target := &fakeTarget{}

	job, err := NewRunner().Start(context.Background(), target, Options{
		Format:         testFormat,
		TextBackend:    backend,
		RetryAttempts:  2,
		InitialBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status := waitDone(t, job)
	if status.State != StateFailed {
		t.Fatalf("expected failed, got %s", status.State)
	}
	// Initial try plus two retries.
	if backend.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", backend.callCount())
	}
	if target.applyCount() != 0 {
		t.Fatal("exhausted jobs must never merge")
	}
}

func TestRunnerDoesNotRetryFatalErrors(t *testing.T) {
	setupTemplate(t)
	backend := &fakeTextBackend{script: []reply{{err: fatalErr()}}}

	job, err := NewRunner().Start(context.Background(), &fakeTarget{}, Options{
		Format:         testFormat,
		TextBackend:    backend,
		RetryAttempts:  5,
		InitialBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	status := waitDone(t, job)
	if status.State != StateFailed {
		t.Fatalf("expected failed, got %s", status.State)
	}
	if backend.callCount() != 1 {
		t.Fatalf("fatal errors must not retry, got %d attempts", backend.callCount())
	}
}

func TestRunnerCancelDiscardsLateResult(t *testing.T) {
	setupTemplate(t)
	backend := &fakeTextBackend{
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
	}
	target := &fakeTarget{}

	job, err := NewRunner().Start(context.Background(), target, Options{
		Format:      testFormat,
		TextBackend: backend,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	<-backend.started
	job.Cancel()
	close(backend.release)

	status := waitDone(t, job)
	if status.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", status.State)
	}
	if !errors.Is(status.Err, ErrJobCancelled) {
		t.Fatalf("expected ErrJobCancelled, got %v", status.Err)
	}
	if len(status.Draft.Values) != 0 {
		t.Fatalf("result arriving after cancel must be discarded: %#v", status.Draft.Values)
	}
	if target.applyCount() != 0 {
		t.Fatal("cancelled jobs must never merge")
	}
}

func TestRunnerRejectsSecondJobOnSameCard(t *testing.T) {
	setupTemplate(t)
	backend := &fakeTextBackend{
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
	}
	target := &fakeTarget{}
	runner := NewRunner()

	job, err := runner.Start(context.Background(), target, Options{
		Format:      testFormat,
		TextBackend: backend,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-backend.started

	if _, err := runner.Start(context.Background(), target, Options{
		Format:      testFormat,
		TextBackend: backend,
	}); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("expected ErrJobAlreadyRunning, got %v", err)
	}

	// A second card is fine while the first is busy.
	other := &fakeTarget{}
	otherJob, err := runner.Start(context.Background(), other, Options{
		Format:      testFormat,
		TextBackend: &fakeTextBackend{},
	})
	if err != nil {
		t.Fatalf("second card must be independent: %v", err)
	}
	waitDone(t, otherJob)

	job.Cancel()
	close(backend.release)
	waitDone(t, job)

	// Once terminal, the same card accepts a new job.
	again, err := runner.Start(context.Background(), target, Options{
		Format:      testFormat,
		TextBackend: &fakeTextBackend{},
	})
	if err != nil {
		t.Fatalf("restart after terminal state: %v", err)
	}
	waitDone(t, again)
}

func TestRunnerStartValidation(t *testing.T) {
	setupTemplate(t)
	runner := NewRunner()

	if _, err := runner.Start(context.Background(), &fakeTarget{}, Options{Format: testFormat}); err == nil {
		t.Fatal("expected error without text backend")
	}
	if _, err := runner.Start(context.Background(), &fakeTarget{}, Options{
		Format:      "no-such-format",
		TextBackend: &fakeTextBackend{},
	}); !errors.Is(err, prompt.ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestRunnerPassesOnlyFillEmptyThrough(t *testing.T) {
	setupTemplate(t)
	target := &fakeTarget{}
	job, err := NewRunner().Start(context.Background(), target, Options{
		Format:        testFormat,
		TextBackend:   &fakeTextBackend{},
		OnlyFillEmpty: true,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, job)
	if !target.gotOnlyEmpty {
		t.Fatal("merge must receive the only-fill-empty flag")
	}
}

func TestRunnerDropsFinishedJobFromTracking(t *testing.T) {
	setupTemplate(t)
	runner := NewRunner()
	job, err := runner.Start(context.Background(), &fakeTarget{}, Options{
		Format:      testFormat,
		TextBackend: &fakeTextBackend{},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, job)

	// Removal runs just after the job signals done.
	deadline := time.Now().Add(time.Second)
	for {
		runner.mu.Lock()
		n := len(runner.active)
		runner.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("finished job still tracked, %d entries", n)
		}
		time.Sleep(time.Millisecond)
	}
}
