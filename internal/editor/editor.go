// Package editor exposes the collaborator surface the UI layer drives:
// opening and saving card files, field edits, token estimates, portrait
// replacement, and generation job control. It owns the single mutation
// point for the live card.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/candre23/AI-CharCard-Editor/internal/codec"
	"github.com/candre23/AI-CharCard-Editor/internal/config"
	"github.com/candre23/AI-CharCard-Editor/internal/generation"
	"github.com/candre23/AI-CharCard-Editor/internal/models"
	"github.com/candre23/AI-CharCard-Editor/internal/schema"
	"github.com/candre23/AI-CharCard-Editor/internal/tokens"
	"github.com/candre23/AI-CharCard-Editor/internal/types"
)

// Session is one open card. All card access goes through its lock; the
// lock is held only for discrete reads and assignments, never across a
// backend call.
type Session struct {
	mu        sync.Mutex
	container *codec.CardContainer
	path      string

	// edits records the last manual edit time per field, so a completing
	// job never clobbers something the user typed while it ran.
	edits        map[types.Field]time.Time
	portraitEdit time.Time
}

// Editor is the service facade handed to the UI layer.
type Editor struct {
	cfg    config.Config
	runner *generation.Runner

	mu   sync.Mutex
	jobs map[*Session]*generation.Job
}

// New creates an Editor with the given configuration.
func New(cfg config.Config) *Editor {
	return &Editor{
		cfg:    cfg,
		runner: generation.NewRunner(),
		jobs:   map[*Session]*generation.Job{},
	}
}

// Open loads a card file into a new session.
func (e *Editor) Open(path string) (*Session, error) {
	container, err := codec.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &Session{
		container: container,
		path:      path,
		edits:     map[types.Field]time.Time{},
	}, nil
}

// NewBlankCard creates a session around an empty V2 card with a
// placeholder portrait. It has no path until the first Save.
func (e *Editor) NewBlankCard() (*Session, error) {
	container, err := codec.NewContainer(types.NewBlankCard(), blankPortraitPNG())
	if err != nil {
		return nil, err
	}
	return &Session{
		container: container,
		edits:     map[types.Field]time.Time{},
	}, nil
}

// Save writes the session's card to path atomically and remembers the
// path for subsequent saves.
func (e *Editor) Save(s *Session, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		path = s.path
	}
	if path == "" {
		return fmt.Errorf("no save path set")
	}
	if err := codec.SaveFile(s.container, path); err != nil {
		return err
	}
	s.path = path
	return nil
}

// Close cancels any generation job still attached to the session. The
// session must not be used afterwards.
func (e *Editor) Close(s *Session) {
	e.mu.Lock()
	job := e.jobs[s]
	delete(e.jobs, s)
	e.mu.Unlock()
	if job != nil {
		job.Cancel()
	}
}

// Field reads one card field.
func (s *Session) Field(field types.Field) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.container.Card.Data.FieldValue(field)
}

// SetField writes one card field as a manual user edit, stamping it so a
// running job will not overwrite it on merge.
func (s *Session) SetField(field types.Field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.container.Card.Data.SetFieldValue(field, value)
	s.edits[field] = time.Now()
}

// Card returns a copy of the card data.
func (s *Session) Card() types.CardData {
	return s.Snapshot()
}

// Container exposes the underlying container for codec-level operations.
func (s *Session) Container() *codec.CardContainer {
	return s.container
}

// ReplacePortrait swaps the card's pixels for a new PNG, as a manual edit.
func (e *Editor) ReplacePortrait(s *Session, imageBytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.container.ReplacePortrait(imageBytes); err != nil {
		return err
	}
	s.portraitEdit = time.Now()
	return nil
}

// EstimateTokens approximates the token count of arbitrary text.
func (e *Editor) EstimateTokens(text string, vocab tokens.Vocab) int {
	return tokens.Estimate(text, vocab)
}

// EstimateCardTokens approximates the token load of the whole card.
func (e *Editor) EstimateCardTokens(s *Session, vocab tokens.Vocab) int {
	data := s.Snapshot()
	return tokens.EstimateCard(&data, vocab)
}

// Validate returns advisory issues for the session's card.
func (e *Editor) Validate(s *Session) []schema.ValidationIssue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.Validate(s.container.Card)
}

// GenerateParams selects backends and seeds for a generation job.
type GenerateParams struct {
	TemplateID     string
	TextBackendID  string
	ImageBackendID string
	// Brief is the creator's short description driving generation.
	Brief string
	// OnlyFillEmpty restricts the merge to fields that are still blank.
	OnlyFillEmpty bool
}

// StartGenerationJob launches a job against the session's card. Exactly
// one job may be active per session; a second start is rejected.
func (e *Editor) StartGenerationJob(ctx context.Context, s *Session, params GenerateParams) (*generation.Job, error) {
	textBackend, err := models.NewTextBackend(ctx, params.TextBackendID, &e.cfg)
	if err != nil {
		return nil, err
	}
	var imageBackend models.ImageBackend
	if params.ImageBackendID != "" {
		imageBackend, err = models.NewImageBackend(ctx, params.ImageBackendID, &e.cfg)
		if err != nil {
			return nil, err
		}
	}

	templateID := params.TemplateID
	if templateID == "" {
		templateID = e.cfg.InstructFormat
	}

	job, err := e.runner.Start(ctx, s, generation.Options{
		Format:         templateID,
		TextBackend:    textBackend,
		ImageBackend:   imageBackend,
		Overrides:      map[string]string{"brief": params.Brief},
		OnlyFillEmpty:  params.OnlyFillEmpty,
		MaxTokens:      e.cfg.MaxTokens,
		Temperature:    e.cfg.Temperature,
		TopP:           e.cfg.TopP,
		ImageWidth:     e.cfg.ImageWidth,
		ImageHeight:    e.cfg.ImageHeight,
		NegativePrompt: e.cfg.NegativePrompt,
		RetryAttempts:  e.cfg.RetryAttempts,
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.jobs[s] = job
	e.mu.Unlock()
	return job, nil
}

// Cancel requests cancellation of a job.
func (e *Editor) Cancel(job *generation.Job) {
	if job != nil {
		job.Cancel()
	}
}

// Poll returns the job's current status snapshot.
func (e *Editor) Poll(job *generation.Job) generation.Status {
	return job.Status()
}

// Snapshot implements generation.CardTarget.
func (s *Session) Snapshot() types.CardData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.container.Card.Data
}

// ApplyDraft implements generation.CardTarget. Generated values land only
// in fields untouched since the job started; when onlyFillEmpty is set,
// fields that already have text are also left alone.
func (s *Session) ApplyDraft(draft generation.Draft, startedAt time.Time, onlyFillEmpty bool) generation.MergeReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report generation.MergeReport
	for _, field := range types.TextFields() {
		value, ok := draft.Values[field]
		if !ok {
			continue
		}
		if editedAt, edited := s.edits[field]; edited && editedAt.After(startedAt) {
			report.Skipped = append(report.Skipped, field)
			continue
		}
		if onlyFillEmpty && s.container.Card.Data.FieldValue(field) != "" {
			report.Skipped = append(report.Skipped, field)
			continue
		}
		s.container.Card.Data.SetFieldValue(field, value)
		report.Applied = append(report.Applied, field)
	}

	if len(draft.Portrait) > 0 && !s.portraitEdit.After(startedAt) {
		if err := s.container.ReplacePortrait(draft.Portrait); err != nil {
			slog.Warn("discarding unusable generated portrait", "error", err.Error())
		} else {
			report.PortraitApplied = true
		}
	}
	return report
}
