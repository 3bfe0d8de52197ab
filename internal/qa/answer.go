package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ad-itya07/Dionysus/internal/metrics"
	"github.com/ad-itya07/Dionysus/internal/provider"
	"github.com/ad-itya07/Dionysus/internal/store"
)

// ApologyMessage is streamed in place of the rest of an answer when the
// model fails.
const ApologyMessage = "Sorry for the inconvenience. Your request couldn't be processed because the AI provider is unavailable or over its usage limit. Please try asking the question again later."

var (
	// ErrNotReady is returned for questions about a project whose
	// ingestion has not completed.
	ErrNotReady = errors.New("project is not ready for questions")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Answerer answers questions about ingested projects.
type Answerer struct {
	store  store.Store
	llm    provider.Streamer
	logger *slog.Logger
}

// NewAnswerer creates an Answerer streaming from llm.
func NewAnswerer(st store.Store, llm provider.Streamer, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{store: st, llm: llm, logger: logger}
}

// Answer is an answer being streamed. Deltas must be drained, or the
// context passed to Ask cancelled, for the stream to finish.
type Answer struct {
	Overview   bool
	References []store.FileReference

	deltas chan string
	done   chan struct{}
	err    error
}

// Deltas yields the answer text in order and is closed at the end.
func (a *Answer) Deltas() <-chan string { return a.deltas }

// Err waits for the stream to end and returns the model error, if any.
// A failed stream has already yielded ApologyMessage.
func (a *Answer) Err() error {
	<-a.done
	return a.err
}

// Text drains the answer and returns it whole.
func (a *Answer) Text() (string, error) {
	var b strings.Builder
	for d := range a.deltas {
		b.WriteString(d)
	}
	return b.String(), a.Err()
}

// Ask selects context for the question and starts streaming an answer.
// References are available immediately.
func (a *Answerer) Ask(ctx context.Context, projectID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	p, err := a.project(projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != store.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, projectID, p.Status)
	}

	r, err := Retrieve(a.store, p, question)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	prompt, err := BuildPrompt(r)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuestion()

	logger := a.logger.With("project", projectID)
	logger.Debug("answering question", "overview", r.Overview, "keywords", r.Keywords, "references", len(r.References))

	ans := &Answer{
		Overview:   r.Overview,
		References: r.References,
		deltas:     make(chan string),
		done:       make(chan struct{}),
	}
	go func() {
		defer close(ans.done)
		defer close(ans.deltas)

		err := a.llm.Stream(ctx, prompt, func(delta string) error {
			select {
			case ans.deltas <- delta:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			logger.Error("answer stream failed", "error", err)
			ans.err = err
			select {
			case ans.deltas <- ApologyMessage:
			case <-ctx.Done():
			}
		}
	}()
	return ans, nil
}

// SaveAnswer stores a question and its answer for the project.
func (a *Answerer) SaveAnswer(projectID, userID, question, answer string, refs []store.FileReference) (*store.SavedQuestion, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if _, err := a.project(projectID); err != nil {
		return nil, err
	}
	q := &store.SavedQuestion{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		UserID:         userID,
		Question:       question,
		Answer:         answer,
		FileReferences: refs,
	}
	if err := a.store.SaveQuestion(q); err != nil {
		return nil, err
	}
	return q, nil
}

// ListQuestions returns the project's saved questions, newest first.
func (a *Answerer) ListQuestions(projectID string) ([]store.SavedQuestion, error) {
	if _, err := a.project(projectID); err != nil {
		return nil, err
	}
	return a.store.ListQuestions(projectID)
}

func (a *Answerer) project(projectID string) (*store.Project, error) {
	p, err := a.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if p.DeletedAt != nil {
		return nil, fmt.Errorf("%w: project %s", store.ErrNotFound, projectID)
	}
	return p, nil
}
