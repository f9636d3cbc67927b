package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/slotpress/slotpress/internal/catalog"
	"github.com/slotpress/slotpress/provider"
	"github.com/slotpress/slotpress/tools/web_search/models"
)

// Outcome classifies how far a run got. Every topic ends in exactly one of
// these; a single topic never crashes the caller.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomePartial Outcome = "PARTIAL"
	OutcomeFailed  Outcome = "FAILED"
)

// RunState is the shared state of one article attempt. It lives for one
// Run call only and is never reused across topics.
type RunState struct {
	// RunID correlates one attempt across pipeline and daemon logs.
	RunID string
	Topic string

	GameSpecs    *catalog.GameSpecs
	SpecsMissing bool

	SearchQueries []string
	SearchResults []models.Result

	passport *Passport

	Outline       *Outline
	ChunksIndexed int

	// SectionDrafts accumulates; every other field is write-once.
	SectionDrafts map[int]string

	ArtifactPath string
	ArtifactText string
}

func NewRunState(topic string) *RunState {
	return &RunState{RunID: uuid.NewString(), Topic: topic, SectionDrafts: map[int]string{}}
}

// Passport returns the authoritative fact set, nil until validation ran.
func (s *RunState) Passport() *Passport { return s.passport }

// SetPassport installs the passport exactly once. A second call is a
// programming error: the passport is the one truth for the whole run.
func (s *RunState) SetPassport(p *Passport) error {
	if s.passport != nil {
		return errors.New("passport already set for this run")
	}
	s.passport = p
	return nil
}

// Stage is one step of the article pipeline. Stages mutate the RunState
// they are given and signal fatal conditions through the returned error;
// degraded output (empty results, nil outline) is not an error.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *RunState) error
}

// Cleaner releases per-run resources once the stage chain exits, on any
// path: success, stage error, cancellation.
type Cleaner interface {
	Cleanup()
}

// Orchestrator executes the stage sequence for one topic. Construct a
// fresh Orchestrator per topic: stages hold per-run resources (the
// retrieval session) that must never leak across articles.
type Orchestrator struct {
	stages  []Stage
	cleaner Cleaner
	logger  *log.Logger
}

func NewOrchestrator(stages []Stage, cleaner Cleaner, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stdout, "[PIPELINE] ", log.LstdFlags)
	}
	return &Orchestrator{stages: stages, cleaner: cleaner, logger: logger}
}

// Run executes all stages in order against a fresh RunState. Stage errors
// stop the chain early and are reported through the outcome, not returned;
// the only error that propagates is the process-fatal generation breaker.
func (o *Orchestrator) Run(ctx context.Context, topic string) (*RunState, Outcome, error) {
	state := NewRunState(topic)
	// session teardown must happen on every exit path, aborted runs included
	if o.cleaner != nil {
		defer o.cleaner.Cleanup()
	}
	o.logger.Printf("run %s started for %q", state.RunID, topic)
	for _, stage := range o.stages {
		if err := ctx.Err(); err != nil {
			o.logger.Printf("run cancelled before %s: %v", stage.Name(), err)
			return state, classify(state), nil
		}
		if err := stage.Run(ctx, state); err != nil {
			if errors.Is(err, provider.ErrConsecutiveFailures) {
				return state, OutcomeFailed, err
			}
			o.logger.Printf("ERROR: stage %s stopped run for %q: %v", stage.Name(), topic, err)
			return state, classify(state), nil
		}
	}
	outcome := classify(state)
	o.logger.Printf("run for %q finished: %s", topic, outcome)
	return state, outcome, nil
}

func classify(state *RunState) Outcome {
	if state.ArtifactPath != "" {
		return OutcomeSuccess
	}
	if state.Outline != nil || state.ChunksIndexed > 0 {
		return OutcomePartial
	}
	return OutcomeFailed
}

// stageError wraps a stage failure with its stage name for scheduler logs.
func stageError(name string, err error) error {
	return fmt.Errorf("stage %s: %w", name, err)
}
