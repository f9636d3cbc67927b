package pipeline

import (
	"context"
	"log"

	"github.com/slotpress/slotpress/internal/catalog"
)

// GameFinder is the catalog slice the lookup stage needs.
type GameFinder interface {
	FindGameInTopic(ctx context.Context, topic string) (*catalog.GameSpecs, error)
}

// DBCheckStage resolves the topic against the game catalog. A miss is not
// an error: the run continues on the generic path with specs_missing set.
type DBCheckStage struct {
	Catalog GameFinder
	Logger  *log.Logger
}

func (s *DBCheckStage) Name() string { return "db_check" }

func (s *DBCheckStage) Run(ctx context.Context, state *RunState) error {
	if s.Catalog == nil {
		state.SpecsMissing = true
		return nil
	}
	specs, err := s.Catalog.FindGameInTopic(ctx, state.Topic)
	if err != nil {
		s.Logger.Printf("WARNING: catalog lookup failed for %q: %v", state.Topic, err)
		state.SpecsMissing = true
		return nil
	}
	if specs == nil {
		s.Logger.Printf("no game specs found for topic %q", state.Topic)
		state.SpecsMissing = true
		return nil
	}
	s.Logger.Printf("found specs for %q in topic %q", specs.Name, state.Topic)
	state.GameSpecs = specs
	state.SpecsMissing = false
	return nil
}
