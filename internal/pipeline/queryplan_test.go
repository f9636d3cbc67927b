package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/slotpress/slotpress/internal/catalog"
)

func TestQueryPlanParsesModelOutput(t *testing.T) {
	gen := &cannedGenerator{response: "```json\n{\"queries\": [\"gates of olympus review\", \"gates of olympus bonuses 2026\"]}\n```"}
	stage := &QueryPlanStage{Generator: gen, Logger: plLogger()}
	state := NewRunState("Gates of Olympus review")
	if err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.SearchQueries) != 3 {
		t.Fatalf("expected a third templated query on top of the model's two, got %v", state.SearchQueries)
	}
	if state.SearchQueries[0] != "gates of olympus review" || state.SearchQueries[1] != "gates of olympus bonuses 2026" {
		t.Fatalf("model queries should come first: %v", state.SearchQueries)
	}
}

func TestQueryPlanFallbackNeverEmpty(t *testing.T) {
	gen := &cannedGenerator{response: "sure, here are some ideas without any json"}
	stage := &QueryPlanStage{Generator: gen, Logger: plLogger()}
	state := NewRunState("Sweet Bonanza")
	if err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.SearchQueries) != 3 {
		t.Fatalf("expected 3 templated fallback queries, got %v", state.SearchQueries)
	}
	if !strings.Contains(state.SearchQueries[0], "Sweet Bonanza review") {
		t.Fatalf("fallback queries should derive from the topic: %v", state.SearchQueries)
	}
}

func TestQueryPlanToleratesTrailingCommas(t *testing.T) {
	gen := &cannedGenerator{response: `{"queries": ["q one", "q two",]}`}
	stage := &QueryPlanStage{Generator: gen, Logger: plLogger()}
	state := NewRunState("topic")
	if err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.SearchQueries) < 3 {
		t.Fatalf("expected trailing comma to be repaired, got %v", state.SearchQueries)
	}
	if state.SearchQueries[0] != "q one" || state.SearchQueries[1] != "q two" {
		t.Fatalf("repaired queries should survive: %v", state.SearchQueries)
	}
}

func TestQueryPlanClampsToPromptRange(t *testing.T) {
	many := make([]string, 0, 12)
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		many = append(many, `"slot query `+s+`"`)
	}
	gen := &cannedGenerator{response: `{"queries": [` + strings.Join(many, ", ") + `]}`}
	stage := &QueryPlanStage{Generator: gen, Logger: plLogger()}
	state := NewRunState("topic")
	if err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.SearchQueries) != 5 {
		t.Fatalf("a rambling plan must be cut to 5, got %d", len(state.SearchQueries))
	}

	gen = &cannedGenerator{response: `{"queries": ["lonely query"]}`}
	state = NewRunState("Big Bass Bonanza")
	stage = &QueryPlanStage{Generator: gen, Logger: plLogger()}
	if err := stage.Run(context.Background(), state); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.SearchQueries) != 3 {
		t.Fatalf("a thin plan must be topped up to 3, got %v", state.SearchQueries)
	}
	if state.SearchQueries[0] != "lonely query" {
		t.Fatalf("the model's query should stay first: %v", state.SearchQueries)
	}
}

func TestSpecsContextMarksKnownAndMissing(t *testing.T) {
	specs := &catalog.GameSpecs{Name: "Starburst", Provider: "NetEnt", RTP: "96.09%"}
	out := specsContext(specs)
	if !strings.Contains(out, "RTP: 96.09%") {
		t.Fatalf("known RTP should be listed: %s", out)
	}
	if !strings.Contains(out, "Max Win") || !strings.Contains(out, "MISSING DATA") {
		t.Fatalf("missing fields should be called out: %s", out)
	}
	if strings.Contains(out, "We explicitly lack: RTP") {
		t.Fatalf("known RTP must not be listed as missing: %s", out)
	}

	if got := specsContext(nil); !strings.Contains(got, "None") {
		t.Fatalf("nil specs should produce the find-everything context: %s", got)
	}
}
