package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/slotpress/slotpress/utils"
)

// CompileStage assembles the final markdown document and persists it under
// a filename derived deterministically from the topic. Retrieval session
// teardown is the orchestrator's job, not this stage's.
type CompileStage struct {
	ArticlesDir string
	Logger      *log.Logger
}

func (s *CompileStage) Name() string { return "compile" }

func (s *CompileStage) Run(ctx context.Context, state *RunState) error {
	if state.Outline == nil || len(state.SectionDrafts) == 0 {
		s.Logger.Printf("ERROR: cannot compile %q: missing outline or sections", state.Topic)
		return nil
	}

	outline := state.Outline
	mainTitle := outline.MainTitle
	if mainTitle == "" {
		mainTitle = state.Topic
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", mainTitle)
	fmt.Fprintf(&b, "description: %s\n", outline.MetaDescription)
	fmt.Fprintf(&b, "keywords: [%s]\n", strings.Join(outline.Keywords, ", "))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", mainTitle)

	for _, section := range outline.Sections {
		draft, ok := state.SectionDrafts[section.ID]
		if !ok {
			s.Logger.Printf("WARNING: section %d missing from written drafts", section.ID)
			continue
		}
		b.WriteString(draft)
		b.WriteString("\n\n")
	}
	finalText := b.String()
	if state.GameSpecs != nil {
		finalText = applyGameLinks(finalText, state.GameSpecs.Name, state.GameSpecs.Slug)
	}

	if err := os.MkdirAll(s.ArticlesDir, 0o755); err != nil {
		return stageError(s.Name(), err)
	}
	path := filepath.Join(s.ArticlesDir, utils.SafeFilename(state.Topic)+".md")
	if err := os.WriteFile(path, []byte(finalText), 0o644); err != nil {
		s.Logger.Printf("ERROR: saving article to %s: %v", path, err)
		return nil
	}

	s.Logger.Printf("article saved to %s", path)
	state.ArtifactPath = path
	state.ArtifactText = finalText
	return nil
}
