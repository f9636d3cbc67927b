package scheduler

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// Topic is one backlog entry queued for production. GameName and GameSlug
// are stamped on when the topic is pulled from a game's cache, so a
// restart can resume the pending queue without re-deriving them.
type Topic struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	GameName string `json:"game_name,omitempty"`
	GameSlug string `json:"game_slug,omitempty"`
}

// State is the daemon's position between restarts: the daily rate counter
// and where it is in the game rotation. Published history lives in the CMS,
// not here.
type State struct {
	LastRunDate      string  `json:"last_run_date"`
	DailyCount       int     `json:"daily_count"`
	CurrentGameIndex int     `json:"current_game_index"`
	PendingTopics    []Topic `json:"pending_topics"`
}

// LoadState reads the state file. A missing or corrupt file yields a zero
// state; the daemon just starts from the top of the rotation.
func LoadState(path string, logger *log.Logger) State {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Printf("ERROR: loading daemon state: %v", err)
		}
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		if logger != nil {
			logger.Printf("ERROR: parsing daemon state %s: %v, starting fresh", path, err)
		}
		return State{}
	}
	return st
}

// SaveState persists the state. Failures are logged, never fatal: losing
// the file means re-counting from zero, which only risks overshooting the
// daily limit once.
func SaveState(path string, st State, logger *log.Logger) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		if logger != nil {
			logger.Printf("ERROR: encoding daemon state: %v", err)
		}
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil && logger != nil {
		logger.Printf("ERROR: saving daemon state: %v", err)
	}
}
