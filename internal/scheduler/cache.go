package scheduler

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ensureTopicCache returns the path of the per-game topic cache, building
// it from the backlog CSV on first use. The cache is one JSON object per
// line so a partially written file still loads.
func ensureTopicCache(cacheDir, backlogFile string, game Game, logger *log.Logger) (string, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating topic cache dir: %w", err)
	}
	cachePath := filepath.Join(cacheDir, game.Slug+".jsonl")
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, nil
	}

	logger.Printf("building topic cache for %s", game.Name)

	src, err := os.Open(backlogFile)
	if err != nil {
		return "", fmt.Errorf("opening backlog %s: %w", backlogFile, err)
	}
	defer src.Close()

	dst, err := os.Create(cachePath)
	if err != nil {
		return "", fmt.Errorf("creating topic cache: %w", err)
	}
	defer dst.Close()

	gameLower := strings.ToLower(game.Name)
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	_, _ = reader.Read() // header

	count := 0
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if len(row) < 2 {
			continue
		}
		topic := strings.TrimSpace(row[1])
		if topic == "" || !strings.Contains(strings.ToLower(topic), gameLower) {
			continue
		}
		line, err := json.Marshal(Topic{Type: strings.TrimSpace(row[0]), Topic: topic})
		if err != nil {
			continue
		}
		if _, err := dst.Write(append(line, '\n')); err != nil {
			return "", fmt.Errorf("writing topic cache: %w", err)
		}
		count++
	}
	logger.Printf("topic cache for %s: %d topics", game.Name, count)
	return cachePath, nil
}

// loadCachedTopics reads a cache file, skipping blank or malformed lines.
func loadCachedTopics(path string, logger *log.Logger) []Topic {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("ERROR: reading topic cache %s: %v", path, err)
		}
		return nil
	}
	defer f.Close()

	var topics []Topic
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var t Topic
		if err := json.Unmarshal([]byte(line), &t); err != nil || t.Topic == "" {
			continue
		}
		topics = append(topics, t)
	}
	return topics
}

// cleanupTopicCache removes cache files older than ttl so backlog edits
// eventually reach games already cached.
func cleanupTopicCache(cacheDir string, ttl time.Duration, now time.Time, logger *log.Logger) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= ttl {
			if err := os.Remove(filepath.Join(cacheDir, entry.Name())); err != nil {
				logger.Printf("ERROR: removing stale cache %s: %v", entry.Name(), err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		logger.Printf("cache cleanup removed %d files", removed)
	}
}
