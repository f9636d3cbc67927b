package serper

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/slotpress/slotpress/tools/web_search/models"
	"github.com/slotpress/slotpress/utils"
)

type Search struct {
	ApiKey string
}

func (s Search) Search(ctx context.Context, q string, maxResults int) ([]models.Result, error) {
	// https://serper.dev/ docs
	payload := map[string]any{"q": q, "num": maxResults}
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, "POST", "https://google.serper.dev/search", strings.NewReader(string(body)))
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if items, ok := raw["organic"].([]any); ok {
		for i, it := range items {
			if i >= maxResults {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, models.Result{
				URL: utils.Str(m["link"]), Title: utils.Str(m["title"]), Description: utils.Str(m["snippet"]),
			})
		}
	}
	return out, nil
}
