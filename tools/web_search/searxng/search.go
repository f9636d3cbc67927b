package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/slotpress/slotpress/tools/web_search/models"
)

// Search queries a self-hosted SearXNG instance.
type Search struct {
	Host string
}

func (s Search) Search(ctx context.Context, q string, maxResults int) ([]models.Result, error) {
	host := strings.TrimRight(s.Host, "/")
	if host == "" {
		return nil, fmt.Errorf("searxng host not configured")
	}
	if !strings.HasSuffix(host, "/search") {
		host += "/search"
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, "GET", host+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng returned status %d", resp.StatusCode)
	}

	var raw struct {
		Results []struct {
			URL     string `json:"url"`
			Title   string `json:"title"`
			Content string `json:"content"`
			Snippet string `json:"snippet"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	for _, r := range raw.Results {
		if len(out) >= maxResults {
			break
		}
		desc := r.Content
		if desc == "" {
			desc = r.Snippet
		}
		out = append(out, models.Result{URL: r.URL, Title: r.Title, Description: desc})
	}
	return out, nil
}
