package jina

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const readerBase = "https://r.jina.ai/"

// minContentChars rejects error pages and empty bodies that the reader
// API sometimes returns with a 200 status.
const minContentChars = 100

// Fetch retrieves a page through the Jina reader API, which returns the
// page content converted to markdown.
type Fetch struct {
	ApiKey   string
	Timeout  time.Duration
	MaxChars int
}

func (f *Fetch) Fetch(ctx context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readerBase+rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building reader request: %w", err)
	}
	if f.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.ApiKey)
	}
	req.Header.Set("X-Return-Format", "markdown")
	req.Header.Set("X-Retain-Images", "none")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("reader rate limited fetching %s", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(string(body))
	if len(text) < minContentChars {
		return "", nil
	}
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return text, nil
}
