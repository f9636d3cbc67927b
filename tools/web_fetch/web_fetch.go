package web_fetch

import (
	"context"
	"time"

	"github.com/slotpress/slotpress/tools/web_fetch/chromedp"
	"github.com/slotpress/slotpress/tools/web_fetch/jina"
)

const (
	DefaultTimeout  = 30 * time.Second
	MaxCharsDefault = 20000
)

// WebFetcher fetches one page and returns its readable content as markdown
// or plain text. An empty string means the page could not be fetched.
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type FetcherType string

const (
	JinaFetcherType     FetcherType = "jina"
	ChromedpFetcherType FetcherType = "chromedp"
)

type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

func NewWebFetcher(fetcherType FetcherType, apiKey string, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case JinaFetcherType:
		return &jina.Fetch{ApiKey: apiKey, Timeout: timeout, MaxChars: maxChars}, nil
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, &Error{"unsupported fetcher type"}
	}
}
