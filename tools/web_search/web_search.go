package web_search

import (
	"context"

	"github.com/slotpress/slotpress/tools/web_search/models"
	"github.com/slotpress/slotpress/tools/web_search/searxng"
	"github.com/slotpress/slotpress/tools/web_search/serper"
)

type WebSearcher interface {
	Search(ctx context.Context, q string, maxResults int) ([]models.Result, error)
}

type Provider string

const (
	SearXNGProvider Provider = "searxng"
	SerperProvider  Provider = "serper"
)

type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

var ErrUnsupportedProvider = &Error{"unsupported provider"}

// NewWebSearcher builds a searcher for the configured provider. hostOrKey is
// the instance host for searxng and the API key for serper.
func NewWebSearcher(provider Provider, hostOrKey string) (WebSearcher, error) {
	switch provider {
	case SearXNGProvider:
		return searxng.Search{Host: hostOrKey}, nil
	case SerperProvider:
		return serper.Search{ApiKey: hostOrKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
