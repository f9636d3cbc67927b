package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// CoverGenerator is the slice of the model provider used for article
// cover images.
type CoverGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	DownloadImage(ctx context.Context, imageURL, destPath string) error
}

// coverResult carries whichever reference the generation produced: a local
// file when the download succeeded, otherwise the remote URL, otherwise
// nothing.
type coverResult struct {
	Path string
	URL  string
}

// startCover launches cover generation concurrently with the article
// pipeline. The returned channel always yields exactly one result; cancel
// the context to abandon a cover the article no longer needs.
func (d *Daemon) startCover(ctx context.Context, topic, safeName string) <-chan coverResult {
	ch := make(chan coverResult, 1)
	go func() {
		defer close(ch)
		if d.Images == nil {
			ch <- coverResult{}
			return
		}
		url, err := d.Images.GenerateImage(ctx, coverPrompt(topic))
		if err != nil || url == "" {
			if err != nil && ctx.Err() == nil {
				d.Logger.Printf("WARNING: cover generation failed for %q: %v", topic, err)
			}
			ch <- coverResult{}
			return
		}
		dest := filepath.Join(d.OutputDir, "images", "covers", safeName+".webp")
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			ch <- coverResult{URL: url}
			return
		}
		if err := d.Images.DownloadImage(ctx, url, dest); err != nil {
			if ctx.Err() == nil {
				d.Logger.Printf("WARNING: cover download failed for %q: %v", topic, err)
			}
			ch <- coverResult{URL: url}
			return
		}
		ch <- coverResult{Path: dest, URL: url}
	}()
	return ch
}

func coverPrompt(topic string) string {
	return fmt.Sprintf("Wide hero illustration for an online slot magazine article titled %q. "+
		"Vibrant casino colors, stylized reels and symbols, no text, no logos, no people's faces.", topic)
}
