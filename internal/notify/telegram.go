package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const apiBase = "https://api.telegram.org"

// Notifier delivers progress messages to a Telegram chat. Delivery is
// fire-and-forget: the scheduler logs failures and moves on, an article
// never fails because a chat message did.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
	logger   *log.Logger
}

func NewNotifier(botToken, chatID string, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.New(os.Stdout, "[NOTIFY] ", log.LstdFlags)
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

func (n *Notifier) configured() bool { return n.botToken != "" && n.chatID != "" }

// SendMessage posts a Markdown message.
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	if !n.configured() {
		return nil
	}
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", apiBase, n.botToken),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}

// SendPhoto uploads a local image with a caption.
func (n *Notifier) SendPhoto(ctx context.Context, photoPath, caption string) error {
	if !n.configured() {
		return nil
	}
	return n.sendFile(ctx, "sendPhoto", "photo", photoPath, caption)
}

// SendDocument uploads a local file (the compiled article) with a caption.
func (n *Notifier) SendDocument(ctx context.Context, docPath, caption string) error {
	if !n.configured() {
		return nil
	}
	return n.sendFile(ctx, "sendDocument", "document", docPath, caption)
}

func (n *Notifier) sendFile(ctx context.Context, method, field, path, caption string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("chat_id", n.chatID); err != nil {
		return err
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/%s", apiBase, n.botToken, method), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}

// Notify logs instead of failing when delivery does not work.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if err := n.SendMessage(ctx, text); err != nil {
		n.logger.Printf("WARNING: telegram notification failed: %v", err)
	}
}
