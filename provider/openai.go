package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Options configures the OpenAI-compatible client.
type Options struct {
	APIURL         string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	RequestDelay   time.Duration
	MaxRetries     int

	ImageAPIURL  string
	ImageAPIKey  string
	ImageModel   string
	PollInterval time.Duration
	ImageMaxWait time.Duration

	BreakerLimit int
}

// openAIClient implements Provider against an OpenAI-compatible API,
// with bounded retries and the shared consecutive-failure breaker.
type openAIClient struct {
	opts       Options
	httpClient *http.Client
	breaker    *Breaker

	sleep func(ctx context.Context, d time.Duration) error
}

// Message represents a message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new client for an OpenAI-compatible endpoint.
func NewOpenAIClient(opts Options) Provider {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.ImageMaxWait <= 0 {
		opts.ImageMaxWait = 5 * time.Minute
	}
	return &openAIClient{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		breaker:    NewBreaker(opts.BreakerLimit),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *openAIClient) apiKey() string {
	if c.opts.APIKey != "" {
		return c.opts.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

// Generate sends the prompt to the chat completions endpoint. An empty
// return with nil error is a soft failure the caller may tolerate;
// ErrConsecutiveFailures means the whole boundary is broken.
func (c *openAIClient) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if c.opts.RequestDelay > 0 {
		if err := c.sleep(ctx, c.opts.RequestDelay); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []Message{
			{Role: "system", Content: "You are a stateless AI. Forget all previous context. Focus ONLY on the current user request."},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		text, err := c.postChat(ctx, body)
		if err == nil {
			c.breaker.Success()
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if c.breaker.Failure() {
			return "", ErrConsecutiveFailures
		}
		wait := time.Duration(attempt+1) * 2 * time.Second
		if serr := c.sleep(ctx, wait); serr != nil {
			return "", serr
		}
	}

	// Exhausted retries: soft failure, callers see an empty string.
	return "", nil
}

func (c *openAIClient) postChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.opts.APIURL, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.apiKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// CreateEmbedding generates embeddings for texts. An empty result is a soft
// failure; retrieval falls back to keyword search.
func (c *openAIClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.opts.EmbeddingModel == "" {
		return nil, nil
	}

	requestBody := map[string]interface{}{
		"model": c.opts.EmbeddingModel,
		"input": texts,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := embeddingsEndpoint(c.opts.APIURL)

	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if key := c.apiKey(); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}

		vecs, err := c.doEmbedding(req)
		if err == nil {
			c.breaker.Success()
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.breaker.Failure() {
			return nil, ErrConsecutiveFailures
		}
		if serr := c.sleep(ctx, 500*time.Millisecond); serr != nil {
			return nil, serr
		}
	}
	return nil, nil
}

func (c *openAIClient) doEmbedding(req *http.Request) ([][]float32, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// embeddingsEndpoint derives the embeddings URL from the chat completions
// URL so a single base works for OpenAI-compatible gateways.
func embeddingsEndpoint(apiURL string) string {
	if i := strings.Index(apiURL, "/chat/completions"); i >= 0 {
		return apiURL[:i] + "/embeddings"
	}
	return strings.TrimRight(apiURL, "/") + "/embeddings"
}

// GenerateImage submits an image request and, for async providers, polls the
// task until completion. Returns the image URL or "" on failure.
func (c *openAIClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if c.opts.ImageAPIURL == "" {
		return "", nil
	}

	base := strings.TrimRight(c.opts.ImageAPIURL, "/")
	payload, err := json.Marshal(map[string]string{
		"model":  c.opts.ImageModel,
		"prompt": prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", base+"/v1/images/generations", bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.ImageAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.ImageAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image generation submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("image generation submit failed: status %d", resp.StatusCode)
	}

	var submit struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
		TaskID string `json:"task_id"`
		ID     string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submit); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	// Synchronous providers return the URL immediately.
	if len(submit.Data) > 0 && submit.Data[0].URL != "" {
		return submit.Data[0].URL, nil
	}

	taskID := submit.TaskID
	if taskID == "" {
		taskID = submit.ID
	}
	if taskID == "" {
		return "", fmt.Errorf("image generation response missing task id")
	}

	return c.pollImageTask(ctx, base, taskID)
}

func (c *openAIClient) pollImageTask(ctx context.Context, base, taskID string) (string, error) {
	deadline := time.Now().Add(c.opts.ImageMaxWait)

	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("image generation timed out after %s (task %s)", c.opts.ImageMaxWait, taskID)
		}
		if err := c.sleep(ctx, c.opts.PollInterval); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, "GET", base+"/v1/tasks/"+taskID, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		if c.opts.ImageAPIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.ImageAPIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("image task poll failed: %w", err)
		}

		var poll struct {
			Status    string          `json:"status"`
			Result    json.RawMessage `json:"result"`
			ResultURL string          `json:"result_url"`
			Output    []string        `json:"output"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&poll)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return "", fmt.Errorf("image task poll failed: status %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return "", fmt.Errorf("failed to parse response: %w", decodeErr)
		}

		switch poll.Status {
		case "completed", "succeeded":
			if u := imageResultURL(poll.Result, poll.ResultURL, poll.Output); u != "" {
				return resolveImageURL(base, u), nil
			}
			return "", fmt.Errorf("image task completed but result URL missing (task %s)", taskID)
		case "failed", "error":
			return "", fmt.Errorf("image task failed (task %s)", taskID)
		}
	}
}

// imageResultURL extracts the result URL from the provider-specific shapes:
// a result object with url, a bare result string, a root result_url, or a
// replicate-style output list.
func imageResultURL(result json.RawMessage, resultURL string, output []string) string {
	if len(result) > 0 {
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(result, &obj); err == nil && obj.URL != "" {
			return obj.URL
		}
		var s string
		if err := json.Unmarshal(result, &s); err == nil && strings.HasPrefix(s, "http") {
			return s
		}
	}
	if resultURL != "" {
		return resultURL
	}
	if len(output) > 0 {
		return output[0]
	}
	return ""
}

func resolveImageURL(base, result string) string {
	if !strings.HasPrefix(result, "/") {
		return result
	}
	u, err := url.Parse(base)
	if err != nil {
		return result
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, result)
}

// DownloadImage fetches the image at imageURL into destPath.
func (c *openAIClient) DownloadImage(ctx context.Context, imageURL, destPath string) error {
	if imageURL == "" {
		return fmt.Errorf("empty image url")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download failed: status %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}
