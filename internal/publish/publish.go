package publish

import (
	"bytes"
	"context"
	"encoding/json"
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

	"github.com/slotpress/slotpress/config"
	"github.com/slotpress/slotpress/utils"
)

// Client talks to the CMS articles API. The CMS is the single source of
// truth for what is already published; local files are only caches.
type Client struct {
	apiURL string
	token  string
	http   *http.Client
	logger *log.Logger
}

func NewClient(cfg config.PublishConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stdout, "[PUBLISH] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:  cfg.Token,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Configured reports whether CMS credentials are present.
func (c *Client) Configured() bool { return c.apiURL != "" && c.token != "" }

// CheckConnection verifies the CMS is reachable. The daemon refuses to
// start without it: with no source of truth it would duplicate work.
func (c *Client) CheckConnection(ctx context.Context) error {
	if !c.Configured() {
		return fmt.Errorf("cms credentials not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiURL+"?pagination[pageSize]=1&fields[0]=id", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cms unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cms connection check returned %d", resp.StatusCode)
	}
	return nil
}

// PublishedArticle is the slice of a CMS record the scheduler cares about.
type PublishedArticle struct {
	ID    int
	Slug  string
	Title string
	Topic string
}

// AllPublished pages through every published article.
func (c *Client) AllPublished(ctx context.Context) ([]PublishedArticle, error) {
	if !c.Configured() {
		return nil, nil
	}
	var all []PublishedArticle
	for page := 1; ; page++ {
		pageURL := fmt.Sprintf(
			"%s?pagination[page]=%d&pagination[pageSize]=100&fields[0]=slug&fields[1]=title&fields[2]=topic",
			c.apiURL, page)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching published articles: %w", err)
		}
		var parsed struct {
			Data []struct {
				ID         int `json:"id"`
				Attributes struct {
					Slug  string `json:"slug"`
					Title string `json:"title"`
					Topic string `json:"topic"`
				} `json:"attributes"`
			} `json:"data"`
			Meta struct {
				Pagination struct {
					PageCount int `json:"pageCount"`
				} `json:"pagination"`
			} `json:"meta"`
		}
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding published articles: %w", err)
		}
		for _, d := range parsed.Data {
			topic := d.Attributes.Topic
			if topic == "" {
				topic = d.Attributes.Title
			}
			all = append(all, PublishedArticle{ID: d.ID, Slug: d.Attributes.Slug, Title: d.Attributes.Title, Topic: topic})
		}
		if len(parsed.Data) == 0 || page >= parsed.Meta.Pagination.PageCount {
			break
		}
	}
	return all, nil
}

// PublishedSets returns the normalized topic set and the slug set in one
// pass, for duplicate checks.
func (c *Client) PublishedSets(ctx context.Context) (topics, slugs map[string]bool, err error) {
	articles, err := c.AllPublished(ctx)
	if err != nil {
		return nil, nil, err
	}
	topics = make(map[string]bool, len(articles))
	slugs = make(map[string]bool, len(articles))
	for _, a := range articles {
		if a.Topic != "" {
			topics[utils.NormalizeTopic(a.Topic)] = true
		}
		if a.Slug != "" {
			slugs[strings.ToLower(a.Slug)] = true
		}
	}
	return topics, slugs, nil
}

// Article is one document to publish.
type Article struct {
	Topic       string
	Title       string
	Description string
	Keywords    []string
	Body        string // markdown, frontmatter already stripped
	ImagePath   string // local file or empty
}

// UploadArticle creates or updates the CMS record keyed by the topic's
// derived slug. A local cover image is uploaded to the media library
// first and referenced by its CMS URL.
func (c *Client) UploadArticle(ctx context.Context, article Article) error {
	if !c.Configured() {
		return fmt.Errorf("cms credentials not configured")
	}
	slug := utils.SafeFilename(article.Topic)

	imageValue := ""
	if article.ImagePath != "" {
		if _, err := os.Stat(article.ImagePath); err == nil {
			uploaded, err := c.UploadImage(ctx, article.ImagePath, slug)
			if err != nil {
				c.logger.Printf("WARNING: image upload failed, publishing without image: %v", err)
			} else {
				imageValue = uploaded
			}
		} else {
			imageValue = article.ImagePath // already a URL
		}
	}

	title := article.Title
	if title == "" {
		title = article.Topic
	}
	categories, tags := CategoriesAndTags(article.Topic, article.Keywords)
	payload := map[string]any{
		"data": map[string]any{
			"title":       title,
			"slug":        slug,
			"meta_title":  title,
			"description": article.Description,
			"date":        time.Now().Format(time.RFC3339),
			"image":       imageValue,
			"author":      "admin",
			"categories":  categories,
			"tags":        tags,
			"topic":       article.Topic,
			"content":     article.Body,
			"draft":       false,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding article payload: %w", err)
	}

	existingID, err := c.findBySlug(ctx, slug)
	if err != nil {
		return err
	}

	method := http.MethodPost
	target := c.apiURL
	if existingID != 0 {
		method = http.MethodPut
		target = fmt.Sprintf("%s/%d", c.apiURL, existingID)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("publishing article: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cms publish returned %d: %s", resp.StatusCode, text)
	}
	if existingID != 0 {
		c.logger.Printf("updated article in cms: %s", slug)
	} else {
		c.logger.Printf("published article to cms: %s", slug)
	}
	return nil
}

func (c *Client) findBySlug(ctx context.Context, slug string) (int, error) {
	checkURL := fmt.Sprintf("%s?filters[slug][$eq]=%s", c.apiURL, url.QueryEscape(slug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return 0, err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("checking existing slug: %w", err)
	}
	defer resp.Body.Close()
	// a failed lookup must not be mistaken for "not found": creating a
	// duplicate is worse than retrying the whole upload later
	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("slug lookup returned %d: %s", resp.StatusCode, text)
	}
	var parsed struct {
		Data []struct {
			ID int `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decoding slug lookup: %w", err)
	}
	if len(parsed.Data) == 0 {
		return 0, nil
	}
	return parsed.Data[0].ID, nil
}

// UploadImage pushes a local file into the CMS media library and returns
// its absolute URL.
func (c *Client) UploadImage(ctx context.Context, path, name string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening image: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", name+filepath.Ext(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL(), &buf)
	if err != nil {
		return "", err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("cms image upload returned %d: %s", resp.StatusCode, text)
	}

	var files []struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil || len(files) == 0 {
		return "", fmt.Errorf("unexpected media upload response")
	}
	fileURL := files[0].URL
	if strings.HasPrefix(fileURL, "/") {
		fileURL = c.mediaBase() + fileURL
	}
	return fileURL, nil
}

// uploadURL derives the media endpoint from the articles endpoint
// (.../api/blog-posts -> .../api/upload).
func (c *Client) uploadURL() string {
	if i := strings.Index(c.apiURL, "/api/"); i != -1 {
		return c.apiURL[:i] + "/api/upload"
	}
	return c.apiURL + "/upload"
}

func (c *Client) mediaBase() string {
	if i := strings.Index(c.apiURL, "/api"); i != -1 {
		return c.apiURL[:i]
	}
	return c.apiURL
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
