package telegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegra.ph"

// Client publishes long-form text as Telegraph pages. An anonymous account
// is created lazily on first publish and reused for the process lifetime.
type Client struct {
	baseURL     string
	shortName   string
	authorName  string
	httpClient  *http.Client
	logger      *slog.Logger
	accessToken string
}

func NewClient(shortName, authorName string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		shortName:  shortName,
		authorName: authorName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type apiResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Publish creates a page from plain text, one node per paragraph, and
// returns its public URL.
func (c *Client) Publish(ctx context.Context, title, text string) (string, error) {
	if c.accessToken == "" {
		if err := c.createAccount(ctx); err != nil {
			return "", err
		}
	}

	content, err := json.Marshal(textToNodes(text))
	if err != nil {
		return "", err
	}

	form := url.Values{
		"access_token": {c.accessToken},
		"title":        {title},
		"author_name":  {c.authorName},
		"content":      {string(content)},
	}

	raw, err := c.call(ctx, "/createPage", form)
	if err != nil {
		return "", err
	}

	var page struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", fmt.Errorf("failed to parse page result: %w", err)
	}
	return page.URL, nil
}

func (c *Client) createAccount(ctx context.Context) error {
	form := url.Values{
		"short_name":  {c.shortName},
		"author_name": {c.authorName},
	}
	raw, err := c.call(ctx, "/createAccount", form)
	if err != nil {
		return err
	}

	var account struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return fmt.Errorf("failed to parse account result: %w", err)
	}
	if account.AccessToken == "" {
		return fmt.Errorf("telegraph returned no access token")
	}
	c.accessToken = account.AccessToken
	c.logger.Info("telegraph account created", "short_name", c.shortName)
	return nil
}

func (c *Client) call(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegraph request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse telegraph response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegraph %s: %s", method, parsed.Error)
	}
	return parsed.Result, nil
}

// node is the Telegraph DOM element shape.
type node struct {
	Tag      string   `json:"tag"`
	Children []string `json:"children"`
}

func textToNodes(text string) []node {
	var nodes []node
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		nodes = append(nodes, node{Tag: "p", Children: []string{para}})
	}
	if len(nodes) == 0 {
		nodes = append(nodes, node{Tag: "p", Children: []string{text}})
	}
	return nodes
}
