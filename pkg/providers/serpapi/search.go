package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sorenkast/voxen/pkg/adapters/search"
	"github.com/sorenkast/voxen/pkg/errorsx"
	"github.com/sorenkast/voxen/pkg/resilience"
)

const defaultBaseURL = "https://serpapi.com/search.json"

// Client queries SerpAPI's Google engine for grounding snippets.
type Client struct {
	APIKey  string
	BaseURL string
	// NumResults caps the organic results folded into the context.
	NumResults int
	HTTPClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    defaultBaseURL,
		NumResults: 3,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "serpapi" }

type answerBox struct {
	Answer  string `json:"answer"`
	Snippet string `json:"snippet"`
}

type organicResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	AnswerBox      *answerBox      `json:"answer_box"`
	OrganicResults []organicResult `json:"organic_results"`
}

// Search returns the answer box, when present, followed by the top
// organic snippets.
func (c *Client) Search(ctx context.Context, query string) ([]search.Snippet, error) {
	if c.APIKey == "" {
		return nil, errorsx.Wrap(errors.New("serpapi api key not configured"), errorsx.ReasonSearchUnavailable)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", c.APIKey)
	params.Set("num", strconv.Itoa(c.num()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errorsx.Wrap(err, errorsx.ReasonSearchTimeout)
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonSearchUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return nil, resilience.RateLimitError{Provider: "serpapi", Message: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, errorsx.Wrap(errors.New(string(body)), errorsx.ReasonSearchUnavailable)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonSearchUnavailable)
	}

	var snippets []search.Snippet
	if box := payload.AnswerBox; box != nil {
		answer := box.Answer
		if answer == "" {
			answer = box.Snippet
		}
		if answer != "" {
			snippets = append(snippets, search.Snippet{Title: "Direct answer", Content: answer})
		}
	}
	for i, r := range payload.OrganicResults {
		if i >= c.num() {
			break
		}
		if r.Snippet == "" {
			continue
		}
		snippets = append(snippets, search.Snippet{Title: r.Title, Content: r.Snippet})
	}
	return snippets, nil
}

func (c *Client) num() int {
	if c.NumResults <= 0 {
		return 3
	}
	return c.NumResults
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return defaultBaseURL
	}
	return c.BaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
