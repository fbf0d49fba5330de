// Package source fetches suggestion batches from the suggestion service.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"inkline/api/internal/suggest"
)

// Stage names one pass of the staged analysis.
type Stage string

const (
	// StageCore is the fast pass: grammar, spelling, style.
	StageCore Stage = "core"
	// StageEnhanced is the slow pass: tone, engagement, seo, platform.
	StageEnhanced Stage = "enhanced"
)

// Request is one analysis request.
type Request struct {
	Text       string             `json:"text"`
	Stage      Stage              `json:"stage"`
	Categories []suggest.Category `json:"categories,omitempty"`
}

// Source produces suggestions for a text.
type Source interface {
	Suggest(ctx context.Context, req Request) ([]suggest.Suggestion, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, req Request) ([]suggest.Suggestion, error)

func (f Func) Suggest(ctx context.Context, req Request) ([]suggest.Suggestion, error) {
	return f(ctx, req)
}

// Options configures the HTTP source.
type Options struct {
	BaseURL      string
	EndpointPath string
	APIKey       string
	Timeout      time.Duration
	ExtraHeaders map[string]string
	Logger       *log.Logger
}

func (o *Options) defaults() {
	if o.EndpointPath == "" {
		o.EndpointPath = "/api/suggestions"
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// HTTP posts analysis requests to a suggestion endpoint.
type HTTP struct {
	url    string
	apiKey string
	extraH map[string]string
	logger *log.Logger
	do     func(*http.Request) (*http.Response, error)
}

// NewHTTP builds an HTTP source. EndpointPath may be a full URL.
func NewHTTP(opts Options) (*HTTP, error) {
	opts.defaults()
	fullURL := opts.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		if opts.BaseURL == "" {
			return nil, errors.New("suggestion source: base url is required")
		}
		base := strings.TrimRight(opts.BaseURL, "/")
		path := strings.TrimLeft(opts.EndpointPath, "/")
		fullURL = base + "/" + path
	}
	hc := &http.Client{Timeout: opts.Timeout}
	return &HTTP{
		url:    fullURL,
		apiKey: opts.APIKey,
		extraH: opts.ExtraHeaders,
		logger: opts.Logger,
		do:     hc.Do,
	}, nil
}

type suggestResponse struct {
	Suggestions []json.RawMessage `json:"suggestions"`
}

// Suggest calls the endpoint once. Every failure wraps suggest.ErrSourceFetch.
// Records that cannot be decoded are dropped one by one; the rest of the
// batch is kept.
func (c *HTTP) Suggest(ctx context.Context, in Request) ([]suggest.Suggestion, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", suggest.ErrSourceFetch, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", suggest.ErrSourceFetch, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", suggest.ErrSourceFetch, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", suggest.ErrSourceFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: upstream %d: %s", suggest.ErrSourceFetch, resp.StatusCode, strings.TrimSpace(string(slurp)))
	}
	var out suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", suggest.ErrSourceFetch, err)
	}

	items := make([]suggest.Suggestion, 0, len(out.Suggestions))
	for i, raw := range out.Suggestions {
		item, err := decodeRecord(raw)
		if err != nil {
			c.logger.Warn("dropping undecodable suggestion", "stage", in.Stage, "index", i, "err", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeRecord(raw json.RawMessage) (suggest.Suggestion, error) {
	var record suggest.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return suggest.Suggestion{}, fmt.Errorf("decode record: %w", err)
	}
	return record.Suggestion()
}
