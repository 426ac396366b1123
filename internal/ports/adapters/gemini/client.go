// Package gemini talks to the Generative Language API: prompt rewriting,
// Veo long-running video jobs, and generated file downloads.
package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/text2splat/internal/domain/failures"
	"github.com/forPelevin/text2splat/internal/logging"
	"github.com/forPelevin/text2splat/internal/poll"
)

const (
	DefaultPromptModel = "gemini-2.5-flash-preview-05-20"
	DefaultVideoModel  = "veo-2.0-generate-001"

	optimizeTimeout = 90 * time.Second
	callTimeout     = 60 * time.Second
	downloadTimeout = 10 * time.Minute

	maxErrorBody = 64 << 10
)

type Options struct {
	APIKey      string
	BaseURL     string
	PromptModel string
	VideoModel  string
	Video       VideoParams
	Poll        poll.Config
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// Client implements ports.PromptOptimizer, ports.VideoGenerator and
// ports.VideoDownloader.
type Client struct {
	key         string
	baseURL     string
	promptModel string
	videoModel  string
	video       VideoParams
	poll        poll.Config
	client      *http.Client
	log         *zerolog.Logger
}

func New(opts Options) *Client {
	c := &Client{
		key:         strings.TrimSpace(opts.APIKey),
		baseURL:     normalizeBaseURL(opts.BaseURL),
		promptModel: strings.TrimSpace(opts.PromptModel),
		videoModel:  strings.TrimSpace(opts.VideoModel),
		video:       opts.Video.withDefaults(),
		poll:        opts.Poll,
		client:      opts.HTTPClient,
		log:         logging.OrNop(opts.Logger),
	}
	if c.promptModel == "" {
		c.promptModel = DefaultPromptModel
	}
	if c.videoModel == "" {
		c.videoModel = DefaultVideoModel
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	return c
}

func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &failures.NetworkError{Op: op, Err: errors.New(redactSecrets(err.Error(), c.key))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &failures.RemoteError{Op: op, StatusCode: resp.StatusCode, Body: c.errorBody(resp.Body)}
	}
	return resp, nil
}

func (c *Client) errorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil && len(b) == 0 {
		return "could not read error body"
	}
	return truncate(redactSecrets(strings.TrimSpace(string(b)), c.key), 400)
}

func (c *Client) decodeJSON(r io.Reader, op string, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return &failures.RemoteError{Op: op, Body: fmt.Sprintf("decode: %v", err)}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	keyParamRE    = regexp.MustCompile(`(?i)([?&]key=)[^&\s";]+`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)((?:x-goog-)?api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = keyParamRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
