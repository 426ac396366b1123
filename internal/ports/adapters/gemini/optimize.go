package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/forPelevin/text2splat/internal/domain/failures"
)

const (
	promptTemperature = 1.4
	promptTopP        = 0.9

	userPromptPlaceholder = "{user_prompt_here}"
)

const metaPromptTemplate = `
You are a master prompt engineer specializing in text-to-video generation.
Your task is to take a user's base prompt and enhance it to be more descriptive, dynamic, and cinematic for the Veo video generation model.
Add details about camera view movement, lighting, tracking, and composition while preserving the core subject.

Your output MUST be only the rewritten prompt text and nothing else.

**User's Base Prompt:**
"{user_prompt_here}"
`

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
}

type streamRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type streamChunk struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func BuildMetaPrompt(userPrompt string) string {
	return strings.Replace(metaPromptTemplate, userPromptPlaceholder, userPrompt, 1)
}

// Optimize asks the text model to rewrite prompt into a cinematic video prompt.
func (c *Client) Optimize(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(streamRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: BuildMetaPrompt(prompt)}},
		}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "text/plain",
			Temperature:      promptTemperature,
			TopP:             promptTopP,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, optimizeTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent", c.baseURL, url.PathEscape(c.promptModel))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.key)

	c.log.Info().Str("model", c.promptModel).Msg("asking gemini to optimize prompt")
	resp, err := c.do(req, failures.OpOptimize)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	frags, err := parseStream(resp.Body)
	if err != nil {
		return "", &failures.RemoteError{Op: failures.OpOptimize, Body: err.Error()}
	}
	out := strings.Join(frags, "")
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: gemini did not return an optimized prompt", failures.ErrEmptyResult)
	}
	c.log.Info().Str("prompt", out).Msg("prompt optimized")
	return out, nil
}

// parseStream reads the JSON array of partial results and returns the first
// part of the first candidate of every chunk, in arrival order.
func parseStream(r io.Reader) ([]string, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("expected a JSON array of chunks, got %v", tok)
	}

	var frags []string
	for i := 0; dec.More(); i++ {
		var ch streamChunk
		if err := dec.Decode(&ch); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if len(ch.Candidates) == 0 || len(ch.Candidates[0].Content.Parts) == 0 {
			continue
		}
		frags = append(frags, ch.Candidates[0].Content.Parts[0].Text)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("close stream: %w", err)
	}
	return frags, nil
}
