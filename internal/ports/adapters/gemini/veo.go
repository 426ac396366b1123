package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/forPelevin/text2splat/internal/domain/failures"
	"github.com/forPelevin/text2splat/internal/poll"
)

// VideoParams are the fixed generation parameters sent with every job.
type VideoParams struct {
	PersonGeneration string
	AspectRatio      string
	SampleCount      int
	DurationSeconds  int
}

func (p VideoParams) withDefaults() VideoParams {
	if p.PersonGeneration == "" {
		p.PersonGeneration = "allow_all"
	}
	if p.AspectRatio == "" {
		p.AspectRatio = "16:9"
	}
	if p.SampleCount <= 0 {
		p.SampleCount = 1
	}
	if p.DurationSeconds <= 0 {
		p.DurationSeconds = 5
	}
	return p
}

type predictRequest struct {
	Instances  []instance `json:"instances"`
	Parameters parameters `json:"parameters"`
}

type instance struct {
	Prompt string `json:"prompt"`
}

type parameters struct {
	PersonGeneration string `json:"personGeneration"`
	AspectRatio      string `json:"aspectRatio"`
	SampleCount      int    `json:"sampleCount"`
	DurationSeconds  int    `json:"durationSeconds"`
}

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// videoURI interprets a finished operation. The error payload wins over any
// response that may also be present.
func (op operation) videoURI() (string, error) {
	if op.Error != nil {
		return "", &failures.OperationError{Code: op.Error.Code, Message: op.Error.Message}
	}
	if op.Response == nil {
		return "", fmt.Errorf("%w: operation is done, but no response field was found", failures.ErrMissingResult)
	}
	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 {
		return "", fmt.Errorf("%w: response contained no video samples", failures.ErrMissingResult)
	}
	uri := strings.TrimSpace(samples[0].Video.URI)
	if uri == "" {
		return "", fmt.Errorf("%w: first video sample has no uri", failures.ErrMissingResult)
	}
	return uri, nil
}

// Generate submits a Veo job for prompt and polls it until it finishes.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	name, err := c.submit(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.log.Info().Str("operation", name).Msg("video job submitted")

	uri, err := poll.Until(ctx, c.poll, func(ctx context.Context, attempt int) (string, bool, error) {
		op, err := c.operation(ctx, name)
		if err != nil {
			return "", false, err
		}
		if !op.Done {
			c.log.Info().Int("attempt", attempt).Msg("video not ready yet")
			return "", false, nil
		}
		c.log.Info().Int("attempt", attempt).Msg("video generation complete")
		uri, err := op.videoURI()
		return uri, true, err
	})
	if err != nil {
		return "", fmt.Errorf("operation %s: %w", name, err)
	}
	return uri, nil
}

func (c *Client) submit(ctx context.Context, prompt string) (string, error) {
	p := c.video
	body, err := json.Marshal(predictRequest{
		Instances: []instance{{Prompt: prompt}},
		Parameters: parameters{
			PersonGeneration: p.PersonGeneration,
			AspectRatio:      p.AspectRatio,
			SampleCount:      p.SampleCount,
			DurationSeconds:  p.DurationSeconds,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, url.PathEscape(c.videoModel))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.key)

	c.log.Info().Str("model", c.videoModel).Msg("submitting video generation job")
	resp, err := c.do(req, failures.OpSubmit)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var op operation
	if err := c.decodeJSON(resp.Body, failures.OpSubmit, &op); err != nil {
		return "", err
	}
	name := strings.Trim(strings.TrimSpace(op.Name), "/")
	if name == "" {
		return "", fmt.Errorf("%w: submission returned no operation name", failures.ErrMissingResult)
	}
	return name, nil
}

func (c *Client) operation(ctx context.Context, name string) (operation, error) {
	reqCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/"+name, nil)
	if err != nil {
		return operation{}, err
	}
	req.Header.Set("x-goog-api-key", c.key)

	resp, err := c.do(req, failures.OpPoll)
	if err != nil {
		return operation{}, err
	}
	defer resp.Body.Close()

	var op operation
	if err := c.decodeJSON(resp.Body, failures.OpPoll, &op); err != nil {
		return operation{}, err
	}
	return op, nil
}
