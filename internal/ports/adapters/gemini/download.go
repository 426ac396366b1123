package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/text2splat/internal/domain/failures"
)

const VideoFileName = "video.mp4"

// Download fetches a generated video into dir/video.mp4 and returns its path.
// dir is owned by a single run, so the fixed file name cannot collide.
func (c *Client) Download(ctx context.Context, uri, dir string) (string, error) {
	target, err := c.downloadURL(uri)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}
	resp, err := c.do(req, failures.OpDownload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	path := filepath.Join(dir, VideoFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create video file: %w", err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		var pe *fs.PathError
		if errors.As(copyErr, &pe) {
			return "", fmt.Errorf("write video file: %w", copyErr)
		}
		return "", &failures.NetworkError{Op: failures.OpDownload, Err: errors.New(redactSecrets(copyErr.Error(), c.key))}
	}
	if closeErr != nil {
		return "", fmt.Errorf("write video file: %w", closeErr)
	}

	c.log.Info().Str("path", path).Int64("bytes", n).Msg("video downloaded")
	return path, nil
}

// downloadURL resolves uri against the API base and attaches the key.
func (c *Client) downloadURL(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", fmt.Errorf("%w: empty video uri", failures.ErrMissingResult)
	}
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		uri = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse video uri: %w", err)
	}
	if c.key != "" {
		q := u.Query()
		q.Set("key", c.key)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
