package reconstruct

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/text2splat/internal/domain/failures"
	"github.com/forPelevin/text2splat/internal/logging"
)

const (
	DefaultURL = "http://localhost:8888/reconstruction"
	FieldName  = "images"

	defaultTimeout = 30 * time.Minute
	maxErrorBody   = 2048
)

type Options struct {
	URL        string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

type Client struct {
	url  string
	http *http.Client
	log  *zerolog.Logger
}

func New(opts Options) *Client {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		url = DefaultURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{url: url, http: hc, log: logging.OrNop(opts.Logger)}
}

// ListImages returns the .jpg files directly inside dir in name order.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Reconstruct uploads every JPEG in framesDir as one multipart request and
// returns the response body (the splat asset).
func (c *Client) Reconstruct(ctx context.Context, framesDir string) ([]byte, error) {
	files, err := ListImages(framesDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no .jpg files in %s", failures.ErrNoInput, framesDir)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Info().Int("images", len(files)).Str("url", c.url).Msg("uploading frames")
	resp, err := c.http.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, &failures.NetworkError{Op: failures.OpReconstruct, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &failures.RemoteError{Op: failures.OpReconstruct, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &failures.NetworkError{Op: failures.OpReconstruct, Err: err}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: reconstruction service returned no data", failures.ErrEmptyResult)
	}
	return body, nil
}

func writeParts(mw *multipart.Writer, files []string) error {
	for _, p := range files {
		if err := writePart(mw, p); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldName, filepath.Base(path)))
	h.Set("Content-Type", "image/jpeg")
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
