package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/text2splat/internal/domain/failures"
	"github.com/forPelevin/text2splat/internal/poll"
)

const opName = "models/veo-2.0-generate-001/operations/op123"

// veoServer answers the submit call and then serves statuses in order,
// failing the test if it is polled past the last one.
func veoServer(t *testing.T, statuses ...string) (*Client, *int32, *[]time.Duration) {
	t.Helper()
	var polls int32
	var waits []time.Duration

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1beta/models/"+DefaultVideoModel+":predictLongRunning":
			var req predictRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if assert.Len(t, req.Instances, 1) {
				assert.Equal(t, "a panda meditating", req.Instances[0].Prompt)
			}
			assert.Equal(t, parameters{PersonGeneration: "allow_all", AspectRatio: "16:9", SampleCount: 1, DurationSeconds: 5}, req.Parameters)
			io.WriteString(w, `{"name":"`+opName+`"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1beta/"+opName:
			n := atomic.AddInt32(&polls, 1)
			if int(n) > len(statuses) {
				t.Errorf("polled %d times after the operation was done", n)
				w.WriteHeader(http.StatusGone)
				return
			}
			io.WriteString(w, statuses[n-1])
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	c := New(Options{
		APIKey:  "k",
		BaseURL: srv.URL + "/v1beta",
		Poll: poll.Config{Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}},
	})
	return c, &polls, &waits
}

const doneOK = `{"name":"` + opName + `","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://files.example/v1beta/files/vid:download?alt=media"}},{"video":{"uri":"second"}}]}}}`

func TestGenerate_PollsUntilDone(t *testing.T) {
	c, polls, waits := veoServer(t,
		`{"name":"`+opName+`"}`,
		`{"name":"`+opName+`","done":false}`,
		doneOK,
	)

	uri, err := c.Generate(context.Background(), "a panda meditating")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/v1beta/files/vid:download?alt=media", uri)
	assert.EqualValues(t, 3, atomic.LoadInt32(polls))
	assert.Equal(t, []time.Duration{poll.DefaultInterval, poll.DefaultInterval}, *waits)
}

func TestGenerate_DoneOnFirstPoll(t *testing.T) {
	c, polls, waits := veoServer(t, doneOK)
	_, err := c.Generate(context.Background(), "a panda meditating")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(polls))
	assert.Empty(t, *waits)
}

func TestGenerate_OperationErrorWinsOverResponse(t *testing.T) {
	c, _, _ := veoServer(t,
		`{"done":true,"error":{"code":3,"message":"prompt rejected"},"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"x"}}]}}}`,
	)
	_, err := c.Generate(context.Background(), "a panda meditating")
	var oe *failures.OperationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 3, oe.Code)
	assert.Equal(t, "prompt rejected", oe.Message)
}

func TestGenerate_MissingResult(t *testing.T) {
	tests := map[string]string{
		"no response":  `{"done":true}`,
		"no samples":   `{"done":true,"response":{"generateVideoResponse":{}}}`,
		"empty sample": `{"done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":""}}]}}}`,
	}
	for name, status := range tests {
		t.Run(name, func(t *testing.T) {
			c, _, _ := veoServer(t, status)
			uri, err := c.Generate(context.Background(), "a panda meditating")
			require.ErrorIs(t, err, failures.ErrMissingResult)
			assert.Empty(t, uri)
		})
	}
}

func TestGenerate_SubmissionRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad request"}}`)
	})
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, failures.IsSubmission(err))
}

func TestGenerate_PollStatusFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			io.WriteString(w, `{"name":"operations/x"}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.Generate(context.Background(), "p")
	var re *failures.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, failures.OpPoll, re.Op)
}

func TestGenerate_MissingOperationName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	_, err := c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, failures.ErrMissingResult)
}

func TestGenerate_CustomParams(t *testing.T) {
	var got parameters
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req predictRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			got = req.Parameters
			io.WriteString(w, `{"name":"operations/x"}`)
			return
		}
		io.WriteString(w, doneOK)
	}))
	defer srv.Close()

	c := New(Options{APIKey: "k", BaseURL: srv.URL, Video: VideoParams{AspectRatio: "9:16", DurationSeconds: 8}})
	_, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, parameters{PersonGeneration: "allow_all", AspectRatio: "9:16", SampleCount: 1, DurationSeconds: 8}, got)
}

func TestDownload_WritesVideoWithKey(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, "mp4-bytes")
	})

	dir := t.TempDir()
	path, err := c.Download(context.Background(), c.baseURL+"/files/abc:download?alt=media", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, VideoFileName), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(b))
	assert.Contains(t, gotQuery, "alt=media")
	assert.Contains(t, gotQuery, "key=secret-key")
}

func TestDownload_RelativeURI(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, "x")
	})
	_, err := c.Download(context.Background(), "files/abc", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/files/abc", gotPath)
}

func TestDownload_Failures(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Download(context.Background(), c.baseURL+"/files/missing", t.TempDir())
	var re *failures.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, failures.OpDownload, re.Op)

	_, err = c.Download(context.Background(), "", t.TempDir())
	require.ErrorIs(t, err, failures.ErrMissingResult)
}

func TestDownload_UnwritableDir(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "x")
	})
	_, err := c.Download(context.Background(), c.baseURL+"/files/abc", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
