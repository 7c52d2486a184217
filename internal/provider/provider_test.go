package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/podcheck/internal/common"
)

func TestPollUntil_CompletesEarly(t *testing.T) {
	calls := 0
	err := PollUntil(context.Background(), PollConfig{Interval: time.Millisecond, MaxAttempts: 5}, "datalab", "r1",
		func(_ context.Context, attempt int) (bool, error) {
			calls++
			return attempt == 3, nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPollUntil_Timeout(t *testing.T) {
	calls := 0
	start := time.Now()
	err := PollUntil(context.Background(), PollConfig{Interval: 5 * time.Millisecond, MaxAttempts: 3}, "datalab", "r2",
		func(context.Context, int) (bool, error) {
			calls++
			return false, nil
		}, nil)

	var perr *common.PollTimeoutError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, perr.Attempts)
	assert.Equal(t, "r2", perr.RequestID)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollUntil_CheckErrorStops(t *testing.T) {
	boom := errors.New("provider says failed")
	calls := 0
	err := PollUntil(context.Background(), PollConfig{Interval: time.Millisecond, MaxAttempts: 10}, "datalab", "r3",
		func(context.Context, int) (bool, error) {
			calls++
			return false, boom
		}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPollUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := PollUntil(ctx, PollConfig{Interval: time.Hour, MaxAttempts: 10}, "datalab", "r4",
		func(context.Context, int) (bool, error) {
			cancel()
			return false, nil
		}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_Statuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"bad key"}`))
		}
	}))
	defer srv.Close()

	body, code, err := SendJSON(context.Background(), srv.Client(), srv.URL+"/ok",
		map[string]string{"a": "b"}, map[string]string{"X-Api-Key": "secret"}, "test", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"a":"b"}`, string(body))

	_, code, err = SendJSON(context.Background(), srv.Client(), srv.URL+"/denied", nil, nil, "test", nil)
	var serr *common.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, http.StatusUnauthorized, serr.StatusCode)
	assert.Contains(t, serr.Error(), "bad key")
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := SendJSON(context.Background(), nil, url, nil, nil, "test", nil)
	var serr *common.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, serr.StatusCode)
	assert.True(t, common.IsDocumentError(err))
}

func TestSchemaValidation(t *testing.T) {
	schema := MustCompileSchema("test.json", map[string]any{
		"type":     "object",
		"required": []any{"lines"},
		"properties": map[string]any{
			"lines": map[string]any{"type": "array"},
		},
	})
	assert.NoError(t, ValidateJSON(schema, []byte(`{"lines":[]}`)))
	assert.Error(t, ValidateJSON(schema, []byte(`{"lines":"x"}`)))
	assert.Error(t, ValidateJSON(schema, []byte(`not json`)))
	assert.Equal(t, "abc...", truncate([]byte("abcdef"), 3))
}
