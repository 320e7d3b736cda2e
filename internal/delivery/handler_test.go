// Package delivery_test tests the HTTP API over a mock orchestrator.
package delivery_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkaii/fastspeech/internal/audio"
	"github.com/hawkaii/fastspeech/internal/core"
	"github.com/hawkaii/fastspeech/internal/delivery"
	"github.com/hawkaii/fastspeech/internal/engine"
)

// mockOrchestrator is a mock implementation of the Orchestrator interface.
type mockOrchestrator struct {
	synthesizeErr error
	preloadErr    error
	gotText       string
	gotLanguage   string
	gotVoice      string
	gotAlpha      float64
	preloaded     []core.ModelKey
}

func (m *mockOrchestrator) Synthesize(
	_ context.Context,
	text, language, voice string,
	opts engine.Options,
) (*audio.Audio, error) {
	if m.synthesizeErr != nil {
		return nil, m.synthesizeErr
	}

	m.gotText = text
	m.gotLanguage = language
	m.gotVoice = voice
	m.gotAlpha = opts.Alpha

	return &audio.Audio{Samples: []int16{1, 2, 3}, SampleRate: 22050}, nil
}

func (m *mockOrchestrator) SupportedModels() []core.ModelKey {
	return []core.ModelKey{
		{Language: "hindi", Voice: core.VoiceMale},
		{Language: "hindi", Voice: core.VoiceFemale},
		{Language: "tamil", Voice: core.VoiceMale},
		{Language: "tamil", Voice: core.VoiceFemale},
	}
}

func (m *mockOrchestrator) Preload(
	_ context.Context,
	keys []core.ModelKey,
) map[core.ModelKey]error {
	m.preloaded = keys

	results := make(map[core.ModelKey]error, len(keys))
	for _, key := range keys {
		results[key] = m.preloadErr
	}

	return results
}

func (m *mockOrchestrator) Health() engine.Health {
	return engine.Health{Device: "cpu", LoadedModels: 2}
}

func setupServer(t *testing.T) (*mockOrchestrator, *httptest.Server) {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	orchestrator := &mockOrchestrator{
		synthesizeErr: nil,
		preloadErr:    nil,
		gotText:       "",
		gotLanguage:   "",
		gotVoice:      "",
		gotAlpha:      0,
		preloaded:     nil,
	}
	server := httptest.NewServer(delivery.NewHandler(orchestrator, log).Router())
	t.Cleanup(server.Close)

	return orchestrator, server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var body map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body
}

func TestSynthesizeEndpoint(t *testing.T) {
	t.Parallel()

	orchestrator, server := setupServer(t)

	resp := postJSON(t, server.URL+"/synthesize", map[string]any{
		"text":     "hello world",
		"language": "hindi",
		"voice":    "male",
		"alpha":    1.3,
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "hindi_male_output.wav")

	assert.Equal(t, "hello world", orchestrator.gotText)
	assert.Equal(t, "hindi", orchestrator.gotLanguage)
	assert.Equal(t, "male", orchestrator.gotVoice)
	assert.InEpsilon(t, 1.3, orchestrator.gotAlpha, 1e-9)
}

func TestSynthesizeEndpointInvalidJSON(t *testing.T) {
	t.Parallel()

	_, server := setupServer(t)

	resp, err := http.Post(server.URL+"/synthesize", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", decodeBody(t, resp)["error_code"])
}

func TestSynthesizeEndpointErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed markup",
			err:        fmt.Errorf("%w: bad tag", core.ErrMalformedMarkup),
			wantStatus: http.StatusBadRequest,
			wantCode:   "MALFORMED_MARKUP",
		},
		{
			name:       "input too long",
			err:        fmt.Errorf("%w: 9000 characters", core.ErrInputTooLong),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INPUT_TOO_LONG",
		},
		{
			name:       "model not found",
			err:        fmt.Errorf("%w: klingon/male", core.ErrModelNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "MODEL_NOT_FOUND",
		},
		{
			name:       "model load failed",
			err:        fmt.Errorf("%w: remote unavailable", core.ErrModelLoad),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "MODEL_LOAD_FAILED",
		},
		{
			name:       "inference failed",
			err:        fmt.Errorf("%w: runtime crashed", core.ErrInference),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			orchestrator, server := setupServer(t)
			orchestrator.synthesizeErr = tc.err

			resp := postJSON(t, server.URL+"/synthesize", map[string]any{
				"text":     "hello",
				"language": "hindi",
				"voice":    "male",
			})

			require.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantCode, decodeBody(t, resp)["error_code"])
		})
	}
}

func TestHealthzEndpoint(t *testing.T) {
	t.Parallel()

	_, server := setupServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "cpu", body["device"])
	assert.InDelta(t, 2, body["models_loaded"], 0)
}

func TestLanguagesEndpoint(t *testing.T) {
	t.Parallel()

	_, server := setupServer(t)

	resp, err := http.Get(server.URL + "/languages")
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.InDelta(t, 2, body["count"], 0)

	languages, ok := body["languages"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"male", "female"}, languages["hindi"])
	assert.ElementsMatch(t, []any{"male", "female"}, languages["tamil"])
}

func TestPreloadEndpoint(t *testing.T) {
	t.Parallel()

	orchestrator, server := setupServer(t)

	resp := postJSON(t, server.URL+"/preload", map[string]any{
		"models": []map[string]string{
			{"language": "hindi", "voice": "male"},
			{"language": "tamil", "voice": "female"},
		},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.ElementsMatch(t, []any{"hindi/male", "tamil/female"}, body["loaded"])
	assert.Empty(t, body["failed"])
	assert.Len(t, orchestrator.preloaded, 2)
}

func TestPreloadEndpointReportsFailures(t *testing.T) {
	t.Parallel()

	orchestrator, server := setupServer(t)
	orchestrator.preloadErr = fmt.Errorf("%w: remote unavailable", core.ErrModelLoad)

	resp := postJSON(t, server.URL+"/preload", map[string]any{
		"models": []map[string]string{{"language": "hindi", "voice": "male"}},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Empty(t, body["loaded"])

	failed, ok := body["failed"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, failed, "hindi/male")
}

func TestPreloadEndpointRejectsUnknownVoice(t *testing.T) {
	t.Parallel()

	_, server := setupServer(t)

	resp := postJSON(t, server.URL+"/preload", map[string]any{
		"models": []map[string]string{{"language": "hindi", "voice": "robot"}},
	})

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "MODEL_NOT_FOUND", decodeBody(t, resp)["error_code"])
}
