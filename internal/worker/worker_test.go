// Package worker_test tests the NATS synthesis worker.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkaii/fastspeech/internal/audio"
	"github.com/hawkaii/fastspeech/internal/engine"
	"github.com/hawkaii/fastspeech/internal/worker"
)

const (
	testSubject    = "synthesis.jobs"
	requestTimeout = 5 * time.Second
)

var (
	errMockDownload   = errors.New("mock download error")
	errMockUpload     = errors.New("mock upload error")
	errMockSynthesize = errors.New("mock synthesize error")
)

// mockPayloadStore is a mock implementation of the PayloadStore interface.
type mockPayloadStore struct {
	downloadShouldFail bool
	uploadShouldFail   bool
	downloadedKey      string
	uploadedKey        string
	uploadedData       []byte
}

func (m *mockPayloadStore) Download(_ context.Context, key string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.downloadedKey = key

	return []byte("stored job text"), nil
}

func (m *mockPayloadStore) Upload(_ context.Context, key string, data []byte) error {
	if m.uploadShouldFail {
		return errMockUpload
	}

	m.uploadedKey = key
	m.uploadedData = data

	return nil
}

// mockEngine is a mock implementation of the SynthesisEngine interface.
type mockEngine struct {
	synthesizeShouldFail bool
	gotText              string
	gotLanguage          string
	gotVoice             string
	gotAlpha             float64
}

func (m *mockEngine) Synthesize(
	_ context.Context,
	text, language, voice string,
	opts engine.Options,
) (*audio.Audio, error) {
	if m.synthesizeShouldFail {
		return nil, errMockSynthesize
	}

	m.gotText = text
	m.gotLanguage = language
	m.gotVoice = voice
	m.gotAlpha = opts.Alpha

	return &audio.Audio{Samples: []int16{1, 2, 3}, SampleRate: 22050}, nil
}

func setupWorker(t *testing.T) (*mockPayloadStore, *mockEngine, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	store := &mockPayloadStore{
		downloadShouldFail: false,
		uploadShouldFail:   false,
		downloadedKey:      "",
		uploadedKey:        "",
		uploadedData:       nil,
	}
	synthesisEngine := &mockEngine{
		synthesizeShouldFail: false,
		gotText:              "",
		gotLanguage:          "",
		gotVoice:             "",
		gotAlpha:             0,
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection, testSubject, store, synthesisEngine, testLogger,
	)

	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = natsWorker.Run(runCtx) }()

	// Wait for the worker's subscription to land before any request.
	require.Eventually(t, func() bool {
		return natsConnection.NumSubscriptions() > 0
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, natsConnection.Flush())

	return store, synthesisEngine, natsConnection
}

func requestJob(t *testing.T, natsConnection *nats.Conn, job worker.SynthesisJob) worker.SynthesisResult {
	t.Helper()

	data, err := json.Marshal(job)
	require.NoError(t, err)

	msg, err := natsConnection.Request(testSubject, data, requestTimeout)
	require.NoError(t, err)

	var result worker.SynthesisResult

	require.NoError(t, json.Unmarshal(msg.Data, &result))

	return result
}

func TestWorkerInlineTextJob(t *testing.T) {
	t.Parallel()

	store, synthesisEngine, natsConnection := setupWorker(t)

	result := requestJob(t, natsConnection, worker.SynthesisJob{
		JobID:    "job-1",
		Text:     "hello world",
		TextKey:  "",
		Language: "hindi",
		Voice:    "male",
		Alpha:    1.2,
	})

	assert.Equal(t, "job-1", result.JobID)
	assert.Empty(t, result.Error)
	assert.True(t, strings.HasSuffix(result.AudioKey, ".wav"))
	assert.Equal(t, 22050, result.SampleRate)

	assert.Equal(t, "hello world", synthesisEngine.gotText)
	assert.Equal(t, "hindi", synthesisEngine.gotLanguage)
	assert.Equal(t, "male", synthesisEngine.gotVoice)
	assert.InEpsilon(t, 1.2, synthesisEngine.gotAlpha, 1e-9)

	assert.Equal(t, result.AudioKey, store.uploadedKey)
	assert.NotEmpty(t, store.uploadedData)
}

func TestWorkerStoredTextJob(t *testing.T) {
	t.Parallel()

	store, synthesisEngine, natsConnection := setupWorker(t)

	result := requestJob(t, natsConnection, worker.SynthesisJob{
		JobID:    "job-2",
		Text:     "",
		TextKey:  "jobs/2/input.txt",
		Language: "tamil",
		Voice:    "female",
		Alpha:    0,
	})

	assert.Empty(t, result.Error)
	assert.Equal(t, "jobs/2/input.txt", store.downloadedKey)
	assert.Equal(t, "stored job text", synthesisEngine.gotText)
}

func TestWorkerJobWithoutText(t *testing.T) {
	t.Parallel()

	_, _, natsConnection := setupWorker(t)

	result := requestJob(t, natsConnection, worker.SynthesisJob{
		JobID:    "job-3",
		Text:     "",
		TextKey:  "",
		Language: "hindi",
		Voice:    "male",
		Alpha:    0,
	})

	assert.Empty(t, result.AudioKey)
	assert.Contains(t, result.Error, "neither text nor text_key")
}

func TestWorkerSynthesisFailure(t *testing.T) {
	t.Parallel()

	_, synthesisEngine, natsConnection := setupWorker(t)
	synthesisEngine.synthesizeShouldFail = true

	result := requestJob(t, natsConnection, worker.SynthesisJob{
		JobID:    "job-4",
		Text:     "hello",
		TextKey:  "",
		Language: "hindi",
		Voice:    "male",
		Alpha:    0,
	})

	assert.Empty(t, result.AudioKey)
	assert.Contains(t, result.Error, "mock synthesize error")
}

func TestWorkerUploadFailure(t *testing.T) {
	t.Parallel()

	store, _, natsConnection := setupWorker(t)
	store.uploadShouldFail = true

	result := requestJob(t, natsConnection, worker.SynthesisJob{
		JobID:    "job-5",
		Text:     "hello",
		TextKey:  "",
		Language: "hindi",
		Voice:    "male",
		Alpha:    0,
	})

	assert.Empty(t, result.AudioKey)
	assert.Contains(t, result.Error, "failed to upload audio")
}
