// Package worker provides a NATS worker that processes synthesis jobs
// submitted by other services, as an alternative entry point to the HTTP API.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/hawkaii/fastspeech/internal/audio"
	"github.com/hawkaii/fastspeech/internal/core"
	"github.com/hawkaii/fastspeech/internal/engine"
)

const handleMessageTimeout = 5 * time.Minute

var (
	// ErrNoJobText indicates a job carried neither inline text nor a
	// payload store key.
	ErrNoJobText = errors.New("job has neither text nor text_key")
	// ErrAmbiguousJobText indicates a job carried both inline text and a
	// payload store key.
	ErrAmbiguousJobText = errors.New("job has both text and text_key")
)

// SynthesisEngine is the part of the orchestrator the worker drives.
type SynthesisEngine interface {
	Synthesize(
		ctx context.Context,
		text, language, voice string,
		opts engine.Options,
	) (*audio.Audio, error)
}

// SynthesisJob is the JSON message submitted on the synthesis subject. Text
// is inline for short inputs; TextKey points into the payload store for
// larger ones. Exactly one of the two must be set.
type SynthesisJob struct {
	JobID    string  `json:"job_id"`
	Text     string  `json:"text,omitempty"`
	TextKey  string  `json:"text_key,omitempty"`
	Language string  `json:"language"`
	Voice    string  `json:"voice"`
	Alpha    float64 `json:"alpha,omitempty"`
}

// SynthesisResult is the reply published for each job. On failure AudioKey is
// empty and Error carries the reason.
type SynthesisResult struct {
	JobID          string `json:"job_id"`
	AudioKey       string `json:"audio_key,omitempty"`
	SampleRate     int    `json:"sample_rate,omitempty"`
	DurationMillis int64  `json:"duration_millis,omitempty"`
	Error          string `json:"error,omitempty"`
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.PayloadStore
	engine         SynthesisEngine
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.PayloadStore,
	synthesisEngine SynthesisEngine,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		engine:         synthesisEngine,
		log:            log,
	}
}

// Run starts the worker and blocks until the context ends.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var job SynthesisJob

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		w.log.Error("Failed to unmarshal synthesis job: %v", err)

		return
	}

	result := w.processJob(ctx, &job)

	err = w.respond(msg, result)
	if err != nil {
		w.log.Error("Failed to publish result for job %s: %v", job.JobID, err)
	}
}

// processJob runs one job end to end and always returns a result to publish.
func (w *NatsWorker) processJob(ctx context.Context, job *SynthesisJob) *SynthesisResult {
	result := &SynthesisResult{
		JobID:          job.JobID,
		AudioKey:       "",
		SampleRate:     0,
		DurationMillis: 0,
		Error:          "",
	}

	jobText, err := w.resolveText(ctx, job)
	if err != nil {
		w.log.Error("Failed to resolve text for job %s: %v", job.JobID, err)
		result.Error = err.Error()

		return result
	}

	waveform, err := w.engine.Synthesize(
		ctx, jobText, job.Language, job.Voice,
		engine.Options{Alpha: job.Alpha},
	)
	if err != nil {
		w.log.Error("Failed to synthesize job %s: %v", job.JobID, err)
		result.Error = err.Error()

		return result
	}

	audioData, err := waveform.Bytes()
	if err != nil {
		w.log.Error("Failed to encode audio for job %s: %v", job.JobID, err)
		result.Error = err.Error()

		return result
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		w.log.Error("Failed to upload audio for job %s: %v", job.JobID, err)
		result.Error = fmt.Sprintf("failed to upload audio for key %q: %v", audioKey, err)

		return result
	}

	result.AudioKey = audioKey
	result.SampleRate = waveform.SampleRate
	result.DurationMillis = waveform.Duration().Milliseconds()

	return result
}

// resolveText returns the job's input text, downloading it from the payload
// store when the job references a key.
func (w *NatsWorker) resolveText(ctx context.Context, job *SynthesisJob) (string, error) {
	switch {
	case job.Text != "" && job.TextKey != "":
		return "", ErrAmbiguousJobText
	case job.Text != "":
		return job.Text, nil
	case job.TextKey != "":
		data, err := w.store.Download(ctx, job.TextKey)
		if err != nil {
			return "", fmt.Errorf("failed to download text for key %q: %w", job.TextKey, err)
		}

		return string(data), nil
	default:
		return "", ErrNoJobText
	}
}

func (w *NatsWorker) respond(msg *nats.Msg, result *SynthesisResult) error {
	replyData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to respond: %w", err)
	}

	return nil
}
