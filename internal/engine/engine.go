// Package engine orchestrates one synthesis request end to end: markup
// parsing, model acquisition, parallel chunk inference, and sample-exact
// waveform assembly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"golang.org/x/sync/errgroup"

	"github.com/hawkaii/fastspeech/internal/audio"
	"github.com/hawkaii/fastspeech/internal/chunker"
	"github.com/hawkaii/fastspeech/internal/config"
	"github.com/hawkaii/fastspeech/internal/core"
	"github.com/hawkaii/fastspeech/internal/markup"
	"github.com/hawkaii/fastspeech/internal/model"
)

// LocalLister reports which catalog keys are complete on local storage.
type LocalLister interface {
	ListLocal() []core.ModelKey
}

// Options carries per-request overrides. A zero Alpha means the configured
// default speed.
type Options struct {
	Alpha float64
}

// Health is a point-in-time service snapshot.
type Health struct {
	Device       string
	LoadedModels int
}

// Engine is the request orchestrator. It is safe for concurrent use; all
// request state lives on the stack of Synthesize.
type Engine struct {
	cfg      config.SynthesisConfig
	registry *model.Registry
	lister   LocalLister
	catalog  core.Catalog
	synth    core.Synthesizer
	log      *logger.Logger
}

// New creates an engine over a model registry and a chunk-level synthesizer.
func New(
	cfg config.SynthesisConfig,
	registry *model.Registry,
	lister LocalLister,
	catalog core.Catalog,
	synth core.Synthesizer,
	log *logger.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		lister:   lister,
		catalog:  catalog,
		synth:    synth,
		log:      log,
	}
}

// Synthesize turns request text into a single waveform. The request either
// yields complete audio or fails with one wrapped sentinel from the failure
// taxonomy; no partial audio is ever returned.
func (e *Engine) Synthesize(
	ctx context.Context,
	text, language, voice string,
	opts Options,
) (*audio.Audio, error) {
	runes := utf8.RuneCountInString(text)
	if runes > e.cfg.MaxTextLength {
		return nil, fmt.Errorf(
			"%w: %d characters exceeds limit of %d",
			core.ErrInputTooLong, runes, e.cfg.MaxTextLength,
		)
	}

	alpha, err := e.requestAlpha(opts)
	if err != nil {
		return nil, err
	}

	parsedVoice, err := core.ParseVoice(voice)
	if err != nil {
		return nil, err
	}

	segments, markers, err := markup.Parse(text, alpha)
	if err != nil {
		return nil, err
	}

	key := core.ModelKey{Language: language, Voice: parsedVoice}

	handle, err := e.registry.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	chunks := e.collectChunks(segments)

	results, err := e.inferAll(ctx, chunks, handle)
	if err != nil {
		return nil, err
	}

	waveform := audio.Assemble(
		groupBySegment(chunks, results),
		pausesFromMarkers(markers),
		e.cfg.SampleRate,
	)

	e.log.Info("Synthesized %s: %d segments, %d chunks, %s of audio in %s",
		key, len(segments), len(chunks),
		waveform.Duration().Round(time.Millisecond),
		time.Since(start).Round(time.Millisecond))

	return waveform, nil
}

func (e *Engine) requestAlpha(opts Options) (float64, error) {
	if opts.Alpha == 0 {
		return e.cfg.DefaultAlpha, nil
	}

	if opts.Alpha < 0 || math.IsNaN(opts.Alpha) || math.IsInf(opts.Alpha, 0) {
		return 0, fmt.Errorf(
			"%w: request alpha %v is not a positive number",
			core.ErrMalformedMarkup, opts.Alpha,
		)
	}

	return opts.Alpha, nil
}

// collectChunks flattens all segments into one task list. Order is segment
// order, then chunk index, which is exactly the concatenation order of the
// final waveform.
func (e *Engine) collectChunks(segments []markup.Segment) []chunker.Chunk {
	var chunks []chunker.Chunk

	for _, segment := range segments {
		for chunk := range chunker.Split(segment, e.cfg.ChunkWords) {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// inferAll runs chunk inference with bounded parallelism. Each chunk writes
// into its own result slot, so completion order never affects sample order.
// The first failure cancels the remaining chunks and fails the request.
func (e *Engine) inferAll(
	ctx context.Context,
	chunks []chunker.Chunk,
	handle *core.ModelHandle,
) ([][]int16, error) {
	results := make([][]int16, len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)

	for slot, chunk := range chunks {
		group.Go(func() error {
			fragment, err := e.synth.Infer(groupCtx, chunk.Text(), handle, chunk.Alpha)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}

				return fmt.Errorf(
					"%w: segment %d chunk %d: %w",
					core.ErrInference, chunk.Segment, chunk.Index, err,
				)
			}

			if fragment.SampleRate != e.cfg.SampleRate {
				return fmt.Errorf(
					"%w: segment %d chunk %d: sample rate %d, want %d",
					core.ErrInference, chunk.Segment, chunk.Index,
					fragment.SampleRate, e.cfg.SampleRate,
				)
			}

			results[slot] = fragment.Samples

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	return results, nil
}

// groupBySegment folds the flat result slots back into per-segment fragment
// lists. Chunks arrive already sorted by (segment, index).
func groupBySegment(chunks []chunker.Chunk, results [][]int16) []audio.SegmentAudio {
	var segments []audio.SegmentAudio

	for slot, chunk := range chunks {
		if len(segments) == 0 || segments[len(segments)-1].Order != chunk.Segment {
			segments = append(segments, audio.SegmentAudio{
				Order:     chunk.Segment,
				Fragments: nil,
			})
		}

		last := &segments[len(segments)-1]
		last.Fragments = append(last.Fragments, results[slot])
	}

	return segments
}

func pausesFromMarkers(markers []markup.SilenceMarker) []audio.Pause {
	pauses := make([]audio.Pause, 0, len(markers))
	for _, marker := range markers {
		pauses = append(pauses, audio.Pause{
			AfterSegment: marker.AfterSegment,
			Millis:       marker.DurationMillis,
		})
	}

	return pauses
}

// SupportedModels lists every key the catalog can serve.
func (e *Engine) SupportedModels() []core.ModelKey {
	return e.catalog.Keys()
}

// LocalModels lists keys already materialized on local storage.
func (e *Engine) LocalModels() []core.ModelKey {
	return e.lister.ListLocal()
}

// Preload eagerly materializes the given keys, reporting per-key outcomes.
func (e *Engine) Preload(ctx context.Context, keys []core.ModelKey) map[core.ModelKey]error {
	return e.registry.Preload(ctx, keys)
}

// Drain releases every cached model handle. Called once at shutdown, after
// the last request has completed.
func (e *Engine) Drain() {
	e.registry.Purge()
}

// Health reports the inference device and the loaded model count.
func (e *Engine) Health() Health {
	return Health{
		Device:       e.cfg.Device,
		LoadedModels: e.registry.Len(),
	}
}
