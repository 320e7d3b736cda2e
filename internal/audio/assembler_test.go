// Package audio_test tests waveform assembly and the WAV codec.
package audio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkaii/fastspeech/internal/audio"
)

const testRate = 22050

func TestAssemble_LengthLaw(t *testing.T) {
	t.Parallel()

	segments := []audio.SegmentAudio{
		{Order: 0, Fragments: [][]int16{make([]int16, 100), make([]int16, 50)}},
		{Order: 1, Fragments: [][]int16{make([]int16, 25)}},
	}
	pauses := []audio.Pause{
		{AfterSegment: 0, Millis: 500},
		{AfterSegment: 1, Millis: 1000},
	}

	out := audio.Assemble(segments, pauses, testRate)

	wantSilence := 500*testRate/1000 + 1000*testRate/1000
	assert.Len(t, out.Samples, 100+50+25+wantSilence)
	assert.Equal(t, testRate, out.SampleRate)
}

func TestAssemble_EmptyInputYieldsEmptyWaveform(t *testing.T) {
	t.Parallel()

	out := audio.Assemble(nil, nil, testRate)
	assert.Empty(t, out.Samples)
	assert.Equal(t, testRate, out.SampleRate)
}

func TestAssemble_SilencePositions(t *testing.T) {
	t.Parallel()

	// Non-zero fragments so silence spans are visible in the output.
	fragment := func(value int16, n int) []int16 {
		samples := make([]int16, n)
		for i := range samples {
			samples[i] = value
		}

		return samples
	}

	segments := []audio.SegmentAudio{
		{Order: 0, Fragments: [][]int16{fragment(1, 10)}},
		{Order: 1, Fragments: [][]int16{fragment(2, 10)}},
	}
	pauses := []audio.Pause{
		{AfterSegment: -1, Millis: 1000}, // before first segment
		{AfterSegment: 0, Millis: 1000},  // between segments
		{AfterSegment: 1, Millis: 1000},  // after last segment
	}

	out := audio.Assemble(segments, pauses, 1000) // 1 kHz: 1000 ms = 1000 samples

	require.Len(t, out.Samples, 10+10+3000)
	assert.Equal(t, int16(0), out.Samples[0])
	assert.Equal(t, int16(1), out.Samples[1000])
	assert.Equal(t, int16(0), out.Samples[1010])
	assert.Equal(t, int16(2), out.Samples[2010])
	assert.Equal(t, int16(0), out.Samples[2020])
	assert.Equal(t, int16(0), out.Samples[len(out.Samples)-1])
}

func TestAssemble_ZeroDurationPauseAddsNoSamples(t *testing.T) {
	t.Parallel()

	segments := []audio.SegmentAudio{
		{Order: 0, Fragments: [][]int16{make([]int16, 40)}},
	}
	pauses := []audio.Pause{{AfterSegment: 0, Millis: 0}}

	out := audio.Assemble(segments, pauses, testRate)
	assert.Len(t, out.Samples, 40)
}

func TestAssemble_MaximumPauseDuration(t *testing.T) {
	t.Parallel()

	segments := []audio.SegmentAudio{
		{Order: 0, Fragments: [][]int16{make([]int16, 10)}},
	}
	// 60s is the longest pause the directive parser admits.
	pauses := []audio.Pause{{AfterSegment: 0, Millis: 60000}}

	out := audio.Assemble(segments, pauses, testRate)
	assert.Len(t, out.Samples, 10+60*testRate)
}

func TestAssemble_MarkersWithoutSegments(t *testing.T) {
	t.Parallel()

	pauses := []audio.Pause{
		{AfterSegment: -1, Millis: 100},
		{AfterSegment: -1, Millis: 200},
	}

	out := audio.Assemble(nil, pauses, 1000)
	assert.Len(t, out.Samples, 300)
}

func TestWAV_EncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	in := &audio.Audio{
		Samples:    []int16{0, 32767, -32768, 12345, -1},
		SampleRate: testRate,
	}

	data, err := in.Bytes()
	require.NoError(t, err)

	// RIFF header sanity.
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Len(t, data, 44+len(in.Samples)*2)

	out, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, in.Samples, out.Samples)
	assert.Equal(t, in.SampleRate, out.SampleRate)
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := audio.DecodeWAV([]byte("not a wav file at all"))
	require.ErrorIs(t, err, audio.ErrNotWAV)
}

func TestDecodeWAV_RejectsTruncated(t *testing.T) {
	t.Parallel()

	in := &audio.Audio{Samples: make([]int16, 64), SampleRate: testRate}

	data, err := in.Bytes()
	require.NoError(t, err)

	_, err = audio.DecodeWAV(data[:len(data)-10])
	require.ErrorIs(t, err, audio.ErrTruncatedWAV)
}

func TestDuration(t *testing.T) {
	t.Parallel()

	waveform := &audio.Audio{Samples: make([]int16, testRate/2), SampleRate: testRate}
	assert.Equal(t, int64(500), waveform.Duration().Milliseconds())
}
