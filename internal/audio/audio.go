// Package audio holds the waveform representation shared across the pipeline:
// 16-bit mono PCM samples at a fixed sample rate, WAV encoding and decoding,
// and the assembler that concatenates per-chunk fragments into one utterance.
package audio

import "time"

// Audio is a mono 16-bit PCM waveform.
type Audio struct {
	Samples    []int16
	SampleRate int
}

// Duration reports the playback length of the waveform.
func (a *Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}

	return time.Duration(len(a.Samples)) * time.Second / time.Duration(a.SampleRate)
}

// silenceSamples computes the zero-amplitude sample count for a pause.
// Integer math keeps the result exact for common rates and durations.
func silenceSamples(millis, sampleRate int) int {
	return millis * sampleRate / 1000
}
