package audio

// SegmentAudio carries one segment's waveform fragments in chunk order.
// Segments are passed to Assemble in strictly increasing Order.
type SegmentAudio struct {
	Order     int
	Fragments [][]int16
}

// Pause is a silence insertion point. AfterSegment is the order of the segment
// the pause follows; a value below the first segment's order places the pause
// before any speech. Pauses must arrive sorted by AfterSegment.
type Pause struct {
	AfterSegment int
	Millis       int
}

// Assemble concatenates fragments in segment order with zero-amplitude silence
// of each pause's duration inserted at its position. Concatenation is
// sample-exact: the output length is the sum of all fragment lengths plus the
// sum of all pause lengths in samples. Zero input produces an empty waveform.
func Assemble(segments []SegmentAudio, pauses []Pause, sampleRate int) *Audio {
	total := 0
	for _, segment := range segments {
		for _, fragment := range segment.Fragments {
			total += len(fragment)
		}
	}

	for _, pause := range pauses {
		total += silenceSamples(pause.Millis, sampleRate)
	}

	out := make([]int16, 0, total)
	next := 0

	for _, segment := range segments {
		for next < len(pauses) && pauses[next].AfterSegment < segment.Order {
			out = appendSilence(out, pauses[next].Millis, sampleRate)
			next++
		}

		for _, fragment := range segment.Fragments {
			out = append(out, fragment...)
		}
	}

	for ; next < len(pauses); next++ {
		out = appendSilence(out, pauses[next].Millis, sampleRate)
	}

	return &Audio{Samples: out, SampleRate: sampleRate}
}

func appendSilence(samples []int16, millis, sampleRate int) []int16 {
	return append(samples, make([]int16, silenceSamples(millis, sampleRate))...)
}
