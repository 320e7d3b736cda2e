package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	numChannels   = 1
	bitsPerSample = 16
	bytesPerFrame = numChannels * bitsPerSample / 8

	riffHeaderSize = 36
	fmtChunkSize   = 16
	pcmFormatTag   = 1
)

// Static WAV decoding errors.
var (
	ErrNotWAV         = errors.New("data is not a RIFF/WAVE stream")
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
	ErrTruncatedWAV   = errors.New("truncated WAV stream")
)

// EncodeWAV writes the waveform as a mono 16-bit PCM WAV stream.
func (a *Audio) EncodeWAV(w io.Writer) error {
	dataSize := len(a.Samples) * bytesPerFrame

	header := []any{
		uint32(riffHeaderSize + dataSize),
		[]byte("WAVE"),
		[]byte("fmt "),
		uint32(fmtChunkSize),
		uint16(pcmFormatTag),
		uint16(numChannels),
		uint32(a.SampleRate),
		uint32(a.SampleRate * bytesPerFrame),
		uint16(bytesPerFrame),
		uint16(bitsPerSample),
		[]byte("data"),
		uint32(dataSize),
	}

	_, err := w.Write([]byte("RIFF"))
	if err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}

	for _, field := range header {
		err = binary.Write(w, binary.LittleEndian, field)
		if err != nil {
			return fmt.Errorf("failed to write WAV header: %w", err)
		}
	}

	err = binary.Write(w, binary.LittleEndian, a.Samples)
	if err != nil {
		return fmt.Errorf("failed to write WAV samples: %w", err)
	}

	return nil
}

// Bytes encodes the waveform into an in-memory WAV file.
func (a *Audio) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	err := a.EncodeWAV(&buf)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeWAV parses a mono 16-bit PCM WAV stream. Chunks other than "fmt " and
// "data" are skipped.
func DecodeWAV(data []byte) (*Audio, error) {
	if len(data) < 12 ||
		string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		sampleRate int
		haveFormat bool
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if body+chunkSize > len(data) {
			return nil, ErrTruncatedWAV
		}

		switch chunkID {
		case "fmt ":
			rate, err := parseFormatChunk(data[body : body+chunkSize])
			if err != nil {
				return nil, err
			}

			sampleRate = rate
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrNotWAV)
			}

			return decodeSamples(data[body:body+chunkSize], sampleRate)
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + chunkSize%2
	}

	return nil, fmt.Errorf("%w: no data chunk", ErrTruncatedWAV)
}

func parseFormatChunk(chunk []byte) (int, error) {
	if len(chunk) < fmtChunkSize {
		return 0, ErrTruncatedWAV
	}

	formatTag := binary.LittleEndian.Uint16(chunk[0:2])
	channels := binary.LittleEndian.Uint16(chunk[2:4])
	sampleRate := binary.LittleEndian.Uint32(chunk[4:8])
	bits := binary.LittleEndian.Uint16(chunk[14:16])

	if formatTag != pcmFormatTag || channels != numChannels || bits != bitsPerSample {
		return 0, fmt.Errorf(
			"%w: want 16-bit mono PCM, got format %d, %d channels, %d bits",
			ErrUnsupportedWAV, formatTag, channels, bits,
		)
	}

	return int(sampleRate), nil
}

func decodeSamples(body []byte, sampleRate int) (*Audio, error) {
	if len(body)%bytesPerFrame != 0 {
		return nil, ErrTruncatedWAV
	}

	samples := make([]int16, len(body)/bytesPerFrame)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(body[i*2 : i*2+2]))
	}

	return &Audio{Samples: samples, SampleRate: sampleRate}, nil
}
