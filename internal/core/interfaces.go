// Package core defines the shared types and capability interfaces for the
// synthesis service. The acoustic model, vocoder, remote storage, and model
// catalog are all external collaborators consumed through these interfaces.
package core

import (
	"context"
	"fmt"
)

// Voice identifies one of the two voices available per language.
type Voice string

const (
	// VoiceMale selects the male voice for a language.
	VoiceMale Voice = "male"
	// VoiceFemale selects the female voice for a language.
	VoiceFemale Voice = "female"
)

// ParseVoice validates a request-supplied voice name.
func ParseVoice(s string) (Voice, error) {
	switch Voice(s) {
	case VoiceMale, VoiceFemale:
		return Voice(s), nil
	default:
		return "", fmt.Errorf("%w: unknown voice %q", ErrModelNotFound, s)
	}
}

// ModelKey identifies one loadable model pair. It is the unique lookup key of
// the model registry.
type ModelKey struct {
	Language string
	Voice    Voice
}

func (k ModelKey) String() string {
	return k.Language + "/" + string(k.Voice)
}

// NormalizationProfile names the text normalization scheme the inference
// capability must apply for a language.
type NormalizationProfile string

const (
	// ProfileDurationAligned is the default profile for Indic languages.
	ProfileDurationAligned NormalizationProfile = "duration-aligned"
	// ProfileCharacter is used for character-level languages (urdu, punjabi).
	ProfileCharacter NormalizationProfile = "character"
	// ProfileEnglish is used for English text.
	ProfileEnglish NormalizationProfile = "english"
)

// ModelHandle is a ready-to-use model pair. It is immutable after
// materialization and safely shared by reference across concurrent requests.
// A handle acquired by a request stays valid for the whole request even if
// the key is concurrently evicted from the registry table.
type ModelHandle struct {
	Key        ModelKey
	ModelDir   string
	VocoderDir string
	Profile    NormalizationProfile
	SizeBytes  int64
}

// Fragment is the waveform produced for one text chunk.
type Fragment struct {
	Samples    []int16
	SampleRate int
}

// Synthesizer is the chunk-level inference capability. Implementations are
// assumed deterministic given identical inputs and model state.
type Synthesizer interface {
	Infer(ctx context.Context, text string, handle *ModelHandle, alpha float64) (Fragment, error)
}

// RemoteStore is the remote object store holding model artifacts.
type RemoteStore interface {
	// ListObjects returns the object names under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	// Fetch copies one remote object to a local file path.
	Fetch(ctx context.Context, remotePath, localPath string) error
}

// PayloadStore is a key-value blob store for job payloads and produced audio.
type PayloadStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Layout describes where a key's artifacts live remotely and which files a
// complete local copy must contain.
type Layout struct {
	// ModelPrefix is the remote and local directory of the acoustic model.
	ModelPrefix string
	// VocoderPrefixes lists vocoder directories in fallback order: the
	// language-specific vocoder first, then the language group's shared one.
	VocoderPrefixes []string
	// ModelFiles and VocoderFiles are the completeness sets. A directory
	// missing any of them is treated as absent.
	ModelFiles   []string
	VocoderFiles []string
}

// Catalog is the authoritative mapping from ModelKey to artifact layout. A key
// absent from the catalog does not exist anywhere; a present key that fails to
// fetch or load is a transient failure.
type Catalog interface {
	Lookup(key ModelKey) (Layout, bool)
	Keys() []ModelKey
}

// ModelLoader turns a complete on-disk model pair into a ready handle.
type ModelLoader interface {
	Load(ctx context.Context, key ModelKey, modelDir, vocoderDir string) (*ModelHandle, error)
}
