// Package config provides the configuration structure for the synthesis
// service.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/hawkaii/fastspeech/internal/core"
)

// Defaults applied by Normalize for unset synthesis settings.
const (
	DefaultSampleRate    = 22050
	DefaultMaxTextLength = 5000
	DefaultChunkWords    = 100
	DefaultWorkers       = 4
	DefaultDevice        = "cpu"
)

// Static validation errors.
var (
	ErrModelsDirEmpty     = errors.New("models directory cannot be empty")
	ErrInferenceURLEmpty  = errors.New("inference service url cannot be empty")
	ErrBadPreloadEntry    = errors.New("preload entry must be language:voice")
	ErrNegativeCacheBound = errors.New("cache max_models cannot be negative")
)

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	ModelsDir   string `toml:"models_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// HTTPConfig holds the HTTP listener configuration.
type HTTPConfig struct {
	ListenAddress string `toml:"listen_address"`
}

// NATSConfig holds the configuration for the optional NATS job worker.
// Leaving URL empty disables the worker.
type NATSConfig struct {
	URL              string `toml:"url"`
	SynthesisSubject string `toml:"synthesis_subject"`
	PayloadBucket    string `toml:"payload_bucket"`
}

// RemoteStoreConfig holds the S3-compatible bucket the model artifacts are
// fetched from.
type RemoteStoreConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// SynthesisConfig holds the synthesis pipeline tunables.
type SynthesisConfig struct {
	SampleRate    int     `toml:"sample_rate"`
	MaxTextLength int     `toml:"max_text_length"`
	ChunkWords    int     `toml:"chunk_words"`
	Workers       int     `toml:"workers"`
	DefaultAlpha  float64 `toml:"default_alpha"`
	Device        string  `toml:"device"`
}

// CacheConfig holds the model registry tunables. MaxModels zero means
// unbounded; a positive value enables LRU eviction. Preload is a
// comma-separated list of language:voice pairs materialized before the
// service accepts traffic.
type CacheConfig struct {
	MaxModels int    `toml:"max_models"`
	Preload   string `toml:"preload"`
}

// InferenceConfig holds the inference service endpoint.
type InferenceConfig struct {
	ServiceURL     string `toml:"service_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LanguageConfig declares one catalog language and the vocoder group shared
// by languages without a dedicated vocoder.
type LanguageConfig struct {
	Name         string `toml:"name"`
	VocoderGroup string `toml:"vocoder_group"`
}

// CatalogConfig declares the authoritative set of available languages.
type CatalogConfig struct {
	Languages []LanguageConfig `toml:"languages"`
}

// Config is the root configuration structure.
type Config struct {
	Paths     PathsConfig       `toml:"paths"`
	HTTP      HTTPConfig        `toml:"http"`
	NATS      NATSConfig        `toml:"nats"`
	Remote    RemoteStoreConfig `toml:"remote_store"`
	Synthesis SynthesisConfig   `toml:"synthesis"`
	Cache     CacheConfig       `toml:"cache"`
	Inference InferenceConfig   `toml:"inference"`
	Catalog   CatalogConfig     `toml:"catalog"`
}

// Load loads the service configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.Normalize()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Normalize fills unset synthesis settings with their defaults.
func (c *Config) Normalize() {
	if c.Synthesis.SampleRate <= 0 {
		c.Synthesis.SampleRate = DefaultSampleRate
	}

	if c.Synthesis.MaxTextLength <= 0 {
		c.Synthesis.MaxTextLength = DefaultMaxTextLength
	}

	if c.Synthesis.ChunkWords <= 0 {
		c.Synthesis.ChunkWords = DefaultChunkWords
	}

	if c.Synthesis.Workers <= 0 {
		c.Synthesis.Workers = DefaultWorkers
	}

	if c.Synthesis.DefaultAlpha <= 0 {
		c.Synthesis.DefaultAlpha = 1.0
	}

	if c.Synthesis.Device == "" {
		c.Synthesis.Device = DefaultDevice
	}
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.Paths.ModelsDir == "" {
		return ErrModelsDirEmpty
	}

	if c.Inference.ServiceURL == "" {
		return ErrInferenceURLEmpty
	}

	if c.Cache.MaxModels < 0 {
		return ErrNegativeCacheBound
	}

	_, err := c.PreloadKeys()

	return err
}

// PreloadKeys parses the preload list, e.g. "hindi:male,bengali:female".
func (c *Config) PreloadKeys() ([]core.ModelKey, error) {
	var keys []core.ModelKey

	for item := range strings.SplitSeq(c.Cache.Preload, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		language, voiceName, found := strings.Cut(item, ":")

		language = strings.TrimSpace(language)
		voiceName = strings.TrimSpace(voiceName)

		if !found || language == "" || voiceName == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadPreloadEntry, item)
		}

		voice, err := core.ParseVoice(voiceName)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadPreloadEntry, item)
		}

		keys = append(keys, core.ModelKey{Language: language, Voice: voice})
	}

	return keys, nil
}
