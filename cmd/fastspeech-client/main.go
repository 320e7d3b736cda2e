// main package for the command-line synthesis client
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Flag names.
const (
	flagText     = "text"
	flagFile     = "file"
	flagLanguage = "language"
	flagVoice    = "voice"
	flagAlpha    = "alpha"
	flagOutput   = "output"
	flagURL      = "url"
	flagHealth   = "health"
)

// Flag descriptions.
const (
	flagTextDesc     = "Text to synthesize"
	flagFileDesc     = "File containing text to synthesize"
	flagLanguageDesc = "Language of the text (e.g. hindi)"
	flagVoiceDesc    = "Voice to use: male or female"
	flagAlphaDesc    = "Speed factor; values above 1.0 slow speech down"
	flagOutputDesc   = "Output file path (.wav)"
	flagURLDesc      = "Base URL of the synthesis service"
	flagHealthDesc   = "Check service health and exit"
)

// Defaults.
const (
	defaultVoice      = "female"
	defaultOutputFile = "output.wav"
	defaultServiceURL = "http://localhost:5000"
	requestTimeout    = 5 * time.Minute
	outputPermissions = 0o600
)

var (
	errNoText        = errors.New("either --text or --file must be provided")
	errBothTexts     = errors.New("cannot specify both --text and --file")
	errNoLanguage    = errors.New("--language is required")
	errRequestFailed = errors.New("synthesis request failed")
	errServiceUnwell = errors.New("service reported unhealthy status")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text     string
	file     string
	language string
	voice    string
	alpha    float64
	output   string
	url      string
	health   bool
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := parseFlags()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if flags.health {
		return checkHealth(ctx, flags.url)
	}

	text, err := resolveText(flags)
	if err != nil {
		return err
	}

	if flags.language == "" {
		return errNoLanguage
	}

	audioData, err := synthesize(ctx, flags, text)
	if err != nil {
		return err
	}

	err = os.WriteFile(flags.output, audioData, outputPermissions)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.output, err)
	}

	fmt.Printf("Generated: %s (%d bytes)\n", flags.output, len(audioData))

	return nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flag.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	flag.StringVar(&flags.voice, flagVoice, defaultVoice, flagVoiceDesc)
	flag.Float64Var(&flags.alpha, flagAlpha, 0, flagAlphaDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.StringVar(&flags.url, flagURL, defaultServiceURL, flagURLDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.Parse()

	return flags
}

func resolveText(flags appFlags) (string, error) {
	switch {
	case flags.text != "" && flags.file != "":
		return "", errBothTexts
	case flags.text != "":
		return flags.text, nil
	case flags.file != "":
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", flags.file, err)
		}

		return string(data), nil
	default:
		return "", errNoText
	}
}

func synthesize(ctx context.Context, flags appFlags, text string) ([]byte, error) {
	payload := map[string]any{
		"text":     text,
		"language": flags.language,
		"voice":    flags.voice,
	}
	if flags.alpha != 0 {
		payload["alpha"] = flags.alpha
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, flags.url+"/synthesize", bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", errRequestFailed, resp.Status, serviceDetail(data))
	}

	return data, nil
}

// serviceDetail extracts the detail field from a structured error body,
// falling back to the raw body.
func serviceDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}

	err := json.Unmarshal(body, &parsed)
	if err == nil && parsed.Detail != "" {
		return parsed.Detail
	}

	return string(body)
}

func checkHealth(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", errServiceUnwell, resp.Status)
	}

	fmt.Println("Service is healthy")

	return nil
}
