package model

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/hawkaii/fastspeech/internal/core"
	"github.com/hawkaii/fastspeech/internal/text"
)

// DirLoader is the default core.ModelLoader. The numerical model state is
// owned by the inference service, so loading here means re-validating the
// materialized directories, measuring their footprint, and binding the
// language's normalization profile into the handle.
type DirLoader struct{}

// NewDirLoader creates the default loader.
func NewDirLoader() *DirLoader {
	return &DirLoader{}
}

// Load builds the shared, immutable handle for a materialized model pair.
func (l *DirLoader) Load(
	_ context.Context,
	key core.ModelKey,
	modelDir, vocoderDir string,
) (*core.ModelHandle, error) {
	modelSize, err := dirSize(modelDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %w", core.ErrModelLoad, modelDir, err)
	}

	vocoderSize, err := dirSize(vocoderDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %w", core.ErrModelLoad, vocoderDir, err)
	}

	return &core.ModelHandle{
		Key:        key,
		ModelDir:   modelDir,
		VocoderDir: vocoderDir,
		Profile:    text.ProfileFor(key.Language),
		SizeBytes:  modelSize + vocoderSize,
	}, nil
}

func dirSize(dir string) (int64, error) {
	var total int64

	err := filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		total += info.Size()

		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}
