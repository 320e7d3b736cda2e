package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"

	"github.com/hawkaii/fastspeech/internal/core"
)

const (
	dirPermissions = 0o750
	fetchTmpPrefix = ".fetch-"
)

// Store materializes model artifacts from the remote store into a local
// directory tree mirroring the remote layout. Fetches land in a temporary
// directory and are atomically renamed into place, so a crash mid-fetch never
// leaves a directory a later load would mistake for complete: presence of the
// final directory name plus the required file set is the completeness signal.
type Store struct {
	root    string
	remote  core.RemoteStore
	catalog core.Catalog
	log     *logger.Logger
}

// NewStore creates a store rooted at the local models directory.
func NewStore(
	root string,
	remote core.RemoteStore,
	catalog core.Catalog,
	log *logger.Logger,
) *Store {
	return &Store{
		root:    root,
		remote:  remote,
		catalog: catalog,
		log:     log,
	}
}

// EnsureLocal makes the key's model pair available on local storage and
// returns the acoustic model and vocoder directories. A key missing from the
// catalog fails with ErrModelNotFound before any remote call; every other
// failure wraps ErrModelLoad.
func (s *Store) EnsureLocal(
	ctx context.Context,
	key core.ModelKey,
) (modelDir, vocoderDir string, err error) {
	layout, ok := s.catalog.Lookup(key)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", core.ErrModelNotFound, key)
	}

	modelDir, err = s.ensurePrefix(ctx, layout.ModelPrefix, layout.ModelFiles)
	if err != nil {
		return "", "", fmt.Errorf("acoustic model for %s: %w", key, err)
	}

	vocoderDir, err = s.ensureVocoder(ctx, layout)
	if err != nil {
		return "", "", fmt.Errorf("vocoder for %s: %w", key, err)
	}

	return modelDir, vocoderDir, nil
}

// ensureVocoder tries each vocoder location in fallback order: the
// language-specific vocoder first, then the language group's shared one.
func (s *Store) ensureVocoder(ctx context.Context, layout core.Layout) (string, error) {
	// A complete local copy anywhere in the chain wins without network I/O.
	for _, prefix := range layout.VocoderPrefixes {
		dir := filepath.Join(s.root, filepath.FromSlash(prefix))
		if dirComplete(dir, layout.VocoderFiles) {
			return dir, nil
		}
	}

	var lastErr error

	for _, prefix := range layout.VocoderPrefixes {
		dir, err := s.ensurePrefix(ctx, prefix, layout.VocoderFiles)
		if err == nil {
			return dir, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return "", lastErr
}

// ensurePrefix returns a complete local directory for one remote prefix,
// fetching it if absent.
func (s *Store) ensurePrefix(
	ctx context.Context,
	prefix string,
	required []string,
) (string, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(prefix))
	if dirComplete(dir, required) {
		return dir, nil
	}

	err := s.fetchPrefix(ctx, prefix, dir, required)
	if err != nil {
		return "", err
	}

	return dir, nil
}

// fetchPrefix downloads every object under the prefix into a temporary
// directory, verifies the required file set, and renames it into place.
func (s *Store) fetchPrefix(
	ctx context.Context,
	prefix, dest string,
	required []string,
) error {
	names, err := s.remote.ListObjects(ctx, prefix)
	if err != nil {
		return fmt.Errorf("%w: listing %q: %w", core.ErrModelLoad, prefix, err)
	}

	if len(names) == 0 {
		return fmt.Errorf("%w: no remote objects under %q", core.ErrModelLoad, prefix)
	}

	parent := filepath.Dir(dest)

	err = os.MkdirAll(parent, dirPermissions)
	if err != nil {
		return fmt.Errorf("%w: creating %q: %w", core.ErrModelLoad, parent, err)
	}

	// The temporary directory lives next to the destination so the final
	// rename stays on one filesystem and therefore atomic.
	tmp, err := os.MkdirTemp(parent, fetchTmpPrefix)
	if err != nil {
		return fmt.Errorf("%w: creating staging directory: %w", core.ErrModelLoad, err)
	}

	defer func() {
		removeErr := os.RemoveAll(tmp)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			s.log.Warn("Failed to remove staging directory %q: %v", tmp, removeErr)
		}
	}()

	err = s.fetchObjects(ctx, prefix, names, tmp)
	if err != nil {
		return err
	}

	if !dirComplete(tmp, required) {
		return fmt.Errorf(
			"%w: fetch of %q completed but required files are missing",
			core.ErrModelLoad, prefix,
		)
	}

	return s.commit(tmp, dest, required)
}

func (s *Store) fetchObjects(
	ctx context.Context,
	prefix string,
	names []string,
	tmp string,
) error {
	count := 0

	for _, name := range names {
		rel := strings.TrimPrefix(strings.TrimPrefix(name, prefix), "/")
		if rel == "" || strings.HasSuffix(name, "/") {
			// Directory markers carry no data.
			continue
		}

		local := filepath.Join(tmp, filepath.FromSlash(rel))

		err := os.MkdirAll(filepath.Dir(local), dirPermissions)
		if err != nil {
			return fmt.Errorf("%w: creating %q: %w", core.ErrModelLoad, filepath.Dir(local), err)
		}

		err = s.remote.Fetch(ctx, name, local)
		if err != nil {
			return fmt.Errorf("%w: fetching %q: %w", core.ErrModelLoad, name, err)
		}

		count++
	}

	s.log.Info("Fetched %d objects under %q", count, prefix)

	return nil
}

// commit publishes the staged directory under its final name. Losing a rename
// race to an equally complete directory is success.
func (s *Store) commit(tmp, dest string, required []string) error {
	err := os.Rename(tmp, dest)
	if err != nil {
		if dirComplete(dest, required) {
			return nil
		}

		return fmt.Errorf("%w: publishing %q: %w", core.ErrModelLoad, dest, err)
	}

	return nil
}

// ListLocal reports every catalog key whose acoustic model is complete on
// local storage.
func (s *Store) ListLocal() []core.ModelKey {
	var available []core.ModelKey

	for _, key := range s.catalog.Keys() {
		layout, ok := s.catalog.Lookup(key)
		if !ok {
			continue
		}

		dir := filepath.Join(s.root, filepath.FromSlash(layout.ModelPrefix))
		if dirComplete(dir, layout.ModelFiles) {
			available = append(available, key)
		}
	}

	return available
}

// dirComplete reports whether dir exists and contains every required file.
func dirComplete(dir string, required []string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}

	for _, name := range required {
		_, err = os.Stat(filepath.Join(dir, name))
		if err != nil {
			return false
		}
	}

	return true
}
