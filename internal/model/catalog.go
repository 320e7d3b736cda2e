// Package model implements the model lifecycle: the catalog of available
// (language, voice) pairs, the materializer that mirrors remote artifacts to
// local storage, and the registry that caches loaded model handles under a
// per-key single-flight discipline.
package model

import (
	"path"
	"sort"

	"github.com/hawkaii/fastspeech/internal/config"
	"github.com/hawkaii/fastspeech/internal/core"
)

// Required artifact sets. A directory missing any of these files is treated
// as absent regardless of its name being present.
var (
	acousticModelFiles = []string{
		"config.yaml",
		"model.pth",
		"feats_stats.npz",
		"pitch_stats.npz",
		"energy_stats.npz",
	}
	vocoderFiles = []string{
		"config.json",
		"generator",
	}
)

const (
	modelDirName    = "model"
	vocoderTopLevel = "vocoder"
)

// StaticCatalog is a configuration-driven core.Catalog. Each declared language
// is available in both voices; its vocoder group names the shared vocoder used
// when no language-specific one exists.
type StaticCatalog struct {
	groups map[string]string
}

// NewCatalog builds the catalog from the declared language list.
func NewCatalog(cfg config.CatalogConfig) *StaticCatalog {
	groups := make(map[string]string, len(cfg.Languages))
	for _, language := range cfg.Languages {
		groups[language.Name] = language.VocoderGroup
	}

	return &StaticCatalog{groups: groups}
}

// Lookup reports the artifact layout for a key, or false if the key is not in
// the catalog at all.
func (c *StaticCatalog) Lookup(key core.ModelKey) (core.Layout, bool) {
	group, ok := c.groups[key.Language]
	if !ok {
		return core.Layout{}, false
	}

	voice := string(key.Voice)
	prefixes := []string{path.Join(vocoderTopLevel, voice, key.Language)}

	if group != "" && group != key.Language {
		prefixes = append(prefixes, path.Join(vocoderTopLevel, voice, group))
	}

	return core.Layout{
		ModelPrefix:     path.Join(key.Language, voice, modelDirName),
		VocoderPrefixes: prefixes,
		ModelFiles:      acousticModelFiles,
		VocoderFiles:    vocoderFiles,
	}, true
}

// Keys lists every catalog key in deterministic order.
func (c *StaticCatalog) Keys() []core.ModelKey {
	languages := make([]string, 0, len(c.groups))
	for language := range c.groups {
		languages = append(languages, language)
	}

	sort.Strings(languages)

	keys := make([]core.ModelKey, 0, 2*len(languages))
	for _, language := range languages {
		keys = append(keys,
			core.ModelKey{Language: language, Voice: core.VoiceMale},
			core.ModelKey{Language: language, Voice: core.VoiceFemale},
		)
	}

	return keys
}
